package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a referenced entity (contract, invoice, bucket,
// verification gate) could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrInsufficientFunds indicates that a bucket's available balance is too low
// for the requested commitment.
var ErrInsufficientFunds = errors.New("insufficient available funds")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrConflict indicates that a concurrent mutation lost a race at the storage
// layer. Callers may retry the whole operation.
var ErrConflict = errors.New("conflicting concurrent update")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrEntryNumberCollision indicates a generated ledger entry number collided
// with an existing one. Entry numbers are audit identifiers; a collision is a
// configuration fault, never retried silently.
var ErrEntryNumberCollision = errors.New("ledger entry number collision")

// AppError wraps an underlying error with an HTTP-ish status code and a
// message suitable for the response body.
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError wrapping err.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}
