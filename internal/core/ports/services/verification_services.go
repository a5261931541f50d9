package services

import (
	"context"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	"github.com/greenledger-io/greenledger_backend/internal/dto"
)

// VerificationSvcFacade owns verification gates and the attestation-driven
// retention release.
type VerificationSvcFacade interface {
	SubmitVerification(ctx context.Context, req dto.SubmitVerificationRequest, actor domain.Actor) (*domain.VerificationGate, error)
	GetGate(ctx context.Context, gateID string) (*domain.VerificationGate, error)

	// Attest records an attestation attempt. A passing attestation
	// atomically generates the single auto-approved retention-release
	// invoice; a failing one flips the gate to FAILED with no fund
	// movement. Duplicate delivery on a terminal gate returns the recorded
	// outcome.
	Attest(ctx context.Context, gateID string, req dto.AttestationRequest) (*domain.VerificationAttestation, error)

	// OnAttestationResult is the callback surface for the external
	// verification collaborator.
	OnAttestationResult(ctx context.Context, gateID string, passed bool) error
}

// FinanceLoopSvcFacade drives the deposit → mint → retire → receipt chain.
type FinanceLoopSvcFacade interface {
	Deposit(ctx context.Context, req dto.DepositRequest, actor domain.Actor) (*domain.Deposit, error)
	Mint(ctx context.Context, req dto.MintRequest, actor domain.Actor) (*domain.CreditToken, error)
	Retire(ctx context.Context, tokenID string, actor domain.Actor) (*domain.Receipt, error)
	GetReceipt(ctx context.Context, receiptID string) (*domain.Receipt, error)
	// ProjectTrace is the pure read joining deposits, disbursements and
	// attestations for a project, ordered by timestamp.
	ProjectTrace(ctx context.Context, projectID string) ([]domain.ReceiptEvent, error)
}
