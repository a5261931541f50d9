package dto

import "github.com/greenledger-io/greenledger_backend/internal/core/domain"

// DepositRequest credits a project's designated bucket. DepositID is the
// caller's idempotency key: replaying a deposit returns the original record.
type DepositRequest struct {
	DepositID    string              `json:"depositID" binding:"required"`
	ProjectID    string              `json:"projectID" binding:"required"`
	CurrencyCode domain.CurrencyCode `json:"currencyCode" binding:"required,currencycode"`
	Amount       int64               `json:"amount" binding:"required,gt=0"`
	Source       string              `json:"source" binding:"required"`
}

// MintRequest mints a credit token linked to its funding trail by reference.
type MintRequest struct {
	TokenID        string `json:"tokenID" binding:"required"`
	ProjectID      string `json:"projectID" binding:"required"`
	Serial         string `json:"serial" binding:"required"`
	QuantityTonnes int64  `json:"quantityTonnes" binding:"required,gt=0"`
	ContractID     string `json:"contractID"`
	InvoiceID      string `json:"invoiceID"`
}
