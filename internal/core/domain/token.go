package domain

import "time"

// DepositStatus is the settlement state of a deposit.
type DepositStatus string

const (
	DepositSettled DepositStatus = "SETTLED"
)

// Deposit credits a project's designated bucket with external funds.
// Deposits are idempotent on DepositID: replaying one returns the existing
// record without a second ledger entry.
type Deposit struct {
	DepositID     string        `json:"depositID"`
	ProjectID     string        `json:"projectID"`
	BucketID      string        `json:"bucketID"`
	CurrencyCode  CurrencyCode  `json:"currencyCode"`
	Amount        int64         `json:"amount"`
	Source        string        `json:"source"`
	LedgerEntryID string        `json:"ledgerEntryID"`
	Status        DepositStatus `json:"status"`
	AuditFields
}

// TokenStatus is the lifecycle state of an environmental-credit token.
type TokenStatus string

const (
	TokenMinted  TokenStatus = "MINTED"
	TokenRetired TokenStatus = "RETIRED"
)

// CreditToken is the mint/retire record for an environmental credit.
// Minting and retiring never touch bucket balances; tokens link to the
// ledger only through stored reference ids, and the retirement receipt
// reconstructs the chain for audit.
type CreditToken struct {
	TokenID        string      `json:"tokenID"`
	ProjectID      string      `json:"projectID"`
	Serial         string      `json:"serial"`
	QuantityTonnes int64       `json:"quantityTonnes"`
	ContractID     string      `json:"contractID,omitempty"`
	InvoiceID      string      `json:"invoiceID,omitempty"`
	Status         TokenStatus `json:"status"`
	RetiredAt      *time.Time  `json:"retiredAt,omitempty"`
	ReceiptID      string      `json:"receiptID,omitempty"`
	AuditFields
}

// ReceiptEvent is one time-ordered event in a retirement receipt's
// traceability chain.
type ReceiptEvent struct {
	OccurredAt  time.Time `json:"occurredAt"`
	Kind        string    `json:"kind"` // deposit | disbursement | attestation
	ReferenceID string    `json:"referenceID"`
	Amount      int64     `json:"amount,omitempty"`
	Detail      string    `json:"detail"`
}

// Receipt is the append-only audit record produced exactly once when a token
// is retired. It aggregates, by reference, every deposit, disbursement and
// attestation tied to the project, from funding source to retirement.
// Receipts are never mutated after generation.
type Receipt struct {
	ReceiptID      string         `json:"receiptID"`
	TokenID        string         `json:"tokenID"`
	ProjectID      string         `json:"projectID"`
	Serial         string         `json:"serial"`
	GeneratedAt    time.Time      `json:"generatedAt"`
	Events         []ReceiptEvent `json:"events"`
	TotalDeposited int64          `json:"totalDeposited"`
	TotalDisbursed int64          `json:"totalDisbursed"`
}
