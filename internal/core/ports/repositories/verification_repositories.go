package repositories

import (
	"context"
	"time"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
)

// VerificationRepositoryFacade defines persistence for verification gates and
// attestations, including the single fund-moving composite write the engine
// performs on a passing attestation.
type VerificationRepositoryFacade interface {
	SaveGate(ctx context.Context, gate domain.VerificationGate) error
	FindGateByID(ctx context.Context, gateID string) (*domain.VerificationGate, error)
	FindAttestationsByGate(ctx context.Context, gateID string) ([]domain.VerificationAttestation, error)
	FindAttestationsByProject(ctx context.Context, projectID string) ([]domain.VerificationAttestation, error)

	// SaveFailedAttestation persists the attestation and flips the gate to
	// FAILED in one transaction. No fund movement.
	SaveFailedAttestation(ctx context.Context, att domain.VerificationAttestation, actor domain.Actor, at time.Time) error

	// SavePassedAttestation persists the attestation, flips the gate to
	// PASSED, inserts the auto-approved retention-release invoice and
	// applies the RELEASE ledger transition in one transaction, so a
	// failure anywhere leaves no trace of the attestation.
	SavePassedAttestation(ctx context.Context, att domain.VerificationAttestation, releaseInvoice *domain.Invoice, releaseEntry *domain.LedgerEntry, actor domain.Actor, at time.Time) error
}

// FinanceLoopRepositoryFacade defines persistence for deposits, credit tokens
// and retirement receipts. Receipts are append-only: there is no update or
// delete surface.
type FinanceLoopRepositoryFacade interface {
	// SaveDepositWithEntry inserts the deposit and applies its CREDIT
	// ledger transition in one transaction. Inserting an already-existing
	// deposit id returns ErrDuplicate without touching the ledger.
	SaveDepositWithEntry(ctx context.Context, deposit domain.Deposit, entry domain.LedgerEntry) (*domain.FundingBucket, error)
	FindDepositByID(ctx context.Context, depositID string) (*domain.Deposit, error)
	FindDepositsByProject(ctx context.Context, projectID string) ([]domain.Deposit, error)

	SaveToken(ctx context.Context, token domain.CreditToken) error
	FindTokenByID(ctx context.Context, tokenID string) (*domain.CreditToken, error)

	// RetireToken transitions the token to RETIRED and inserts its receipt
	// in one transaction, guarded on the token still being MINTED.
	RetireToken(ctx context.Context, tokenID string, receipt domain.Receipt, actor domain.Actor, at time.Time) error
	FindReceiptByID(ctx context.Context, receiptID string) (*domain.Receipt, error)
	FindReceiptByToken(ctx context.Context, tokenID string) (*domain.Receipt, error)
}
