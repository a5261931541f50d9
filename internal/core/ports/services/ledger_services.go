package services

import (
	"context"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	"github.com/greenledger-io/greenledger_backend/internal/dto"
)

// LedgerSvcFacade exposes the four atomic bucket operations, deposits and
// reconciliation. Every mutating call produces exactly one ledger entry and
// one bucket update in a single storage transaction.
type LedgerSvcFacade interface {
	CreateBucket(ctx context.Context, req dto.CreateBucketRequest, actor domain.Actor) (*domain.FundingBucket, error)
	GetBucket(ctx context.Context, bucketID string) (*domain.FundingBucket, error)

	// Commit moves amount from available to committed on behalf of a
	// contract. Fails with ErrInsufficientFunds when available < amount.
	Commit(ctx context.Context, bucketID, contractID string, amount int64, actor domain.Actor) (*domain.LedgerEntry, error)
	// Encumber moves amount from committed to encumbered on behalf of an
	// invoice. Committed funds are presumed earmarked; availability is not
	// re-checked.
	Encumber(ctx context.Context, bucketID, invoiceID string, amount int64, actor domain.Actor) (*domain.LedgerEntry, error)
	// Disburse moves amount from encumbered to disbursed on behalf of a
	// payment-rail disbursement.
	Disburse(ctx context.Context, bucketID, disbursementID string, amount int64, actor domain.Actor) (*domain.LedgerEntry, error)
	// WithholdRetention moves amount from encumbered to reserved when an
	// invoice is paid with retention withheld.
	WithholdRetention(ctx context.Context, bucketID, invoiceID string, amount int64, actor domain.Actor) (*domain.LedgerEntry, error)
	// Release moves amount from reserved back to available, driven by a
	// passing verification gate.
	Release(ctx context.Context, bucketID, verificationGateID string, amount int64, actor domain.Actor) (*domain.LedgerEntry, error)
	// Decommit returns amount from committed to available, driven by a
	// negative change-order delta.
	Decommit(ctx context.Context, bucketID, changeOrderID string, amount int64, actor domain.Actor) (*domain.LedgerEntry, error)

	ListEntries(ctx context.Context, bucketID string, limit int, nextToken *string) ([]domain.LedgerEntry, *string, error)

	// Reconcile replays the bucket's entry log against its persisted
	// partitions and reports discrepancies instead of raising; a non-zero
	// discrepancy is a data-integrity alarm, not a user error.
	Reconcile(ctx context.Context, bucketID string) (*domain.ReconciliationReport, error)
}
