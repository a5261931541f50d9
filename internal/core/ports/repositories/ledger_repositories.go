package repositories

import (
	"context"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
)

// LedgerRepositoryFacade defines persistence for funding buckets and their
// append-only entry log. There is deliberately no update or delete surface
// for entries: corrections are new offsetting entries.
type LedgerRepositoryFacade interface {
	CreateBucket(ctx context.Context, bucket domain.FundingBucket) error
	FindBucketByID(ctx context.Context, bucketID string) (*domain.FundingBucket, error)
	FindBucketByProject(ctx context.Context, projectID string, currency domain.CurrencyCode) (*domain.FundingBucket, error)

	// ApplyTransition atomically moves entry.Amount() between the entry's
	// from/to partitions and appends the entry, inside one storage
	// transaction. The source partition is guarded (never driven below
	// zero); a failed guard surfaces as ErrInsufficientFunds for the
	// available partition and ErrConflict otherwise. BalanceAfter is
	// populated from the post-update bucket.
	ApplyTransition(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, *domain.FundingBucket, error)

	FindEntriesByBucket(ctx context.Context, bucketID string) ([]domain.LedgerEntry, error)
	ListEntriesByBucket(ctx context.Context, bucketID string, limit int, nextToken *string) ([]domain.LedgerEntry, *string, error)
	FindProjectEntriesByType(ctx context.Context, projectID string, types []domain.EntryType) ([]domain.LedgerEntry, error)
}
