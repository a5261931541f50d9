package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/greenledger-io/greenledger_backend/internal/apperrors"
	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	portsrepo "github.com/greenledger-io/greenledger_backend/internal/core/ports/repositories"
	portssvc "github.com/greenledger-io/greenledger_backend/internal/core/ports/services"
	"github.com/greenledger-io/greenledger_backend/internal/dto"
	"github.com/greenledger-io/greenledger_backend/internal/middleware"
	"github.com/greenledger-io/greenledger_backend/internal/utils"
)

// entryNumberPrefixes maps entry types to their audit-number prefixes.
var entryNumberPrefixes = map[domain.EntryType]string{
	domain.EntryCommit:   "CMT",
	domain.EntryEncumber: "ENC",
	domain.EntryDisburse: "DSB",
	domain.EntryRelease:  "REL",
	domain.EntryCredit:   "CRD",
	domain.EntryDebit:    "DBT",
}

// generateEntryNumber builds a unique, monotonically informative audit
// identifier: type prefix + UTC timestamp + random suffix. Uniqueness is
// enforced by the store; a collision there is a configuration fault
// (ErrEntryNumberCollision), never silently retried.
func generateEntryNumber(entryType domain.EntryType, at time.Time) (string, error) {
	prefix, ok := entryNumberPrefixes[entryType]
	if !ok {
		return "", fmt.Errorf("unknown entry type %q", entryType)
	}
	suffix, err := utils.SecureRandomSuffix(4)
	if err != nil {
		return "", fmt.Errorf("failed to generate entry number suffix: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format("20060102T150405"), suffix), nil
}

// buildEntry assembles a ledger entry for a balance transition. Exactly one
// of debit/credit is set, by the entry type's direction.
func buildEntry(entryType domain.EntryType, bucket string, currency domain.CurrencyCode, from, to domain.BalanceKind, refType domain.ReferenceType, refID string, amount int64, actor domain.Actor, at time.Time) (domain.LedgerEntry, error) {
	if amount <= 0 {
		return domain.LedgerEntry{}, fmt.Errorf("%w: amount must be positive, got %d", apperrors.ErrValidation, amount)
	}
	number, err := generateEntryNumber(entryType, at)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	entry := domain.LedgerEntry{
		EntryID:       uuid.NewString(),
		EntryNumber:   number,
		EntryType:     entryType,
		BucketID:      bucket,
		CurrencyCode:  currency,
		FromBalance:   from,
		ToBalance:     to,
		ReferenceType: refType,
		ReferenceID:   refID,
	}
	if entryType.IsCreditDirection() {
		entry.Credit = amount
	} else {
		entry.Debit = amount
	}
	entry.Touch(actor, at)
	return entry, nil
}

// ledgerService provides the funding-bucket operations and reconciliation.
type ledgerService struct {
	ledgerRepo portsrepo.LedgerRepositoryFacade
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(ledgerRepo portsrepo.LedgerRepositoryFacade) portssvc.LedgerSvcFacade {
	return &ledgerService{ledgerRepo: ledgerRepo}
}

var _ portssvc.LedgerSvcFacade = (*ledgerService)(nil)

func (s *ledgerService) CreateBucket(ctx context.Context, req dto.CreateBucketRequest, actor domain.Actor) (*domain.FundingBucket, error) {
	now := time.Now().UTC()
	bucket := domain.FundingBucket{
		BucketID:     uuid.NewString(),
		ProjectID:    req.ProjectID,
		Name:         req.Name,
		CurrencyCode: req.CurrencyCode,
	}
	bucket.Touch(actor, now)
	if err := s.ledgerRepo.CreateBucket(ctx, bucket); err != nil {
		return nil, fmt.Errorf("failed to create funding bucket: %w", err)
	}
	middleware.GetLoggerFromCtx(ctx).Info("Funding bucket created",
		slog.String("bucket_id", bucket.BucketID), slog.String("project_id", bucket.ProjectID))
	return &bucket, nil
}

func (s *ledgerService) GetBucket(ctx context.Context, bucketID string) (*domain.FundingBucket, error) {
	return s.ledgerRepo.FindBucketByID(ctx, bucketID)
}

// transition looks up the bucket, builds the entry and applies it through the
// repository's single-transaction path.
func (s *ledgerService) transition(ctx context.Context, entryType domain.EntryType, bucketID string, from, to domain.BalanceKind, refType domain.ReferenceType, refID string, amount int64, actor domain.Actor) (*domain.LedgerEntry, error) {
	bucket, err := s.ledgerRepo.FindBucketByID(ctx, bucketID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry, err := buildEntry(entryType, bucket.BucketID, bucket.CurrencyCode, from, to, refType, refID, amount, actor, now)
	if err != nil {
		return nil, err
	}

	applied, _, err := s.ledgerRepo.ApplyTransition(ctx, entry)
	if err != nil {
		return nil, err
	}

	middleware.GetLoggerFromCtx(ctx).Info("Ledger transition applied",
		slog.String("entry_number", applied.EntryNumber),
		slog.String("entry_type", string(entryType)),
		slog.String("bucket_id", bucketID),
		slog.Int64("amount", amount),
		slog.String("actor", actor.String()),
	)
	return applied, nil
}

func (s *ledgerService) Commit(ctx context.Context, bucketID, contractID string, amount int64, actor domain.Actor) (*domain.LedgerEntry, error) {
	return s.transition(ctx, domain.EntryCommit, bucketID, domain.BalanceAvailable, domain.BalanceCommitted, domain.RefContract, contractID, amount, actor)
}

func (s *ledgerService) Encumber(ctx context.Context, bucketID, invoiceID string, amount int64, actor domain.Actor) (*domain.LedgerEntry, error) {
	return s.transition(ctx, domain.EntryEncumber, bucketID, domain.BalanceCommitted, domain.BalanceEncumbered, domain.RefInvoice, invoiceID, amount, actor)
}

func (s *ledgerService) Disburse(ctx context.Context, bucketID, disbursementID string, amount int64, actor domain.Actor) (*domain.LedgerEntry, error) {
	return s.transition(ctx, domain.EntryDisburse, bucketID, domain.BalanceEncumbered, domain.BalanceDisbursed, domain.RefDisbursement, disbursementID, amount, actor)
}

func (s *ledgerService) WithholdRetention(ctx context.Context, bucketID, invoiceID string, amount int64, actor domain.Actor) (*domain.LedgerEntry, error) {
	return s.transition(ctx, domain.EntryDisburse, bucketID, domain.BalanceEncumbered, domain.BalanceReserved, domain.RefRetentionHold, invoiceID, amount, actor)
}

func (s *ledgerService) Release(ctx context.Context, bucketID, verificationGateID string, amount int64, actor domain.Actor) (*domain.LedgerEntry, error) {
	return s.transition(ctx, domain.EntryRelease, bucketID, domain.BalanceReserved, domain.BalanceAvailable, domain.RefVerificationGate, verificationGateID, amount, actor)
}

func (s *ledgerService) Decommit(ctx context.Context, bucketID, changeOrderID string, amount int64, actor domain.Actor) (*domain.LedgerEntry, error) {
	return s.transition(ctx, domain.EntryRelease, bucketID, domain.BalanceCommitted, domain.BalanceAvailable, domain.RefChangeOrder, changeOrderID, amount, actor)
}

func (s *ledgerService) ListEntries(ctx context.Context, bucketID string, limit int, nextToken *string) ([]domain.LedgerEntry, *string, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.ledgerRepo.ListEntriesByBucket(ctx, bucketID, limit, nextToken)
}

// Reconcile replays the bucket's full entry log against its persisted
// partitions. Discrepancies are reported, never raised; this runs as a
// background health check, not in any transaction path.
func (s *ledgerService) Reconcile(ctx context.Context, bucketID string) (*domain.ReconciliationReport, error) {
	bucket, err := s.ledgerRepo.FindBucketByID(ctx, bucketID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledgerRepo.FindEntriesByBucket(ctx, bucketID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries for bucket %s: %w", bucketID, err)
	}

	derived, err := domain.ReplayEntries(entries)
	if err != nil {
		return nil, err
	}

	report := &domain.ReconciliationReport{
		BucketID:   bucketID,
		EntryCount: len(entries),
	}
	for _, e := range entries {
		report.TotalDebits += e.Debit
		report.TotalCredits += e.Credit
	}

	actuals := map[domain.BalanceKind]int64{
		domain.BalanceAvailable:  bucket.Available,
		domain.BalanceCommitted:  bucket.Committed,
		domain.BalanceEncumbered: bucket.Encumbered,
		domain.BalanceDisbursed:  bucket.Disbursed,
		domain.BalanceReserved:   bucket.Reserved,
	}
	for _, kind := range []domain.BalanceKind{domain.BalanceAvailable, domain.BalanceCommitted, domain.BalanceEncumbered, domain.BalanceDisbursed, domain.BalanceReserved} {
		expected := derived[kind]
		actual := actuals[kind]
		if expected != actual {
			report.Discrepancies = append(report.Discrepancies, domain.PartitionDiscrepancy{
				Balance:  kind,
				Expected: expected,
				Actual:   actual,
				Delta:    actual - expected,
			})
		}
	}

	if !report.Balanced() {
		middleware.GetLoggerFromCtx(ctx).Error("Ledger reconciliation discrepancy",
			slog.String("bucket_id", bucketID),
			slog.Int("discrepancies", len(report.Discrepancies)),
		)
	}
	return report, nil
}
