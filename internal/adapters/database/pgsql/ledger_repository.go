package pgsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenledger-io/greenledger_backend/internal/apperrors"
	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	"github.com/greenledger-io/greenledger_backend/internal/core/ports/repositories"
	"github.com/greenledger-io/greenledger_backend/internal/utils/pagination"
)

type PgxLedgerRepository struct {
	pool *pgxpool.Pool
}

// NewPgxLedgerRepository creates a new repository for funding buckets and
// their append-only entry log.
func NewPgxLedgerRepository(pool *pgxpool.Pool) repositories.LedgerRepositoryFacade {
	return &PgxLedgerRepository{pool: pool}
}

var _ repositories.LedgerRepositoryFacade = (*PgxLedgerRepository)(nil)

const bucketColumns = `bucket_id, project_id, name, currency_code, available, committed, encumbered, disbursed, reserved, created_at, created_by, last_updated_at, last_updated_by`

func (r *PgxLedgerRepository) CreateBucket(ctx context.Context, bucket domain.FundingBucket) error {
	query := `
		INSERT INTO funding_buckets (` + bucketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
	`
	_, err := r.pool.Exec(ctx, query,
		bucket.BucketID,
		bucket.ProjectID,
		bucket.Name,
		bucket.CurrencyCode,
		bucket.Available,
		bucket.Committed,
		bucket.Encumbered,
		bucket.Disbursed,
		bucket.Reserved,
		bucket.CreatedAt,
		bucket.CreatedBy.String(),
		bucket.LastUpdatedAt,
		bucket.LastUpdatedBy.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("bucket %s already exists: %w", bucket.BucketID, apperrors.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert bucket %s: %w", bucket.BucketID, err)
	}
	return nil
}

func scanBucket(row pgx.Row) (*domain.FundingBucket, error) {
	var bucket domain.FundingBucket
	var audit auditRow
	err := row.Scan(
		&bucket.BucketID,
		&bucket.ProjectID,
		&bucket.Name,
		&bucket.CurrencyCode,
		&bucket.Available,
		&bucket.Committed,
		&bucket.Encumbered,
		&bucket.Disbursed,
		&bucket.Reserved,
		&bucket.CreatedAt,
		&audit.createdBy,
		&bucket.LastUpdatedAt,
		&audit.lastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	if err := audit.into(&bucket.AuditFields); err != nil {
		return nil, err
	}
	return &bucket, nil
}

func (r *PgxLedgerRepository) FindBucketByID(ctx context.Context, bucketID string) (*domain.FundingBucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM funding_buckets WHERE bucket_id = $1;`
	bucket, err := scanBucket(r.pool.QueryRow(ctx, query, bucketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find bucket %s: %w", bucketID, err)
	}
	return bucket, nil
}

func (r *PgxLedgerRepository) FindBucketByProject(ctx context.Context, projectID string, currency domain.CurrencyCode) (*domain.FundingBucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM funding_buckets WHERE project_id = $1 AND currency_code = $2;`
	bucket, err := scanBucket(r.pool.QueryRow(ctx, query, projectID, currency))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find bucket for project %s: %w", projectID, err)
	}
	return bucket, nil
}

// ApplyTransition moves the entry amount between partitions and appends the
// entry in one database transaction. The source partition update is guarded
// in SQL so the balance can never go below zero, whatever the concurrency.
func (r *PgxLedgerRepository) ApplyTransition(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, *domain.FundingBucket, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	applied, bucket, err := applyTransitionTx(ctx, tx, entry)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transition %s: %w", entry.EntryID, err)
	}
	return applied, bucket, nil
}

// applyTransitionTx runs the guarded partition move and entry append inside
// an existing transaction, for composite writes that must ride along with
// other inserts.
func applyTransitionTx(ctx context.Context, tx pgx.Tx, entry domain.LedgerEntry) (*domain.LedgerEntry, *domain.FundingBucket, error) {
	bucket, err := applyBucketUpdate(ctx, tx, entry)
	if err != nil {
		return nil, nil, err
	}

	primary, err := bucket.Balance(entry.EntryType.PrimaryBalance())
	if err != nil {
		return nil, nil, err
	}
	entry.BalanceAfter = primary

	entryQuery := `
		INSERT INTO ledger_entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17);
	`
	_, err = tx.Exec(ctx, entryQuery,
		entry.EntryID,
		entry.EntryNumber,
		entry.EntryType,
		entry.Debit,
		entry.Credit,
		entry.BucketID,
		entry.CurrencyCode,
		entry.FromBalance,
		entry.ToBalance,
		entry.ReferenceType,
		entry.ReferenceID,
		entry.BalanceAfter,
		entry.Memo,
		entry.CreatedAt,
		entry.CreatedBy.String(),
		entry.LastUpdatedAt,
		entry.LastUpdatedBy.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, fmt.Errorf("entry number %s: %w", entry.EntryNumber, apperrors.ErrEntryNumberCollision)
		}
		return nil, nil, fmt.Errorf("failed to insert ledger entry %s: %w", entry.EntryID, err)
	}
	return &entry, bucket, nil
}

// applyBucketUpdate performs the guarded partition move and returns the
// post-update bucket. EXTERNAL sides have no column and are skipped.
func applyBucketUpdate(ctx context.Context, tx pgx.Tx, entry domain.LedgerEntry) (*domain.FundingBucket, error) {
	amount := entry.Amount()
	sets := ""
	guard := ""

	if entry.FromBalance != domain.BalanceExternal {
		col, err := balanceColumn(entry.FromBalance)
		if err != nil {
			return nil, err
		}
		sets += fmt.Sprintf("%s = %s - $2, ", col, col)
		guard = fmt.Sprintf(" AND %s >= $2", col)
	}
	if entry.ToBalance != domain.BalanceExternal {
		col, err := balanceColumn(entry.ToBalance)
		if err != nil {
			return nil, err
		}
		sets += fmt.Sprintf("%s = %s + $2, ", col, col)
	}
	if sets == "" {
		return nil, fmt.Errorf("entry %s moves nothing: both sides external", entry.EntryID)
	}

	query := fmt.Sprintf(`
		UPDATE funding_buckets
		SET %slast_updated_at = $3, last_updated_by = $4
		WHERE bucket_id = $1%s
		RETURNING `+bucketColumns+`;
	`, sets, guard)

	bucket, err := scanBucket(tx.QueryRow(ctx, query,
		entry.BucketID, amount, entry.LastUpdatedAt, entry.LastUpdatedBy.String()))
	if err == nil {
		return bucket, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update bucket %s: %w", entry.BucketID, err)
	}

	// No row matched: either the bucket is missing or the guard failed.
	var exists bool
	if probeErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM funding_buckets WHERE bucket_id = $1);`, entry.BucketID).Scan(&exists); probeErr != nil {
		return nil, fmt.Errorf("failed to probe bucket %s: %w", entry.BucketID, probeErr)
	}
	if !exists {
		return nil, apperrors.ErrNotFound
	}
	if entry.FromBalance == domain.BalanceAvailable {
		return nil, fmt.Errorf("bucket %s available balance below %d: %w", entry.BucketID, amount, apperrors.ErrInsufficientFunds)
	}
	return nil, fmt.Errorf("bucket %s %s balance below %d: %w", entry.BucketID, entry.FromBalance, amount, apperrors.ErrInsufficientFunds)
}

const entryColumns = `entry_id, entry_number, entry_type, debit, credit, bucket_id, currency_code, from_balance, to_balance, reference_type, reference_id, balance_after, memo, created_at, created_by, last_updated_at, last_updated_by`

func scanEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	defer rows.Close()
	entries := []domain.LedgerEntry{}
	for rows.Next() {
		var entry domain.LedgerEntry
		var audit auditRow
		if err := rows.Scan(
			&entry.EntryID,
			&entry.EntryNumber,
			&entry.EntryType,
			&entry.Debit,
			&entry.Credit,
			&entry.BucketID,
			&entry.CurrencyCode,
			&entry.FromBalance,
			&entry.ToBalance,
			&entry.ReferenceType,
			&entry.ReferenceID,
			&entry.BalanceAfter,
			&entry.Memo,
			&entry.CreatedAt,
			&audit.createdBy,
			&entry.LastUpdatedAt,
			&audit.lastUpdatedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry row: %w", err)
		}
		if err := audit.into(&entry.AuditFields); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entry rows: %w", err)
	}
	return entries, nil
}

func (r *PgxLedgerRepository) FindEntriesByBucket(ctx context.Context, bucketID string) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE bucket_id = $1 ORDER BY created_at, entry_id;`
	rows, err := r.pool.Query(ctx, query, bucketID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries for bucket %s: %w", bucketID, err)
	}
	return scanEntries(rows)
}

// ListEntriesByBucket pages newest first on (created_at, entry_id).
func (r *PgxLedgerRepository) ListEntriesByBucket(ctx context.Context, bucketID string, limit int, nextToken *string) ([]domain.LedgerEntry, *string, error) {
	args := []any{bucketID, limit + 1}
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE bucket_id = $1`
	if nextToken != nil {
		cursorTime, cursorID, err := pagination.DecodeToken(*nextToken)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: bad page token: %v", apperrors.ErrValidation, err)
		}
		query += ` AND (created_at, entry_id) < ($3, $4)`
		args = append(args, cursorTime, cursorID)
	}
	query += ` ORDER BY created_at DESC, entry_id DESC LIMIT $2;`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to page entries for bucket %s: %w", bucketID, err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, nil, err
	}

	var token *string
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		t := pagination.EncodeToken(last.CreatedAt, last.EntryID)
		token = &t
	}
	return entries, token, nil
}

func (r *PgxLedgerRepository) FindProjectEntriesByType(ctx context.Context, projectID string, types []domain.EntryType) ([]domain.LedgerEntry, error) {
	typeStrings := make([]string, 0, len(types))
	for _, t := range types {
		typeStrings = append(typeStrings, string(t))
	}
	query := `
		SELECT ` + prefixedEntryColumns("e") + `
		FROM ledger_entries e
		JOIN funding_buckets b ON b.bucket_id = e.bucket_id
		WHERE b.project_id = $1 AND e.entry_type = ANY($2)
		ORDER BY e.created_at, e.entry_id;
	`
	rows, err := r.pool.Query(ctx, query, projectID, typeStrings)
	if err != nil {
		return nil, fmt.Errorf("failed to query %v entries for project %s: %w", types, projectID, err)
	}
	return scanEntries(rows)
}

func prefixedEntryColumns(alias string) string {
	return alias + ".entry_id, " + alias + ".entry_number, " + alias + ".entry_type, " +
		alias + ".debit, " + alias + ".credit, " + alias + ".bucket_id, " +
		alias + ".currency_code, " + alias + ".from_balance, " + alias + ".to_balance, " +
		alias + ".reference_type, " + alias + ".reference_id, " + alias + ".balance_after, " +
		alias + ".memo, " + alias + ".created_at, " + alias + ".created_by, " +
		alias + ".last_updated_at, " + alias + ".last_updated_by"
}
