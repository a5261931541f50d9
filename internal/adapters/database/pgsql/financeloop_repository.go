package pgsql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenledger-io/greenledger_backend/internal/apperrors"
	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	"github.com/greenledger-io/greenledger_backend/internal/core/ports/repositories"
)

type PgxFinanceLoopRepository struct {
	pool *pgxpool.Pool
}

// NewPgxFinanceLoopRepository creates a new repository for deposits, credit
// tokens and retirement receipts.
func NewPgxFinanceLoopRepository(pool *pgxpool.Pool) repositories.FinanceLoopRepositoryFacade {
	return &PgxFinanceLoopRepository{pool: pool}
}

var _ repositories.FinanceLoopRepositoryFacade = (*PgxFinanceLoopRepository)(nil)

const depositColumns = `deposit_id, project_id, bucket_id, currency_code, amount, source, ledger_entry_id, status, created_at, created_by, last_updated_at, last_updated_by`

// SaveDepositWithEntry inserts the deposit and applies its CREDIT ledger
// transition in one transaction. A replayed deposit id hits the primary key
// and surfaces as ErrDuplicate with the ledger untouched.
func (r *PgxFinanceLoopRepository) SaveDepositWithEntry(ctx context.Context, deposit domain.Deposit, entry domain.LedgerEntry) (*domain.FundingBucket, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		INSERT INTO deposits (` + depositColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`
	_, err = tx.Exec(ctx, query,
		deposit.DepositID,
		deposit.ProjectID,
		deposit.BucketID,
		deposit.CurrencyCode,
		deposit.Amount,
		deposit.Source,
		deposit.LedgerEntryID,
		deposit.Status,
		deposit.CreatedAt,
		deposit.CreatedBy.String(),
		deposit.LastUpdatedAt,
		deposit.LastUpdatedBy.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("deposit %s already settled: %w", deposit.DepositID, apperrors.ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to insert deposit %s: %w", deposit.DepositID, err)
	}

	_, bucket, err := applyTransitionTx(ctx, tx, entry)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit deposit %s: %w", deposit.DepositID, err)
	}
	return bucket, nil
}

func scanDeposit(row pgx.Row) (*domain.Deposit, error) {
	var d domain.Deposit
	var audit auditRow
	err := row.Scan(
		&d.DepositID,
		&d.ProjectID,
		&d.BucketID,
		&d.CurrencyCode,
		&d.Amount,
		&d.Source,
		&d.LedgerEntryID,
		&d.Status,
		&d.CreatedAt,
		&audit.createdBy,
		&d.LastUpdatedAt,
		&audit.lastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	if err := audit.into(&d.AuditFields); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PgxFinanceLoopRepository) FindDepositByID(ctx context.Context, depositID string) (*domain.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE deposit_id = $1;`
	deposit, err := scanDeposit(r.pool.QueryRow(ctx, query, depositID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find deposit %s: %w", depositID, err)
	}
	return deposit, nil
}

func (r *PgxFinanceLoopRepository) FindDepositsByProject(ctx context.Context, projectID string) ([]domain.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE project_id = $1 ORDER BY created_at, deposit_id;`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deposits for project %s: %w", projectID, err)
	}
	defer rows.Close()

	deposits := []domain.Deposit{}
	for rows.Next() {
		deposit, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deposit row: %w", err)
		}
		deposits = append(deposits, *deposit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deposit rows: %w", err)
	}
	return deposits, nil
}

const tokenColumns = `token_id, project_id, serial, quantity_tonnes, contract_id, invoice_id, status, retired_at, receipt_id, created_at, created_by, last_updated_at, last_updated_by`

func (r *PgxFinanceLoopRepository) SaveToken(ctx context.Context, token domain.CreditToken) error {
	query := `
		INSERT INTO credit_tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
	`
	_, err := r.pool.Exec(ctx, query,
		token.TokenID,
		token.ProjectID,
		token.Serial,
		token.QuantityTonnes,
		token.ContractID,
		token.InvoiceID,
		token.Status,
		token.RetiredAt,
		token.ReceiptID,
		token.CreatedAt,
		token.CreatedBy.String(),
		token.LastUpdatedAt,
		token.LastUpdatedBy.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("token %s already minted: %w", token.TokenID, apperrors.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert token %s: %w", token.TokenID, err)
	}
	return nil
}

func (r *PgxFinanceLoopRepository) FindTokenByID(ctx context.Context, tokenID string) (*domain.CreditToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM credit_tokens WHERE token_id = $1;`
	var token domain.CreditToken
	var audit auditRow
	err := r.pool.QueryRow(ctx, query, tokenID).Scan(
		&token.TokenID,
		&token.ProjectID,
		&token.Serial,
		&token.QuantityTonnes,
		&token.ContractID,
		&token.InvoiceID,
		&token.Status,
		&token.RetiredAt,
		&token.ReceiptID,
		&token.CreatedAt,
		&audit.createdBy,
		&token.LastUpdatedAt,
		&audit.lastUpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find token %s: %w", tokenID, err)
	}
	if err := audit.into(&token.AuditFields); err != nil {
		return nil, err
	}
	return &token, nil
}

// RetireToken retires the token and inserts its receipt in one transaction,
// guarded on the token still being MINTED so exactly one receipt can ever
// exist per token.
func (r *PgxFinanceLoopRepository) RetireToken(ctx context.Context, tokenID string, receipt domain.Receipt, actor domain.Actor, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tokenQuery := `
		UPDATE credit_tokens
		SET status = $2, retired_at = $3, receipt_id = $4, last_updated_at = $3, last_updated_by = $5
		WHERE token_id = $1 AND status = $6;
	`
	tag, err := tx.Exec(ctx, tokenQuery, tokenID, domain.TokenRetired, at, receipt.ReceiptID, actor.String(), domain.TokenMinted)
	if err != nil {
		return fmt.Errorf("failed to retire token %s: %w", tokenID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("token %s is not minted: %w", tokenID, apperrors.ErrConflict)
	}

	events, err := json.Marshal(receipt.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt events: %w", err)
	}
	receiptQuery := `
		INSERT INTO receipts (receipt_id, token_id, project_id, serial, generated_at, events, total_deposited, total_disbursed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err = tx.Exec(ctx, receiptQuery,
		receipt.ReceiptID,
		receipt.TokenID,
		receipt.ProjectID,
		receipt.Serial,
		receipt.GeneratedAt,
		events,
		receipt.TotalDeposited,
		receipt.TotalDisbursed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert receipt %s: %w", receipt.ReceiptID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit retirement of token %s: %w", tokenID, err)
	}
	return nil
}

func scanReceipt(row pgx.Row) (*domain.Receipt, error) {
	var receipt domain.Receipt
	var events []byte
	err := row.Scan(
		&receipt.ReceiptID,
		&receipt.TokenID,
		&receipt.ProjectID,
		&receipt.Serial,
		&receipt.GeneratedAt,
		&events,
		&receipt.TotalDeposited,
		&receipt.TotalDisbursed,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(events, &receipt.Events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt events: %w", err)
	}
	return &receipt, nil
}

const receiptColumns = `receipt_id, token_id, project_id, serial, generated_at, events, total_deposited, total_disbursed`

func (r *PgxFinanceLoopRepository) FindReceiptByID(ctx context.Context, receiptID string) (*domain.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE receipt_id = $1;`
	receipt, err := scanReceipt(r.pool.QueryRow(ctx, query, receiptID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find receipt %s: %w", receiptID, err)
	}
	return receipt, nil
}

func (r *PgxFinanceLoopRepository) FindReceiptByToken(ctx context.Context, tokenID string) (*domain.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE token_id = $1;`
	receipt, err := scanReceipt(r.pool.QueryRow(ctx, query, tokenID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find receipt for token %s: %w", tokenID, err)
	}
	return receipt, nil
}
