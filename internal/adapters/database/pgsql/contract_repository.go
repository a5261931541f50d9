package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenledger-io/greenledger_backend/internal/apperrors"
	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	"github.com/greenledger-io/greenledger_backend/internal/core/ports/repositories"
)

type PgxContractRepository struct {
	pool *pgxpool.Pool
}

// NewPgxContractRepository creates a new repository for contracts, budget
// lines, allocations and change orders.
func NewPgxContractRepository(pool *pgxpool.Pool) repositories.ContractRepositoryFacade {
	return &PgxContractRepository{pool: pool}
}

var _ repositories.ContractRepositoryFacade = (*PgxContractRepository)(nil)

const contractColumns = `contract_id, project_id, vendor_id, funding_bucket_id, currency_code, original_amount, current_amount, not_to_exceed, retention_percent, status, approval_status, title, created_at, created_by, last_updated_at, last_updated_by`

func (r *PgxContractRepository) SaveContract(ctx context.Context, contract domain.Contract) error {
	query := `
		INSERT INTO contracts (` + contractColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);
	`
	_, err := r.pool.Exec(ctx, query,
		contract.ContractID,
		contract.ProjectID,
		contract.VendorID,
		contract.FundingBucketID,
		contract.CurrencyCode,
		contract.OriginalAmount,
		contract.CurrentAmount,
		contract.NotToExceed,
		contract.RetentionPercent,
		contract.Status,
		contract.ApprovalStatus,
		contract.Title,
		contract.CreatedAt,
		contract.CreatedBy.String(),
		contract.LastUpdatedAt,
		contract.LastUpdatedBy.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("contract %s already exists: %w", contract.ContractID, apperrors.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert contract %s: %w", contract.ContractID, err)
	}
	return nil
}

func scanContract(row pgx.Row) (*domain.Contract, error) {
	var contract domain.Contract
	var audit auditRow
	err := row.Scan(
		&contract.ContractID,
		&contract.ProjectID,
		&contract.VendorID,
		&contract.FundingBucketID,
		&contract.CurrencyCode,
		&contract.OriginalAmount,
		&contract.CurrentAmount,
		&contract.NotToExceed,
		&contract.RetentionPercent,
		&contract.Status,
		&contract.ApprovalStatus,
		&contract.Title,
		&contract.CreatedAt,
		&audit.createdBy,
		&contract.LastUpdatedAt,
		&audit.lastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	if err := audit.into(&contract.AuditFields); err != nil {
		return nil, err
	}
	return &contract, nil
}

func (r *PgxContractRepository) FindContractByID(ctx context.Context, contractID string) (*domain.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE contract_id = $1;`
	contract, err := scanContract(r.pool.QueryRow(ctx, query, contractID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find contract %s: %w", contractID, err)
	}
	return contract, nil
}

func (r *PgxContractRepository) UpdateContractStatus(ctx context.Context, contractID string, status domain.ContractStatus, approval domain.ApprovalStatus, actor domain.Actor, at time.Time) error {
	query := `
		UPDATE contracts
		SET status = $2, approval_status = $3, last_updated_at = $4, last_updated_by = $5
		WHERE contract_id = $1;
	`
	tag, err := r.pool.Exec(ctx, query, contractID, status, approval, at, actor.String())
	if err != nil {
		return fmt.Errorf("failed to update contract %s status: %w", contractID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ApproveContractWithCommit flips the contract to APPROVED and commits its
// budget against the funding bucket in one transaction. The status update is
// guarded on the contract still being PENDING_APPROVAL; an insufficient
// available balance rolls the whole approval back.
func (r *PgxContractRepository) ApproveContractWithCommit(ctx context.Context, contractID string, entry domain.LedgerEntry, actor domain.Actor, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		UPDATE contracts
		SET status = $2, approval_status = $3, last_updated_at = $4, last_updated_by = $5
		WHERE contract_id = $1 AND status = $6;
	`
	tag, err := tx.Exec(ctx, query, contractID, domain.ContractApproved, domain.ApprovalApproved, at, actor.String(), domain.ContractPendingApproval)
	if err != nil {
		return fmt.Errorf("failed to approve contract %s: %w", contractID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if probeErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM contracts WHERE contract_id = $1);`, contractID).Scan(&exists); probeErr != nil {
			return fmt.Errorf("failed to probe contract %s: %w", contractID, probeErr)
		}
		if !exists {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("contract %s is not %s: %w", contractID, domain.ContractPendingApproval, apperrors.ErrConflict)
	}

	if _, _, err := applyTransitionTx(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit approval of contract %s: %w", contractID, err)
	}
	return nil
}

func (r *PgxContractRepository) SaveBudgetLine(ctx context.Context, line domain.BudgetLine) error {
	query := `
		INSERT INTO budget_lines (budget_line_id, project_id, code, description, revised_budget, committed_amount, created_at, created_by, last_updated_at, last_updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	_, err := r.pool.Exec(ctx, query,
		line.BudgetLineID,
		line.ProjectID,
		line.Code,
		line.Description,
		line.RevisedBudget,
		line.CommittedAmount,
		line.CreatedAt,
		line.CreatedBy.String(),
		line.LastUpdatedAt,
		line.LastUpdatedBy.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("budget line %s already exists: %w", line.BudgetLineID, apperrors.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert budget line %s: %w", line.BudgetLineID, err)
	}
	return nil
}

const budgetLineColumns = `budget_line_id, project_id, code, description, revised_budget, committed_amount, created_at, created_by, last_updated_at, last_updated_by`

func scanBudgetLine(row pgx.Row) (*domain.BudgetLine, error) {
	var line domain.BudgetLine
	var audit auditRow
	err := row.Scan(
		&line.BudgetLineID,
		&line.ProjectID,
		&line.Code,
		&line.Description,
		&line.RevisedBudget,
		&line.CommittedAmount,
		&line.CreatedAt,
		&audit.createdBy,
		&line.LastUpdatedAt,
		&audit.lastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	if err := audit.into(&line.AuditFields); err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *PgxContractRepository) FindBudgetLineByID(ctx context.Context, budgetLineID string) (*domain.BudgetLine, error) {
	query := `SELECT ` + budgetLineColumns + ` FROM budget_lines WHERE budget_line_id = $1;`
	line, err := scanBudgetLine(r.pool.QueryRow(ctx, query, budgetLineID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find budget line %s: %w", budgetLineID, err)
	}
	return line, nil
}

func (r *PgxContractRepository) FindBudgetLinesByIDs(ctx context.Context, budgetLineIDs []string) (map[string]domain.BudgetLine, error) {
	query := `SELECT ` + budgetLineColumns + ` FROM budget_lines WHERE budget_line_id = ANY($1);`
	rows, err := r.pool.Query(ctx, query, budgetLineIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query budget lines: %w", err)
	}
	defer rows.Close()

	lines := make(map[string]domain.BudgetLine, len(budgetLineIDs))
	for rows.Next() {
		line, err := scanBudgetLine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget line row: %w", err)
		}
		lines[line.BudgetLineID] = *line
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating budget line rows: %w", err)
	}
	return lines, nil
}

// ReplaceAllocations swaps out the contract's allocation set in one
// transaction, keeping budget-line committed amounts in step: prior
// allocations are reversed off their lines before the new set is added.
func (r *PgxContractRepository) ReplaceAllocations(ctx context.Context, contractID string, allocations []domain.BudgetAllocation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	reverseQuery := `
		UPDATE budget_lines l
		SET committed_amount = l.committed_amount - a.amount
		FROM budget_allocations a
		WHERE a.contract_id = $1 AND a.budget_line_id = l.budget_line_id;
	`
	if _, err := tx.Exec(ctx, reverseQuery, contractID); err != nil {
		return fmt.Errorf("failed to reverse prior allocations for contract %s: %w", contractID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM budget_allocations WHERE contract_id = $1;`, contractID); err != nil {
		return fmt.Errorf("failed to delete prior allocations for contract %s: %w", contractID, err)
	}

	insertQuery := `
		INSERT INTO budget_allocations (allocation_id, contract_id, budget_line_id, amount, percent, created_at, created_by, last_updated_at, last_updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	commitQuery := `
		UPDATE budget_lines SET committed_amount = committed_amount + $2 WHERE budget_line_id = $1;
	`
	batch := &pgx.Batch{}
	for _, a := range allocations {
		batch.Queue(insertQuery,
			a.AllocationID,
			contractID,
			a.BudgetLineID,
			a.Amount,
			a.Percent,
			a.CreatedAt,
			a.CreatedBy.String(),
			a.LastUpdatedAt,
			a.LastUpdatedBy.String(),
		)
		batch.Queue(commitQuery, a.BudgetLineID, a.Amount)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert allocations for contract %s: %w", contractID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit allocations for contract %s: %w", contractID, err)
	}
	return nil
}

func (r *PgxContractRepository) FindAllocationsByContract(ctx context.Context, contractID string) ([]domain.BudgetAllocation, error) {
	query := `
		SELECT allocation_id, contract_id, budget_line_id, amount, percent, created_at, created_by, last_updated_at, last_updated_by
		FROM budget_allocations
		WHERE contract_id = $1
		ORDER BY created_at, allocation_id;
	`
	rows, err := r.pool.Query(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations for contract %s: %w", contractID, err)
	}
	defer rows.Close()

	allocations := []domain.BudgetAllocation{}
	for rows.Next() {
		var a domain.BudgetAllocation
		var audit auditRow
		if err := rows.Scan(
			&a.AllocationID,
			&a.ContractID,
			&a.BudgetLineID,
			&a.Amount,
			&a.Percent,
			&a.CreatedAt,
			&audit.createdBy,
			&a.LastUpdatedAt,
			&audit.lastUpdatedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan allocation row: %w", err)
		}
		if err := audit.into(&a.AuditFields); err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocation rows: %w", err)
	}
	return allocations, nil
}

const changeOrderColumns = `change_order_id, contract_id, delta_amount, delta_time_days, new_contract_total, reason, status, approval_status, created_at, created_by, last_updated_at, last_updated_by`

func (r *PgxContractRepository) SaveChangeOrder(ctx context.Context, co domain.ChangeOrder) error {
	query := `
		INSERT INTO change_orders (` + changeOrderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`
	_, err := r.pool.Exec(ctx, query,
		co.ChangeOrderID,
		co.ContractID,
		co.DeltaAmount,
		co.DeltaTimeDays,
		co.NewContractTotal,
		co.Reason,
		co.Status,
		co.ApprovalStatus,
		co.CreatedAt,
		co.CreatedBy.String(),
		co.LastUpdatedAt,
		co.LastUpdatedBy.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("change order %s already exists: %w", co.ChangeOrderID, apperrors.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert change order %s: %w", co.ChangeOrderID, err)
	}
	return nil
}

func scanChangeOrder(row pgx.Row) (*domain.ChangeOrder, error) {
	var co domain.ChangeOrder
	var audit auditRow
	err := row.Scan(
		&co.ChangeOrderID,
		&co.ContractID,
		&co.DeltaAmount,
		&co.DeltaTimeDays,
		&co.NewContractTotal,
		&co.Reason,
		&co.Status,
		&co.ApprovalStatus,
		&co.CreatedAt,
		&audit.createdBy,
		&co.LastUpdatedAt,
		&audit.lastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	if err := audit.into(&co.AuditFields); err != nil {
		return nil, err
	}
	return &co, nil
}

func (r *PgxContractRepository) FindChangeOrderByID(ctx context.Context, changeOrderID string) (*domain.ChangeOrder, error) {
	query := `SELECT ` + changeOrderColumns + ` FROM change_orders WHERE change_order_id = $1;`
	co, err := scanChangeOrder(r.pool.QueryRow(ctx, query, changeOrderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find change order %s: %w", changeOrderID, err)
	}
	return co, nil
}

func (r *PgxContractRepository) UpdateChangeOrderStatus(ctx context.Context, changeOrderID string, status domain.ChangeOrderStatus, approval domain.ApprovalStatus, actor domain.Actor, at time.Time) error {
	query := `
		UPDATE change_orders
		SET status = $2, approval_status = $3, last_updated_at = $4, last_updated_by = $5
		WHERE change_order_id = $1;
	`
	tag, err := r.pool.Exec(ctx, query, changeOrderID, status, approval, at, actor.String())
	if err != nil {
		return fmt.Errorf("failed to update change order %s status: %w", changeOrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *PgxContractRepository) SaveChangeOrderApproval(ctx context.Context, approval domain.ChangeOrderApproval) error {
	query := `
		INSERT INTO change_order_approvals (approval_id, change_order_id, approver_id, role, decided_at)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err := r.pool.Exec(ctx, query,
		approval.ApprovalID,
		approval.ChangeOrderID,
		approval.ApproverID,
		approval.Role,
		approval.DecidedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("role %s already signed change order %s: %w", approval.Role, approval.ChangeOrderID, apperrors.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert change order approval: %w", err)
	}
	return nil
}

func (r *PgxContractRepository) FindChangeOrderApprovals(ctx context.Context, changeOrderID string) ([]domain.ChangeOrderApproval, error) {
	query := `
		SELECT approval_id, change_order_id, approver_id, role, decided_at
		FROM change_order_approvals
		WHERE change_order_id = $1
		ORDER BY decided_at;
	`
	rows, err := r.pool.Query(ctx, query, changeOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals for change order %s: %w", changeOrderID, err)
	}
	defer rows.Close()

	approvals := []domain.ChangeOrderApproval{}
	for rows.Next() {
		var a domain.ChangeOrderApproval
		if err := rows.Scan(&a.ApprovalID, &a.ChangeOrderID, &a.ApproverID, &a.Role, &a.DecidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval row: %w", err)
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approval rows: %w", err)
	}
	return approvals, nil
}

// ApplyChangeOrder implements the change order in one transaction. The
// contract update is guarded on current_amount still being expectedCurrent;
// a lost race surfaces as ErrConflict so the service can re-validate against
// the fresh total. A non-nil entry moves the bucket's committed balance in
// the same transaction.
func (r *PgxContractRepository) ApplyChangeOrder(ctx context.Context, co domain.ChangeOrder, expectedCurrent int64, impacts []domain.AllocationImpact, entry *domain.LedgerEntry, actor domain.Actor, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	contractQuery := `
		UPDATE contracts
		SET current_amount = $3, last_updated_at = $4, last_updated_by = $5
		WHERE contract_id = $1 AND current_amount = $2;
	`
	tag, err := tx.Exec(ctx, contractQuery, co.ContractID, expectedCurrent, co.NewContractTotal, at, actor.String())
	if err != nil {
		return fmt.Errorf("failed to update contract %s amount: %w", co.ContractID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("contract %s moved past expected amount %d: %w", co.ContractID, expectedCurrent, apperrors.ErrConflict)
	}

	allocationQuery := `
		UPDATE budget_allocations SET amount = $2, last_updated_at = $3, last_updated_by = $4
		WHERE allocation_id = $1;
	`
	lineQuery := `
		UPDATE budget_lines SET committed_amount = committed_amount + $2 WHERE budget_line_id = $1;
	`
	batch := &pgx.Batch{}
	for _, impact := range impacts {
		batch.Queue(allocationQuery, impact.AllocationID, impact.NewAmount, at, actor.String())
		batch.Queue(lineQuery, impact.BudgetLineID, impact.DeltaAllocation)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to apply allocation impacts for change order %s: %w", co.ChangeOrderID, err)
	}

	coQuery := `
		UPDATE change_orders
		SET status = $2, approval_status = $3, last_updated_at = $4, last_updated_by = $5
		WHERE change_order_id = $1;
	`
	if _, err := tx.Exec(ctx, coQuery, co.ChangeOrderID, domain.ChangeOrderApproved, domain.ApprovalApproved, at, actor.String()); err != nil {
		return fmt.Errorf("failed to approve change order %s: %w", co.ChangeOrderID, err)
	}

	if entry != nil {
		if _, _, err := applyTransitionTx(ctx, tx, *entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit change order %s: %w", co.ChangeOrderID, err)
	}
	return nil
}
