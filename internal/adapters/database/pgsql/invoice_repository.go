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

type PgxInvoiceRepository struct {
	pool *pgxpool.Pool
}

// NewPgxInvoiceRepository creates a new repository for invoices, coding
// lines, approval decisions and the per-project approval matrix.
func NewPgxInvoiceRepository(pool *pgxpool.Pool) repositories.InvoiceRepositoryFacade {
	return &PgxInvoiceRepository{pool: pool}
}

var _ repositories.InvoiceRepositoryFacade = (*PgxInvoiceRepository)(nil)

const invoiceColumns = `invoice_id, contract_id, project_id, vendor_id, currency_code, invoice_number, kind, subtotal, taxes, retention, witholdings, total, net_payable, percent_complete, status, approval_status, required_roles, required_approvals, created_at, created_by, last_updated_at, last_updated_by`

func rolesToStrings(roles []domain.ApproverRole) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}

func stringsToRoles(values []string) []domain.ApproverRole {
	out := make([]domain.ApproverRole, 0, len(values))
	for _, v := range values {
		out = append(out, domain.ApproverRole(v))
	}
	return out
}

// SaveInvoice persists the invoice and its coding lines in one transaction.
func (r *PgxInvoiceRepository) SaveInvoice(ctx context.Context, invoice domain.Invoice, lines []domain.CodingLine) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := insertInvoice(ctx, tx, invoice); err != nil {
		return err
	}

	lineQuery := `
		INSERT INTO coding_lines (coding_line_id, invoice_id, budget_line_id, amount, memo)
		VALUES ($1, $2, $3, $4, $5);
	`
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(lineQuery, l.CodingLineID, l.InvoiceID, l.BudgetLineID, l.Amount, l.Memo)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert coding lines for invoice %s: %w", invoice.InvoiceID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit invoice %s: %w", invoice.InvoiceID, err)
	}
	return nil
}

func insertInvoice(ctx context.Context, tx pgx.Tx, invoice domain.Invoice) error {
	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22);
	`
	_, err := tx.Exec(ctx, query,
		invoice.InvoiceID,
		invoice.ContractID,
		invoice.ProjectID,
		invoice.VendorID,
		invoice.CurrencyCode,
		invoice.InvoiceNumber,
		invoice.Kind,
		invoice.Subtotal,
		invoice.Taxes,
		invoice.Retention,
		invoice.Witholdings,
		invoice.Total,
		invoice.NetPayable,
		invoice.PercentComplete,
		invoice.Status,
		invoice.ApprovalStatus,
		rolesToStrings(invoice.RequiredRoles),
		invoice.RequiredApprovals,
		invoice.CreatedAt,
		invoice.CreatedBy.String(),
		invoice.LastUpdatedAt,
		invoice.LastUpdatedBy.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("invoice %s already exists: %w", invoice.InvoiceID, apperrors.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert invoice %s: %w", invoice.InvoiceID, err)
	}
	return nil
}

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var invoice domain.Invoice
	var audit auditRow
	var roles []string
	err := row.Scan(
		&invoice.InvoiceID,
		&invoice.ContractID,
		&invoice.ProjectID,
		&invoice.VendorID,
		&invoice.CurrencyCode,
		&invoice.InvoiceNumber,
		&invoice.Kind,
		&invoice.Subtotal,
		&invoice.Taxes,
		&invoice.Retention,
		&invoice.Witholdings,
		&invoice.Total,
		&invoice.NetPayable,
		&invoice.PercentComplete,
		&invoice.Status,
		&invoice.ApprovalStatus,
		&roles,
		&invoice.RequiredApprovals,
		&invoice.CreatedAt,
		&audit.createdBy,
		&invoice.LastUpdatedAt,
		&audit.lastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	if err := audit.into(&invoice.AuditFields); err != nil {
		return nil, err
	}
	invoice.RequiredRoles = stringsToRoles(roles)
	return &invoice, nil
}

func (r *PgxInvoiceRepository) FindInvoiceByID(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE invoice_id = $1;`
	invoice, err := scanInvoice(r.pool.QueryRow(ctx, query, invoiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find invoice %s: %w", invoiceID, err)
	}
	return invoice, nil
}

func (r *PgxInvoiceRepository) FindCodingLinesByInvoice(ctx context.Context, invoiceID string) ([]domain.CodingLine, error) {
	query := `
		SELECT coding_line_id, invoice_id, budget_line_id, amount, memo
		FROM coding_lines
		WHERE invoice_id = $1
		ORDER BY coding_line_id;
	`
	rows, err := r.pool.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query coding lines for invoice %s: %w", invoiceID, err)
	}
	defer rows.Close()

	lines := []domain.CodingLine{}
	for rows.Next() {
		var l domain.CodingLine
		if err := rows.Scan(&l.CodingLineID, &l.InvoiceID, &l.BudgetLineID, &l.Amount, &l.Memo); err != nil {
			return nil, fmt.Errorf("failed to scan coding line row: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coding line rows: %w", err)
	}
	return lines, nil
}

// UpdateInvoiceStatus transitions the invoice guarded on its current status.
// A guard miss is ErrConflict, which is how duplicate approvals stay
// side-effect free.
func (r *PgxInvoiceRepository) UpdateInvoiceStatus(ctx context.Context, invoiceID string, from, to domain.InvoiceStatus, approval domain.ApprovalStatus, actor domain.Actor, at time.Time) error {
	query := `
		UPDATE invoices
		SET status = $3, approval_status = $4, last_updated_at = $5, last_updated_by = $6
		WHERE invoice_id = $1 AND status = $2;
	`
	tag, err := r.pool.Exec(ctx, query, invoiceID, from, to, approval, at, actor.String())
	if err != nil {
		return fmt.Errorf("failed to transition invoice %s: %w", invoiceID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if probeErr := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE invoice_id = $1);`, invoiceID).Scan(&exists); probeErr != nil {
			return fmt.Errorf("failed to probe invoice %s: %w", invoiceID, probeErr)
		}
		if !exists {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("invoice %s is not %s: %w", invoiceID, from, apperrors.ErrConflict)
	}
	return nil
}

// transitionInvoiceTx runs the guarded status update inside an existing
// transaction, with the same ErrNotFound/ErrConflict contract as
// UpdateInvoiceStatus.
func transitionInvoiceTx(ctx context.Context, tx pgx.Tx, invoiceID string, from, to domain.InvoiceStatus, approval domain.ApprovalStatus, actor domain.Actor, at time.Time) error {
	query := `
		UPDATE invoices
		SET status = $3, approval_status = $4, last_updated_at = $5, last_updated_by = $6
		WHERE invoice_id = $1 AND status = $2;
	`
	tag, err := tx.Exec(ctx, query, invoiceID, from, to, approval, at, actor.String())
	if err != nil {
		return fmt.Errorf("failed to transition invoice %s: %w", invoiceID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if probeErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE invoice_id = $1);`, invoiceID).Scan(&exists); probeErr != nil {
			return fmt.Errorf("failed to probe invoice %s: %w", invoiceID, probeErr)
		}
		if !exists {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("invoice %s is not %s: %w", invoiceID, from, apperrors.ErrConflict)
	}
	return nil
}

// ApproveInvoiceWithEncumbrance flips the invoice SUBMITTED->APPROVED and
// encumbers its total in one transaction. Insufficient committed funds roll
// the status flip back; a concurrent approval that already flipped the
// invoice surfaces as ErrConflict with no ledger effect.
func (r *PgxInvoiceRepository) ApproveInvoiceWithEncumbrance(ctx context.Context, invoiceID string, entry domain.LedgerEntry, actor domain.Actor, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := transitionInvoiceTx(ctx, tx, invoiceID, domain.InvoiceSubmitted, domain.InvoiceApproved, domain.ApprovalApproved, actor, at); err != nil {
		return err
	}
	if _, _, err := applyTransitionTx(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit approval of invoice %s: %w", invoiceID, err)
	}
	return nil
}

// MarkInvoicePaidWithDisbursement flips the invoice SCHEDULED->PAID and
// applies the payment's ledger entries (disbursement, retention hold) in one
// transaction.
func (r *PgxInvoiceRepository) MarkInvoicePaidWithDisbursement(ctx context.Context, invoiceID string, entries []domain.LedgerEntry, actor domain.Actor, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := transitionInvoiceTx(ctx, tx, invoiceID, domain.InvoiceScheduled, domain.InvoicePaid, domain.ApprovalApproved, actor, at); err != nil {
		return err
	}
	for _, entry := range entries {
		if _, _, err := applyTransitionTx(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit payment of invoice %s: %w", invoiceID, err)
	}
	return nil
}

func (r *PgxInvoiceRepository) UpdateInvoiceRouting(ctx context.Context, invoiceID string, roles []domain.ApproverRole, requiredApprovals int, actor domain.Actor, at time.Time) error {
	query := `
		UPDATE invoices
		SET required_roles = $2, required_approvals = $3, last_updated_at = $4, last_updated_by = $5
		WHERE invoice_id = $1;
	`
	tag, err := r.pool.Exec(ctx, query, invoiceID, rolesToStrings(roles), requiredApprovals, at, actor.String())
	if err != nil {
		return fmt.Errorf("failed to update routing for invoice %s: %w", invoiceID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *PgxInvoiceRepository) SaveDecision(ctx context.Context, decision domain.ApprovalDecision) error {
	query := `
		INSERT INTO approval_decisions (decision_id, invoice_id, approver_id, role, decision, comment, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := r.pool.Exec(ctx, query,
		decision.DecisionID,
		decision.InvoiceID,
		decision.ApproverID,
		decision.Role,
		decision.Decision,
		decision.Comment,
		decision.DecidedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("approver %s already decided invoice %s: %w", decision.ApproverID, decision.InvoiceID, apperrors.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert decision for invoice %s: %w", decision.InvoiceID, err)
	}
	return nil
}

func (r *PgxInvoiceRepository) FindDecisionsByInvoice(ctx context.Context, invoiceID string) ([]domain.ApprovalDecision, error) {
	query := `
		SELECT decision_id, invoice_id, approver_id, role, decision, comment, decided_at
		FROM approval_decisions
		WHERE invoice_id = $1
		ORDER BY decided_at;
	`
	rows, err := r.pool.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions for invoice %s: %w", invoiceID, err)
	}
	defer rows.Close()

	decisions := []domain.ApprovalDecision{}
	for rows.Next() {
		var d domain.ApprovalDecision
		if err := rows.Scan(&d.DecisionID, &d.InvoiceID, &d.ApproverID, &d.Role, &d.Decision, &d.Comment, &d.DecidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision row: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision rows: %w", err)
	}
	return decisions, nil
}

func (r *PgxInvoiceRepository) SumInvoicedByContract(ctx context.Context, contractID string, excludeInvoiceID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(total), 0)
		FROM invoices
		WHERE contract_id = $1 AND status <> $2 AND invoice_id <> $3;
	`
	var sum int64
	if err := r.pool.QueryRow(ctx, query, contractID, domain.InvoiceRejected, excludeInvoiceID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum invoices for contract %s: %w", contractID, err)
	}
	return sum, nil
}

// FindPaidRetentionByProject returns paid standard invoices whose retention
// is still held. retention_released is flipped inside the passing-attestation
// transaction, so an invoice never contributes to two releases.
func (r *PgxInvoiceRepository) FindPaidRetentionByProject(ctx context.Context, projectID string) ([]domain.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE project_id = $1 AND status = $2 AND kind = $3 AND retention > 0 AND NOT retention_released
		ORDER BY created_at, invoice_id;
	`
	rows, err := r.pool.Query(ctx, query, projectID, domain.InvoicePaid, domain.InvoiceKindStandard)
	if err != nil {
		return nil, fmt.Errorf("failed to query held retention for project %s: %w", projectID, err)
	}
	defer rows.Close()

	invoices := []domain.Invoice{}
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice row: %w", err)
		}
		invoices = append(invoices, *invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice rows: %w", err)
	}
	return invoices, nil
}

// SaveApprovalMatrix upserts the project's routing table. Bands persist as a
// JSONB document; they are read and replaced wholesale, never row by row.
func (r *PgxInvoiceRepository) SaveApprovalMatrix(ctx context.Context, matrix domain.ApprovalMatrix) error {
	bands, err := json.Marshal(matrix.Bands)
	if err != nil {
		return fmt.Errorf("failed to marshal approval bands: %w", err)
	}
	query := `
		INSERT INTO approval_matrices (project_id, bands, created_at, created_by, last_updated_at, last_updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id) DO UPDATE
		SET bands = EXCLUDED.bands, last_updated_at = EXCLUDED.last_updated_at, last_updated_by = EXCLUDED.last_updated_by;
	`
	_, err = r.pool.Exec(ctx, query,
		matrix.ProjectID,
		bands,
		matrix.CreatedAt,
		matrix.CreatedBy.String(),
		matrix.LastUpdatedAt,
		matrix.LastUpdatedBy.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert approval matrix for project %s: %w", matrix.ProjectID, err)
	}
	return nil
}

func (r *PgxInvoiceRepository) FindApprovalMatrix(ctx context.Context, projectID string) (*domain.ApprovalMatrix, error) {
	query := `
		SELECT project_id, bands, created_at, created_by, last_updated_at, last_updated_by
		FROM approval_matrices
		WHERE project_id = $1;
	`
	var matrix domain.ApprovalMatrix
	var audit auditRow
	var bands []byte
	err := r.pool.QueryRow(ctx, query, projectID).Scan(
		&matrix.ProjectID,
		&bands,
		&matrix.CreatedAt,
		&audit.createdBy,
		&matrix.LastUpdatedAt,
		&audit.lastUpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find approval matrix for project %s: %w", projectID, err)
	}
	if err := audit.into(&matrix.AuditFields); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(bands, &matrix.Bands); err != nil {
		return nil, fmt.Errorf("failed to unmarshal approval bands for project %s: %w", projectID, err)
	}
	return &matrix, nil
}
