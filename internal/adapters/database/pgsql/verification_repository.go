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

type PgxVerificationRepository struct {
	pool *pgxpool.Pool
}

// NewPgxVerificationRepository creates a new repository for verification
// gates and attestations.
func NewPgxVerificationRepository(pool *pgxpool.Pool) repositories.VerificationRepositoryFacade {
	return &PgxVerificationRepository{pool: pool}
}

var _ repositories.VerificationRepositoryFacade = (*PgxVerificationRepository)(nil)

func (r *PgxVerificationRepository) SaveGate(ctx context.Context, gate domain.VerificationGate) error {
	criteria, err := json.Marshal(gate.Criteria)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria for gate %s: %w", gate.GateID, err)
	}
	query := `
		INSERT INTO verification_gates (gate_id, project_id, token_id, method, status, criteria, created_at, created_by, last_updated_at, last_updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	_, err = r.pool.Exec(ctx, query,
		gate.GateID,
		gate.ProjectID,
		gate.TokenID,
		gate.Method,
		gate.Status,
		criteria,
		gate.CreatedAt,
		gate.CreatedBy.String(),
		gate.LastUpdatedAt,
		gate.LastUpdatedBy.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("gate %s already exists: %w", gate.GateID, apperrors.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert gate %s: %w", gate.GateID, err)
	}
	return nil
}

func (r *PgxVerificationRepository) FindGateByID(ctx context.Context, gateID string) (*domain.VerificationGate, error) {
	query := `
		SELECT gate_id, project_id, token_id, method, status, criteria, created_at, created_by, last_updated_at, last_updated_by
		FROM verification_gates
		WHERE gate_id = $1;
	`
	var gate domain.VerificationGate
	var audit auditRow
	var criteria []byte
	err := r.pool.QueryRow(ctx, query, gateID).Scan(
		&gate.GateID,
		&gate.ProjectID,
		&gate.TokenID,
		&gate.Method,
		&gate.Status,
		&criteria,
		&gate.CreatedAt,
		&audit.createdBy,
		&gate.LastUpdatedAt,
		&audit.lastUpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find gate %s: %w", gateID, err)
	}
	if err := audit.into(&gate.AuditFields); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(criteria, &gate.Criteria); err != nil {
		return nil, fmt.Errorf("failed to unmarshal criteria for gate %s: %w", gateID, err)
	}
	return &gate, nil
}

func scanAttestations(rows pgx.Rows) ([]domain.VerificationAttestation, error) {
	defer rows.Close()
	atts := []domain.VerificationAttestation{}
	for rows.Next() {
		var a domain.VerificationAttestation
		if err := rows.Scan(&a.AttestationID, &a.GateID, &a.AttestorID, &a.Passed, &a.Notes, &a.AttestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attestation row: %w", err)
		}
		atts = append(atts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attestation rows: %w", err)
	}
	return atts, nil
}

func (r *PgxVerificationRepository) FindAttestationsByGate(ctx context.Context, gateID string) ([]domain.VerificationAttestation, error) {
	query := `
		SELECT attestation_id, gate_id, attestor_id, passed, notes, attested_at
		FROM verification_attestations
		WHERE gate_id = $1
		ORDER BY attested_at;
	`
	rows, err := r.pool.Query(ctx, query, gateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attestations for gate %s: %w", gateID, err)
	}
	return scanAttestations(rows)
}

func (r *PgxVerificationRepository) FindAttestationsByProject(ctx context.Context, projectID string) ([]domain.VerificationAttestation, error) {
	query := `
		SELECT a.attestation_id, a.gate_id, a.attestor_id, a.passed, a.notes, a.attested_at
		FROM verification_attestations a
		JOIN verification_gates g ON g.gate_id = a.gate_id
		WHERE g.project_id = $1
		ORDER BY a.attested_at;
	`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attestations for project %s: %w", projectID, err)
	}
	return scanAttestations(rows)
}

func insertAttestation(ctx context.Context, tx pgx.Tx, att domain.VerificationAttestation) error {
	query := `
		INSERT INTO verification_attestations (attestation_id, gate_id, attestor_id, passed, notes, attested_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	if _, err := tx.Exec(ctx, query, att.AttestationID, att.GateID, att.AttestorID, att.Passed, att.Notes, att.AttestedAt); err != nil {
		return fmt.Errorf("failed to insert attestation %s: %w", att.AttestationID, err)
	}
	return nil
}

// transitionGate flips the gate out of PENDING, guarded so a terminal gate
// can never be re-decided.
func transitionGate(ctx context.Context, tx pgx.Tx, gateID string, to domain.GateStatus, actor domain.Actor, at time.Time) error {
	query := `
		UPDATE verification_gates
		SET status = $2, last_updated_at = $3, last_updated_by = $4
		WHERE gate_id = $1 AND status = $5;
	`
	tag, err := tx.Exec(ctx, query, gateID, to, at, actor.String(), domain.GatePending)
	if err != nil {
		return fmt.Errorf("failed to transition gate %s: %w", gateID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("gate %s is not pending: %w", gateID, apperrors.ErrConflict)
	}
	return nil
}

// SaveFailedAttestation records the attestation and fails the gate in one
// transaction. No fund movement.
func (r *PgxVerificationRepository) SaveFailedAttestation(ctx context.Context, att domain.VerificationAttestation, actor domain.Actor, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := insertAttestation(ctx, tx, att); err != nil {
		return err
	}
	if err := transitionGate(ctx, tx, att.GateID, domain.GateFailed, actor, at); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit failed attestation for gate %s: %w", att.GateID, err)
	}
	return nil
}

// SavePassedAttestation records the attestation, passes the gate and, when a
// release was computed, inserts the retention-release invoice, applies its
// RELEASE ledger transition and marks the contributing invoices' retention as
// released. Everything rides in one transaction: a failure anywhere leaves no
// trace of the attestation.
func (r *PgxVerificationRepository) SavePassedAttestation(ctx context.Context, att domain.VerificationAttestation, releaseInvoice *domain.Invoice, releaseEntry *domain.LedgerEntry, actor domain.Actor, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := insertAttestation(ctx, tx, att); err != nil {
		return err
	}
	if err := transitionGate(ctx, tx, att.GateID, domain.GatePassed, actor, at); err != nil {
		return err
	}

	if releaseInvoice != nil && releaseEntry != nil {
		if err := insertInvoice(ctx, tx, *releaseInvoice); err != nil {
			return err
		}
		if _, _, err := applyTransitionTx(ctx, tx, *releaseEntry); err != nil {
			return err
		}
		clearQuery := `
			UPDATE invoices
			SET retention_released = TRUE, last_updated_at = $2, last_updated_by = $3
			WHERE project_id = $1 AND status = $4 AND kind = $5 AND retention > 0 AND NOT retention_released;
		`
		if _, err := tx.Exec(ctx, clearQuery, releaseInvoice.ProjectID, at, actor.String(), domain.InvoicePaid, domain.InvoiceKindStandard); err != nil {
			return fmt.Errorf("failed to mark retention released for project %s: %w", releaseInvoice.ProjectID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit passing attestation for gate %s: %w", att.GateID, err)
	}
	return nil
}
