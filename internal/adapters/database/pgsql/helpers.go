package pgsql

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
)

// pgUniqueViolation is the PostgreSQL error code for unique-constraint
// violations.
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// balanceColumn maps a bucket partition to its column. Only known partitions
// map; EXTERNAL has no column and callers must skip that side of a transition.
func balanceColumn(kind domain.BalanceKind) (string, error) {
	switch kind {
	case domain.BalanceAvailable:
		return "available", nil
	case domain.BalanceCommitted:
		return "committed", nil
	case domain.BalanceEncumbered:
		return "encumbered", nil
	case domain.BalanceDisbursed:
		return "disbursed", nil
	case domain.BalanceReserved:
		return "reserved", nil
	default:
		return "", fmt.Errorf("balance kind %q has no column", kind)
	}
}

// auditRow is the scan target for the four audit columns. Actors persist in
// their compact string form.
type auditRow struct {
	createdBy     string
	lastUpdatedBy string
}

func (a *auditRow) into(fields *domain.AuditFields) error {
	createdBy, err := domain.ParseActor(a.createdBy)
	if err != nil {
		return fmt.Errorf("malformed created_by: %w", err)
	}
	lastUpdatedBy, err := domain.ParseActor(a.lastUpdatedBy)
	if err != nil {
		return fmt.Errorf("malformed last_updated_by: %w", err)
	}
	fields.CreatedBy = createdBy
	fields.LastUpdatedBy = lastUpdatedBy
	return nil
}
