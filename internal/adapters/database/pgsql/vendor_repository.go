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

type PgxVendorRepository struct {
	pool *pgxpool.Pool
}

// NewPgxVendorRepository creates a new repository for the vendor registry.
func NewPgxVendorRepository(pool *pgxpool.Pool) repositories.VendorRepositoryFacade {
	return &PgxVendorRepository{pool: pool}
}

var _ repositories.VendorRepositoryFacade = (*PgxVendorRepository)(nil)

const vendorColumns = `vendor_id, name, status, kyc_status, eligible_1099, paid_year_to_date, created_at, created_by, last_updated_at, last_updated_by`

func (r *PgxVendorRepository) SaveVendor(ctx context.Context, vendor domain.Vendor) error {
	query := `
		INSERT INTO vendors (` + vendorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (vendor_id) DO UPDATE
		SET name = EXCLUDED.name, status = EXCLUDED.status, kyc_status = EXCLUDED.kyc_status,
		    eligible_1099 = EXCLUDED.eligible_1099,
		    last_updated_at = EXCLUDED.last_updated_at, last_updated_by = EXCLUDED.last_updated_by;
	`
	_, err := r.pool.Exec(ctx, query,
		vendor.VendorID,
		vendor.Name,
		vendor.Status,
		vendor.KYCStatus,
		vendor.Eligible1099,
		vendor.PaidYearToDate,
		vendor.CreatedAt,
		vendor.CreatedBy.String(),
		vendor.LastUpdatedAt,
		vendor.LastUpdatedBy.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save vendor %s: %w", vendor.VendorID, err)
	}
	return nil
}

func (r *PgxVendorRepository) FindVendorByID(ctx context.Context, vendorID string) (*domain.Vendor, error) {
	query := `SELECT ` + vendorColumns + ` FROM vendors WHERE vendor_id = $1;`
	var vendor domain.Vendor
	var audit auditRow
	err := r.pool.QueryRow(ctx, query, vendorID).Scan(
		&vendor.VendorID,
		&vendor.Name,
		&vendor.Status,
		&vendor.KYCStatus,
		&vendor.Eligible1099,
		&vendor.PaidYearToDate,
		&vendor.CreatedAt,
		&audit.createdBy,
		&vendor.LastUpdatedAt,
		&audit.lastUpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find vendor %s: %w", vendorID, err)
	}
	if err := audit.into(&vendor.AuditFields); err != nil {
		return nil, err
	}
	return &vendor, nil
}

// AddVendorPayment accumulates the year-to-date paid total consulted for
// 1099 reporting.
func (r *PgxVendorRepository) AddVendorPayment(ctx context.Context, vendorID string, amount int64, at time.Time) error {
	query := `
		UPDATE vendors
		SET paid_year_to_date = paid_year_to_date + $2, last_updated_at = $3
		WHERE vendor_id = $1;
	`
	tag, err := r.pool.Exec(ctx, query, vendorID, amount, at)
	if err != nil {
		return fmt.Errorf("failed to record payment for vendor %s: %w", vendorID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
