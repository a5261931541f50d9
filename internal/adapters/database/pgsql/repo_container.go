package pgsql

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenledger-io/greenledger_backend/internal/core/ports/repositories"
)

// NewRepositoryProvider wires all pgx-backed repositories over one pool.
func NewRepositoryProvider(pool *pgxpool.Pool) *repositories.RepositoryProvider {
	return &repositories.RepositoryProvider{
		LedgerRepo:       NewPgxLedgerRepository(pool),
		ContractRepo:     NewPgxContractRepository(pool),
		InvoiceRepo:      NewPgxInvoiceRepository(pool),
		VendorRepo:       NewPgxVendorRepository(pool),
		VerificationRepo: NewPgxVerificationRepository(pool),
		FinanceLoopRepo:  NewPgxFinanceLoopRepository(pool),
		RoleRepo:         NewPgxRoleRepository(pool),
	}
}
