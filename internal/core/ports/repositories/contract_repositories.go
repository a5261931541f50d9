package repositories

import (
	"context"
	"time"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
)

// ContractRepositoryFacade defines persistence for contracts, budget lines,
// budget allocations and change orders.
type ContractRepositoryFacade interface {
	SaveContract(ctx context.Context, contract domain.Contract) error
	FindContractByID(ctx context.Context, contractID string) (*domain.Contract, error)
	UpdateContractStatus(ctx context.Context, contractID string, status domain.ContractStatus, approval domain.ApprovalStatus, actor domain.Actor, at time.Time) error

	// ApproveContractWithCommit transitions the contract
	// PENDING_APPROVAL->APPROVED and applies the COMMIT ledger entry in one
	// transaction, so a failed budget commit leaves the contract pending. A
	// guard miss on the status is ErrConflict.
	ApproveContractWithCommit(ctx context.Context, contractID string, entry domain.LedgerEntry, actor domain.Actor, at time.Time) error

	SaveBudgetLine(ctx context.Context, line domain.BudgetLine) error
	FindBudgetLineByID(ctx context.Context, budgetLineID string) (*domain.BudgetLine, error)
	FindBudgetLinesByIDs(ctx context.Context, budgetLineIDs []string) (map[string]domain.BudgetLine, error)

	// ReplaceAllocations atomically deletes the contract's prior
	// allocations, reverses their committed amounts on the affected budget
	// lines, inserts the new set and increments committed amounts, in one
	// storage transaction.
	ReplaceAllocations(ctx context.Context, contractID string, allocations []domain.BudgetAllocation) error
	FindAllocationsByContract(ctx context.Context, contractID string) ([]domain.BudgetAllocation, error)

	SaveChangeOrder(ctx context.Context, co domain.ChangeOrder) error
	FindChangeOrderByID(ctx context.Context, changeOrderID string) (*domain.ChangeOrder, error)
	UpdateChangeOrderStatus(ctx context.Context, changeOrderID string, status domain.ChangeOrderStatus, approval domain.ApprovalStatus, actor domain.Actor, at time.Time) error

	SaveChangeOrderApproval(ctx context.Context, approval domain.ChangeOrderApproval) error
	FindChangeOrderApprovals(ctx context.Context, changeOrderID string) ([]domain.ChangeOrderApproval, error)

	// ApplyChangeOrder approves the change order and moves the contract
	// amount to newTotal in one transaction, guarded on the contract still
	// being at expectedCurrent (optimistic check; a lost race surfaces as
	// ErrConflict). Allocation amounts are shifted by the given impacts, and
	// when entry is non-nil its ledger transition rides in the same
	// transaction, keeping the bucket's committed balance in step with the
	// contract amount. Schedule-only change orders pass a nil entry.
	ApplyChangeOrder(ctx context.Context, co domain.ChangeOrder, expectedCurrent int64, impacts []domain.AllocationImpact, entry *domain.LedgerEntry, actor domain.Actor, at time.Time) error
}

// RoleRepositoryFacade resolves a user's approver roles within a project.
type RoleRepositoryFacade interface {
	FindProjectRoles(ctx context.Context, userID, projectID string) ([]domain.ApproverRole, error)
}
