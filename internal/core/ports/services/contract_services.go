package services

import (
	"context"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	"github.com/greenledger-io/greenledger_backend/internal/dto"
)

// ContractSvcFacade drives the contract lifecycle, budget allocation and
// change orders.
type ContractSvcFacade interface {
	CreateContract(ctx context.Context, req dto.CreateContractRequest, actor domain.Actor) (*domain.Contract, error)
	GetContract(ctx context.Context, contractID string) (*domain.Contract, error)
	SubmitContract(ctx context.Context, contractID string, actor domain.Actor) (*domain.Contract, error)
	// ApproveContract authorizes the contract and commits its current
	// amount against the funding bucket via the ledger.
	ApproveContract(ctx context.Context, contractID string, actor domain.Actor) (*domain.Contract, error)
	SignContract(ctx context.Context, contractID string, actor domain.Actor) (*domain.Contract, error)

	CreateBudgetLine(ctx context.Context, req dto.CreateBudgetLineRequest, actor domain.Actor) (*domain.BudgetLine, error)
	// AllocateBudget validates the requested allocations (existence,
	// headroom, duplicates, percentage sum) and atomically replaces the
	// contract's allocation set. Percentage-sum mismatch is a warning.
	AllocateBudget(ctx context.Context, contractID string, req dto.AllocateBudgetRequest, actor domain.Actor) (*domain.ValidationResult, error)
	ListAllocations(ctx context.Context, contractID string) ([]domain.BudgetAllocation, error)

	CreateChangeOrder(ctx context.Context, contractID string, req dto.CreateChangeOrderRequest, actor domain.Actor) (*domain.ChangeOrder, error)
	// CalculateImpact computes the floor-per-line proportional allocation
	// impact with the unallocated remainder reported explicitly.
	CalculateImpact(ctx context.Context, changeOrderID string) (*domain.ChangeOrderImpact, error)
	ApproveChangeOrder(ctx context.Context, changeOrderID string, actor domain.Actor) (*domain.ChangeOrder, error)
	RejectChangeOrder(ctx context.Context, changeOrderID string, actor domain.Actor) (*domain.ChangeOrder, error)
}
