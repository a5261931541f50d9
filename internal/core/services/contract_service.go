package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/greenledger-io/greenledger_backend/internal/apperrors"
	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	portsrepo "github.com/greenledger-io/greenledger_backend/internal/core/ports/repositories"
	portssvc "github.com/greenledger-io/greenledger_backend/internal/core/ports/services"
	"github.com/greenledger-io/greenledger_backend/internal/dto"
	"github.com/greenledger-io/greenledger_backend/internal/middleware"
)

var (
	ErrNotToExceedBreached  = errors.New("contract amount would exceed not-to-exceed cap")
	ErrContractNotSigned    = errors.New("contract must be signed")
	ErrInvalidTransition    = errors.New("invalid lifecycle transition")
	ErrChangeOrderStale     = errors.New("contract amount moved since change order was created")
	ErrRoleNotHeld          = errors.New("approver does not hold a required role")
	ErrSystemActorForbidden = errors.New("operation requires a user actor")
)

// contractService drives the contract lifecycle, budget allocation and
// change orders. Ledger movements ride inside the repository's composite
// writes so a contract status never advances without its fund movement.
type contractService struct {
	contractRepo portsrepo.ContractRepositoryFacade
	authorizer   portssvc.AuthorizerSvc
	thresholds   domain.ApprovalThresholds
}

// NewContractService creates a new contract service.
func NewContractService(contractRepo portsrepo.ContractRepositoryFacade, authorizer portssvc.AuthorizerSvc, thresholds domain.ApprovalThresholds) portssvc.ContractSvcFacade {
	return &contractService{
		contractRepo: contractRepo,
		authorizer:   authorizer,
		thresholds:   thresholds,
	}
}

var _ portssvc.ContractSvcFacade = (*contractService)(nil)

func (s *contractService) CreateContract(ctx context.Context, req dto.CreateContractRequest, actor domain.Actor) (*domain.Contract, error) {
	if req.OriginalAmount > req.NotToExceed {
		return nil, fmt.Errorf("%w: original amount %d exceeds not-to-exceed %d", apperrors.ErrValidation, req.OriginalAmount, req.NotToExceed)
	}

	now := time.Now().UTC()
	contract := domain.Contract{
		ContractID:       uuid.NewString(),
		ProjectID:        req.ProjectID,
		VendorID:         req.VendorID,
		FundingBucketID:  req.FundingBucketID,
		CurrencyCode:     req.CurrencyCode,
		OriginalAmount:   req.OriginalAmount,
		CurrentAmount:    req.OriginalAmount,
		NotToExceed:      req.NotToExceed,
		RetentionPercent: req.RetentionPercent,
		Status:           domain.ContractDraft,
		ApprovalStatus:   domain.ApprovalPending,
		Title:            req.Title,
	}
	contract.Touch(actor, now)

	if err := s.contractRepo.SaveContract(ctx, contract); err != nil {
		return nil, fmt.Errorf("failed to save contract: %w", err)
	}

	middleware.GetLoggerFromCtx(ctx).Info("Contract created",
		slog.String("contract_id", contract.ContractID), slog.String("project_id", contract.ProjectID))
	return &contract, nil
}

func (s *contractService) GetContract(ctx context.Context, contractID string) (*domain.Contract, error) {
	return s.contractRepo.FindContractByID(ctx, contractID)
}

func (s *contractService) SubmitContract(ctx context.Context, contractID string, actor domain.Actor) (*domain.Contract, error) {
	return s.transitionContract(ctx, contractID, domain.ContractDraft, domain.ContractPendingApproval, domain.ApprovalPending, actor)
}

// ApproveContract is a single-step authorization: no multi-party matrix at
// the contract level. Approval commits the contract's current amount against
// its funding bucket in the same storage transaction as the status flip, so
// an insufficient available balance leaves the contract pending.
func (s *contractService) ApproveContract(ctx context.Context, contractID string, actor domain.Actor) (*domain.Contract, error) {
	contract, err := s.contractRepo.FindContractByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != domain.ContractPendingApproval {
		return nil, fmt.Errorf("%w: contract %s is %s, expected %s", ErrInvalidTransition, contractID, contract.Status, domain.ContractPendingApproval)
	}

	now := time.Now().UTC()
	entry, err := buildEntry(domain.EntryCommit, contract.FundingBucketID, contract.CurrencyCode,
		domain.BalanceAvailable, domain.BalanceCommitted,
		domain.RefContract, contract.ContractID, contract.CurrentAmount, actor, now)
	if err != nil {
		return nil, err
	}

	if err := s.contractRepo.ApproveContractWithCommit(ctx, contractID, entry, actor, now); err != nil {
		return nil, fmt.Errorf("budget commit for contract %s failed: %w", contractID, err)
	}
	contract.Status = domain.ContractApproved
	contract.ApprovalStatus = domain.ApprovalApproved
	contract.Touch(actor, now)

	middleware.GetLoggerFromCtx(ctx).Info("Contract approved",
		slog.String("contract_id", contractID),
		slog.Int64("committed", contract.CurrentAmount))
	return contract, nil
}

func (s *contractService) SignContract(ctx context.Context, contractID string, actor domain.Actor) (*domain.Contract, error) {
	return s.transitionContract(ctx, contractID, domain.ContractApproved, domain.ContractSigned, domain.ApprovalApproved, actor)
}

func (s *contractService) transitionContract(ctx context.Context, contractID string, from, to domain.ContractStatus, approval domain.ApprovalStatus, actor domain.Actor) (*domain.Contract, error) {
	contract, err := s.contractRepo.FindContractByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != from {
		return nil, fmt.Errorf("%w: contract %s is %s, expected %s", ErrInvalidTransition, contractID, contract.Status, from)
	}

	now := time.Now().UTC()
	if err := s.contractRepo.UpdateContractStatus(ctx, contractID, to, approval, actor, now); err != nil {
		return nil, err
	}
	contract.Status = to
	contract.ApprovalStatus = approval
	contract.Touch(actor, now)

	middleware.GetLoggerFromCtx(ctx).Info("Contract transitioned",
		slog.String("contract_id", contractID), slog.String("status", string(to)))
	return contract, nil
}

func (s *contractService) CreateBudgetLine(ctx context.Context, req dto.CreateBudgetLineRequest, actor domain.Actor) (*domain.BudgetLine, error) {
	now := time.Now().UTC()
	line := domain.BudgetLine{
		BudgetLineID:  uuid.NewString(),
		ProjectID:     req.ProjectID,
		Code:          req.Code,
		Description:   req.Description,
		RevisedBudget: req.RevisedBudget,
	}
	line.Touch(actor, now)
	if err := s.contractRepo.SaveBudgetLine(ctx, line); err != nil {
		return nil, fmt.Errorf("failed to save budget line: %w", err)
	}
	return &line, nil
}

// AllocateBudget validates the requested allocations and, when valid,
// atomically replaces the contract's allocation set. Validation order:
// line existence, headroom, duplicates, percentage sum (warning only).
func (s *contractService) AllocateBudget(ctx context.Context, contractID string, req dto.AllocateBudgetRequest, actor domain.Actor) (*domain.ValidationResult, error) {
	contract, err := s.contractRepo.FindContractByID(ctx, contractID)
	if err != nil {
		return nil, err
	}

	result := &domain.ValidationResult{Valid: true}

	lineIDs := make([]string, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		lineIDs = append(lineIDs, a.BudgetLineID)
	}
	lines, err := s.contractRepo.FindBudgetLinesByIDs(ctx, lineIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load budget lines: %w", err)
	}

	// Prior allocations for this contract free their committed amounts
	// when replaced; count that headroom back in.
	prior, err := s.contractRepo.FindAllocationsByContract(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior allocations: %w", err)
	}
	priorByLine := make(map[string]int64, len(prior))
	for _, p := range prior {
		priorByLine[p.BudgetLineID] += p.Amount
	}

	seen := make(map[string]bool, len(req.Allocations))
	percentSum := int64(0)
	percentSupplied := false
	for _, a := range req.Allocations {
		line, ok := lines[a.BudgetLineID]
		if !ok {
			result.AddError(fmt.Sprintf("budget line %s does not exist", a.BudgetLineID))
			continue
		}
		headroom := line.Headroom() + priorByLine[a.BudgetLineID]
		if a.Amount > headroom {
			result.AddError(fmt.Sprintf("allocation %d to line %s exceeds remaining budget %d", a.Amount, line.Code, headroom))
		}
		if seen[a.BudgetLineID] {
			result.AddError(fmt.Sprintf("budget line %s targeted more than once", a.BudgetLineID))
		}
		seen[a.BudgetLineID] = true
		if a.Percent > 0 {
			percentSupplied = true
		}
		percentSum += a.Percent
	}
	if percentSupplied && percentSum != 100 {
		result.AddWarning(fmt.Sprintf("allocation percentages sum to %d, not 100", percentSum))
	}

	if !result.Valid {
		return result, nil
	}

	now := time.Now().UTC()
	allocations := make([]domain.BudgetAllocation, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		alloc := domain.BudgetAllocation{
			AllocationID: uuid.NewString(),
			ContractID:   contract.ContractID,
			BudgetLineID: a.BudgetLineID,
			Amount:       a.Amount,
			Percent:      a.Percent,
		}
		alloc.Touch(actor, now)
		allocations = append(allocations, alloc)
	}

	if err := s.contractRepo.ReplaceAllocations(ctx, contractID, allocations); err != nil {
		return nil, fmt.Errorf("failed to replace allocations: %w", err)
	}

	middleware.GetLoggerFromCtx(ctx).Info("Budget allocated",
		slog.String("contract_id", contractID), slog.Int("allocations", len(allocations)))
	return result, nil
}

func (s *contractService) ListAllocations(ctx context.Context, contractID string) ([]domain.BudgetAllocation, error) {
	return s.contractRepo.FindAllocationsByContract(ctx, contractID)
}

func (s *contractService) CreateChangeOrder(ctx context.Context, contractID string, req dto.CreateChangeOrderRequest, actor domain.Actor) (*domain.ChangeOrder, error) {
	contract, err := s.contractRepo.FindContractByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if req.DeltaAmount == 0 && req.DeltaTimeDays == 0 {
		return nil, fmt.Errorf("%w: change order must alter amount or schedule", apperrors.ErrValidation)
	}

	newTotal := contract.CurrentAmount + req.DeltaAmount
	if newTotal > contract.NotToExceed {
		return nil, fmt.Errorf("%w: new total %d against cap %d", ErrNotToExceedBreached, newTotal, contract.NotToExceed)
	}
	if newTotal < 0 {
		return nil, fmt.Errorf("%w: change order would drive contract amount negative", apperrors.ErrValidation)
	}

	now := time.Now().UTC()
	co := domain.ChangeOrder{
		ChangeOrderID:    uuid.NewString(),
		ContractID:       contractID,
		DeltaAmount:      req.DeltaAmount,
		DeltaTimeDays:    req.DeltaTimeDays,
		NewContractTotal: newTotal,
		Reason:           req.Reason,
		Status:           domain.ChangeOrderPendingApproval,
		ApprovalStatus:   domain.ApprovalPending,
	}
	co.Touch(actor, now)

	if err := s.contractRepo.SaveChangeOrder(ctx, co); err != nil {
		return nil, fmt.Errorf("failed to save change order: %w", err)
	}

	middleware.GetLoggerFromCtx(ctx).Info("Change order created",
		slog.String("change_order_id", co.ChangeOrderID),
		slog.String("contract_id", contractID),
		slog.Int64("delta", req.DeltaAmount))
	return &co, nil
}

// CalculateImpact is the proportional allocation of a change-order delta
// across the contract's existing budget allocations. Each line is floored
// toward zero; the flooring remainder is reported, not folded into any line.
func (s *contractService) CalculateImpact(ctx context.Context, changeOrderID string) (*domain.ChangeOrderImpact, error) {
	co, err := s.contractRepo.FindChangeOrderByID(ctx, changeOrderID)
	if err != nil {
		return nil, err
	}
	contract, err := s.contractRepo.FindContractByID(ctx, co.ContractID)
	if err != nil {
		return nil, err
	}
	allocations, err := s.contractRepo.FindAllocationsByContract(ctx, co.ContractID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations: %w", err)
	}

	impact := &domain.ChangeOrderImpact{
		ChangeOrderID: changeOrderID,
		DeltaAmount:   co.DeltaAmount,
		RequiredRoles: s.thresholds.RolesFor(co.DeltaAmount),
	}

	for _, alloc := range allocations {
		share, err := domain.ProportionalShare(co.DeltaAmount, alloc.Amount, contract.CurrentAmount)
		if err != nil {
			return nil, err
		}
		impact.Lines = append(impact.Lines, domain.AllocationImpact{
			AllocationID:    alloc.AllocationID,
			BudgetLineID:    alloc.BudgetLineID,
			CurrentAmount:   alloc.Amount,
			DeltaAllocation: share,
			NewAmount:       alloc.Amount + share,
		})
		impact.AllocatedSum += share
	}
	impact.Remainder = co.DeltaAmount - impact.AllocatedSum
	return impact, nil
}

// ApproveChangeOrder records the acting user's sign-off and, once every
// required role has signed, re-validates the change order optimistically and
// implements it. The contract amount is re-checked at approval time because
// other change orders may have landed since creation.
func (s *contractService) ApproveChangeOrder(ctx context.Context, changeOrderID string, actor domain.Actor) (*domain.ChangeOrder, error) {
	if actor.IsSystem() {
		return nil, ErrSystemActorForbidden
	}

	co, err := s.contractRepo.FindChangeOrderByID(ctx, changeOrderID)
	if err != nil {
		return nil, err
	}
	if co.Status == domain.ChangeOrderApproved {
		// Idempotent: already implemented, nothing to redo.
		return co, nil
	}
	if co.Status != domain.ChangeOrderPendingApproval {
		return nil, fmt.Errorf("%w: change order %s is %s", ErrInvalidTransition, changeOrderID, co.Status)
	}

	contract, err := s.contractRepo.FindContractByID(ctx, co.ContractID)
	if err != nil {
		return nil, err
	}

	requiredRoles := s.thresholds.RolesFor(co.DeltaAmount)
	actorRoles, err := s.authorizer.RolesFor(ctx, actor.UserID, contract.ProjectID)
	if err != nil {
		return nil, err
	}

	prior, err := s.contractRepo.FindChangeOrderApprovals(ctx, changeOrderID)
	if err != nil {
		return nil, err
	}
	signed := make(map[domain.ApproverRole]bool, len(prior))
	for _, p := range prior {
		signed[p.Role] = true
	}

	now := time.Now().UTC()
	recorded := false
	for _, role := range requiredRoles {
		if signed[role] || !hasRole(actorRoles, role) {
			continue
		}
		approval := domain.ChangeOrderApproval{
			ApprovalID:    uuid.NewString(),
			ChangeOrderID: changeOrderID,
			ApproverID:    actor.UserID,
			Role:          role,
			DecidedAt:     now,
		}
		if err := s.contractRepo.SaveChangeOrderApproval(ctx, approval); err != nil {
			return nil, err
		}
		signed[role] = true
		recorded = true
	}
	if !recorded {
		return nil, fmt.Errorf("%w: user %s holds none of the outstanding roles for change order %s", ErrRoleNotHeld, actor.UserID, changeOrderID)
	}

	for _, role := range requiredRoles {
		if !signed[role] {
			// Not all tiers have signed yet; stay pending.
			return co, nil
		}
	}

	// All required roles signed: optimistic re-validation before applying.
	expected := contract.CurrentAmount + co.DeltaAmount
	if expected != co.NewContractTotal {
		return nil, fmt.Errorf("%w: expected total %d, change order carries %d", ErrChangeOrderStale, expected, co.NewContractTotal)
	}
	if expected > contract.NotToExceed {
		return nil, fmt.Errorf("%w: new total %d against cap %d", ErrNotToExceedBreached, expected, contract.NotToExceed)
	}

	impact, err := s.CalculateImpact(ctx, changeOrderID)
	if err != nil {
		return nil, err
	}

	// The committed balance moves with the contract amount, inside the
	// same transaction as the change-order implementation.
	var entry *domain.LedgerEntry
	if co.DeltaAmount != 0 {
		entryType := domain.EntryCommit
		from, to := domain.BalanceAvailable, domain.BalanceCommitted
		amount := co.DeltaAmount
		if co.DeltaAmount < 0 {
			entryType = domain.EntryRelease
			from, to = domain.BalanceCommitted, domain.BalanceAvailable
			amount = -co.DeltaAmount
		}
		built, err := buildEntry(entryType, contract.FundingBucketID, contract.CurrencyCode,
			from, to, domain.RefChangeOrder, co.ChangeOrderID, amount, actor, now)
		if err != nil {
			return nil, err
		}
		entry = &built
	}

	if err := s.contractRepo.ApplyChangeOrder(ctx, *co, contract.CurrentAmount, impact.Lines, entry, actor, now); err != nil {
		return nil, err
	}

	co.Status = domain.ChangeOrderApproved
	co.ApprovalStatus = domain.ApprovalApproved
	co.Touch(actor, now)

	middleware.GetLoggerFromCtx(ctx).Info("Change order implemented",
		slog.String("change_order_id", changeOrderID),
		slog.Int64("new_total", co.NewContractTotal),
		slog.Int64("impact_remainder", impact.Remainder))
	return co, nil
}

func (s *contractService) RejectChangeOrder(ctx context.Context, changeOrderID string, actor domain.Actor) (*domain.ChangeOrder, error) {
	co, err := s.contractRepo.FindChangeOrderByID(ctx, changeOrderID)
	if err != nil {
		return nil, err
	}
	if co.Status != domain.ChangeOrderPendingApproval {
		return nil, fmt.Errorf("%w: change order %s is %s", ErrInvalidTransition, changeOrderID, co.Status)
	}

	now := time.Now().UTC()
	if err := s.contractRepo.UpdateChangeOrderStatus(ctx, changeOrderID, domain.ChangeOrderRejected, domain.ApprovalRejected, actor, now); err != nil {
		return nil, err
	}
	co.Status = domain.ChangeOrderRejected
	co.ApprovalStatus = domain.ApprovalRejected
	co.Touch(actor, now)
	return co, nil
}

func hasRole(roles []domain.ApproverRole, want domain.ApproverRole) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
