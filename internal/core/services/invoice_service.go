package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
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
	ErrInvoiceNotRouted    = errors.New("invoice has not been routed for approval")
	ErrCodingMismatch      = errors.New("coding lines do not sum to subtotal")
	ErrMatrixMisconfigured = errors.New("approval matrix must have three bands with an unbounded top band")
)

// percentCompleteDivergence is the warning threshold, in percentage points,
// between vendor-reported and computed percent complete.
const percentCompleteDivergence = 10

// invoiceService drives the invoice lifecycle, validation and tiered
// approval routing.
type invoiceService struct {
	invoiceRepo  portsrepo.InvoiceRepositoryFacade
	contractRepo portsrepo.ContractRepositoryFacade
	vendorRepo   portsrepo.VendorRepositoryFacade
	ledgerSvc    portssvc.LedgerSvcFacade
	authorizer   portssvc.AuthorizerSvc
}

// NewInvoiceService creates a new invoice service.
func NewInvoiceService(invoiceRepo portsrepo.InvoiceRepositoryFacade, contractRepo portsrepo.ContractRepositoryFacade, vendorRepo portsrepo.VendorRepositoryFacade, ledgerSvc portssvc.LedgerSvcFacade, authorizer portssvc.AuthorizerSvc) portssvc.InvoiceSvcFacade {
	return &invoiceService{
		invoiceRepo:  invoiceRepo,
		contractRepo: contractRepo,
		vendorRepo:   vendorRepo,
		ledgerSvc:    ledgerSvc,
		authorizer:   authorizer,
	}
}

var _ portssvc.InvoiceSvcFacade = (*invoiceService)(nil)

// CalculateRetention is the retention withholding for a subtotal at the
// contract's retention percentage, truncated toward zero.
func (s *invoiceService) CalculateRetention(ctx context.Context, subtotal int64, retentionPercent int64) int64 {
	return domain.PercentOf(subtotal, retentionPercent)
}

func (s *invoiceService) CreateInvoice(ctx context.Context, req dto.CreateInvoiceRequest, actor domain.Actor) (*domain.Invoice, error) {
	contract, err := s.contractRepo.FindContractByID(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}

	var linesSum int64
	for _, l := range req.CodingLines {
		linesSum += l.Amount
	}
	if linesSum != req.Subtotal {
		return nil, fmt.Errorf("%w: lines sum %d, subtotal %d", ErrCodingMismatch, linesSum, req.Subtotal)
	}

	retention := domain.PercentOf(req.Subtotal, contract.RetentionPercent)
	total := req.Subtotal + req.Taxes
	netPayable := total - retention - req.Witholdings
	if netPayable < 0 {
		return nil, fmt.Errorf("%w: net payable is negative", apperrors.ErrValidation)
	}

	now := time.Now().UTC()
	invoice := domain.Invoice{
		InvoiceID:       uuid.NewString(),
		ContractID:      contract.ContractID,
		ProjectID:       contract.ProjectID,
		VendorID:        contract.VendorID,
		CurrencyCode:    contract.CurrencyCode,
		InvoiceNumber:   req.InvoiceNumber,
		Kind:            domain.InvoiceKindStandard,
		Subtotal:        req.Subtotal,
		Taxes:           req.Taxes,
		Retention:       retention,
		Witholdings:     req.Witholdings,
		Total:           total,
		NetPayable:      netPayable,
		PercentComplete: req.PercentComplete,
		Status:          domain.InvoiceDraft,
		ApprovalStatus:  domain.ApprovalPending,
	}
	invoice.Touch(actor, now)

	codingLines := make([]domain.CodingLine, 0, len(req.CodingLines))
	for _, l := range req.CodingLines {
		codingLines = append(codingLines, domain.CodingLine{
			CodingLineID: uuid.NewString(),
			InvoiceID:    invoice.InvoiceID,
			BudgetLineID: l.BudgetLineID,
			Amount:       l.Amount,
			Memo:         l.Memo,
		})
	}

	if err := s.invoiceRepo.SaveInvoice(ctx, invoice, codingLines); err != nil {
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}

	middleware.GetLoggerFromCtx(ctx).Info("Invoice created",
		slog.String("invoice_id", invoice.InvoiceID),
		slog.String("contract_id", contract.ContractID),
		slog.Int64("net_payable", netPayable))
	return &invoice, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	return s.invoiceRepo.FindInvoiceByID(ctx, invoiceID)
}

// ValidateInvoice aggregates every blocking and advisory finding so the
// caller can render them all at once.
func (s *invoiceService) ValidateInvoice(ctx context.Context, invoiceID string) (*domain.ValidationResult, error) {
	invoice, err := s.invoiceRepo.FindInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	contract, err := s.contractRepo.FindContractByID(ctx, invoice.ContractID)
	if err != nil {
		return nil, err
	}

	result := &domain.ValidationResult{Valid: true}

	vendor, err := s.vendorRepo.FindVendorByID(ctx, invoice.VendorID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			result.AddError(fmt.Sprintf("vendor %s does not exist", invoice.VendorID))
		} else {
			return nil, err
		}
	} else {
		if vendor.Status != domain.VendorApproved {
			result.AddError(fmt.Sprintf("vendor %s is not approved (%s)", vendor.VendorID, vendor.Status))
		}
		if vendor.KYCStatus != domain.KYCApproved {
			result.AddError(fmt.Sprintf("vendor %s KYC is not approved (%s)", vendor.VendorID, vendor.KYCStatus))
		}
		if vendor.Reportable1099() {
			result.AddWarning(fmt.Sprintf("vendor %s has crossed the 1099 reporting threshold", vendor.VendorID))
		}
	}

	if contract.Status != domain.ContractSigned {
		result.AddError(fmt.Sprintf("contract %s is %s, must be SIGNED", contract.ContractID, contract.Status))
	}

	lines, err := s.invoiceRepo.FindCodingLinesByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		result.AddError("invoice has no coding lines")
	} else {
		var sum int64
		for _, l := range lines {
			sum += l.Amount
		}
		if sum != invoice.Subtotal {
			result.AddError(fmt.Sprintf("coding lines sum to %d, subtotal is %d", sum, invoice.Subtotal))
		}
	}

	invoicedToDate, err := s.invoiceRepo.SumInvoicedByContract(ctx, contract.ContractID, invoiceID)
	if err != nil {
		return nil, err
	}
	cumulative := invoicedToDate + invoice.Total
	if cumulative > contract.CurrentAmount {
		result.AddError(fmt.Sprintf("cumulative invoiced %d exceeds contract amount %d", cumulative, contract.CurrentAmount))
	}
	if cumulative > contract.NotToExceed {
		result.AddError(fmt.Sprintf("cumulative invoiced %d exceeds not-to-exceed %d", cumulative, contract.NotToExceed))
	}

	return result, nil
}

// ValidateAgainstContract runs ValidateInvoice and additionally compares the
// vendor-reported percent complete with the value computed from cumulative
// invoicing; divergence beyond 10 percentage points is a warning, not a
// blocker.
func (s *invoiceService) ValidateAgainstContract(ctx context.Context, invoiceID string) (*domain.ValidationResult, error) {
	result, err := s.ValidateInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	invoice, err := s.invoiceRepo.FindInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	contract, err := s.contractRepo.FindContractByID(ctx, invoice.ContractID)
	if err != nil {
		return nil, err
	}
	if contract.CurrentAmount <= 0 {
		return result, nil
	}

	invoicedToDate, err := s.invoiceRepo.SumInvoicedByContract(ctx, contract.ContractID, invoiceID)
	if err != nil {
		return nil, err
	}
	computed, err := domain.ProportionalShare(100, invoicedToDate+invoice.Total, contract.CurrentAmount)
	if err != nil {
		return nil, err
	}
	divergence := computed - invoice.PercentComplete
	if divergence < 0 {
		divergence = -divergence
	}
	if divergence > percentCompleteDivergence {
		result.AddWarning(fmt.Sprintf("reported percent complete %d diverges from computed %d by more than %d points",
			invoice.PercentComplete, computed, percentCompleteDivergence))
	}
	return result, nil
}

func (s *invoiceService) SubmitInvoice(ctx context.Context, invoiceID string, actor domain.Actor) (*domain.Invoice, error) {
	validation, err := s.ValidateInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, strings.Join(validation.Errors, "; "))
	}

	now := time.Now().UTC()
	if err := s.invoiceRepo.UpdateInvoiceStatus(ctx, invoiceID, domain.InvoiceDraft, domain.InvoiceSubmitted, domain.ApprovalPending, actor, now); err != nil {
		return nil, err
	}
	return s.invoiceRepo.FindInvoiceByID(ctx, invoiceID)
}

// RouteForApproval selects the approval-matrix band for the invoice's net
// payable and snapshots its requirements onto the invoice. The snapshot is
// what later approvals are judged against; reconfiguring the matrix does not
// disturb invoices already in flight.
func (s *invoiceService) RouteForApproval(ctx context.Context, invoiceID string, actor domain.Actor) (*domain.Invoice, error) {
	invoice, err := s.invoiceRepo.FindInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != domain.InvoiceSubmitted {
		return nil, fmt.Errorf("%w: invoice %s is %s, expected SUBMITTED", ErrInvalidTransition, invoiceID, invoice.Status)
	}

	matrix, err := s.invoiceRepo.FindApprovalMatrix(ctx, invoice.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("no approval matrix for project %s: %w", invoice.ProjectID, err)
	}
	band := matrix.BandFor(invoice.NetPayable)

	now := time.Now().UTC()
	if err := s.invoiceRepo.UpdateInvoiceRouting(ctx, invoiceID, band.RequiredRoles, band.RequiredApprovals, actor, now); err != nil {
		return nil, err
	}
	invoice.RequiredRoles = band.RequiredRoles
	invoice.RequiredApprovals = band.RequiredApprovals

	middleware.GetLoggerFromCtx(ctx).Info("Invoice routed for approval",
		slog.String("invoice_id", invoiceID),
		slog.Int("required_approvals", band.RequiredApprovals))
	return invoice, nil
}

// ApproveInvoice records one approver's decision. The invoice transitions to
// APPROVED, and its total encumbered, only when the approval count first
// reaches the snapshotted requirement. A second approval after the threshold
// is already met changes nothing and triggers no side effects.
func (s *invoiceService) ApproveInvoice(ctx context.Context, invoiceID string, approverID string, req dto.DecideInvoiceRequest) (*domain.Invoice, error) {
	invoice, err := s.invoiceRepo.FindInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	switch invoice.Status {
	case domain.InvoiceApproved, domain.InvoiceScheduled, domain.InvoicePaid:
		// Threshold already met; idempotent no-op.
		return invoice, nil
	case domain.InvoiceSubmitted:
	default:
		return nil, fmt.Errorf("%w: invoice %s is %s", ErrInvalidTransition, invoiceID, invoice.Status)
	}
	if invoice.RequiredApprovals == 0 {
		return nil, fmt.Errorf("%w: invoice %s", ErrInvoiceNotRouted, invoiceID)
	}

	role, err := s.approverRole(ctx, approverID, invoice)
	if err != nil {
		return nil, err
	}

	decisions, err := s.invoiceRepo.FindDecisionsByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	approvals := 0
	for _, d := range decisions {
		if d.Decision != domain.ApprovalApproved {
			continue
		}
		if d.ApproverID == approverID {
			// Same approver repeating a decision counts once.
			return invoice, nil
		}
		approvals++
	}

	now := time.Now().UTC()
	decision := domain.ApprovalDecision{
		DecisionID: uuid.NewString(),
		InvoiceID:  invoiceID,
		ApproverID: approverID,
		Role:       role,
		Decision:   domain.ApprovalApproved,
		Comment:    req.Comment,
		DecidedAt:  now,
	}
	if err := s.invoiceRepo.SaveDecision(ctx, decision); err != nil {
		return nil, err
	}
	approvals++

	if approvals < invoice.RequiredApprovals {
		middleware.GetLoggerFromCtx(ctx).Info("Invoice approval recorded",
			slog.String("invoice_id", invoiceID),
			slog.Int("approvals", approvals),
			slog.Int("required", invoice.RequiredApprovals))
		return invoice, nil
	}

	// Threshold reached: the status flip and the encumbrance ride one
	// repository transaction, guarded on the invoice still being
	// SUBMITTED, so a concurrent approver can't double-apply the side
	// effects and a failed encumbrance leaves the invoice submitted.
	contract, err := s.contractRepo.FindContractByID(ctx, invoice.ContractID)
	if err != nil {
		return nil, err
	}

	actor := domain.UserActor(approverID)
	entry, err := buildEntry(domain.EntryEncumber, contract.FundingBucketID, invoice.CurrencyCode,
		domain.BalanceCommitted, domain.BalanceEncumbered,
		domain.RefInvoice, invoiceID, invoice.Total, actor, now)
	if err != nil {
		return nil, err
	}
	if err := s.invoiceRepo.ApproveInvoiceWithEncumbrance(ctx, invoiceID, entry, actor, now); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return s.invoiceRepo.FindInvoiceByID(ctx, invoiceID)
		}
		return nil, fmt.Errorf("encumbrance for invoice %s failed: %w", invoiceID, err)
	}

	invoice.Status = domain.InvoiceApproved
	invoice.ApprovalStatus = domain.ApprovalApproved

	middleware.GetLoggerFromCtx(ctx).Info("Invoice approved",
		slog.String("invoice_id", invoiceID),
		slog.Int64("encumbered", invoice.Total))
	return invoice, nil
}

func (s *invoiceService) RejectInvoice(ctx context.Context, invoiceID string, approverID string, req dto.DecideInvoiceRequest) (*domain.Invoice, error) {
	invoice, err := s.invoiceRepo.FindInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != domain.InvoiceSubmitted {
		return nil, fmt.Errorf("%w: invoice %s is %s", ErrInvalidTransition, invoiceID, invoice.Status)
	}

	role, err := s.approverRole(ctx, approverID, invoice)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	decision := domain.ApprovalDecision{
		DecisionID: uuid.NewString(),
		InvoiceID:  invoiceID,
		ApproverID: approverID,
		Role:       role,
		Decision:   domain.ApprovalRejected,
		Comment:    req.Comment,
		DecidedAt:  now,
	}
	if err := s.invoiceRepo.SaveDecision(ctx, decision); err != nil {
		return nil, err
	}

	actor := domain.UserActor(approverID)
	if err := s.invoiceRepo.UpdateInvoiceStatus(ctx, invoiceID, domain.InvoiceSubmitted, domain.InvoiceRejected, domain.ApprovalRejected, actor, now); err != nil {
		return nil, err
	}
	invoice.Status = domain.InvoiceRejected
	invoice.ApprovalStatus = domain.ApprovalRejected
	return invoice, nil
}

func (s *invoiceService) ScheduleInvoice(ctx context.Context, invoiceID string, actor domain.Actor) (*domain.Invoice, error) {
	now := time.Now().UTC()
	if err := s.invoiceRepo.UpdateInvoiceStatus(ctx, invoiceID, domain.InvoiceApproved, domain.InvoiceScheduled, domain.ApprovalApproved, actor, now); err != nil {
		return nil, err
	}
	return s.invoiceRepo.FindInvoiceByID(ctx, invoiceID)
}

// MarkInvoicePaid records the payment-rail result. Net payable plus tax
// withholdings (remitted with the payment run) are disbursed; withheld
// retention moves from encumbered to reserved until a verification gate
// releases it.
func (s *invoiceService) MarkInvoicePaid(ctx context.Context, invoiceID string, req dto.MarkPaidRequest, actor domain.Actor) (*domain.Invoice, error) {
	invoice, err := s.invoiceRepo.FindInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != domain.InvoiceScheduled {
		return nil, fmt.Errorf("%w: invoice %s is %s, expected SCHEDULED", ErrInvalidTransition, invoiceID, invoice.Status)
	}

	contract, err := s.contractRepo.FindContractByID(ctx, invoice.ContractID)
	if err != nil {
		return nil, err
	}

	// The status flip and both fund movements ride one repository
	// transaction: a failed disbursement or retention hold leaves the
	// invoice scheduled.
	now := time.Now().UTC()
	entries := make([]domain.LedgerEntry, 0, 2)
	disbursed := invoice.NetPayable + invoice.Witholdings
	if disbursed > 0 {
		entry, err := buildEntry(domain.EntryDisburse, contract.FundingBucketID, invoice.CurrencyCode,
			domain.BalanceEncumbered, domain.BalanceDisbursed,
			domain.RefDisbursement, req.DisbursementID, disbursed, actor, now)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if invoice.Retention > 0 {
		entry, err := buildEntry(domain.EntryDisburse, contract.FundingBucketID, invoice.CurrencyCode,
			domain.BalanceEncumbered, domain.BalanceReserved,
			domain.RefRetentionHold, invoiceID, invoice.Retention, actor, now)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := s.invoiceRepo.MarkInvoicePaidWithDisbursement(ctx, invoiceID, entries, actor, now); err != nil {
		return nil, fmt.Errorf("payment for invoice %s failed: %w", invoiceID, err)
	}

	if err := s.vendorRepo.AddVendorPayment(ctx, invoice.VendorID, invoice.NetPayable, now); err != nil {
		return nil, err
	}

	invoice.Status = domain.InvoicePaid
	middleware.GetLoggerFromCtx(ctx).Info("Invoice paid",
		slog.String("invoice_id", invoiceID),
		slog.String("disbursement_id", req.DisbursementID),
		slog.Int64("disbursed", disbursed),
		slog.Int64("retention_held", invoice.Retention))
	return invoice, nil
}

// CheckFundsAvailability is strictly advisory: a read-only projection over
// the contract's bucket, called before encumbrance. It never mutates the
// ledger.
func (s *invoiceService) CheckFundsAvailability(ctx context.Context, invoiceID string) (*domain.FundsCheck, error) {
	invoice, err := s.invoiceRepo.FindInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	contract, err := s.contractRepo.FindContractByID(ctx, invoice.ContractID)
	if err != nil {
		return nil, err
	}
	bucket, err := s.ledgerSvc.GetBucket(ctx, contract.FundingBucketID)
	if err != nil {
		return nil, err
	}

	return &domain.FundsCheck{
		BucketID:   bucket.BucketID,
		Requested:  invoice.Total,
		Committed:  bucket.Committed,
		Available:  bucket.Available,
		Sufficient: bucket.Committed >= invoice.Total,
	}, nil
}

func (s *invoiceService) SetApprovalMatrix(ctx context.Context, projectID string, req dto.SetApprovalMatrixRequest, actor domain.Actor) (*domain.ApprovalMatrix, error) {
	if len(req.Bands) != 3 || req.Bands[len(req.Bands)-1].MaxNetPayable != nil {
		return nil, ErrMatrixMisconfigured
	}

	now := time.Now().UTC()
	matrix := domain.ApprovalMatrix{ProjectID: projectID}
	var prevMax int64
	for i, b := range req.Bands {
		if b.MaxNetPayable != nil {
			if *b.MaxNetPayable <= prevMax {
				return nil, fmt.Errorf("%w: band %d bound %d not ascending", ErrMatrixMisconfigured, i, *b.MaxNetPayable)
			}
			prevMax = *b.MaxNetPayable
		}
		roles := make([]domain.ApproverRole, 0, len(b.RequiredRoles))
		for _, r := range b.RequiredRoles {
			role := domain.ApproverRole(r)
			switch role {
			case domain.RoleProjectManager, domain.RoleFinanceReviewer, domain.RoleTreasurer, domain.RoleDAOMultisig:
				roles = append(roles, role)
			default:
				return nil, fmt.Errorf("%w: unknown role %q", apperrors.ErrValidation, r)
			}
		}
		if b.RequiredApprovals > len(roles) {
			return nil, fmt.Errorf("%w: band %d requires %d approvals from %d roles", apperrors.ErrValidation, i, b.RequiredApprovals, len(roles))
		}
		matrix.Bands = append(matrix.Bands, domain.ApprovalBand{
			MaxNetPayable:     b.MaxNetPayable,
			RequiredRoles:     roles,
			RequiredApprovals: b.RequiredApprovals,
		})
	}
	matrix.Touch(actor, now)

	if err := s.invoiceRepo.SaveApprovalMatrix(ctx, matrix); err != nil {
		return nil, fmt.Errorf("failed to save approval matrix: %w", err)
	}
	return &matrix, nil
}

// approverRole resolves which of the invoice's snapshotted required roles the
// approver holds.
func (s *invoiceService) approverRole(ctx context.Context, approverID string, invoice *domain.Invoice) (domain.ApproverRole, error) {
	roles, err := s.authorizer.RolesFor(ctx, approverID, invoice.ProjectID)
	if err != nil {
		return "", err
	}
	for _, required := range invoice.RequiredRoles {
		if hasRole(roles, required) {
			return required, nil
		}
	}
	return "", fmt.Errorf("%w: user %s for invoice %s", ErrRoleNotHeld, approverID, invoice.InvoiceID)
}
