package services

import (
	"context"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	"github.com/greenledger-io/greenledger_backend/internal/dto"
)

// InvoiceSvcFacade drives the invoice lifecycle, validation, tiered approval
// routing and the retention/funds-check calculations.
type InvoiceSvcFacade interface {
	CreateInvoice(ctx context.Context, req dto.CreateInvoiceRequest, actor domain.Actor) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, error)

	// ValidateInvoice aggregates all blocking and advisory findings in one
	// structured result instead of failing on the first.
	ValidateInvoice(ctx context.Context, invoiceID string) (*domain.ValidationResult, error)
	// ValidateAgainstContract additionally computes percent-complete and
	// warns when the vendor-reported figure diverges by more than 10
	// percentage points.
	ValidateAgainstContract(ctx context.Context, invoiceID string) (*domain.ValidationResult, error)

	SubmitInvoice(ctx context.Context, invoiceID string, actor domain.Actor) (*domain.Invoice, error)
	// RouteForApproval snapshots the matching approval-matrix band onto the
	// invoice.
	RouteForApproval(ctx context.Context, invoiceID string, actor domain.Actor) (*domain.Invoice, error)
	// ApproveInvoice records a decision; the invoice transitions to
	// APPROVED (and its total is encumbered) only when the approval count
	// first reaches the snapshotted requirement. Further calls after that
	// change nothing.
	ApproveInvoice(ctx context.Context, invoiceID string, approverID string, req dto.DecideInvoiceRequest) (*domain.Invoice, error)
	RejectInvoice(ctx context.Context, invoiceID string, approverID string, req dto.DecideInvoiceRequest) (*domain.Invoice, error)
	ScheduleInvoice(ctx context.Context, invoiceID string, actor domain.Actor) (*domain.Invoice, error)
	// MarkInvoicePaid records the payment-rail result: net payable is
	// disbursed and withheld retention moves to reserved.
	MarkInvoicePaid(ctx context.Context, invoiceID string, req dto.MarkPaidRequest, actor domain.Actor) (*domain.Invoice, error)

	// CheckFundsAvailability is a read-only advisory projection over the
	// contract's bucket; it never mutates the ledger.
	CheckFundsAvailability(ctx context.Context, invoiceID string) (*domain.FundsCheck, error)
	CalculateRetention(ctx context.Context, subtotal int64, retentionPercent int64) int64

	SetApprovalMatrix(ctx context.Context, projectID string, req dto.SetApprovalMatrixRequest, actor domain.Actor) (*domain.ApprovalMatrix, error)
}

// VendorSvcFacade manages the vendor registry consulted by invoice
// validation.
type VendorSvcFacade interface {
	GetVendor(ctx context.Context, vendorID string) (*domain.Vendor, error)
	RegisterVendor(ctx context.Context, vendor domain.Vendor, actor domain.Actor) (*domain.Vendor, error)
}
