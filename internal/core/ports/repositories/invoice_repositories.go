package repositories

import (
	"context"
	"time"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
)

// InvoiceRepositoryFacade defines persistence for invoices, coding lines,
// approval decisions and the per-project approval matrix.
type InvoiceRepositoryFacade interface {
	// SaveInvoice persists the invoice and its coding lines atomically.
	SaveInvoice(ctx context.Context, invoice domain.Invoice, lines []domain.CodingLine) error
	FindInvoiceByID(ctx context.Context, invoiceID string) (*domain.Invoice, error)
	FindCodingLinesByInvoice(ctx context.Context, invoiceID string) ([]domain.CodingLine, error)

	// UpdateInvoiceStatus transitions the invoice guarded on its current
	// status. A guard miss returns ErrConflict so callers can distinguish
	// "already transitioned" from success; this is what keeps approval
	// idempotent under duplicate delivery.
	UpdateInvoiceStatus(ctx context.Context, invoiceID string, from, to domain.InvoiceStatus, approval domain.ApprovalStatus, actor domain.Actor, at time.Time) error

	// UpdateInvoiceRouting stamps the approval requirements snapshotted
	// from the project matrix at submission time.
	UpdateInvoiceRouting(ctx context.Context, invoiceID string, roles []domain.ApproverRole, requiredApprovals int, actor domain.Actor, at time.Time) error

	// ApproveInvoiceWithEncumbrance transitions the invoice
	// SUBMITTED->APPROVED and applies the ENCUMBER ledger entry in one
	// transaction: a failed encumbrance leaves the invoice submitted. A
	// guard miss on the status is ErrConflict, which keeps concurrent
	// threshold-crossing approvals single-effect.
	ApproveInvoiceWithEncumbrance(ctx context.Context, invoiceID string, entry domain.LedgerEntry, actor domain.Actor, at time.Time) error

	// MarkInvoicePaidWithDisbursement transitions the invoice
	// SCHEDULED->PAID and applies the disbursement and retention-hold
	// entries in one transaction, so the invoice can never be durably PAID
	// with the funds still encumbered.
	MarkInvoicePaidWithDisbursement(ctx context.Context, invoiceID string, entries []domain.LedgerEntry, actor domain.Actor, at time.Time) error

	SaveDecision(ctx context.Context, decision domain.ApprovalDecision) error
	FindDecisionsByInvoice(ctx context.Context, invoiceID string) ([]domain.ApprovalDecision, error)

	// SumInvoicedByContract totals all non-rejected invoices for the
	// contract, optionally excluding one invoice id.
	SumInvoicedByContract(ctx context.Context, contractID string, excludeInvoiceID string) (int64, error)
	FindPaidRetentionByProject(ctx context.Context, projectID string) ([]domain.Invoice, error)

	SaveApprovalMatrix(ctx context.Context, matrix domain.ApprovalMatrix) error
	FindApprovalMatrix(ctx context.Context, projectID string) (*domain.ApprovalMatrix, error)
}

// VendorRepositoryFacade defines persistence for the vendor registry.
type VendorRepositoryFacade interface {
	SaveVendor(ctx context.Context, vendor domain.Vendor) error
	FindVendorByID(ctx context.Context, vendorID string) (*domain.Vendor, error)
	AddVendorPayment(ctx context.Context, vendorID string, amount int64, at time.Time) error
}
