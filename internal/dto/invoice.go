package dto

// CodingLineRequest attributes part of an invoice subtotal to a budget line.
type CodingLineRequest struct {
	BudgetLineID string `json:"budgetLineID" binding:"required"`
	Amount       int64  `json:"amount" binding:"required,gt=0"`
	Memo         string `json:"memo"`
}

// CreateInvoiceRequest creates a vendor invoice in DRAFT. Retention, total
// and net payable are computed by the engine, never accepted from input.
type CreateInvoiceRequest struct {
	ContractID      string              `json:"contractID" binding:"required"`
	InvoiceNumber   string              `json:"invoiceNumber" binding:"required"`
	Subtotal        int64               `json:"subtotal" binding:"required,gt=0"`
	Taxes           int64               `json:"taxes" binding:"gte=0"`
	Witholdings     int64               `json:"witholdings" binding:"gte=0"`
	PercentComplete int64               `json:"percentComplete" binding:"gte=0,lte=100"`
	CodingLines     []CodingLineRequest `json:"codingLines" binding:"required,min=1,dive"`
}

// DecideInvoiceRequest records an approval or rejection decision.
type DecideInvoiceRequest struct {
	Comment string `json:"comment"`
}

// ApprovalBandRequest is one band of an approval matrix.
type ApprovalBandRequest struct {
	MaxNetPayable     *int64   `json:"maxNetPayable"`
	RequiredRoles     []string `json:"requiredRoles" binding:"required,min=1"`
	RequiredApprovals int      `json:"requiredApprovals" binding:"required,gt=0"`
}

// SetApprovalMatrixRequest replaces a project's invoice approval matrix.
type SetApprovalMatrixRequest struct {
	Bands []ApprovalBandRequest `json:"bands" binding:"required,len=3,dive"`
}

// MarkPaidRequest records a payment-rail result for a scheduled invoice.
type MarkPaidRequest struct {
	DisbursementID string `json:"disbursementID" binding:"required"`
	RailReference  string `json:"railReference"`
}
