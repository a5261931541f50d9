package domain

import "time"

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "DRAFT"
	InvoiceSubmitted InvoiceStatus = "SUBMITTED"
	InvoiceApproved  InvoiceStatus = "APPROVED"
	InvoiceScheduled InvoiceStatus = "SCHEDULED"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceRejected  InvoiceStatus = "REJECTED"
)

// InvoiceKind distinguishes vendor-submitted invoices from the synthetic
// retention-release invoices generated by a passing verification.
type InvoiceKind string

const (
	InvoiceKindStandard         InvoiceKind = "STANDARD"
	InvoiceKindRetentionRelease InvoiceKind = "RETENTION_RELEASE"
)

// Invoice is a request for payment against a signed contract.
// Integer identities hold at all times:
//
//	total      = subtotal + taxes
//	retention  = subtotal * contract.retentionPercent / 100 (truncated)
//	netPayable = total - retention - witholdings
type Invoice struct {
	InvoiceID       string         `json:"invoiceID"`
	ContractID      string         `json:"contractID"`
	ProjectID       string         `json:"projectID"`
	VendorID        string         `json:"vendorID"`
	CurrencyCode    CurrencyCode   `json:"currencyCode"`
	InvoiceNumber   string         `json:"invoiceNumber"`
	Kind            InvoiceKind    `json:"kind"`
	Subtotal        int64          `json:"subtotal"`
	Taxes           int64          `json:"taxes"`
	Retention       int64          `json:"retention"`
	Witholdings     int64          `json:"witholdings"`
	Total           int64          `json:"total"`
	NetPayable      int64          `json:"netPayable"`
	PercentComplete int64          `json:"percentComplete"`
	Status          InvoiceStatus  `json:"status"`
	ApprovalStatus  ApprovalStatus `json:"approvalStatus"`
	// Approval requirements snapshotted from the project matrix at routing
	// time; later matrix edits do not affect invoices already in flight.
	RequiredRoles     []ApproverRole `json:"requiredRoles"`
	RequiredApprovals int            `json:"requiredApprovals"`
	AuditFields
}

// CodingLine attributes part of an invoice subtotal to a budget line. The
// lines must sum exactly to the subtotal.
type CodingLine struct {
	CodingLineID string `json:"codingLineID"`
	InvoiceID    string `json:"invoiceID"`
	BudgetLineID string `json:"budgetLineID"`
	Amount       int64  `json:"amount"`
	Memo         string `json:"memo"`
}

// ApprovalDecision records one approver's decision on an invoice.
type ApprovalDecision struct {
	DecisionID string         `json:"decisionID"`
	InvoiceID  string         `json:"invoiceID"`
	ApproverID string         `json:"approverID"`
	Role       ApproverRole   `json:"role"`
	Decision   ApprovalStatus `json:"decision"`
	Comment    string         `json:"comment"`
	DecidedAt  time.Time      `json:"decidedAt"`
}

// ApprovalBand is one amount band of a project's invoice approval matrix.
// MaxNetPayable of nil means unbounded (the top band).
type ApprovalBand struct {
	MaxNetPayable     *int64         `json:"maxNetPayable"`
	RequiredRoles     []ApproverRole `json:"requiredRoles"`
	RequiredApprovals int            `json:"requiredApprovals"`
}

// ApprovalMatrix is a project's three-band invoice approval routing table,
// ordered by ascending MaxNetPayable with the last band unbounded.
type ApprovalMatrix struct {
	ProjectID string         `json:"projectID"`
	Bands     []ApprovalBand `json:"bands"`
	AuditFields
}

// BandFor selects the band for a given net payable amount.
func (m *ApprovalMatrix) BandFor(netPayable int64) ApprovalBand {
	for _, band := range m.Bands {
		if band.MaxNetPayable == nil || netPayable <= *band.MaxNetPayable {
			return band
		}
	}
	// Misconfigured matrix without an unbounded band: fall back to the last.
	return m.Bands[len(m.Bands)-1]
}

// ValidationResult aggregates everything wrong (and worth warning about) with
// an operation whose purpose is itself validation, so callers can render all
// findings at once instead of fixing one at a time.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// AddError records a blocking finding and marks the result invalid.
func (r *ValidationResult) AddError(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

// AddWarning records a non-blocking finding.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// FundsCheck is the advisory result of a read-only funds projection over a
// contract's bucket. It never reflects a ledger mutation.
type FundsCheck struct {
	BucketID   string `json:"bucketID"`
	Requested  int64  `json:"requested"`
	Committed  int64  `json:"committed"`
	Available  int64  `json:"available"`
	Sufficient bool   `json:"sufficient"`
}
