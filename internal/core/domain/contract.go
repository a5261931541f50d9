package domain

// ContractStatus is the lifecycle state of a contract.
type ContractStatus string

const (
	ContractDraft           ContractStatus = "DRAFT"
	ContractPendingApproval ContractStatus = "PENDING_APPROVAL"
	ContractApproved        ContractStatus = "APPROVED"
	ContractSigned          ContractStatus = "SIGNED"
)

// ApprovalStatus is the authorization state attached to contracts, change
// orders and invoices alongside their lifecycle status.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Contract is an agreement with a vendor, budget-allocated against a funding
// bucket. CurrentAmount starts at OriginalAmount and moves only through
// implemented change orders; it never exceeds NotToExceed.
type Contract struct {
	ContractID       string         `json:"contractID"`
	ProjectID        string         `json:"projectID"`
	VendorID         string         `json:"vendorID"`
	FundingBucketID  string         `json:"fundingBucketID"`
	CurrencyCode     CurrencyCode   `json:"currencyCode"`
	OriginalAmount   int64          `json:"originalAmount"`
	CurrentAmount    int64          `json:"currentAmount"`
	NotToExceed      int64          `json:"notToExceed"`
	RetentionPercent int64          `json:"retentionPercent"`
	Status           ContractStatus `json:"status"`
	ApprovalStatus   ApprovalStatus `json:"approvalStatus"`
	Title            string         `json:"title"`
	AuditFields
}

// BudgetLine is a project budget row a contract can draw allocation from.
type BudgetLine struct {
	BudgetLineID    string `json:"budgetLineID"`
	ProjectID       string `json:"projectID"`
	Code            string `json:"code"`
	Description     string `json:"description"`
	RevisedBudget   int64  `json:"revisedBudget"`
	CommittedAmount int64  `json:"committedAmount"`
	AuditFields
}

// Headroom is the uncommitted remainder of the line's revised budget.
func (l *BudgetLine) Headroom() int64 {
	return l.RevisedBudget - l.CommittedAmount
}

// BudgetAllocation assigns part of a contract's value to a budget line.
// Percent is informational; amounts are authoritative.
type BudgetAllocation struct {
	AllocationID string `json:"allocationID"`
	ContractID   string `json:"contractID"`
	BudgetLineID string `json:"budgetLineID"`
	Amount       int64  `json:"amount"`
	Percent      int64  `json:"percent"`
	AuditFields
}
