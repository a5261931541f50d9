package domain

import "time"

// ChangeOrderStatus is the lifecycle state of a change order.
type ChangeOrderStatus string

const (
	ChangeOrderDraft           ChangeOrderStatus = "DRAFT"
	ChangeOrderPendingApproval ChangeOrderStatus = "PENDING_APPROVAL"
	ChangeOrderApproved        ChangeOrderStatus = "APPROVED"
	ChangeOrderRejected        ChangeOrderStatus = "REJECTED"
)

// ChangeOrder modifies a contract's amount and/or schedule. NewContractTotal
// is computed at creation and re-validated optimistically at approval, since
// other change orders may have landed in between.
type ChangeOrder struct {
	ChangeOrderID    string            `json:"changeOrderID"`
	ContractID       string            `json:"contractID"`
	DeltaAmount      int64             `json:"deltaAmount"` // signed
	DeltaTimeDays    int               `json:"deltaTimeDays"`
	NewContractTotal int64             `json:"newContractTotal"`
	Reason           string            `json:"reason"`
	Status           ChangeOrderStatus `json:"status"`
	ApprovalStatus   ApprovalStatus    `json:"approvalStatus"`
	AuditFields
}

// AllocationImpact is the proportional effect of a change order on one
// existing budget allocation, floored toward zero.
type AllocationImpact struct {
	AllocationID    string `json:"allocationID"`
	BudgetLineID    string `json:"budgetLineID"`
	CurrentAmount   int64  `json:"currentAmount"`
	DeltaAllocation int64  `json:"deltaAllocation"`
	NewAmount       int64  `json:"newAmount"`
}

// ChangeOrderImpact is the full proportional-allocation result for a change
// order. Per-line deltas are floored; Remainder is whatever the flooring left
// unallocated. It is reported, never silently folded into a line.
type ChangeOrderImpact struct {
	ChangeOrderID string             `json:"changeOrderID"`
	DeltaAmount   int64              `json:"deltaAmount"`
	Lines         []AllocationImpact `json:"lines"`
	AllocatedSum  int64              `json:"allocatedSum"`
	Remainder     int64              `json:"remainder"`
	RequiredRoles []ApproverRole     `json:"requiredRoles"`
}

// ChangeOrderApproval records one role's sign-off on a change order. The
// change order is implemented only once every required role has signed.
type ChangeOrderApproval struct {
	ApprovalID    string       `json:"approvalID"`
	ChangeOrderID string       `json:"changeOrderID"`
	ApproverID    string       `json:"approverID"`
	Role          ApproverRole `json:"role"`
	DecidedAt     time.Time    `json:"decidedAt"`
}

// ApprovalThresholds configures the additive role escalation for change-order
// approvals by absolute delta magnitude. Each tier requires all lower-tier
// approvers too.
type ApprovalThresholds struct {
	FinanceReviewThreshold int64 // above this: PROJECT_MANAGER + FINANCE_REVIEWER
	TreasurerThreshold     int64 // above this: + TREASURER
	MultisigThreshold      int64 // above this: + DAO_MULTISIG
}

// RolesFor returns the approver roles a change order of the given signed
// delta requires.
func (t ApprovalThresholds) RolesFor(deltaAmount int64) []ApproverRole {
	magnitude := deltaAmount
	if magnitude < 0 {
		magnitude = -magnitude
	}
	roles := []ApproverRole{RoleProjectManager}
	if magnitude > t.FinanceReviewThreshold {
		roles = append(roles, RoleFinanceReviewer)
	}
	if magnitude > t.TreasurerThreshold {
		roles = append(roles, RoleTreasurer)
	}
	if magnitude > t.MultisigThreshold {
		roles = append(roles, RoleDAOMultisig)
	}
	return roles
}
