package domain

import "time"

// AuditFields holds standard audit information for domain entities.
type AuditFields struct {
	CreatedAt     time.Time `json:"createdAt"`
	CreatedBy     Actor     `json:"createdBy"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	LastUpdatedBy Actor     `json:"lastUpdatedBy"`
}

// Touch stamps creation and update audit fields with the given actor and time.
func (a *AuditFields) Touch(actor Actor, at time.Time) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = at
		a.CreatedBy = actor
	}
	a.LastUpdatedAt = at
	a.LastUpdatedBy = actor
}

// ApproverRole identifies a role in the approval chain for invoices and
// change orders.
type ApproverRole string

const (
	RoleProjectManager  ApproverRole = "PROJECT_MANAGER"
	RoleFinanceReviewer ApproverRole = "FINANCE_REVIEWER"
	RoleTreasurer       ApproverRole = "TREASURER"
	RoleDAOMultisig     ApproverRole = "DAO_MULTISIG"
)
