package services

import (
	"context"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
)

// AuthorizerSvc checks whether a user holds an approver role within a
// project. Implementations may cache decisions; callers must invalidate
// through the cache's explicit hooks when roles change.
type AuthorizerSvc interface {
	Authorize(ctx context.Context, userID, projectID string, role domain.ApproverRole) error
	RolesFor(ctx context.Context, userID, projectID string) ([]domain.ApproverRole, error)
}

// ServiceContainer aggregates all service facades for handler wiring.
type ServiceContainer struct {
	Ledger       LedgerSvcFacade
	Contract     ContractSvcFacade
	Invoice      InvoiceSvcFacade
	Vendor       VendorSvcFacade
	Verification VerificationSvcFacade
	FinanceLoop  FinanceLoopSvcFacade
	Authorizer   AuthorizerSvc
}
