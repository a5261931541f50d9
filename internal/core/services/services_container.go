package services

import (
	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	portsrepo "github.com/greenledger-io/greenledger_backend/internal/core/ports/repositories"
	portssvc "github.com/greenledger-io/greenledger_backend/internal/core/ports/services"
	"github.com/greenledger-io/greenledger_backend/internal/platform/authcache"
	"github.com/greenledger-io/greenledger_backend/internal/platform/config"
)

// NewServiceContainer wires every service facade over the repository
// provider. Change-order escalation thresholds come from configuration.
func NewServiceContainer(cfg *config.Config, repos *portsrepo.RepositoryProvider, cache *authcache.Cache) *portssvc.ServiceContainer {
	authorizer := NewAuthorizer(repos.RoleRepo, cache)
	ledgerSvc := NewLedgerService(repos.LedgerRepo)

	thresholds := domain.ApprovalThresholds{
		FinanceReviewThreshold: cfg.COFinanceReviewThreshold,
		TreasurerThreshold:     cfg.COTreasurerThreshold,
		MultisigThreshold:      cfg.COMultisigThreshold,
	}

	return &portssvc.ServiceContainer{
		Ledger:       ledgerSvc,
		Contract:     NewContractService(repos.ContractRepo, authorizer, thresholds),
		Invoice:      NewInvoiceService(repos.InvoiceRepo, repos.ContractRepo, repos.VendorRepo, ledgerSvc, authorizer),
		Vendor:       NewVendorService(repos.VendorRepo),
		Verification: NewVerificationService(repos.VerificationRepo, repos.InvoiceRepo, repos.LedgerRepo),
		FinanceLoop:  NewFinanceLoopService(repos.FinanceLoopRepo, repos.LedgerRepo, repos.VerificationRepo),
		Authorizer:   authorizer,
	}
}
