package repositories

// RepositoryProvider aggregates all repository facades for service wiring.
type RepositoryProvider struct {
	LedgerRepo       LedgerRepositoryFacade
	ContractRepo     ContractRepositoryFacade
	InvoiceRepo      InvoiceRepositoryFacade
	VendorRepo       VendorRepositoryFacade
	VerificationRepo VerificationRepositoryFacade
	FinanceLoopRepo  FinanceLoopRepositoryFacade
	RoleRepo         RoleRepositoryFacade
}
