package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/greenledger-io/greenledger_backend/internal/apperrors"
	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	portssvc "github.com/greenledger-io/greenledger_backend/internal/core/ports/services"
	"github.com/greenledger-io/greenledger_backend/internal/core/services"
	"github.com/greenledger-io/greenledger_backend/internal/dto"
)

// MockInvoiceRepository is a mock type for the InvoiceRepositoryFacade interface
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) SaveInvoice(ctx context.Context, invoice domain.Invoice, lines []domain.CodingLine) error {
	args := m.Called(ctx, invoice, lines)
	return args.Error(0)
}

func (m *MockInvoiceRepository) FindInvoiceByID(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindCodingLinesByInvoice(ctx context.Context, invoiceID string) ([]domain.CodingLine, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CodingLine), args.Error(1)
}

func (m *MockInvoiceRepository) UpdateInvoiceStatus(ctx context.Context, invoiceID string, from, to domain.InvoiceStatus, approval domain.ApprovalStatus, actor domain.Actor, at time.Time) error {
	args := m.Called(ctx, invoiceID, from, to, approval, actor, at)
	return args.Error(0)
}

func (m *MockInvoiceRepository) ApproveInvoiceWithEncumbrance(ctx context.Context, invoiceID string, entry domain.LedgerEntry, actor domain.Actor, at time.Time) error {
	args := m.Called(ctx, invoiceID, entry, actor, at)
	return args.Error(0)
}

func (m *MockInvoiceRepository) MarkInvoicePaidWithDisbursement(ctx context.Context, invoiceID string, entries []domain.LedgerEntry, actor domain.Actor, at time.Time) error {
	args := m.Called(ctx, invoiceID, entries, actor, at)
	return args.Error(0)
}

func (m *MockInvoiceRepository) UpdateInvoiceRouting(ctx context.Context, invoiceID string, roles []domain.ApproverRole, requiredApprovals int, actor domain.Actor, at time.Time) error {
	args := m.Called(ctx, invoiceID, roles, requiredApprovals, actor, at)
	return args.Error(0)
}

func (m *MockInvoiceRepository) SaveDecision(ctx context.Context, decision domain.ApprovalDecision) error {
	args := m.Called(ctx, decision)
	return args.Error(0)
}

func (m *MockInvoiceRepository) FindDecisionsByInvoice(ctx context.Context, invoiceID string) ([]domain.ApprovalDecision, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ApprovalDecision), args.Error(1)
}

func (m *MockInvoiceRepository) SumInvoicedByContract(ctx context.Context, contractID string, excludeInvoiceID string) (int64, error) {
	args := m.Called(ctx, contractID, excludeInvoiceID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceRepository) FindPaidRetentionByProject(ctx context.Context, projectID string) ([]domain.Invoice, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) SaveApprovalMatrix(ctx context.Context, matrix domain.ApprovalMatrix) error {
	args := m.Called(ctx, matrix)
	return args.Error(0)
}

func (m *MockInvoiceRepository) FindApprovalMatrix(ctx context.Context, projectID string) (*domain.ApprovalMatrix, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ApprovalMatrix), args.Error(1)
}

// MockVendorRepository is a mock type for the VendorRepositoryFacade interface
type MockVendorRepository struct {
	mock.Mock
}

func (m *MockVendorRepository) SaveVendor(ctx context.Context, vendor domain.Vendor) error {
	args := m.Called(ctx, vendor)
	return args.Error(0)
}

func (m *MockVendorRepository) FindVendorByID(ctx context.Context, vendorID string) (*domain.Vendor, error) {
	args := m.Called(ctx, vendorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Vendor), args.Error(1)
}

func (m *MockVendorRepository) AddVendorPayment(ctx context.Context, vendorID string, amount int64, at time.Time) error {
	args := m.Called(ctx, vendorID, amount, at)
	return args.Error(0)
}

// --- Test Suite Setup ---

type InvoiceServiceTestSuite struct {
	suite.Suite
	mockRepo       *MockInvoiceRepository
	mockContracts  *MockContractRepository
	mockVendors    *MockVendorRepository
	mockLedger     *MockLedgerService
	mockAuthorizer *MockAuthorizer
	service        portssvc.InvoiceSvcFacade
}

func (suite *InvoiceServiceTestSuite) SetupTest() {
	suite.mockRepo = new(MockInvoiceRepository)
	suite.mockContracts = new(MockContractRepository)
	suite.mockVendors = new(MockVendorRepository)
	suite.mockLedger = new(MockLedgerService)
	suite.mockAuthorizer = new(MockAuthorizer)
	suite.service = services.NewInvoiceService(suite.mockRepo, suite.mockContracts, suite.mockVendors, suite.mockLedger, suite.mockAuthorizer)
}

func (suite *InvoiceServiceTestSuite) signedContract() *domain.Contract {
	return &domain.Contract{
		ContractID:       "c-1",
		ProjectID:        "p-1",
		VendorID:         "v-1",
		FundingBucketID:  "b-1",
		CurrencyCode:     domain.CurrencyUSD,
		OriginalAmount:   1_000_000,
		CurrentAmount:    1_000_000,
		NotToExceed:      1_200_000,
		RetentionPercent: 10,
		Status:           domain.ContractSigned,
		ApprovalStatus:   domain.ApprovalApproved,
	}
}

func (suite *InvoiceServiceTestSuite) approvedVendor() *domain.Vendor {
	return &domain.Vendor{
		VendorID:  "v-1",
		Name:      "Riverbank Restoration LLC",
		Status:    domain.VendorApproved,
		KYCStatus: domain.KYCApproved,
	}
}

func (suite *InvoiceServiceTestSuite) routedInvoice() *domain.Invoice {
	return &domain.Invoice{
		InvoiceID:         "i-1",
		ContractID:        "c-1",
		ProjectID:         "p-1",
		VendorID:          "v-1",
		CurrencyCode:      domain.CurrencyUSD,
		InvoiceNumber:     "INV-001",
		Kind:              domain.InvoiceKindStandard,
		Subtotal:          100_000,
		Taxes:             5_000,
		Retention:         10_000,
		Total:             105_000,
		NetPayable:        95_000,
		Status:            domain.InvoiceSubmitted,
		ApprovalStatus:    domain.ApprovalPending,
		RequiredRoles:     []domain.ApproverRole{domain.RoleProjectManager, domain.RoleFinanceReviewer},
		RequiredApprovals: 2,
	}
}

// --- Test Cases ---

func (suite *InvoiceServiceTestSuite) TestCreateInvoice_ComputesDerivedAmounts() {
	ctx := context.Background()
	actor := domain.UserActor("u-1")
	contract := suite.signedContract()

	req := dto.CreateInvoiceRequest{
		ContractID:      "c-1",
		InvoiceNumber:   "INV-001",
		Subtotal:        100_000,
		Taxes:           5_000,
		PercentComplete: 10,
		CodingLines: []dto.CodingLineRequest{
			{BudgetLineID: "bl-1", Amount: 60_000},
			{BudgetLineID: "bl-2", Amount: 40_000},
		},
	}

	suite.mockContracts.On("FindContractByID", ctx, "c-1").Return(contract, nil).Once()
	suite.mockRepo.On("SaveInvoice", ctx, mock.AnythingOfType("domain.Invoice"), mock.AnythingOfType("[]domain.CodingLine")).Return(nil).Once()

	invoice, err := suite.service.CreateInvoice(ctx, req, actor)

	suite.Require().NoError(err)
	suite.Equal(int64(10_000), invoice.Retention)
	suite.Equal(int64(105_000), invoice.Total)
	suite.Equal(int64(95_000), invoice.NetPayable)
	suite.Equal(domain.InvoiceDraft, invoice.Status)
	suite.Equal(domain.InvoiceKindStandard, invoice.Kind)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *InvoiceServiceTestSuite) TestCreateInvoice_CodingMismatch() {
	ctx := context.Background()
	contract := suite.signedContract()

	suite.mockContracts.On("FindContractByID", ctx, "c-1").Return(contract, nil).Once()

	_, err := suite.service.CreateInvoice(ctx, dto.CreateInvoiceRequest{
		ContractID:    "c-1",
		InvoiceNumber: "INV-002",
		Subtotal:      100_000,
		CodingLines:   []dto.CodingLineRequest{{BudgetLineID: "bl-1", Amount: 99_999}},
	}, domain.UserActor("u-1"))

	suite.Require().ErrorIs(err, services.ErrCodingMismatch)
	suite.mockRepo.AssertNotCalled(suite.T(), "SaveInvoice", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *InvoiceServiceTestSuite) TestCreateInvoice_NegativeNetPayable() {
	ctx := context.Background()
	contract := suite.signedContract()

	suite.mockContracts.On("FindContractByID", ctx, "c-1").Return(contract, nil).Once()

	_, err := suite.service.CreateInvoice(ctx, dto.CreateInvoiceRequest{
		ContractID:    "c-1",
		InvoiceNumber: "INV-003",
		Subtotal:      1_000,
		Witholdings:   2_000,
		CodingLines:   []dto.CodingLineRequest{{BudgetLineID: "bl-1", Amount: 1_000}},
	}, domain.UserActor("u-1"))

	suite.Require().ErrorIs(err, apperrors.ErrValidation)
}

func (suite *InvoiceServiceTestSuite) TestValidateInvoice_AggregatesFindings() {
	ctx := context.Background()
	invoice := suite.routedInvoice()
	invoice.Status = domain.InvoiceDraft
	contract := suite.signedContract()
	contract.Status = domain.ContractApproved // not yet signed
	vendor := suite.approvedVendor()
	vendor.KYCStatus = domain.KYCPending

	suite.mockRepo.On("FindInvoiceByID", ctx, "i-1").Return(invoice, nil).Once()
	suite.mockContracts.On("FindContractByID", ctx, "c-1").Return(contract, nil).Once()
	suite.mockVendors.On("FindVendorByID", ctx, "v-1").Return(vendor, nil).Once()
	suite.mockRepo.On("FindCodingLinesByInvoice", ctx, "i-1").
		Return([]domain.CodingLine{{InvoiceID: "i-1", BudgetLineID: "bl-1", Amount: 100_000}}, nil).Once()
	suite.mockRepo.On("SumInvoicedByContract", ctx, "c-1", "i-1").Return(int64(0), nil).Once()

	result, err := suite.service.ValidateInvoice(ctx, "i-1")

	suite.Require().NoError(err)
	suite.False(result.Valid)
	// Both findings are reported at once: KYC and unsigned contract.
	suite.Len(result.Errors, 2)
}

func (suite *InvoiceServiceTestSuite) TestValidateInvoice_CumulativeOverContract() {
	ctx := context.Background()
	invoice := suite.routedInvoice()
	invoice.Status = domain.InvoiceDraft
	contract := suite.signedContract()
	vendor := suite.approvedVendor()

	suite.mockRepo.On("FindInvoiceByID", ctx, "i-1").Return(invoice, nil).Once()
	suite.mockContracts.On("FindContractByID", ctx, "c-1").Return(contract, nil).Once()
	suite.mockVendors.On("FindVendorByID", ctx, "v-1").Return(vendor, nil).Once()
	suite.mockRepo.On("FindCodingLinesByInvoice", ctx, "i-1").
		Return([]domain.CodingLine{{InvoiceID: "i-1", BudgetLineID: "bl-1", Amount: 100_000}}, nil).Once()
	// 950_000 already invoiced; this 105_000 invoice breaches the 1_000_000
	// contract amount.
	suite.mockRepo.On("SumInvoicedByContract", ctx, "c-1", "i-1").Return(int64(950_000), nil).Once()

	result, err := suite.service.ValidateInvoice(ctx, "i-1")

	suite.Require().NoError(err)
	suite.False(result.Valid)
	suite.Require().Len(result.Errors, 1)
	suite.Contains(result.Errors[0], "exceeds contract amount")
}

func (suite *InvoiceServiceTestSuite) TestValidateAgainstContract_PercentCompleteDivergence() {
	ctx := context.Background()
	invoice := suite.routedInvoice()
	invoice.Status = domain.InvoiceDraft
	invoice.PercentComplete = 50 // vendor claims half done
	contract := suite.signedContract()
	vendor := suite.approvedVendor()

	suite.mockRepo.On("FindInvoiceByID", ctx, "i-1").Return(invoice, nil)
	suite.mockContracts.On("FindContractByID", ctx, "c-1").Return(contract, nil)
	suite.mockVendors.On("FindVendorByID", ctx, "v-1").Return(vendor, nil).Once()
	suite.mockRepo.On("FindCodingLinesByInvoice", ctx, "i-1").
		Return([]domain.CodingLine{{InvoiceID: "i-1", BudgetLineID: "bl-1", Amount: 100_000}}, nil).Once()
	// Computed percent complete is 105_000 / 1_000_000 = 10%.
	suite.mockRepo.On("SumInvoicedByContract", ctx, "c-1", "i-1").Return(int64(0), nil)

	result, err := suite.service.ValidateAgainstContract(ctx, "i-1")

	suite.Require().NoError(err)
	suite.True(result.Valid)
	suite.Require().Len(result.Warnings, 1)
	suite.Contains(result.Warnings[0], "diverges")
}

func (suite *InvoiceServiceTestSuite) TestRouteForApproval_SnapshotsBand() {
	ctx := context.Background()
	actor := domain.UserActor("u-1")
	invoice := suite.routedInvoice()
	invoice.RequiredRoles = nil
	invoice.RequiredApprovals = 0

	max1 := int64(50_000)
	max2 := int64(500_000)
	matrix := &domain.ApprovalMatrix{
		ProjectID: "p-1",
		Bands: []domain.ApprovalBand{
			{MaxNetPayable: &max1, RequiredRoles: []domain.ApproverRole{domain.RoleProjectManager}, RequiredApprovals: 1},
			{MaxNetPayable: &max2, RequiredRoles: []domain.ApproverRole{domain.RoleProjectManager, domain.RoleFinanceReviewer}, RequiredApprovals: 2},
			{MaxNetPayable: nil, RequiredRoles: []domain.ApproverRole{domain.RoleProjectManager, domain.RoleFinanceReviewer, domain.RoleTreasurer}, RequiredApprovals: 3},
		},
	}

	suite.mockRepo.On("FindInvoiceByID", ctx, "i-1").Return(invoice, nil).Once()
	suite.mockRepo.On("FindApprovalMatrix", ctx, "p-1").Return(matrix, nil).Once()
	// Net payable 95_000 lands in the middle band.
	suite.mockRepo.On("UpdateInvoiceRouting", ctx, "i-1",
		[]domain.ApproverRole{domain.RoleProjectManager, domain.RoleFinanceReviewer}, 2, actor, mock.AnythingOfType("time.Time")).Return(nil).Once()

	routed, err := suite.service.RouteForApproval(ctx, "i-1", actor)

	suite.Require().NoError(err)
	suite.Equal(2, routed.RequiredApprovals)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *InvoiceServiceTestSuite) TestApproveInvoice_BelowThresholdStaysSubmitted() {
	ctx := context.Background()
	invoice := suite.routedInvoice()

	suite.mockRepo.On("FindInvoiceByID", ctx, "i-1").Return(invoice, nil).Once()
	suite.mockAuthorizer.On("RolesFor", ctx, "u-1", "p-1").
		Return([]domain.ApproverRole{domain.RoleProjectManager}, nil).Once()
	suite.mockRepo.On("FindDecisionsByInvoice", ctx, "i-1").Return([]domain.ApprovalDecision{}, nil).Once()
	suite.mockRepo.On("SaveDecision", ctx, mock.AnythingOfType("domain.ApprovalDecision")).Return(nil).Once()

	got, err := suite.service.ApproveInvoice(ctx, "i-1", "u-1", dto.DecideInvoiceRequest{Comment: "looks right"})

	suite.Require().NoError(err)
	suite.Equal(domain.InvoiceSubmitted, got.Status)
	suite.mockRepo.AssertNotCalled(suite.T(), "ApproveInvoiceWithEncumbrance",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *InvoiceServiceTestSuite) TestApproveInvoice_ThresholdReachedEncumbers() {
	ctx := context.Background()
	invoice := suite.routedInvoice()
	contract := suite.signedContract()
	prior := []domain.ApprovalDecision{
		{DecisionID: "d-1", InvoiceID: "i-1", ApproverID: "u-1", Role: domain.RoleProjectManager, Decision: domain.ApprovalApproved},
	}

	suite.mockRepo.On("FindInvoiceByID", ctx, "i-1").Return(invoice, nil).Once()
	suite.mockAuthorizer.On("RolesFor", ctx, "u-2", "p-1").
		Return([]domain.ApproverRole{domain.RoleFinanceReviewer}, nil).Once()
	suite.mockRepo.On("FindDecisionsByInvoice", ctx, "i-1").Return(prior, nil).Once()
	suite.mockRepo.On("SaveDecision", ctx, mock.MatchedBy(func(d domain.ApprovalDecision) bool {
		return d.ApproverID == "u-2" && d.Role == domain.RoleFinanceReviewer && d.Decision == domain.ApprovalApproved
	})).Return(nil).Once()
	suite.mockContracts.On("FindContractByID", ctx, "c-1").Return(contract, nil).Once()
	suite.mockRepo.On("ApproveInvoiceWithEncumbrance", ctx, "i-1", mock.MatchedBy(func(e domain.LedgerEntry) bool {
		return e.EntryType == domain.EntryEncumber &&
			e.BucketID == "b-1" &&
			e.FromBalance == domain.BalanceCommitted &&
			e.ToBalance == domain.BalanceEncumbered &&
			e.Debit == int64(105_000) &&
			e.ReferenceType == domain.RefInvoice &&
			e.ReferenceID == "i-1"
	}), domain.UserActor("u-2"), mock.AnythingOfType("time.Time")).Return(nil).Once()

	got, err := suite.service.ApproveInvoice(ctx, "i-1", "u-2", dto.DecideInvoiceRequest{})

	suite.Require().NoError(err)
	suite.Equal(domain.InvoiceApproved, got.Status)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *InvoiceServiceTestSuite) TestApproveInvoice_FailedEncumbranceLeavesInvoiceSubmitted() {
	ctx := context.Background()
	invoice := suite.routedInvoice()
	invoice.RequiredApprovals = 1
	contract := suite.signedContract()

	suite.mockRepo.On("FindInvoiceByID", ctx, "i-1").Return(invoice, nil).Once()
	suite.mockAuthorizer.On("RolesFor", ctx, "u-1", "p-1").
		Return([]domain.ApproverRole{domain.RoleProjectManager}, nil).Once()
	suite.mockRepo.On("FindDecisionsByInvoice", ctx, "i-1").Return([]domain.ApprovalDecision{}, nil).Once()
	suite.mockRepo.On("SaveDecision", ctx, mock.AnythingOfType("domain.ApprovalDecision")).Return(nil).Once()
	suite.mockContracts.On("FindContractByID", ctx, "c-1").Return(contract, nil).Once()
	suite.mockRepo.On("ApproveInvoiceWithEncumbrance", ctx, "i-1", mock.Anything, domain.UserActor("u-1"), mock.AnythingOfType("time.Time")).
		Return(apperrors.ErrInsufficientFunds).Once()

	_, err := suite.service.ApproveInvoice(ctx, "i-1", "u-1", dto.DecideInvoiceRequest{})

	suite.Require().ErrorIs(err, apperrors.ErrInsufficientFunds)
	suite.mockRepo.AssertNotCalled(suite.T(), "UpdateInvoiceStatus",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *InvoiceServiceTestSuite) TestApproveInvoice_SameApproverCountsOnce() {
	ctx := context.Background()
	invoice := suite.routedInvoice()
	prior := []domain.ApprovalDecision{
		{DecisionID: "d-1", InvoiceID: "i-1", ApproverID: "u-1", Role: domain.RoleProjectManager, Decision: domain.ApprovalApproved},
	}

	suite.mockRepo.On("FindInvoiceByID", ctx, "i-1").Return(invoice, nil).Once()
	suite.mockAuthorizer.On("RolesFor", ctx, "u-1", "p-1").
		Return([]domain.ApproverRole{domain.RoleProjectManager}, nil).Once()
	suite.mockRepo.On("FindDecisionsByInvoice", ctx, "i-1").Return(prior, nil).Once()

	got, err := suite.service.ApproveInvoice(ctx, "i-1", "u-1", dto.DecideInvoiceRequest{})

	suite.Require().NoError(err)
	suite.Equal(domain.InvoiceSubmitted, got.Status)
	suite.mockRepo.AssertNotCalled(suite.T(), "SaveDecision", mock.Anything, mock.Anything)
}

func (suite *InvoiceServiceTestSuite) TestApproveInvoice_AlreadyApprovedIsIdempotent() {
	ctx := context.Background()
	invoice := suite.routedInvoice()
	invoice.Status = domain.InvoiceApproved
	invoice.ApprovalStatus = domain.ApprovalApproved

	suite.mockRepo.On("FindInvoiceByID", ctx, "i-1").Return(invoice, nil).Once()

	got, err := suite.service.ApproveInvoice(ctx, "i-1", "u-3", dto.DecideInvoiceRequest{})

	suite.Require().NoError(err)
	suite.Equal(domain.InvoiceApproved, got.Status)
	suite.mockAuthorizer.AssertNotCalled(suite.T(), "RolesFor", mock.Anything, mock.Anything, mock.Anything)
	suite.mockRepo.AssertNotCalled(suite.T(), "ApproveInvoiceWithEncumbrance",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *InvoiceServiceTestSuite) TestApproveInvoice_LostRaceNoDoubleEncumber() {
	ctx := context.Background()
	invoice := suite.routedInvoice()
	invoice.RequiredApprovals = 1
	raced := suite.routedInvoice()
	raced.Status = domain.InvoiceApproved
	contract := suite.signedContract()

	suite.mockRepo.On("FindInvoiceByID", ctx, "i-1").Return(invoice, nil).Once()
	suite.mockAuthorizer.On("RolesFor", ctx, "u-1", "p-1").
		Return([]domain.ApproverRole{domain.RoleProjectManager}, nil).Once()
	suite.mockRepo.On("FindDecisionsByInvoice", ctx, "i-1").Return([]domain.ApprovalDecision{}, nil).Once()
	suite.mockRepo.On("SaveDecision", ctx, mock.AnythingOfType("domain.ApprovalDecision")).Return(nil).Once()
	suite.mockContracts.On("FindContractByID", ctx, "c-1").Return(contract, nil).Once()
	// A concurrent approver transitioned the invoice first; the guarded
	// transition leaves the ledger untouched and reports the conflict.
	suite.mockRepo.On("ApproveInvoiceWithEncumbrance", ctx, "i-1", mock.Anything, domain.UserActor("u-1"), mock.AnythingOfType("time.Time")).
		Return(apperrors.ErrConflict).Once()
	suite.mockRepo.On("FindInvoiceByID", ctx, "i-1").Return(raced, nil).Once()

	got, err := suite.service.ApproveInvoice(ctx, "i-1", "u-1", dto.DecideInvoiceRequest{})

	suite.Require().NoError(err)
	suite.Equal(domain.InvoiceApproved, got.Status)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *InvoiceServiceTestSuite) TestApproveInvoice_NotRouted() {
	ctx := context.Background()
	invoice := suite.routedInvoice()
	invoice.RequiredRoles = nil
	invoice.RequiredApprovals = 0

	suite.mockRepo.On("FindInvoiceByID", ctx, "i-1").Return(invoice, nil).Once()

	_, err := suite.service.ApproveInvoice(ctx, "i-1", "u-1", dto.DecideInvoiceRequest{})

	suite.Require().ErrorIs(err, services.ErrInvoiceNotRouted)
}

func (suite *InvoiceServiceTestSuite) TestApproveInvoice_RoleNotHeld() {
	ctx := context.Background()
	invoice := suite.routedInvoice()

	suite.mockRepo.On("FindInvoiceByID", ctx, "i-1").Return(invoice, nil).Once()
	suite.mockAuthorizer.On("RolesFor", ctx, "u-9", "p-1").
		Return([]domain.ApproverRole{domain.RoleTreasurer}, nil).Once()

	_, err := suite.service.ApproveInvoice(ctx, "i-1", "u-9", dto.DecideInvoiceRequest{})

	suite.Require().ErrorIs(err, services.ErrRoleNotHeld)
}

func (suite *InvoiceServiceTestSuite) TestMarkInvoicePaid_DisbursesAndHoldsRetention() {
	ctx := context.Background()
	actor := domain.UserActor("u-1")
	invoice := suite.routedInvoice()
	invoice.Status = domain.InvoiceScheduled
	invoice.Witholdings = 2_000
	invoice.NetPayable = 93_000 // total 105_000 - retention 10_000 - witholdings 2_000
	contract := suite.signedContract()

	suite.mockRepo.On("FindInvoiceByID", ctx, "i-1").Return(invoice, nil).Once()
	suite.mockContracts.On("FindContractByID", ctx, "c-1").Return(contract, nil).Once()
	// Net payable plus withholdings leave encumbered; retention parks in
	// reserved. Together they zero the 105_000 encumbrance.
	suite.mockRepo.On("MarkInvoicePaidWithDisbursement", ctx, "i-1", mock.MatchedBy(func(entries []domain.LedgerEntry) bool {
		if len(entries) != 2 {
			return false
		}
		disburse, hold := entries[0], entries[1]
		return disburse.EntryType == domain.EntryDisburse &&
			disburse.ToBalance == domain.BalanceDisbursed &&
			disburse.Debit == int64(95_000) &&
			disburse.ReferenceType == domain.RefDisbursement &&
			disburse.ReferenceID == "pay-run-7" &&
			hold.ToBalance == domain.BalanceReserved &&
			hold.Debit == int64(10_000) &&
			hold.ReferenceType == domain.RefRetentionHold &&
			hold.ReferenceID == "i-1"
	}), actor, mock.AnythingOfType("time.Time")).Return(nil).Once()
	suite.mockVendors.On("AddVendorPayment", ctx, "v-1", int64(93_000), mock.AnythingOfType("time.Time")).Return(nil).Once()

	paid, err := suite.service.MarkInvoicePaid(ctx, "i-1", dto.MarkPaidRequest{DisbursementID: "pay-run-7"}, actor)

	suite.Require().NoError(err)
	suite.Equal(domain.InvoicePaid, paid.Status)
	suite.mockRepo.AssertExpectations(suite.T())
	suite.mockVendors.AssertExpectations(suite.T())
}

func (suite *InvoiceServiceTestSuite) TestMarkInvoicePaid_FailedDisbursementLeavesInvoiceScheduled() {
	ctx := context.Background()
	actor := domain.UserActor("u-1")
	invoice := suite.routedInvoice()
	invoice.Status = domain.InvoiceScheduled
	contract := suite.signedContract()

	suite.mockRepo.On("FindInvoiceByID", ctx, "i-1").Return(invoice, nil).Once()
	suite.mockContracts.On("FindContractByID", ctx, "c-1").Return(contract, nil).Once()
	suite.mockRepo.On("MarkInvoicePaidWithDisbursement", ctx, "i-1", mock.Anything, actor, mock.AnythingOfType("time.Time")).
		Return(apperrors.ErrInsufficientFunds).Once()

	_, err := suite.service.MarkInvoicePaid(ctx, "i-1", dto.MarkPaidRequest{DisbursementID: "pay-run-7"}, actor)

	suite.Require().ErrorIs(err, apperrors.ErrInsufficientFunds)
	suite.mockRepo.AssertNotCalled(suite.T(), "UpdateInvoiceStatus",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	suite.mockVendors.AssertNotCalled(suite.T(), "AddVendorPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *InvoiceServiceTestSuite) TestCheckFundsAvailability_ReadOnly() {
	ctx := context.Background()
	invoice := suite.routedInvoice()
	contract := suite.signedContract()
	bucket := &domain.FundingBucket{
		BucketID:  "b-1",
		Available: 200_000,
		Committed: 100_000, // below the invoice total of 105_000
	}

	suite.mockRepo.On("FindInvoiceByID", ctx, "i-1").Return(invoice, nil).Once()
	suite.mockContracts.On("FindContractByID", ctx, "c-1").Return(contract, nil).Once()
	suite.mockLedger.On("GetBucket", ctx, "b-1").Return(bucket, nil).Once()

	check, err := suite.service.CheckFundsAvailability(ctx, "i-1")

	suite.Require().NoError(err)
	suite.False(check.Sufficient)
	suite.Equal(int64(105_000), check.Requested)
	suite.mockLedger.AssertNotCalled(suite.T(), "Encumber", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *InvoiceServiceTestSuite) TestCalculateRetention_Truncates() {
	ctx := context.Background()
	suite.Equal(int64(10_000), suite.service.CalculateRetention(ctx, 100_000, 10))
	suite.Equal(int64(99), suite.service.CalculateRetention(ctx, 999, 10))
	suite.Equal(int64(0), suite.service.CalculateRetention(ctx, 100_000, 0))
}

func (suite *InvoiceServiceTestSuite) TestSetApprovalMatrix_RequiresUnboundedTopBand() {
	ctx := context.Background()
	max := int64(1_000_000)
	req := dto.SetApprovalMatrixRequest{
		Bands: []dto.ApprovalBandRequest{
			{MaxNetPayable: int64Ptr(50_000), RequiredRoles: []string{"PROJECT_MANAGER"}, RequiredApprovals: 1},
			{MaxNetPayable: int64Ptr(500_000), RequiredRoles: []string{"PROJECT_MANAGER", "FINANCE_REVIEWER"}, RequiredApprovals: 2},
			{MaxNetPayable: &max, RequiredRoles: []string{"PROJECT_MANAGER", "FINANCE_REVIEWER", "TREASURER"}, RequiredApprovals: 3},
		},
	}

	_, err := suite.service.SetApprovalMatrix(ctx, "p-1", req, domain.UserActor("u-1"))

	suite.Require().ErrorIs(err, services.ErrMatrixMisconfigured)
}

func (suite *InvoiceServiceTestSuite) TestSetApprovalMatrix_Valid() {
	ctx := context.Background()
	req := dto.SetApprovalMatrixRequest{
		Bands: []dto.ApprovalBandRequest{
			{MaxNetPayable: int64Ptr(50_000), RequiredRoles: []string{"PROJECT_MANAGER"}, RequiredApprovals: 1},
			{MaxNetPayable: int64Ptr(500_000), RequiredRoles: []string{"PROJECT_MANAGER", "FINANCE_REVIEWER"}, RequiredApprovals: 2},
			{MaxNetPayable: nil, RequiredRoles: []string{"PROJECT_MANAGER", "FINANCE_REVIEWER", "TREASURER"}, RequiredApprovals: 3},
		},
	}

	suite.mockRepo.On("SaveApprovalMatrix", ctx, mock.AnythingOfType("domain.ApprovalMatrix")).Return(nil).Once()

	matrix, err := suite.service.SetApprovalMatrix(ctx, "p-1", req, domain.UserActor("u-1"))

	suite.Require().NoError(err)
	suite.Len(matrix.Bands, 3)
	suite.Nil(matrix.Bands[2].MaxNetPayable)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *InvoiceServiceTestSuite) TestSetApprovalMatrix_ApprovalsExceedRoles() {
	ctx := context.Background()
	req := dto.SetApprovalMatrixRequest{
		Bands: []dto.ApprovalBandRequest{
			{MaxNetPayable: int64Ptr(50_000), RequiredRoles: []string{"PROJECT_MANAGER"}, RequiredApprovals: 2},
			{MaxNetPayable: int64Ptr(500_000), RequiredRoles: []string{"PROJECT_MANAGER", "FINANCE_REVIEWER"}, RequiredApprovals: 2},
			{MaxNetPayable: nil, RequiredRoles: []string{"PROJECT_MANAGER", "FINANCE_REVIEWER", "TREASURER"}, RequiredApprovals: 3},
		},
	}

	_, err := suite.service.SetApprovalMatrix(ctx, "p-1", req, domain.UserActor("u-1"))

	suite.Require().ErrorIs(err, apperrors.ErrValidation)
}

func TestInvoiceServiceTestSuite(t *testing.T) {
	suite.Run(t, new(InvoiceServiceTestSuite))
}

func int64Ptr(v int64) *int64 { return &v }
