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

// MockFinanceLoopRepository is a mock type for the FinanceLoopRepositoryFacade interface
type MockFinanceLoopRepository struct {
	mock.Mock
}

func (m *MockFinanceLoopRepository) SaveDepositWithEntry(ctx context.Context, deposit domain.Deposit, entry domain.LedgerEntry) (*domain.FundingBucket, error) {
	args := m.Called(ctx, deposit, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FundingBucket), args.Error(1)
}

func (m *MockFinanceLoopRepository) FindDepositByID(ctx context.Context, depositID string) (*domain.Deposit, error) {
	args := m.Called(ctx, depositID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Deposit), args.Error(1)
}

func (m *MockFinanceLoopRepository) FindDepositsByProject(ctx context.Context, projectID string) ([]domain.Deposit, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Deposit), args.Error(1)
}

func (m *MockFinanceLoopRepository) SaveToken(ctx context.Context, token domain.CreditToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockFinanceLoopRepository) FindTokenByID(ctx context.Context, tokenID string) (*domain.CreditToken, error) {
	args := m.Called(ctx, tokenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CreditToken), args.Error(1)
}

func (m *MockFinanceLoopRepository) RetireToken(ctx context.Context, tokenID string, receipt domain.Receipt, actor domain.Actor, at time.Time) error {
	args := m.Called(ctx, tokenID, receipt, actor, at)
	return args.Error(0)
}

func (m *MockFinanceLoopRepository) FindReceiptByID(ctx context.Context, receiptID string) (*domain.Receipt, error) {
	args := m.Called(ctx, receiptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Receipt), args.Error(1)
}

func (m *MockFinanceLoopRepository) FindReceiptByToken(ctx context.Context, tokenID string) (*domain.Receipt, error) {
	args := m.Called(ctx, tokenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Receipt), args.Error(1)
}

// --- Test Suite Setup ---

type FinanceLoopServiceTestSuite struct {
	suite.Suite
	mockRepo         *MockFinanceLoopRepository
	mockLedger       *MockLedgerRepository
	mockVerification *MockVerificationRepository
	service          portssvc.FinanceLoopSvcFacade
}

func (suite *FinanceLoopServiceTestSuite) SetupTest() {
	suite.mockRepo = new(MockFinanceLoopRepository)
	suite.mockLedger = new(MockLedgerRepository)
	suite.mockVerification = new(MockVerificationRepository)
	suite.service = services.NewFinanceLoopService(suite.mockRepo, suite.mockLedger, suite.mockVerification)
}

func (suite *FinanceLoopServiceTestSuite) projectBucket() *domain.FundingBucket {
	return &domain.FundingBucket{
		BucketID:     "b-1",
		ProjectID:    "p-1",
		CurrencyCode: domain.CurrencyUSD,
	}
}

// --- Test Cases ---

func (suite *FinanceLoopServiceTestSuite) TestDeposit_SettlesWithCreditEntry() {
	ctx := context.Background()
	actor := domain.UserActor("u-1")
	bucket := suite.projectBucket()
	req := dto.DepositRequest{
		DepositID:    "dep-1",
		ProjectID:    "p-1",
		CurrencyCode: domain.CurrencyUSD,
		Amount:       500_000,
		Source:       "Cascadia Climate Fund",
	}

	suite.mockRepo.On("FindDepositByID", ctx, "dep-1").Return(nil, apperrors.ErrNotFound).Once()
	suite.mockLedger.On("FindBucketByProject", ctx, "p-1", domain.CurrencyUSD).Return(bucket, nil).Once()
	suite.mockRepo.On("SaveDepositWithEntry", ctx,
		mock.MatchedBy(func(d domain.Deposit) bool {
			return d.DepositID == "dep-1" && d.Status == domain.DepositSettled && d.BucketID == "b-1"
		}),
		mock.MatchedBy(func(e domain.LedgerEntry) bool {
			return e.EntryType == domain.EntryCredit &&
				e.FromBalance == domain.BalanceExternal &&
				e.ToBalance == domain.BalanceAvailable &&
				e.Credit == 500_000 &&
				e.ReferenceType == domain.RefDeposit &&
				e.ReferenceID == "dep-1"
		})).Return(bucket, nil).Once()

	deposit, err := suite.service.Deposit(ctx, req, actor)

	suite.Require().NoError(err)
	suite.Equal(domain.DepositSettled, deposit.Status)
	suite.NotEmpty(deposit.LedgerEntryID)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *FinanceLoopServiceTestSuite) TestDeposit_ReplayReturnsOriginal() {
	ctx := context.Background()
	existing := &domain.Deposit{DepositID: "dep-1", ProjectID: "p-1", Amount: 500_000, Status: domain.DepositSettled}

	suite.mockRepo.On("FindDepositByID", ctx, "dep-1").Return(existing, nil).Once()

	deposit, err := suite.service.Deposit(ctx, dto.DepositRequest{
		DepositID:    "dep-1",
		ProjectID:    "p-1",
		CurrencyCode: domain.CurrencyUSD,
		Amount:       500_000,
		Source:       "Cascadia Climate Fund",
	}, domain.UserActor("u-1"))

	suite.Require().NoError(err)
	suite.Equal(existing, deposit)
	suite.mockRepo.AssertNotCalled(suite.T(), "SaveDepositWithEntry", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *FinanceLoopServiceTestSuite) TestDeposit_ConcurrentReplayRace() {
	ctx := context.Background()
	bucket := suite.projectBucket()
	existing := &domain.Deposit{DepositID: "dep-1", ProjectID: "p-1", Amount: 500_000, Status: domain.DepositSettled}

	suite.mockRepo.On("FindDepositByID", ctx, "dep-1").Return(nil, apperrors.ErrNotFound).Once()
	suite.mockLedger.On("FindBucketByProject", ctx, "p-1", domain.CurrencyUSD).Return(bucket, nil).Once()
	suite.mockRepo.On("SaveDepositWithEntry", ctx, mock.AnythingOfType("domain.Deposit"), mock.AnythingOfType("domain.LedgerEntry")).
		Return(nil, apperrors.ErrDuplicate).Once()
	suite.mockRepo.On("FindDepositByID", ctx, "dep-1").Return(existing, nil).Once()

	deposit, err := suite.service.Deposit(ctx, dto.DepositRequest{
		DepositID:    "dep-1",
		ProjectID:    "p-1",
		CurrencyCode: domain.CurrencyUSD,
		Amount:       500_000,
		Source:       "Cascadia Climate Fund",
	}, domain.UserActor("u-1"))

	suite.Require().NoError(err)
	suite.Equal(existing, deposit)
}

func (suite *FinanceLoopServiceTestSuite) TestMint_NoLedgerContact() {
	ctx := context.Background()
	actor := domain.UserActor("u-1")
	req := dto.MintRequest{
		TokenID:        "t-1",
		ProjectID:      "p-1",
		Serial:         "GL-2026-0001",
		QuantityTonnes: 120,
	}

	suite.mockRepo.On("FindTokenByID", ctx, "t-1").Return(nil, apperrors.ErrNotFound).Once()
	suite.mockRepo.On("SaveToken", ctx, mock.MatchedBy(func(t domain.CreditToken) bool {
		return t.Status == domain.TokenMinted && t.Serial == "GL-2026-0001"
	})).Return(nil).Once()

	token, err := suite.service.Mint(ctx, req, actor)

	suite.Require().NoError(err)
	suite.Equal(domain.TokenMinted, token.Status)
	suite.mockLedger.AssertNotCalled(suite.T(), "ApplyTransition", mock.Anything, mock.Anything)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *FinanceLoopServiceTestSuite) TestMint_ReplayReturnsExisting() {
	ctx := context.Background()
	existing := &domain.CreditToken{TokenID: "t-1", Serial: "GL-2026-0001", Status: domain.TokenMinted}

	suite.mockRepo.On("FindTokenByID", ctx, "t-1").Return(existing, nil).Once()

	token, err := suite.service.Mint(ctx, dto.MintRequest{
		TokenID: "t-1", ProjectID: "p-1", Serial: "GL-2026-0001", QuantityTonnes: 120,
	}, domain.UserActor("u-1"))

	suite.Require().NoError(err)
	suite.Equal(existing, token)
	suite.mockRepo.AssertNotCalled(suite.T(), "SaveToken", mock.Anything, mock.Anything)
}

func (suite *FinanceLoopServiceTestSuite) TestRetire_BuildsOrderedReceipt() {
	ctx := context.Background()
	actor := domain.UserActor("u-1")
	token := &domain.CreditToken{TokenID: "t-1", ProjectID: "p-1", Serial: "GL-2026-0001", Status: domain.TokenMinted}

	t0 := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)
	t2 := t0.Add(48 * time.Hour)

	deposit := domain.Deposit{DepositID: "dep-1", ProjectID: "p-1", Amount: 500_000, Source: "Cascadia Climate Fund"}
	deposit.CreatedAt = t0
	disbursement := domain.LedgerEntry{
		EntryID: "e-1", EntryNumber: "DSB-x", EntryType: domain.EntryDisburse,
		Debit: 95_000, ReferenceType: domain.RefDisbursement, ReferenceID: "pay-run-7",
	}
	disbursement.CreatedAt = t1
	attestation := domain.VerificationAttestation{
		AttestationID: "a-1", GateID: "g-1", AttestorID: "att-1", Passed: true, AttestedAt: t2,
	}

	suite.mockRepo.On("FindTokenByID", ctx, "t-1").Return(token, nil).Once()
	suite.mockRepo.On("FindDepositsByProject", ctx, "p-1").Return([]domain.Deposit{deposit}, nil).Once()
	suite.mockLedger.On("FindProjectEntriesByType", ctx, "p-1", []domain.EntryType{domain.EntryDisburse}).
		Return([]domain.LedgerEntry{disbursement}, nil).Once()
	suite.mockVerification.On("FindAttestationsByProject", ctx, "p-1").
		Return([]domain.VerificationAttestation{attestation}, nil).Once()
	suite.mockRepo.On("RetireToken", ctx, "t-1", mock.MatchedBy(func(r domain.Receipt) bool {
		return r.TokenID == "t-1" &&
			r.TotalDeposited == 500_000 &&
			r.TotalDisbursed == 95_000 &&
			len(r.Events) == 3 &&
			r.Events[0].Kind == "deposit" &&
			r.Events[1].Kind == "disbursement" &&
			r.Events[2].Kind == "attestation"
	}), actor, mock.AnythingOfType("time.Time")).Return(nil).Once()

	receipt, err := suite.service.Retire(ctx, "t-1", actor)

	suite.Require().NoError(err)
	suite.Equal("t-1", receipt.TokenID)
	suite.Len(receipt.Events, 3)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *FinanceLoopServiceTestSuite) TestRetire_AlreadyRetiredReturnsOriginalReceipt() {
	ctx := context.Background()
	retiredAt := time.Now().UTC()
	token := &domain.CreditToken{TokenID: "t-1", ProjectID: "p-1", Status: domain.TokenRetired, RetiredAt: &retiredAt, ReceiptID: "r-1"}
	receipt := &domain.Receipt{ReceiptID: "r-1", TokenID: "t-1"}

	suite.mockRepo.On("FindTokenByID", ctx, "t-1").Return(token, nil).Once()
	suite.mockRepo.On("FindReceiptByToken", ctx, "t-1").Return(receipt, nil).Once()

	got, err := suite.service.Retire(ctx, "t-1", domain.UserActor("u-1"))

	suite.Require().NoError(err)
	suite.Equal(receipt, got)
	suite.mockRepo.AssertNotCalled(suite.T(), "RetireToken",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *FinanceLoopServiceTestSuite) TestRetire_LostRaceFallsBackToWinner() {
	ctx := context.Background()
	token := &domain.CreditToken{TokenID: "t-1", ProjectID: "p-1", Status: domain.TokenMinted}
	winner := &domain.Receipt{ReceiptID: "r-won", TokenID: "t-1"}

	suite.mockRepo.On("FindTokenByID", ctx, "t-1").Return(token, nil).Once()
	suite.mockRepo.On("FindDepositsByProject", ctx, "p-1").Return([]domain.Deposit{}, nil).Once()
	suite.mockLedger.On("FindProjectEntriesByType", ctx, "p-1", mock.Anything).Return([]domain.LedgerEntry{}, nil).Once()
	suite.mockVerification.On("FindAttestationsByProject", ctx, "p-1").Return([]domain.VerificationAttestation{}, nil).Once()
	suite.mockRepo.On("RetireToken", ctx, "t-1", mock.AnythingOfType("domain.Receipt"), mock.Anything, mock.Anything).
		Return(apperrors.ErrConflict).Once()
	suite.mockRepo.On("FindReceiptByToken", ctx, "t-1").Return(winner, nil).Once()

	got, err := suite.service.Retire(ctx, "t-1", domain.UserActor("u-1"))

	suite.Require().NoError(err)
	suite.Equal(winner, got)
}

func (suite *FinanceLoopServiceTestSuite) TestProjectTrace_OrdersByTimestamp() {
	ctx := context.Background()

	t0 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	late := domain.Deposit{DepositID: "dep-2", Amount: 100}
	late.CreatedAt = t0.Add(time.Hour)
	early := domain.LedgerEntry{EntryID: "e-1", EntryType: domain.EntryDisburse, Debit: 50}
	early.CreatedAt = t0

	suite.mockRepo.On("FindDepositsByProject", ctx, "p-1").Return([]domain.Deposit{late}, nil).Once()
	suite.mockLedger.On("FindProjectEntriesByType", ctx, "p-1", mock.Anything).Return([]domain.LedgerEntry{early}, nil).Once()
	suite.mockVerification.On("FindAttestationsByProject", ctx, "p-1").Return([]domain.VerificationAttestation{}, nil).Once()

	events, err := suite.service.ProjectTrace(ctx, "p-1")

	suite.Require().NoError(err)
	suite.Require().Len(events, 2)
	suite.Equal("disbursement", events[0].Kind)
	suite.Equal("deposit", events[1].Kind)
}

func TestFinanceLoopServiceTestSuite(t *testing.T) {
	suite.Run(t, new(FinanceLoopServiceTestSuite))
}
