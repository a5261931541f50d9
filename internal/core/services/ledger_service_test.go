package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/greenledger-io/greenledger_backend/internal/apperrors"
	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	portssvc "github.com/greenledger-io/greenledger_backend/internal/core/ports/services"
	"github.com/greenledger-io/greenledger_backend/internal/core/services"
	"github.com/greenledger-io/greenledger_backend/internal/dto"
)

// MockLedgerRepository is a mock type for the LedgerRepositoryFacade interface
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) CreateBucket(ctx context.Context, bucket domain.FundingBucket) error {
	args := m.Called(ctx, bucket)
	return args.Error(0)
}

func (m *MockLedgerRepository) FindBucketByID(ctx context.Context, bucketID string) (*domain.FundingBucket, error) {
	args := m.Called(ctx, bucketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FundingBucket), args.Error(1)
}

func (m *MockLedgerRepository) FindBucketByProject(ctx context.Context, projectID string, currency domain.CurrencyCode) (*domain.FundingBucket, error) {
	args := m.Called(ctx, projectID, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FundingBucket), args.Error(1)
}

func (m *MockLedgerRepository) ApplyTransition(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, *domain.FundingBucket, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*domain.LedgerEntry), args.Get(1).(*domain.FundingBucket), args.Error(2)
}

func (m *MockLedgerRepository) FindEntriesByBucket(ctx context.Context, bucketID string) ([]domain.LedgerEntry, error) {
	args := m.Called(ctx, bucketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepository) ListEntriesByBucket(ctx context.Context, bucketID string, limit int, nextToken *string) ([]domain.LedgerEntry, *string, error) {
	args := m.Called(ctx, bucketID, limit, nextToken)
	var token *string
	if args.Get(1) != nil {
		token = args.Get(1).(*string)
	}
	if args.Get(0) == nil {
		return nil, token, args.Error(2)
	}
	return args.Get(0).([]domain.LedgerEntry), token, args.Error(2)
}

func (m *MockLedgerRepository) FindProjectEntriesByType(ctx context.Context, projectID string, types []domain.EntryType) ([]domain.LedgerEntry, error) {
	args := m.Called(ctx, projectID, types)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerEntry), args.Error(1)
}

// --- Test Suite Setup ---

type LedgerServiceTestSuite struct {
	suite.Suite
	mockRepo *MockLedgerRepository
	service  portssvc.LedgerSvcFacade
}

func (suite *LedgerServiceTestSuite) SetupTest() {
	suite.mockRepo = new(MockLedgerRepository)
	suite.service = services.NewLedgerService(suite.mockRepo)
}

func (suite *LedgerServiceTestSuite) testBucket() *domain.FundingBucket {
	return &domain.FundingBucket{
		BucketID:     uuid.NewString(),
		ProjectID:    "p-1",
		Name:         "Restoration Fund",
		CurrencyCode: domain.CurrencyUSD,
		Available:    500_000,
	}
}

// --- Test Cases ---

func (suite *LedgerServiceTestSuite) TestCreateBucket_Success() {
	ctx := context.Background()
	actor := domain.UserActor("u-1")
	req := dto.CreateBucketRequest{
		ProjectID:    "p-1",
		Name:         "Restoration Fund",
		CurrencyCode: domain.CurrencyUSD,
	}

	suite.mockRepo.On("CreateBucket", ctx, mock.AnythingOfType("domain.FundingBucket")).Return(nil).Once()

	bucket, err := suite.service.CreateBucket(ctx, req, actor)

	suite.Require().NoError(err)
	suite.Require().NotNil(bucket)
	suite.NotEmpty(bucket.BucketID)
	suite.Equal(req.ProjectID, bucket.ProjectID)
	suite.Equal(int64(0), bucket.Total())
	suite.Equal(actor, bucket.CreatedBy)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *LedgerServiceTestSuite) TestCommit_BuildsCommitEntry() {
	ctx := context.Background()
	actor := domain.UserActor("u-1")
	bucket := suite.testBucket()
	contractID := uuid.NewString()

	suite.mockRepo.On("FindBucketByID", ctx, bucket.BucketID).Return(bucket, nil).Once()
	suite.mockRepo.On("ApplyTransition", ctx, mock.MatchedBy(func(e domain.LedgerEntry) bool {
		return e.EntryType == domain.EntryCommit &&
			e.FromBalance == domain.BalanceAvailable &&
			e.ToBalance == domain.BalanceCommitted &&
			e.ReferenceType == domain.RefContract &&
			e.ReferenceID == contractID &&
			e.Debit == 300_000 && e.Credit == 0
	})).Return(&domain.LedgerEntry{EntryNumber: "CMT-x", EntryType: domain.EntryCommit, Debit: 300_000, BalanceAfter: 300_000}, bucket, nil).Once()

	entry, err := suite.service.Commit(ctx, bucket.BucketID, contractID, 300_000, actor)

	suite.Require().NoError(err)
	suite.Equal(int64(300_000), entry.Amount())
	suite.Equal(int64(300_000), entry.BalanceAfter)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *LedgerServiceTestSuite) TestCommit_InsufficientFunds() {
	ctx := context.Background()
	actor := domain.UserActor("u-1")
	bucket := suite.testBucket()

	suite.mockRepo.On("FindBucketByID", ctx, bucket.BucketID).Return(bucket, nil).Once()
	suite.mockRepo.On("ApplyTransition", ctx, mock.AnythingOfType("domain.LedgerEntry")).
		Return(nil, nil, apperrors.ErrInsufficientFunds).Once()

	_, err := suite.service.Commit(ctx, bucket.BucketID, uuid.NewString(), 600_000, actor)

	suite.Require().ErrorIs(err, apperrors.ErrInsufficientFunds)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *LedgerServiceTestSuite) TestCommit_NonPositiveAmount() {
	ctx := context.Background()
	actor := domain.UserActor("u-1")
	bucket := suite.testBucket()

	suite.mockRepo.On("FindBucketByID", ctx, bucket.BucketID).Return(bucket, nil).Twice()

	_, err := suite.service.Commit(ctx, bucket.BucketID, uuid.NewString(), 0, actor)
	suite.Require().ErrorIs(err, apperrors.ErrValidation)

	_, err = suite.service.Commit(ctx, bucket.BucketID, uuid.NewString(), -100, actor)
	suite.Require().ErrorIs(err, apperrors.ErrValidation)

	suite.mockRepo.AssertNotCalled(suite.T(), "ApplyTransition", mock.Anything, mock.Anything)
}

func (suite *LedgerServiceTestSuite) TestRelease_CreditDirection() {
	ctx := context.Background()
	actor := domain.SystemActor()
	bucket := suite.testBucket()
	gateID := uuid.NewString()

	suite.mockRepo.On("FindBucketByID", ctx, bucket.BucketID).Return(bucket, nil).Once()
	suite.mockRepo.On("ApplyTransition", ctx, mock.MatchedBy(func(e domain.LedgerEntry) bool {
		return e.EntryType == domain.EntryRelease &&
			e.FromBalance == domain.BalanceReserved &&
			e.ToBalance == domain.BalanceAvailable &&
			e.ReferenceType == domain.RefVerificationGate &&
			e.Credit == 25_000 && e.Debit == 0 &&
			e.CreatedBy.IsSystem()
	})).Return(&domain.LedgerEntry{EntryType: domain.EntryRelease, Credit: 25_000}, bucket, nil).Once()

	_, err := suite.service.Release(ctx, bucket.BucketID, gateID, 25_000, actor)

	suite.Require().NoError(err)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *LedgerServiceTestSuite) TestReconcile_Balanced() {
	ctx := context.Background()
	bucket := suite.testBucket()
	bucket.Available = 200_000
	bucket.Committed = 195_000
	bucket.Disbursed = 95_000
	bucket.Reserved = 10_000

	entries := []domain.LedgerEntry{
		{EntryType: domain.EntryCredit, FromBalance: domain.BalanceExternal, ToBalance: domain.BalanceAvailable, Credit: 500_000},
		{EntryType: domain.EntryCommit, FromBalance: domain.BalanceAvailable, ToBalance: domain.BalanceCommitted, Debit: 300_000},
		{EntryType: domain.EntryEncumber, FromBalance: domain.BalanceCommitted, ToBalance: domain.BalanceEncumbered, Debit: 105_000},
		{EntryType: domain.EntryDisburse, FromBalance: domain.BalanceEncumbered, ToBalance: domain.BalanceDisbursed, Debit: 95_000},
		{EntryType: domain.EntryDisburse, FromBalance: domain.BalanceEncumbered, ToBalance: domain.BalanceReserved, Debit: 10_000},
	}

	suite.mockRepo.On("FindBucketByID", ctx, bucket.BucketID).Return(bucket, nil).Once()
	suite.mockRepo.On("FindEntriesByBucket", ctx, bucket.BucketID).Return(entries, nil).Once()

	report, err := suite.service.Reconcile(ctx, bucket.BucketID)

	suite.Require().NoError(err)
	suite.True(report.Balanced())
	suite.Equal(5, report.EntryCount)
	suite.Equal(int64(510_000), report.TotalDebits)
	suite.Equal(int64(500_000), report.TotalCredits)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *LedgerServiceTestSuite) TestReconcile_ReportsDiscrepancy() {
	ctx := context.Background()
	bucket := suite.testBucket()
	bucket.Available = 499_999 // one minor unit off the log

	entries := []domain.LedgerEntry{
		{EntryType: domain.EntryCredit, FromBalance: domain.BalanceExternal, ToBalance: domain.BalanceAvailable, Credit: 500_000},
	}

	suite.mockRepo.On("FindBucketByID", ctx, bucket.BucketID).Return(bucket, nil).Once()
	suite.mockRepo.On("FindEntriesByBucket", ctx, bucket.BucketID).Return(entries, nil).Once()

	report, err := suite.service.Reconcile(ctx, bucket.BucketID)

	suite.Require().NoError(err)
	suite.False(report.Balanced())
	suite.Require().Len(report.Discrepancies, 1)
	d := report.Discrepancies[0]
	suite.Equal(domain.BalanceAvailable, d.Balance)
	suite.Equal(int64(500_000), d.Expected)
	suite.Equal(int64(499_999), d.Actual)
	suite.Equal(int64(-1), d.Delta)
}

func (suite *LedgerServiceTestSuite) TestListEntries_ClampsLimit() {
	ctx := context.Background()
	bucketID := uuid.NewString()

	suite.mockRepo.On("ListEntriesByBucket", ctx, bucketID, 50, (*string)(nil)).
		Return([]domain.LedgerEntry{}, nil, nil).Twice()

	_, _, err := suite.service.ListEntries(ctx, bucketID, 0, nil)
	suite.Require().NoError(err)
	_, _, err = suite.service.ListEntries(ctx, bucketID, 10_000, nil)
	suite.Require().NoError(err)
	suite.mockRepo.AssertExpectations(suite.T())
}

func TestLedgerServiceTestSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceTestSuite))
}
