package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/greenledger-io/greenledger_backend/internal/apperrors"
	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	portsrepo "github.com/greenledger-io/greenledger_backend/internal/core/ports/repositories"
	portssvc "github.com/greenledger-io/greenledger_backend/internal/core/ports/services"
	"github.com/greenledger-io/greenledger_backend/internal/dto"
	"github.com/greenledger-io/greenledger_backend/internal/middleware"
)

var ErrTokenRetired = errors.New("token is already retired")

// financeLoopService drives funds from external deposit through credit
// minting to retirement, closing with an immutable receipt.
type financeLoopService struct {
	financeRepo      portsrepo.FinanceLoopRepositoryFacade
	ledgerRepo       portsrepo.LedgerRepositoryFacade
	verificationRepo portsrepo.VerificationRepositoryFacade
}

// NewFinanceLoopService creates a new finance-loop service.
func NewFinanceLoopService(financeRepo portsrepo.FinanceLoopRepositoryFacade, ledgerRepo portsrepo.LedgerRepositoryFacade, verificationRepo portsrepo.VerificationRepositoryFacade) portssvc.FinanceLoopSvcFacade {
	return &financeLoopService{
		financeRepo:      financeRepo,
		ledgerRepo:       ledgerRepo,
		verificationRepo: verificationRepo,
	}
}

var _ portssvc.FinanceLoopSvcFacade = (*financeLoopService)(nil)

// Deposit credits the project's designated bucket. DepositID is the caller's
// idempotency key: a replay returns the original record and leaves the ledger
// untouched.
func (s *financeLoopService) Deposit(ctx context.Context, req dto.DepositRequest, actor domain.Actor) (*domain.Deposit, error) {
	if existing, err := s.financeRepo.FindDepositByID(ctx, req.DepositID); err == nil {
		return existing, nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	bucket, err := s.ledgerRepo.FindBucketByProject(ctx, req.ProjectID, req.CurrencyCode)
	if err != nil {
		return nil, fmt.Errorf("no %s bucket for project %s: %w", req.CurrencyCode, req.ProjectID, err)
	}

	now := time.Now().UTC()
	entry, err := buildEntry(domain.EntryCredit, bucket.BucketID, bucket.CurrencyCode,
		domain.BalanceExternal, domain.BalanceAvailable,
		domain.RefDeposit, req.DepositID, req.Amount, actor, now)
	if err != nil {
		return nil, err
	}

	deposit := domain.Deposit{
		DepositID:     req.DepositID,
		ProjectID:     req.ProjectID,
		BucketID:      bucket.BucketID,
		CurrencyCode:  req.CurrencyCode,
		Amount:        req.Amount,
		Source:        req.Source,
		LedgerEntryID: entry.EntryID,
		Status:        domain.DepositSettled,
	}
	deposit.Touch(actor, now)

	if _, err := s.financeRepo.SaveDepositWithEntry(ctx, deposit, entry); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			// Lost a race with a concurrent replay of the same deposit.
			return s.financeRepo.FindDepositByID(ctx, req.DepositID)
		}
		return nil, fmt.Errorf("failed to settle deposit: %w", err)
	}

	middleware.GetLoggerFromCtx(ctx).Info("Deposit settled",
		slog.String("deposit_id", deposit.DepositID),
		slog.String("bucket_id", bucket.BucketID),
		slog.Int64("amount", req.Amount))
	return &deposit, nil
}

// Mint records an environmental-credit token. Minting is a registry write
// only; it never touches bucket balances. Replaying a mint returns the
// existing token.
func (s *financeLoopService) Mint(ctx context.Context, req dto.MintRequest, actor domain.Actor) (*domain.CreditToken, error) {
	if existing, err := s.financeRepo.FindTokenByID(ctx, req.TokenID); err == nil {
		return existing, nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	token := domain.CreditToken{
		TokenID:        req.TokenID,
		ProjectID:      req.ProjectID,
		Serial:         req.Serial,
		QuantityTonnes: req.QuantityTonnes,
		ContractID:     req.ContractID,
		InvoiceID:      req.InvoiceID,
		Status:         domain.TokenMinted,
	}
	token.Touch(actor, now)

	if err := s.financeRepo.SaveToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to mint token: %w", err)
	}

	middleware.GetLoggerFromCtx(ctx).Info("Credit token minted",
		slog.String("token_id", token.TokenID),
		slog.String("serial", token.Serial),
		slog.Int64("quantity_tonnes", token.QuantityTonnes))
	return &token, nil
}

// Retire transitions the token to RETIRED and generates its receipt exactly
// once. Retiring an already-retired token returns the original receipt.
func (s *financeLoopService) Retire(ctx context.Context, tokenID string, actor domain.Actor) (*domain.Receipt, error) {
	token, err := s.financeRepo.FindTokenByID(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if token.Status == domain.TokenRetired {
		return s.financeRepo.FindReceiptByToken(ctx, tokenID)
	}

	events, deposited, disbursed, err := s.traceProject(ctx, token.ProjectID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	receipt := domain.Receipt{
		ReceiptID:      uuid.NewString(),
		TokenID:        token.TokenID,
		ProjectID:      token.ProjectID,
		Serial:         token.Serial,
		GeneratedAt:    now,
		Events:         events,
		TotalDeposited: deposited,
		TotalDisbursed: disbursed,
	}

	if err := s.financeRepo.RetireToken(ctx, tokenID, receipt, actor, now); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			// A concurrent retirement won; its receipt is the record.
			return s.financeRepo.FindReceiptByToken(ctx, tokenID)
		}
		return nil, fmt.Errorf("failed to retire token: %w", err)
	}

	middleware.GetLoggerFromCtx(ctx).Info("Credit token retired",
		slog.String("token_id", tokenID),
		slog.String("receipt_id", receipt.ReceiptID),
		slog.Int64("total_deposited", deposited),
		slog.Int64("total_disbursed", disbursed))
	return &receipt, nil
}

func (s *financeLoopService) GetReceipt(ctx context.Context, receiptID string) (*domain.Receipt, error) {
	return s.financeRepo.FindReceiptByID(ctx, receiptID)
}

// ProjectTrace is the pure read behind receipts: deposits, disbursements and
// attestations for a project, ordered by timestamp.
func (s *financeLoopService) ProjectTrace(ctx context.Context, projectID string) ([]domain.ReceiptEvent, error) {
	events, _, _, err := s.traceProject(ctx, projectID)
	return events, err
}

func (s *financeLoopService) traceProject(ctx context.Context, projectID string) ([]domain.ReceiptEvent, int64, int64, error) {
	deposits, err := s.financeRepo.FindDepositsByProject(ctx, projectID)
	if err != nil {
		return nil, 0, 0, err
	}
	disbursements, err := s.ledgerRepo.FindProjectEntriesByType(ctx, projectID, []domain.EntryType{domain.EntryDisburse})
	if err != nil {
		return nil, 0, 0, err
	}
	attestations, err := s.verificationRepo.FindAttestationsByProject(ctx, projectID)
	if err != nil {
		return nil, 0, 0, err
	}

	events := make([]domain.ReceiptEvent, 0, len(deposits)+len(disbursements)+len(attestations))
	var deposited, disbursed int64
	for _, d := range deposits {
		deposited += d.Amount
		events = append(events, domain.ReceiptEvent{
			OccurredAt:  d.CreatedAt,
			Kind:        "deposit",
			ReferenceID: d.DepositID,
			Amount:      d.Amount,
			Detail:      fmt.Sprintf("deposit from %s", d.Source),
		})
	}
	for _, e := range disbursements {
		disbursed += e.Amount()
		events = append(events, domain.ReceiptEvent{
			OccurredAt:  e.CreatedAt,
			Kind:        "disbursement",
			ReferenceID: e.EntryID,
			Amount:      e.Amount(),
			Detail:      fmt.Sprintf("%s %s %s", e.EntryNumber, e.ReferenceType, e.ReferenceID),
		})
	}
	for _, a := range attestations {
		outcome := "failed"
		if a.Passed {
			outcome = "passed"
		}
		events = append(events, domain.ReceiptEvent{
			OccurredAt:  a.AttestedAt,
			Kind:        "attestation",
			ReferenceID: a.AttestationID,
			Detail:      fmt.Sprintf("gate %s %s by %s", a.GateID, outcome, a.AttestorID),
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return events, deposited, disbursed, nil
}
