package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/greenledger-io/greenledger_backend/internal/apperrors"
	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	portsrepo "github.com/greenledger-io/greenledger_backend/internal/core/ports/repositories"
	portssvc "github.com/greenledger-io/greenledger_backend/internal/core/ports/services"
	"github.com/greenledger-io/greenledger_backend/internal/dto"
	"github.com/greenledger-io/greenledger_backend/internal/middleware"
)

var ErrNoRetentionHeld = errors.New("no withheld retention to release for project")

// verificationService owns verification gates and the attestation-driven
// retention release. Attestation results come from an external collaborator
// and are validated against the gate before anything fund-moving happens.
type verificationService struct {
	verificationRepo portsrepo.VerificationRepositoryFacade
	invoiceRepo      portsrepo.InvoiceRepositoryFacade
	ledgerRepo       portsrepo.LedgerRepositoryFacade
}

// NewVerificationService creates a new verification service.
func NewVerificationService(verificationRepo portsrepo.VerificationRepositoryFacade, invoiceRepo portsrepo.InvoiceRepositoryFacade, ledgerRepo portsrepo.LedgerRepositoryFacade) portssvc.VerificationSvcFacade {
	return &verificationService{
		verificationRepo: verificationRepo,
		invoiceRepo:      invoiceRepo,
		ledgerRepo:       ledgerRepo,
	}
}

var _ portssvc.VerificationSvcFacade = (*verificationService)(nil)

func (s *verificationService) SubmitVerification(ctx context.Context, req dto.SubmitVerificationRequest, actor domain.Actor) (*domain.VerificationGate, error) {
	criteria := make([]domain.Criterion, 0, len(req.Criteria))
	for i, raw := range req.Criteria {
		c, err := domain.DecodeCriterion(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: criterion %d: %v", apperrors.ErrValidation, i, err)
		}
		criteria = append(criteria, c)
	}

	now := time.Now().UTC()
	gate := domain.VerificationGate{
		GateID:    uuid.NewString(),
		ProjectID: req.ProjectID,
		TokenID:   req.TokenID,
		Method:    req.Method,
		Status:    domain.GatePending,
		Criteria:  criteria,
	}
	gate.Touch(actor, now)

	if err := s.verificationRepo.SaveGate(ctx, gate); err != nil {
		return nil, fmt.Errorf("failed to save verification gate: %w", err)
	}

	middleware.GetLoggerFromCtx(ctx).Info("Verification gate opened",
		slog.String("gate_id", gate.GateID),
		slog.String("project_id", gate.ProjectID),
		slog.String("method", string(gate.Method)))
	return &gate, nil
}

func (s *verificationService) GetGate(ctx context.Context, gateID string) (*domain.VerificationGate, error) {
	return s.verificationRepo.FindGateByID(ctx, gateID)
}

// Attest records an attestation against a gate. The gate is looked up first:
// an attestation naming a gate that does not exist is rejected outright with
// no side effects. A duplicate delivery on a gate already in a terminal state
// returns the recorded attestation instead of moving funds twice.
func (s *verificationService) Attest(ctx context.Context, gateID string, req dto.AttestationRequest) (*domain.VerificationAttestation, error) {
	gate, err := s.verificationRepo.FindGateByID(ctx, gateID)
	if err != nil {
		return nil, err
	}
	if gate.Terminal() {
		return s.recordedAttestation(ctx, gateID)
	}
	if req.Passed == nil {
		return nil, fmt.Errorf("%w: attestation result is required", apperrors.ErrValidation)
	}

	now := time.Now().UTC()
	actor := domain.UserActor(req.AttestorID)
	att := domain.VerificationAttestation{
		AttestationID: uuid.NewString(),
		GateID:        gateID,
		AttestorID:    req.AttestorID,
		Passed:        *req.Passed,
		Notes:         req.Notes,
		AttestedAt:    now,
	}

	if !att.Passed {
		if err := s.verificationRepo.SaveFailedAttestation(ctx, att, actor, now); err != nil {
			return nil, fmt.Errorf("failed to record attestation: %w", err)
		}
		middleware.GetLoggerFromCtx(ctx).Info("Verification gate failed",
			slog.String("gate_id", gateID),
			slog.String("attestor_id", req.AttestorID))
		return &att, nil
	}

	releaseInvoice, releaseEntry, err := s.buildRetentionRelease(ctx, gate, actor, now)
	if err != nil {
		return nil, err
	}
	if err := s.verificationRepo.SavePassedAttestation(ctx, att, releaseInvoice, releaseEntry, actor, now); err != nil {
		return nil, fmt.Errorf("failed to record passing attestation: %w", err)
	}

	logger := middleware.GetLoggerFromCtx(ctx)
	if releaseInvoice != nil {
		logger.Info("Verification gate passed, retention released",
			slog.String("gate_id", gateID),
			slog.String("release_invoice_id", releaseInvoice.InvoiceID),
			slog.Int64("released", releaseInvoice.NetPayable))
	} else {
		logger.Info("Verification gate passed, no retention held",
			slog.String("gate_id", gateID))
	}
	return &att, nil
}

// OnAttestationResult is the callback surface for the external verification
// collaborator. It runs under the system actor.
func (s *verificationService) OnAttestationResult(ctx context.Context, gateID string, passed bool) error {
	req := dto.AttestationRequest{
		AttestorID: domain.SystemActor().String(),
		Passed:     &passed,
		Notes:      "external verification callback",
	}
	_, err := s.Attest(ctx, gateID, req)
	return err
}

// buildRetentionRelease aggregates every paid invoice whose retention is
// still held and produces the single auto-approved retention-release invoice
// plus its RELEASE ledger entry. A project with nothing held releases
// nothing; the gate still passes.
func (s *verificationService) buildRetentionRelease(ctx context.Context, gate *domain.VerificationGate, actor domain.Actor, now time.Time) (*domain.Invoice, *domain.LedgerEntry, error) {
	held, err := s.invoiceRepo.FindPaidRetentionByProject(ctx, gate.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if len(held) == 0 {
		return nil, nil, nil
	}

	var total int64
	for _, inv := range held {
		total += inv.Retention
	}
	first := held[0]

	release := domain.Invoice{
		InvoiceID:      uuid.NewString(),
		ContractID:     first.ContractID,
		ProjectID:      gate.ProjectID,
		VendorID:       first.VendorID,
		CurrencyCode:   first.CurrencyCode,
		InvoiceNumber:  fmt.Sprintf("RET-%s", gate.GateID[:8]),
		Kind:           domain.InvoiceKindRetentionRelease,
		Subtotal:       total,
		Total:          total,
		NetPayable:     total,
		Status:         domain.InvoiceApproved,
		ApprovalStatus: domain.ApprovalApproved,
	}
	release.Touch(actor, now)

	bucket, err := s.ledgerRepo.FindBucketByProject(ctx, gate.ProjectID, first.CurrencyCode)
	if err != nil {
		return nil, nil, err
	}
	entry, err := buildEntry(domain.EntryRelease, bucket.BucketID, bucket.CurrencyCode,
		domain.BalanceReserved, domain.BalanceAvailable,
		domain.RefVerificationGate, gate.GateID, total, actor, now)
	if err != nil {
		return nil, nil, err
	}
	return &release, &entry, nil
}

// recordedAttestation returns the attestation that drove a terminal gate to
// its final state.
func (s *verificationService) recordedAttestation(ctx context.Context, gateID string) (*domain.VerificationAttestation, error) {
	atts, err := s.verificationRepo.FindAttestationsByGate(ctx, gateID)
	if err != nil {
		return nil, err
	}
	if len(atts) == 0 {
		return nil, fmt.Errorf("%w: gate %s is terminal but has no attestation", apperrors.ErrNotFound, gateID)
	}
	last := atts[len(atts)-1]
	return &last, nil
}
