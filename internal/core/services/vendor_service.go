package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	portsrepo "github.com/greenledger-io/greenledger_backend/internal/core/ports/repositories"
	portssvc "github.com/greenledger-io/greenledger_backend/internal/core/ports/services"
	"github.com/greenledger-io/greenledger_backend/internal/middleware"
)

type vendorService struct {
	vendorRepo portsrepo.VendorRepositoryFacade
}

// NewVendorService creates a new vendor service.
func NewVendorService(vendorRepo portsrepo.VendorRepositoryFacade) portssvc.VendorSvcFacade {
	return &vendorService{vendorRepo: vendorRepo}
}

var _ portssvc.VendorSvcFacade = (*vendorService)(nil)

func (s *vendorService) GetVendor(ctx context.Context, vendorID string) (*domain.Vendor, error) {
	return s.vendorRepo.FindVendorByID(ctx, vendorID)
}

func (s *vendorService) RegisterVendor(ctx context.Context, vendor domain.Vendor, actor domain.Actor) (*domain.Vendor, error) {
	if vendor.VendorID == "" {
		vendor.VendorID = uuid.NewString()
	}
	if vendor.Status == "" {
		vendor.Status = domain.VendorPending
	}
	if vendor.KYCStatus == "" {
		vendor.KYCStatus = domain.KYCPending
	}
	vendor.Touch(actor, time.Now().UTC())

	if err := s.vendorRepo.SaveVendor(ctx, vendor); err != nil {
		return nil, fmt.Errorf("failed to save vendor: %w", err)
	}

	middleware.GetLoggerFromCtx(ctx).Info("Vendor registered",
		slog.String("vendor_id", vendor.VendorID),
		slog.String("status", string(vendor.Status)))
	return &vendor, nil
}
