package domain_test

import (
	"testing"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func int64Ptr(v int64) *int64 { return &v }

func TestApprovalMatrix_BandFor(t *testing.T) {
	matrix := domain.ApprovalMatrix{
		ProjectID: "p-1",
		Bands: []domain.ApprovalBand{
			{MaxNetPayable: int64Ptr(100_000), RequiredRoles: []domain.ApproverRole{domain.RoleProjectManager}, RequiredApprovals: 1},
			{MaxNetPayable: int64Ptr(1_000_000), RequiredRoles: []domain.ApproverRole{domain.RoleProjectManager, domain.RoleFinanceReviewer}, RequiredApprovals: 2},
			{MaxNetPayable: nil, RequiredRoles: []domain.ApproverRole{domain.RoleProjectManager, domain.RoleFinanceReviewer, domain.RoleTreasurer}, RequiredApprovals: 3},
		},
	}

	assert.Equal(t, 1, matrix.BandFor(50_000).RequiredApprovals)
	// Boundary amounts belong to the lower band.
	assert.Equal(t, 1, matrix.BandFor(100_000).RequiredApprovals)
	assert.Equal(t, 2, matrix.BandFor(100_001).RequiredApprovals)
	assert.Equal(t, 3, matrix.BandFor(5_000_000).RequiredApprovals)
}

func TestApprovalThresholds_RolesFor(t *testing.T) {
	thresholds := domain.ApprovalThresholds{
		FinanceReviewThreshold: 100_000,
		TreasurerThreshold:     500_000,
		MultisigThreshold:      2_000_000,
	}

	assert.Equal(t, []domain.ApproverRole{domain.RoleProjectManager}, thresholds.RolesFor(100_000))
	assert.Equal(t,
		[]domain.ApproverRole{domain.RoleProjectManager, domain.RoleFinanceReviewer},
		thresholds.RolesFor(100_001))
	assert.Equal(t,
		[]domain.ApproverRole{domain.RoleProjectManager, domain.RoleFinanceReviewer, domain.RoleTreasurer},
		thresholds.RolesFor(500_001))
	// Escalation is judged on magnitude: a deductive change order of the
	// same size needs the same sign-offs.
	assert.Equal(t,
		[]domain.ApproverRole{domain.RoleProjectManager, domain.RoleFinanceReviewer, domain.RoleTreasurer, domain.RoleDAOMultisig},
		thresholds.RolesFor(-2_500_000))
}

func TestVendor_Payable(t *testing.T) {
	v := domain.Vendor{Status: domain.VendorApproved, KYCStatus: domain.KYCApproved}
	assert.True(t, v.Payable())

	v.KYCStatus = domain.KYCPending
	assert.False(t, v.Payable())

	v.KYCStatus = domain.KYCApproved
	v.Status = domain.VendorSuspended
	assert.False(t, v.Payable())
}

func TestVendor_Reportable1099(t *testing.T) {
	v := domain.Vendor{Eligible1099: true, PaidYearToDate: domain.Form1099Threshold}
	assert.True(t, v.Reportable1099())

	v.PaidYearToDate = domain.Form1099Threshold - 1
	assert.False(t, v.Reportable1099())

	v.PaidYearToDate = domain.Form1099Threshold
	v.Eligible1099 = false
	assert.False(t, v.Reportable1099())
}

func TestValidationResult_Accumulates(t *testing.T) {
	r := domain.ValidationResult{Valid: true}
	r.AddWarning("heads up")
	assert.True(t, r.Valid)

	r.AddError("blocking")
	r.AddError("also blocking")
	assert.False(t, r.Valid)
	assert.Len(t, r.Errors, 2)
	assert.Len(t, r.Warnings, 1)
}
