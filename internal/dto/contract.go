package dto

import "github.com/greenledger-io/greenledger_backend/internal/core/domain"

// CreateContractRequest creates a contract in DRAFT.
type CreateContractRequest struct {
	ProjectID        string              `json:"projectID" binding:"required"`
	VendorID         string              `json:"vendorID" binding:"required"`
	FundingBucketID  string              `json:"fundingBucketID" binding:"required"`
	CurrencyCode     domain.CurrencyCode `json:"currencyCode" binding:"required,currencycode"`
	OriginalAmount   int64               `json:"originalAmount" binding:"required,gt=0"`
	NotToExceed      int64               `json:"notToExceed" binding:"required,gt=0"`
	RetentionPercent int64               `json:"retentionPercent" binding:"gte=0,lte=100"`
	Title            string              `json:"title" binding:"required"`
}

// CreateBudgetLineRequest creates a project budget line.
type CreateBudgetLineRequest struct {
	ProjectID     string `json:"projectID" binding:"required"`
	Code          string `json:"code" binding:"required"`
	Description   string `json:"description"`
	RevisedBudget int64  `json:"revisedBudget" binding:"required,gt=0"`
}

// BudgetAllocationRequest is one line of an AllocateBudgetRequest.
type BudgetAllocationRequest struct {
	BudgetLineID string `json:"budgetLineID" binding:"required"`
	Amount       int64  `json:"amount" binding:"required,gt=0"`
	Percent      int64  `json:"percent" binding:"gte=0,lte=100"`
}

// AllocateBudgetRequest replaces a contract's budget allocations.
type AllocateBudgetRequest struct {
	Allocations []BudgetAllocationRequest `json:"allocations" binding:"required,min=1,dive"`
}

// CreateChangeOrderRequest creates a change order against a contract.
type CreateChangeOrderRequest struct {
	DeltaAmount   int64  `json:"deltaAmount" binding:"required"`
	DeltaTimeDays int    `json:"deltaTimeDays"`
	Reason        string `json:"reason" binding:"required"`
}
