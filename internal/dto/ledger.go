package dto

import "github.com/greenledger-io/greenledger_backend/internal/core/domain"

// CreateBucketRequest creates a project funding bucket.
type CreateBucketRequest struct {
	ProjectID    string              `json:"projectID" binding:"required"`
	Name         string              `json:"name" binding:"required"`
	CurrencyCode domain.CurrencyCode `json:"currencyCode" binding:"required,currencycode"`
}

// FundMovementRequest is the body shared by the ledger operations; the bucket
// comes from the route and the reference id names the driving entity
// (contract, invoice, disbursement or verification gate depending on the
// operation).
type FundMovementRequest struct {
	ReferenceID string `json:"referenceID" binding:"required"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Memo        string `json:"memo"`
}

// LedgerEntryResponse is a single ledger entry as returned by the API.
// DisplayAmount is the moved amount rendered in major units for clients;
// the minor-unit fields stay authoritative.
type LedgerEntryResponse struct {
	EntryID       string `json:"entryID"`
	EntryNumber   string `json:"entryNumber"`
	EntryType     string `json:"entryType"`
	Debit         int64  `json:"debitMinorUnits"`
	Credit        int64  `json:"creditMinorUnits"`
	CurrencyCode  string `json:"currencyCode"`
	DisplayAmount string `json:"displayAmount"`
	BucketID      string `json:"bucketID"`
	ReferenceType string `json:"referenceType"`
	ReferenceID   string `json:"referenceID"`
	BalanceAfter  int64  `json:"balanceAfter"`
	CreatedAt     string `json:"createdAt"`
	CreatedBy     string `json:"createdBy"`
}

// ListEntriesResponse is a paginated page of ledger entries.
type ListEntriesResponse struct {
	Entries   []LedgerEntryResponse `json:"entries"`
	NextToken *string               `json:"nextToken,omitempty"`
}
