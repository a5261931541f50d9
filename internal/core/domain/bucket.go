package domain

import "fmt"

// BalanceKind names one of the five mutually exclusive partitions of a
// funding bucket.
type BalanceKind string

const (
	BalanceAvailable  BalanceKind = "AVAILABLE"
	BalanceCommitted  BalanceKind = "COMMITTED"
	BalanceEncumbered BalanceKind = "ENCUMBERED"
	BalanceDisbursed  BalanceKind = "DISBURSED"
	BalanceReserved   BalanceKind = "RESERVED"
)

// BalanceExternal marks the outside world as the source or destination of a
// transition (deposits in, corrections out). It is never a bucket partition.
const BalanceExternal BalanceKind = "EXTERNAL"

// FundingBucket is a named, currency-scoped pool of money partitioned into
// five balances. All five are always >= 0. Buckets are mutated exclusively
// through ledger operations; they are never deleted, only drained to zero.
type FundingBucket struct {
	BucketID     string       `json:"bucketID"`
	ProjectID    string       `json:"projectID"`
	Name         string       `json:"name"`
	CurrencyCode CurrencyCode `json:"currencyCode"`
	Available    int64        `json:"available"`
	Committed    int64        `json:"committed"`
	Encumbered   int64        `json:"encumbered"`
	Disbursed    int64        `json:"disbursed"`
	Reserved     int64        `json:"reserved"`
	AuditFields
}

// Balance returns the named partition's balance.
func (b *FundingBucket) Balance(kind BalanceKind) (int64, error) {
	switch kind {
	case BalanceAvailable:
		return b.Available, nil
	case BalanceCommitted:
		return b.Committed, nil
	case BalanceEncumbered:
		return b.Encumbered, nil
	case BalanceDisbursed:
		return b.Disbursed, nil
	case BalanceReserved:
		return b.Reserved, nil
	default:
		return 0, fmt.Errorf("unknown balance kind %q", kind)
	}
}

// Total returns the arithmetic sum of the five partitions, i.e. all money the
// bucket has ever absorbed and not returned externally.
func (b *FundingBucket) Total() int64 {
	return b.Available + b.Committed + b.Encumbered + b.Disbursed + b.Reserved
}
