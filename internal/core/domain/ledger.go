package domain

import "fmt"

// EntryType classifies a ledger entry by the balance transition it records.
type EntryType string

const (
	EntryCommit   EntryType = "COMMIT"   // available -> committed
	EntryEncumber EntryType = "ENCUMBER" // committed -> encumbered
	EntryDisburse EntryType = "DISBURSE" // encumbered -> disbursed (or -> reserved for withheld retention)
	EntryRelease  EntryType = "RELEASE"  // reserved/committed -> available
	EntryCredit   EntryType = "CREDIT"   // external -> available (deposit)
	EntryDebit    EntryType = "DEBIT"    // available -> external (correction)
)

// ReferenceType names the entity a ledger entry was recorded on behalf of.
type ReferenceType string

const (
	RefContract         ReferenceType = "contract"
	RefChangeOrder      ReferenceType = "change_order"
	RefInvoice          ReferenceType = "invoice"
	RefDisbursement     ReferenceType = "disbursement"
	RefRetentionHold    ReferenceType = "retention_hold"
	RefVerificationGate ReferenceType = "verification_gate"
	RefDeposit          ReferenceType = "deposit"
	RefAdjustment       ReferenceType = "adjustment"
)

// LedgerEntry is an immutable double-entry record of a single balance
// transition. Exactly one of Debit/Credit is non-zero. Entries are never
// updated or deleted; corrections are new offsetting entries.
type LedgerEntry struct {
	EntryID       string        `json:"entryID"`
	EntryNumber   string        `json:"entryNumber"`
	EntryType     EntryType     `json:"entryType"`
	Debit         int64         `json:"debitMinorUnits"`
	Credit        int64         `json:"creditMinorUnits"`
	BucketID      string        `json:"bucketID"`
	CurrencyCode  CurrencyCode  `json:"currencyCode"`
	FromBalance   BalanceKind   `json:"fromBalance"`
	ToBalance     BalanceKind   `json:"toBalance"`
	ReferenceType ReferenceType `json:"referenceType"`
	ReferenceID   string        `json:"referenceID"`
	// BalanceAfter is the balance of the entry type's primary partition
	// immediately after the update, for point-in-time audit without replay.
	BalanceAfter int64 `json:"balanceAfter"`
	Memo         string
	AuditFields
}

// Amount returns the moved amount regardless of direction.
func (e *LedgerEntry) Amount() int64 {
	if e.Debit != 0 {
		return e.Debit
	}
	return e.Credit
}

// PrimaryBalance is the partition whose post-update balance an entry type
// records in BalanceAfter.
func (t EntryType) PrimaryBalance() BalanceKind {
	switch t {
	case EntryCommit:
		return BalanceCommitted
	case EntryEncumber:
		return BalanceEncumbered
	case EntryDisburse:
		return BalanceDisbursed
	case EntryRelease, EntryCredit, EntryDebit:
		return BalanceAvailable
	default:
		return BalanceAvailable
	}
}

// IsCreditDirection reports whether the entry type records a credit (money
// entering or returning to available) rather than a debit.
func (t EntryType) IsCreditDirection() bool {
	return t == EntryCredit || t == EntryRelease
}

// PartitionDiscrepancy is the difference between a partition balance derived
// from the entry log and the persisted bucket field.
type PartitionDiscrepancy struct {
	Balance  BalanceKind `json:"balance"`
	Expected int64       `json:"expected"`
	Actual   int64       `json:"actual"`
	Delta    int64       `json:"delta"`
}

// ReconciliationReport is the result of replaying a bucket's entry log
// against its persisted partition balances. A non-empty Discrepancies slice
// is a data-integrity alarm, not a user error; reconciliation reports rather
// than raises so it can run as a background health check.
type ReconciliationReport struct {
	BucketID      string                 `json:"bucketID"`
	EntryCount    int                    `json:"entryCount"`
	TotalDebits   int64                  `json:"totalDebits"`
	TotalCredits  int64                  `json:"totalCredits"`
	Discrepancies []PartitionDiscrepancy `json:"discrepancies"`
}

// Balanced reports whether the replay matched the persisted balances exactly.
func (r *ReconciliationReport) Balanced() bool {
	return len(r.Discrepancies) == 0
}

// ReplayEntries derives the five partition balances implied by a sequence of
// ledger entries, starting from zero.
func ReplayEntries(entries []LedgerEntry) (map[BalanceKind]int64, error) {
	derived := map[BalanceKind]int64{
		BalanceAvailable:  0,
		BalanceCommitted:  0,
		BalanceEncumbered: 0,
		BalanceDisbursed:  0,
		BalanceReserved:   0,
	}
	for _, e := range entries {
		amount := e.Amount()
		if e.FromBalance != BalanceExternal {
			if _, ok := derived[e.FromBalance]; !ok {
				return nil, fmt.Errorf("entry %s has unknown source balance %q", e.EntryID, e.FromBalance)
			}
			derived[e.FromBalance] -= amount
		}
		if e.ToBalance != BalanceExternal {
			if _, ok := derived[e.ToBalance]; !ok {
				return nil, fmt.Errorf("entry %s has unknown destination balance %q", e.EntryID, e.ToBalance)
			}
			derived[e.ToBalance] += amount
		}
	}
	return derived, nil
}
