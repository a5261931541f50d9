package domain_test

import (
	"testing"
	"time"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(entryType domain.EntryType, from, to domain.BalanceKind, amount int64) domain.LedgerEntry {
	e := domain.LedgerEntry{
		EntryID:     "e-" + string(entryType),
		EntryType:   entryType,
		FromBalance: from,
		ToBalance:   to,
	}
	if entryType.IsCreditDirection() {
		e.Credit = amount
	} else {
		e.Debit = amount
	}
	return e
}

func TestReplayEntries_FullLifecycle(t *testing.T) {
	entries := []domain.LedgerEntry{
		entry(domain.EntryCredit, domain.BalanceExternal, domain.BalanceAvailable, 500_000),
		entry(domain.EntryCommit, domain.BalanceAvailable, domain.BalanceCommitted, 300_000),
		entry(domain.EntryEncumber, domain.BalanceCommitted, domain.BalanceEncumbered, 105_000),
		entry(domain.EntryDisburse, domain.BalanceEncumbered, domain.BalanceDisbursed, 95_000),
		entry(domain.EntryDisburse, domain.BalanceEncumbered, domain.BalanceReserved, 10_000),
	}

	derived, err := domain.ReplayEntries(entries)
	require.NoError(t, err)
	assert.Equal(t, int64(200_000), derived[domain.BalanceAvailable])
	assert.Equal(t, int64(195_000), derived[domain.BalanceCommitted])
	assert.Equal(t, int64(0), derived[domain.BalanceEncumbered])
	assert.Equal(t, int64(95_000), derived[domain.BalanceDisbursed])
	assert.Equal(t, int64(10_000), derived[domain.BalanceReserved])
}

func TestReplayEntries_ExternalLegIgnored(t *testing.T) {
	entries := []domain.LedgerEntry{
		entry(domain.EntryCredit, domain.BalanceExternal, domain.BalanceAvailable, 1000),
		entry(domain.EntryDebit, domain.BalanceAvailable, domain.BalanceExternal, 400),
	}
	derived, err := domain.ReplayEntries(entries)
	require.NoError(t, err)
	assert.Equal(t, int64(600), derived[domain.BalanceAvailable])
}

func TestReplayEntries_UnknownBalance(t *testing.T) {
	bad := entry(domain.EntryCommit, domain.BalanceKind("PETTY_CASH"), domain.BalanceCommitted, 10)
	_, err := domain.ReplayEntries([]domain.LedgerEntry{bad})
	assert.Error(t, err)
}

func TestEntryType_PrimaryBalance(t *testing.T) {
	assert.Equal(t, domain.BalanceCommitted, domain.EntryCommit.PrimaryBalance())
	assert.Equal(t, domain.BalanceEncumbered, domain.EntryEncumber.PrimaryBalance())
	assert.Equal(t, domain.BalanceDisbursed, domain.EntryDisburse.PrimaryBalance())
	assert.Equal(t, domain.BalanceAvailable, domain.EntryRelease.PrimaryBalance())
	assert.Equal(t, domain.BalanceAvailable, domain.EntryCredit.PrimaryBalance())
}

func TestFundingBucket_Total(t *testing.T) {
	b := domain.FundingBucket{Available: 1, Committed: 2, Encumbered: 3, Disbursed: 4, Reserved: 5}
	assert.Equal(t, int64(15), b.Total())

	got, err := b.Balance(domain.BalanceReserved)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)

	_, err = b.Balance(domain.BalanceExternal)
	assert.Error(t, err)
}

func TestActor_RoundTrip(t *testing.T) {
	user := domain.UserActor("u-1")
	assert.Equal(t, "user:u-1", user.String())

	parsed, err := domain.ParseActor("user:u-1")
	require.NoError(t, err)
	assert.Equal(t, user, parsed)

	system, err := domain.ParseActor("system")
	require.NoError(t, err)
	assert.True(t, system.IsSystem())

	_, err = domain.ParseActor("user:")
	assert.Error(t, err)
	_, err = domain.ParseActor("robot:9")
	assert.Error(t, err)
}

func TestAuditFields_Touch(t *testing.T) {
	var f domain.AuditFields
	creator := domain.UserActor("u-1")
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.Touch(creator, t0)
	assert.Equal(t, t0, f.CreatedAt)
	assert.Equal(t, creator, f.CreatedBy)

	updater := domain.UserActor("u-2")
	t1 := t0.Add(time.Hour)
	f.Touch(updater, t1)
	assert.Equal(t, t0, f.CreatedAt)
	assert.Equal(t, creator, f.CreatedBy)
	assert.Equal(t, t1, f.LastUpdatedAt)
	assert.Equal(t, updater, f.LastUpdatedBy)
}
