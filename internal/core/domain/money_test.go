package domain_test

import (
	"testing"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_AddSub(t *testing.T) {
	a := domain.NewMoney(100_000, domain.CurrencyUSD)
	b := domain.NewMoney(25_000, domain.CurrencyUSD)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(125_000), sum.Amount)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(75_000), diff.Amount)

	_, err = a.Add(domain.NewMoney(1, domain.CurrencyEUR))
	assert.Error(t, err)
}

func TestMoney_Cmp(t *testing.T) {
	a := domain.NewMoney(100, domain.CurrencyUSD)
	b := domain.NewMoney(200, domain.CurrencyUSD)

	cmp, err := a.Cmp(b)
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = b.Cmp(a)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)

	cmp, err = a.Cmp(a)
	require.NoError(t, err)
	assert.Equal(t, 0, cmp)

	_, err = a.Cmp(domain.NewMoney(100, domain.CurrencyUSDC))
	assert.Error(t, err)
}

func TestPercentOf_Truncates(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		percent int64
		want    int64
	}{
		{"even split", 100_000, 10, 10_000},
		{"truncates toward zero", 999, 10, 99},
		{"zero percent", 100_000, 0, 0},
		{"full percent", 12_345, 100, 12_345},
		{"single minor unit", 1, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.PercentOf(tt.amount, tt.percent))
		})
	}
}

func TestProportionalShare_FlooringRemainder(t *testing.T) {
	// Three uneven allocations against a 100 whole: the floored shares
	// leave a remainder that callers must account for explicitly.
	total := int64(1000)
	parts := []int64{333, 333, 333}
	whole := int64(1000)

	var allocated int64
	for _, p := range parts {
		share, err := domain.ProportionalShare(total, p, whole)
		require.NoError(t, err)
		assert.Equal(t, int64(333), share)
		allocated += share
	}
	assert.Equal(t, int64(1), total-allocated)
}

func TestProportionalShare_LargeDelta(t *testing.T) {
	// Delta 150000 across allocations 400000/350000/250000 of a 1000000
	// contract: shares floor to 60000/52500/37500 with zero remainder here,
	// and to uneven values when the delta does not divide cleanly.
	delta := int64(150_000)
	whole := int64(1_000_000)

	s1, err := domain.ProportionalShare(delta, 400_000, whole)
	require.NoError(t, err)
	s2, err := domain.ProportionalShare(delta, 350_000, whole)
	require.NoError(t, err)
	s3, err := domain.ProportionalShare(delta, 250_000, whole)
	require.NoError(t, err)
	assert.Equal(t, int64(60_000), s1)
	assert.Equal(t, int64(52_500), s2)
	assert.Equal(t, int64(37_500), s3)
	assert.Equal(t, delta, s1+s2+s3)

	// A delta that cannot divide evenly leaves the remainder unallocated.
	odd := int64(100)
	o1, err := domain.ProportionalShare(odd, 333, 1000)
	require.NoError(t, err)
	o2, err := domain.ProportionalShare(odd, 333, 1000)
	require.NoError(t, err)
	o3, err := domain.ProportionalShare(odd, 334, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(33), o1)
	assert.Equal(t, int64(33), o2)
	assert.Equal(t, int64(33), o3)
	assert.Equal(t, int64(1), odd-(o1+o2+o3))
}

func TestProportionalShare_ZeroWhole(t *testing.T) {
	_, err := domain.ProportionalShare(100, 50, 0)
	assert.Error(t, err)
}

func TestProportionalShare_NoIntermediateOverflow(t *testing.T) {
	// amount * percent would overflow int64 if computed naively.
	big := int64(5_000_000_000_000_000_000)
	share, err := domain.ProportionalShare(big, 50, 100)
	require.NoError(t, err)
	assert.Equal(t, big/2, share)
}
