package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
)

func TestFormatMinorUnits(t *testing.T) {
	assert.Equal(t, "1050.00", FormatMinorUnits(105_000, domain.CurrencyUSD))
	assert.Equal(t, "0.99", FormatMinorUnits(99, domain.CurrencyEUR))
	assert.Equal(t, "-12.50", FormatMinorUnits(-1_250, domain.CurrencyUSD))
	assert.Equal(t, "1.000000", FormatMinorUnits(1_000_000, domain.CurrencyUSDC))
}

func TestFormatMinorUnitsUnknownCurrencyDefaultsToTwoDigits(t *testing.T) {
	assert.Equal(t, "1.00", FormatMinorUnits(100, domain.CurrencyCode("XXX")))
}
