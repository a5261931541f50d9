package utils

import (
	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	"github.com/shopspring/decimal"
)

// minorUnitDigits maps supported currencies to their minor-unit precision.
var minorUnitDigits = map[domain.CurrencyCode]int32{
	domain.CurrencyUSD:  2,
	domain.CurrencyEUR:  2,
	domain.CurrencyUSDC: 6,
}

// FormatMinorUnits renders a minor-unit amount as a display string in major
// units, e.g. 105000 USD -> "1050.00". Display only; never fed back into
// money arithmetic.
func FormatMinorUnits(amount int64, currency domain.CurrencyCode) string {
	digits, ok := minorUnitDigits[currency]
	if !ok {
		digits = 2
	}
	return decimal.New(amount, -digits).StringFixed(digits)
}
