package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CurrencyCode is an ISO-4217-style currency identifier.
type CurrencyCode string

const (
	CurrencyUSD  CurrencyCode = "USD"
	CurrencyEUR  CurrencyCode = "EUR"
	CurrencyUSDC CurrencyCode = "USDC"
)

// Money is a fixed-point amount in minor currency units (cents for USD).
// All arithmetic is integer arithmetic; floating point never touches a money
// code path. Division truncates toward zero.
type Money struct {
	Amount   int64        `json:"amountMinorUnits"`
	Currency CurrencyCode `json:"currency"`
}

// NewMoney creates a Money value.
func NewMoney(amount int64, currency CurrencyCode) Money {
	return Money{Amount: amount, Currency: currency}
}

// Zero returns a zero amount in the given currency.
func Zero(currency CurrencyCode) Money {
	return Money{Currency: currency}
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }

// Add returns m + other. The currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub returns m - other. The currencies must match.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// Neg returns the negated amount.
func (m Money) Neg() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// Cmp compares two amounts of the same currency: -1 if m < other, 0 if equal,
// +1 if m > other.
func (m Money) Cmp(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// PercentOf returns amount * percent / 100 truncated toward zero.
// Used for retention withholding.
func PercentOf(amount int64, percent int64) int64 {
	return mulDiv(amount, percent, 100)
}

// ProportionalShare returns total * part / whole truncated toward zero.
// The sum of shares across parts may fall short of total; callers own the
// remainder policy.
func ProportionalShare(total, part, whole int64) (int64, error) {
	if whole == 0 {
		return 0, fmt.Errorf("proportional share with zero whole")
	}
	return mulDiv(total, part, whole), nil
}

// mulDiv computes a*b/c exactly with truncation toward zero. The intermediate
// product is held in a decimal so a*b cannot overflow int64.
func mulDiv(a, b, c int64) int64 {
	product := decimal.NewFromInt(a).Mul(decimal.NewFromInt(b))
	quotient, _ := product.QuoRem(decimal.NewFromInt(c), 0)
	return quotient.IntPart()
}
