package models

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnits is the number of fractional digits kept for amounts.
const MinorUnits = 2

// MaxAmount is the largest single amount accepted. Its cents fit in an int64
// with room for totals of many such amounts.
var MaxAmount = decimal.NewFromInt(1_000_000_000_000)

var (
	ErrInvalidAmount     = errors.New("amount must be a decimal number")
	ErrAmountPrecision   = errors.New("amount must have at most 2 decimal places")
	ErrAmountNotPositive = errors.New("amount must be greater than zero")
	ErrAmountTooLarge    = errors.New("amount must not exceed 1000000000000")
)

var hundred = decimal.NewFromInt(100)

// ParseAmount parses a user-supplied positive decimal amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrAmountNotPositive
	}
	if d.GreaterThan(MaxAmount) {
		return decimal.Zero, ErrAmountTooLarge
	}
	if !d.Equal(d.Truncate(MinorUnits)) {
		return decimal.Zero, ErrAmountPrecision
	}
	return d, nil
}

// ToCents converts a decimal amount to integer minor units.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromCents converts integer minor units to a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -MinorUnits)
}
