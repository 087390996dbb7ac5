package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the precision of every stored amount.
const CurrencyPlaces = 2

// MaxAmount is the largest magnitude a NUMERIC(10,2) column holds.
var MaxAmount = decimal.RequireFromString("99999999.99")

// Exponent bounds keep rounding from expanding inputs like "1e30000000".
const (
	minAmountExponent = -32
	maxAmountExponent = 8
)

// ParseAmount parses form input into a rounded currency amount. Blank is zero.
// Non-numeric input and magnitudes above MaxAmount are validation errors.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: not a number", ErrValidation)
	}
	if exp := d.Exponent(); exp < minAmountExponent || exp > maxAmountExponent {
		return decimal.Zero, fmt.Errorf("%w: amount out of range", ErrValidation)
	}
	d = RoundCurrency(d)
	if !WithinRange(d) {
		return decimal.Zero, fmt.Errorf("%w: amount exceeds %s", ErrValidation, MaxAmount.StringFixed(CurrencyPlaces))
	}
	return d, nil
}

// ParseAmountLenient turns form input into a currency amount.
// Blank, non-numeric or out-of-range input yields zero instead of an error.
func ParseAmountLenient(s string) decimal.Decimal {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// WithinRange reports whether d fits a stored amount column.
func WithinRange(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(MaxAmount)
}

// RoundCurrency rounds half away from zero to two places.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}
