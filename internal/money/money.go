// Package money holds the decimal helpers every amount in the system goes
// through. Amounts are shopspring decimals rounded to cents half-up; binary
// floats never hold money.
package money

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const Places = 2

var (
	Zero    = decimal.Zero
	Hundred = decimal.NewFromInt(100)
)

// Round2 rounds to cents, ties away from zero (half-up for positive amounts).
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Format renders d with exactly two fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// MustParse is for literals in code and tests.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Parse coerces foreign input into a decimal. Anything it cannot read
// (nil, empty, malformed, NaN-ish floats) yields fallback.
func Parse(v any, fallback decimal.Decimal) decimal.Decimal {
	switch x := v.(type) {
	case nil:
		return fallback
	case decimal.Decimal:
		return x
	case *decimal.Decimal:
		if x == nil {
			return fallback
		}
		return *x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return fallback
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fallback
		}
		return d
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return fallback
		}
		return d
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fallback
		}
		return decimal.NewFromFloat(x)
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fallback
		}
		return decimal.NewFromFloat32(x)
	case int:
		return decimal.NewFromInt(int64(x))
	case int32:
		return decimal.NewFromInt32(x)
	case int64:
		return decimal.NewFromInt(x)
	case []byte:
		return Parse(string(x), fallback)
	case fmt.Stringer:
		return Parse(x.String(), fallback)
	}
	return fallback
}

// Sum adds amounts without intermediate rounding.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Clamp bounds d into [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ToCents converts a rounded amount to integer minor units for providers.
func ToCents(d decimal.Decimal) int64 {
	return Round2(d).Shift(Places).IntPart()
}

// FromCents converts integer minor units back to a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -Places)
}
