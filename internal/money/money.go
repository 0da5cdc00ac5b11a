// Package money provides the fixed-point decimal helpers used everywhere a
// monetary value, rate, or score crosses a component boundary. All amounts
// are shopspring/decimal values rounded to two fractional digits; comparisons
// that need to tolerate rounding drift use Tolerance (0.01).
package money

import "github.com/shopspring/decimal"

// Tolerance is the reconciliation slack permitted by invariants 501 and 602,
// and by pricing/quote comparisons (502, 603/109).
var Tolerance = decimal.NewFromFloat(0.01)

// Round rounds d to two fractional digits, half-away-from-zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// New builds a rounded money value from a float literal. Intended for tests
// and fixed constants only; values crossing an API boundary should already
// be decimal.Decimal.
func New(f float64) decimal.Decimal {
	return Round(decimal.NewFromFloat(f))
}

// WithinTolerance reports whether a and b differ by no more than Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// Zero is the canonical zero money value.
var Zero = decimal.Zero
