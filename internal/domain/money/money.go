// Package money implements the currency arithmetic shared by carts and
// orders. Amounts are shopspring decimals rounded to two places at the
// boundaries where they are stored.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for stored amounts.
const Places = 2

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Violation describes a computed amount that broke a non-negativity
// invariant and was replaced by a safe value.
type Violation struct {
	Field    string
	Computed decimal.Decimal
	Used     decimal.Decimal
}

func (v Violation) String() string {
	return fmt.Sprintf("%s computed as %s, clamped to %s", v.Field, v.Computed, v.Used)
}

// Round rounds d to the stored precision.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// LineTotal returns unit * quantity.
func LineTotal(unit decimal.Decimal, quantity int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(quantity)))
}

// LineDiscount returns (original - unit) * quantity, or zero when the item
// is not sold below its original price.
func LineDiscount(original, unit decimal.Decimal, quantity int) decimal.Decimal {
	if original.IsZero() || original.LessThanOrEqual(unit) {
		return zero
	}
	return LineTotal(original.Sub(unit), quantity)
}

// Percent returns pct percent of base, rounded.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return Round(base.Mul(pct).Div(hundred))
}

// Sum adds all amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// FloorAtZero clamps negative values to zero.
func FloorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}

// Clamp floors d at zero and reports a Violation when clamping happened.
func Clamp(field string, d decimal.Decimal) (decimal.Decimal, *Violation) {
	if !d.IsNegative() {
		return d, nil
	}
	return zero, &Violation{Field: field, Computed: d, Used: zero}
}
