package order

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/bazaar/internal/domain/money"
)

// CalculateTotals derives order pricing from the item snapshot:
//
//	subtotal = Σ quantity × unitPrice
//	tax      = Σ gstAmount
//	discount = Σ item discount
//	total    = subtotal + tax + shipping − discount − couponDiscount
//
// A negative total is floored at zero and reported as a Violation.
func CalculateTotals(items []Item, shipping, couponDiscount decimal.Decimal, currency string) (Pricing, *money.Violation) {
	subtotal := decimal.Zero
	tax := decimal.Zero
	discount := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(money.LineTotal(it.UnitPrice, it.Quantity))
		tax = tax.Add(it.GSTAmount)
		discount = discount.Add(it.Discount)
	}

	p := Pricing{
		Subtotal:       money.Round(subtotal),
		Tax:            money.Round(tax),
		Shipping:       money.Round(shipping),
		Discount:       money.Round(discount),
		CouponDiscount: money.Round(couponDiscount),
		Currency:       currency,
	}
	total := p.Subtotal.Add(p.Tax).Add(p.Shipping).Sub(p.Discount).Sub(p.CouponDiscount)
	var v *money.Violation
	p.Total, v = money.Clamp("pricing.total", total)
	return p, v
}

// Recompute refreshes o.Pricing from the items, keeping shipping, coupon
// discount and currency.
func (o *Order) Recompute() *money.Violation {
	p, v := CalculateTotals(o.Items, o.Pricing.Shipping, o.Pricing.CouponDiscount, o.Pricing.Currency)
	o.Pricing = p
	return v
}

// NetAmount is what the customer paid after refunds.
func (o *Order) NetAmount() decimal.Decimal {
	return money.FloorAtZero(o.Pricing.Total.Sub(o.Payment.RefundAmount))
}
