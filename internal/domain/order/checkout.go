package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/bazaar/internal/domain/cart"
	"github.com/xenking/bazaar/internal/domain/money"
	"github.com/xenking/bazaar/internal/domain/validation"
)

// Draft is the checkout input that does not come from the cart.
type Draft struct {
	Address        Address
	ShippingMethod string
	ShippingCost   decimal.Decimal
	PaymentMethod  PaymentMethod
	Notes          string
	Currency       string
	PlacedBy       string
}

// Validate checks that every required address field is present.
func (a Address) Validate() error {
	required := []struct{ field, value string }{
		{"address.name", a.Name},
		{"address.phone", a.Phone},
		{"address.line1", a.Line1},
		{"address.city", a.City},
		{"address.state", a.State},
		{"address.postalCode", a.PostalCode},
		{"address.country", a.Country},
	}
	for _, r := range required {
		if r.value == "" {
			return validation.New(r.field, "required")
		}
	}
	return nil
}

// Validate checks the draft independently of any cart.
func (d Draft) Validate() error {
	if err := d.Address.Validate(); err != nil {
		return err
	}
	if d.ShippingMethod == "" {
		return validation.New("shipping.method", "required")
	}
	if d.ShippingCost.IsNegative() {
		return validation.New("shipping.cost", "must not be negative")
	}
	if !d.PaymentMethod.Valid() {
		return validation.New("paymentMethod", "unsupported payment method %q", d.PaymentMethod)
	}
	return nil
}

// New snapshots c into a pending order. The cart is not modified.
func New(id, number string, c *cart.Cart, d Draft, now time.Time) (*Order, *money.Violation, error) {
	if c.IsEmpty() {
		return nil, nil, validation.New("items", "cart is empty")
	}
	if err := d.Validate(); err != nil {
		return nil, nil, err
	}
	storeID, vendorID := c.Items[0].StoreID, c.Items[0].VendorID
	for _, it := range c.Items[1:] {
		if it.StoreID != storeID {
			return nil, nil, validation.New("items", "cart contains items from several stores")
		}
	}

	items := make([]Item, len(c.Items))
	for i, it := range c.Items {
		var variant *cart.Variant
		if it.Variant != nil {
			v := *it.Variant
			variant = &v
		}
		items[i] = Item{
			ProductID:     it.ProductID,
			StoreID:       it.StoreID,
			VendorID:      it.VendorID,
			Name:          it.Name,
			Variant:       variant,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			OriginalPrice: it.OriginalPrice,
			TotalPrice:    it.TotalPrice,
			Discount:      it.Discount,
			GSTRate:       it.GSTRate,
			GSTAmount:     money.Percent(it.TotalPrice, it.GSTRate),
		}
	}

	o := &Order{
		ID:          id,
		OrderNumber: number,
		CustomerID:  c.CustomerID,
		StoreID:     storeID,
		VendorID:    vendorID,
		Items:       items,
		Pricing: Pricing{
			Shipping: d.ShippingCost,
			Currency: d.Currency,
		},
		Shipping: Shipping{
			Address: d.Address,
			Method:  d.ShippingMethod,
			Cost:    d.ShippingCost,
		},
		Status: StatusPending,
		StatusHistory: []HistoryEntry{{
			Status:    StatusPending,
			Timestamp: now,
			Note:      "Order placed",
			UpdatedBy: d.PlacedBy,
		}},
		Notes:     d.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cp := c.AppliedCoupon; cp != nil {
		o.CouponCode = cp.Code
		o.Pricing.CouponDiscount = c.CouponDiscount
		allocateCoupon(o.Items, cp.Code, c.CouponDiscount)
	}

	v := o.Recompute()
	o.Payment = Payment{
		Method: d.PaymentMethod,
		Status: PaymentPending,
		Amount: o.Pricing.Total,
	}
	return o, v, nil
}

// allocateCoupon splits amount across items in proportion to their line
// totals. The last line absorbs rounding so the shares add up to amount.
func allocateCoupon(items []Item, code string, amount decimal.Decimal) {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.TotalPrice)
	}
	if subtotal.IsZero() || amount.IsZero() {
		return
	}
	remaining := amount
	for i := range items {
		share := remaining
		if i < len(items)-1 {
			share = money.Round(amount.Mul(items[i].TotalPrice).Div(subtotal))
			remaining = remaining.Sub(share)
		}
		items[i].Coupon = &ItemCoupon{Code: code, Discount: share}
	}
}
