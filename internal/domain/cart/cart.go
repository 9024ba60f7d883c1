// Package cart implements the customer cart aggregate: a mutable set of
// live-priced line items plus an optional coupon, with totals recomputed
// after every mutation.
package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/money"
	"github.com/xenking/bazaar/internal/domain/validation"
)

// MaxQuantity is the largest quantity a single line may hold.
const MaxQuantity = 999

// Variant identifies a product variant in a cart line.
type Variant struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	SKU   string `json:"sku"`
}

// Key identifies a cart line: at most one line exists per key.
type Key struct {
	ProductID  string
	VariantSKU string
}

// Item is one line of a cart. TotalPrice and Discount are derived.
type Item struct {
	ProductID     string          `json:"productId"`
	StoreID       string          `json:"storeId"`
	VendorID      string          `json:"vendorId"`
	Name          string          `json:"name"`
	Variant       *Variant        `json:"variant,omitempty"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	OriginalPrice decimal.Decimal `json:"originalPrice"`
	GSTRate       decimal.Decimal `json:"gstRate"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	Discount      decimal.Decimal `json:"discount"`
	AddedAt       time.Time       `json:"addedAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Key returns the line identity of the item.
func (i *Item) Key() Key {
	k := Key{ProductID: i.ProductID}
	if i.Variant != nil {
		k.VariantSKU = i.Variant.SKU
	}
	return k
}

// Coupon is the coupon applied to a cart. Discount holds the percentage
// for percentage coupons and the amount for fixed coupons. A positive
// MaxDiscount caps a percentage discount.
type Coupon struct {
	Code         string              `json:"code"`
	Discount     decimal.Decimal     `json:"discount"`
	DiscountType coupon.DiscountType `json:"discountType"`
	MaxDiscount  decimal.Decimal     `json:"maxDiscount"`
	AppliedAt    time.Time           `json:"appliedAt"`
}

// Cart is a customer's in-progress purchase. All exported totals are
// derived; mutate them only through the methods below.
type Cart struct {
	ID            string  `json:"id"`
	CustomerID    string  `json:"customerId"`
	Items         []Item  `json:"items"`
	AppliedCoupon *Coupon `json:"appliedCoupon,omitempty"`

	// Subtotal is Σ unitPrice × quantity.
	Subtotal decimal.Decimal `json:"subtotal"`
	// ItemDiscount is Σ item discounts, already reflected in unit prices.
	ItemDiscount decimal.Decimal `json:"itemDiscount"`
	// CouponDiscount is the amount the applied coupon takes off the subtotal.
	CouponDiscount decimal.Decimal `json:"couponDiscount"`
	// TotalDiscount is ItemDiscount + CouponDiscount.
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
	// Total is Subtotal - CouponDiscount, never negative.
	Total decimal.Decimal `json:"total"`

	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`

	violations []money.Violation
}

// Line is a catalog-resolved product ready to be added to a cart.
type Line struct {
	ProductID     string
	StoreID       string
	VendorID      string
	Name          string
	Variant       *Variant
	UnitPrice     decimal.Decimal
	OriginalPrice decimal.Decimal
	GSTRate       decimal.Decimal
}

// Key returns the identity the line will be stored under.
func (l Line) Key() Key {
	k := Key{ProductID: l.ProductID}
	if l.Variant != nil {
		k.VariantSKU = l.Variant.SKU
	}
	return k
}

// Repository persists carts, one per customer. Update is a compare-and-swap
// on Version: it fails with ErrConflict when the stored version differs
// from c.Version and increments c.Version on success.
type Repository interface {
	Get(ctx context.Context, customerID string) (*Cart, error)
	Create(ctx context.Context, c *Cart) error
	Update(ctx context.Context, c *Cart) error
}

// New returns an empty cart for customerID.
func New(id, customerID string, now time.Time) *Cart {
	c := &Cart{
		ID:          id,
		CustomerID:  customerID,
		Items:       []Item{},
		CreatedAt:   now,
		LastUpdated: now,
	}
	c.recompute()
	return c
}

// Violations returns the invariant violations found by the last recompute.
func (c *Cart) Violations() []money.Violation {
	return c.violations
}

// IsEmpty reports whether the cart holds no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Find returns the index of the line with key k, or -1.
func (c *Cart) Find(k Key) int {
	for i := range c.Items {
		if c.Items[i].Key() == k {
			return i
		}
	}
	return -1
}

// CouponItems converts the lines for coupon evaluation.
func (c *Cart) CouponItems() []coupon.Item {
	items := make([]coupon.Item, len(c.Items))
	for i, it := range c.Items {
		items[i] = coupon.Item{ProductID: it.ProductID, Price: it.UnitPrice, Quantity: it.Quantity}
	}
	return items
}

// AddItem adds quantity units of line. An existing line with the same key
// is incremented and re-priced instead of duplicated.
func (c *Cart) AddItem(line Line, quantity int, now time.Time) error {
	if line.ProductID == "" {
		return validation.New("productId", "required")
	}
	if quantity < 1 {
		return validation.New("quantity", "must be at least 1")
	}
	if quantity > MaxQuantity {
		return &QuantityLimitError{ProductID: line.ProductID, Quantity: quantity}
	}
	if line.UnitPrice.IsNegative() || line.OriginalPrice.IsNegative() {
		return validation.New("unitPrice", "must not be negative")
	}

	original := line.OriginalPrice
	if original.LessThan(line.UnitPrice) {
		original = line.UnitPrice
	}

	idx := c.Find(line.Key())
	if idx >= 0 {
		if next := c.Items[idx].Quantity + quantity; next > MaxQuantity {
			return &QuantityLimitError{ProductID: line.ProductID, Quantity: next}
		}
	}

	c.mutate(now, func() {
		if idx >= 0 {
			it := &c.Items[idx]
			it.Quantity += quantity
			it.UnitPrice = line.UnitPrice
			it.OriginalPrice = original
			it.GSTRate = line.GSTRate
			it.Name = line.Name
			it.UpdatedAt = now
			return
		}
		c.Items = append(c.Items, Item{
			ProductID:     line.ProductID,
			StoreID:       line.StoreID,
			VendorID:      line.VendorID,
			Name:          line.Name,
			Variant:       line.Variant,
			Quantity:      quantity,
			UnitPrice:     line.UnitPrice,
			OriginalPrice: original,
			GSTRate:       line.GSTRate,
			AddedAt:       now,
			UpdatedAt:     now,
		})
	})
	return nil
}

// UpdateItemQuantity sets the quantity of the line with key k. A quantity
// of zero or less removes the line.
func (c *Cart) UpdateItemQuantity(k Key, quantity int, now time.Time) error {
	if quantity <= 0 {
		c.RemoveItem(k, now)
		return nil
	}
	if quantity > MaxQuantity {
		return &QuantityLimitError{ProductID: k.ProductID, Quantity: quantity}
	}
	idx := c.Find(k)
	if idx < 0 {
		return ErrItemNotFound
	}
	c.mutate(now, func() {
		c.Items[idx].Quantity = quantity
		c.Items[idx].UpdatedAt = now
	})
	return nil
}

// RemoveItem drops the line with key k. Removing an absent line is a no-op.
func (c *Cart) RemoveItem(k Key, now time.Time) {
	idx := c.Find(k)
	if idx < 0 {
		return
	}
	c.mutate(now, func() {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	})
}

// Clear empties the cart and removes the coupon.
func (c *Cart) Clear(now time.Time) {
	c.mutate(now, func() {
		c.Items = []Item{}
		c.AppliedCoupon = nil
	})
}

// ApplyCoupon records a coupon, replacing any coupon already applied.
// Whether the code is valid for this cart is decided by the caller.
func (c *Cart) ApplyCoupon(code string, discount decimal.Decimal, discountType coupon.DiscountType, now time.Time) error {
	return c.applyCoupon(Coupon{Code: code, Discount: discount, DiscountType: discountType}, now)
}

// ApplyDiscount records a validated coupon discount, keeping the rule's
// cap so the discount stays within it as the cart changes.
func (c *Cart) ApplyDiscount(d coupon.Discount, now time.Time) error {
	return c.applyCoupon(Coupon{
		Code:         d.Code,
		Discount:     d.Value,
		DiscountType: d.Type,
		MaxDiscount:  d.MaxDiscount,
	}, now)
}

func (c *Cart) applyCoupon(cp Coupon, now time.Time) error {
	if cp.Code == "" {
		return validation.New("code", "required")
	}
	if !cp.DiscountType.Valid() {
		return validation.New("discountType", "unsupported discount type %q", cp.DiscountType)
	}
	if cp.Discount.IsNegative() {
		return validation.New("discount", "must not be negative")
	}
	if cp.MaxDiscount.IsNegative() {
		return validation.New("maxDiscount", "must not be negative")
	}
	if cp.DiscountType == coupon.DiscountPercentage && cp.Discount.GreaterThan(decimal.NewFromInt(100)) {
		return validation.New("discount", "percentage must not exceed 100")
	}
	cp.AppliedAt = now
	c.mutate(now, func() {
		c.AppliedCoupon = &cp
	})
	return nil
}

// RemoveCoupon drops the applied coupon, if any.
func (c *Cart) RemoveCoupon(now time.Time) {
	c.mutate(now, func() {
		c.AppliedCoupon = nil
	})
}

// Restore puts the lines and coupon of a claimed snapshot back after a
// failed checkout. Lines added since the claim are kept and quantities of
// matching lines are summed up to MaxQuantity. A coupon applied since the
// claim wins over the snapshot's.
func (c *Cart) Restore(snapshot *Cart, now time.Time) {
	c.mutate(now, func() {
		for _, it := range snapshot.Items {
			idx := c.Find(it.Key())
			if idx < 0 {
				c.Items = append(c.Items, it)
				continue
			}
			c.Items[idx].Quantity = min(c.Items[idx].Quantity+it.Quantity, MaxQuantity)
			c.Items[idx].UpdatedAt = now
		}
		if c.AppliedCoupon == nil && snapshot.AppliedCoupon != nil {
			cp := *snapshot.AppliedCoupon
			c.AppliedCoupon = &cp
		}
	})
}

// mutate is the single entry point for state changes: every change is
// followed by a recompute and a lastUpdated stamp.
func (c *Cart) mutate(now time.Time, fn func()) {
	fn()
	c.LastUpdated = now
	c.recompute()
}

func (c *Cart) recompute() {
	c.violations = nil

	subtotal := decimal.Zero
	itemDiscount := decimal.Zero
	for i := range c.Items {
		it := &c.Items[i]
		it.TotalPrice = money.Round(money.LineTotal(it.UnitPrice, it.Quantity))
		it.Discount = money.Round(money.LineDiscount(it.OriginalPrice, it.UnitPrice, it.Quantity))
		subtotal = subtotal.Add(it.TotalPrice)
		itemDiscount = itemDiscount.Add(it.Discount)
	}

	couponDiscount := decimal.Zero
	if cp := c.AppliedCoupon; cp != nil {
		switch cp.DiscountType {
		case coupon.DiscountPercentage:
			couponDiscount = money.Percent(subtotal, cp.Discount)
			if cp.MaxDiscount.IsPositive() {
				couponDiscount = decimal.Min(couponDiscount, money.Round(cp.MaxDiscount))
			}
		case coupon.DiscountFixed:
			couponDiscount = money.Round(cp.Discount)
		}
	}

	total, v := money.Clamp("total", subtotal.Sub(couponDiscount))
	if v != nil {
		c.violations = append(c.violations, *v)
	}

	c.Subtotal = subtotal
	c.ItemDiscount = itemDiscount
	c.CouponDiscount = couponDiscount
	c.TotalDiscount = itemDiscount.Add(couponDiscount)
	c.Total = total
}
