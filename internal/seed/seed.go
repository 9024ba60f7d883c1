// Package seed loads a product and coupon catalog from JSON into the
// repositories.
package seed

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/product"
)

// ProductWriter stores products.
type ProductWriter interface {
	Upsert(ctx context.Context, p product.Product) error
}

// CouponWriter stores coupon rules.
type CouponWriter interface {
	Upsert(ctx context.Context, rule coupon.Rule) error
}

// Coupon is the JSON form of a coupon rule.
type Coupon struct {
	Code         string          `json:"code"`
	DiscountType string          `json:"discountType"`
	Value        decimal.Decimal `json:"value"`
	MinSpend     decimal.Decimal `json:"minSpend"`
	MinItems     int             `json:"minItems"`
	MaxDiscount  decimal.Decimal `json:"maxDiscount"`
	Description  string          `json:"description"`
	ValidFrom    *time.Time      `json:"validFrom"`
	ValidUntil   *time.Time      `json:"validUntil"`
	MaxUses      int             `json:"maxUses"`
}

// Rule converts c to a coupon.Rule.
func (c Coupon) Rule() (coupon.Rule, error) {
	code := coupon.NormalizeCode(c.Code)
	if code == "" {
		return coupon.Rule{}, errors.New("coupon code is empty")
	}
	t := coupon.DiscountType(strings.ToLower(c.DiscountType))
	if !t.Valid() {
		return coupon.Rule{}, errors.Errorf("coupon %s: unknown discount type %q", code, c.DiscountType)
	}
	if c.Value.IsNegative() {
		return coupon.Rule{}, errors.Errorf("coupon %s: negative value", code)
	}
	return coupon.Rule{
		Code:         code,
		DiscountType: t,
		Value:        c.Value,
		MinSpend:     c.MinSpend,
		MinItems:     c.MinItems,
		MaxDiscount:  c.MaxDiscount,
		Description:  c.Description,
		ValidFrom:    c.ValidFrom,
		ValidUntil:   c.ValidUntil,
		MaxUses:      c.MaxUses,
	}, nil
}

// Catalog is the seed file format.
type Catalog struct {
	Products []product.Product `json:"products"`
	Coupons  []Coupon          `json:"coupons"`
}

// Decode reads a Catalog and checks it for obvious mistakes.
func Decode(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	seen := make(map[string]struct{}, len(c.Products))
	for _, p := range c.Products {
		if p.ID == "" || p.StoreID == "" {
			return nil, errors.Errorf("product %q: id and storeId are required", p.Name)
		}
		if _, ok := seen[p.ID]; ok {
			return nil, errors.Errorf("product %s: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Price.IsNegative() {
			return nil, errors.Errorf("product %s: negative price", p.ID)
		}
	}
	return &c, nil
}

// Stats counts what Apply stored.
type Stats struct {
	Products int
	Coupons  int
}

// Apply upserts the catalog using up to workers concurrent writes.
func Apply(ctx context.Context, c *Catalog, products ProductWriter, coupons CouponWriter, workers int) (Stats, error) {
	rules := make([]coupon.Rule, 0, len(c.Coupons))
	for _, cp := range c.Coupons {
		rule, err := cp.Rule()
		if err != nil {
			return Stats{}, err
		}
		rules = append(rules, rule)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, p := range c.Products {
		g.Go(func() error {
			if err := products.Upsert(ctx, p); err != nil {
				return errors.Wrapf(err, "upsert product %s", p.ID)
			}
			return nil
		})
	}
	for _, rule := range rules {
		g.Go(func() error {
			if err := coupons.Upsert(ctx, rule); err != nil {
				return errors.Wrapf(err, "upsert coupon %s", rule.Code)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return Stats{Products: len(c.Products), Coupons: len(rules)}, nil
}
