package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/product"
	"github.com/xenking/bazaar/internal/domain/validation"
)

const defaultCommitAttempts = 5

// AddItemRequest holds the input for adding a product to a cart.
type AddItemRequest struct {
	ProductID  string
	VariantSKU string
	Quantity   int
}

// Service runs cart operations as load, mutate, compare-and-swap update,
// retrying when a concurrent writer wins.
type Service struct {
	carts    Repository
	products product.Repository
	coupons  coupon.Validator

	attempts  int
	mutations metric.Int64Counter

	now   func() time.Time
	newID func() string
}

// NewService creates a cart Service. attempts bounds the optimistic
// commit retries; zero selects the default.
func NewService(
	carts Repository,
	products product.Repository,
	coupons coupon.Validator,
	meter metric.Meter,
	attempts int,
) (*Service, error) {
	mutations, err := meter.Int64Counter("bazaar.cart.mutations",
		metric.WithDescription("Committed cart mutations"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create mutations counter")
	}
	if attempts <= 0 {
		attempts = defaultCommitAttempts
	}
	return &Service{
		carts:     carts,
		products:  products,
		coupons:   coupons,
		attempts:  attempts,
		mutations: mutations,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// Get returns the customer's cart, creating an empty one on first access.
func (s *Service) Get(ctx context.Context, customerID string) (*Cart, error) {
	if customerID == "" {
		return nil, validation.New("customerId", "required")
	}
	return s.load(ctx, customerID)
}

// AddItem resolves the live price of a product and adds it to the cart.
func (s *Service) AddItem(ctx context.Context, customerID string, req AddItemRequest) (*Cart, error) {
	if req.ProductID == "" {
		return nil, validation.New("productId", "required")
	}
	p, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	q, err := p.Quote(req.VariantSKU)
	if err != nil {
		return nil, err
	}

	line := Line{
		ProductID:     p.ID,
		StoreID:       p.StoreID,
		VendorID:      p.VendorID,
		Name:          p.Name,
		UnitPrice:     q.UnitPrice,
		OriginalPrice: q.OriginalPrice,
		GSTRate:       q.GSTRate,
	}
	if q.Variant != nil {
		line.Variant = &Variant{Name: q.Variant.Name, Value: q.Variant.Value, SKU: q.Variant.SKU}
	}

	return s.mutate(ctx, customerID, "add_item", func(c *Cart, now time.Time) error {
		want := req.Quantity
		if idx := c.Find(line.Key()); idx >= 0 {
			want += c.Items[idx].Quantity
		}
		if want <= MaxQuantity && want > q.Stock {
			return validation.New("quantity", "only %d of %s in stock", q.Stock, p.ID)
		}
		return c.AddItem(line, req.Quantity, now)
	})
}

// UpdateItemQuantity sets a line's quantity. Zero or less removes the line.
func (s *Service) UpdateItemQuantity(ctx context.Context, customerID string, key Key, quantity int) (*Cart, error) {
	return s.mutate(ctx, customerID, "update_item", func(c *Cart, now time.Time) error {
		return c.UpdateItemQuantity(key, quantity, now)
	})
}

// RemoveItem removes a line. Removing an absent line succeeds.
func (s *Service) RemoveItem(ctx context.Context, customerID string, key Key) (*Cart, error) {
	return s.mutate(ctx, customerID, "remove_item", func(c *Cart, now time.Time) error {
		c.RemoveItem(key, now)
		return nil
	})
}

// Clear empties the cart and drops its coupon.
func (s *Service) Clear(ctx context.Context, customerID string) (*Cart, error) {
	return s.mutate(ctx, customerID, "clear", func(c *Cart, now time.Time) error {
		c.Clear(now)
		return nil
	})
}

// ApplyCoupon validates code against the current items and records it.
func (s *Service) ApplyCoupon(ctx context.Context, customerID, code string) (*Cart, error) {
	if coupon.NormalizeCode(code) == "" {
		return nil, validation.New("code", "required")
	}
	return s.mutate(ctx, customerID, "apply_coupon", func(c *Cart, now time.Time) error {
		if c.IsEmpty() {
			return validation.New("items", "cart is empty")
		}
		d, err := s.coupons.Validate(ctx, code, c.CouponItems())
		if err != nil {
			return errors.Wrap(err, "validate coupon")
		}
		return c.ApplyDiscount(*d, now)
	})
}

// RemoveCoupon drops the applied coupon.
func (s *Service) RemoveCoupon(ctx context.Context, customerID string) (*Cart, error) {
	return s.mutate(ctx, customerID, "remove_coupon", func(c *Cart, now time.Time) error {
		c.RemoveCoupon(now)
		return nil
	})
}

// Claim empties the cart for checkout, provided it is still at the
// version of snapshot. It fails with ErrConflict when the cart changed
// since the snapshot was read, so a cart is checked out at most once.
func (s *Service) Claim(ctx context.Context, snapshot *Cart) (*Cart, error) {
	if snapshot.CustomerID == "" {
		return nil, validation.New("customerId", "required")
	}
	if snapshot.IsEmpty() {
		return nil, validation.New("items", "cart is empty")
	}
	c, err := s.carts.Get(ctx, snapshot.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if c.ID != snapshot.ID || c.Version != snapshot.Version {
		return nil, ErrConflict
	}
	c.Clear(s.now())
	if err := s.carts.Update(ctx, c); err != nil {
		return nil, errors.Wrap(err, "claim cart")
	}
	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "claim")))
	zctx.From(ctx).Debug("Cart claimed for checkout",
		zap.String("customer_id", c.CustomerID),
		zap.String("cart_id", c.ID),
		zap.Int64("version", c.Version),
	)
	return c, nil
}

// Restore returns the contents of a claimed snapshot to the cart when the
// checkout that claimed it could not place the order.
func (s *Service) Restore(ctx context.Context, snapshot *Cart) (*Cart, error) {
	return s.mutate(ctx, snapshot.CustomerID, "restore", func(c *Cart, now time.Time) error {
		c.Restore(snapshot, now)
		return nil
	})
}

func (s *Service) load(ctx context.Context, customerID string) (*Cart, error) {
	c, err := s.carts.Get(ctx, customerID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "get cart")
	}

	c = New(s.newID(), customerID, s.now())
	if err := s.carts.Create(ctx, c); err != nil {
		if !errors.Is(err, ErrAlreadyExists) {
			return nil, errors.Wrap(err, "create cart")
		}
		// Lost the creation race; use the winner's cart.
		c, err = s.carts.Get(ctx, customerID)
		if err != nil {
			return nil, errors.Wrap(err, "get cart")
		}
	}
	return c, nil
}

func (s *Service) mutate(ctx context.Context, customerID, op string, fn func(c *Cart, now time.Time) error) (*Cart, error) {
	if customerID == "" {
		return nil, validation.New("customerId", "required")
	}
	lg := zctx.From(ctx).With(zap.String("customer_id", customerID), zap.String("op", op))

	for attempt := 1; ; attempt++ {
		c, err := s.load(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if err := fn(c, s.now()); err != nil {
			return nil, err
		}

		err = s.carts.Update(ctx, c)
		if err == nil {
			for _, v := range c.Violations() {
				lg.Warn("Cart invariant violated", zap.String("cart_id", c.ID), zap.Stringer("violation", v))
			}
			s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
			return c, nil
		}
		if !errors.Is(err, ErrConflict) || attempt >= s.attempts {
			return nil, errors.Wrap(err, "update cart")
		}
		lg.Debug("Cart version conflict, retrying", zap.Int("attempt", attempt))
	}
}
