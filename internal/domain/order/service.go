package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/bazaar/internal/domain/cart"
	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/money"
	"github.com/xenking/bazaar/internal/domain/validation"
)

const defaultCommitAttempts = 5

// Carts is the cart side of checkout.
type Carts interface {
	Get(ctx context.Context, customerID string) (*cart.Cart, error)
	// Claim empties the cart if it is still at the snapshot's version and
	// fails with cart.ErrConflict otherwise.
	Claim(ctx context.Context, snapshot *cart.Cart) (*cart.Cart, error)
	// Restore puts a claimed snapshot back into the cart.
	Restore(ctx context.Context, snapshot *cart.Cart) (*cart.Cart, error)
}

// Config holds order policy.
type Config struct {
	Currency string
	// ShippingRates maps a shipping method to its cost.
	ShippingRates map[string]decimal.Decimal
	// FreeShippingOver waives shipping when the cart total reaches it.
	// Zero disables the waiver.
	FreeShippingOver decimal.Decimal
	// RequireCapturedPayment blocks shipping until payment completes,
	// except for cash on delivery.
	RequireCapturedPayment bool
	// CommitAttempts bounds optimistic retries. Zero selects the default.
	CommitAttempts int
}

// CheckoutRequest holds the input for placing an order from a cart.
type CheckoutRequest struct {
	CustomerID     string
	Address        Address
	ShippingMethod string
	PaymentMethod  PaymentMethod
	Notes          string
}

// Service converts carts into orders and drives their lifecycle.
type Service struct {
	orders  Repository
	carts   Carts
	coupons coupon.Redeemer
	cfg     Config
	guards  []Guard

	tracer      trace.Tracer
	checkouts   metric.Int64Counter
	transitions metric.Int64Counter
	payments    metric.Int64Counter

	now       func() time.Time
	newID     func() string
	newNumber func(time.Time) string
}

// NewService creates an order Service.
func NewService(
	orders Repository,
	carts Carts,
	coupons coupon.Redeemer,
	cfg Config,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider,
) (*Service, error) {
	if cfg.CommitAttempts <= 0 {
		cfg.CommitAttempts = defaultCommitAttempts
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}

	meter := meterProvider.Meter("bazaar/order")
	checkouts, err := meter.Int64Counter("bazaar.order.checkouts",
		metric.WithDescription("Orders placed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create checkouts counter")
	}
	transitions, err := meter.Int64Counter("bazaar.order.transitions",
		metric.WithDescription("Order status changes"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create transitions counter")
	}
	payments, err := meter.Int64Counter("bazaar.order.payments",
		metric.WithDescription("Payment and refund updates"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create payments counter")
	}

	var guards []Guard
	if cfg.RequireCapturedPayment {
		guards = append(guards, RequireCapturedPayment)
	}

	return &Service{
		orders:      orders,
		carts:       carts,
		coupons:     coupons,
		cfg:         cfg,
		guards:      guards,
		tracer:      tracerProvider.Tracer("bazaar/order"),
		checkouts:   checkouts,
		transitions: transitions,
		payments:    payments,
		now:         time.Now,
		newID:       uuid.NewString,
		newNumber:   NewNumber,
	}, nil
}

// ShippingCost returns the cost of method for an order worth total.
func (s *Service) ShippingCost(method string, total decimal.Decimal) (decimal.Decimal, error) {
	rate, ok := s.cfg.ShippingRates[method]
	if !ok {
		return decimal.Zero, validation.New("shipping.method", "unsupported shipping method %q", method)
	}
	if s.cfg.FreeShippingOver.IsPositive() && total.GreaterThanOrEqual(s.cfg.FreeShippingOver) {
		return decimal.Zero, nil
	}
	return rate, nil
}

// Checkout places an order from the customer's cart. The cart is claimed
// before the order is stored, so concurrent checkouts of one cart place a
// single order; a checkout that loses the claim reloads the cart and
// retries. If the order cannot be stored the claimed lines are restored.
// Once the order is stored, a failure to redeem its coupon is logged and
// does not fail the checkout.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout",
		trace.WithAttributes(attribute.String("customer_id", req.CustomerID)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if req.CustomerID == "" {
		return nil, validation.New("customerId", "required")
	}
	lg := zctx.From(ctx).With(zap.String("customer_id", req.CustomerID))

	c, o, v, err := s.claim(ctx, req)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		err = s.orders.Create(ctx, o)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrDuplicateOrderNumber) || attempt >= s.cfg.CommitAttempts {
			if _, restoreErr := s.carts.Restore(ctx, c); restoreErr != nil {
				lg.Error("Restore cart after failed checkout", zap.String("cart_id", c.ID), zap.Error(restoreErr))
			}
			return nil, errors.Wrap(err, "create order")
		}
		lg.Debug("Order number taken, retrying", zap.String("order_number", o.OrderNumber))
		o.OrderNumber = s.newNumber(s.now())
	}
	lg = lg.With(zap.String("order_id", o.ID), zap.String("order_number", o.OrderNumber))
	if v != nil {
		lg.Warn("Order invariant violated", zap.Stringer("violation", v))
	}

	if o.CouponCode != "" {
		if err := s.coupons.Redeem(ctx, o.CouponCode); err != nil {
			lg.Warn("Redeem coupon", zap.String("coupon", o.CouponCode), zap.Error(err))
		}
	}

	s.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(o.Payment.Method))))
	lg.Info("Order placed", zap.String("total", o.Pricing.Total.String()))
	return o, nil
}

// claim builds the order from the current cart and claims that cart,
// reloading it when a concurrent writer changed it first. It returns the
// claimed snapshot along with the order built from it.
func (s *Service) claim(ctx context.Context, req CheckoutRequest) (*cart.Cart, *Order, *money.Violation, error) {
	for attempt := 1; ; attempt++ {
		c, err := s.carts.Get(ctx, req.CustomerID)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "get cart")
		}
		cost, err := s.ShippingCost(req.ShippingMethod, c.Total)
		if err != nil {
			return nil, nil, nil, err
		}
		draft := Draft{
			Address:        req.Address,
			ShippingMethod: req.ShippingMethod,
			ShippingCost:   cost,
			PaymentMethod:  req.PaymentMethod,
			Notes:          req.Notes,
			Currency:       s.cfg.Currency,
			PlacedBy:       req.CustomerID,
		}
		now := s.now()
		o, v, err := New(s.newID(), s.newNumber(now), c, draft, now)
		if err != nil {
			return nil, nil, nil, err
		}

		_, err = s.carts.Claim(ctx, c)
		if err == nil {
			return c, o, v, nil
		}
		if !errors.Is(err, cart.ErrConflict) || attempt >= s.cfg.CommitAttempts {
			return nil, nil, nil, errors.Wrap(err, "claim cart")
		}
		zctx.From(ctx).Debug("Cart changed during checkout, reloading",
			zap.String("customer_id", req.CustomerID),
			zap.Int("attempt", attempt),
		)
	}
}

// UpdateStatus moves an order to a new status.
func (s *Service) UpdateStatus(ctx context.Context, id string, ch Change) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus",
		trace.WithAttributes(attribute.String("order_id", id), attribute.String("status", string(ch.To))),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	o, err := s.update(ctx, id, func(o *Order, now time.Time) error {
		return o.UpdateStatus(ch, now, s.guards...)
	})
	if err != nil {
		return nil, err
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(ch.To))))
	return o, nil
}

// ProcessPayment merges a payment update into an order.
func (s *Service) ProcessPayment(ctx context.Context, id string, u PaymentUpdate) (*Order, error) {
	o, err := s.update(ctx, id, func(o *Order, now time.Time) error {
		return o.ProcessPayment(u, now)
	})
	if err != nil {
		return nil, err
	}
	s.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(o.Payment.Status))))
	return o, nil
}

// RecordRefund records a refund against an order.
func (s *Service) RecordRefund(ctx context.Context, id string, r Refund) (*Order, error) {
	o, err := s.update(ctx, id, func(o *Order, now time.Time) error {
		return o.RecordRefund(r, now)
	})
	if err != nil {
		return nil, err
	}
	s.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(PaymentRefunded))))
	return o, nil
}

// UpdateTracking records shipment tracking details.
func (s *Service) UpdateTracking(ctx context.Context, id string, t Tracking) (*Order, error) {
	return s.update(ctx, id, func(o *Order, now time.Time) error {
		return o.UpdateTracking(t, now)
	})
}

// Get returns an order by ID.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// GetByNumber returns an order by its order number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Order, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, errors.Wrap(err, "get order by number")
	}
	return o, nil
}

// ListByCustomer returns a customer's orders, newest first.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	if customerID == "" {
		return nil, validation.New("customerId", "required")
	}
	orders, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// update runs fn on a fresh copy of the order and stores it with a
// compare-and-swap, reloading on conflict.
func (s *Service) update(ctx context.Context, id string, fn func(o *Order, now time.Time) error) (*Order, error) {
	for attempt := 1; ; attempt++ {
		o, err := s.orders.Get(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "get order")
		}
		if err := fn(o, s.now()); err != nil {
			return nil, err
		}
		err = s.orders.Update(ctx, o)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrConflict) || attempt >= s.cfg.CommitAttempts {
			return nil, errors.Wrap(err, "update order")
		}
		zctx.From(ctx).Debug("Order version conflict, retrying",
			zap.String("order_id", id),
			zap.Int("attempt", attempt),
		)
	}
}
