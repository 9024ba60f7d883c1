package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/bazaar/internal/domain/cart"
	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/validation"
)

type mockOrderRepo struct {
	mu         sync.Mutex
	orders     map[string]Order
	numbers    map[string]string
	duplicates int
	conflicts  int
	updates    int
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]Order), numbers: make(map[string]string)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.duplicates > 0 {
		m.duplicates--
		return ErrDuplicateOrderNumber
	}
	if _, ok := m.numbers[o.OrderNumber]; ok {
		return ErrDuplicateOrderNumber
	}
	m.numbers[o.OrderNumber] = o.ID
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneOrder(&o)
	return &c, nil
}

func (m *mockOrderRepo) GetByNumber(ctx context.Context, number string) (*Order, error) {
	m.mu.Lock()
	id, ok := m.numbers[number]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *mockOrderRepo) ListByCustomer(_ context.Context, customerID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			out = append(out, cloneOrder(&o))
		}
	}
	return out, nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.conflicts > 0 {
		m.conflicts--
		return ErrConflict
	}
	stored, ok := m.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != o.Version {
		return ErrConflict
	}
	o.Version++
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func cloneOrder(o *Order) Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	c.StatusHistory = append([]HistoryEntry(nil), o.StatusHistory...)
	return c
}

type mockCarts struct {
	cart      *cart.Cart
	getErr    error
	claimErrs []error
	claims    int
	claimed   *cart.Cart
	restored  *cart.Cart
}

func (m *mockCarts) Get(_ context.Context, _ string) (*cart.Cart, error) {
	return m.cart, m.getErr
}

func (m *mockCarts) Claim(_ context.Context, snapshot *cart.Cart) (*cart.Cart, error) {
	m.claims++
	if len(m.claimErrs) > 0 {
		err := m.claimErrs[0]
		m.claimErrs = m.claimErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	m.claimed = snapshot
	return snapshot, nil
}

func (m *mockCarts) Restore(_ context.Context, snapshot *cart.Cart) (*cart.Cart, error) {
	m.restored = snapshot
	return snapshot, nil
}

type mockRedeemer struct {
	codes []string
	err   error
}

func (m *mockRedeemer) Redeem(_ context.Context, code string) error {
	m.codes = append(m.codes, code)
	return m.err
}

func testConfig() Config {
	return Config{
		Currency: "INR",
		ShippingRates: map[string]decimal.Decimal{
			"standard": d("40"),
			"express":  d("120"),
		},
		FreeShippingOver: d("1000"),
	}
}

func newTestService(t *testing.T, repo *mockOrderRepo, carts *mockCarts, redeemer *mockRedeemer, cfg Config) *Service {
	t.Helper()
	s, err := NewService(repo, carts, redeemer, cfg, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)
	s.now = func() time.Time { return t0 }
	return s
}

func checkoutRequest() CheckoutRequest {
	return CheckoutRequest{
		CustomerID:     "u1",
		Address:        address(),
		ShippingMethod: "standard",
		PaymentMethod:  MethodUPI,
	}
}

func TestService_Checkout(t *testing.T) {
	c := filledCart(t)
	require.NoError(t, c.ApplyCoupon("FLAT20", d("20"), coupon.DiscountFixed, t0))
	repo := newMockOrderRepo()
	carts := &mockCarts{cart: c}
	redeemer := &mockRedeemer{}
	s := newTestService(t, repo, carts, redeemer, testConfig())

	o, err := s.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)

	assert.Equal(t, "u1", o.CustomerID)
	assert.Regexp(t, `^ORD20250615120000[0-9A-F]{6}$`, o.OrderNumber)
	assertDecimal(t, "40", o.Pricing.Shipping, "shipping")
	assertDecimal(t, "20", o.Pricing.CouponDiscount, "couponDiscount")
	assert.Equal(t, MethodUPI, o.Payment.Method)

	stored, err := s.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, stored.OrderNumber)

	assert.Equal(t, []string{"FLAT20"}, redeemer.codes)
	assert.Same(t, c, carts.claimed)
	assert.Nil(t, carts.restored)
}

func TestService_CheckoutReloadsChangedCart(t *testing.T) {
	carts := &mockCarts{cart: filledCart(t), claimErrs: []error{cart.ErrConflict, cart.ErrConflict}}
	repo := newMockOrderRepo()
	s := newTestService(t, repo, carts, &mockRedeemer{}, testConfig())

	_, err := s.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, carts.claims)
	assert.Len(t, repo.orders, 1)

	carts.claimErrs = []error{cart.ErrConflict, cart.ErrConflict, cart.ErrConflict, cart.ErrConflict, cart.ErrConflict}
	_, err = s.Checkout(context.Background(), checkoutRequest())
	require.ErrorIs(t, err, cart.ErrConflict)
	assert.Len(t, repo.orders, 1)
}

func TestService_CheckoutFreeShipping(t *testing.T) {
	c := cart.New("c1", "u1", t0)
	require.NoError(t, c.AddItem(cart.Line{ProductID: "p1", StoreID: "s1", UnitPrice: d("1500")}, 1, t0))
	s := newTestService(t, newMockOrderRepo(), &mockCarts{cart: c}, &mockRedeemer{}, testConfig())

	req := checkoutRequest()
	req.ShippingMethod = "express"
	o, err := s.Checkout(context.Background(), req)
	require.NoError(t, err)
	assertDecimal(t, "0", o.Pricing.Shipping, "shipping")
}

func TestService_CheckoutRetriesOrderNumber(t *testing.T) {
	repo := newMockOrderRepo()
	repo.duplicates = 2
	s := newTestService(t, repo, &mockCarts{cart: filledCart(t)}, &mockRedeemer{}, testConfig())
	numbers := []string{"ORD-A", "ORD-B", "ORD-C"}
	s.newNumber = func(time.Time) string {
		n := numbers[0]
		numbers = numbers[1:]
		return n
	}

	carts := s.carts.(*mockCarts)
	o, err := s.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.Equal(t, "ORD-C", o.OrderNumber)
	assert.Nil(t, carts.restored)

	repo.duplicates = 100
	s.newNumber = NewNumber
	_, err = s.Checkout(context.Background(), checkoutRequest())
	require.ErrorIs(t, err, ErrDuplicateOrderNumber)
	assert.Same(t, carts.cart, carts.restored, "claimed lines go back to the cart")
}

func TestService_CheckoutErrors(t *testing.T) {
	tests := []struct {
		name    string
		carts   *mockCarts
		req     func() CheckoutRequest
		invalid bool
	}{
		{
			name:    "empty cart",
			carts:   &mockCarts{cart: cart.New("c1", "u1", t0)},
			req:     checkoutRequest,
			invalid: true,
		},
		{
			name:    "missing customer",
			carts:   &mockCarts{},
			req:     func() CheckoutRequest { return CheckoutRequest{} },
			invalid: true,
		},
		{
			name:  "unknown shipping method",
			carts: &mockCarts{cart: filledCart(t)},
			req: func() CheckoutRequest {
				r := checkoutRequest()
				r.ShippingMethod = "drone"
				return r
			},
			invalid: true,
		},
		{
			name:  "cart store failure",
			carts: &mockCarts{getErr: errors.New("connection reset")},
			req:   checkoutRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockOrderRepo()
			s := newTestService(t, repo, tt.carts, &mockRedeemer{}, testConfig())

			_, err := s.Checkout(context.Background(), tt.req())
			require.Error(t, err)
			assert.Equal(t, tt.invalid, validation.IsValidation(err), "got %v", err)
			assert.Empty(t, repo.orders)
			assert.Nil(t, tt.carts.claimed)
		})
	}
}

func TestService_CheckoutRedeemFailureIsNotFatal(t *testing.T) {
	c := filledCart(t)
	require.NoError(t, c.ApplyCoupon("SAVE10", d("10"), coupon.DiscountPercentage, t0))
	carts := &mockCarts{cart: c}
	redeemer := &mockRedeemer{err: errors.New("coupon store down")}
	s := newTestService(t, newMockOrderRepo(), carts, redeemer, testConfig())

	o, err := s.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, []string{"SAVE10"}, redeemer.codes)
	assert.Nil(t, carts.restored)
}

func placeOrder(t *testing.T, s *Service) *Order {
	t.Helper()
	o, err := s.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)
	return o
}

func TestService_Lifecycle(t *testing.T) {
	repo := newMockOrderRepo()
	s := newTestService(t, repo, &mockCarts{cart: filledCart(t)}, &mockRedeemer{}, testConfig())
	ctx := context.Background()
	o := placeOrder(t, s)

	for _, st := range []Status{StatusConfirmed, StatusProcessing, StatusShipped} {
		var err error
		o, err = s.UpdateStatus(ctx, o.ID, Change{To: st, UpdatedBy: "vendor-1"})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), o.Version)

	o, err := s.UpdateTracking(ctx, o.ID, Tracking{Carrier: "Delhivery", Number: "DL42"})
	require.NoError(t, err)
	assert.Equal(t, "DL42", o.Shipping.TrackingNumber)

	_, err = s.UpdateStatus(ctx, o.ID, Change{To: StatusPending})
	require.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := s.GetByNumber(ctx, o.OrderNumber)
	require.NoError(t, err)
	assert.Len(t, stored.StatusHistory, 4)
	assert.Equal(t, StatusShipped, stored.Status)

	list, err := s.ListByCustomer(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_RequireCapturedPayment(t *testing.T) {
	cfg := testConfig()
	cfg.RequireCapturedPayment = true
	s := newTestService(t, newMockOrderRepo(), &mockCarts{cart: filledCart(t)}, &mockRedeemer{}, cfg)
	ctx := context.Background()
	o := placeOrder(t, s)

	for _, st := range []Status{StatusConfirmed, StatusProcessing} {
		_, err := s.UpdateStatus(ctx, o.ID, Change{To: st})
		require.NoError(t, err)
	}
	_, err := s.UpdateStatus(ctx, o.ID, Change{To: StatusShipped})
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.ProcessPayment(ctx, o.ID, PaymentUpdate{Status: PaymentCompleted, TransactionID: "upi-1"})
	require.NoError(t, err)

	o, err = s.UpdateStatus(ctx, o.ID, Change{To: StatusShipped})
	require.NoError(t, err)
	require.NotNil(t, o.ShippedAt)
}

func TestService_PaymentAndRefund(t *testing.T) {
	s := newTestService(t, newMockOrderRepo(), &mockCarts{cart: filledCart(t)}, &mockRedeemer{}, testConfig())
	ctx := context.Background()
	o := placeOrder(t, s)

	o, err := s.ProcessPayment(ctx, o.ID, PaymentUpdate{Status: PaymentCompleted, TransactionID: "txn-9"})
	require.NoError(t, err)
	require.NotNil(t, o.Payment.PaidAt)

	o, err = s.RecordRefund(ctx, o.ID, Refund{Amount: d("50"), Reason: "late"})
	require.NoError(t, err)
	assert.Equal(t, PaymentRefunded, o.Payment.Status)
	assert.True(t, o.NetAmount().Equal(o.Pricing.Total.Sub(d("50"))))
}

func TestService_UpdateRetriesOnConflict(t *testing.T) {
	repo := newMockOrderRepo()
	s := newTestService(t, repo, &mockCarts{cart: filledCart(t)}, &mockRedeemer{}, testConfig())
	ctx := context.Background()
	o := placeOrder(t, s)

	repo.conflicts = 2
	o, err := s.UpdateStatus(ctx, o.ID, Change{To: StatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, 3, repo.updates)
	assert.Len(t, o.StatusHistory, 2)

	repo.conflicts = 100
	_, err = s.UpdateStatus(ctx, o.ID, Change{To: StatusProcessing})
	require.ErrorIs(t, err, ErrConflict)
}

func TestService_ConcurrentStatusAndPayment(t *testing.T) {
	repo := newMockOrderRepo()
	cfg := testConfig()
	cfg.CommitAttempts = 50
	s := newTestService(t, repo, &mockCarts{cart: filledCart(t)}, &mockRedeemer{}, cfg)
	ctx := context.Background()
	o := placeOrder(t, s)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := s.UpdateStatus(ctx, o.ID, Change{To: StatusConfirmed})
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := s.ProcessPayment(ctx, o.ID, PaymentUpdate{Status: PaymentCompleted})
		assert.NoError(t, err)
	}()
	wg.Wait()

	stored, err := s.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, stored.Status)
	assert.Len(t, stored.StatusHistory, 2)
	assert.Equal(t, PaymentCompleted, stored.Payment.Status)
}
