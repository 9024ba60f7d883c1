// Package order implements the order aggregate: a price snapshot taken from
// a cart at checkout, its status lifecycle, and payment and shipping
// records.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bazaar/internal/domain/cart"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned by Repository.Update when the stored version moved on.
	ErrConflict = errors.New("order was modified concurrently")
	// ErrDuplicateOrderNumber is returned by Repository.Create when the order
	// number is already taken.
	ErrDuplicateOrderNumber = errors.New("order number already exists")
)

// Status is an order lifecycle state.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusProcessing     Status = "processing"
	StatusShipped        Status = "shipped"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusReturned       Status = "returned"
	StatusRefunded       Status = "refunded"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusProcessing,
	StatusShipped,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
	StatusReturned,
	StatusRefunded,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s ends the active lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusReturned, StatusRefunded:
		return true
	default:
		return false
	}
}

// PaymentStatus is the state of an order's payment.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	default:
		return false
	}
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	MethodCard       PaymentMethod = "card"
	MethodUPI        PaymentMethod = "upi"
	MethodNetBanking PaymentMethod = "netbanking"
	MethodWallet     PaymentMethod = "wallet"
	MethodCOD        PaymentMethod = "cod"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodUPI, MethodNetBanking, MethodWallet, MethodCOD:
		return true
	default:
		return false
	}
}

// ItemCoupon is the share of the order coupon attributed to one line.
type ItemCoupon struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}

// Item is a frozen copy of a cart line.
type Item struct {
	ProductID     string          `json:"productId"`
	StoreID       string          `json:"storeId"`
	VendorID      string          `json:"vendorId"`
	Name          string          `json:"name"`
	Variant       *cart.Variant   `json:"variant,omitempty"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	OriginalPrice decimal.Decimal `json:"originalPrice"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	Discount      decimal.Decimal `json:"discount"`
	GSTRate       decimal.Decimal `json:"gstRate"`
	GSTAmount     decimal.Decimal `json:"gstAmount"`
	Coupon        *ItemCoupon     `json:"coupon,omitempty"`
}

// Pricing holds the order totals. See CalculateTotals.
type Pricing struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	Shipping       decimal.Decimal `json:"shipping"`
	Discount       decimal.Decimal `json:"discount"`
	CouponDiscount decimal.Decimal `json:"couponDiscount"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
}

// Payment is the payment sub-record. It is updated independently of the
// order status.
type Payment struct {
	Method        PaymentMethod   `json:"method"`
	Status        PaymentStatus   `json:"status"`
	TransactionID string          `json:"transactionId,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
	RefundAmount  decimal.Decimal `json:"refundAmount"`
	RefundReason  string          `json:"refundReason,omitempty"`
	RefundedAt    *time.Time      `json:"refundedAt,omitempty"`
}

// Address is a delivery address.
type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Shipping holds the delivery address, method, and tracking details.
type Shipping struct {
	Address           Address         `json:"address"`
	Method            string          `json:"method"`
	Cost              decimal.Decimal `json:"cost"`
	Carrier           string          `json:"carrier,omitempty"`
	TrackingNumber    string          `json:"trackingNumber,omitempty"`
	TrackingURL       string          `json:"trackingUrl,omitempty"`
	EstimatedDelivery *time.Time      `json:"estimatedDelivery,omitempty"`
}

// HistoryEntry records one status change.
type HistoryEntry struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// Order is a placed order. Items and prices are frozen at checkout; later
// changes go through UpdateStatus, ProcessPayment, RecordRefund and
// UpdateTracking only.
type Order struct {
	ID            string         `json:"id"`
	OrderNumber   string         `json:"orderNumber"`
	CustomerID    string         `json:"customerId"`
	StoreID       string         `json:"storeId"`
	VendorID      string         `json:"vendorId"`
	Items         []Item         `json:"items"`
	CouponCode    string         `json:"couponCode,omitempty"`
	Pricing       Pricing        `json:"pricing"`
	Payment       Payment        `json:"payment"`
	Shipping      Shipping       `json:"shipping"`
	Status        Status         `json:"status"`
	StatusHistory []HistoryEntry `json:"statusHistory"`
	Notes         string         `json:"notes,omitempty"`

	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	ShippedAt   *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Repository persists orders. Create fails with ErrDuplicateOrderNumber
// when the order number is taken. Update is a compare-and-swap on Version:
// it fails with ErrConflict when the stored version differs and increments
// o.Version on success.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	Update(ctx context.Context, o *Order) error
}
