package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/bazaar/internal/domain/validation"
)

// PaymentUpdate is merged into an order's payment record. Zero fields are
// left unchanged.
type PaymentUpdate struct {
	Status        PaymentStatus
	TransactionID string
	Amount        *decimal.Decimal
}

// ProcessPayment merges u into the payment record and stamps PaidAt. The
// amount is not checked against the order total.
func (o *Order) ProcessPayment(u PaymentUpdate, now time.Time) error {
	if u.Status != "" && !u.Status.Valid() {
		return validation.New("status", "unknown payment status %q", u.Status)
	}
	if u.Amount != nil && u.Amount.IsNegative() {
		return validation.New("amount", "must not be negative")
	}

	if u.Status != "" {
		o.Payment.Status = u.Status
	}
	if u.TransactionID != "" {
		o.Payment.TransactionID = u.TransactionID
	}
	if u.Amount != nil {
		o.Payment.Amount = *u.Amount
	}
	paid := now
	o.Payment.PaidAt = &paid
	o.UpdatedAt = now
	return nil
}

// Refund is a refund to record against an order.
type Refund struct {
	Amount decimal.Decimal
	Reason string
}

// RecordRefund merges r into the payment record and marks the payment
// refunded. Pricing is not changed; see NetAmount.
func (o *Order) RecordRefund(r Refund, now time.Time) error {
	if !r.Amount.IsPositive() {
		return validation.New("amount", "must be positive")
	}
	o.Payment.RefundAmount = r.Amount
	if r.Reason != "" {
		o.Payment.RefundReason = r.Reason
	}
	refunded := now
	o.Payment.RefundedAt = &refunded
	o.Payment.Status = PaymentRefunded
	o.UpdatedAt = now
	return nil
}

// Tracking is carrier tracking information for a shipment.
type Tracking struct {
	Carrier           string
	Number            string
	URL               string
	EstimatedDelivery *time.Time
}

// UpdateTracking records tracking details. Cancelled orders are rejected.
func (o *Order) UpdateTracking(t Tracking, now time.Time) error {
	if t.Number == "" {
		return validation.New("trackingNumber", "required")
	}
	if o.Status == StatusCancelled {
		return validation.New("status", "order is cancelled")
	}
	o.Shipping.TrackingNumber = t.Number
	if t.Carrier != "" {
		o.Shipping.Carrier = t.Carrier
	}
	if t.URL != "" {
		o.Shipping.TrackingURL = t.URL
	}
	if t.EstimatedDelivery != nil {
		eta := *t.EstimatedDelivery
		o.Shipping.EstimatedDelivery = &eta
	}
	o.UpdatedAt = now
	return nil
}
