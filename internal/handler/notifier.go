package handler

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bazaar/internal/domain/order"
)

// Event names passed to Notifier.
const (
	EventStatusChanged  = "order.status_changed"
	EventPaymentUpdated = "order.payment_updated"
)

// Notifier is told about order changes a customer may care about.
// Notify must not block the request for long; errors are only logged.
type Notifier interface {
	Notify(ctx context.Context, event string, o *order.Order) error
}

// LogNotifier writes notifications to the request logger.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, event string, o *order.Order) error {
	zctx.From(ctx).Info("Order notification",
		zap.String("event", event),
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.String("customer_id", o.CustomerID),
		zap.String("status", string(o.Status)),
		zap.String("payment_status", string(o.Payment.Status)),
	)
	return nil
}
