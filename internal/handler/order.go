package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bazaar/internal/domain/order"
	"github.com/xenking/bazaar/internal/domain/validation"
)

func (h *Handler) writeOrder(w http.ResponseWriter, r *http.Request, status int, o *order.Order) {
	writeJSON(w, r, status, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) notify(r *http.Request, event string, o *order.Order) {
	if err := h.notifier.Notify(r.Context(), event, o); err != nil {
		zctx.From(r.Context()).Warn("Notify",
			zap.String("event", event),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

func decodeAddress(d *jx.Decoder, a *order.Address) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			a.Name, err = d.Str()
		case "phone":
			a.Phone, err = d.Str()
		case "line1":
			a.Line1, err = d.Str()
		case "line2":
			a.Line2, err = d.Str()
		case "city":
			a.City, err = d.Str()
		case "state":
			a.State, err = d.Str()
		case "postalCode":
			a.PostalCode, err = d.Str()
		case "country":
			a.Country, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

// Checkout places an order from the caller's cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req := order.CheckoutRequest{CustomerID: id}
	if err := readBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "shippingAddress":
			return decodeAddress(d, &req.Address)
		case "shippingMethod":
			v, err := d.Str()
			req.ShippingMethod = v
			return err
		case "paymentMethod":
			v, err := d.Str()
			req.PaymentMethod = order.PaymentMethod(v)
			return err
		case "notes":
			v, err := d.Str()
			req.Notes = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Checkout(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeOrder(w, r, http.StatusCreated, o)
}

// ListOrders returns the caller's orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orders, err := h.orders.ListByCustomer(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

// GetOrder returns one of the caller's orders, by ID or by order number.
// Orders of other customers are reported as not found.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ref := chi.URLParam(r, "orderID")

	var o *order.Order
	if strings.HasPrefix(ref, order.NumberPrefix) {
		o, err = h.orders.GetByNumber(r.Context(), ref)
	} else {
		o, err = h.orders.Get(r.Context(), ref)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if o.CustomerID != id {
		writeError(w, r, order.ErrNotFound)
		return
	}
	h.writeOrder(w, r, http.StatusOK, o)
}

// UpdateOrderStatus moves an order through its lifecycle.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ch := order.Change{UpdatedBy: actor(r)}
	if err := readBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			var v string
			v, err = d.Str()
			ch.To = order.Status(v)
		case "note":
			ch.Note, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if ch.To == "" {
		writeError(w, r, validation.New("status", "required"))
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "orderID"), ch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.notify(r, EventStatusChanged, o)
	h.writeOrder(w, r, http.StatusOK, o)
}

// ProcessPayment records a payment update.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var u order.PaymentUpdate
	if err := readBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			var v string
			v, err = d.Str()
			u.Status = order.PaymentStatus(v)
		case "transactionId":
			u.TransactionID, err = d.Str()
		case "amount":
			amount, derr := decodeDecimal(d, "amount")
			u.Amount, err = &amount, derr
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.ProcessPayment(r.Context(), chi.URLParam(r, "orderID"), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.notify(r, EventPaymentUpdated, o)
	h.writeOrder(w, r, http.StatusOK, o)
}

// RecordRefund records a refund against an order.
func (h *Handler) RecordRefund(w http.ResponseWriter, r *http.Request) {
	var ref order.Refund
	if err := readBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "amount":
			ref.Amount, err = decodeDecimal(d, "amount")
		case "reason":
			ref.Reason, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.RecordRefund(r.Context(), chi.URLParam(r, "orderID"), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.notify(r, EventPaymentUpdated, o)
	h.writeOrder(w, r, http.StatusOK, o)
}

// UpdateTracking records carrier tracking details.
func (h *Handler) UpdateTracking(w http.ResponseWriter, r *http.Request) {
	var t order.Tracking
	if err := readBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "carrier":
			t.Carrier, err = d.Str()
		case "trackingNumber":
			t.Number, err = d.Str()
		case "trackingUrl":
			t.URL, err = d.Str()
		case "estimatedDelivery":
			eta, derr := decodeTime(d, "estimatedDelivery")
			t.EstimatedDelivery, err = &eta, derr
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateTracking(r.Context(), chi.URLParam(r, "orderID"), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeOrder(w, r, http.StatusOK, o)
}
