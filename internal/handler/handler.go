// Package handler exposes the cart and order services over HTTP.
package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/bazaar/internal/domain/cart"
	"github.com/xenking/bazaar/internal/domain/order"
	"github.com/xenking/bazaar/internal/domain/product"
	"github.com/xenking/bazaar/internal/domain/validation"
	"github.com/xenking/bazaar/pkg/httpmiddleware"
)

// Identity headers are set by the upstream gateway.
const (
	HeaderCustomerID = httpmiddleware.HeaderCustomerID
	HeaderUserID     = "X-User-ID"
)

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// Notifier receives order status and payment changes. Defaults to
	// LogNotifier.
	Notifier Notifier
}

// Handler serves the HTTP API, delegating business logic to the cart and
// order services and the product repository.
type Handler struct {
	products product.Repository
	carts    *cart.Service
	orders   *order.Service
	notifier Notifier
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	products product.Repository,
	carts *cart.Service,
	orders *order.Service,
) *Handler {
	n := cfg.Notifier
	if n == nil {
		n = LogNotifier{}
	}
	return &Handler{
		products: products,
		carts:    carts,
		orders:   orders,
		notifier: n,
	}
}

// Routes mounts the API under r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{productID}", h.GetProduct)
	})
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddCartItem)
		r.Patch("/items/{productID}", h.UpdateCartItem)
		r.Delete("/items/{productID}", h.RemoveCartItem)
		r.Post("/coupon", h.ApplyCoupon)
		r.Delete("/coupon", h.RemoveCoupon)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.Checkout)
		r.Get("/", h.ListOrders)
		r.Get("/{orderID}", h.GetOrder)
		r.Post("/{orderID}/status", h.UpdateOrderStatus)
		r.Post("/{orderID}/payment", h.ProcessPayment)
		r.Post("/{orderID}/refund", h.RecordRefund)
		r.Put("/{orderID}/tracking", h.UpdateTracking)
	})
}

// Router returns a chi router with the API mounted at /api.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", h.Routes)
	return r
}

func customerID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderCustomerID))
	if id == "" {
		return "", validation.New(HeaderCustomerID, "header required")
	}
	return id, nil
}

// actor names who made a change, preferring the user over the customer.
func actor(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderUserID)); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(HeaderCustomerID))
}
