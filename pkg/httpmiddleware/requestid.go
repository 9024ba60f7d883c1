package httpmiddleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// HeaderRequestID carries the request ID in both directions.
	HeaderRequestID = "X-Request-ID"
	// HeaderCustomerID names the shopper whose cart and orders a request
	// touches.
	HeaderCustomerID = "X-Customer-ID"
)

type (
	requestIDKey  struct{}
	customerIDKey struct{}
)

// RequestIDFromContext returns the request ID stored by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// CustomerIDFromContext returns the customer recorded by RequestID, or "".
func CustomerIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(customerIDKey{}).(string)
	return id
}

// RequestID reuses a well-formed incoming X-Request-ID or generates a UUID,
// echoes it in the response and stores it in the request context. A
// well-formed X-Customer-ID is stored next to it. Both are recorded on the
// active span. Handlers still decide whether a customer is required.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if !isValidID(id) {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)

			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			attrs := []attribute.KeyValue{attribute.String("http.request_id", id)}
			if customer := requestCustomer(r); customer != "" {
				ctx = context.WithValue(ctx, customerIDKey{}, customer)
				attrs = append(attrs, attribute.String("bazaar.customer_id", customer))
			}
			trace.SpanFromContext(ctx).SetAttributes(attrs...)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestCustomer returns the trimmed X-Customer-ID of r, or "" when it is
// missing or malformed.
func requestCustomer(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(HeaderCustomerID))
	if !isValidID(id) {
		return ""
	}
	return id
}

// isValidID reports whether id is 1 to 128 bytes of printable ASCII.
func isValidID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for i := range len(id) {
		if id[i] < 0x20 || id[i] > 0x7E {
			return false
		}
	}
	return true
}
