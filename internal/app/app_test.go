package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/bazaar/internal/handler"
	"github.com/xenking/bazaar/pkg/httpmiddleware"
)

func newMemoryServer(t *testing.T, limit int) *server {
	t.Helper()
	ctx := context.Background()

	cfg := validConfig()
	cfg.Storage.Seed = true
	cfg.RateLimit.Max = limit

	s, err := openStorage(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	srv, err := newServer(ctx, &cfg, s, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)
	return srv
}

func serve(srv *server, method, path, customer, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if customer != "" {
		req.Header.Set(handler.HeaderCustomerID, customer)
	}
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	srv := newMemoryServer(t, 100)

	assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/livez", "", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(srv, http.MethodGet, "/readyz", "", "").Code)

	srv.health.SetReady(true)
	assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/readyz", "", "").Code)
}

func TestServer_SeededCatalogCheckout(t *testing.T) {
	srv := newMemoryServer(t, 100)

	w := serve(srv, http.MethodGet, "/api/products", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(httpmiddleware.HeaderRequestID))
	var products []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &products))
	assert.Len(t, products, 4, "inactive products are hidden")

	w = serve(srv, http.MethodPost, "/api/cart/items", "cust-1",
		`{"productId":"tea-assam","quantity":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(srv, http.MethodPost, "/api/cart/coupon", "cust-1", `{"code":"welcome10"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(srv, http.MethodPost, "/api/cart/coupon", "cust-1", `{"code":"NOPE"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = serve(srv, http.MethodPost, "/api/orders", "cust-1", `{
		"shippingAddress": {"name":"Asha","line1":"12 MG Road","city":"Pune","state":"MH","postalCode":"411001","country":"IN","phone":"9800000000"},
		"shippingMethod": "standard",
		"paymentMethod": "upi"
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var o map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
	assert.Equal(t, "pending", o["status"])
	pricing := o["pricing"].(map[string]any)
	assert.Equal(t, "INR", pricing["currency"])
	// 2 x 185 = 370 is below the free shipping threshold.
	assert.Equal(t, 49.0, pricing["shipping"])
}

func TestServer_RateLimit(t *testing.T) {
	srv := newMemoryServer(t, 2)

	for range 2 {
		assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/livez", "", "").Code)
	}
	w := serve(srv, http.MethodGet, "/livez", "", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestServer_UnknownRoute(t *testing.T) {
	srv := newMemoryServer(t, 100)
	w := serve(srv, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOpenStorage_InvalidDatabase(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := validConfig()
	cfg.Storage.Driver = DriverPostgres
	cfg.Storage.DatabaseURL = "postgres://bad%zz/db"
	_, err := openStorage(ctx, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create db pool")
}
