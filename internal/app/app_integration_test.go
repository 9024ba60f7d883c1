//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/bazaar/db"
	"github.com/xenking/bazaar/internal/handler"
	"github.com/xenking/bazaar/internal/seed"
	"github.com/xenking/bazaar/internal/storage/postgres"
	"github.com/xenking/bazaar/pkg/httpmiddleware"
)

var (
	baseURL    string
	httpClient *http.Client
)

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func startContainer(ctx context.Context, req testcontainers.ContainerRequest, port string) (testcontainers.Container, string, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", err
	}
	host, err := c.Host(ctx)
	if err != nil {
		return c, "", err
	}
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return c, "", err
	}
	return c, host + ":" + mapped.Port(), nil
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, pgAddr, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "bazaar",
			"POSTGRES_PASSWORD": "bazaar",
			"POSTGRES_DB":       "bazaar",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}, "5432/tcp")
	if pg != nil {
		defer func() { _ = testcontainers.TerminateContainer(pg) }()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		return 1
	}

	rd, redisAddr, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}, "6379/tcp")
	if rd != nil {
		defer func() { _ = testcontainers.TerminateContainer(rd) }()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "start redis: %v\n", err)
		return 1
	}

	cfg := validConfig()
	cfg.Storage = StorageConfig{
		Driver:      DriverPostgres,
		DatabaseURL: fmt.Sprintf("postgres://bazaar:bazaar@%s/bazaar?sslmode=disable", pgAddr),
		Migrate:     true,
	}
	cfg.Redis = RedisConfig{Addr: redisAddr, CatalogTTL: time.Minute}
	cfg.RateLimit.Max = 1000

	s, err := openStorage(ctx, &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open storage: %v\n", err)
		return 1
	}
	defer s.Close()

	catalog, err := seed.Decode(bytes.NewReader(db.SampleCatalog))
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode catalog: %v\n", err)
		return 1
	}
	if _, err := seed.Apply(ctx, catalog,
		postgres.NewProductRepository(s.pool),
		postgres.NewCouponRepository(s.pool), 4,
	); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		return 1
	}

	srv, err := newServer(ctx, &cfg, s, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	if err != nil {
		fmt.Fprintf(os.Stderr, "new server: %v\n", err)
		return 1
	}
	srv.health.Start(ctx, time.Second)
	defer srv.health.Stop()
	srv.health.SetReady(true)

	ts := httptest.NewServer(srv.handler)
	defer ts.Close()
	baseURL = ts.URL
	httpClient = ts.Client()

	return m.Run()
}

func do(t *testing.T, method, path, customer, body string) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, baseURL+path, r)
	require.NoError(t, err)
	if customer != "" {
		req.Header.Set(handler.HeaderCustomerID, customer)
	}
	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestIntegration_Health(t *testing.T) {
	resp, _ := do(t, http.MethodGet, "/livez", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(httpmiddleware.HeaderRequestID))

	resp, body := do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func TestIntegration_CachedCatalog(t *testing.T) {
	for range 2 {
		resp, body := do(t, http.MethodGet, "/api/products/kurta-cotton", "", "")
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		var p map[string]any
		require.NoError(t, json.Unmarshal(body, &p))
		assert.Equal(t, "store-khadi", p["storeId"])
		assert.Len(t, p["variants"], 3)
	}
}

func TestIntegration_OrderLifecycle(t *testing.T) {
	const customer = "cust-integration"

	resp, body := do(t, http.MethodPost, "/api/cart/items", customer,
		`{"productId":"kurta-cotton","variantSku":"KHD-KURTA-XL","quantity":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = do(t, http.MethodPost, "/api/cart/coupon", customer, `{"code":"FLAT100"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = do(t, http.MethodPost, "/api/orders", customer, `{
		"shippingAddress": {"name":"Ravi","line1":"4 Park St","city":"Kolkata","state":"WB","postalCode":"700016","country":"IN","phone":"9830000000"},
		"shippingMethod": "express",
		"paymentMethod": "cod"
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var o map[string]any
	require.NoError(t, json.Unmarshal(body, &o))
	id := o["id"].(string)
	number := o["orderNumber"].(string)
	assert.True(t, strings.HasPrefix(number, "ORD"))
	pricing := o["pricing"].(map[string]any)
	assert.Equal(t, 0.0, pricing["shipping"], "free shipping over 499")
	assert.Equal(t, 100.0, pricing["couponDiscount"])

	resp, body = do(t, http.MethodGet, "/api/cart", customer, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var c map[string]any
	require.NoError(t, json.Unmarshal(body, &c))
	assert.Empty(t, c["items"], "checkout consumes the cart")

	for _, status := range []string{"confirmed", "processing", "shipped"} {
		resp, body = do(t, http.MethodPost, "/api/orders/"+id+"/status", customer,
			`{"status":"`+status+`"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	}

	resp, body = do(t, http.MethodPost, "/api/orders/"+id+"/status", customer, `{"status":"pending"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))

	resp, body = do(t, http.MethodGet, "/api/orders/"+number, "someone-else", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, string(body))
}
