package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bazaar/internal/domain/order"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (BAZAAR_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage   StorageConfig
	Redis     RedisConfig
	Orders    OrdersConfig
	Coupons   CouponsConfig
	RateLimit RateLimitConfig
	Graceful  GracefulConfig
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver      string `default:"postgres" usage:"Storage driver: postgres or memory"`
	DatabaseURL string `usage:"PostgreSQL connection URL (BAZAAR_STORAGE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Migrate     bool   `default:"true" usage:"Apply migrations on startup"`
	Seed        bool   `default:"true" usage:"Load the sample catalog when using the memory driver"`
}

// RedisConfig enables the catalog cache and the shared rate limiter.
// Empty Addr disables Redis.
type RedisConfig struct {
	Addr       string        `default:"" usage:"Redis address (host:port)"`
	CatalogTTL time.Duration `default:"5m" usage:"Product cache entry lifetime" flag:"catalog-ttl"`
}

// OrdersConfig controls checkout pricing and the order lifecycle.
type OrdersConfig struct {
	Currency               string   `default:"INR" usage:"ISO currency code stamped on orders"`
	ShippingRates          []string `default:"standard:49,express:99" usage:"Shipping method rates as method:amount" flag:"shipping-rates"`
	FreeShippingOver       string   `default:"499" usage:"Cart total that waives shipping, 0 disables" flag:"free-shipping-over"`
	RequireCapturedPayment bool     `default:"false" usage:"Block shipping until payment completes" flag:"require-captured-payment"`
	CommitRetries          int      `default:"5" usage:"Optimistic concurrency attempts per mutation" flag:"commit-retries"`
}

// OrderConfig converts c into the order service configuration.
func (c OrdersConfig) OrderConfig() (order.Config, error) {
	rates := make(map[string]decimal.Decimal, len(c.ShippingRates))
	for _, entry := range c.ShippingRates {
		method, amount, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || method == "" {
			return order.Config{}, errors.Errorf("shipping rate %q: want method:amount", entry)
		}
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return order.Config{}, errors.Wrapf(err, "shipping rate %q", entry)
		}
		if v.IsNegative() {
			return order.Config{}, errors.Errorf("shipping rate %q: negative amount", entry)
		}
		rates[strings.ToLower(method)] = v
	}

	var free decimal.Decimal
	if c.FreeShippingOver != "" {
		v, err := decimal.NewFromString(c.FreeShippingOver)
		if err != nil {
			return order.Config{}, errors.Wrap(err, "free shipping threshold")
		}
		free = v
	}

	return order.Config{
		Currency:               strings.ToUpper(c.Currency),
		ShippingRates:          rates,
		FreeShippingOver:       free,
		RequireCapturedPayment: c.RequireCapturedPayment,
		CommitAttempts:         c.CommitRetries,
	}, nil
}

// CouponsConfig controls the known-code filter refresh.
type CouponsConfig struct {
	RefreshInterval time.Duration `default:"1m" usage:"How often the known coupon codes are reloaded" flag:"coupon-refresh"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BAZAAR",
		Files:     []string{"config.yaml", "/etc/bazaar/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration that cannot start the server.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required: set BAZAAR_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	if _, err := c.Orders.OrderConfig(); err != nil {
		return errors.Wrap(err, "orders")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's BAZAAR_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.Storage.DatabaseURL = v
		}
	}
	if c.Redis.Addr == "" {
		if v := os.Getenv("REDIS_ADDR"); v != "" {
			c.Redis.Addr = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
