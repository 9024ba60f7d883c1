package app

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bazaar/db"
	"github.com/xenking/bazaar/internal/domain/cart"
	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/order"
	"github.com/xenking/bazaar/internal/domain/product"
	"github.com/xenking/bazaar/internal/handler"
	"github.com/xenking/bazaar/internal/seed"
	"github.com/xenking/bazaar/internal/storage/memory"
	"github.com/xenking/bazaar/internal/storage/postgres"
	"github.com/xenking/bazaar/internal/storage/rediscache"
	"github.com/xenking/bazaar/pkg/health"
	"github.com/xenking/bazaar/pkg/httpmiddleware"
)

// storage is the set of repositories backing the services.
type storage struct {
	products product.Repository
	coupons  coupon.Repository
	carts    cart.Repository
	orders   order.Repository

	pool  *pgxpool.Pool
	redis *redis.Client
}

func (s *storage) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

func openStorage(ctx context.Context, cfg *Config) (_ *storage, rerr error) {
	lg := zctx.From(ctx)
	s := &storage{}
	defer func() {
		if rerr != nil {
			s.Close()
		}
	}()

	switch cfg.Storage.Driver {
	case DriverMemory:
		products := memory.NewProductRepository()
		coupons := memory.NewCouponRepository()
		if cfg.Storage.Seed {
			catalog, err := seed.Decode(bytes.NewReader(db.SampleCatalog))
			if err != nil {
				return nil, errors.Wrap(err, "decode sample catalog")
			}
			stats, err := seed.Apply(ctx, catalog, products, coupons, 4)
			if err != nil {
				return nil, errors.Wrap(err, "seed sample catalog")
			}
			lg.Info("Seeded memory storage",
				zap.Int("products", stats.Products),
				zap.Int("coupons", stats.Coupons),
			)
		}
		s.products = products
		s.coupons = coupons
		s.carts = memory.NewCartRepository()
		s.orders = memory.NewOrderRepository()
	default:
		pool, err := postgres.NewPool(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		s.pool = pool
		if cfg.Storage.Migrate {
			if err := postgres.RunMigrations(ctx, pool); err != nil {
				return nil, errors.Wrap(err, "run migrations")
			}
		}
		s.products = postgres.NewProductRepository(pool)
		s.coupons = postgres.NewCouponRepository(pool)
		s.carts = postgres.NewCartRepository(pool)
		s.orders = postgres.NewOrderRepository(pool)
	}

	if cfg.Redis.Addr != "" {
		s.redis = rediscache.NewClient(cfg.Redis.Addr)
		s.products = rediscache.NewCatalog(s.products, s.redis, cfg.Redis.CatalogTTL)
		lg.Info("Product cache enabled", zap.String("redis", cfg.Redis.Addr))
	}
	return s, nil
}

// server is the assembled HTTP stack plus the background work it needs.
type server struct {
	handler http.Handler
	health  *health.Health
	known   *coupon.KnownCodes
	limiter httpmiddleware.LimitStore
}

func newServer(
	ctx context.Context,
	cfg *Config,
	s *storage,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider,
) (*server, error) {
	orderCfg, err := cfg.Orders.OrderConfig()
	if err != nil {
		return nil, errors.Wrap(err, "order config")
	}

	healthSvc := health.New()
	healthSvc.Register(health.Liveness, health.Check{
		Name: "goroutines",
		Func: health.GoroutineCountCheck(10000),
	})
	if s.pool != nil {
		healthSvc.Register(health.Readiness, health.Check{
			Name:    "postgres",
			Timeout: 5 * time.Second,
			Func:    health.PingCheck(s.pool),
		})
	}
	if s.redis != nil {
		healthSvc.Register(health.Readiness, health.Check{
			Name:    "redis",
			Timeout: 2 * time.Second,
			Func:    health.RedisCheck(s.redis),
		})
	}

	validator := coupon.NewRepoValidator(s.coupons)
	known := coupon.NewKnownCodes(validator, s.coupons)
	if err := known.Refresh(ctx); err != nil {
		return nil, errors.Wrap(err, "load coupon codes")
	}

	carts, err := cart.NewService(s.carts, s.products, known, meterProvider.Meter("bazaar/cart"), cfg.Orders.CommitRetries)
	if err != nil {
		return nil, errors.Wrap(err, "create cart service")
	}
	orders, err := order.NewService(s.orders, carts, validator, orderCfg, tracerProvider, meterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}

	var limiter httpmiddleware.LimitStore
	if s.redis != nil {
		limiter = httpmiddleware.NewRedisStore(s.redis, cfg.RateLimit.Max, cfg.RateLimit.Window)
	} else {
		limiter = httpmiddleware.NewMemoryStore(cfg.RateLimit.Max, cfg.RateLimit.Window)
	}

	h := handler.NewHandler(handler.HandlerConfig{Notifier: handler.LogNotifier{}}, s.products, carts, orders)
	router := h.Router()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)

	return &server{
		handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			otelhttp.NewMiddleware("bazaar-api",
				otelhttp.WithTracerProvider(tracerProvider),
				otelhttp.WithMeterProvider(meterProvider),
			),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
			httpmiddleware.Labeler(),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Store:  limiter,
			}),
		),
		health:  healthSvc,
		known:   known,
		limiter: limiter,
	}, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	s, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	srv, err := newServer(ctx, cfg, s, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}
	srv.health.Start(ctx, 10*time.Second)
	srv.health.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           srv.handler,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srv.known.Run(gctx, cfg.Coupons.RefreshInterval)
		return nil
	})
	if store, ok := srv.limiter.(*httpmiddleware.MemoryStore); ok {
		g.Go(func() error {
			store.RunCleanup(gctx)
			return nil
		})
	}
	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		srv.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		srv.health.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}
