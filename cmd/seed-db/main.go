// Command seed-db applies migrations and loads a product and coupon catalog.
package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/bazaar/db"
	"github.com/xenking/bazaar/internal/seed"
	"github.com/xenking/bazaar/internal/storage/postgres"
	"github.com/xenking/bazaar/internal/storage/rediscache"
)

func main() {
	var (
		databaseURL string
		catalogFile string
		redisAddr   string
		workers     int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog", "", "path to catalog JSON, defaults to the built-in sample")
	flag.StringVar(&redisAddr, "redis-addr", "", "Redis address whose product cache is invalidated (or REDIS_ADDR env)")
	flag.IntVar(&workers, "workers", 4, "concurrent upserts")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if redisAddr == "" {
		redisAddr = os.Getenv("REDIS_ADDR")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, redisAddr, workers); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func openCatalog(path string) (io.ReadCloser, error) {
	if path == "" {
		return io.NopCloser(bytes.NewReader(db.SampleCatalog)), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog")
	}
	return f, nil
}

func run(ctx context.Context, databaseURL, catalogFile, redisAddr string, workers int) error {
	r, err := openCatalog(catalogFile)
	if err != nil {
		return err
	}
	catalog, err := seed.Decode(r)
	_ = r.Close()
	if err != nil {
		return err
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := postgres.NewProductRepository(pool)
	stats, err := seed.Apply(ctx, catalog, products, postgres.NewCouponRepository(pool), workers)
	if err != nil {
		return errors.Wrap(err, "apply catalog")
	}
	slog.Info("catalog applied",
		slog.Int("products", stats.Products),
		slog.Int("coupons", stats.Coupons),
	)

	if redisAddr == "" {
		return nil
	}
	client := rediscache.NewClient(redisAddr)
	defer func() { _ = client.Close() }()

	ids := make([]string, 0, len(catalog.Products))
	for _, p := range catalog.Products {
		ids = append(ids, p.ID)
	}
	if err := rediscache.NewCatalog(products, client, 0).Invalidate(ctx, ids...); err != nil {
		slog.Warn("product cache not invalidated", slog.String("error", err.Error()))
	}
	return nil
}
