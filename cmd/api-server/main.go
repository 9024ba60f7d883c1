// Command api-server serves the bazaar catalog, cart and order API.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	bazaar "github.com/xenking/bazaar/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := bazaar.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		lg.Info("Starting bazaar API",
			zap.String("storage", cfg.Storage.Driver),
			zap.Bool("redis", cfg.Redis.Addr != ""),
			zap.String("currency", cfg.Orders.Currency),
			zap.Strings("shipping_rates", cfg.Orders.ShippingRates),
		)
		return bazaar.Run(ctx, lg, m, cfg)
	})
}
