// Command basket runs the crypto index fund engine: NAV snapshots,
// volatility-regime rebalancing, payment settlement, SIP billing and
// redemptions, exposed over HTTP.
//
// Usage:
//
//	basket --config config/config.yaml
//
// Required environment variables:
//
//	For the binance platform: BINANCE_API_KEY, BINANCE_API_SECRET
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vadiminshakov/basket/config"
	"github.com/vadiminshakov/basket/internal"
	"github.com/vadiminshakov/basket/internal/clients"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	apiKey := os.Getenv("BINANCE_API_KEY")
	apiSecret := os.Getenv("BINANCE_API_SECRET")
	if cfg.Platform == "binance" && (apiKey == "" || apiSecret == "") {
		log.Fatal("BINANCE_API_KEY and BINANCE_API_SECRET environment variables must be set")
	}
	client := clients.NewBinanceClient(apiKey, apiSecret)

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	app, err := internal.NewApp(cfg, client, logger)
	if err != nil {
		logger.Fatal("failed to assemble fund engine", zap.Error(err))
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		logger.Fatal("fund engine stopped", zap.Error(err))
	}
}
