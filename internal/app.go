// Package internal assembles the fund engine: storage, collaborators,
// engines, scheduled sweeps and the HTTP surface.
package internal

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/basket/config"
	"github.com/vadiminshakov/basket/internal/clients"
	"github.com/vadiminshakov/basket/internal/domain"
	"github.com/vadiminshakov/basket/internal/services/custody"
	"github.com/vadiminshakov/basket/internal/services/exchange"
	"github.com/vadiminshakov/basket/internal/services/gateway"
	"github.com/vadiminshakov/basket/internal/services/nav"
	"github.com/vadiminshakov/basket/internal/services/pricer"
	"github.com/vadiminshakov/basket/internal/services/rebalance"
	"github.com/vadiminshakov/basket/internal/services/redemption"
	"github.com/vadiminshakov/basket/internal/services/settlement"
	"github.com/vadiminshakov/basket/internal/services/sip"
	"github.com/vadiminshakov/basket/internal/services/volatility"
	"github.com/vadiminshakov/basket/internal/services/webhook"
	"github.com/vadiminshakov/basket/internal/storage/accounts"
	"github.com/vadiminshakov/basket/internal/storage/audit"
	"github.com/vadiminshakov/basket/internal/storage/dedupe"
	"github.com/vadiminshakov/basket/internal/storage/investments"
	"github.com/vadiminshakov/basket/internal/storage/ledger"
	"github.com/vadiminshakov/basket/internal/storage/navhistory"
	"github.com/vadiminshakov/basket/internal/storage/redemptions"
	"github.com/vadiminshakov/basket/internal/storage/schedules"
	"github.com/vadiminshakov/basket/internal/web"
	"github.com/vadiminshakov/basket/pkg/retrier"
)

// Paper-mode seeds: fiat held by the simulated venue, per-asset float
// on the venue's custody account so fills can be moved into fund vaults
// without a real omnibus account behind them, and the initial oracle
// price and volatility reading every fund asset starts from.
var (
	simulateSeedFiat       = decimal.NewFromInt(1_000_000)
	simulateSeedAssets     = decimal.NewFromInt(10_000)
	simulateSeedPrice      = decimal.NewFromInt(100)
	simulateSeedVolatility = decimal.NewFromInt(10)
)

// App is the assembled fund engine.
type App struct {
	cfg            *config.Config
	logger         *zap.Logger
	paymentGateway *gateway.SimulateGateway

	redisClient *redis.Client
	ledgerStore *ledger.WALStore
	navStore    *navhistory.WALStore
	auditStore  *audit.WALStore
	redeemStore *redemptions.WALStore
	investStore *investments.WALStore

	navEngine       *nav.Engine
	rebalanceEngine *rebalance.Engine
	settler         *settlement.Engine
	redeemer        *redemption.Engine
	sipScheduler    *sip.Scheduler
	webhooks        *webhook.Handler
	server          *web.Server
}

// NewApp wires every component from the configuration. On "binance"
// the oracle, the volatility index and order execution all talk to the
// venue; "simulate" runs fully offline against seeded in-memory
// collaborators.
func NewApp(cfg *config.Config, client *binance.Client, logger *zap.Logger) (*App, error) {
	redisClient, err := clients.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	ledgerStore, err := ledger.NewWALStore(filepath.Join(cfg.WALDir, "ledger"))
	if err != nil {
		return nil, errors.Wrap(err, "init ledger store")
	}
	navStore, err := navhistory.NewWALStore(filepath.Join(cfg.WALDir, "nav"))
	if err != nil {
		return nil, errors.Wrap(err, "init NAV history store")
	}
	auditStore, err := audit.NewWALStore(filepath.Join(cfg.WALDir, "audit"))
	if err != nil {
		return nil, errors.Wrap(err, "init audit store")
	}
	redeemStore, err := redemptions.NewWALStore(filepath.Join(cfg.WALDir, "redemptions"))
	if err != nil {
		return nil, errors.Wrap(err, "init redemption store")
	}
	investStore, err := investments.NewWALStore(filepath.Join(cfg.WALDir, "investments"))
	if err != nil {
		return nil, errors.Wrap(err, "init investment store")
	}

	balanceStore := accounts.NewRedisStore(redisClient, cfg.Redis.KeyPrefix)
	scheduleStore := schedules.NewRedisStore(redisClient, cfg.Redis.KeyPrefix)
	eventDedupe := dedupe.NewRedisStore(redisClient, cfg.Redis.KeyPrefix+"seen:event:")
	paymentDedupe := dedupe.NewRedisStore(redisClient, cfg.Redis.KeyPrefix+"seen:payment:")

	vault := custody.NewSimulateVault(logger)
	paymentGateway := gateway.NewSimulateGateway(logger)

	var (
		priceOracle interface {
			GetPrice(ctx context.Context, asset string) (decimal.Decimal, error)
		}
		volatilityIndex interface {
			GetIndex(ctx context.Context) (decimal.Decimal, error)
		}
		venue interface {
			MarketBuy(ctx context.Context, asset string, quoteAmount decimal.Decimal) (string, error)
			MarketSell(ctx context.Context, asset string, quantity decimal.Decimal) (string, error)
			OrderExecuted(ctx context.Context, asset, orderID string) (bool, decimal.Decimal, error)
			FiatBalance(ctx context.Context) (decimal.Decimal, error)
		}
	)
	switch cfg.Platform {
	case "binance":
		priceOracle = pricer.NewBinancePricer(client, cfg.QuoteCurrency)
		volatilityIndex = volatility.NewBinanceIndex(client, cfg.Volatility.Symbol, cfg.QuoteCurrency, cfg.Volatility.Window)
		venue = exchange.NewBinanceExchange(client, cfg.QuoteCurrency)
	case "simulate":
		prices := make(map[string]decimal.Decimal)
		for i := range cfg.Funds {
			for _, asset := range cfg.Funds[i].Symbols() {
				prices[asset] = simulateSeedPrice
				vault.Deposit(domain.ExchangeAccount, asset, simulateSeedAssets)
			}
		}
		simPricer := pricer.NewSimulatePricer(prices)
		priceOracle = simPricer
		volatilityIndex = volatility.NewSimulateIndex(simulateSeedVolatility)
		venue, err = exchange.NewSimulateExchange(simPricer, cfg.QuoteCurrency, simulateSeedFiat, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported platform %q", cfg.Platform)
	}

	fillRetrier := retrier.New(cfg.FillAttempts, cfg.FillInterval)

	navEngine := nav.NewEngine(logger, vault, priceOracle, balanceStore, navStore)
	rebalanceEngine := rebalance.NewEngine(logger, volatilityIndex, priceOracle, vault, venue,
		auditStore, fillRetrier, cfg.VIXThreshold, cfg.RebalanceThreshold)
	settler := settlement.NewEngine(logger, cfg, volatilityIndex, venue, vault,
		ledgerStore, balanceStore, navStore, paymentDedupe, investStore, fillRetrier, cfg.VIXThreshold)
	redeemer := redemption.NewEngine(logger, cfg, volatilityIndex, priceOracle, vault,
		balanceStore, navStore, redeemStore, cfg.VIXThreshold)
	sipScheduler := sip.NewScheduler(logger, cfg, scheduleStore, paymentGateway, investStore)
	webhooks := webhook.NewHandler(logger, settler, eventDedupe, investStore)

	server := web.NewServer(cfg.Listen, webhooks, redeemer, sipScheduler, ledgerStore, navStore)

	return &App{
		cfg:             cfg,
		logger:          logger,
		paymentGateway:  paymentGateway,
		redisClient:     redisClient,
		ledgerStore:     ledgerStore,
		navStore:        navStore,
		auditStore:      auditStore,
		redeemStore:     redeemStore,
		investStore:     investStore,
		navEngine:       navEngine,
		rebalanceEngine: rebalanceEngine,
		settler:         settler,
		redeemer:        redeemer,
		sipScheduler:    sipScheduler,
		webhooks:        webhooks,
		server:          server,
	}, nil
}

// Run starts the scheduled sweeps and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	sweeps := cron.New()

	if _, err := sweeps.AddFunc(every(a.cfg.NAVInterval), func() {
		for i := range a.cfg.Funds {
			fund := &a.cfg.Funds[i]
			if _, err := a.navEngine.ComputeAndLog(ctx, fund); err != nil {
				a.logger.Error("NAV sweep failed", zap.String("fund", fund.ID), zap.Error(err))
			}
		}
	}); err != nil {
		return errors.Wrap(err, "schedule NAV sweep")
	}

	if _, err := sweeps.AddFunc(every(a.cfg.RebalanceInterval), func() {
		for i := range a.cfg.Funds {
			fund := &a.cfg.Funds[i]
			if err := a.rebalanceEngine.Rebalance(ctx, fund, false); err != nil {
				a.logger.Error("rebalance sweep failed", zap.String("fund", fund.ID), zap.Error(err))
			}
		}
	}); err != nil {
		return errors.Wrap(err, "schedule rebalance sweep")
	}

	if _, err := sweeps.AddFunc(every(a.cfg.SIPInterval), func() {
		if err := a.sipScheduler.RunDue(ctx); err != nil {
			a.logger.Error("SIP sweep failed", zap.Error(err))
		}
		a.deliverSimulatedEvents(ctx)
		if err := a.settler.RetryPending(ctx); err != nil {
			a.logger.Error("pending settlement sweep failed", zap.Error(err))
		}
	}); err != nil {
		return errors.Wrap(err, "schedule SIP sweep")
	}

	sweeps.Start()
	defer sweeps.Stop()

	a.logger.Info("fund engine started",
		zap.String("platform", a.cfg.Platform),
		zap.String("listen", a.cfg.Listen),
		zap.Int("funds", len(a.cfg.Funds)))

	return a.server.Start(ctx)
}

// deliverSimulatedEvents closes the payment loop in paper mode: every
// charge the simulated gateway accepted is confirmed and handed to the
// webhook handler, the way the real provider would deliver it.
func (a *App) deliverSimulatedEvents(ctx context.Context) {
	if a.cfg.Platform != "simulate" {
		return
	}

	for _, chargeID := range a.paymentGateway.PendingCharges() {
		event, ok := a.paymentGateway.ConfirmEvent(chargeID)
		if !ok {
			continue
		}
		if err := a.webhooks.OnPaymentEvent(ctx, event); err != nil {
			a.logger.Error("simulated event delivery failed",
				zap.String("charge", chargeID),
				zap.Error(err))
		}
	}
}

// Close releases storage resources.
func (a *App) Close() error {
	var firstErr error
	for _, closer := range []interface{ Close() error }{
		a.ledgerStore, a.navStore, a.auditStore, a.redeemStore, a.investStore, a.redisClient,
	} {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func every(interval time.Duration) string {
	return "@every " + interval.String()
}
