// Package rebalance keeps fund holdings aligned with their
// volatility-selected target weights.
package rebalance

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/basket/internal/domain"
	"github.com/vadiminshakov/basket/pkg/retrier"
)

type volatilitysvc interface {
	GetIndex(ctx context.Context) (decimal.Decimal, error)
}

type pricer interface {
	GetPrice(ctx context.Context, asset string) (decimal.Decimal, error)
}

type custody interface {
	Balance(ctx context.Context, vault, asset string) (decimal.Decimal, error)
	Transfer(ctx context.Context, from, to, asset string, amount decimal.Decimal) (string, error)
}

type exchange interface {
	MarketBuy(ctx context.Context, asset string, quoteAmount decimal.Decimal) (string, error)
	MarketSell(ctx context.Context, asset string, quantity decimal.Decimal) (string, error)
	OrderExecuted(ctx context.Context, asset, orderID string) (bool, decimal.Decimal, error)
}

type audit interface {
	LogVolatility(reading domain.VolatilityReading) error
	LogAction(action domain.RebalanceAction) error
	LogWeights(snapshot domain.WeightSnapshot) error
}

// trade is one planned leg of a rebalancing cycle.
type trade struct {
	asset    string
	action   domain.TradeAction
	quantity decimal.Decimal
	notional decimal.Decimal
	delta    decimal.Decimal
}

// Engine executes drift-triggered rebalancing cycles.
type Engine struct {
	volatility         volatilitysvc
	pricer             pricer
	custody            custody
	exchange           exchange
	audit              audit
	retrier            *retrier.Retrier
	vixThreshold       decimal.Decimal
	rebalanceThreshold decimal.Decimal
	l                  *zap.Logger
}

// NewEngine creates the rebalancing engine.
func NewEngine(l *zap.Logger, volatility volatilitysvc, pricer pricer, custody custody, exchange exchange,
	audit audit, r *retrier.Retrier, vixThreshold, rebalanceThreshold decimal.Decimal) *Engine {
	return &Engine{
		volatility:         volatility,
		pricer:             pricer,
		custody:            custody,
		exchange:           exchange,
		audit:              audit,
		retrier:            r,
		vixThreshold:       vixThreshold,
		rebalanceThreshold: rebalanceThreshold,
		l:                  l,
	}
}

// Rebalance runs one cycle for the fund: read volatility, select the
// regime weights, measure drift and, when drift crosses the threshold
// or force is set, trade back to target. Every SELL completes before
// any BUY starts so the exchange never needs uncollateralized credit.
func (e *Engine) Rebalance(ctx context.Context, fund *domain.Fund, force bool) error {
	volatility, err := e.volatility.GetIndex(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read volatility index")
	}
	if err := e.audit.LogVolatility(domain.VolatilityReading{Value: volatility, Time: time.Now().UTC()}); err != nil {
		return errors.Wrap(err, "failed to log volatility reading")
	}

	weights := domain.SelectWeights(fund, volatility, e.vixThreshold)

	holdings, totalValue, err := e.readHoldings(ctx, fund)
	if err != nil {
		return err
	}
	if totalValue.IsZero() {
		e.l.Info("fund holds no value, skipping rebalance", zap.String("fund", fund.ID))
		return nil
	}

	plan := make([]trade, 0, len(weights))
	maxDrift := decimal.Zero
	for i, w := range weights {
		currentWeight := holdings[i].Value.Div(totalValue)
		delta := w.Weight.Sub(currentWeight)
		if delta.Abs().GreaterThan(maxDrift) {
			maxDrift = delta.Abs()
		}
		if delta.IsZero() {
			continue
		}

		notional := delta.Abs().Mul(totalValue)
		action := domain.TradeSell
		if delta.IsPositive() {
			action = domain.TradeBuy
		}
		plan = append(plan, trade{
			asset:    w.Symbol,
			action:   action,
			quantity: notional.Div(holdings[i].Price),
			notional: notional,
			delta:    delta,
		})
	}

	if !force && maxDrift.LessThan(e.rebalanceThreshold) {
		e.l.Info("drift below threshold, skipping rebalance",
			zap.String("fund", fund.ID),
			zap.String("max_drift", maxDrift.String()),
			zap.String("threshold", e.rebalanceThreshold.String()))
		return nil
	}

	e.l.Info("executing rebalance",
		zap.String("fund", fund.ID),
		zap.String("volatility", volatility.String()),
		zap.String("regime", domain.SelectRegime(volatility, e.vixThreshold).String()),
		zap.String("max_drift", maxDrift.String()),
		zap.Bool("force", force),
		zap.Int("trades", len(plan)))

	for _, t := range plan {
		if t.action != domain.TradeSell {
			continue
		}
		if err := e.executeSell(ctx, fund, t); err != nil {
			return err
		}
	}
	for _, t := range plan {
		if t.action != domain.TradeBuy {
			continue
		}
		if err := e.executeBuy(ctx, fund, t); err != nil {
			return err
		}
	}

	e.snapshotRealizedWeights(ctx, fund)

	return nil
}

// readHoldings values every fund asset. A missing or non-positive price
// aborts the cycle: trading against a fallback price would misstate
// every downstream delta.
func (e *Engine) readHoldings(ctx context.Context, fund *domain.Fund) ([]domain.Holding, decimal.Decimal, error) {
	holdings := make([]domain.Holding, 0, len(fund.Assets))
	totalValue := decimal.Zero

	for _, asset := range fund.Symbols() {
		amount, err := e.custody.Balance(ctx, fund.Vault, asset)
		if err != nil {
			return nil, decimal.Zero, errors.Wrapf(err, "failed to read %s holdings of fund %s", asset, fund.ID)
		}

		price, err := e.pricer.GetPrice(ctx, asset)
		if err != nil {
			return nil, decimal.Zero, errors.Wrapf(err, "failed to price %s, aborting rebalance of fund %s", asset, fund.ID)
		}
		if !price.IsPositive() {
			return nil, decimal.Zero, fmt.Errorf("non-positive price for %s, aborting rebalance of fund %s", asset, fund.ID)
		}

		value := amount.Mul(price)
		holdings = append(holdings, domain.Holding{Asset: asset, Amount: amount, Price: price, Value: value})
		totalValue = totalValue.Add(value)
	}

	return holdings, totalValue, nil
}

func (e *Engine) executeSell(ctx context.Context, fund *domain.Fund, t trade) error {
	if err := e.logAction(fund, t); err != nil {
		return err
	}

	if _, err := e.custody.Transfer(ctx, fund.Vault, domain.ExchangeAccount, t.asset, t.quantity); err != nil {
		return errors.Wrapf(err, "failed to move %s to exchange for sell", t.asset)
	}

	orderID, err := e.exchange.MarketSell(ctx, t.asset, t.quantity)
	if err != nil {
		return errors.Wrapf(err, "failed to place sell order for %s", t.asset)
	}
	if _, err := e.waitFill(ctx, t.asset, orderID); err != nil {
		return err
	}

	e.l.Info("rebalance sell executed",
		zap.String("fund", fund.ID),
		zap.String("asset", t.asset),
		zap.String("quantity", t.quantity.String()),
		zap.String("delta", t.delta.String()))
	return nil
}

func (e *Engine) executeBuy(ctx context.Context, fund *domain.Fund, t trade) error {
	if err := e.logAction(fund, t); err != nil {
		return err
	}

	orderID, err := e.exchange.MarketBuy(ctx, t.asset, t.notional)
	if err != nil {
		return errors.Wrapf(err, "failed to place buy order for %s", t.asset)
	}

	filled, err := e.waitFill(ctx, t.asset, orderID)
	if err != nil {
		return err
	}
	if !filled.IsPositive() {
		filled = t.quantity
	}

	if _, err := e.custody.Transfer(ctx, domain.ExchangeAccount, fund.Vault, t.asset, filled); err != nil {
		return errors.Wrapf(err, "failed to move bought %s to vault", t.asset)
	}

	e.l.Info("rebalance buy executed",
		zap.String("fund", fund.ID),
		zap.String("asset", t.asset),
		zap.String("quantity", filled.String()),
		zap.String("delta", t.delta.String()))
	return nil
}

func (e *Engine) logAction(fund *domain.Fund, t trade) error {
	action := domain.RebalanceAction{
		FundID: fund.ID,
		Asset:  t.asset,
		Action: t.action,
		Amount: t.quantity,
		Delta:  t.delta,
		Time:   time.Now().UTC(),
	}
	if err := e.audit.LogAction(action); err != nil {
		return errors.Wrapf(err, "failed to log %s action for %s", t.action.String(), t.asset)
	}
	return nil
}

func (e *Engine) waitFill(ctx context.Context, asset, orderID string) (decimal.Decimal, error) {
	filled, err := retrier.DoWithData(e.retrier, ctx, func(ctx context.Context) (decimal.Decimal, error) {
		executed, quantity, err := e.exchange.OrderExecuted(ctx, asset, orderID)
		if err != nil {
			return decimal.Zero, err
		}
		if !executed {
			return decimal.Zero, fmt.Errorf("order %s not filled yet", orderID)
		}
		return quantity, nil
	})
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "order %s for %s did not fill", orderID, asset)
	}
	return filled, nil
}

// snapshotRealizedWeights records the post-trade portfolio weights.
// Failures here degrade to a warning: the trades are already done.
func (e *Engine) snapshotRealizedWeights(ctx context.Context, fund *domain.Fund) {
	holdings, totalValue, err := e.readHoldings(ctx, fund)
	if err != nil {
		e.l.Warn("failed to read holdings for realized weight snapshot", zap.String("fund", fund.ID), zap.Error(err))
		return
	}
	if totalValue.IsZero() {
		return
	}

	realized := make([]domain.AssetWeight, len(holdings))
	for i, h := range holdings {
		realized[i] = domain.AssetWeight{Symbol: h.Asset, Weight: h.Value.Div(totalValue)}
	}

	snapshot := domain.WeightSnapshot{FundID: fund.ID, Weights: realized, Time: time.Now().UTC()}
	if err := e.audit.LogWeights(snapshot); err != nil {
		e.l.Warn("failed to log realized weights", zap.String("fund", fund.ID), zap.Error(err))
	}
}
