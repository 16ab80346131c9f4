package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Pricer defines an interface for getting the current asset price.
type Pricer interface {
	GetPrice(ctx context.Context, asset string) (decimal.Decimal, error)
}

// SimulateExchange fills market orders instantly at oracle prices
// against an in-memory wallet. Used in paper mode and tests.
type SimulateExchange struct {
	mu     sync.RWMutex
	logger *zap.Logger
	pricer Pricer
	wallet map[string]decimal.Decimal
	orders map[string]decimal.Decimal
	quote  string
}

// NewSimulateExchange creates a paper exchange with the given fiat
// balance in the quote currency.
func NewSimulateExchange(pricer Pricer, quote string, fiat decimal.Decimal, logger *zap.Logger) (*SimulateExchange, error) {
	if pricer == nil {
		return nil, errors.New("pricer is required for SimulateExchange")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	wallet := map[string]decimal.Decimal{quote: fiat}
	logger.Info("simulate exchange init",
		zap.String("quote", quote),
		zap.String("fiat", fiat.String()))
	return &SimulateExchange{
		logger: logger,
		pricer: pricer,
		wallet: wallet,
		orders: make(map[string]decimal.Decimal),
		quote:  quote,
	}, nil
}

// Deposit credits an asset into the exchange wallet.
func (e *SimulateExchange) Deposit(asset string, amount decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wallet[asset] = e.wallet[asset].Add(amount)
}

// MarketBuy converts quoteAmount of fiat into the asset at the current
// oracle price.
func (e *SimulateExchange) MarketBuy(ctx context.Context, asset string, quoteAmount decimal.Decimal) (string, error) {
	if quoteAmount.LessThanOrEqual(decimal.Zero) {
		return "", fmt.Errorf("buy amount must be positive, got %s", quoteAmount.String())
	}

	price, err := e.pricer.GetPrice(ctx, asset)
	if err != nil {
		return "", errors.Wrap(err, "failed to get price for simulated buy")
	}
	if !price.IsPositive() {
		return "", fmt.Errorf("non-positive price %s for %s", price.String(), asset)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.wallet[e.quote].LessThan(quoteAmount) {
		return "", fmt.Errorf("insufficient %s balance: have %s need %s",
			e.quote, e.wallet[e.quote].String(), quoteAmount.String())
	}

	quantity := quoteAmount.Div(price)
	e.wallet[e.quote] = e.wallet[e.quote].Sub(quoteAmount)
	e.wallet[asset] = e.wallet[asset].Add(quantity)

	orderID := uuid.NewString()
	e.orders[orderID] = quantity
	e.logger.Info("Simulated buy executed",
		zap.String("id", orderID),
		zap.String("asset", asset),
		zap.String("quantity", quantity.String()),
		zap.String("price", price.String()))
	return orderID, nil
}

// MarketSell converts the asset quantity into fiat at the current
// oracle price.
func (e *SimulateExchange) MarketSell(ctx context.Context, asset string, quantity decimal.Decimal) (string, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return "", fmt.Errorf("sell amount must be positive, got %s", quantity.String())
	}

	price, err := e.pricer.GetPrice(ctx, asset)
	if err != nil {
		return "", errors.Wrap(err, "failed to get price for simulated sell")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.wallet[asset].LessThan(quantity) {
		return "", fmt.Errorf("insufficient %s balance: have %s need %s",
			asset, e.wallet[asset].String(), quantity.String())
	}

	e.wallet[asset] = e.wallet[asset].Sub(quantity)
	e.wallet[e.quote] = e.wallet[e.quote].Add(quantity.Mul(price))

	orderID := uuid.NewString()
	e.orders[orderID] = quantity
	e.logger.Info("Simulated sell executed",
		zap.String("id", orderID),
		zap.String("asset", asset),
		zap.String("quantity", quantity.String()),
		zap.String("price", price.String()))
	return orderID, nil
}

// OrderExecuted reports the fill state of a simulated order. Fills are
// instant, so any known order is executed.
func (e *SimulateExchange) OrderExecuted(ctx context.Context, asset, orderID string) (bool, decimal.Decimal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	quantity, ok := e.orders[orderID]
	if !ok {
		e.logger.Warn("missing order, assuming executed for simulation purposes", zap.String("id", orderID))
		return true, decimal.Zero, nil
	}
	return true, quantity, nil
}

// FiatBalance returns the quote-currency balance of the wallet.
func (e *SimulateExchange) FiatBalance(ctx context.Context) (decimal.Decimal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wallet[e.quote], nil
}

// AssetBalance returns the asset balance of the wallet.
func (e *SimulateExchange) AssetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wallet[asset], nil
}
