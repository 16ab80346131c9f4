// Package exchange executes market orders and reports fiat liquidity.
package exchange

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const orderQtyPrecision = 4

// BinanceExchange places spot market orders against binance, mapping
// asset symbols to quote-currency pairs (BTC -> BTCUSDT).
type BinanceExchange struct {
	client *binance.Client
	quote  string
}

// NewBinanceExchange creates a binance order executor quoting against quote.
func NewBinanceExchange(client *binance.Client, quote string) *BinanceExchange {
	return &BinanceExchange{client: client, quote: quote}
}

// MarketBuy spends quoteAmount of the quote currency on the asset and
// returns the client order id used to track the fill.
func (e *BinanceExchange) MarketBuy(ctx context.Context, asset string, quoteAmount decimal.Decimal) (string, error) {
	orderID := uuid.NewString()

	_, err := e.client.NewCreateOrderService().Symbol(asset + e.quote).
		Side(binance.SideTypeBuy).Type(binance.OrderTypeMarket).
		QuoteOrderQty(quoteAmount.RoundFloor(orderQtyPrecision).String()).
		NewClientOrderID(orderID).
		Do(ctx)
	if err != nil {
		return "", errors.Wrapf(err, "failed to place market buy for %s", asset)
	}
	return orderID, nil
}

// MarketSell sells the asset quantity and returns the client order id
// used to track the fill.
func (e *BinanceExchange) MarketSell(ctx context.Context, asset string, quantity decimal.Decimal) (string, error) {
	orderID := uuid.NewString()

	_, err := e.client.NewCreateOrderService().Symbol(asset + e.quote).
		Side(binance.SideTypeSell).Type(binance.OrderTypeMarket).
		Quantity(quantity.RoundFloor(orderQtyPrecision).String()).
		NewClientOrderID(orderID).
		Do(ctx)
	if err != nil {
		return "", errors.Wrapf(err, "failed to place market sell for %s", asset)
	}
	return orderID, nil
}

// OrderExecuted reports whether the order has fully filled and the
// executed base quantity.
func (e *BinanceExchange) OrderExecuted(ctx context.Context, asset, orderID string) (bool, decimal.Decimal, error) {
	order, err := e.client.NewGetOrderService().
		Symbol(asset + e.quote).
		OrigClientOrderID(orderID).
		Do(ctx)
	if err != nil {
		if apiErr, ok := err.(*common.APIError); ok && apiErr.Code == -2013 {
			// order does not exist
			return false, decimal.Zero, nil
		}
		return false, decimal.Zero, errors.Wrap(err, "failed to query binance order status")
	}

	executedQty, parseErr := decimal.NewFromString(order.ExecutedQuantity)
	if parseErr != nil {
		return false, decimal.Zero, errors.Wrap(parseErr, "failed to parse executed quantity")
	}

	switch order.Status {
	case binance.OrderStatusTypeFilled:
		return true, executedQty, nil
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeRejected, binance.OrderStatusTypeExpired:
		return false, decimal.Zero, fmt.Errorf("order %s terminated with status %s", orderID, order.Status)
	default:
		return false, executedQty, nil
	}
}

// FiatBalance returns the free quote-currency balance of the spot account.
func (e *BinanceExchange) FiatBalance(ctx context.Context) (decimal.Decimal, error) {
	account, err := e.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get binance account balance")
	}

	for _, balance := range account.Balances {
		if balance.Asset == e.quote {
			free, err := decimal.NewFromString(balance.Free)
			if err != nil {
				return decimal.Zero, errors.Wrap(err, "failed to parse balance")
			}
			return free, nil
		}
	}
	return decimal.Zero, nil
}
