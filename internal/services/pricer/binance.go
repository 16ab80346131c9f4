// Package pricer supplies current spot USD prices per fund asset.
package pricer

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// BinancePricer reads spot prices from binance, mapping asset symbols to
// quote-currency pairs (BTC -> BTCUSDT).
type BinancePricer struct {
	client *binance.Client
	quote  string
}

// NewBinancePricer creates a binance price oracle quoting against quote.
func NewBinancePricer(client *binance.Client, quote string) *BinancePricer {
	return &BinancePricer{client: client, quote: quote}
}

// GetPrice returns the current spot price of the asset in USD.
func (p *BinancePricer) GetPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	symbol := asset + p.quote

	prices, err := p.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to fetch price for %s", symbol)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("binance API returned empty prices for %s", symbol)
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to parse price for %s", symbol)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive price %s for %s", price.String(), symbol)
	}

	return price, nil
}
