// Package volatility supplies the scalar market-volatility index that
// selects between the normal and volatile weight regimes.
package volatility

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2"
	"github.com/cinar/indicator/v2/helper"
	indicatorvol "github.com/cinar/indicator/v2/volatility"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	klineInterval = "1d"
	// klineOverfetch extra candles beyond the ATR window so the warmup
	// period does not starve the indicator.
	klineOverfetch = 2
	percentFactor  = 100
)

// BinanceIndex derives a volatility reading from daily candles of a
// benchmark symbol: the average true range over the window relative to
// the latest close, expressed in percent. A reading of 25 means daily
// ranges average a quarter of the price.
type BinanceIndex struct {
	client *binance.Client
	symbol string
	window int
}

// NewBinanceIndex creates the index provider for a benchmark asset
// (asset symbol plus quote currency, e.g. BTC + USDT).
func NewBinanceIndex(client *binance.Client, asset, quote string, window int) *BinanceIndex {
	return &BinanceIndex{client: client, symbol: asset + quote, window: window}
}

// GetIndex returns the current volatility reading.
func (b *BinanceIndex) GetIndex(ctx context.Context) (decimal.Decimal, error) {
	limit := b.window*2 + klineOverfetch

	klines, err := b.client.NewKlinesService().
		Symbol(b.symbol).
		Interval(klineInterval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to fetch klines for %s", b.symbol)
	}
	if len(klines) < b.window+1 {
		return decimal.Zero, fmt.Errorf("not enough klines for %s: need %d, got %d", b.symbol, b.window+1, len(klines))
	}

	highs := make([]float64, len(klines))
	lows := make([]float64, len(klines))
	closes := make([]float64, len(klines))
	for i, k := range klines {
		high, err := decimal.NewFromString(k.High)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "failed to parse high price at index %d", i)
		}
		low, err := decimal.NewFromString(k.Low)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "failed to parse low price at index %d", i)
		}
		closePrice, err := decimal.NewFromString(k.Close)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "failed to parse close price at index %d", i)
		}
		highs[i], _ = high.Float64()
		lows[i], _ = low.Float64()
		closes[i], _ = closePrice.Float64()
	}

	atr := indicatorvol.NewAtrWithPeriod[float64](b.window)
	atrValues := helper.ChanToSlice(atr.Compute(
		helper.SliceToChan(highs),
		helper.SliceToChan(lows),
		helper.SliceToChan(closes),
	))
	if len(atrValues) == 0 {
		return decimal.Zero, fmt.Errorf("ATR computation produced no values for %s", b.symbol)
	}

	lastClose := closes[len(closes)-1]
	if lastClose <= 0 {
		return decimal.Zero, fmt.Errorf("non-positive close price for %s", b.symbol)
	}

	reading := atrValues[len(atrValues)-1] / lastClose * percentFactor
	return decimal.NewFromFloat(reading), nil
}
