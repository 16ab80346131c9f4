package exchange

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakePricer struct {
	prices map[string]decimal.Decimal
}

func (p *fakePricer) GetPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	price, ok := p.prices[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s", asset)
	}
	return price, nil
}

func newPaperExchange(t *testing.T, fiat string) *SimulateExchange {
	t.Helper()
	pricer := &fakePricer{prices: map[string]decimal.Decimal{
		"BTC": decimal.RequireFromString("100"),
	}}
	exch, err := NewSimulateExchange(pricer, "USDT", decimal.RequireFromString(fiat), nil)
	require.NoError(t, err)
	return exch
}

func TestMarketBuyFillsAtOraclePrice(t *testing.T) {
	exch := newPaperExchange(t, "1000")

	orderID, err := exch.MarketBuy(context.Background(), "BTC", decimal.RequireFromString("500"))
	require.NoError(t, err)

	executed, quantity, err := exch.OrderExecuted(context.Background(), "BTC", orderID)
	require.NoError(t, err)
	require.True(t, executed)
	require.True(t, quantity.Equal(decimal.RequireFromString("5")))

	fiat, err := exch.FiatBalance(context.Background())
	require.NoError(t, err)
	require.True(t, fiat.Equal(decimal.RequireFromString("500")))

	held, err := exch.AssetBalance(context.Background(), "BTC")
	require.NoError(t, err)
	require.True(t, held.Equal(decimal.RequireFromString("5")))
}

func TestMarketBuyInsufficientFiat(t *testing.T) {
	exch := newPaperExchange(t, "100")

	_, err := exch.MarketBuy(context.Background(), "BTC", decimal.RequireFromString("500"))
	require.Error(t, err)
}

func TestMarketSellCreditsFiat(t *testing.T) {
	exch := newPaperExchange(t, "0")
	exch.Deposit("BTC", decimal.RequireFromString("2"))

	orderID, err := exch.MarketSell(context.Background(), "BTC", decimal.RequireFromString("2"))
	require.NoError(t, err)

	executed, quantity, err := exch.OrderExecuted(context.Background(), "BTC", orderID)
	require.NoError(t, err)
	require.True(t, executed)
	require.True(t, quantity.Equal(decimal.RequireFromString("2")))

	fiat, err := exch.FiatBalance(context.Background())
	require.NoError(t, err)
	require.True(t, fiat.Equal(decimal.RequireFromString("200")))
}

func TestMarketSellInsufficientAsset(t *testing.T) {
	exch := newPaperExchange(t, "0")

	_, err := exch.MarketSell(context.Background(), "BTC", decimal.RequireFromString("1"))
	require.Error(t, err)
}
