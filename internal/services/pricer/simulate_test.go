package pricer

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSimulatePricer(t *testing.T) {
	p := NewSimulatePricer(map[string]decimal.Decimal{
		"BTC": decimal.RequireFromString("100"),
	})

	price, err := p.GetPrice(context.Background(), "BTC")
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.RequireFromString("100")))

	_, err = p.GetPrice(context.Background(), "ETH")
	require.Error(t, err)

	p.SetPrice("BTC", decimal.RequireFromString("120"))
	price, err = p.GetPrice(context.Background(), "BTC")
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.RequireFromString("120")))
}
