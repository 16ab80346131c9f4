package volatility

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSimulateIndex(t *testing.T) {
	idx := NewSimulateIndex(decimal.RequireFromString("10"))

	reading, err := idx.GetIndex(context.Background())
	require.NoError(t, err)
	require.True(t, reading.Equal(decimal.RequireFromString("10")))

	idx.SetIndex(decimal.RequireFromString("31.5"))
	reading, err = idx.GetIndex(context.Background())
	require.NoError(t, err)
	require.True(t, reading.Equal(decimal.RequireFromString("31.5")))
}
