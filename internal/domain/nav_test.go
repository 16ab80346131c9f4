package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestComputeNAV(t *testing.T) {
	t.Run("zero units yields zero NAV", func(t *testing.T) {
		nav := ComputeNAV(decimal.RequireFromString("1000"), decimal.Zero)
		require.True(t, nav.IsZero())
	})

	t.Run("exact division", func(t *testing.T) {
		nav := ComputeNAV(decimal.RequireFromString("1000"), decimal.RequireFromString("100"))
		require.True(t, nav.Equal(decimal.RequireFromString("10")))
	})
}
