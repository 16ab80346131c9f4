package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testFund() *Fund {
	return &Fund{
		ID:              "BLUE2",
		Name:            "Blue Chip Duo",
		Vault:           "blue2-vault",
		RedemptionVault: "blue2-redemptions",
		Assets: []AssetAllocation{
			{Symbol: "BTC", NormalWeight: decimal.RequireFromString("0.6"), VolatileWeight: decimal.RequireFromString("0.7")},
			{Symbol: "ETH", NormalWeight: decimal.RequireFromString("0.4"), VolatileWeight: decimal.RequireFromString("0.3")},
		},
	}
}

func TestFundValidate(t *testing.T) {
	require.NoError(t, testFund().Validate())

	t.Run("weights must sum to one", func(t *testing.T) {
		fund := testFund()
		fund.Assets[0].NormalWeight = decimal.RequireFromString("0.7")
		require.Error(t, fund.Validate())
	})

	t.Run("tolerates epsilon deviation", func(t *testing.T) {
		fund := testFund()
		fund.Assets[0].NormalWeight = decimal.RequireFromString("0.6000005")
		require.NoError(t, fund.Validate())
	})

	t.Run("rejects duplicate assets", func(t *testing.T) {
		fund := testFund()
		fund.Assets[1].Symbol = "BTC"
		require.Error(t, fund.Validate())
	})

	t.Run("rejects negative weights", func(t *testing.T) {
		fund := testFund()
		fund.Assets[0].NormalWeight = decimal.RequireFromString("1.4")
		fund.Assets[1].NormalWeight = decimal.RequireFromString("-0.4")
		require.Error(t, fund.Validate())
	})

	t.Run("requires vault", func(t *testing.T) {
		fund := testFund()
		fund.Vault = ""
		require.Error(t, fund.Validate())
	})
}

func TestSelectRegime(t *testing.T) {
	threshold := decimal.RequireFromString("25")

	require.Equal(t, RegimeNormal, SelectRegime(decimal.RequireFromString("24.9"), threshold))
	require.Equal(t, RegimeNormal, SelectRegime(decimal.RequireFromString("25"), threshold))
	require.Equal(t, RegimeVolatile, SelectRegime(decimal.RequireFromString("25.1"), threshold))
}

func TestSelectWeights(t *testing.T) {
	fund := testFund()
	threshold := decimal.RequireFromString("25")

	normal := SelectWeights(fund, decimal.RequireFromString("10"), threshold)
	require.Len(t, normal, 2)
	require.Equal(t, "BTC", normal[0].Symbol)
	require.True(t, normal[0].Weight.Equal(decimal.RequireFromString("0.6")))
	require.True(t, normal[1].Weight.Equal(decimal.RequireFromString("0.4")))

	volatile := SelectWeights(fund, decimal.RequireFromString("40"), threshold)
	require.True(t, volatile[0].Weight.Equal(decimal.RequireFromString("0.7")))
	require.True(t, volatile[1].Weight.Equal(decimal.RequireFromString("0.3")))
}
