// Package domain defines core data structures used throughout the fund engine.
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ExchangeAccount is the custody account name of the trading venue.
// Assets move between a fund vault and this account during rebalancing
// and settlement.
const ExchangeAccount = "exchange"

// weightSumTolerance is the allowed deviation of a weight table sum from 1.
var weightSumTolerance = decimal.New(1, -6)

// AssetAllocation is one asset of a fund with its target weights per regime.
type AssetAllocation struct {
	// Symbol asset identifier, e.g. "BTC".
	Symbol string
	// NormalWeight target weight in the normal regime.
	NormalWeight decimal.Decimal
	// VolatileWeight target weight in the volatile regime.
	VolatileWeight decimal.Decimal
}

// Fund is an immutable fund definition loaded from configuration.
type Fund struct {
	// ID stable fund symbol, e.g. "BLUE10".
	ID   string
	Name string
	// Assets ordered allocation table.
	Assets []AssetAllocation
	// Vault custody vault holding the fund's assets.
	Vault string
	// RedemptionVault custody vault receiving redeemed assets.
	RedemptionVault string
}

// Validate checks structural invariants: non-empty allocation table and
// both weight tables summing to 1 within tolerance.
func (f *Fund) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("fund id is required")
	}
	if len(f.Assets) == 0 {
		return fmt.Errorf("fund %s has no assets", f.ID)
	}
	if f.Vault == "" {
		return fmt.Errorf("fund %s has no vault reference", f.ID)
	}

	normalSum := decimal.Zero
	volatileSum := decimal.Zero
	seen := make(map[string]struct{}, len(f.Assets))
	for _, a := range f.Assets {
		if a.Symbol == "" {
			return fmt.Errorf("fund %s has an asset without a symbol", f.ID)
		}
		if _, ok := seen[a.Symbol]; ok {
			return fmt.Errorf("fund %s lists asset %s twice", f.ID, a.Symbol)
		}
		seen[a.Symbol] = struct{}{}
		if a.NormalWeight.IsNegative() || a.VolatileWeight.IsNegative() {
			return fmt.Errorf("fund %s has a negative weight for %s", f.ID, a.Symbol)
		}
		normalSum = normalSum.Add(a.NormalWeight)
		volatileSum = volatileSum.Add(a.VolatileWeight)
	}

	one := decimal.NewFromInt(1)
	if normalSum.Sub(one).Abs().GreaterThan(weightSumTolerance) {
		return fmt.Errorf("fund %s normal weights sum to %s, want 1", f.ID, normalSum.String())
	}
	if volatileSum.Sub(one).Abs().GreaterThan(weightSumTolerance) {
		return fmt.Errorf("fund %s volatile weights sum to %s, want 1", f.ID, volatileSum.String())
	}

	return nil
}

// Symbols returns the ordered asset symbols of the fund.
func (f *Fund) Symbols() []string {
	symbols := make([]string, len(f.Assets))
	for i, a := range f.Assets {
		symbols[i] = a.Symbol
	}
	return symbols
}

// Regime is the target-weight table selected by the volatility threshold.
type Regime int

const (
	RegimeNormal Regime = iota
	RegimeVolatile
)

// String returns the string representation of the regime.
func (r Regime) String() string {
	if r == RegimeVolatile {
		return "volatile"
	}
	return "normal"
}

// AssetWeight is one asset with its selected target weight.
type AssetWeight struct {
	Symbol string
	Weight decimal.Decimal
}

// SelectRegime classifies a volatility reading against the threshold.
func SelectRegime(volatility, threshold decimal.Decimal) Regime {
	if volatility.GreaterThan(threshold) {
		return RegimeVolatile
	}
	return RegimeNormal
}

// SelectWeights returns the fund's target weights for the given volatility
// reading. Both the rebalancing and the settlement engines go through this
// single selector so that what settlement buys always matches what
// rebalancing targets.
func SelectWeights(f *Fund, volatility, threshold decimal.Decimal) []AssetWeight {
	regime := SelectRegime(volatility, threshold)
	weights := make([]AssetWeight, len(f.Assets))
	for i, a := range f.Assets {
		w := a.NormalWeight
		if regime == RegimeVolatile {
			w = a.VolatileWeight
		}
		weights[i] = AssetWeight{Symbol: a.Symbol, Weight: w}
	}
	return weights
}
