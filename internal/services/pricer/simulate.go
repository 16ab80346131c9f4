package pricer

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// SimulatePricer serves prices from an in-memory table. Used in paper
// mode and tests.
type SimulatePricer struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewSimulatePricer creates a pricer seeded with the given prices.
func NewSimulatePricer(prices map[string]decimal.Decimal) *SimulatePricer {
	table := make(map[string]decimal.Decimal, len(prices))
	for asset, price := range prices {
		table[asset] = price
	}
	return &SimulatePricer{prices: table}
}

// SetPrice updates the price of an asset.
func (p *SimulatePricer) SetPrice(asset string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[asset] = price
}

// GetPrice returns the configured price of the asset.
func (p *SimulatePricer) GetPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	price, ok := p.prices[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price configured for %s", asset)
	}
	return price, nil
}
