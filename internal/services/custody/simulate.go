// Package custody moves fund assets between named vaults.
package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SimulateVault is an in-memory custody backend. It keeps per-vault
// asset balances and hands out a transfer reference per movement, the
// way a real custodian API would.
type SimulateVault struct {
	mu     sync.RWMutex
	logger *zap.Logger
	vaults map[string]map[string]decimal.Decimal
}

// NewSimulateVault creates an empty custody backend.
func NewSimulateVault(logger *zap.Logger) *SimulateVault {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulateVault{
		logger: logger,
		vaults: make(map[string]map[string]decimal.Decimal),
	}
}

// Deposit credits an asset into a vault. Used to seed paper-mode
// holdings and tests.
func (v *SimulateVault) Deposit(vault, asset string, amount decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credit(vault, asset, amount)
}

// Balance returns the amount of the asset held in the vault.
func (v *SimulateVault) Balance(ctx context.Context, vault, asset string) (decimal.Decimal, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	holdings, ok := v.vaults[vault]
	if !ok {
		return decimal.Zero, nil
	}
	return holdings[asset], nil
}

// Transfer moves an asset amount between vaults and returns the
// transfer reference.
func (v *SimulateVault) Transfer(ctx context.Context, from, to, asset string, amount decimal.Decimal) (string, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", fmt.Errorf("transfer amount must be positive, got %s", amount.String())
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	have := decimal.Zero
	if holdings, ok := v.vaults[from]; ok {
		have = holdings[asset]
	}
	if have.LessThan(amount) {
		return "", fmt.Errorf("insufficient %s in vault %s: have %s need %s",
			asset, from, have.String(), amount.String())
	}

	v.vaults[from][asset] = have.Sub(amount)
	v.credit(to, asset, amount)

	ref := uuid.NewString()
	v.logger.Info("Simulated custody transfer executed",
		zap.String("ref", ref),
		zap.String("from", from),
		zap.String("to", to),
		zap.String("asset", asset),
		zap.String("amount", amount.String()))
	return ref, nil
}

func (v *SimulateVault) credit(vault, asset string, amount decimal.Decimal) {
	holdings, ok := v.vaults[vault]
	if !ok {
		holdings = make(map[string]decimal.Decimal)
		v.vaults[vault] = holdings
	}
	holdings[asset] = holdings[asset].Add(amount)
}
