package volatility

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// SimulateIndex serves a fixed volatility reading. Used in paper mode
// and tests.
type SimulateIndex struct {
	mu    sync.RWMutex
	value decimal.Decimal
}

// NewSimulateIndex creates the index with an initial reading.
func NewSimulateIndex(value decimal.Decimal) *SimulateIndex {
	return &SimulateIndex{value: value}
}

// SetIndex updates the reading.
func (s *SimulateIndex) SetIndex(value decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
}

// GetIndex returns the configured reading.
func (s *SimulateIndex) GetIndex(ctx context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, nil
}
