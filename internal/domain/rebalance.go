package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeAction is the direction of a rebalancing trade.
type TradeAction int

const (
	TradeBuy TradeAction = iota
	TradeSell
)

// String returns the string representation of the action.
func (a TradeAction) String() string {
	if a == TradeSell {
		return "SELL"
	}
	return "BUY"
}

// RebalanceAction is one audit row of a rebalancing cycle: the traded
// asset quantity and the drift that triggered it. Append-only.
type RebalanceAction struct {
	FundID string          `json:"fund_id"`
	Asset  string          `json:"asset"`
	Action TradeAction     `json:"action"`
	Amount decimal.Decimal `json:"amount"`
	Delta  decimal.Decimal `json:"delta"`
	Time   time.Time       `json:"timestamp"`
}

// VolatilityReading is one observed market-volatility value. Append-only.
type VolatilityReading struct {
	Value decimal.Decimal `json:"value"`
	Time  time.Time       `json:"timestamp"`
}

// WeightSnapshot records the realized portfolio weights after a
// rebalancing cycle completed.
type WeightSnapshot struct {
	FundID  string        `json:"fund_id"`
	Weights []AssetWeight `json:"weights"`
	Time    time.Time     `json:"timestamp"`
}
