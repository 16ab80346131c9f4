package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NAVSnapshot is one dated net-asset-value record for a fund.
// Snapshots are append-only and never mutated after insert.
type NAVSnapshot struct {
	FundID     string          `json:"fund_id"`
	Date       time.Time       `json:"date"`
	TotalValue decimal.Decimal `json:"total_value"`
	TotalUnits decimal.Decimal `json:"total_units"`
	NAV        decimal.Decimal `json:"nav"`
}

// ComputeNAV returns total value per unit, or zero when no units are
// outstanding.
func ComputeNAV(totalValue, totalUnits decimal.Decimal) decimal.Decimal {
	if totalUnits.IsZero() {
		return decimal.Zero
	}
	return totalValue.Div(totalUnits)
}

// Holding is a custody position of one asset priced in USD.
type Holding struct {
	Asset  string
	Amount decimal.Decimal
	Price  decimal.Decimal
	Value  decimal.Decimal
}
