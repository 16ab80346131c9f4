package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvestmentStatus is the lifecycle state of a charge-to-settlement flow.
type InvestmentStatus string

const (
	// InvestmentAwaiting a charge was accepted by the gateway but its
	// asynchronous success event has not arrived yet.
	InvestmentAwaiting InvestmentStatus = "awaiting"
	// InvestmentPending settlement was attempted but failed on liquidity;
	// the record is requeued until liquidity returns.
	InvestmentPending InvestmentStatus = "pending"
	// InvestmentComplete units were credited and ledger rows written.
	InvestmentComplete InvestmentStatus = "complete"
)

// InvestmentRecord tracks one payment from charge request to settlement.
// Records are keyed by ChargeID; the latest record per ChargeID wins.
type InvestmentRecord struct {
	ChargeID  string           `json:"charge_id"`
	Email     string           `json:"email"`
	FundID    string           `json:"fund_id"`
	AmountUSD decimal.Decimal  `json:"amount_usd"`
	NAV       decimal.Decimal  `json:"nav"`
	Units     decimal.Decimal  `json:"units"`
	Status    InvestmentStatus `json:"status"`
	IsSIP     bool             `json:"is_sip"`
	Time      time.Time        `json:"timestamp"`
}
