package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is one asset leg of a settled investment. A single payment
// produces one entry per fund asset; entries sharing a PaymentID belong to
// the same logical transaction. Entries are append-only.
type LedgerEntry struct {
	Email      string          `json:"email"`
	FundID     string          `json:"fund_id"`
	AmountUSD  decimal.Decimal `json:"amount_usd"`
	Asset      string          `json:"asset"`
	AssetShare decimal.Decimal `json:"asset_share"`
	AssetValue decimal.Decimal `json:"asset_value"`
	Units      decimal.Decimal `json:"units"`
	TxRef      string          `json:"tx_reference"`
	PaymentID  string          `json:"payment_id"`
	Time       time.Time       `json:"timestamp"`
}

// RedemptionEntry records a completed unit redemption. Append-only.
type RedemptionEntry struct {
	Email    string          `json:"email"`
	FundID   string          `json:"fund_id"`
	Units    decimal.Decimal `json:"units"`
	ValueUSD decimal.Decimal `json:"value_usd"`
	Time     time.Time       `json:"timestamp"`
}
