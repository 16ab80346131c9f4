package domain

import (
	"github.com/shopspring/decimal"
)

// Payment event types delivered by the gateway.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// Metadata keys attached to charges and echoed back in events.
const (
	MetaType       = "type"
	MetaEmail      = "email"
	MetaFundID     = "fund_id"
	MetaScheduleID = "schedule_id"
	MetaPaymentID  = "payment_id"
)

// Metadata values for MetaType.
const (
	InvestmentTypeSIP      = "sip"
	InvestmentTypeCheckout = "checkout"
)

// PaymentEvent is an asynchronous gateway notification. ID is the unique
// external event identifier used for de-duplication.
type PaymentEvent struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	AmountUSD decimal.Decimal   `json:"amount_usd"`
	Metadata  map[string]string `json:"metadata"`
}

// PaymentID returns the external payment identifier keying settlement
// idempotency: the payment_id metadata when present, the event id
// otherwise.
func (e *PaymentEvent) PaymentID() string {
	if id := e.Metadata[MetaPaymentID]; id != "" {
		return id
	}
	return e.ID
}
