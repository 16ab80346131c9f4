package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the cadence of a systematic investment plan.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Valid reports whether the frequency is a known cadence.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Next returns the run time following from. Monthly advancement is
// calendar-correct via AddDate.
func (f Frequency) Next(from time.Time) time.Time {
	switch f {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return from.AddDate(0, 1, 0)
	}
	return from
}

// ScheduleStatus is the lifecycle state of a SIP schedule.
type ScheduleStatus string

const (
	ScheduleActive    ScheduleStatus = "active"
	SchedulePaused    ScheduleStatus = "paused"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// SIPSchedule is a recurring investment plan. At most one non-cancelled
// schedule may exist per email.
type SIPSchedule struct {
	ID               string          `json:"id"`
	Email            string          `json:"email"`
	FundID           string          `json:"fund_id"`
	AmountUSD        decimal.Decimal `json:"amount_usd"`
	Frequency        Frequency       `json:"frequency"`
	Status           ScheduleStatus  `json:"status"`
	NextRun          time.Time       `json:"next_run"`
	PaymentMethodRef string          `json:"payment_method_ref"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Validate checks the schedule fields required before persisting.
func (s *SIPSchedule) Validate() error {
	if s.Email == "" {
		return fmt.Errorf("schedule email is required")
	}
	if s.FundID == "" {
		return fmt.Errorf("schedule fund id is required")
	}
	if !s.AmountUSD.IsPositive() {
		return fmt.Errorf("schedule amount must be positive, got %s", s.AmountUSD.String())
	}
	if !s.Frequency.Valid() {
		return fmt.Errorf("unknown schedule frequency %q", s.Frequency)
	}
	if s.PaymentMethodRef == "" {
		return fmt.Errorf("schedule payment method reference is required")
	}
	return nil
}

// Due reports whether the schedule should be charged at now.
func (s *SIPSchedule) Due(now time.Time) bool {
	return s.Status == ScheduleActive && !s.NextRun.After(now)
}
