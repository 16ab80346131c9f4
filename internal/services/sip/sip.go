// Package sip runs recurring investment plans: it charges due schedules
// through the payment gateway and advances their cadence. Settlement
// happens later, when the gateway's success event reaches the webhook
// handler.
package sip

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/basket/internal/domain"
)

type fundRegistry interface {
	FundByID(id string) (*domain.Fund, error)
}

type schedules interface {
	Create(ctx context.Context, schedule domain.SIPSchedule) error
	Update(ctx context.Context, schedule domain.SIPSchedule) error
	Get(ctx context.Context, id string) (domain.SIPSchedule, bool, error)
	Due(ctx context.Context, now time.Time) ([]domain.SIPSchedule, error)
}

type gateway interface {
	CreateCharge(ctx context.Context, email, fundID string, amountUSD decimal.Decimal, metadata map[string]string) (string, error)
}

type investments interface {
	Record(record domain.InvestmentRecord) error
}

// Scheduler owns the SIP schedule lifecycle and the periodic charge sweep.
type Scheduler struct {
	funds       fundRegistry
	schedules   schedules
	gateway     gateway
	investments investments
	l           *zap.Logger
}

// NewScheduler creates the SIP scheduler.
func NewScheduler(l *zap.Logger, funds fundRegistry, schedules schedules, gateway gateway, investments investments) *Scheduler {
	return &Scheduler{funds: funds, schedules: schedules, gateway: gateway, investments: investments, l: l}
}

// Create registers a new active schedule. The first charge happens on
// the next sweep. An account may hold one non-cancelled schedule.
func (s *Scheduler) Create(ctx context.Context, email, fundID string, amountUSD decimal.Decimal,
	frequency domain.Frequency, paymentMethodRef string) (domain.SIPSchedule, error) {
	if _, err := s.funds.FundByID(fundID); err != nil {
		return domain.SIPSchedule{}, err
	}

	now := time.Now().UTC()
	schedule := domain.SIPSchedule{
		ID:               uuid.NewString(),
		Email:            email,
		FundID:           fundID,
		AmountUSD:        amountUSD,
		Frequency:        frequency,
		Status:           domain.ScheduleActive,
		NextRun:          now,
		PaymentMethodRef: paymentMethodRef,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.schedules.Create(ctx, schedule); err != nil {
		return domain.SIPSchedule{}, err
	}

	s.l.Info("SIP schedule created",
		zap.String("id", schedule.ID),
		zap.String("email", email),
		zap.String("fund", fundID),
		zap.String("amount", amountUSD.String()),
		zap.String("frequency", string(frequency)))
	return schedule, nil
}

// Pause suspends an active schedule.
func (s *Scheduler) Pause(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.ScheduleActive, domain.SchedulePaused)
}

// Resume reactivates a paused schedule.
func (s *Scheduler) Resume(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.SchedulePaused, domain.ScheduleActive)
}

// Cancel terminally ends a schedule and frees the account slot.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	schedule, ok, err := s.schedules.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("schedule %s not found", id)
	}
	if schedule.Status == domain.ScheduleCancelled {
		return nil
	}

	schedule.Status = domain.ScheduleCancelled
	schedule.UpdatedAt = time.Now().UTC()
	return s.schedules.Update(ctx, schedule)
}

func (s *Scheduler) transition(ctx context.Context, id string, from, to domain.ScheduleStatus) error {
	schedule, ok, err := s.schedules.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("schedule %s not found", id)
	}
	if schedule.Status != from {
		return fmt.Errorf("schedule %s is %s, expected %s", id, schedule.Status, from)
	}

	schedule.Status = to
	schedule.UpdatedAt = time.Now().UTC()
	return s.schedules.Update(ctx, schedule)
}

// RunDue charges every active schedule whose next run has arrived, then
// advances its cadence and parks an awaiting-settlement record keyed by
// the charge id. One schedule's failure does not stop the sweep.
func (s *Scheduler) RunDue(ctx context.Context) error {
	now := time.Now().UTC()

	due, err := s.schedules.Due(ctx, now)
	if err != nil {
		return errors.Wrap(err, "failed to list due schedules")
	}

	for _, schedule := range due {
		if err := s.charge(ctx, schedule, now); err != nil {
			s.l.Error("failed to charge schedule",
				zap.String("id", schedule.ID),
				zap.String("email", schedule.Email),
				zap.Error(err))
		}
	}

	return nil
}

func (s *Scheduler) charge(ctx context.Context, schedule domain.SIPSchedule, now time.Time) error {
	metadata := map[string]string{
		domain.MetaType:       domain.InvestmentTypeSIP,
		domain.MetaEmail:      schedule.Email,
		domain.MetaFundID:     schedule.FundID,
		domain.MetaScheduleID: schedule.ID,
	}

	chargeID, err := s.gateway.CreateCharge(ctx, schedule.Email, schedule.FundID, schedule.AmountUSD, metadata)
	if err != nil {
		return errors.Wrap(err, "gateway rejected charge")
	}

	record := domain.InvestmentRecord{
		ChargeID:  chargeID,
		Email:     schedule.Email,
		FundID:    schedule.FundID,
		AmountUSD: schedule.AmountUSD,
		Status:    domain.InvestmentAwaiting,
		IsSIP:     true,
		Time:      now,
	}
	if err := s.investments.Record(record); err != nil {
		return errors.Wrapf(err, "failed to record awaiting investment for charge %s", chargeID)
	}

	schedule.NextRun = schedule.Frequency.Next(now)
	schedule.UpdatedAt = now
	if err := s.schedules.Update(ctx, schedule); err != nil {
		return errors.Wrap(err, "failed to advance schedule")
	}

	s.l.Info("SIP charge issued",
		zap.String("id", schedule.ID),
		zap.String("charge", chargeID),
		zap.String("email", schedule.Email),
		zap.String("amount", schedule.AmountUSD.String()),
		zap.Time("next_run", schedule.NextRun))
	return nil
}
