// Package webhook consumes asynchronous payment-gateway events and
// drives them into settlement.
package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/basket/internal/domain"
	"github.com/vadiminshakov/basket/internal/services/settlement"
)

type settler interface {
	Settle(ctx context.Context, req settlement.Request) (settlement.Result, error)
}

type dedupe interface {
	Reserve(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type investments interface {
	Record(record domain.InvestmentRecord) error
}

// Handler processes delivered payment events exactly once.
type Handler struct {
	settler     settler
	dedupe      dedupe
	investments investments
	l           *zap.Logger
}

// NewHandler creates the webhook handler.
func NewHandler(l *zap.Logger, settler settler, dedupe dedupe, investments investments) *Handler {
	return &Handler{settler: settler, dedupe: dedupe, investments: investments, l: l}
}

// OnPaymentEvent classifies and processes one gateway event. Successful
// payments of known investment types are settled; failed payments are
// logged; anything else is ignored. Redelivery of an already-processed
// event id is a no-op success.
func (h *Handler) OnPaymentEvent(ctx context.Context, event domain.PaymentEvent) error {
	switch event.Type {
	case domain.EventPaymentSucceeded:
	case domain.EventPaymentFailed:
		h.l.Warn("payment failed",
			zap.String("event", event.ID),
			zap.String("email", event.Metadata[domain.MetaEmail]),
			zap.String("amount", event.AmountUSD.String()))
		return nil
	default:
		h.l.Info("ignoring event of unknown type",
			zap.String("event", event.ID),
			zap.String("type", event.Type))
		return nil
	}

	investmentType := event.Metadata[domain.MetaType]
	if investmentType != domain.InvestmentTypeSIP && investmentType != domain.InvestmentTypeCheckout {
		h.l.Info("ignoring payment of unknown investment type",
			zap.String("event", event.ID),
			zap.String("investment_type", investmentType))
		return nil
	}

	email := event.Metadata[domain.MetaEmail]
	fundID := event.Metadata[domain.MetaFundID]
	if email == "" || fundID == "" {
		return fmt.Errorf("event %s is missing email or fund metadata", event.ID)
	}

	first, err := h.dedupe.Reserve(ctx, event.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to reserve event %s", event.ID)
	}
	if !first {
		h.l.Info("duplicate event delivery, skipping", zap.String("event", event.ID))
		return nil
	}

	record := domain.InvestmentRecord{
		ChargeID:  event.PaymentID(),
		Email:     email,
		FundID:    fundID,
		AmountUSD: event.AmountUSD,
		IsSIP:     investmentType == domain.InvestmentTypeSIP,
		Time:      time.Now().UTC(),
	}

	result, err := h.settler.Settle(ctx, settlement.Request{
		PaymentID: record.ChargeID,
		Email:     email,
		FundID:    fundID,
		AmountUSD: event.AmountUSD,
	})
	if errors.Is(err, domain.ErrInsufficientLiquidity) {
		// parked until liquidity returns; RetryPending drains these
		record.Status = domain.InvestmentPending
		if recErr := h.investments.Record(record); recErr != nil {
			return errors.Wrapf(recErr, "failed to park pending investment for event %s", event.ID)
		}
		h.l.Warn("settlement parked on liquidity shortfall",
			zap.String("event", event.ID),
			zap.String("charge", record.ChargeID))
		return nil
	}
	if err != nil {
		if releaseErr := h.dedupe.Release(ctx, event.ID); releaseErr != nil {
			h.l.Error("failed to release event reservation",
				zap.String("event", event.ID),
				zap.Error(releaseErr))
		}
		return errors.Wrapf(err, "failed to settle event %s", event.ID)
	}
	if result.Duplicate {
		return nil
	}

	record.Status = domain.InvestmentComplete
	record.NAV = result.NAV
	record.Units = result.Units
	if err := h.investments.Record(record); err != nil {
		return errors.Wrapf(err, "failed to record settled investment for event %s", event.ID)
	}

	return nil
}
