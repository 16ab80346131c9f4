// Package nav computes and records net asset value snapshots.
package nav

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/basket/internal/domain"
)

type custody interface {
	Balance(ctx context.Context, vault, asset string) (decimal.Decimal, error)
}

type pricer interface {
	GetPrice(ctx context.Context, asset string) (decimal.Decimal, error)
}

type balances interface {
	TotalUnits(ctx context.Context, fundID string) (decimal.Decimal, error)
}

type history interface {
	Append(snapshot domain.NAVSnapshot) error
}

// Engine prices fund holdings and appends dated NAV snapshots.
type Engine struct {
	custody  custody
	pricer   pricer
	balances balances
	history  history
	l        *zap.Logger
}

// NewEngine creates the NAV engine.
func NewEngine(l *zap.Logger, custody custody, pricer pricer, balances balances, history history) *Engine {
	return &Engine{custody: custody, pricer: pricer, balances: balances, history: history, l: l}
}

// ComputeAndLog values the fund's custody holdings, divides by
// outstanding units and appends one snapshot. A price failure for one
// asset degrades that asset's contribution to zero instead of blocking
// the whole snapshot on a single oracle outage; custody failures abort.
func (e *Engine) ComputeAndLog(ctx context.Context, fund *domain.Fund) (domain.NAVSnapshot, error) {
	totalValue := decimal.Zero

	for _, asset := range fund.Symbols() {
		amount, err := e.custody.Balance(ctx, fund.Vault, asset)
		if err != nil {
			return domain.NAVSnapshot{}, errors.Wrapf(err, "failed to read %s holdings of fund %s", asset, fund.ID)
		}
		if amount.IsZero() {
			continue
		}

		price, err := e.pricer.GetPrice(ctx, asset)
		if err != nil {
			e.l.Warn("price unavailable, valuing asset at zero",
				zap.String("fund", fund.ID),
				zap.String("asset", asset),
				zap.Error(err))
			continue
		}

		totalValue = totalValue.Add(amount.Mul(price))
	}

	totalUnits, err := e.balances.TotalUnits(ctx, fund.ID)
	if err != nil {
		return domain.NAVSnapshot{}, errors.Wrapf(err, "failed to read total units of fund %s", fund.ID)
	}

	snapshot := domain.NAVSnapshot{
		FundID:     fund.ID,
		Date:       time.Now().UTC(),
		TotalValue: totalValue,
		TotalUnits: totalUnits,
		NAV:        domain.ComputeNAV(totalValue, totalUnits),
	}

	if err := e.history.Append(snapshot); err != nil {
		return domain.NAVSnapshot{}, errors.Wrapf(err, "failed to append NAV snapshot for fund %s", fund.ID)
	}

	e.l.Info("NAV snapshot recorded",
		zap.String("fund", fund.ID),
		zap.String("total_value", snapshot.TotalValue.String()),
		zap.String("total_units", snapshot.TotalUnits.String()),
		zap.String("nav", snapshot.NAV.String()))

	return snapshot, nil
}
