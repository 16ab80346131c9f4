// Package redemption converts unit redemptions into proportional asset
// transfers out of the fund vault.
package redemption

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/basket/internal/domain"
)

type fundRegistry interface {
	FundByID(id string) (*domain.Fund, error)
}

type volatilitysvc interface {
	GetIndex(ctx context.Context) (decimal.Decimal, error)
}

type pricer interface {
	GetPrice(ctx context.Context, asset string) (decimal.Decimal, error)
}

type custody interface {
	Transfer(ctx context.Context, from, to, asset string, amount decimal.Decimal) (string, error)
}

type balances interface {
	Balance(ctx context.Context, email, fundID string) (decimal.Decimal, error)
	Debit(ctx context.Context, email, fundID string, units decimal.Decimal) error
}

type navhistory interface {
	Latest(fundID string) (domain.NAVSnapshot, bool, error)
}

type journal interface {
	Append(entry domain.RedemptionEntry) error
}

// withdrawal is one planned asset leg of a redemption.
type withdrawal struct {
	asset    string
	quantity decimal.Decimal
}

// Engine executes unit redemptions.
type Engine struct {
	funds        fundRegistry
	volatility   volatilitysvc
	pricer       pricer
	custody      custody
	balances     balances
	navs         navhistory
	journal      journal
	vixThreshold decimal.Decimal
	l            *zap.Logger
}

// NewEngine creates the redemption engine.
func NewEngine(l *zap.Logger, funds fundRegistry, volatility volatilitysvc, pricer pricer, custody custody,
	balances balances, navs navhistory, journal journal, vixThreshold decimal.Decimal) *Engine {
	return &Engine{
		funds:        funds,
		volatility:   volatility,
		pricer:       pricer,
		custody:      custody,
		balances:     balances,
		navs:         navs,
		journal:      journal,
		vixThreshold: vixThreshold,
		l:            l,
	}
}

// Redeem values units at the latest NAV, moves the proportional asset
// quantities from the fund vault to the redemption vault, then debits
// the account and records the redemption. The balance is mutated only
// after every transfer succeeded.
func (e *Engine) Redeem(ctx context.Context, email, fundID string, units decimal.Decimal) error {
	if !units.IsPositive() {
		return fmt.Errorf("redemption units must be positive, got %s", units.String())
	}

	fund, err := e.funds.FundByID(fundID)
	if err != nil {
		return err
	}

	held, err := e.balances.Balance(ctx, email, fundID)
	if err != nil {
		return errors.Wrapf(err, "failed to read balance of %s", email)
	}
	if units.GreaterThan(held) {
		return domain.ErrInsufficientUnits
	}

	snapshot, ok, err := e.navs.Latest(fundID)
	if err != nil {
		return errors.Wrapf(err, "failed to read latest NAV for fund %s", fundID)
	}
	if !ok || !snapshot.NAV.IsPositive() {
		return fmt.Errorf("fund %s has no NAV to value the redemption", fundID)
	}
	valueUSD := units.Mul(snapshot.NAV)

	volatility, err := e.volatility.GetIndex(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read volatility index")
	}
	weights := domain.SelectWeights(fund, volatility, e.vixThreshold)

	// Price every leg before touching custody so a dead oracle aborts
	// with nothing moved.
	plan := make([]withdrawal, 0, len(weights))
	for _, w := range weights {
		if w.Weight.IsZero() {
			continue
		}

		price, err := e.pricer.GetPrice(ctx, w.Symbol)
		if err != nil {
			return errors.Wrapf(err, "failed to price %s, aborting redemption", w.Symbol)
		}
		if !price.IsPositive() {
			return fmt.Errorf("non-positive price for %s, aborting redemption", w.Symbol)
		}

		plan = append(plan, withdrawal{asset: w.Symbol, quantity: valueUSD.Mul(w.Weight).Div(price)})
	}

	for _, leg := range plan {
		if _, err := e.custody.Transfer(ctx, fund.Vault, fund.RedemptionVault, leg.asset, leg.quantity); err != nil {
			return errors.Wrapf(err, "failed to move %s to redemption vault", leg.asset)
		}
	}

	if err := e.balances.Debit(ctx, email, fundID, units); err != nil {
		return errors.Wrapf(err, "failed to debit %s units from %s", units.String(), email)
	}

	entry := domain.RedemptionEntry{
		Email:    email,
		FundID:   fundID,
		Units:    units,
		ValueUSD: valueUSD,
		Time:     time.Now().UTC(),
	}
	if err := e.journal.Append(entry); err != nil {
		return errors.Wrap(err, "failed to record redemption")
	}

	e.l.Info("redemption complete",
		zap.String("email", email),
		zap.String("fund", fundID),
		zap.String("units", units.String()),
		zap.String("value", valueUSD.String()))
	return nil
}
