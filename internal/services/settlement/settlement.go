// Package settlement converts confirmed investor payments into weighted
// asset purchases, ledger rows and credited units.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/basket/internal/domain"
	"github.com/vadiminshakov/basket/pkg/retrier"
)

type fundRegistry interface {
	FundByID(id string) (*domain.Fund, error)
}

type volatilitysvc interface {
	GetIndex(ctx context.Context) (decimal.Decimal, error)
}

type exchange interface {
	MarketBuy(ctx context.Context, asset string, quoteAmount decimal.Decimal) (string, error)
	OrderExecuted(ctx context.Context, asset, orderID string) (bool, decimal.Decimal, error)
	FiatBalance(ctx context.Context) (decimal.Decimal, error)
}

type custody interface {
	Transfer(ctx context.Context, from, to, asset string, amount decimal.Decimal) (string, error)
}

type ledger interface {
	Append(entry domain.LedgerEntry) error
}

type balances interface {
	Credit(ctx context.Context, email, fundID string, units decimal.Decimal) error
}

type navhistory interface {
	Latest(fundID string) (domain.NAVSnapshot, bool, error)
}

type dedupe interface {
	Reserve(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type investments interface {
	Record(record domain.InvestmentRecord) error
	WithStatus(status domain.InvestmentStatus) ([]domain.InvestmentRecord, error)
}

// Request identifies one payment to settle. PaymentID is the external
// payment/transaction identifier keying idempotency.
type Request struct {
	PaymentID string
	Email     string
	FundID    string
	AmountUSD decimal.Decimal
}

// Result reports what a settlement credited. Duplicate is set when the
// payment id was already settled and nothing was done.
type Result struct {
	NAV       decimal.Decimal
	Units     decimal.Decimal
	Duplicate bool
}

// bootstrapNAV prices units of an empty fund at one dollar.
var bootstrapNAV = decimal.NewFromInt(1)

// Engine settles payments into ledger entries and unit balances.
type Engine struct {
	funds        fundRegistry
	volatility   volatilitysvc
	exchange     exchange
	custody      custody
	ledger       ledger
	balances     balances
	navs         navhistory
	dedupe       dedupe
	investments  investments
	retrier      *retrier.Retrier
	vixThreshold decimal.Decimal
	l            *zap.Logger
}

// NewEngine creates the settlement engine.
func NewEngine(l *zap.Logger, funds fundRegistry, volatility volatilitysvc, exchange exchange, custody custody,
	ledger ledger, balances balances, navs navhistory, dedupe dedupe, investments investments,
	r *retrier.Retrier, vixThreshold decimal.Decimal) *Engine {
	return &Engine{
		funds:        funds,
		volatility:   volatility,
		exchange:     exchange,
		custody:      custody,
		ledger:       ledger,
		balances:     balances,
		navs:         navs,
		dedupe:       dedupe,
		investments:  investments,
		retrier:      r,
		vixThreshold: vixThreshold,
		l:            l,
	}
}

// Settle converts the payment into per-asset purchases at the current
// regime weights, moves fills into custody and credits units at the
// latest NAV. Settling the same payment id twice credits exactly once.
// domain.ErrInsufficientLiquidity is returned without any mutation when
// the venue holds less fiat than the payment.
func (e *Engine) Settle(ctx context.Context, req Request) (Result, error) {
	if req.PaymentID == "" {
		return Result{}, fmt.Errorf("payment id is required")
	}
	if !req.AmountUSD.IsPositive() {
		return Result{}, fmt.Errorf("settlement amount must be positive, got %s", req.AmountUSD.String())
	}

	fund, err := e.funds.FundByID(req.FundID)
	if err != nil {
		return Result{}, err
	}

	first, err := e.dedupe.Reserve(ctx, req.PaymentID)
	if err != nil {
		return Result{}, errors.Wrapf(err, "failed to reserve payment %s", req.PaymentID)
	}
	if !first {
		e.l.Info("payment already settled, skipping",
			zap.String("payment", req.PaymentID),
			zap.String("email", req.Email))
		return Result{Duplicate: true}, nil
	}

	result, err := e.settle(ctx, fund, req)
	if err != nil {
		if releaseErr := e.dedupe.Release(ctx, req.PaymentID); releaseErr != nil {
			e.l.Error("failed to release payment reservation",
				zap.String("payment", req.PaymentID),
				zap.Error(releaseErr))
		}
		return Result{}, err
	}

	return result, nil
}

func (e *Engine) settle(ctx context.Context, fund *domain.Fund, req Request) (Result, error) {
	volatility, err := e.volatility.GetIndex(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "failed to read volatility index")
	}
	weights := domain.SelectWeights(fund, volatility, e.vixThreshold)

	fiat, err := e.exchange.FiatBalance(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "failed to read venue fiat balance")
	}
	if fiat.LessThan(req.AmountUSD) {
		e.l.Warn("venue fiat balance below settlement amount",
			zap.String("payment", req.PaymentID),
			zap.String("have", fiat.String()),
			zap.String("need", req.AmountUSD.String()))
		return Result{}, domain.ErrInsufficientLiquidity
	}

	nav, err := e.currentNAV(fund.ID)
	if err != nil {
		return Result{}, err
	}
	units := req.AmountUSD.Div(nav)

	// Every leg must fill and land in custody before anything is
	// written, so a failed leg leaves no partial ledger state.
	now := time.Now().UTC()
	entries := make([]domain.LedgerEntry, 0, len(weights))
	for _, w := range weights {
		if w.Weight.IsZero() {
			continue
		}

		assetValue := req.AmountUSD.Mul(w.Weight)
		orderID, err := e.exchange.MarketBuy(ctx, w.Symbol, assetValue)
		if err != nil {
			return Result{}, errors.Wrapf(err, "failed to place buy order for %s", w.Symbol)
		}

		filled, err := e.waitFill(ctx, w.Symbol, orderID)
		if err != nil {
			return Result{}, err
		}

		txRef, err := e.custody.Transfer(ctx, domain.ExchangeAccount, fund.Vault, w.Symbol, filled)
		if err != nil {
			return Result{}, errors.Wrapf(err, "failed to move bought %s to vault", w.Symbol)
		}

		entries = append(entries, domain.LedgerEntry{
			Email:      req.Email,
			FundID:     fund.ID,
			AmountUSD:  req.AmountUSD,
			Asset:      w.Symbol,
			AssetShare: w.Weight,
			AssetValue: assetValue,
			Units:      filled,
			TxRef:      txRef,
			PaymentID:  req.PaymentID,
			Time:       now,
		})
	}

	for _, entry := range entries {
		if err := e.ledger.Append(entry); err != nil {
			return Result{}, errors.Wrapf(err, "failed to append ledger entry for %s", entry.Asset)
		}
	}

	if err := e.balances.Credit(ctx, req.Email, fund.ID, units); err != nil {
		return Result{}, errors.Wrapf(err, "failed to credit %s units to %s", units.String(), req.Email)
	}

	e.l.Info("settlement complete",
		zap.String("payment", req.PaymentID),
		zap.String("email", req.Email),
		zap.String("fund", fund.ID),
		zap.String("amount", req.AmountUSD.String()),
		zap.String("nav", nav.String()),
		zap.String("units", units.String()))

	return Result{NAV: nav, Units: units}, nil
}

// currentNAV returns the latest snapshot NAV. An empty fund with no
// snapshot, or one valued at zero, prices units at one dollar.
func (e *Engine) currentNAV(fundID string) (decimal.Decimal, error) {
	snapshot, ok, err := e.navs.Latest(fundID)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to read latest NAV for fund %s", fundID)
	}
	if !ok || !snapshot.NAV.IsPositive() {
		return bootstrapNAV, nil
	}
	return snapshot.NAV, nil
}

func (e *Engine) waitFill(ctx context.Context, asset, orderID string) (decimal.Decimal, error) {
	filled, err := retrier.DoWithData(e.retrier, ctx, func(ctx context.Context) (decimal.Decimal, error) {
		executed, quantity, err := e.exchange.OrderExecuted(ctx, asset, orderID)
		if err != nil {
			return decimal.Zero, err
		}
		if !executed {
			return decimal.Zero, fmt.Errorf("order %s not filled yet", orderID)
		}
		return quantity, nil
	})
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "order %s for %s did not fill", orderID, asset)
	}
	return filled, nil
}

// RetryPending replays investments parked on a liquidity shortfall.
// Records that settle are marked complete; records still short on
// liquidity stay pending; one record's failure does not stop the rest.
func (e *Engine) RetryPending(ctx context.Context) error {
	pending, err := e.investments.WithStatus(domain.InvestmentPending)
	if err != nil {
		return errors.Wrap(err, "failed to list pending investments")
	}

	for _, record := range pending {
		result, err := e.Settle(ctx, Request{
			PaymentID: record.ChargeID,
			Email:     record.Email,
			FundID:    record.FundID,
			AmountUSD: record.AmountUSD,
		})
		if errors.Is(err, domain.ErrInsufficientLiquidity) {
			continue
		}
		if err != nil {
			e.l.Error("failed to retry pending investment",
				zap.String("charge", record.ChargeID),
				zap.Error(err))
			continue
		}

		record.Status = domain.InvestmentComplete
		if !result.Duplicate {
			record.NAV = result.NAV
			record.Units = result.Units
		}
		record.Time = time.Now().UTC()
		if err := e.investments.Record(record); err != nil {
			e.l.Error("failed to mark investment complete",
				zap.String("charge", record.ChargeID),
				zap.Error(err))
		}
	}

	return nil
}
