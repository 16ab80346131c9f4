package rebalance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/basket/internal/domain"
	"github.com/vadiminshakov/basket/pkg/retrier"
)

type fakeVolatility struct {
	value decimal.Decimal
}

func (v *fakeVolatility) GetIndex(ctx context.Context) (decimal.Decimal, error) {
	return v.value, nil
}

type fakePricer struct {
	prices map[string]decimal.Decimal
}

func (p *fakePricer) GetPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	price, ok := p.prices[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s", asset)
	}
	return price, nil
}

// eventLog records the order of custody and exchange operations.
type eventLog struct {
	events []string
}

func (l *eventLog) add(kind, asset string) {
	l.events = append(l.events, kind+":"+asset)
}

type fakeCustody struct {
	log       *eventLog
	balances  map[string]decimal.Decimal
	transfers map[string]decimal.Decimal
}

func (c *fakeCustody) Balance(ctx context.Context, vault, asset string) (decimal.Decimal, error) {
	return c.balances[asset], nil
}

func (c *fakeCustody) Transfer(ctx context.Context, from, to, asset string, amount decimal.Decimal) (string, error) {
	direction := "out"
	if from == domain.ExchangeAccount {
		direction = "in"
	}
	c.log.add("transfer-"+direction, asset)
	c.transfers[asset] = amount
	return "ref-" + asset, nil
}

type fakeExchange struct {
	log    *eventLog
	orders map[string]decimal.Decimal
	sold   map[string]decimal.Decimal
	bought map[string]decimal.Decimal
	seq    int
}

func newFakeExchange(log *eventLog) *fakeExchange {
	return &fakeExchange{
		log:    log,
		orders: make(map[string]decimal.Decimal),
		sold:   make(map[string]decimal.Decimal),
		bought: make(map[string]decimal.Decimal),
	}
}

func (e *fakeExchange) MarketBuy(ctx context.Context, asset string, quoteAmount decimal.Decimal) (string, error) {
	e.seq++
	id := fmt.Sprintf("buy-%s-%d", asset, e.seq)
	e.log.add("buy", asset)
	e.bought[asset] = quoteAmount
	// instant fill at $100 per unit
	e.orders[id] = quoteAmount.Div(decimal.RequireFromString("100"))
	return id, nil
}

func (e *fakeExchange) MarketSell(ctx context.Context, asset string, quantity decimal.Decimal) (string, error) {
	e.seq++
	id := fmt.Sprintf("sell-%s-%d", asset, e.seq)
	e.log.add("sell", asset)
	e.sold[asset] = quantity
	e.orders[id] = quantity
	return id, nil
}

func (e *fakeExchange) OrderExecuted(ctx context.Context, asset, orderID string) (bool, decimal.Decimal, error) {
	return true, e.orders[orderID], nil
}

type fakeAudit struct {
	readings []domain.VolatilityReading
	actions  []domain.RebalanceAction
	weights  []domain.WeightSnapshot
}

func (a *fakeAudit) LogVolatility(reading domain.VolatilityReading) error {
	a.readings = append(a.readings, reading)
	return nil
}

func (a *fakeAudit) LogAction(action domain.RebalanceAction) error {
	a.actions = append(a.actions, action)
	return nil
}

func (a *fakeAudit) LogWeights(snapshot domain.WeightSnapshot) error {
	a.weights = append(a.weights, snapshot)
	return nil
}

func testFund() *domain.Fund {
	return &domain.Fund{
		ID:    "AB",
		Vault: "ab-vault",
		Assets: []domain.AssetAllocation{
			{Symbol: "AAA", NormalWeight: decimal.RequireFromString("0.5"), VolatileWeight: decimal.RequireFromString("0.5")},
			{Symbol: "BBB", NormalWeight: decimal.RequireFromString("0.5"), VolatileWeight: decimal.RequireFromString("0.5")},
		},
	}
}

func hundredDollarPrices() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"AAA": decimal.RequireFromString("100"),
		"BBB": decimal.RequireFromString("100"),
	}
}

func newTestEngine(custody *fakeCustody, exch *fakeExchange, audit *fakeAudit, prices map[string]decimal.Decimal) *Engine {
	return NewEngine(zap.NewNop(),
		&fakeVolatility{value: decimal.RequireFromString("10")},
		&fakePricer{prices: prices},
		custody, exch, audit,
		retrier.New(3, time.Millisecond),
		decimal.RequireFromString("25"),
		decimal.RequireFromString("0.05"))
}

func TestRebalanceSellsBeforeBuys(t *testing.T) {
	log := &eventLog{}
	custody := &fakeCustody{log: log, transfers: make(map[string]decimal.Decimal), balances: map[string]decimal.Decimal{
		"AAA": decimal.RequireFromString("4"),
		"BBB": decimal.RequireFromString("6"),
	}}
	exch := newFakeExchange(log)
	audit := &fakeAudit{}

	engine := newTestEngine(custody, exch, audit, hundredDollarPrices())
	require.NoError(t, engine.Rebalance(context.Background(), testFund(), false))

	// $400/$600 split at equal target weights: sell 1 BBB, buy 1 AAA,
	// every sell-side event before any buy-side event.
	require.Equal(t, []string{
		"transfer-out:BBB",
		"sell:BBB",
		"buy:AAA",
		"transfer-in:AAA",
	}, log.events)

	require.True(t, exch.sold["BBB"].Equal(decimal.RequireFromString("1")))
	require.True(t, exch.bought["AAA"].Equal(decimal.RequireFromString("100")))
	require.True(t, custody.transfers["BBB"].Equal(decimal.RequireFromString("1")))
	require.True(t, custody.transfers["AAA"].Equal(decimal.RequireFromString("1")))

	require.Len(t, audit.actions, 2)
	require.Equal(t, domain.TradeSell, audit.actions[0].Action)
	require.Equal(t, "BBB", audit.actions[0].Asset)
	require.True(t, audit.actions[0].Delta.Equal(decimal.RequireFromString("-0.1")))
	require.Equal(t, domain.TradeBuy, audit.actions[1].Action)
	require.Equal(t, "AAA", audit.actions[1].Asset)
	require.True(t, audit.actions[1].Delta.Equal(decimal.RequireFromString("0.1")))

	require.Len(t, audit.readings, 1)
	require.Len(t, audit.weights, 1)
}

func TestRebalanceNoOpBelowThreshold(t *testing.T) {
	log := &eventLog{}
	custody := &fakeCustody{log: log, transfers: make(map[string]decimal.Decimal), balances: map[string]decimal.Decimal{
		"AAA": decimal.RequireFromString("4.8"),
		"BBB": decimal.RequireFromString("5.2"),
	}}
	exch := newFakeExchange(log)
	audit := &fakeAudit{}

	engine := newTestEngine(custody, exch, audit, hundredDollarPrices())
	require.NoError(t, engine.Rebalance(context.Background(), testFund(), false))

	require.Empty(t, log.events)
	require.Empty(t, audit.actions)
	require.Len(t, audit.readings, 1)
}

func TestRebalanceForceTradesBelowThreshold(t *testing.T) {
	log := &eventLog{}
	custody := &fakeCustody{log: log, transfers: make(map[string]decimal.Decimal), balances: map[string]decimal.Decimal{
		"AAA": decimal.RequireFromString("4.8"),
		"BBB": decimal.RequireFromString("5.2"),
	}}
	exch := newFakeExchange(log)
	audit := &fakeAudit{}

	engine := newTestEngine(custody, exch, audit, hundredDollarPrices())
	require.NoError(t, engine.Rebalance(context.Background(), testFund(), true))

	require.NotEmpty(t, log.events)
	require.Len(t, audit.actions, 2)
	require.True(t, exch.sold["BBB"].Equal(decimal.RequireFromString("0.2")))
}

func TestRebalanceAbortsOnMissingPrice(t *testing.T) {
	log := &eventLog{}
	custody := &fakeCustody{log: log, transfers: make(map[string]decimal.Decimal), balances: map[string]decimal.Decimal{
		"AAA": decimal.RequireFromString("4"),
		"BBB": decimal.RequireFromString("6"),
	}}
	exch := newFakeExchange(log)
	audit := &fakeAudit{}
	prices := map[string]decimal.Decimal{"AAA": decimal.RequireFromString("100")}

	engine := newTestEngine(custody, exch, audit, prices)
	require.Error(t, engine.Rebalance(context.Background(), testFund(), false))
	require.Empty(t, log.events)
	require.Empty(t, audit.actions)
}

func TestRebalanceSkipsEmptyFund(t *testing.T) {
	log := &eventLog{}
	custody := &fakeCustody{log: log, transfers: make(map[string]decimal.Decimal), balances: map[string]decimal.Decimal{}}
	exch := newFakeExchange(log)
	audit := &fakeAudit{}

	engine := newTestEngine(custody, exch, audit, hundredDollarPrices())
	require.NoError(t, engine.Rebalance(context.Background(), testFund(), false))
	require.Empty(t, log.events)
}
