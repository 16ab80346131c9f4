package webhook

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/basket/internal/domain"
	"github.com/vadiminshakov/basket/internal/services/settlement"
)

type fakeSettler struct {
	requests []settlement.Request
	result   settlement.Result
	err      error
}

func (s *fakeSettler) Settle(ctx context.Context, req settlement.Request) (settlement.Result, error) {
	s.requests = append(s.requests, req)
	return s.result, s.err
}

type fakeDedupe struct {
	reserved map[string]bool
	releases int
}

func newFakeDedupe() *fakeDedupe {
	return &fakeDedupe{reserved: make(map[string]bool)}
}

func (d *fakeDedupe) Reserve(ctx context.Context, id string) (bool, error) {
	if d.reserved[id] {
		return false, nil
	}
	d.reserved[id] = true
	return true, nil
}

func (d *fakeDedupe) Release(ctx context.Context, id string) error {
	delete(d.reserved, id)
	d.releases++
	return nil
}

type fakeInvestments struct {
	records []domain.InvestmentRecord
}

func (i *fakeInvestments) Record(record domain.InvestmentRecord) error {
	i.records = append(i.records, record)
	return nil
}

func successEvent() domain.PaymentEvent {
	return domain.PaymentEvent{
		ID:        "evt-1",
		Type:      domain.EventPaymentSucceeded,
		AmountUSD: decimal.RequireFromString("1000"),
		Metadata: map[string]string{
			domain.MetaType:      domain.InvestmentTypeCheckout,
			domain.MetaEmail:     "a@b.c",
			domain.MetaFundID:    "BLUE2",
			domain.MetaPaymentID: "pay-1",
		},
	}
}

func TestOnPaymentEventSettlesAndRecords(t *testing.T) {
	settler := &fakeSettler{result: settlement.Result{
		NAV:   decimal.RequireFromString("10"),
		Units: decimal.RequireFromString("100"),
	}}
	investments := &fakeInvestments{}
	handler := NewHandler(zap.NewNop(), settler, newFakeDedupe(), investments)

	require.NoError(t, handler.OnPaymentEvent(context.Background(), successEvent()))

	require.Len(t, settler.requests, 1)
	require.Equal(t, "pay-1", settler.requests[0].PaymentID)
	require.Equal(t, "a@b.c", settler.requests[0].Email)

	require.Len(t, investments.records, 1)
	require.Equal(t, domain.InvestmentComplete, investments.records[0].Status)
	require.False(t, investments.records[0].IsSIP)
	require.True(t, investments.records[0].Units.Equal(decimal.RequireFromString("100")))
}

func TestOnPaymentEventDuplicateDeliveryIsNoOp(t *testing.T) {
	settler := &fakeSettler{}
	handler := NewHandler(zap.NewNop(), settler, newFakeDedupe(), &fakeInvestments{})

	require.NoError(t, handler.OnPaymentEvent(context.Background(), successEvent()))
	require.NoError(t, handler.OnPaymentEvent(context.Background(), successEvent()))

	require.Len(t, settler.requests, 1)
}

func TestOnPaymentEventLiquidityShortfallParksPending(t *testing.T) {
	settler := &fakeSettler{err: domain.ErrInsufficientLiquidity}
	dedupe := newFakeDedupe()
	investments := &fakeInvestments{}
	handler := NewHandler(zap.NewNop(), settler, dedupe, investments)

	require.NoError(t, handler.OnPaymentEvent(context.Background(), successEvent()))

	require.Len(t, investments.records, 1)
	require.Equal(t, domain.InvestmentPending, investments.records[0].Status)
	// the event reservation is kept so redelivery stays a no-op
	require.True(t, dedupe.reserved["evt-1"])
	require.Equal(t, 0, dedupe.releases)
}

func TestOnPaymentEventSettleErrorReleasesReservation(t *testing.T) {
	settler := &fakeSettler{err: fmt.Errorf("venue down")}
	dedupe := newFakeDedupe()
	handler := NewHandler(zap.NewNop(), settler, dedupe, &fakeInvestments{})

	require.Error(t, handler.OnPaymentEvent(context.Background(), successEvent()))
	require.Equal(t, 1, dedupe.releases)
	require.False(t, dedupe.reserved["evt-1"])
}

func TestOnPaymentEventIgnoresFailedAndUnknown(t *testing.T) {
	settler := &fakeSettler{}
	handler := NewHandler(zap.NewNop(), settler, newFakeDedupe(), &fakeInvestments{})

	failed := successEvent()
	failed.Type = domain.EventPaymentFailed
	require.NoError(t, handler.OnPaymentEvent(context.Background(), failed))

	unknown := successEvent()
	unknown.Type = "charge.refunded"
	require.NoError(t, handler.OnPaymentEvent(context.Background(), unknown))

	noType := successEvent()
	noType.Metadata = map[string]string{domain.MetaEmail: "a@b.c", domain.MetaFundID: "BLUE2"}
	require.NoError(t, handler.OnPaymentEvent(context.Background(), noType))

	require.Empty(t, settler.requests)
}

func TestOnPaymentEventMissingMetadata(t *testing.T) {
	handler := NewHandler(zap.NewNop(), &fakeSettler{}, newFakeDedupe(), &fakeInvestments{})

	event := successEvent()
	event.Metadata = map[string]string{domain.MetaType: domain.InvestmentTypeCheckout}
	require.Error(t, handler.OnPaymentEvent(context.Background(), event))
}
