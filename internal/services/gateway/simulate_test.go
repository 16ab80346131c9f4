package gateway

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/basket/internal/domain"
)

func TestChargeConfirmRoundtrip(t *testing.T) {
	g := NewSimulateGateway(nil)

	metadata := map[string]string{
		domain.MetaType:       domain.InvestmentTypeSIP,
		domain.MetaScheduleID: "sched-1",
	}
	chargeID, err := g.CreateCharge(context.Background(), "a@b.c", "BLUE2",
		decimal.RequireFromString("100"), metadata)
	require.NoError(t, err)
	require.Equal(t, []string{chargeID}, g.PendingCharges())

	event, ok := g.ConfirmEvent(chargeID)
	require.True(t, ok)
	require.Equal(t, domain.EventPaymentSucceeded, event.Type)
	require.Equal(t, "a@b.c", event.Metadata[domain.MetaEmail])
	require.Equal(t, "BLUE2", event.Metadata[domain.MetaFundID])
	require.Equal(t, chargeID, event.Metadata[domain.MetaPaymentID])
	require.Equal(t, "sched-1", event.Metadata[domain.MetaScheduleID])
	require.True(t, event.AmountUSD.Equal(decimal.RequireFromString("100")))
	require.Equal(t, chargeID, event.PaymentID())

	// the charge is consumed, delivery happens once
	_, ok = g.ConfirmEvent(chargeID)
	require.False(t, ok)
	require.Empty(t, g.PendingCharges())
}

func TestConfirmUnknownCharge(t *testing.T) {
	g := NewSimulateGateway(nil)

	_, ok := g.ConfirmEvent("missing")
	require.False(t, ok)
}
