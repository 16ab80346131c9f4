// Package gateway initiates card charges with the payment provider.
package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/basket/internal/domain"
)

// Charge is a payment request handed to the provider. Settlement
// happens later, when the provider confirms via webhook.
type Charge struct {
	ID        string
	Email     string
	FundID    string
	AmountUSD decimal.Decimal
	Metadata  map[string]string
}

// SimulateGateway records charges in memory and can replay them as
// payment events, standing in for the provider in paper mode and tests.
type SimulateGateway struct {
	mu      sync.Mutex
	logger  *zap.Logger
	charges map[string]Charge
}

// NewSimulateGateway creates an empty gateway.
func NewSimulateGateway(logger *zap.Logger) *SimulateGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulateGateway{logger: logger, charges: make(map[string]Charge)}
}

// CreateCharge registers a charge with the provider and returns its id.
func (g *SimulateGateway) CreateCharge(ctx context.Context, email, fundID string, amountUSD decimal.Decimal, metadata map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	charge := Charge{
		ID:        uuid.NewString(),
		Email:     email,
		FundID:    fundID,
		AmountUSD: amountUSD,
		Metadata:  meta,
	}
	g.charges[charge.ID] = charge

	g.logger.Info("Simulated charge created",
		zap.String("id", charge.ID),
		zap.String("email", email),
		zap.String("fund", fundID),
		zap.String("amount", amountUSD.String()))
	return charge.ID, nil
}

// PendingCharges returns the ids of charges not yet confirmed.
func (g *SimulateGateway) PendingCharges() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(g.charges))
	for id := range g.charges {
		ids = append(ids, id)
	}
	return ids
}

// ConfirmEvent builds the payment-succeeded event the provider would
// deliver for the charge. The charge is consumed: a second confirm of
// the same id returns false.
func (g *SimulateGateway) ConfirmEvent(chargeID string) (domain.PaymentEvent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	charge, ok := g.charges[chargeID]
	if !ok {
		return domain.PaymentEvent{}, false
	}
	delete(g.charges, chargeID)

	metadata := make(map[string]string, len(charge.Metadata)+3)
	for k, v := range charge.Metadata {
		metadata[k] = v
	}
	metadata[domain.MetaEmail] = charge.Email
	metadata[domain.MetaFundID] = charge.FundID
	metadata[domain.MetaPaymentID] = charge.ID

	return domain.PaymentEvent{
		ID:        uuid.NewString(),
		Type:      domain.EventPaymentSucceeded,
		AmountUSD: charge.AmountUSD,
		Metadata:  metadata,
	}, true
}
