// Package clients constructs connections to external collaborators:
// the trading venue and the balance store.
package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient builds an authenticated binance REST client used by
// the pricer, the exchange adapter and the volatility index provider.
func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	return binance.NewClient(apiKey, apiSecret)
}
