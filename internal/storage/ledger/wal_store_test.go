package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/basket/internal/domain"
)

func TestAppendAndEntriesAfter(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	entries := []domain.LedgerEntry{
		{
			Email:      "a@b.c",
			FundID:     "BLUE2",
			AmountUSD:  decimal.RequireFromString("1000"),
			Asset:      "BTC",
			AssetShare: decimal.RequireFromString("0.6"),
			AssetValue: decimal.RequireFromString("600"),
			Units:      decimal.RequireFromString("0.01"),
			TxRef:      "tx-1",
			PaymentID:  "pay-1",
			Time:       time.Now().UTC().Truncate(time.Second),
		},
		{
			Email:      "a@b.c",
			FundID:     "BLUE2",
			AmountUSD:  decimal.RequireFromString("1000"),
			Asset:      "ETH",
			AssetShare: decimal.RequireFromString("0.4"),
			AssetValue: decimal.RequireFromString("400"),
			Units:      decimal.RequireFromString("0.2"),
			TxRef:      "tx-2",
			PaymentID:  "pay-1",
			Time:       time.Now().UTC().Truncate(time.Second),
		},
	}
	for _, entry := range entries {
		require.NoError(t, store.Append(entry))
	}

	records, err := store.EntriesAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "BTC", records[0].Entry.Asset)
	require.Equal(t, "ETH", records[1].Entry.Asset)
	require.True(t, records[0].Entry.AssetShare.Equal(decimal.RequireFromString("0.6")))

	tail, err := store.EntriesAfter(records[0].Index)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, "ETH", tail[0].Entry.Asset)

	none, err := store.EntriesAfter(store.CurrentIndex())
	require.NoError(t, err)
	require.Empty(t, none)
}
