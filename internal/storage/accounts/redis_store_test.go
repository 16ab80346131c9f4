package accounts

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/basket/internal/domain"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "basket:")
}

func TestCreditAndBalance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Credit(ctx, "a@b.c", "BLUE2", decimal.RequireFromString("10.5")))
	require.NoError(t, store.Credit(ctx, "a@b.c", "BLUE2", decimal.RequireFromString("10.5")))
	require.NoError(t, store.Credit(ctx, "d@e.f", "BLUE2", decimal.RequireFromString("4")))

	balance, err := store.Balance(ctx, "a@b.c", "BLUE2")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.RequireFromString("21")))

	total, err := store.TotalUnits(ctx, "BLUE2")
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.RequireFromString("25")))

	// other funds are untouched
	other, err := store.TotalUnits(ctx, "OTHER")
	require.NoError(t, err)
	require.True(t, other.IsZero())
}

func TestCreditRejectsNonPositive(t *testing.T) {
	store := newTestStore(t)

	require.Error(t, store.Credit(context.Background(), "a@b.c", "BLUE2", decimal.Zero))
}

func TestDebitGuardsBalance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Credit(ctx, "a@b.c", "BLUE2", decimal.RequireFromString("5")))

	err := store.Debit(ctx, "a@b.c", "BLUE2", decimal.RequireFromString("10"))
	require.ErrorIs(t, err, domain.ErrInsufficientUnits)

	// the refused debit changed nothing
	balance, err := store.Balance(ctx, "a@b.c", "BLUE2")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.RequireFromString("5")))

	require.NoError(t, store.Debit(ctx, "a@b.c", "BLUE2", decimal.RequireFromString("3")))

	balance, err = store.Balance(ctx, "a@b.c", "BLUE2")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.RequireFromString("2")))

	total, err := store.TotalUnits(ctx, "BLUE2")
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.RequireFromString("2")))
}

func TestBalanceMissingAccountIsZero(t *testing.T) {
	store := newTestStore(t)

	balance, err := store.Balance(context.Background(), "nobody@b.c", "BLUE2")
	require.NoError(t, err)
	require.True(t, balance.IsZero())
}

func TestConcurrentCreditsAreAdditive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const credits = 40
	var wg sync.WaitGroup
	errs := make([]error, credits)
	for n := 0; n < credits; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n] = store.Credit(ctx, "a@b.c", "BLUE2", decimal.RequireFromString("0.5"))
		}(n)
	}
	wg.Wait()

	for n, err := range errs {
		require.NoError(t, err, "credit %d", n)
	}

	balance, err := store.Balance(ctx, "a@b.c", "BLUE2")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.RequireFromString("20")))

	total, err := store.TotalUnits(ctx, "BLUE2")
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.RequireFromString("20")))
}
