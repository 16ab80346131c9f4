package dedupe

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestReserveIsExactlyOnce(t *testing.T) {
	store := NewRedisStore(newTestClient(t), "basket:seen:event:")
	ctx := context.Background()

	first, err := store.Reserve(ctx, "evt-1")
	require.NoError(t, err)
	require.True(t, first)

	again, err := store.Reserve(ctx, "evt-1")
	require.NoError(t, err)
	require.False(t, again)

	require.NoError(t, store.Release(ctx, "evt-1"))

	first, err = store.Reserve(ctx, "evt-1")
	require.NoError(t, err)
	require.True(t, first)
}

func TestPrefixesAreIndependent(t *testing.T) {
	client := newTestClient(t)
	events := NewRedisStore(client, "basket:seen:event:")
	payments := NewRedisStore(client, "basket:seen:payment:")
	ctx := context.Background()

	first, err := events.Reserve(ctx, "id-1")
	require.NoError(t, err)
	require.True(t, first)

	// same id in the other namespace is still free
	first, err = payments.Reserve(ctx, "id-1")
	require.NoError(t, err)
	require.True(t, first)
}

func TestConcurrentReserveGrantsOne(t *testing.T) {
	store := NewRedisStore(newTestClient(t), "basket:seen:payment:")
	ctx := context.Background()

	const callers = 20
	var wg sync.WaitGroup
	grants := make([]bool, callers)
	errs := make([]error, callers)
	for n := 0; n < callers; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			grants[n], errs[n] = store.Reserve(ctx, "pay-1")
		}(n)
	}
	wg.Wait()

	granted := 0
	for n := range errs {
		require.NoError(t, errs[n])
		if grants[n] {
			granted++
		}
	}
	require.Equal(t, 1, granted)
}
