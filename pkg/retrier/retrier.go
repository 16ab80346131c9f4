// Package retrier provides bounded fixed-interval retries. Operations
// waiting on external confirmations (exchange fills, custody transfers)
// must fail after a fixed attempt budget instead of hanging.
package retrier

import (
	"context"
	"time"
)

const (
	defaultAttempts = 5
	defaultInterval = 1 * time.Second
)

// Retrier executes a function up to a fixed number of attempts with a
// fixed interval between them.
type Retrier struct {
	attempts int
	interval time.Duration
}

// New creates a Retrier. Non-positive arguments fall back to defaults.
func New(attempts int, interval time.Duration) *Retrier {
	if attempts < 1 {
		attempts = defaultAttempts
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Retrier{attempts: attempts, interval: interval}
}

// Do executes fn until it succeeds, the attempt budget is exhausted, or
// the context is cancelled. The last error is returned on exhaustion.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error

	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.interval):
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
	}

	return err
}

// DoWithData executes fn with retries and returns its value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}
