// Package dedupe provides atomic check-and-insert de-duplication keyed by
// external identifiers (webhook event ids, payment transaction ids).
package dedupe

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore marks external identifiers as processed.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a dedupe store. The prefix namespaces identifier
// classes, e.g. "basket:seen:event:" vs "basket:seen:tx:".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return fmt.Sprintf("%s%s", s.prefix, id)
}

// Reserve marks the identifier as processed. It returns true exactly once
// per identifier; concurrent callers race on a single SETNX.
func (s *RedisStore) Reserve(ctx context.Context, id string) (bool, error) {
	first, err := s.client.SetNX(ctx, s.key(id), "1", 0).Result()
	if err != nil {
		return false, errors.Wrapf(err, "reserve id %s", id)
	}
	return first, nil
}

// Release frees a reservation after a failed attempt so the identifier
// can be retried.
func (s *RedisStore) Release(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return errors.Wrapf(err, "release id %s", id)
	}
	return nil
}
