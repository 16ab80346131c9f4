// Package accounts keeps investor unit balances in redis. Credits and
// debits run as Lua scripts so that concurrent settlements for the same
// account stay additive and a redemption can never drive a balance
// negative.
package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/basket/internal/domain"
)

// creditScript atomically adds units to the account balance and to the
// fund-wide total.
var creditScript = redis.NewScript(`
redis.call("INCRBYFLOAT", KEYS[1], ARGV[1])
redis.call("INCRBYFLOAT", KEYS[2], ARGV[1])
redis.call("SADD", KEYS[3], ARGV[2])
redis.call("SET", KEYS[4], ARGV[3])
return 1
`)

// debitScript refuses to take more units than the account holds.
var debitScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local need = tonumber(ARGV[1])
if current < need then
	return redis.error_reply("insufficient units")
end
redis.call("INCRBYFLOAT", KEYS[1], "-" .. ARGV[1])
redis.call("INCRBYFLOAT", KEYS[2], "-" .. ARGV[1])
redis.call("SET", KEYS[3], ARGV[2])
return 1
`)

// RedisStore holds unit balances keyed by (email, fund).
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates the balance store with the given key prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) balanceKey(email, fundID string) string {
	return fmt.Sprintf("%sunits:%s:%s", s.prefix, fundID, email)
}

func (s *RedisStore) totalKey(fundID string) string {
	return fmt.Sprintf("%sunits_total:%s", s.prefix, fundID)
}

func (s *RedisStore) membersKey(fundID string) string {
	return fmt.Sprintf("%smembers:%s", s.prefix, fundID)
}

func (s *RedisStore) updatedKey(email, fundID string) string {
	return fmt.Sprintf("%supdated:%s:%s", s.prefix, fundID, email)
}

// Credit adds units to the account. The increment is additive under
// concurrent settlements for the same account.
func (s *RedisStore) Credit(ctx context.Context, email, fundID string, units decimal.Decimal) error {
	if !units.IsPositive() {
		return fmt.Errorf("credit must be positive, got %s", units.String())
	}

	keys := []string{
		s.balanceKey(email, fundID),
		s.totalKey(fundID),
		s.membersKey(fundID),
		s.updatedKey(email, fundID),
	}
	args := []interface{}{units.String(), email, time.Now().UTC().Format(time.RFC3339)}

	if err := creditScript.Run(ctx, s.client, keys, args...).Err(); err != nil {
		return errors.Wrapf(err, "credit %s units to %s/%s", units.String(), email, fundID)
	}
	return nil
}

// Debit removes units from the account, failing with ErrInsufficientUnits
// when the balance is too small. The check and the decrement run in one
// script, so concurrent redemptions cannot overdraw.
func (s *RedisStore) Debit(ctx context.Context, email, fundID string, units decimal.Decimal) error {
	if !units.IsPositive() {
		return fmt.Errorf("debit must be positive, got %s", units.String())
	}

	keys := []string{
		s.balanceKey(email, fundID),
		s.totalKey(fundID),
		s.updatedKey(email, fundID),
	}
	args := []interface{}{units.String(), time.Now().UTC().Format(time.RFC3339)}

	if err := debitScript.Run(ctx, s.client, keys, args...).Err(); err != nil {
		if strings.Contains(err.Error(), "insufficient units") {
			return domain.ErrInsufficientUnits
		}
		return errors.Wrapf(err, "debit %s units from %s/%s", units.String(), email, fundID)
	}
	return nil
}

// Balance returns the units held by the account, zero when absent.
func (s *RedisStore) Balance(ctx context.Context, email, fundID string) (decimal.Decimal, error) {
	val, err := s.client.Get(ctx, s.balanceKey(email, fundID)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "get balance for %s/%s", email, fundID)
	}

	units, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse balance for %s/%s", email, fundID)
	}
	return units, nil
}

// TotalUnits returns the outstanding units of the fund across all accounts.
func (s *RedisStore) TotalUnits(ctx context.Context, fundID string) (decimal.Decimal, error) {
	val, err := s.client.Get(ctx, s.totalKey(fundID)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "get total units for fund %s", fundID)
	}

	units, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse total units for fund %s", fundID)
	}
	return units, nil
}
