// Package schedules keeps SIP schedules in redis. At most one
// non-cancelled schedule may exist per email; the constraint is enforced
// with an owner key set atomically at creation.
package schedules

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vadiminshakov/basket/internal/domain"
)

// RedisStore holds SIP schedules.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates the schedule store with the given key prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) scheduleKey(id string) string {
	return fmt.Sprintf("%ssip:schedule:%s", s.prefix, id)
}

func (s *RedisStore) ownerKey(email string) string {
	return fmt.Sprintf("%ssip:owner:%s", s.prefix, email)
}

func (s *RedisStore) idsKey() string {
	return s.prefix + "sip:ids"
}

// Create persists a new schedule, enforcing the one-per-account constraint.
func (s *RedisStore) Create(ctx context.Context, schedule domain.SIPSchedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}
	if schedule.ID == "" {
		return fmt.Errorf("schedule id is required")
	}

	ok, err := s.client.SetNX(ctx, s.ownerKey(schedule.Email), schedule.ID, 0).Result()
	if err != nil {
		return errors.Wrapf(err, "reserve schedule slot for %s", schedule.Email)
	}
	if !ok {
		return domain.ErrScheduleExists
	}

	if err := s.save(ctx, schedule); err != nil {
		// free the slot again so the account is not locked out
		if delErr := s.client.Del(ctx, s.ownerKey(schedule.Email)).Err(); delErr != nil {
			return errors.Wrapf(err, "save failed and releasing the slot for %s also failed: %v", schedule.Email, delErr)
		}
		return err
	}

	if err := s.client.SAdd(ctx, s.idsKey(), schedule.ID).Err(); err != nil {
		return errors.Wrapf(err, "index schedule %s", schedule.ID)
	}

	return nil
}

// Update persists schedule changes. Cancelling releases the account slot.
func (s *RedisStore) Update(ctx context.Context, schedule domain.SIPSchedule) error {
	if schedule.ID == "" {
		return fmt.Errorf("schedule id is required")
	}

	if err := s.save(ctx, schedule); err != nil {
		return err
	}

	if schedule.Status == domain.ScheduleCancelled {
		if err := s.client.Del(ctx, s.ownerKey(schedule.Email)).Err(); err != nil {
			return errors.Wrapf(err, "release schedule slot for %s", schedule.Email)
		}
	}

	return nil
}

func (s *RedisStore) save(ctx context.Context, schedule domain.SIPSchedule) error {
	payload, err := json.Marshal(schedule)
	if err != nil {
		return errors.Wrap(err, "marshal schedule")
	}
	if err := s.client.Set(ctx, s.scheduleKey(schedule.ID), payload, 0).Err(); err != nil {
		return errors.Wrapf(err, "save schedule %s", schedule.ID)
	}
	return nil
}

// Get returns the schedule with the given id.
func (s *RedisStore) Get(ctx context.Context, id string) (domain.SIPSchedule, bool, error) {
	val, err := s.client.Get(ctx, s.scheduleKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.SIPSchedule{}, false, nil
	}
	if err != nil {
		return domain.SIPSchedule{}, false, errors.Wrapf(err, "get schedule %s", id)
	}

	var schedule domain.SIPSchedule
	if err := json.Unmarshal([]byte(val), &schedule); err != nil {
		return domain.SIPSchedule{}, false, errors.Wrapf(err, "decode schedule %s", id)
	}
	return schedule, true, nil
}

// ByEmail returns the account's non-cancelled schedule, if any.
func (s *RedisStore) ByEmail(ctx context.Context, email string) (domain.SIPSchedule, bool, error) {
	id, err := s.client.Get(ctx, s.ownerKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.SIPSchedule{}, false, nil
	}
	if err != nil {
		return domain.SIPSchedule{}, false, errors.Wrapf(err, "get schedule id for %s", email)
	}
	return s.Get(ctx, id)
}

// Due returns all active schedules whose next run is not after now.
func (s *RedisStore) Due(ctx context.Context, now time.Time) ([]domain.SIPSchedule, error) {
	ids, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list schedule ids")
	}

	due := make([]domain.SIPSchedule, 0)
	for _, id := range ids {
		schedule, ok, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if schedule.Due(now) {
			due = append(due, schedule)
		}
	}

	return due, nil
}
