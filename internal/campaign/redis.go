package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	maxWatchRetries = 8
	watchBackoff    = 5 * time.Millisecond
)

// RedisStore keeps each enrollment as a JSON string under its own key,
// updated under WATCH of that key only. A set indexes the candidate ids so
// Reset can find every key.
type RedisStore struct {
	rdb      redis.UniversalClient
	prefix   string
	indexKey string
	now      func() time.Time
}

func NewRedisStore(rdb redis.UniversalClient, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "resume-scorer"
	}
	return &RedisStore{
		rdb:      rdb,
		prefix:   namespace + ":enrollment:",
		indexKey: namespace + ":enrollments",
		now:      time.Now,
	}
}

func (s *RedisStore) Get(ctx context.Context, candidateID string) (Enrollment, bool, error) {
	return s.get(ctx, s.rdb, candidateID)
}

func (s *RedisStore) Activate(ctx context.Context, candidateID, email string, start time.Time, steps int) (Enrollment, error) {
	var result Enrollment
	err := s.update(ctx, candidateID, func(cur Enrollment) (Enrollment, bool, error) {
		next, err := cur.activate(email, start, steps, s.now())
		result = next
		return next, err == nil, err
	})
	return result, err
}

func (s *RedisStore) MarkFired(ctx context.Context, candidateID string, step int) (Enrollment, bool, error) {
	var (
		result  Enrollment
		claimed bool
	)
	err := s.update(ctx, candidateID, func(cur Enrollment) (Enrollment, bool, error) {
		if cur.HasFired(step) {
			result, claimed = cur, false
			return cur, false, nil
		}
		result, claimed = cur.markFired(step, s.now()), true
		return result, true, nil
	})
	if err != nil {
		return Enrollment{}, false, err
	}
	return result, claimed, nil
}

func (s *RedisStore) Reset(ctx context.Context) error {
	ids, err := s.rdb.SMembers(ctx, s.indexKey).Result()
	if err != nil {
		return fmt.Errorf("list enrollments: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, s.indexKey)

	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("reset enrollments: %w", err)
	}
	return nil
}

func (s *RedisStore) key(candidateID string) string {
	return s.prefix + candidateID
}

// update applies fn to the stored enrollment. fn reports whether the result
// must be written back.
func (s *RedisStore) update(ctx context.Context, candidateID string, fn func(Enrollment) (Enrollment, bool, error)) error {
	key := s.key(candidateID)

	txf := func(tx *redis.Tx) error {
		cur, _, err := s.get(ctx, tx, candidateID)
		if err != nil {
			return err
		}
		cur.CandidateID = candidateID

		next, write, err := fn(cur)
		if err != nil || !write {
			return err
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode enrollment %s: %w", candidateID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, s.indexKey, candidateID)
			return nil
		})
		return err
	}

	for attempt := range maxWatchRetries {
		err := s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * watchBackoff):
		}
	}

	return fmt.Errorf("update enrollment %s: too much contention", candidateID)
}

func (s *RedisStore) get(ctx context.Context, c redis.Cmdable, candidateID string) (Enrollment, bool, error) {
	data, err := c.Get(ctx, s.key(candidateID)).Result()
	if errors.Is(err, redis.Nil) {
		return Enrollment{}, false, nil
	}
	if err != nil {
		return Enrollment{}, false, fmt.Errorf("get enrollment %s: %w", candidateID, err)
	}

	var e Enrollment
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return Enrollment{}, false, fmt.Errorf("decode enrollment %s: %w", candidateID, err)
	}
	return e, true, nil
}
