package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultNamespace = "resume-scorer"

// claimScript removes a due job from both keys in one step and returns its
// payload. An index entry without payload is dropped and reported as nil.
var claimScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score or tonumber(score) > tonumber(ARGV[2]) then
	return false
end
local data = redis.call('HGET', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return data
`)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// RedisStore persists jobs as JSON in a hash, indexed by a sorted set scored
// with RunAt in unix milliseconds.
type RedisStore struct {
	rdb     redis.UniversalClient
	jobsKey string
	dueKey  string
}

// NewRedisStore creates a store whose keys live under namespace.
func NewRedisStore(rdb redis.UniversalClient, namespace string) *RedisStore {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &RedisStore{
		rdb:     rdb,
		jobsKey: namespace + ":jobs",
		dueKey:  namespace + ":jobs:due",
	}
}

func (s *RedisStore) Upsert(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.jobsKey, job.ID, data)
		pipe.ZAdd(ctx, s.dueKey, redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", job.ID, err)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Job, bool, error) {
	data, err := s.rdb.HGet(ctx, s.jobsKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("get job %s: %w", id, err)
	}

	job, err := decodeJob(data)
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

// Claim runs as a script, so concurrent processes sharing the store fire each
// job once and a re-arm is never half removed.
func (s *RedisStore) Claim(ctx context.Context, id string, now time.Time) (Job, bool, error) {
	data, err := claimScript.Run(ctx, s.rdb, []string{s.dueKey, s.jobsKey}, id, now.UnixMilli()).Text()
	if errors.Is(err, redis.Nil) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("claim job %s: %w", id, err)
	}

	job, err := decodeJob(data)
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

func (s *RedisStore) Due(ctx context.Context, now time.Time) ([]Job, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, s.dueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}

	return s.load(ctx, ids)
}

func (s *RedisStore) Next(ctx context.Context) (time.Time, bool, error) {
	first, err := s.rdb.ZRangeWithScores(ctx, s.dueKey, 0, 0).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query next job: %w", err)
	}
	if len(first) == 0 {
		return time.Time{}, false, nil
	}

	return time.UnixMilli(int64(first[0].Score)), true, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Job, error) {
	ids, err := s.rdb.ZRange(ctx, s.dueKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	return s.load(ctx, ids)
}

func (s *RedisStore) Reset(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.jobsKey, s.dueKey).Err(); err != nil {
		return fmt.Errorf("reset jobs: %w", err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, ids []string) ([]Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := s.rdb.HMGet(ctx, s.jobsKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	jobs := make([]Job, 0, len(values))
	var orphans []any
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			orphans = append(orphans, ids[i])
			continue
		}
		job, err := decodeJob(data)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	// An index entry without payload would keep Next in the past forever.
	if len(orphans) > 0 {
		if err := s.rdb.ZRem(ctx, s.dueKey, orphans...).Err(); err != nil {
			return nil, fmt.Errorf("drop orphan job entries: %w", err)
		}
	}

	return jobs, nil
}

func decodeJob(data string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}
