package jobs

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *redis.Client) {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL is not set")
	}

	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	s := NewRedisStore(rdb, "test-"+uuid.NewString())
	t.Cleanup(func() {
		_ = s.Reset(ctx)
		rdb.Close()
	})
	return s, rdb
}

func TestRedisStore(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	at := time.UnixMilli(epoch.UnixMilli()).UTC()
	_ = s.Upsert(ctx, Job{ID: "j1", Kind: "followup", RunAt: at, Payload: map[string]string{"step": "1"}})
	_ = s.Upsert(ctx, Job{ID: "j1", Kind: "followup", RunAt: at.Add(time.Hour), Payload: map[string]string{"step": "1"}})

	all, err := s.List(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("expected one job after double upsert, got %d (%v)", len(all), err)
	}

	if due, _ := s.Due(ctx, at); len(due) != 0 {
		t.Fatalf("expected nothing due before the re-armed time, got %d", len(due))
	}

	next, ok, err := s.Next(ctx)
	if err != nil || !ok || !next.Equal(at.Add(time.Hour)) {
		t.Fatalf("unexpected next: %v %v %v", next, ok, err)
	}

	if _, claimed, _ := s.Claim(ctx, "j1", at); claimed {
		t.Fatalf("a re-armed job must not be claimed at its old time")
	}

	job, claimed, err := s.Claim(ctx, "j1", at.Add(time.Hour))
	if err != nil || !claimed || job.Payload["step"] != "1" {
		t.Fatalf("expected claim to return the job, got %+v, %v, %v", job, claimed, err)
	}
	if _, claimed, _ := s.Claim(ctx, "j1", at.Add(time.Hour)); claimed {
		t.Fatalf("expected second claim to find nothing")
	}
	if _, ok, _ := s.Get(ctx, "j1"); ok {
		t.Fatalf("claim must remove the payload too")
	}
}

func TestRedisStoreConcurrentClaim(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	at := time.UnixMilli(epoch.UnixMilli()).UTC()
	_ = s.Upsert(ctx, Job{ID: "j1", Kind: "followup", RunAt: at})

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		claims int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, claimed, err := s.Claim(ctx, "j1", at); claimed && err == nil {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if claims != 1 {
		t.Fatalf("expected exactly one claim, got %d", claims)
	}
}

func TestRedisStoreDropsOrphanIndexEntries(t *testing.T) {
	s, rdb := newTestRedisStore(t)
	ctx := context.Background()

	at := time.UnixMilli(epoch.UnixMilli()).UTC()
	_ = s.Upsert(ctx, Job{ID: "kept", Kind: "followup", RunAt: at.Add(time.Minute)})
	if err := rdb.ZAdd(ctx, s.dueKey, redis.Z{Score: float64(at.UnixMilli()), Member: "orphan"}).Err(); err != nil {
		t.Fatalf("seed orphan: %v", err)
	}

	due, err := s.Due(ctx, at.Add(time.Minute))
	if err != nil || len(due) != 1 || due[0].ID != "kept" {
		t.Fatalf("expected only the kept job, got %+v, %v", due, err)
	}

	next, ok, err := s.Next(ctx)
	if err != nil || !ok || !next.Equal(at.Add(time.Minute)) {
		t.Fatalf("orphan entry must not hold Next in the past, got %v %v %v", next, ok, err)
	}
}
