package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu    sync.Mutex
	fired []string
	errs  map[string]error
}

func (r *recorder) hook(job Job, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, job.ID)
	if err != nil {
		if r.errs == nil {
			r.errs = make(map[string]error)
		}
		r.errs[job.ID] = err
	}
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fired...)
}

var epoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func TestUpsertReplacesJobWithSameID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	exec := New(store, zap.NewNop())

	for _, at := range []time.Time{epoch, epoch.Add(time.Hour)} {
		if err := exec.Upsert(ctx, Job{ID: "followup-c1-1", Kind: "noop", RunAt: at}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single pending job, got %d", len(all))
	}
	if !all[0].RunAt.Equal(epoch.Add(time.Hour)) {
		t.Fatalf("expected the second submission to win, got %v", all[0].RunAt)
	}
}

func TestUpsertRequiresID(t *testing.T) {
	exec := New(NewMemoryStore(), nil)
	if err := exec.Upsert(context.Background(), Job{Kind: "noop"}); err == nil {
		t.Fatalf("expected error for empty job id")
	}
}

func TestRunDueFiresOnlyDueJobsOnce(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: epoch}
	rec := &recorder{}
	store := NewMemoryStore()
	exec := New(store, zap.NewNop(), WithClock(clock.Now), WithOnFired(rec.hook))

	var calls sync.Map
	exec.Handle("count", func(_ context.Context, job Job) error {
		n, _ := calls.LoadOrStore(job.ID, new(int))
		*(n.(*int))++
		return nil
	})

	_ = exec.Upsert(ctx, Job{ID: "a", Kind: "count", RunAt: epoch})
	_ = exec.Upsert(ctx, Job{ID: "b", Kind: "count", RunAt: epoch.Add(24 * time.Hour)})

	n, err := exec.RunDue(ctx)
	exec.Drain()
	if err != nil || n != 1 {
		t.Fatalf("expected 1 dispatched job, got %d (%v)", n, err)
	}

	// Nothing new is due until the clock moves.
	if n, _ := exec.RunDue(ctx); n != 0 {
		t.Fatalf("expected nothing due, got %d", n)
	}

	clock.Advance(24 * time.Hour)
	if n, _ := exec.RunDue(ctx); n != 1 {
		t.Fatalf("expected second job to fire, got %d", n)
	}
	exec.Drain()

	for _, id := range []string{"a", "b"} {
		v, ok := calls.Load(id)
		if !ok || *(v.(*int)) != 1 {
			t.Fatalf("expected job %s to fire exactly once", id)
		}
	}

	if left, _ := store.List(ctx); len(left) != 0 {
		t.Fatalf("expected store to be empty, got %d jobs", len(left))
	}
	if got := rec.ids(); len(got) != 2 {
		t.Fatalf("expected two fired notifications, got %v", got)
	}
}

func TestFailedJobIsNotRearmed(t *testing.T) {
	ctx := context.Background()
	core, observed := observer.New(zapcore.ErrorLevel)
	rec := &recorder{}
	store := NewMemoryStore()
	exec := New(store, zap.New(core), WithClock(func() time.Time { return epoch }), WithOnFired(rec.hook))

	sendErr := errors.New("smtp unavailable")
	exec.Handle("send", func(context.Context, Job) error { return sendErr })

	_ = exec.Upsert(ctx, Job{ID: "followup-c1-1", Kind: "send", RunAt: epoch})
	if _, err := exec.RunDue(ctx); err != nil {
		t.Fatalf("run due: %v", err)
	}
	exec.Drain()

	if _, ok, _ := store.Get(ctx, "followup-c1-1"); ok {
		t.Fatalf("failed job must not stay pending")
	}
	if !errors.Is(rec.errs["followup-c1-1"], sendErr) {
		t.Fatalf("expected failure to be reported, got %v", rec.errs)
	}
	if observed.FilterMessage("job failed").Len() != 1 {
		t.Fatalf("expected job failure to be logged")
	}
}

func TestUnknownKindIsReported(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	exec := New(NewMemoryStore(), nil, WithClock(func() time.Time { return epoch }), WithOnFired(rec.hook))

	_ = exec.Upsert(ctx, Job{ID: "x", Kind: "missing", RunAt: epoch})
	if _, err := exec.RunDue(ctx); err != nil {
		t.Fatalf("run due: %v", err)
	}

	if !errors.Is(rec.errs["x"], ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", rec.errs["x"])
	}
}

func TestStartFiresPastDueJobs(t *testing.T) {
	ctx := context.Background()
	exec := New(NewMemoryStore(), zap.NewNop(), WithPollInterval(10*time.Millisecond))

	fired := make(chan string, 2)
	exec.Handle("notify", func(_ context.Context, job Job) error {
		fired <- job.ID
		return nil
	})

	exec.Start(ctx)
	exec.Start(ctx)
	defer exec.Stop()

	_ = exec.Upsert(ctx, Job{ID: "late", Kind: "notify", RunAt: time.Now().Add(-time.Hour)})

	select {
	case id := <-fired:
		if id != "late" {
			t.Fatalf("unexpected job fired: %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("job was not fired")
	}
}

func TestStopDrainsInflightHandlers(t *testing.T) {
	ctx := context.Background()
	exec := New(NewMemoryStore(), zap.NewNop(), WithPollInterval(10*time.Millisecond))

	started := make(chan struct{})
	release := make(chan struct{})
	var finished bool
	exec.Handle("slow", func(context.Context, Job) error {
		close(started)
		<-release
		finished = true
		return nil
	})

	exec.Start(ctx)
	_ = exec.Upsert(ctx, Job{ID: "slow", Kind: "slow", RunAt: time.Now()})

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not start")
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	exec.Stop()

	if !finished {
		t.Fatalf("Stop returned before the handler finished")
	}
}
