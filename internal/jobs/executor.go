package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-scorer/internal/logger"
)

const defaultPollInterval = time.Second

// Executor fires due jobs from a Store on a single background loop. Each job
// is removed from the store before its handler runs, so a job fires at most
// once and is never re-armed after a failure. Handlers run concurrently.
type Executor struct {
	store  Store
	logger *zap.Logger

	pollInterval time.Duration
	now          func() time.Time
	onFired      func(Job, error)

	mu       sync.RWMutex
	handlers map[string]Handler

	wake     chan struct{}
	inflight sync.WaitGroup

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures an Executor.
type Option func(*Executor)

// WithPollInterval bounds how long the loop sleeps before re-reading the store.
func WithPollInterval(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithOnFired registers a hook called after every handler returns.
func WithOnFired(fn func(Job, error)) Option {
	return func(e *Executor) {
		e.onFired = fn
	}
}

func New(store Store, log *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		store:        store,
		logger:       logger.OrNop(log),
		pollInterval: defaultPollInterval,
		now:          time.Now,
		handlers:     make(map[string]Handler),
		wake:         make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Handle registers the handler for jobs of the given kind.
func (e *Executor) Handle(kind string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = h
}

// Upsert stores the job, replacing any pending job with the same ID.
func (e *Executor) Upsert(ctx context.Context, job Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}

	if err := e.store.Upsert(ctx, job); err != nil {
		return err
	}

	e.logger.Debug("job armed",
		zap.String(logger.FieldJobID, job.ID),
		zap.String("kind", job.Kind),
		zap.Time("run_at", job.RunAt),
	)

	select {
	case e.wake <- struct{}{}:
	default:
	}

	return nil
}

// Store returns the backing job store.
func (e *Executor) Store() Store {
	return e.store
}

// Start launches the background loop. Calling Start twice is a no-op.
func (e *Executor) Start(ctx context.Context) {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.loop(ctx, e.done)

	e.logger.Info("job executor started", zap.Duration("poll_interval", e.pollInterval))
}

// Stop halts the loop and waits for in-flight handlers to finish.
func (e *Executor) Stop() {
	e.lifecycle.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.lifecycle.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	e.Drain()

	if cancel != nil {
		e.logger.Info("job executor stopped")
	}
}

// Drain waits for every dispatched handler to return.
func (e *Executor) Drain() {
	e.inflight.Wait()
}

// RunDue dispatches every job due at the current clock and returns how many
// were dispatched. It does not wait for handlers.
func (e *Executor) RunDue(ctx context.Context) (int, error) {
	now := e.now()
	due, err := e.store.Due(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("query due jobs: %w", err)
	}

	dispatched := 0
	for _, pending := range due {
		job, claimed, err := e.store.Claim(ctx, pending.ID, now)
		if err != nil {
			e.logger.Error("claiming job failed", zap.String(logger.FieldJobID, pending.ID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}

		e.dispatch(ctx, job)
		dispatched++
	}

	return dispatched, nil
}

func (e *Executor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-e.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if _, err := e.RunDue(ctx); err != nil && ctx.Err() == nil {
			e.logger.Error("running due jobs", zap.Error(err))
		}

		timer.Reset(e.nextWait(ctx))
	}
}

func (e *Executor) nextWait(ctx context.Context) time.Duration {
	next, ok, err := e.store.Next(ctx)
	if err != nil || !ok {
		return e.pollInterval
	}

	wait := next.Sub(e.now())
	if wait < 0 {
		return 0
	}
	return min(wait, e.pollInterval)
}

func (e *Executor) dispatch(ctx context.Context, job Job) {
	e.mu.RLock()
	h, ok := e.handlers[job.Kind]
	e.mu.RUnlock()

	log := e.logger.With(zap.String(logger.FieldJobID, job.ID), zap.String("kind", job.Kind))

	if !ok {
		err := fmt.Errorf("%w: %s", ErrNoHandler, job.Kind)
		log.Error("job dropped", zap.Error(err))
		e.fired(job, err)
		return
	}

	// Handlers outlive Stop so that a send in progress is not cut off.
	hctx := context.WithoutCancel(ctx)

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()

		err := h(hctx, job)
		if err != nil {
			log.Error("job failed", zap.Error(err))
		} else {
			log.Info("job fired", zap.Time("run_at", job.RunAt))
		}
		e.fired(job, err)
	}()
}

func (e *Executor) fired(job Job, err error) {
	if e.onFired != nil {
		e.onFired(job, err)
	}
}
