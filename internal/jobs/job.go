// Package jobs runs one-shot timers keyed by a stable identity. Submitting a
// job with an identity that is already pending replaces it.
package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrNoHandler is reported for jobs whose kind has no registered handler.
var ErrNoHandler = errors.New("no handler registered for job kind")

// Job is a pending timer.
type Job struct {
	ID      string            `json:"id"`
	Kind    string            `json:"kind"`
	RunAt   time.Time         `json:"run_at"`
	Payload map[string]string `json:"payload,omitempty"`
}

// Handler performs the action of a fired job.
type Handler func(ctx context.Context, job Job) error

// Store keeps pending jobs. Every write is keyed by Job.ID.
type Store interface {
	Upsert(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, bool, error)
	// Claim atomically removes the job if it is still due at now and returns
	// the payload stored at that moment. Only one caller can claim a job.
	Claim(ctx context.Context, id string, now time.Time) (Job, bool, error)
	// Due returns jobs with RunAt not after now, earliest first.
	Due(ctx context.Context, now time.Time) ([]Job, error)
	// Next returns the earliest RunAt among pending jobs.
	Next(ctx context.Context) (time.Time, bool, error)
	List(ctx context.Context) ([]Job, error)
	Reset(ctx context.Context) error
}
