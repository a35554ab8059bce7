package campaign

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCompleted is returned when a completed campaign would be started again.
var ErrCompleted = errors.New("campaign already completed")

// Store persists enrollments. Activate and MarkFired are atomic per candidate.
type Store interface {
	Get(ctx context.Context, candidateID string) (Enrollment, bool, error)
	Activate(ctx context.Context, candidateID, email string, start time.Time, steps int) (Enrollment, error)
	// MarkFired claims the step. It reports false when the step was already
	// recorded, in which case the caller must not deliver it again.
	MarkFired(ctx context.Context, candidateID string, step int) (Enrollment, bool, error)
	Reset(ctx context.Context) error
}

// MemoryStore keeps enrollments in process memory.
type MemoryStore struct {
	mu  sync.Mutex
	now func() time.Time
	m   map[string]Enrollment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, m: make(map[string]Enrollment)}
}

func (s *MemoryStore) Get(_ context.Context, candidateID string) (Enrollment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[candidateID]
	return e.clone(), ok, nil
}

func (s *MemoryStore) Activate(_ context.Context, candidateID, email string, start time.Time, steps int) (Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.m[candidateID]
	cur.CandidateID = candidateID

	next, err := cur.activate(email, start, steps, s.now())
	if err != nil {
		return cur.clone(), err
	}
	s.m[candidateID] = next
	return next.clone(), nil
}

func (s *MemoryStore) MarkFired(_ context.Context, candidateID string, step int) (Enrollment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.m[candidateID].clone()
	cur.CandidateID = candidateID
	if cur.HasFired(step) {
		return cur, false, nil
	}

	next := cur.markFired(step, s.now())
	s.m[candidateID] = next
	return next.clone(), true, nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[string]Enrollment)
	return nil
}

func (e Enrollment) clone() Enrollment {
	e.Fired = append([]int(nil), e.Fired...)
	return e
}
