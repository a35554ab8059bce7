package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps jobs in process memory. Pending jobs are lost on exit.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (s *MemoryStore) Upsert(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	return cloneJob(job), ok, nil
}

func (s *MemoryStore) Claim(_ context.Context, id string, now time.Time) (Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.RunAt.After(now) {
		return Job{}, false, nil
	}
	delete(s.jobs, id)
	return job, true, nil
}

func (s *MemoryStore) Due(_ context.Context, now time.Time) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Job
	for _, job := range s.jobs {
		if !job.RunAt.After(now) {
			due = append(due, cloneJob(job))
		}
	}
	sortJobs(due)
	return due, nil
}

func (s *MemoryStore) Next(_ context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next time.Time
	found := false
	for _, job := range s.jobs {
		if !found || job.RunAt.Before(next) {
			next = job.RunAt
			found = true
		}
	}
	return next, found, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		all = append(all, cloneJob(job))
	}
	sortJobs(all)
	return all, nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]Job)
	return nil
}

func sortJobs(list []Job) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].RunAt.Equal(list[j].RunAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].RunAt.Before(list[j].RunAt)
	})
}

func cloneJob(job Job) Job {
	if job.Payload == nil {
		return job
	}
	payload := make(map[string]string, len(job.Payload))
	for k, v := range job.Payload {
		payload[k] = v
	}
	job.Payload = payload
	return job
}
