package jobs

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, _ := s.Next(ctx); ok {
		t.Fatalf("expected no next job in empty store")
	}

	payload := map[string]string{"email": "a@example.com"}
	_ = s.Upsert(ctx, Job{ID: "b", RunAt: epoch.Add(2 * time.Hour), Payload: payload})
	_ = s.Upsert(ctx, Job{ID: "a", RunAt: epoch.Add(time.Hour)})
	payload["email"] = "mutated"

	got, ok, _ := s.Get(ctx, "b")
	if !ok || got.Payload["email"] != "a@example.com" {
		t.Fatalf("store must keep its own payload copy, got %+v", got)
	}

	next, ok, _ := s.Next(ctx)
	if !ok || !next.Equal(epoch.Add(time.Hour)) {
		t.Fatalf("unexpected next run: %v", next)
	}

	due, _ := s.Due(ctx, epoch.Add(2*time.Hour))
	if len(due) != 2 || due[0].ID != "a" || due[1].ID != "b" {
		t.Fatalf("expected both jobs earliest first, got %+v", due)
	}

	if _, claimed, _ := s.Claim(ctx, "b", epoch.Add(time.Hour)); claimed {
		t.Fatalf("a job that is not due yet must not be claimed")
	}
	if job, claimed, _ := s.Claim(ctx, "b", epoch.Add(2*time.Hour)); !claimed || job.Payload["email"] != "a@example.com" {
		t.Fatalf("expected first claim to return the payload, got %+v", job)
	}
	if _, claimed, _ := s.Claim(ctx, "b", epoch.Add(2*time.Hour)); claimed {
		t.Fatalf("expected second claim to find nothing")
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if all, _ := s.List(ctx); len(all) != 0 {
		t.Fatalf("expected empty store after reset, got %d", len(all))
	}
}
