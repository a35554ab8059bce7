package records

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
)

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool, err := NewPostgresPool(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	suffix := uuid.NewString()[:8]
	postings, candidates := "master_"+suffix, "detail_"+suffix

	s, err := NewPostgresStore(pool, postings, candidates)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	t.Cleanup(func() {
		for _, table := range []string{postings, candidates} {
			_, _ = pool.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
		}
	})

	return s
}

func TestPostgresReplaceAndAppend(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	tbl := Table{
		Columns: []string{"email", "score_total"},
		Rows: []Row{
			{"email": "a@x.io", "score_total": "75"},
			{"email": "b@x.io", "score_total": "10"},
		},
	}
	if err := s.ReplaceCandidates(ctx, tbl); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := s.ReplaceCandidates(ctx, tbl); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	if err := s.AppendCandidate(ctx, Row{"score_total": "3", "email": "c@x.io"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.ReadCandidates(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Columns) != 2 || got.Columns[0] != "email" {
		t.Fatalf("unexpected columns %v", got.Columns)
	}
	if len(got.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got.Rows))
	}
	if got.Rows[2]["email"] != "c@x.io" || got.Rows[2]["score_total"] != "3" {
		t.Fatalf("unexpected appended row %v", got.Rows[2])
	}

	postings, err := s.ReadPostings(ctx)
	if err != nil || len(postings.Rows) != 0 {
		t.Fatalf("postings: %+v, %v", postings, err)
	}
}
