package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/resume-scorer/internal/candidate"
	"github.com/spigell/resume-scorer/internal/logger"
	"github.com/spigell/resume-scorer/internal/records"
)

var defaultNow = func() time.Time { return time.Now().UTC() }

// Summary describes one finished pass.
type Summary struct {
	RunID      string
	Postings   int
	Candidates int
	Scored     int
	Enrolled   int
	Stages     map[string]Step
	Duration   time.Duration
}

// Runner executes passes over the record store.
type Runner struct {
	cfg    *Config
	store  records.Store
	deps   Deps
	stages []Stage
}

// NewRunner builds a runner. Without stages, DefaultStages is used.
func NewRunner(cfg *Config, store records.Store, deps Deps, stages ...Stage) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	deps.Logger = logger.OrNop(deps.Logger)
	if deps.Now == nil {
		deps.Now = defaultNow
	}

	return &Runner{cfg: cfg, store: store, deps: deps, stages: stages}
}

// Stages returns the stages of the runner.
func (r *Runner) Stages() []Stage {
	return r.stages
}

// Run reads every candidate, enriches it and writes the whole table back.
// Store failures abort the pass; stage failures are logged per candidate.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	runID := uuid.NewString()
	log := r.deps.Logger.With(zap.String(logger.FieldRunID, runID))

	for _, s := range r.stages {
		if !s.IsEnabled() {
			continue
		}
		if err := s.Validate(r.cfg, r.deps); err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name(), err)
		}
	}

	postings, err := r.store.ReadPostings(ctx)
	if err != nil {
		return nil, fmt.Errorf("read postings: %w", err)
	}
	log.Info("postings loaded", zap.Int("postings", len(postings.Rows)))

	table, err := r.store.ReadCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("read candidates: %w", err)
	}

	list := make([]*candidate.Candidate, 0, len(table.Rows))
	for i, row := range table.Rows {
		c, err := candidate.FromRecord(row, log)
		if err != nil {
			return nil, fmt.Errorf("candidate row %d: %w", i+1, err)
		}
		list = append(list, c)
	}
	log.Info("candidates loaded", zap.Int("candidates", len(list)))

	deps := r.deps
	deps.Logger = log
	deps.Collisions = candidate.CheckIdentities(list)
	for id, n := range deps.Collisions {
		if id == "" {
			log.Warn("candidates without id or email", zap.Int("candidates", n))
			continue
		}
		log.Warn("duplicate candidate identity", zap.String(logger.FieldCandidateID, id), zap.Int("candidates", n))
	}

	steps := make(map[string]Step, len(r.stages))
	for _, c := range list {
		r.apply(ctx, deps, c, steps)
	}

	out := records.Table{Columns: append([]string(nil), table.Columns...)}
	out.EnsureColumns(candidate.OutputColumns...)
	for _, c := range list {
		row, err := c.ToRecord()
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.Identity(), err)
		}
		out.Rows = append(out.Rows, row)
	}

	if err := r.store.ReplaceCandidates(ctx, out); err != nil {
		return nil, fmt.Errorf("write candidates: %w", err)
	}

	for _, s := range r.stages {
		if !s.IsEnabled() {
			log.Info("stage disabled", zap.String("name", s.Name()))
			continue
		}
		step := steps[s.Name()]
		log.Info("stage summary",
			zap.String("name", s.Name()),
			zap.Int("applied", step.Applied),
			zap.Int("skipped", step.Skipped),
			zap.Int("failed", step.Failed),
		)
	}

	summary := &Summary{
		RunID:      runID,
		Postings:   len(postings.Rows),
		Candidates: len(list),
		Scored:     steps[StageScore].Applied,
		Enrolled:   steps[StageFollowups].Applied,
		Stages:     steps,
		Duration:   time.Since(started),
	}

	log.Info("pass completed",
		zap.Int("candidates", summary.Candidates),
		zap.Int("scored", summary.Scored),
		zap.Int("enrolled", summary.Enrolled),
		zap.Duration("duration", summary.Duration),
	)

	return summary, nil
}

func (r *Runner) apply(ctx context.Context, deps Deps, c *candidate.Candidate, steps map[string]Step) {
	for _, s := range r.stages {
		if !s.IsEnabled() {
			continue
		}

		step := steps[s.Name()]
		outcome, err := s.Apply(ctx, deps, c)
		switch {
		case err != nil:
			step.Failed++
			logger.WithCandidate(deps.Logger, c.Identity(), c.Email).Error("stage failed",
				zap.String("stage", s.Name()),
				zap.Error(err),
			)
		case outcome == Applied:
			step.Applied++
		default:
			step.Skipped++
		}
		steps[s.Name()] = step
	}
}
