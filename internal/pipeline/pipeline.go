// Package pipeline enriches candidate records one stage at a time: resume
// text, signals, score and follow-up enrollment.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-scorer/internal/campaign"
	"github.com/spigell/resume-scorer/internal/candidate"
	"github.com/spigell/resume-scorer/internal/scoring"
	"github.com/spigell/resume-scorer/internal/textextract"
)

// Outcome tells what a stage did to one candidate.
type Outcome int

const (
	Skipped Outcome = iota
	Applied
)

// Stage is one enrichment step applied to every candidate.
type Stage interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate(cfg *Config, deps Deps) error
	Apply(ctx context.Context, deps Deps, c *candidate.Candidate) (Outcome, error)
}

// TextExtractor fills missing resume text.
type TextExtractor interface {
	Extract(ctx context.Context, src textextract.Source) string
}

// Enroller enters a candidate into the follow-up campaign.
type Enroller interface {
	Enroll(ctx context.Context, r campaign.Recipient, now time.Time) ([]campaign.FollowupJob, error)
}

// Deps aggregates dependencies shared across all stages.
type Deps struct {
	Extractor TextExtractor
	Enroller  Enroller
	Logger    *zap.Logger
	Now       func() time.Time

	// Collisions holds identities shared by several candidates of the current pass.
	Collisions map[string]int
}

// Config contains settings consumed by the stages.
type Config struct {
	Scoring *scoring.Config
}

// Step counts the outcomes of one stage over a pass.
type Step struct {
	Applied int
	Skipped int
	Failed  int
}

// Status represents runtime information about a stage.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

type statusProvider interface {
	Status() Status
}

// DisableByName marks a stage with the provided name as disabled while keeping it in the list.
func DisableByName(stages []Stage, name, reason string) {
	for _, s := range stages {
		if s.Name() == name {
			s.Disable(reason)
		}
	}
}

// Describe returns status entries for the provided stages.
func Describe(stages []Stage) []Status {
	statuses := make([]Status, 0, len(stages))
	for _, s := range stages {
		if reporter, ok := s.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    s.Name(),
			Enabled: s.IsEnabled(),
		})
	}
	return statuses
}
