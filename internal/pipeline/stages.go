package pipeline

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/resume-scorer/internal/campaign"
	"github.com/spigell/resume-scorer/internal/candidate"
	"github.com/spigell/resume-scorer/internal/logger"
	"github.com/spigell/resume-scorer/internal/scoring"
	"github.com/spigell/resume-scorer/internal/signals"
	"github.com/spigell/resume-scorer/internal/textextract"
)

// Stage names.
const (
	StageResumeText = "resume_text"
	StageSignals    = "signals"
	StageScore      = "score"
	StageFollowups  = "followups"
)

// DefaultStages returns the stages of a full pass in order.
func DefaultStages() []Stage {
	return []Stage{
		NewResumeText(),
		NewSignals(),
		NewScore(),
		NewFollowups(),
	}
}

type resumeTextStage struct{}

// NewResumeText creates the stage that fetches missing resume text from resume_url or resume_path.
func NewResumeText() Stage {
	return &resumeTextStage{}
}

func (s *resumeTextStage) Name() string { return StageResumeText }

func (s *resumeTextStage) Disable(string) {}

func (s *resumeTextStage) IsEnabled() bool { return true }

func (s *resumeTextStage) Validate(_ *Config, deps Deps) error {
	if deps.Extractor == nil {
		return errors.New("text extractor is required")
	}
	return nil
}

func (s *resumeTextStage) Apply(ctx context.Context, deps Deps, c *candidate.Candidate) (Outcome, error) {
	if c.ResumeText != "" {
		return Skipped, nil
	}

	var src textextract.Source
	switch {
	case c.ResumeURL != "":
		src.URL = c.ResumeURL
	case c.ResumePath != "":
		src.Path = c.ResumePath
	default:
		return Skipped, nil
	}

	c.ResumeText = deps.Extractor.Extract(ctx, src)
	if c.ResumeText == "" {
		return Skipped, nil
	}

	return Applied, nil
}

type signalsStage struct{}

// NewSignals creates the stage that derives education, location and experience.
// Explicit location and experience values on the record win.
func NewSignals() Stage {
	return &signalsStage{}
}

func (s *signalsStage) Name() string { return StageSignals }

func (s *signalsStage) Disable(string) {}

func (s *signalsStage) IsEnabled() bool { return true }

func (s *signalsStage) Validate(*Config, Deps) error { return nil }

func (s *signalsStage) Apply(_ context.Context, _ Deps, c *candidate.Candidate) (Outcome, error) {
	sig := signals.Extract(c.ResumeText)

	c.EducationText = sig.Education
	if c.Location == "" {
		c.Location = sig.Location
	}
	if c.ExperienceMonths == 0 {
		c.ExperienceMonths = sig.ExperienceMonths
	}

	return Applied, nil
}

type scoreStage struct {
	config *scoring.Config
}

// NewScore creates the scoring stage.
func NewScore() Stage {
	return &scoreStage{}
}

func (s *scoreStage) Name() string { return StageScore }

func (s *scoreStage) Disable(string) {}

func (s *scoreStage) IsEnabled() bool { return true }

func (s *scoreStage) Validate(cfg *Config, _ Deps) error {
	s.config = nil
	if cfg != nil {
		s.config = cfg.Scoring
	}
	if s.config == nil {
		s.config = scoring.Default()
	}
	return nil
}

func (s *scoreStage) Apply(_ context.Context, deps Deps, c *candidate.Candidate) (Outcome, error) {
	b := scoring.Score(c.ScoringInput(), s.config)
	c.Score = &b

	logger.WithCandidate(deps.Logger, c.Identity(), c.Email).Debug("candidate scored",
		zap.Int("total", b.Total),
		zap.Any("breakdown", b.Points),
	)

	return Applied, nil
}

func (s *scoreStage) Status() Status {
	details := map[string]string{}
	if s.config != nil {
		details["top_tier_list"] = strconv.Itoa(len(s.config.TopTierList))
		details["locations"] = strconv.Itoa(len(s.config.Location))
	}
	return Status{Name: s.Name(), Enabled: true, Details: details}
}

type followupsStage struct {
	disabled bool
	reason   string
}

// NewFollowups creates the stage that enrolls candidates into the follow-up campaign.
func NewFollowups() Stage {
	return &followupsStage{}
}

func (s *followupsStage) Name() string { return StageFollowups }

func (s *followupsStage) Disable(reason string) {
	s.disabled = true
	s.reason = reason
}

func (s *followupsStage) IsEnabled() bool { return !s.disabled }

func (s *followupsStage) Validate(_ *Config, deps Deps) error {
	if !s.IsEnabled() {
		return nil
	}
	if deps.Enroller == nil {
		return errors.New("campaign enroller is required when follow-ups are enabled")
	}
	return nil
}

func (s *followupsStage) Apply(ctx context.Context, deps Deps, c *candidate.Candidate) (Outcome, error) {
	if c.Email == "" {
		return Skipped, nil
	}

	id := c.Identity()
	if n := deps.Collisions[id]; n > 1 {
		logger.WithCandidate(deps.Logger, id, c.Email).Warn("identity shared by several candidates; skipping follow-ups",
			zap.Int("candidates", n),
		)
		return Skipped, nil
	}

	now := deps.Now
	if now == nil {
		now = defaultNow
	}

	planned, err := deps.Enroller.Enroll(ctx, campaign.Recipient{ID: c.ID, Email: c.Email}, now())
	if err != nil {
		return Skipped, err
	}
	if planned == nil {
		return Skipped, nil
	}

	return Applied, nil
}

func (s *followupsStage) Status() Status {
	return Status{Name: s.Name(), Enabled: s.IsEnabled(), Reason: s.reason}
}
