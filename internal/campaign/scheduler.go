// Package campaign drives the per-candidate follow-up campaign: a fixed
// sequence of time-offset messages, each armed as a job with a deterministic
// identity so that re-scheduling replaces timers instead of duplicating them.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-scorer/internal/jobs"
	"github.com/spigell/resume-scorer/internal/logger"
	"github.com/spigell/resume-scorer/internal/notify"
	"github.com/spigell/resume-scorer/internal/util"
)

// JobKind is the executor kind of follow-up jobs.
const JobKind = "followup"

// DefaultSubject is formatted with the 1-based step number.
const DefaultSubject = "Follow-up #%d"

const (
	payloadCandidateID = "candidate_id"
	payloadEmail       = "email"
	payloadSubject     = "subject"
	payloadBody        = "body"
	payloadStep        = "step"
)

// ErrDelivery is returned by a fired step whose message was not delivered.
var ErrDelivery = errors.New("follow-up delivery failed")

// JobQueue is the job execution collaborator.
type JobQueue interface {
	Upsert(ctx context.Context, job jobs.Job) error
	Handle(kind string, h jobs.Handler)
}

// Recipient identifies a candidate entering the campaign. ID falls back to Email.
type Recipient struct {
	ID    string
	Email string
}

// Identity returns the campaign namespace of the recipient.
func (r Recipient) Identity() string {
	return util.FirstNonEmpty(r.ID, r.Email)
}

// FollowupJob is one planned campaign step.
type FollowupJob struct {
	JobID     string
	Step      int
	RunAt     time.Time
	Recipient string
	Subject   string
	Body      string
}

// Config holds campaign settings.
type Config struct {
	Definition Definition
	// Subject may contain one %d verb for the step number.
	Subject string
}

// Deps aggregates the collaborators of a Scheduler.
type Deps struct {
	Jobs   JobQueue
	Store  Store
	Sender notify.Sender
	Logger *zap.Logger
}

// Scheduler arms and fires campaign steps.
type Scheduler struct {
	def     Definition
	subject string
	jobs    JobQueue
	store   Store
	sender  notify.Sender
	logger  *zap.Logger
}

// NewScheduler validates the definition and registers the follow-up handler
// on the job queue.
func NewScheduler(cfg *Config, deps *Deps) (*Scheduler, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if deps == nil || deps.Jobs == nil {
		return nil, errors.New("job queue is required")
	}
	if deps.Store == nil {
		return nil, errors.New("enrollment store is required")
	}
	if deps.Sender == nil {
		return nil, errors.New("sender is required")
	}

	def := cfg.Definition
	if def.Len() == 0 {
		def = DefaultDefinition()
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid campaign: %w", err)
	}

	subject := strings.TrimSpace(cfg.Subject)
	if subject == "" {
		subject = DefaultSubject
	}

	s := &Scheduler{
		def:     def,
		subject: subject,
		jobs:    deps.Jobs,
		store:   deps.Store,
		sender:  deps.Sender,
		logger:  logger.OrNop(deps.Logger),
	}

	deps.Jobs.Handle(JobKind, s.fire)

	return s, nil
}

// Definition returns the active campaign definition.
func (s *Scheduler) Definition() Definition {
	return s.def
}

// Plan returns every step of the campaign for the recipient without arming anything.
func (s *Scheduler) Plan(r Recipient, start time.Time) []FollowupJob {
	id := r.Identity()
	planned := make([]FollowupJob, 0, s.def.Len())
	for i, step := range s.def.Steps {
		n := i + 1
		planned = append(planned, FollowupJob{
			JobID:     JobID(id, n),
			Step:      n,
			RunAt:     RunAt(start, step.OffsetDays),
			Recipient: r.Email,
			Subject:   s.subjectFor(n),
			Body:      step.Message,
		})
	}
	return planned
}

// Schedule starts or re-arms the campaign of the recipient relative to start
// and returns the full step set. Steps that already fired are not armed again.
// Calling it again with another start re-arms every unfired step against the
// new start. A recipient without email is skipped, and so is a completed
// campaign; both return no jobs and no error.
func (s *Scheduler) Schedule(ctx context.Context, r Recipient, start time.Time) ([]FollowupJob, error) {
	log := logger.WithCandidate(s.logger, r.Identity(), r.Email)

	if strings.TrimSpace(r.Email) == "" {
		log.Info("no recipient address; skipping follow-ups")
		return nil, nil
	}

	id := r.Identity()

	prev, existed, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}

	enrollment, err := s.store.Activate(ctx, id, r.Email, start, s.def.Len())
	if errors.Is(err, ErrCompleted) {
		log.Info("campaign already completed; not re-enrolling")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("activate enrollment: %w", err)
	}

	if existed && prev.State == StateActive && !prev.Start.Equal(start) {
		log.Info("re-arming campaign with a new start",
			zap.Time("previous_start", prev.Start),
			zap.Time("start", start),
		)
	}

	planned := s.Plan(r, start)
	armed := 0
	for _, f := range planned {
		if enrollment.HasFired(f.Step) {
			continue
		}

		err := s.jobs.Upsert(ctx, jobs.Job{
			ID:    f.JobID,
			Kind:  JobKind,
			RunAt: f.RunAt,
			Payload: map[string]string{
				payloadCandidateID: id,
				payloadEmail:       f.Recipient,
				payloadSubject:     f.Subject,
				payloadBody:        f.Body,
				payloadStep:        strconv.Itoa(f.Step),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("arm step %d: %w", f.Step, err)
		}
		armed++

		log.Debug("scheduled follow-up",
			zap.Int("step", f.Step),
			zap.String(logger.FieldJobID, f.JobID),
			zap.Time("run_at", f.RunAt),
		)
	}

	log.Info("campaign scheduled",
		zap.Time("start", start),
		zap.Int("armed", armed),
		zap.Int("fired", len(enrollment.Fired)),
	)

	return planned, nil
}

// Enroll schedules the recipient starting at now, unless the campaign is
// already active, in which case its stored start is kept so repeated batch
// passes re-arm the same timers.
func (s *Scheduler) Enroll(ctx context.Context, r Recipient, now time.Time) ([]FollowupJob, error) {
	start := now

	if id := r.Identity(); id != "" {
		cur, ok, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load enrollment: %w", err)
		}
		if ok && cur.State == StateActive {
			start = cur.Start
		}
	}

	return s.Schedule(ctx, r, start)
}

// Status returns the campaign state of a candidate.
func (s *Scheduler) Status(ctx context.Context, candidateID string) (Enrollment, error) {
	e, ok, err := s.store.Get(ctx, candidateID)
	if err != nil {
		return Enrollment{}, err
	}
	if !ok {
		return Enrollment{CandidateID: candidateID, State: StateNotStarted, Steps: s.def.Len()}, nil
	}
	return e, nil
}

// fire claims the step in the enrollment store, then sends it. The step
// counts as fired whatever the delivery outcome, and a step that was already
// claimed is never sent again.
func (s *Scheduler) fire(ctx context.Context, job jobs.Job) error {
	id := job.Payload[payloadCandidateID]
	email := job.Payload[payloadEmail]
	step, err := strconv.Atoi(job.Payload[payloadStep])
	if err != nil {
		return fmt.Errorf("job %s: invalid step %q", job.ID, job.Payload[payloadStep])
	}

	log := logger.WithCandidate(s.logger, id, email).With(zap.Int("step", step))

	enrollment, claimed, err := s.store.MarkFired(ctx, id, step)
	if err != nil {
		return fmt.Errorf("record step %d as fired: %w", step, err)
	}
	if !claimed {
		log.Info("step already fired; not sending again")
		return nil
	}

	log.Debug("firing follow-up", zap.String("body", util.TruncateForLog(job.Payload[payloadBody], 80)))

	delivered := s.sender.Send(ctx, email, job.Payload[payloadSubject], job.Payload[payloadBody])

	if enrollment.State == StateCompleted {
		log.Info("campaign completed", zap.Int("steps", enrollment.Steps))
	}

	if !delivered {
		return fmt.Errorf("%w: step %d to %s", ErrDelivery, step, email)
	}

	return nil
}

func (s *Scheduler) subjectFor(step int) string {
	if strings.Contains(s.subject, "%d") {
		return fmt.Sprintf(s.subject, step)
	}
	return s.subject
}
