package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/resume-scorer/internal/campaign"
	"github.com/spigell/resume-scorer/internal/jobs"
	"github.com/spigell/resume-scorer/internal/notify"
	"github.com/spigell/resume-scorer/internal/pipeline"
	"github.com/spigell/resume-scorer/internal/records"
	"github.com/spigell/resume-scorer/internal/scoring"
	"github.com/spigell/resume-scorer/internal/secrets"
	"github.com/spigell/resume-scorer/internal/textextract"
)

const (
	backendCSV      = "csv"
	backendPostgres = "postgres"
	backendMemory   = "memory"
	backendRedis    = "redis"
)

var errConfigMissing = errors.New("required configuration is missing")

// application wires every component of a batch pass.
type application struct {
	config    *Config
	logger    *zap.Logger
	store     records.Store
	backend   *jobBackend
	executor  *jobs.Executor
	scheduler *campaign.Scheduler
	runner    *pipeline.Runner
	closers   []func()
}

// jobBackend holds the persistent state of follow-up campaigns.
type jobBackend struct {
	name        string
	jobs        jobs.Store
	enrollments campaign.Store
	close       func()
}

func validateConfig(config *Config) error {
	if config == nil || config.Store == nil {
		return fmt.Errorf("%w: store section", errConfigMissing)
	}

	var missing []string
	if strings.TrimSpace(config.Store.Postings) == "" {
		missing = append(missing, "store.postings (RESUME_SCORER_POSTINGS)")
	}
	if strings.TrimSpace(config.Store.Candidates) == "" {
		missing = append(missing, "store.candidates (RESUME_SCORER_CANDIDATES)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", errConfigMissing, strings.Join(missing, ", "))
	}

	switch config.Store.Backend {
	case backendCSV, backendPostgres:
	default:
		return fmt.Errorf("unsupported store backend: %s", config.Store.Backend)
	}

	return validateJobsConfig(config)
}

func validateJobsConfig(config *Config) error {
	if config.Jobs == nil {
		return fmt.Errorf("%w: jobs section", errConfigMissing)
	}

	switch config.Jobs.Backend {
	case backendMemory:
	case backendRedis:
		if strings.TrimSpace(config.Jobs.RedisURL) == "" {
			return fmt.Errorf("%w: jobs.redis-url (REDIS_URL) for the redis backend", errConfigMissing)
		}
	default:
		return fmt.Errorf("unsupported jobs backend: %s", config.Jobs.Backend)
	}

	return nil
}

func newJobBackend(ctx context.Context, config *JobsConfig) (*jobBackend, error) {
	if config.Backend != backendRedis {
		return &jobBackend{
			name:        backendMemory,
			jobs:        jobs.NewMemoryStore(),
			enrollments: campaign.NewMemoryStore(),
			close:       func() {},
		}, nil
	}

	rdb, err := jobs.NewRedisClient(ctx, config.RedisURL)
	if err != nil {
		return nil, err
	}

	return &jobBackend{
		name:        backendRedis,
		jobs:        jobs.NewRedisStore(rdb, config.Namespace),
		enrollments: campaign.NewRedisStore(rdb, config.Namespace),
		close:       func() { _ = rdb.Close() },
	}, nil
}

func newRecordStore(ctx context.Context, config *StoreConfig) (records.Store, func(), error) {
	if config.Backend != backendPostgres {
		store, err := records.NewCSVStore(config.Dir, config.Postings, config.Candidates)
		return store, func() {}, err
	}

	url, err := secrets.Load(secrets.Source{
		Name:  "database url",
		Value: config.DatabaseURL,
		File:  config.DatabaseURLFile,
		Env:   "DATABASE_URL",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errConfigMissing, err)
	}

	pool, err := records.NewPostgresPool(ctx, url)
	if err != nil {
		return nil, nil, err
	}

	store, err := records.NewPostgresStore(pool, config.Postings, config.Candidates)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	return store, pool.Close, nil
}

func newSender(config *SMTPConfig, logger *zap.Logger) (*notify.SMTP, error) {
	if config == nil {
		config = &SMTPConfig{}
	}

	password, err := secrets.Optional(secrets.Source{
		Name:  "smtp password",
		Value: config.Password,
		File:  config.PasswordFile,
		Env:   "SMTP_PASSWORD",
	})
	if err != nil {
		return nil, err
	}

	return notify.NewSMTP(notify.SMTPConfig{
		Host:     config.Host,
		Port:     config.Port,
		User:     config.User,
		Password: password,
		From:     config.From,
	}, logger), nil
}

func newExtractor(ctx context.Context, config *FetchConfig, logger *zap.Logger) (*textextract.Extractor, error) {
	if config == nil {
		config = &FetchConfig{}
	}
	return textextract.New(ctx, &textextract.Config{UserAgent: config.UserAgent, Timeout: config.Timeout}, logger)
}

func loadScoring(config *ScoringConfig) (*scoring.Config, error) {
	if config == nil || strings.TrimSpace(config.File) == "" {
		return scoring.Default(), nil
	}
	return scoring.LoadFile(config.File)
}

// newApplication builds the components of a batch pass. Follow-ups are
// disabled by the configuration or by disableFollowups.
func newApplication(ctx context.Context, config *Config, logger *zap.Logger, disableFollowups string) (*application, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	a := &application{config: config, logger: logger}

	store, closeStore, err := newRecordStore(ctx, config.Store)
	if err != nil {
		return nil, fmt.Errorf("record store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	scoringConfig, err := loadScoring(config.Scoring)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("scoring config: %w", err)
	}

	extractor, err := newExtractor(ctx, config.Fetch, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	backend, err := newJobBackend(ctx, config.Jobs)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("jobs backend: %w", err)
	}
	a.backend = backend
	a.closers = append(a.closers, backend.close)

	sender, err := newSender(config.SMTP, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("smtp: %w", err)
	}
	if !sender.Configured() {
		logger.Warn("smtp credentials are not set; follow-up messages will be skipped",
			zap.String("hint", "set SMTP_USER and SMTP_PASSWORD or the smtp section of the configuration file"),
		)
	}

	a.executor = jobs.New(backend.jobs, logger.Named("jobs"), jobs.WithPollInterval(config.Jobs.PollInterval))

	followups := config.Followups
	if followups == nil {
		followups = &FollowupsConfig{Enabled: true}
	}

	a.scheduler, err = campaign.NewScheduler(&campaign.Config{
		Definition: campaign.Definition{Steps: followups.Steps},
		Subject:    followups.Subject,
	}, &campaign.Deps{
		Jobs:   a.executor,
		Store:  backend.enrollments,
		Sender: sender,
		Logger: logger.Named("campaign"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	stages := pipeline.DefaultStages()
	if reason := followupsDisabledReason(followups, backend.name, disableFollowups); reason != "" {
		pipeline.DisableByName(stages, pipeline.StageFollowups, reason)
		if disableFollowups == "" && followups.Enabled && backend.name == backendMemory {
			logger.Warn("follow-ups are not sent with the memory jobs backend",
				zap.String("reason", reason),
				zap.String("hint", "set jobs.backend=redis (REDIS_URL) to deliver follow-ups"),
			)
		}
	}

	a.runner = pipeline.NewRunner(&pipeline.Config{Scoring: scoringConfig}, store, pipeline.Deps{
		Extractor: extractor,
		Enroller:  a.scheduler,
		Logger:    logger,
	}, stages...)

	for _, st := range pipeline.Describe(stages) {
		logger.Debug("stage", zap.String("name", st.Name), zap.Bool("enabled", st.Enabled), zap.String("reason", st.Reason))
	}

	return a, nil
}

// followupsDisabledReason explains why the follow-ups stage must not run, or
// returns an empty string. A memory backend forgets sent steps at exit, so the
// next process would send them again.
func followupsDisabledReason(config *FollowupsConfig, backend, flagReason string) string {
	switch {
	case flagReason != "":
		return flagReason
	case config != nil && !config.Enabled:
		return "followups.enabled is false"
	case backend != backendRedis:
		return "the " + backend + " jobs backend does not remember sent follow-ups between runs"
	}
	return ""
}

// Close releases connections in reverse order of creation.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// pendingFollowups counts jobs still armed in the backend.
func (a *application) pendingFollowups(ctx context.Context) int {
	list, err := a.backend.jobs.List(ctx)
	if err != nil {
		a.logger.Warn("listing pending follow-ups", zap.Error(err))
		return 0
	}
	return len(list)
}
