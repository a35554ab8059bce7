package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-scorer/internal/logger"
)

const configHint = "set the value in resume-scorer.yaml, through its environment variable or a flag"

// setup builds the logger and reads the config. Failures are fatal.
func setup() (*zap.Logger, *Config) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return logger, config
}

// redacted returns a copy of the config without inline secrets.
func redacted(config *Config) *Config {
	c := *config
	if c.SMTP != nil {
		smtp := *c.SMTP
		if smtp.Password != "" {
			smtp.Password = "***"
		}
		c.SMTP = &smtp
	}
	if c.Store != nil {
		store := *c.Store
		if store.DatabaseURL != "" {
			store.DatabaseURL = "***"
		}
		c.Store = &store
	}
	return &c
}

// runPass executes one batch pass and logs its summary.
func runPass(ctx context.Context, a *application) error {
	summary, err := a.runner.Run(ctx)
	if err != nil {
		return err
	}

	a.logger.Info("batch pass finished",
		zap.String(logger.FieldRunID, summary.RunID),
		zap.Int("postings", summary.Postings),
		zap.Int("candidates", summary.Candidates),
		zap.Int("scored", summary.Scored),
		zap.Int("enrolled", summary.Enrolled),
		zap.Int("pending_followups", a.pendingFollowups(ctx)),
	)
	return nil
}
