package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultInterval = 12 * time.Hour

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run batch passes periodically and deliver follow-ups until interrupted",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		schedule(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().Duration("interval", defaultInterval, "time between batch passes")
}

func schedule(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()

	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		logger.Fatal("interval must be positive", zap.Duration("interval", interval))
	}

	logger.Info("starting the resume-scorer",
		zap.String("version", version),
		zap.String("mode", "schedule"),
		zap.Duration("interval", interval),
	)

	a, err := newApplication(ctx, config, logger, "")
	if err != nil {
		logger.Fatal("preparing the batch pass", zap.Error(err), zap.String("hint", configHint))
	}
	defer a.Close()

	a.executor.Start(ctx)

	cronLog := newCronLogger(logger)
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	pass := func() {
		if err := runPass(ctx, a); err != nil {
			logger.Error("batch pass failed", zap.Error(err))
		}
	}

	spec := fmt.Sprintf("@every %s", interval)
	if _, err := c.AddFunc(spec, pass); err != nil {
		logger.Fatal("registering the batch pass", zap.Error(err), zap.String("spec", spec))
	}
	c.Start()
	logger.Info("cron started", zap.String("spec", spec))

	// Run immediately on startup so candidates are scored without waiting for the first tick.
	pass()

	<-ctx.Done()
	logger.Info("shutting down", zap.String("reason", "signal received"))

	<-c.Stop().Done()
	a.executor.Stop()
}
