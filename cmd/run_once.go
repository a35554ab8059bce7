package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run a single batch pass over the candidate table and exit",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		runOnce(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runOnceCmd)

	runOnceCmd.Flags().Bool("no-followups", false, "score candidates without enrolling them into the follow-up campaign")
}

func runOnce(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup()

	logger.Info("starting the resume-scorer", zap.String("version", version), zap.String("mode", "run-once"))

	disable := ""
	if noFollowups, _ := cmd.Flags().GetBool("no-followups"); noFollowups {
		disable = "--no-followups flag is set"
	}

	a, err := newApplication(ctx, config, logger, disable)
	if err != nil {
		logger.Fatal("preparing the batch pass", zap.Error(err), zap.String("hint", configHint))
	}
	defer a.Close()

	a.executor.Start(ctx)

	if err := runPass(ctx, a); err != nil {
		a.executor.Stop()
		logger.Fatal("batch pass failed", zap.Error(err))
	}

	// Steps due now, such as the first message of a new campaign, go out before exit.
	if _, err := a.executor.RunDue(ctx); err != nil {
		logger.Error("running due follow-ups", zap.Error(err))
	}
	a.executor.Stop()

	if pending := a.pendingFollowups(ctx); pending > 0 {
		logger.Info("later follow-ups stay armed in the jobs backend",
			zap.String("backend", a.backend.name),
			zap.Int("pending", pending),
			zap.String("hint", "run the schedule command to deliver them"),
		)
	}
}
