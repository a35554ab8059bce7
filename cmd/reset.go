package cmd

import (
	"context"
	"errors"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resetCmd = &cobra.Command{
	Use:   "reset-jobs",
	Short: "Remove every pending follow-up job and campaign enrollment",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		resetJobs(cmd)
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}

func resetJobs(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup()

	if err := validateJobsConfig(config); err != nil {
		logger.Fatal("checking the jobs backend", zap.Error(err), zap.String("hint", configHint))
	}

	if config.Jobs.Backend == backendMemory {
		logger.Info("nothing to reset", zap.String("reason", "the memory jobs backend keeps nothing between runs"))
		return
	}

	backend, err := newJobBackend(ctx, config.Jobs)
	if err != nil {
		logger.Fatal("connecting the jobs backend", zap.Error(err))
	}
	defer backend.close()

	pending, err := backend.jobs.List(ctx)
	if err != nil {
		logger.Fatal("listing pending jobs", zap.Error(err))
	}
	logger.Info("pending follow-ups", zap.Int("count", len(pending)), zap.String("namespace", config.Jobs.Namespace))

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		prompt := promptui.Prompt{
			Label:     "Remove every pending follow-up and enrollment",
			IsConfirm: true,
		}
		if _, err := prompt.Run(); err != nil {
			if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
				logger.Info("exiting", zap.String("reason", "reset not confirmed"))
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}

	if err := backend.jobs.Reset(ctx); err != nil {
		logger.Fatal("removing pending jobs", zap.Error(err))
	}
	if err := backend.enrollments.Reset(ctx); err != nil {
		logger.Fatal("removing enrollments", zap.Error(err))
	}

	logger.Info("follow-up state removed", zap.Int("jobs", len(pending)))
}
