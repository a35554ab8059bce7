package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resume-scorer/internal/scoring"
	"github.com/spigell/resume-scorer/internal/signals"
	"github.com/spigell/resume-scorer/internal/textextract"
)

var scoreCmd = &cobra.Command{
	Use:   "score <resume-file>",
	Short: "Extract and score a single resume file, printing the breakdown as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		scoreFile(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().String("college", "", "college of the candidate")
	scoreCmd.Flags().String("tagline", "", "profile tagline of the candidate")
	scoreCmd.Flags().String("location", "", "explicit location, overrides the detected one")
	scoreCmd.Flags().Int("experience-months", 0, "explicit experience in months, overrides the estimate")
}

type scoreReport struct {
	Source           string         `json:"source"`
	Words            int            `json:"words"`
	Education        []string       `json:"education"`
	Location         string         `json:"location,omitempty"`
	ExperienceMonths int            `json:"experience_months"`
	Breakdown        map[string]int `json:"breakdown"`
}

func scoreFile(cmd *cobra.Command, path string) {
	ctx := context.Background()
	logger, config := setup()

	scoringConfig, err := loadScoring(config.Scoring)
	if err != nil {
		logger.Fatal("loading scoring config", zap.Error(err))
	}

	extractor, err := newExtractor(ctx, config.Fetch, logger)
	if err != nil {
		logger.Fatal("creating the text extractor", zap.Error(err))
	}

	text := extractor.Extract(ctx, textextract.Source{Path: path})
	if text == "" {
		logger.Warn("no text extracted; every text based category scores zero", zap.String("path", path))
	}

	sig := signals.Extract(text)
	college, _ := cmd.Flags().GetString("college")
	tagline, _ := cmd.Flags().GetString("tagline")
	if location, _ := cmd.Flags().GetString("location"); location != "" {
		sig.Location = location
	}
	if months, _ := cmd.Flags().GetInt("experience-months"); months > 0 {
		sig.ExperienceMonths = months
	}

	b := scoring.Score(scoring.Input{
		Education:        sig.Education,
		College:          college,
		ExperienceMonths: sig.ExperienceMonths,
		Location:         sig.Location,
		Tagline:          tagline,
		ResumeText:       text,
	}, scoringConfig)

	out, err := json.MarshalIndent(scoreReport{
		Source:           path,
		Words:            scoring.WordCount(text),
		Education:        sig.Education,
		Location:         sig.Location,
		ExperienceMonths: sig.ExperienceMonths,
		Breakdown:        b.Map(),
	}, "", "  ")
	if err != nil {
		logger.Fatal("encoding the breakdown", zap.Error(err))
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))
}
