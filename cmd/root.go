package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/resume-scorer/internal/campaign"
)

const (
	app = "resume-scorer"
)

type Config struct {
	Store     *StoreConfig     `mapstructure:"store"`
	Scoring   *ScoringConfig   `mapstructure:"scoring"`
	Followups *FollowupsConfig `mapstructure:"followups"`
	SMTP      *SMTPConfig      `mapstructure:"smtp"`
	Jobs      *JobsConfig      `mapstructure:"jobs"`
	Fetch     *FetchConfig     `mapstructure:"fetch"`
}

type StoreConfig struct {
	Backend         string `mapstructure:"backend"`
	Dir             string `mapstructure:"dir"`
	DatabaseURL     string `mapstructure:"database-url"`
	DatabaseURLFile string `mapstructure:"database-url-file"`
	Postings        string `mapstructure:"postings"`
	Candidates      string `mapstructure:"candidates"`
}

type ScoringConfig struct {
	File string `mapstructure:"file"`
}

type FollowupsConfig struct {
	Enabled bool            `mapstructure:"enabled"`
	Subject string          `mapstructure:"subject"`
	Steps   []campaign.Step `mapstructure:"steps"`
}

type SMTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	PasswordFile string `mapstructure:"password-file"`
	From         string `mapstructure:"from"`
}

type JobsConfig struct {
	Backend      string        `mapstructure:"backend"`
	RedisURL     string        `mapstructure:"redis-url"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
	Namespace    string        `mapstructure:"namespace"`
}

type FetchConfig struct {
	UserAgent string        `mapstructure:"user-agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "resume-scorer scores candidate resumes and runs follow-up e-mail campaigns",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

var envBindings = map[string]string{
	"store.postings":   "RESUME_SCORER_POSTINGS",
	"store.candidates": "RESUME_SCORER_CANDIDATES",
	"smtp.host":        "SMTP_HOST",
	"smtp.port":        "SMTP_PORT",
	"smtp.user":        "SMTP_USER",
	"smtp.from":        "FROM_EMAIL",
	"jobs.redis-url":   "REDIS_URL",
}

func init() {
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is resume-scorer.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("postings", "", "postings table identifier")
	rootCmd.PersistentFlags().String("candidates", "", "candidates table identifier")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("store.postings", rootCmd.PersistentFlags().Lookup("postings"))
	viper.BindPFlag("store.candidates", rootCmd.PersistentFlags().Lookup("candidates"))
}

func setDefaults() {
	viper.SetDefault("store.backend", backendCSV)
	viper.SetDefault("store.dir", ".")
	viper.SetDefault("followups.enabled", true)
	viper.SetDefault("followups.subject", campaign.DefaultSubject)
	viper.SetDefault("smtp.host", "smtp.gmail.com")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("jobs.backend", backendMemory)
	viper.SetDefault("jobs.poll-interval", time.Second)
	viper.SetDefault("jobs.namespace", app)
	viper.SetDefault("fetch.user-agent", "spigell/resume-scorer")
	viper.SetDefault("fetch.timeout", 20*time.Second)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Everything can come from the environment, so only an explicit or broken file is fatal.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
