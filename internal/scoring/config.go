package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the declarative rule set consumed by Score. Zero values contribute
// zero points, so a partially filled config is always valid.
type Config struct {
	Education           map[string]int      `yaml:"education"`
	TopTierCollege      int                 `yaml:"top-tier-college"`
	TopTierList         []string            `yaml:"top-tier-list"`
	ExperienceThreshold ExperienceThreshold `yaml:"experience-threshold"`
	Location            map[string]int      `yaml:"location"`
	ProfileTagline      int                 `yaml:"profile-tagline"`
	ResumeQuality       int                 `yaml:"resume-quality"`
}

// ExperienceThreshold awards Points once experience reaches Months.
// A nil Months means the threshold is never reached.
type ExperienceThreshold struct {
	Months *int `yaml:"months"`
	Points int  `yaml:"points"`
}

// DefaultTopTierList is the college list used by Default.
var DefaultTopTierList = []string{"IIT", "NIT", "BITS"}

// Default returns the built-in scoring rules. Every call returns a fresh copy.
func Default() *Config {
	months := 5
	return &Config{
		Education: map[string]int{
			"btech": 10,
			"mtech": 12,
			"mba":   8,
		},
		TopTierCollege: 15,
		TopTierList:    append([]string(nil), DefaultTopTierList...),
		ExperienceThreshold: ExperienceThreshold{
			Months: &months,
			Points: 15,
		},
		Location: map[string]int{
			"Hyderabad": 15,
		},
		ProfileTagline: 10,
		ResumeQuality:  15,
	}
}

// LoadFile reads a YAML scoring config. Keys absent from the file contribute zero.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scoring config: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML scoring config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse scoring config: %w", err)
	}

	return &cfg, nil
}
