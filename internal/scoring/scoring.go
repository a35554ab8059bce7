// Package scoring turns candidate signals into a deterministic, auditable
// point breakdown under a swappable rule set.
package scoring

import (
	"regexp"
	"strings"

	"github.com/spigell/resume-scorer/internal/signals"
)

// Breakdown category keys.
const (
	CategoryEducation      = "education"
	CategoryTopTierCollege = "top_tier_college"
	CategoryExperience     = "experience"
	CategoryLocation       = "location"
	CategoryTagline        = "tagline"
	CategoryResumeQuality  = "resume_quality"
)

const (
	// WordsPerPoint is the resume length worth one resume quality point.
	WordsPerPoint = 50

	MinTotal = 0
	MaxTotal = 100
)

// Categories lists the breakdown keys in reporting order.
var Categories = []string{
	CategoryEducation,
	CategoryTopTierCollege,
	CategoryExperience,
	CategoryLocation,
	CategoryTagline,
	CategoryResumeQuality,
}

// Unicode word characters, so accented and non-Latin words count once.
var wordRe = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]+`)

// Input is what the engine reads from a candidate.
type Input struct {
	// Education holds derived education tags. When empty, tags are detected from ResumeText.
	Education        []string
	College          string
	ExperienceMonths int
	Location         string
	Tagline          string
	ResumeText       string
}

// Breakdown is the per-category result of one scoring call plus the clamped total.
type Breakdown struct {
	Points map[string]int
	Total  int
}

// Get returns the points for a category.
func (b Breakdown) Get(category string) int {
	return b.Points[category]
}

// Map flattens the breakdown into one map including the "total" key.
func (b Breakdown) Map() map[string]int {
	out := make(map[string]int, len(b.Points)+1)
	for k, v := range b.Points {
		out[k] = v
	}
	out["total"] = b.Total
	return out
}

// Score computes the breakdown for in under cfg. A nil cfg means Default().
func Score(in Input, cfg *Config) Breakdown {
	if cfg == nil {
		cfg = Default()
	}

	points := map[string]int{
		CategoryEducation:      educationPoints(in, cfg),
		CategoryTopTierCollege: topTierPoints(in.College, cfg),
		CategoryExperience:     experiencePoints(in.ExperienceMonths, cfg.ExperienceThreshold),
		CategoryLocation:       cfg.Location[in.Location],
		CategoryTagline:        taglinePoints(in.Tagline, cfg.ProfileTagline),
		CategoryResumeQuality:  resumeQualityPoints(in.ResumeText, cfg.ResumeQuality),
	}

	sum := 0
	for _, p := range points {
		sum += p
	}

	return Breakdown{Points: points, Total: clamp(sum, MinTotal, MaxTotal)}
}

// Highest value among matching tags, never the sum.
func educationPoints(in Input, cfg *Config) int {
	tags := in.Education
	if len(tags) == 0 {
		tags = signals.DetectEducation(in.ResumeText)
	}

	best := 0
	for _, tag := range tags {
		if p := cfg.Education[tag]; p > best {
			best = p
		}
	}
	return best
}

func topTierPoints(college string, cfg *Config) int {
	college = strings.ToLower(college)
	if college == "" {
		return 0
	}
	for _, name := range cfg.TopTierList {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" && strings.Contains(college, name) {
			return cfg.TopTierCollege
		}
	}
	return 0
}

func experiencePoints(months int, t ExperienceThreshold) int {
	if t.Months == nil || months < *t.Months {
		return 0
	}
	return t.Points
}

func taglinePoints(tagline string, points int) int {
	if strings.TrimSpace(tagline) == "" {
		return 0
	}
	return points
}

func resumeQualityPoints(text string, limit int) int {
	return min(limit, WordCount(text)/WordsPerPoint)
}

// WordCount counts runs of letters, digits and underscores.
func WordCount(text string) int {
	return len(wordRe.FindAllStringIndex(text, -1))
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
