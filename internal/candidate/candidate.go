// Package candidate maps store rows to candidates and back.
package candidate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/resume-scorer/internal/logger"
	"github.com/spigell/resume-scorer/internal/records"
	"github.com/spigell/resume-scorer/internal/scoring"
	"github.com/spigell/resume-scorer/internal/util"
)

// Column names known to the schema.
const (
	ColumnID               = "id"
	ColumnEmail            = "email"
	ColumnLocation         = "location"
	ColumnCollege          = "college"
	ColumnTagline          = "tagline"
	ColumnResumeText       = "resume_text"
	ColumnResumeURL        = "resume_url"
	ColumnResumePath       = "resume_path"
	ColumnExperienceMonths = "experience_months"
	ColumnEducationText    = "education_text"
	ColumnScoreTotal       = "score_total"
	ColumnScoreBreakdown   = "score_breakdown"
)

// OutputColumns are added to the candidate table when absent.
var OutputColumns = []string{
	ColumnResumeText,
	ColumnEducationText,
	ColumnLocation,
	ColumnExperienceMonths,
	ColumnScoreTotal,
	ColumnScoreBreakdown,
}

// Candidate is one applicant for a single pass.
type Candidate struct {
	ID         string `mapstructure:"id"`
	Email      string `mapstructure:"email"`
	Location   string `mapstructure:"location"`
	College    string `mapstructure:"college"`
	Tagline    string `mapstructure:"tagline"`
	ResumeText string `mapstructure:"resume_text"`
	ResumeURL  string `mapstructure:"resume_url"`
	ResumePath string `mapstructure:"resume_path"`

	// ExperienceMonths of 0 means not supplied.
	ExperienceMonths int                `mapstructure:"-"`
	EducationText    []string           `mapstructure:"-"`
	Score            *scoring.Breakdown `mapstructure:"-"`

	// Extra keeps the columns the schema does not interpret.
	Extra map[string]string `mapstructure:"-"`
}

// FromRecord decodes a store row. A malformed experience_months is logged and read as 0.
func FromRecord(r records.Row, log *zap.Logger) (*Candidate, error) {
	c := &Candidate{}
	var md mapstructure.Metadata

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:         &md,
		Result:           c,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}

	row := make(map[string]string, len(r))
	for k, v := range r {
		row[k] = strings.TrimSpace(v)
	}
	if err := dec.Decode(row); err != nil {
		return nil, fmt.Errorf("decode candidate row: %w", err)
	}

	c.Extra = make(map[string]string, len(md.Unused))
	for _, k := range md.Unused {
		c.Extra[k] = r[k]
	}

	if raw := row[ColumnExperienceMonths]; raw != "" {
		months, err := parseMonths(raw)
		if err != nil {
			logger.WithCandidate(log, c.Identity(), c.Email).Warn("ignoring experience_months",
				zap.String("value", util.TruncateForLog(raw, 40)),
				zap.Error(err),
			)
		}
		c.ExperienceMonths = months
	}

	return c, nil
}

// parseMonths accepts integers and integral floats such as "12.0".
func parseMonths(raw string) (int, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return n, nil
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New("not a number")
	}
	if f < 0 {
		return 0, fmt.Errorf("negative value %v", f)
	}
	return int(f), nil
}

// Identity is the campaign namespace of the candidate: ID, falling back to Email.
func (c *Candidate) Identity() string {
	return util.FirstNonEmpty(c.ID, c.Email)
}

// ScoringInput returns the attributes the scoring engine reads.
func (c *Candidate) ScoringInput() scoring.Input {
	return scoring.Input{
		Education:        c.EducationText,
		College:          c.College,
		ExperienceMonths: c.ExperienceMonths,
		Location:         c.Location,
		Tagline:          c.Tagline,
		ResumeText:       c.ResumeText,
	}
}

// ToRecord flattens the candidate back into a row. Unknown columns are kept as read.
func (c *Candidate) ToRecord() (records.Row, error) {
	r := make(records.Row, len(c.Extra)+12)
	for k, v := range c.Extra {
		r[k] = v
	}

	set := func(key, value string) {
		if _, ok := r[key]; ok || value != "" {
			r[key] = value
		}
	}

	set(ColumnID, c.ID)
	set(ColumnEmail, c.Email)
	set(ColumnCollege, c.College)
	set(ColumnTagline, c.Tagline)
	set(ColumnResumeURL, c.ResumeURL)
	set(ColumnResumePath, c.ResumePath)

	r[ColumnResumeText] = c.ResumeText
	r[ColumnLocation] = c.Location
	r[ColumnEducationText] = strings.Join(c.EducationText, "\n")
	r[ColumnExperienceMonths] = strconv.Itoa(c.ExperienceMonths)

	if c.Score != nil {
		breakdown, err := json.Marshal(c.Score.Map())
		if err != nil {
			return nil, fmt.Errorf("encode score breakdown: %w", err)
		}
		r[ColumnScoreTotal] = strconv.Itoa(c.Score.Total)
		r[ColumnScoreBreakdown] = string(breakdown)
	}

	return r, nil
}

// CheckIdentities returns the identities shared by more than one candidate,
// plus the candidates without any identity, keyed by "".
func CheckIdentities(list []*Candidate) map[string]int {
	seen := make(map[string]int, len(list))
	for _, c := range list {
		seen[c.Identity()]++
	}

	dup := make(map[string]int)
	for id, n := range seen {
		if n > 1 || id == "" {
			dup[id] = n
		}
	}
	return dup
}
