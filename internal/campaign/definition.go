package campaign

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Step is one outbound message of a campaign. OffsetDays counts from 1: step
// with offset 1 fires at the campaign start.
type Step struct {
	OffsetDays int    `mapstructure:"offset-days" json:"offset_days"`
	Message    string `mapstructure:"message" json:"message"`
}

// Definition is the ordered list of campaign steps. Steps are 1-indexed.
type Definition struct {
	Steps []Step
}

// DefaultDefinition returns the built-in eight step campaign.
func DefaultDefinition() Definition {
	return Definition{Steps: []Step{
		{OffsetDays: 1, Message: "Thanks for applying - we received your resume."},
		{OffsetDays: 2, Message: "Reminder: We are reviewing your application."},
		{OffsetDays: 4, Message: "Update: Your application is under consideration."},
		{OffsetDays: 7, Message: "Interview scheduling - next steps."},
		{OffsetDays: 10, Message: "Final reminder - keep an eye on your inbox."},
		{OffsetDays: 14, Message: "Status update from recruitment team."},
		{OffsetDays: 18, Message: "Last call for confirmation."},
		{OffsetDays: 24, Message: "Closing the application process. Thank you."},
	}}
}

// Len returns the number of steps.
func (d Definition) Len() int {
	return len(d.Steps)
}

// Validate checks that offsets are positive and strictly increasing and that
// every step carries a message.
func (d Definition) Validate() error {
	if len(d.Steps) == 0 {
		return errors.New("campaign has no steps")
	}

	prev := 0
	for i, s := range d.Steps {
		if s.OffsetDays < 1 {
			return fmt.Errorf("step %d: offset must be at least 1 day, got %d", i+1, s.OffsetDays)
		}
		if s.OffsetDays <= prev {
			return fmt.Errorf("step %d: offset %d does not follow %d", i+1, s.OffsetDays, prev)
		}
		if strings.TrimSpace(s.Message) == "" {
			return fmt.Errorf("step %d: message is empty", i+1)
		}
		prev = s.OffsetDays
	}

	return nil
}

// RunAt returns the absolute fire time of a step offset relative to start.
func RunAt(start time.Time, offsetDays int) time.Time {
	return start.Add(time.Duration(offsetDays-1) * 24 * time.Hour)
}

// JobID is the deterministic identity of one campaign step for one candidate.
func JobID(candidateID string, step int) string {
	return fmt.Sprintf("followup-%s-%d", candidateID, step)
}
