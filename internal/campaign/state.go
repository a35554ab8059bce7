package campaign

import (
	"fmt"
	"slices"
	"time"
)

// State of a candidate campaign.
//
//	NOT_STARTED ──► ACTIVE ──► COMPLETED
//	                  │ ▲
//	                  └─┘ re-arm
//
// COMPLETED is terminal.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateActive     State = "ACTIVE"
	StateCompleted  State = "COMPLETED"
)

var validTransitions = map[State][]State{
	StateNotStarted: {StateActive},
	StateActive:     {StateActive, StateCompleted},
}

// ParseState converts a raw string to a State.
func ParseState(s string) (State, error) {
	st := State(s)
	switch st {
	case StateNotStarted, StateActive, StateCompleted:
		return st, nil
	}
	return "", fmt.Errorf("unknown campaign state %q", s)
}

// IsTransitionAllowed reports whether moving from -> to is permitted.
func IsTransitionAllowed(from, to State) bool {
	return slices.Contains(validTransitions[from], to)
}

// Enrollment is the persisted campaign state of one candidate.
type Enrollment struct {
	CandidateID string    `json:"candidate_id"`
	Email       string    `json:"email"`
	State       State     `json:"state"`
	Start       time.Time `json:"start"`
	Steps       int       `json:"steps"`
	Fired       []int     `json:"fired,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasFired reports whether the step already fired.
func (e Enrollment) HasFired(step int) bool {
	return slices.Contains(e.Fired, step)
}

// Remaining returns how many steps have not fired yet.
func (e Enrollment) Remaining() int {
	return max(0, e.Steps-len(e.Fired))
}

// activate moves the enrollment to ACTIVE with a new start, keeping fired steps.
func (e Enrollment) activate(email string, start time.Time, steps int, now time.Time) (Enrollment, error) {
	if e.State == "" {
		e.State = StateNotStarted
	}
	if !IsTransitionAllowed(e.State, StateActive) {
		return e, fmt.Errorf("%w: candidate %s is %s", ErrCompleted, e.CandidateID, e.State)
	}

	e.Email = email
	e.State = StateActive
	e.Start = start
	e.Steps = steps
	e.UpdatedAt = now
	return e, nil
}

// markFired records a fired step and completes the campaign once every step fired.
func (e Enrollment) markFired(step int, now time.Time) Enrollment {
	if !e.HasFired(step) {
		e.Fired = append(e.Fired, step)
		slices.Sort(e.Fired)
	}
	if e.State == "" {
		e.State = StateActive
	}
	if e.Steps > 0 && len(e.Fired) >= e.Steps && IsTransitionAllowed(e.State, StateCompleted) {
		e.State = StateCompleted
	}
	e.UpdatedAt = now
	return e
}
