package domain

import (
	"errors"
	"time"
)

// =============================================================================
// Phase Errors
// =============================================================================

var (
	ErrInvalidTransition = errors.New("invalid phase state transition")
)

// =============================================================================
// Phase State Machine
// =============================================================================

// PhaseState is the orchestration state of one phase.
type PhaseState string

const (
	PhasePending        PhaseState = "pending"
	PhaseProvisioning   PhaseState = "provisioning"
	PhaseLaunching      PhaseState = "launching"
	PhaseHealthChecking PhaseState = "health_checking"
	PhasePassed         PhaseState = "passed"
	PhaseFailed         PhaseState = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s PhaseState) Terminal() bool {
	return s == PhasePassed || s == PhaseFailed
}

// validTransitions defines the allowed phase state transitions. Any state
// may fail; only the happy path moves forward.
var validTransitions = map[PhaseState][]PhaseState{
	PhasePending:        {PhaseProvisioning, PhaseFailed},
	PhaseProvisioning:   {PhaseLaunching, PhaseFailed},
	PhaseLaunching:      {PhaseHealthChecking, PhaseFailed},
	PhaseHealthChecking: {PhasePassed, PhaseFailed},
	PhasePassed:         {},
	PhaseFailed:         {},
}

// ValidateTransition checks if a phase state transition is valid.
func ValidateTransition(from, to PhaseState) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return ErrInvalidTransition
}

// =============================================================================
// Phase Run
// =============================================================================

// PhaseRun tracks one phase through a single deployment run.
type PhaseRun struct {
	PhaseID      string         `json:"phase_id"`
	Ordinal      int            `json:"ordinal"`
	State        PhaseState     `json:"state"`
	Verdict      PhaseVerdict   `json:"verdict,omitempty"`
	Records      []HealthRecord `json:"records,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
}

// Transition attempts to move the phase run to a new state.
func (p *PhaseRun) Transition(to PhaseState, now time.Time) error {
	if err := ValidateTransition(p.State, to); err != nil {
		return err
	}
	if p.State == PhasePending {
		t := now
		p.StartedAt = &t
	}
	p.State = to
	if to.Terminal() {
		t := now
		p.FinishedAt = &t
	}
	return nil
}

// Fail moves the phase run to failed with a reason, from any live state.
func (p *PhaseRun) Fail(reason string, now time.Time) {
	if p.State.Terminal() {
		return
	}
	p.State = PhaseFailed
	p.ErrorMessage = reason
	t := now
	p.FinishedAt = &t
}
