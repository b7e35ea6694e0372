package domain

import "time"

// =============================================================================
// Revision Types
// =============================================================================

// RevisionAction names the state-changing action a revision records.
type RevisionAction string

// Emergency teardown deliberately writes no revision, so it has no action
// constant here.
const (
	ActionProvision RevisionAction = "provision"
	ActionLaunch    RevisionAction = "launch"
	ActionRollback  RevisionAction = "rollback"
)

// LaunchOutcome records how a single service launch ended. Pending marks a
// provision snapshot taken before any launch attempt.
type LaunchOutcome string

const (
	OutcomePending LaunchOutcome = "pending"
	OutcomeStarted LaunchOutcome = "started"
	OutcomeFailed  LaunchOutcome = "failed"
	OutcomeSkipped LaunchOutcome = "skipped"
)

// ServiceSnapshot is the resolved launch state of one service at revision
// time. Env holds the fully resolved environment; secret values are stored
// by reference name, never in the clear.
type ServiceSnapshot struct {
	Name        string            `json:"name"`
	Image       string            `json:"image"`
	Network     string            `json:"network"`
	Port        int               `json:"port,omitempty"`
	HostPort    int               `json:"host_port,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	ContainerID string            `json:"container_id,omitempty"`
	Outcome     LaunchOutcome     `json:"outcome"`
	Error       string            `json:"error,omitempty"`
}

// Revision is an immutable snapshot of a phase's launch state. IDs are
// monotonic per deployment; PreviousID forms a singly linked history per
// phase. History is append-only - rollback appends a new revision pointing
// back, it never deletes.
type Revision struct {
	ID         int64                      `json:"id"`
	RunID      string                     `json:"run_id"`
	PhaseID    string                     `json:"phase_id"`
	Action     RevisionAction             `json:"action"`
	Snapshot   map[string]ServiceSnapshot `json:"snapshot"`
	PreviousID *int64                     `json:"previous_id,omitempty"`
	CreatedAt  time.Time                  `json:"created_at"`
}

// ServiceNames returns the snapshot's service names in stable order.
func (r *Revision) ServiceNames() []string {
	names := make([]string, 0, len(r.Snapshot))
	for name := range r.Snapshot {
		names = append(names, name)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}
