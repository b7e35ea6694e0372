// Package domain contains the orchestrator's core entities and state
// machines. This is part of the Functional Core - no I/O here.
package domain

import "time"

// =============================================================================
// Health Status
// =============================================================================

// HealthStatus is the per-service probe outcome.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthPending   HealthStatus = "pending"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
	// HealthFailed means the probe infrastructure itself was unreachable
	// (runtime down, exec channel broken). Kept distinct from unhealthy so
	// operators don't misdiagnose platform problems as application bugs.
	HealthFailed HealthStatus = "failed"
)

// HealthRecord is the result of probing one service. Records are ephemeral;
// they are recreated each check cycle and only persisted when snapshotted
// into a revision.
type HealthRecord struct {
	Service             string       `json:"service"`
	Status              HealthStatus `json:"status"`
	LastChecked         time.Time    `json:"last_checked"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	Detail              string       `json:"detail,omitempty"`
}

// =============================================================================
// Phase Verdict
// =============================================================================

// PhaseVerdict classifies the outcome of a phase health-check window.
type PhaseVerdict string

const (
	VerdictPassed   PhaseVerdict = "passed"    // threshold met
	VerdictDegraded PhaseVerdict = "degraded"  // some unhealthy but non-gating
	VerdictTimedOut PhaseVerdict = "timed_out" // threshold never met within max wait
)

// PhaseHealthReport aggregates one phase's health records and verdict.
type PhaseHealthReport struct {
	PhaseID   string         `json:"phase_id"`
	Verdict   PhaseVerdict   `json:"verdict"`
	Threshold float64        `json:"threshold"`
	Records   []HealthRecord `json:"records"`
	Rounds    int            `json:"rounds"`
	Elapsed   time.Duration  `json:"elapsed"`
}

// HealthyFraction returns the fraction of records reporting healthy.
func (r PhaseHealthReport) HealthyFraction() float64 {
	if len(r.Records) == 0 {
		return 0
	}
	healthy := 0
	for _, rec := range r.Records {
		if rec.Status == HealthHealthy {
			healthy++
		}
	}
	return float64(healthy) / float64(len(r.Records))
}

// =============================================================================
// Overall Taxonomy
// =============================================================================

// OverallStatus is the three-level scale shared by per-phase and whole
// deployment reporting, so CLI and machine consumers see one taxonomy.
type OverallStatus string

const (
	OverallHealthy   OverallStatus = "healthy"
	OverallWarning   OverallStatus = "warning"
	OverallUnhealthy OverallStatus = "unhealthy"
)

// ExitCode maps an overall status to the CLI exit code.
func (s OverallStatus) ExitCode() int {
	switch s {
	case OverallHealthy:
		return 0
	case OverallWarning:
		return 1
	default:
		return 2
	}
}
