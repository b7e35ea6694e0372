// Package health provides pure functions for health aggregation logic.
// No I/O here; probing lives in the shell.
package health

import "github.com/HamiGames/Lucid-sub000/internal/core/domain"

// =============================================================================
// Health Aggregation (Pure Functions)
// =============================================================================

// Verdict classifies a phase from its health records against a threshold.
// Threshold met means the phase passes even if some services stay
// unhealthy. Degraded marks the narrower case where the threshold was met
// but some probes couldn't reach the runtime at all - the phase proceeds,
// but operators should look at the platform, not the applications.
func Verdict(records []domain.HealthRecord, threshold float64) domain.PhaseVerdict {
	if len(records) == 0 {
		return domain.VerdictTimedOut
	}

	healthy, failed := 0, 0
	for _, r := range records {
		switch r.Status {
		case domain.HealthHealthy:
			healthy++
		case domain.HealthFailed:
			failed++
		}
	}

	fraction := float64(healthy) / float64(len(records))
	switch {
	case fraction < threshold:
		return domain.VerdictTimedOut
	case failed > 0:
		return domain.VerdictDegraded
	default:
		return domain.VerdictPassed
	}
}

// VerdictMeetsThreshold reports whether a verdict lets the deployment
// proceed to the next phase.
func VerdictMeetsThreshold(v domain.PhaseVerdict) bool {
	return v == domain.VerdictPassed || v == domain.VerdictDegraded
}

// Overall maps a phase report onto the shared three-level taxonomy. A
// passed phase that is carrying unhealthy services is a warning, not a
// clean bill of health.
func Overall(report domain.PhaseHealthReport) domain.OverallStatus {
	if report.Verdict == domain.VerdictTimedOut {
		return domain.OverallUnhealthy
	}
	for _, r := range report.Records {
		if r.Status != domain.HealthHealthy {
			return domain.OverallWarning
		}
	}
	return domain.OverallHealthy
}

// AggregateOverall reduces per-phase statuses to one deployment status.
// Any unhealthy phase makes the deployment unhealthy; any warning makes it
// warning; otherwise healthy.
func AggregateOverall(statuses []domain.OverallStatus) domain.OverallStatus {
	if len(statuses) == 0 {
		return domain.OverallUnhealthy
	}
	overall := domain.OverallHealthy
	for _, s := range statuses {
		switch s {
		case domain.OverallUnhealthy:
			return domain.OverallUnhealthy
		case domain.OverallWarning:
			overall = domain.OverallWarning
		}
	}
	return overall
}

// =============================================================================
// Remedial Actions (Pure Functions)
// =============================================================================

// RemedialAction suggests the operator's next step for a failed phase.
func RemedialAction(records []domain.HealthRecord) string {
	failed := 0
	for _, r := range records {
		if r.Status == domain.HealthFailed {
			failed++
		}
	}
	if failed == len(records) && len(records) > 0 {
		return "probe infrastructure unreachable for all services; check the container runtime, then retry the phase"
	}
	if failed > 0 {
		return "some probes could not reach the runtime; check connectivity, then retry the phase or roll back"
	}
	return "services stayed unhealthy past the deadline; inspect service logs, then roll back or force-clean"
}
