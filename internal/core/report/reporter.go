// Package report renders deployment status for humans and machines.
// Rendering is pure; callers pass a stable snapshot taken at report time.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HamiGames/Lucid-sub000/internal/core/domain"
	"github.com/HamiGames/Lucid-sub000/internal/core/health"
)

// =============================================================================
// Report Types
// =============================================================================

// Format selects the rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON:
		return Format(s), nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// PhaseReport is one phase's rendered view.
type PhaseReport struct {
	PhaseID  string                `json:"phase_id"`
	Ordinal  int                   `json:"ordinal"`
	State    domain.PhaseState     `json:"state"`
	Verdict  domain.PhaseVerdict   `json:"verdict,omitempty"`
	Status   domain.OverallStatus  `json:"status"`
	Error    string                `json:"error,omitempty"`
	Remedial string                `json:"remedial_action,omitempty"`
	Services []domain.HealthRecord `json:"services,omitempty"`
}

// DeploymentReport aggregates phase reports into the overall view.
type DeploymentReport struct {
	RunID       string               `json:"run_id,omitempty"`
	Cluster     string               `json:"cluster,omitempty"`
	Environment string               `json:"environment,omitempty"`
	Status      domain.OverallStatus `json:"status"`
	Phases      []PhaseReport        `json:"phases"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// =============================================================================
// Report Building
// =============================================================================

// Build assembles a deployment report from phase runs. The overall status
// uses the same three-level taxonomy as the phases.
func Build(runID, cluster, environment string, runs []domain.PhaseRun, now time.Time) DeploymentReport {
	rpt := DeploymentReport{
		RunID:       runID,
		Cluster:     cluster,
		Environment: environment,
		GeneratedAt: now,
	}

	var statuses []domain.OverallStatus
	for _, run := range runs {
		pr := PhaseReport{
			PhaseID:  run.PhaseID,
			Ordinal:  run.Ordinal,
			State:    run.State,
			Verdict:  run.Verdict,
			Error:    run.ErrorMessage,
			Services: run.Records,
		}

		switch run.State {
		case domain.PhaseFailed:
			pr.Status = domain.OverallUnhealthy
			pr.Remedial = health.RemedialAction(run.Records)
		case domain.PhasePassed:
			pr.Status = health.Overall(domain.PhaseHealthReport{
				Verdict: run.Verdict,
				Records: run.Records,
			})
		default:
			// Phases still in flight or never reached count as warnings so
			// a partial run is never reported fully healthy.
			pr.Status = domain.OverallWarning
		}

		statuses = append(statuses, pr.Status)
		rpt.Phases = append(rpt.Phases, pr)
	}

	rpt.Status = health.AggregateOverall(statuses)
	return rpt
}

// =============================================================================
// Rendering
// =============================================================================

// Render renders a report in the requested format.
func Render(rpt DeploymentReport, format Format) (string, error) {
	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(rpt, "", "  ")
		if err != nil {
			return "", err
		}
		return string(out) + "\n", nil
	case FormatText, "":
		return renderText(rpt), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func renderText(rpt DeploymentReport) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "deployment status: %s", rpt.Status)
	if rpt.Cluster != "" {
		fmt.Fprintf(&sb, " (cluster %s)", rpt.Cluster)
	}
	sb.WriteString("\n")

	for _, phase := range rpt.Phases {
		fmt.Fprintf(&sb, "phase %d %s: %s", phase.Ordinal, phase.PhaseID, phase.State)
		if phase.Verdict != "" {
			fmt.Fprintf(&sb, " (%s)", phase.Verdict)
		}
		sb.WriteString("\n")

		for _, svc := range phase.Services {
			fmt.Fprintf(&sb, "  %-24s %s", svc.Service, svc.Status)
			if svc.ConsecutiveFailures > 0 {
				fmt.Fprintf(&sb, " (%d consecutive failures)", svc.ConsecutiveFailures)
			}
			if svc.Detail != "" {
				fmt.Fprintf(&sb, " - %s", svc.Detail)
			}
			sb.WriteString("\n")
		}

		if phase.Error != "" {
			fmt.Fprintf(&sb, "  error: %s\n", phase.Error)
		}
		if phase.Remedial != "" {
			fmt.Fprintf(&sb, "  suggested action: %s\n", phase.Remedial)
		}
	}

	return sb.String()
}
