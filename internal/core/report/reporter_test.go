package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HamiGames/Lucid-sub000/internal/core/domain"
)

func sampleRuns() []domain.PhaseRun {
	return []domain.PhaseRun{
		{
			PhaseID: "core",
			Ordinal: 1,
			State:   domain.PhasePassed,
			Verdict: domain.VerdictPassed,
			Records: []domain.HealthRecord{
				{Service: "db", Status: domain.HealthHealthy},
				{Service: "api", Status: domain.HealthHealthy},
			},
		},
		{
			PhaseID:      "edge",
			Ordinal:      2,
			State:        domain.PhaseFailed,
			Verdict:      domain.VerdictTimedOut,
			ErrorMessage: "health threshold 0.75 not met within wait budget",
			Records: []domain.HealthRecord{
				{Service: "proxy", Status: domain.HealthUnhealthy, ConsecutiveFailures: 12, Detail: "http probe: status 502"},
			},
		},
	}
}

func TestBuild(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rpt := Build("run-1", "lucid-main", "prod", sampleRuns(), now)

	assert.Equal(t, "run-1", rpt.RunID)
	assert.Equal(t, now, rpt.GeneratedAt)
	require.Len(t, rpt.Phases, 2)

	assert.Equal(t, domain.OverallHealthy, rpt.Phases[0].Status)
	assert.Empty(t, rpt.Phases[0].Remedial)

	assert.Equal(t, domain.OverallUnhealthy, rpt.Phases[1].Status)
	assert.NotEmpty(t, rpt.Phases[1].Remedial)

	// One failed phase makes the whole deployment unhealthy.
	assert.Equal(t, domain.OverallUnhealthy, rpt.Status)
	assert.Equal(t, 2, rpt.Status.ExitCode())
}

func TestBuild_PassedWithUnhealthyServiceIsWarning(t *testing.T) {
	runs := []domain.PhaseRun{{
		PhaseID: "core",
		Ordinal: 1,
		State:   domain.PhasePassed,
		Verdict: domain.VerdictPassed,
		Records: []domain.HealthRecord{
			{Service: "a", Status: domain.HealthHealthy},
			{Service: "b", Status: domain.HealthUnhealthy},
		},
	}}

	rpt := Build("", "", "", runs, time.Now())
	assert.Equal(t, domain.OverallWarning, rpt.Status)
	assert.Equal(t, 1, rpt.Status.ExitCode())
}

func TestBuild_PendingPhaseIsWarning(t *testing.T) {
	runs := []domain.PhaseRun{
		{PhaseID: "core", Ordinal: 1, State: domain.PhasePassed, Verdict: domain.VerdictPassed,
			Records: []domain.HealthRecord{{Service: "a", Status: domain.HealthHealthy}}},
		{PhaseID: "edge", Ordinal: 2, State: domain.PhasePending},
	}

	rpt := Build("", "", "", runs, time.Now())
	assert.Equal(t, domain.OverallWarning, rpt.Status)
}

func TestRender_Text(t *testing.T) {
	rpt := Build("run-1", "lucid-main", "prod", sampleRuns(), time.Now())

	out, err := Render(rpt, FormatText)
	require.NoError(t, err)

	assert.Contains(t, out, "deployment status: unhealthy")
	assert.Contains(t, out, "phase 1 core: passed")
	assert.Contains(t, out, "phase 2 edge: failed")
	assert.Contains(t, out, "proxy")
	assert.Contains(t, out, "12 consecutive failures")
	assert.Contains(t, out, "suggested action:")
}

func TestRender_JSON(t *testing.T) {
	rpt := Build("run-1", "lucid-main", "prod", sampleRuns(), time.Now())

	out, err := Render(rpt, FormatJSON)
	require.NoError(t, err)

	var decoded DeploymentReport
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, rpt.RunID, decoded.RunID)
	assert.Equal(t, rpt.Status, decoded.Status)
	require.Len(t, decoded.Phases, 2)
	assert.Equal(t, "core", decoded.Phases[0].PhaseID)
}

func TestRender_UnknownFormat(t *testing.T) {
	_, err := Render(DeploymentReport{}, Format("yaml"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	_, err = ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
