package health

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/HamiGames/Lucid-sub000/internal/core/domain"
)

func records(statuses ...domain.HealthStatus) []domain.HealthRecord {
	out := make([]domain.HealthRecord, len(statuses))
	for i, s := range statuses {
		out[i] = domain.HealthRecord{Service: string(rune('a' + i)), Status: s}
	}
	return out
}

func TestVerdict(t *testing.T) {
	tests := []struct {
		name      string
		records   []domain.HealthRecord
		threshold float64
		want      domain.PhaseVerdict
	}{
		{
			name:      "all healthy",
			records:   records(domain.HealthHealthy, domain.HealthHealthy),
			threshold: 1.0,
			want:      domain.VerdictPassed,
		},
		{
			name: "three of four healthy meets 0.75",
			records: records(domain.HealthHealthy, domain.HealthHealthy,
				domain.HealthHealthy, domain.HealthUnhealthy),
			threshold: 0.75,
			want:      domain.VerdictPassed,
		},
		{
			name: "two of four healthy misses 0.75",
			records: records(domain.HealthHealthy, domain.HealthHealthy,
				domain.HealthUnhealthy, domain.HealthUnhealthy),
			threshold: 0.75,
			want:      domain.VerdictTimedOut,
		},
		{
			name: "threshold met but probe infra failed somewhere",
			records: records(domain.HealthHealthy, domain.HealthHealthy,
				domain.HealthHealthy, domain.HealthFailed),
			threshold: 0.75,
			want:      domain.VerdictDegraded,
		},
		{
			name:      "no records",
			records:   nil,
			threshold: 0.5,
			want:      domain.VerdictTimedOut,
		},
		{
			name:      "pending counts as not healthy",
			records:   records(domain.HealthHealthy, domain.HealthPending),
			threshold: 1.0,
			want:      domain.VerdictTimedOut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Verdict(tt.records, tt.threshold))
		})
	}
}

func TestVerdictMeetsThreshold(t *testing.T) {
	assert.True(t, VerdictMeetsThreshold(domain.VerdictPassed))
	assert.True(t, VerdictMeetsThreshold(domain.VerdictDegraded))
	assert.False(t, VerdictMeetsThreshold(domain.VerdictTimedOut))
}

func TestOverall(t *testing.T) {
	assert.Equal(t, domain.OverallUnhealthy, Overall(domain.PhaseHealthReport{
		Verdict: domain.VerdictTimedOut,
	}))

	assert.Equal(t, domain.OverallWarning, Overall(domain.PhaseHealthReport{
		Verdict: domain.VerdictPassed,
		Records: records(domain.HealthHealthy, domain.HealthUnhealthy),
	}))

	assert.Equal(t, domain.OverallHealthy, Overall(domain.PhaseHealthReport{
		Verdict: domain.VerdictPassed,
		Records: records(domain.HealthHealthy, domain.HealthHealthy),
	}))
}

func TestAggregateOverall(t *testing.T) {
	assert.Equal(t, domain.OverallUnhealthy, AggregateOverall(nil))

	assert.Equal(t, domain.OverallHealthy, AggregateOverall([]domain.OverallStatus{
		domain.OverallHealthy, domain.OverallHealthy,
	}))

	assert.Equal(t, domain.OverallWarning, AggregateOverall([]domain.OverallStatus{
		domain.OverallHealthy, domain.OverallWarning,
	}))

	assert.Equal(t, domain.OverallUnhealthy, AggregateOverall([]domain.OverallStatus{
		domain.OverallWarning, domain.OverallUnhealthy, domain.OverallHealthy,
	}))
}

func TestRemedialAction(t *testing.T) {
	all := RemedialAction(records(domain.HealthFailed, domain.HealthFailed))
	assert.Contains(t, all, "probe infrastructure unreachable")

	some := RemedialAction(records(domain.HealthFailed, domain.HealthUnhealthy))
	assert.Contains(t, some, "check connectivity")

	none := RemedialAction(records(domain.HealthUnhealthy, domain.HealthUnhealthy))
	assert.Contains(t, none, "inspect service logs")
}
