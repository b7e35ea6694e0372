package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HamiGames/Lucid-sub000/internal/core/domain"
	"github.com/HamiGames/Lucid-sub000/internal/core/report"
)

func statusStub() report.DeploymentReport {
	return report.DeploymentReport{
		RunID:   "run-1",
		Cluster: "lucid-main",
		Status:  domain.OverallHealthy,
		Phases: []report.PhaseReport{
			{PhaseID: "core", Ordinal: 1, State: domain.PhasePassed, Verdict: domain.VerdictPassed, Status: domain.OverallHealthy},
		},
		GeneratedAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}
}

func newTestServer() *Server {
	return NewServer("127.0.0.1:0", statusStub, nil)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer()
	rec := httptest.NewRecorder()

	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestStatus_JSONByDefault(t *testing.T) {
	srv := newTestServer()
	rec := httptest.NewRecorder()

	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var rpt report.DeploymentReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rpt))
	assert.Equal(t, "run-1", rpt.RunID)
	assert.Equal(t, domain.OverallHealthy, rpt.Status)
	require.Len(t, rpt.Phases, 1)
	assert.Equal(t, "core", rpt.Phases[0].PhaseID)
}

func TestStatus_TextFormat(t *testing.T) {
	srv := newTestServer()
	rec := httptest.NewRecorder()

	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status?format=text", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "core")
	assert.Contains(t, rec.Body.String(), "lucid-main")
}

func TestStatus_MethodNotAllowed(t *testing.T) {
	srv := newTestServer()
	rec := httptest.NewRecorder()

	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
