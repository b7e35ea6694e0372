package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HamiGames/Lucid-sub000/internal/core/domain"
	"github.com/HamiGames/Lucid-sub000/internal/core/topology"
	"github.com/HamiGames/Lucid-sub000/internal/shell/launcher"
	"github.com/HamiGames/Lucid-sub000/internal/shell/provision"
	"github.com/HamiGames/Lucid-sub000/internal/shell/rollback"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeProvisioner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeProvisioner) EnsurePhase(_ context.Context, _ []topology.Network, _ []string, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type fakeLauncher struct {
	mu       sync.Mutex
	launched []string
	stopped  []string
	failFor  map[string]bool
}

func (f *fakeLauncher) Launch(_ context.Context, svc topology.Service, _ launcher.RunContext) (domain.ServiceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launched = append(f.launched, svc.Name)
	snap := domain.ServiceSnapshot{Name: svc.Name, Image: svc.Image, Outcome: domain.OutcomeStarted}
	if f.failFor[svc.Name] {
		snap.Outcome = domain.OutcomeFailed
		snap.Error = "boom"
		return snap, launcher.NewLaunchError("Launch", svc.Name, "boom", nil)
	}
	return snap, nil
}

func (f *fakeLauncher) Stop(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, name)
	return nil
}

func (f *fakeLauncher) SupportsKind(kind topology.ServiceKind) bool {
	return kind == "" || kind == topology.KindContainer || kind == topology.KindBuild
}

type fakeMonitor struct {
	mu       sync.Mutex
	awaited  []string
	verdicts map[string]domain.PhaseVerdict
}

func (f *fakeMonitor) AwaitHealthy(_ context.Context, phase topology.Phase, services []topology.Service) domain.PhaseHealthReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awaited = append(f.awaited, phase.ID)

	verdict, ok := f.verdicts[phase.ID]
	if !ok {
		verdict = domain.VerdictPassed
	}
	report := domain.PhaseHealthReport{
		PhaseID:   phase.ID,
		Verdict:   verdict,
		Threshold: phase.Threshold(),
	}
	for _, svc := range services {
		status := domain.HealthHealthy
		if verdict == domain.VerdictTimedOut {
			status = domain.HealthUnhealthy
		}
		report.Records = append(report.Records, domain.HealthRecord{Service: svc.Name, Status: status})
	}
	return report
}

type fakeRollbacker struct {
	mu         sync.Mutex
	recorded   []string
	rolledBack []string
	noHistory  bool
}

func (f *fakeRollbacker) Record(_ context.Context, _, phaseID string, action domain.RevisionAction, _ map[string]domain.ServiceSnapshot) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, phaseID+"/"+string(action))
	return int64(len(f.recorded)), nil
}

func (f *fakeRollbacker) Rollback(_ context.Context, phaseID string, _ *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noHistory {
		return rollback.NewRollbackError("Rollback", phaseID, "nothing recorded", rollback.ErrNoHistory)
	}
	f.rolledBack = append(f.rolledBack, phaseID)
	return nil
}

// =============================================================================
// Setup
// =============================================================================

func twoPhaseTopology() *topology.Topology {
	return &topology.Topology{
		Phases: []topology.Phase{
			{ID: "core", Ordinal: 1, Services: []string{"db", "api"}, HealthThreshold: 0.75},
			{ID: "edge", Ordinal: 2, Services: []string{"proxy"}},
		},
		Services: []topology.Service{
			{Name: "db", Network: "backend", Image: "postgres:16", Probe: topology.Probe{Type: topology.ProbeTCP, Port: 5432}},
			{Name: "api", Network: "backend", Image: "lucid/api", DependsOn: []string{"db"}, Probe: topology.Probe{Type: topology.ProbeHTTP, Path: "/healthz"}},
			{Name: "proxy", Network: "frontend", Image: "nginx:1.27", Probe: topology.Probe{Type: topology.ProbeTCP, Port: 443}},
		},
		Networks: []topology.Network{
			{Name: "backend", Subnet: "172.20.0.0/24"},
			{Name: "frontend", Subnet: "172.21.0.0/24"},
		},
	}
}

type fixture struct {
	provisioner *fakeProvisioner
	launcher    *fakeLauncher
	monitor     *fakeMonitor
	rollback    *fakeRollbacker
	orch        *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		provisioner: &fakeProvisioner{},
		launcher:    &fakeLauncher{failFor: make(map[string]bool)},
		monitor:     &fakeMonitor{verdicts: make(map[string]domain.PhaseVerdict)},
		rollback:    &fakeRollbacker{},
	}
	f.orch = New(f.provisioner, f.launcher, f.monitor, f.rollback, nil, nil)
	return f
}

// =============================================================================
// Tests
// =============================================================================

func TestDeploy_AllPhasesPass(t *testing.T) {
	f := newFixture()

	result, err := f.orch.Deploy(context.Background(), twoPhaseTopology(), Options{Cluster: "lucid-main"})
	require.NoError(t, err)
	require.Len(t, result.Runs, 2)

	assert.Equal(t, domain.PhasePassed, result.Runs[0].State)
	assert.Equal(t, domain.PhasePassed, result.Runs[1].State)
	assert.False(t, result.Failed())
	assert.False(t, result.Halted)

	// Phases run strictly in ordinal order; db launches before api.
	assert.Equal(t, []string{"db", "api", "proxy"}, f.launcher.launched)
	assert.Equal(t, []string{"core", "edge"}, f.monitor.awaited)

	// Every state-changing action leaves a revision: one provision and one
	// launch record per phase.
	assert.Equal(t, []string{
		"core/provision", "core/launch",
		"edge/provision", "edge/launch",
	}, f.rollback.recorded)
	assert.Equal(t, 2, f.provisioner.calls)
	assert.Empty(t, f.rollback.rolledBack)
	assert.NotEmpty(t, result.RunID)
}

func TestDeploy_FailedPhaseHaltsAndRollsBack(t *testing.T) {
	f := newFixture()
	f.monitor.verdicts["core"] = domain.VerdictTimedOut

	result, err := f.orch.Deploy(context.Background(), twoPhaseTopology(), Options{})
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseFailed, result.Runs[0].State)
	assert.Equal(t, domain.VerdictTimedOut, result.Runs[0].Verdict)
	assert.NotEmpty(t, result.Runs[0].ErrorMessage)
	assert.True(t, result.Halted)
	assert.True(t, result.Failed())

	// The failed phase is rolled back automatically; the next phase never
	// begins.
	assert.Equal(t, []string{"core"}, f.rollback.rolledBack)
	assert.Equal(t, domain.PhasePending, result.Runs[1].State)
	assert.NotContains(t, f.launcher.launched, "proxy")
	assert.Equal(t, []string{"core"}, f.monitor.awaited)
}

func TestDeploy_ContinueOnFailure(t *testing.T) {
	f := newFixture()
	f.monitor.verdicts["core"] = domain.VerdictTimedOut

	result, err := f.orch.Deploy(context.Background(), twoPhaseTopology(), Options{ContinueOnFailure: true})
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseFailed, result.Runs[0].State)
	assert.Equal(t, domain.PhasePassed, result.Runs[1].State)
	assert.False(t, result.Halted)
	assert.True(t, result.Failed())
	assert.Contains(t, f.launcher.launched, "proxy")
}

func TestDeploy_ProvisionConflictFailsBeforeLaunching(t *testing.T) {
	f := newFixture()
	f.provisioner.err = &provision.ConflictError{
		Resource: "network", Name: "backend", Field: "subnet",
		Want: "172.20.0.0/24", Got: "10.0.0.0/8",
	}

	result, err := f.orch.Deploy(context.Background(), twoPhaseTopology(), Options{})
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseFailed, result.Runs[0].State)
	assert.Contains(t, result.Runs[0].ErrorMessage, "subnet")
	assert.Empty(t, f.launcher.launched, "nothing launches after a provisioning conflict")
	assert.Empty(t, f.rollback.recorded, "failed provisioning leaves no revision")
	assert.True(t, result.Halted)
}

func TestDeploy_LaunchFailureDoesNotBlockHealthChecking(t *testing.T) {
	f := newFixture()
	f.launcher.failFor["api"] = true

	result, err := f.orch.Deploy(context.Background(), twoPhaseTopology(), Options{})
	require.NoError(t, err)

	// Both services got a launch attempt and the phase still reached its
	// health gate.
	assert.Contains(t, f.launcher.launched, "db")
	assert.Contains(t, f.launcher.launched, "api")
	assert.Contains(t, f.monitor.awaited, "core")
	assert.Equal(t, domain.PhasePassed, result.Runs[0].State)
}

func TestDeploy_RollbackWithoutHistoryIsNotAnExtraFailure(t *testing.T) {
	f := newFixture()
	f.monitor.verdicts["core"] = domain.VerdictTimedOut
	f.rollback.noHistory = true

	result, err := f.orch.Deploy(context.Background(), twoPhaseTopology(), Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFailed, result.Runs[0].State)
	assert.True(t, result.Halted)
}

func TestDeploy_AbortedContext(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.orch.Deploy(ctx, twoPhaseTopology(), Options{})
	require.NoError(t, err)
	assert.True(t, result.Halted)
	assert.Equal(t, domain.PhaseFailed, result.Runs[0].State)
	assert.Equal(t, "deployment aborted", result.Runs[0].ErrorMessage)
	assert.Empty(t, f.launcher.launched)
}

func TestDeploy_UnknownKindRejectedBeforeSideEffects(t *testing.T) {
	f := newFixture()
	topo := twoPhaseTopology()
	topo.Services[0].Kind = "lambda"

	_, err := f.orch.Deploy(context.Background(), topo, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, launcher.ErrUnknownKind)
	assert.Zero(t, f.provisioner.calls)
	assert.Empty(t, f.launcher.launched)
}

func TestDryRun_ZeroCollaboratorCalls(t *testing.T) {
	f := newFixture()

	plan := f.orch.DryRun(twoPhaseTopology(), Options{Cluster: "lucid-main", MaxWait: time.Minute})
	require.Len(t, plan.Phases, 2)
	assert.Equal(t, "core", plan.Phases[0].PhaseID)
	assert.Equal(t, "edge", plan.Phases[1].PhaseID)

	out := plan.RenderText()
	assert.Contains(t, out, "launch db")
	assert.Contains(t, out, "launch proxy")
	assert.Contains(t, out, "ensure network backend")

	assert.Zero(t, f.provisioner.calls)
	assert.Empty(t, f.launcher.launched)
	assert.Empty(t, f.monitor.awaited)
	assert.Empty(t, f.rollback.recorded)
}

func TestStopAll_ReverseOrder(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.orch.StopAll(context.Background(), twoPhaseTopology()))
	// Last phase first; within a phase, dependents before dependencies.
	assert.Equal(t, []string{"proxy", "api", "db"}, f.launcher.stopped)
}
