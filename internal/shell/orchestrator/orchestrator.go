// Package orchestrator drives a deployment run phase by phase: provision,
// launch, health-gate, advance. Phases execute strictly sequentially;
// concurrency lives inside the collaborators, never across phases.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/HamiGames/Lucid-sub000/internal/core/domain"
	"github.com/HamiGames/Lucid-sub000/internal/core/plan"
	"github.com/HamiGames/Lucid-sub000/internal/core/topology"
	"github.com/HamiGames/Lucid-sub000/internal/shell/launcher"
	"github.com/HamiGames/Lucid-sub000/internal/shell/monitor"
	"github.com/HamiGames/Lucid-sub000/internal/shell/rollback"
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// Provisioner ensures a phase's infrastructure exists.
type Provisioner interface {
	EnsurePhase(ctx context.Context, networks []topology.Network, volumes []string, dirs []string) error
}

// Launcher starts and stops services.
type Launcher interface {
	Launch(ctx context.Context, svc topology.Service, run launcher.RunContext) (domain.ServiceSnapshot, error)
	Stop(ctx context.Context, name string) error
	SupportsKind(kind topology.ServiceKind) bool
}

// HealthMonitor gates a phase on its health threshold.
type HealthMonitor interface {
	AwaitHealthy(ctx context.Context, phase topology.Phase, services []topology.Service) domain.PhaseHealthReport
}

// Rollbacker records revisions and restores phases from them.
type Rollbacker interface {
	Record(ctx context.Context, runID, phaseID string, action domain.RevisionAction, snapshot map[string]domain.ServiceSnapshot) (int64, error)
	Rollback(ctx context.Context, phaseID string, to *int64) error
}

// =============================================================================
// Orchestrator
// =============================================================================

// Options tunes one deployment run.
type Options struct {
	Cluster     string
	Environment string

	// ContinueOnFailure keeps deploying later phases after a phase fails.
	// Used by verification runs; never the default for deploy.
	ContinueOnFailure bool

	// MaxWait bounds each phase's health-check window.
	MaxWait time.Duration
}

// RunResult is the outcome of one deployment run. Runs holds one entry per
// phase in ordinal order; phases never started remain pending.
type RunResult struct {
	RunID       string
	Cluster     string
	Environment string
	Runs        []domain.PhaseRun
	Halted      bool
}

// Failed reports whether any phase ended in the failed state.
func (r *RunResult) Failed() bool {
	for _, run := range r.Runs {
		if run.State == domain.PhaseFailed {
			return true
		}
	}
	return false
}

// Orchestrator coordinates the collaborators for one topology.
type Orchestrator struct {
	provisioner Provisioner
	launcher    Launcher
	monitor     HealthMonitor
	rollback    Rollbacker
	clock       monitor.Clock
	logger      *slog.Logger
}

// New creates an orchestrator. A nil clock means wall-clock time.
func New(p Provisioner, l Launcher, m HealthMonitor, r Rollbacker, clock monitor.Clock, logger *slog.Logger) *Orchestrator {
	if clock == nil {
		clock = monitor.RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		provisioner: p,
		launcher:    l,
		monitor:     m,
		rollback:    r,
		clock:       clock,
		logger:      logger.With("component", "orchestrator"),
	}
}

// DryRun computes the deployment plan without touching any collaborator.
func (o *Orchestrator) DryRun(t *topology.Topology, opts Options) *plan.Plan {
	return plan.Build(t, opts.Cluster, opts.Environment, opts.MaxWait)
}

// Deploy runs every phase of the topology in ordinal order. A phase must
// reach a terminal state before the next begins. A failed phase is rolled
// back automatically and halts the run unless ContinueOnFailure is set.
func (o *Orchestrator) Deploy(ctx context.Context, t *topology.Topology, opts Options) (*RunResult, error) {
	if err := o.checkKinds(t); err != nil {
		return nil, err
	}

	p := plan.Build(t, opts.Cluster, opts.Environment, opts.MaxWait)
	result := &RunResult{
		RunID:       uuid.NewString(),
		Cluster:     opts.Cluster,
		Environment: opts.Environment,
	}
	for _, step := range p.Phases {
		result.Runs = append(result.Runs, domain.PhaseRun{
			PhaseID: step.PhaseID,
			Ordinal: step.Ordinal,
			State:   domain.PhasePending,
		})
	}

	o.logger.Info("deployment started",
		"run", result.RunID,
		"cluster", opts.Cluster,
		"phases", len(p.Phases),
	)

	for i, step := range p.Phases {
		run := &result.Runs[i]

		if ctx.Err() != nil {
			run.Fail("deployment aborted", o.clock.Now())
			result.Halted = true
			break
		}

		dirs := []string(nil)
		if i == 0 {
			dirs = p.Directories
		}
		o.runPhase(ctx, t, step, run, result.RunID, dirs)

		if run.State == domain.PhaseFailed {
			o.rollbackPhase(ctx, run.PhaseID)
			if !opts.ContinueOnFailure {
				o.logger.Warn("halting deployment after failed phase",
					"run", result.RunID,
					"phase", run.PhaseID,
				)
				result.Halted = true
				break
			}
		}
	}

	o.logger.Info("deployment finished",
		"run", result.RunID,
		"failed", result.Failed(),
		"halted", result.Halted,
	)
	return result, nil
}

// runPhase takes one phase from pending to a terminal state.
func (o *Orchestrator) runPhase(ctx context.Context, t *topology.Topology, step plan.PhaseStep, run *domain.PhaseRun, runID string, dirs []string) {
	phase, _ := t.PhaseByID(step.PhaseID)
	services := plan.OrderServices(t.PhaseServices(phase))

	// Provisioning. A conflict fails the phase before anything launches;
	// existing infrastructure is never deleted to make room.
	if err := run.Transition(domain.PhaseProvisioning, o.clock.Now()); err != nil {
		run.Fail(err.Error(), o.clock.Now())
		return
	}
	networks := make([]topology.Network, 0, len(step.Networks))
	for _, name := range step.Networks {
		if net, ok := t.Network(name); ok {
			networks = append(networks, net)
		}
	}
	if err := o.provisioner.EnsurePhase(ctx, networks, step.Volumes, dirs); err != nil {
		o.logger.Error("provisioning failed", "phase", step.PhaseID, "error", err)
		run.Fail(fmt.Sprintf("provisioning: %v", err), o.clock.Now())
		return
	}
	// Every state-changing action appends a revision. The provision
	// snapshot captures the phase's service set before anything launches;
	// secret-referencing env vars stay by reference.
	if _, err := o.rollback.Record(ctx, runID, step.PhaseID, domain.ActionProvision, pendingSnapshot(services)); err != nil {
		run.Fail(fmt.Sprintf("record provision revision: %v", err), o.clock.Now())
		return
	}

	// Launching. Every service gets exactly one launch attempt; individual
	// failures are recorded in the snapshot but do not block entry to
	// health-checking - a service that never started simply never reports
	// healthy.
	if err := run.Transition(domain.PhaseLaunching, o.clock.Now()); err != nil {
		run.Fail(err.Error(), o.clock.Now())
		return
	}
	snapshot := make(map[string]domain.ServiceSnapshot, len(services))
	for _, svc := range services {
		snap, err := o.launcher.Launch(ctx, svc, launcher.RunContext{
			RunID:   runID,
			PhaseID: step.PhaseID,
		})
		snapshot[svc.Name] = snap
		if err != nil {
			o.logger.Warn("service launch failed",
				"phase", step.PhaseID,
				"service", svc.Name,
				"error", err,
			)
		}
	}
	if _, err := o.rollback.Record(ctx, runID, step.PhaseID, domain.ActionLaunch, snapshot); err != nil {
		run.Fail(fmt.Sprintf("record launch revision: %v", err), o.clock.Now())
		return
	}

	// Health gate.
	if err := run.Transition(domain.PhaseHealthChecking, o.clock.Now()); err != nil {
		run.Fail(err.Error(), o.clock.Now())
		return
	}
	report := o.monitor.AwaitHealthy(ctx, phase, services)
	run.Verdict = report.Verdict
	run.Records = report.Records

	if report.Verdict == domain.VerdictTimedOut {
		run.Fail(fmt.Sprintf("health threshold %.2f not met within wait budget", report.Threshold), o.clock.Now())
		return
	}
	if err := run.Transition(domain.PhasePassed, o.clock.Now()); err != nil {
		run.Fail(err.Error(), o.clock.Now())
		return
	}

	o.logger.Info("phase passed",
		"phase", step.PhaseID,
		"verdict", report.Verdict,
		"rounds", report.Rounds,
	)
}

// pendingSnapshot is the pre-launch state of a phase's services.
func pendingSnapshot(services []topology.Service) map[string]domain.ServiceSnapshot {
	snapshot := make(map[string]domain.ServiceSnapshot, len(services))
	for _, svc := range services {
		snapshot[svc.Name] = domain.ServiceSnapshot{
			Name:     svc.Name,
			Image:    svc.Image,
			Network:  svc.Network,
			Port:     svc.Port,
			HostPort: svc.HostPort,
			Env:      svc.Env,
			Outcome:  domain.OutcomePending,
		}
	}
	return snapshot
}

// rollbackPhase restores the failed phase to its previous revision. A
// phase with no earlier revision has nothing to restore; that is not an
// additional failure.
func (o *Orchestrator) rollbackPhase(ctx context.Context, phaseID string) {
	err := o.rollback.Rollback(ctx, phaseID, nil)
	if err == nil {
		o.logger.Info("failed phase rolled back", "phase", phaseID)
		return
	}
	if errors.Is(err, rollback.ErrNoHistory) {
		o.logger.Info("no earlier revision to restore", "phase", phaseID)
		return
	}
	o.logger.Error("automatic rollback failed", "phase", phaseID, "error", err)
}

// StopAll stops every service of the topology, last phase first, so
// dependents go down before their dependencies.
func (o *Orchestrator) StopAll(ctx context.Context, t *topology.Topology) error {
	phases := t.OrderedPhases()
	var errs []error
	for i := len(phases) - 1; i >= 0; i-- {
		services := plan.OrderServices(t.PhaseServices(phases[i]))
		for j := len(services) - 1; j >= 0; j-- {
			if err := o.launcher.Stop(ctx, services[j].Name); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// checkKinds rejects topologies declaring a service kind no launcher is
// registered for, before any side effects.
func (o *Orchestrator) checkKinds(t *topology.Topology) error {
	for _, svc := range t.Services {
		if !o.launcher.SupportsKind(svc.Kind) {
			return fmt.Errorf("%w: %q (service %q)", launcher.ErrUnknownKind, svc.Kind, svc.Name)
		}
	}
	return nil
}
