// Package rollback restores a phase to an earlier recorded revision. It
// owns revision bookkeeping for state-changing actions and the forced
// emergency teardown path.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/HamiGames/Lucid-sub000/internal/core/domain"
	"github.com/HamiGames/Lucid-sub000/internal/core/topology"
	"github.com/HamiGames/Lucid-sub000/internal/shell/launcher"
	"github.com/HamiGames/Lucid-sub000/internal/shell/revlog"
	"github.com/HamiGames/Lucid-sub000/internal/shell/runtime"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrForceRequired is returned when emergency rollback is invoked
	// without force=true.
	ErrForceRequired = errors.New("emergency rollback requires force")

	// ErrNoHistory is returned when a phase has no revision to roll back to.
	ErrNoHistory = errors.New("no revision history")

	// ErrWrongPhase is returned when a named target revision belongs to a
	// different phase.
	ErrWrongPhase = errors.New("revision belongs to a different phase")
)

// RollbackError wraps rollback failures with phase context.
type RollbackError struct {
	Op      string
	PhaseID string
	Message string
	Err     error
}

func (e *RollbackError) Error() string {
	if e.PhaseID != "" {
		return fmt.Sprintf("%s phase %s: %s", e.Op, e.PhaseID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RollbackError) Unwrap() error {
	return e.Err
}

// NewRollbackError creates a new RollbackError.
func NewRollbackError(op, phaseID, message string, err error) *RollbackError {
	return &RollbackError{Op: op, PhaseID: phaseID, Message: message, Err: err}
}

// =============================================================================
// Manager
// =============================================================================

// Manager records revisions and restores phases from them. History is
// append-only: a rollback appends a new revision pointing back at the one
// it restored, it never deletes records. Networks and volumes are never
// removed by any rollback path; data-bearing resources survive.
type Manager struct {
	store    revlog.Store
	launcher *launcher.Launcher
	client   runtime.Client
	logger   *slog.Logger
}

// New creates a rollback manager.
func New(store revlog.Store, l *launcher.Launcher, client runtime.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		launcher: l,
		client:   client,
		logger:   logger.With("component", "rollback"),
	}
}

// Record appends a revision for a phase, linking it to the phase's latest
// revision if one exists. Returns the assigned revision id.
func (m *Manager) Record(ctx context.Context, runID, phaseID string, action domain.RevisionAction, snapshot map[string]domain.ServiceSnapshot) (int64, error) {
	rev := &domain.Revision{
		RunID:    runID,
		PhaseID:  phaseID,
		Action:   action,
		Snapshot: snapshot,
	}

	latest, err := m.store.Latest(ctx, phaseID)
	switch {
	case err == nil:
		rev.PreviousID = &latest.ID
	case errors.Is(err, revlog.ErrRevisionNotFound):
		// First revision for this phase.
	default:
		return 0, NewRollbackError("Record", phaseID, "read latest revision", err)
	}

	id, err := m.store.Append(ctx, rev)
	if err != nil {
		return 0, NewRollbackError("Record", phaseID, "append revision", err)
	}

	m.logger.Info("revision recorded",
		"phase", phaseID,
		"revision", id,
		"action", action,
		"services", len(snapshot),
	)
	return id, nil
}

// Rollback restores a phase to an earlier revision. Every service in the
// current revision's snapshot is stopped, then every service the target
// revision recorded as started is relaunched from its snapshot. A nil
// target means the nearest preceding revision that captured launch state;
// provision snapshots hold nothing runnable and are walked past. The
// restore itself is recorded as a new rollback revision.
func (m *Manager) Rollback(ctx context.Context, phaseID string, to *int64) error {
	current, err := m.store.Latest(ctx, phaseID)
	if err != nil {
		if errors.Is(err, revlog.ErrRevisionNotFound) {
			return NewRollbackError("Rollback", phaseID, "nothing recorded for phase", ErrNoHistory)
		}
		return NewRollbackError("Rollback", phaseID, "read latest revision", err)
	}

	target, err := m.resolveTarget(ctx, phaseID, current, to)
	if err != nil {
		return err
	}

	m.logger.Info("rolling back phase",
		"phase", phaseID,
		"from_revision", current.ID,
		"to_revision", target.ID,
	)

	// Stop everything the current revision knows about. Stopping a
	// service that is already gone is an idempotent no-op.
	for _, name := range current.ServiceNames() {
		if err := m.launcher.Stop(ctx, name); err != nil {
			return NewRollbackError("Rollback", phaseID,
				fmt.Sprintf("stop service %q", name), err)
		}
	}

	snapshot := make(map[string]domain.ServiceSnapshot, len(target.Snapshot))
	var failed []string
	for _, name := range target.ServiceNames() {
		prior := target.Snapshot[name]
		if prior.Outcome != domain.OutcomeStarted {
			prior.Outcome = domain.OutcomeSkipped
			snapshot[name] = prior
			continue
		}

		snap, err := m.launcher.Launch(ctx, serviceFromSnapshot(prior), launcher.RunContext{
			RunID:   current.RunID,
			PhaseID: phaseID,
		})
		snapshot[name] = snap
		if err != nil {
			failed = append(failed, name)
			m.logger.Warn("rollback relaunch failed", "phase", phaseID, "service", name, "error", err)
		}
	}

	rev := &domain.Revision{
		RunID:      current.RunID,
		PhaseID:    phaseID,
		Action:     domain.ActionRollback,
		Snapshot:   snapshot,
		PreviousID: &current.ID,
	}
	if _, err := m.store.Append(ctx, rev); err != nil {
		return NewRollbackError("Rollback", phaseID, "record rollback revision", err)
	}

	if len(failed) > 0 {
		return NewRollbackError("Rollback", phaseID,
			fmt.Sprintf("relaunch failed for: %s", strings.Join(failed, ", ")), nil)
	}

	m.logger.Info("phase rolled back", "phase", phaseID, "to_revision", target.ID)
	return nil
}

// resolveTarget picks the revision to restore. A named target must belong
// to the phase being rolled back.
func (m *Manager) resolveTarget(ctx context.Context, phaseID string, current *domain.Revision, to *int64) (*domain.Revision, error) {
	if to != nil {
		target, err := m.store.Get(ctx, *to)
		if err != nil {
			return nil, NewRollbackError("Rollback", phaseID,
				fmt.Sprintf("target revision %d", *to), err)
		}
		if target.PhaseID != phaseID {
			return nil, NewRollbackError("Rollback", phaseID,
				fmt.Sprintf("revision %d recorded for phase %q", target.ID, target.PhaseID),
				ErrWrongPhase)
		}
		return target, nil
	}

	prev := current.PreviousID
	for prev != nil {
		target, err := m.store.Get(ctx, *prev)
		if err != nil {
			return nil, NewRollbackError("Rollback", phaseID,
				fmt.Sprintf("previous revision %d", *prev), err)
		}
		if target.Action != domain.ActionProvision {
			return target, nil
		}
		prev = target.PreviousID
	}
	return nil, NewRollbackError("Rollback", phaseID,
		"no launch state precedes the current revision", ErrNoHistory)
}

// EmergencyRollback force-removes every managed container, skipping
// graceful stop and revision bookkeeping. It refuses to run without
// force=true and touches nothing else: networks, volumes and the revision
// log are preserved. Removal failures are collected so one stuck
// container does not shield the rest.
func (m *Manager) EmergencyRollback(ctx context.Context, force bool) error {
	if !force {
		return NewRollbackError("EmergencyRollback", "",
			"refusing to force-remove managed containers", ErrForceRequired)
	}

	m.logger.Error("emergency rollback invoked, force-removing all managed containers")

	containers, err := m.client.ListContainers(ctx, runtime.ListOptions{
		All:     true,
		Filters: map[string]string{"label": runtime.LabelManaged + "=true"},
	})
	if err != nil {
		return NewRollbackError("EmergencyRollback", "", "list managed containers", err)
	}

	var errs []error
	for _, c := range containers {
		if err := m.client.RemoveContainer(ctx, c.ID, true); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", c.Name, err))
			m.logger.Error("emergency removal failed", "container", c.Name, "error", err)
			continue
		}
		m.logger.Error("container force-removed",
			"container", c.Name,
			"service", c.Labels[runtime.LabelService],
			"phase", c.Labels[runtime.LabelPhase],
		)
	}

	if len(errs) > 0 {
		return NewRollbackError("EmergencyRollback", "",
			fmt.Sprintf("%d of %d removals failed", len(errs), len(containers)),
			errors.Join(errs...))
	}

	m.logger.Info("emergency rollback complete", "removed", len(containers))
	return nil
}

// serviceFromSnapshot reconstructs a launchable service from a recorded
// snapshot. Secret-referencing env vars were stored by reference, so the
// launcher resolves them fresh at relaunch time.
func serviceFromSnapshot(snap domain.ServiceSnapshot) topology.Service {
	return topology.Service{
		Name:     snap.Name,
		Kind:     topology.KindContainer,
		Image:    snap.Image,
		Network:  snap.Network,
		Port:     snap.Port,
		HostPort: snap.HostPort,
		Env:      snap.Env,
	}
}
