package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HamiGames/Lucid-sub000/internal/core/domain"
	"github.com/HamiGames/Lucid-sub000/internal/core/topology"
	"github.com/HamiGames/Lucid-sub000/internal/shell/runtime"
)

// =============================================================================
// Run Context
// =============================================================================

// RunContext identifies the deployment run a launch belongs to; it is
// stamped onto container labels so cleanup and rollback can find every
// managed instance.
type RunContext struct {
	RunID   string
	PhaseID string
}

// =============================================================================
// Launcher
// =============================================================================

// imagePrepare makes a service's image available before launch. Keyed by
// service kind in a table resolved at construction.
type imagePrepare func(ctx context.Context, l *Launcher, svc topology.Service) error

// Launcher starts and stops services through the container runtime.
type Launcher struct {
	client   runtime.Client
	resolver *Resolver
	logger   *slog.Logger
	prepare  map[topology.ServiceKind]imagePrepare

	// StopTimeout bounds graceful container stop.
	StopTimeout time.Duration
}

// New creates a launcher with the kind table populated.
func New(client runtime.Client, resolver *Resolver, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Launcher{
		client:      client,
		resolver:    resolver,
		logger:      logger.With("component", "launcher"),
		StopTimeout: 30 * time.Second,
	}
	l.prepare = map[topology.ServiceKind]imagePrepare{
		topology.KindContainer: prepareContainerImage,
		"":                     prepareContainerImage, // default kind
		topology.KindBuild:     prepareBuiltImage,
	}
	return l
}

// SupportsKind reports whether a launcher is registered for the kind.
// Called once at topology load so unknown kinds fail before any side
// effects.
func (l *Launcher) SupportsKind(kind topology.ServiceKind) bool {
	_, ok := l.prepare[kind]
	return ok
}

// prepareContainerImage pulls the image when it is not present locally.
func prepareContainerImage(ctx context.Context, l *Launcher, svc topology.Service) error {
	exists, err := l.client.ImageExists(ctx, svc.Image)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	l.logger.Info("pulling image", "service", svc.Name, "image", svc.Image)
	return l.client.PullImage(ctx, svc.Image)
}

// prepareBuiltImage expects the build collaborator to have produced the
// image already; a missing image is an error, not a trigger to rebuild.
func prepareBuiltImage(ctx context.Context, l *Launcher, svc topology.Service) error {
	exists, err := l.client.ImageExists(ctx, svc.Image)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: built image %q for service %q (build context %s)",
			ErrImageMissing, svc.Image, svc.Name, svc.Build)
	}
	return nil
}

// Launch resolves a service's configuration and starts it. The returned
// snapshot records the resolved config and outcome for the revision log,
// whether or not the launch succeeded.
func (l *Launcher) Launch(ctx context.Context, svc topology.Service, run RunContext) (domain.ServiceSnapshot, error) {
	snapshot := domain.ServiceSnapshot{
		Name:     svc.Name,
		Image:    svc.Image,
		Network:  svc.Network,
		Port:     svc.Port,
		HostPort: svc.HostPort,
		Outcome:  domain.OutcomeFailed,
	}

	env, err := l.resolver.ResolveEnv(svc)
	if err != nil {
		snapshot.Error = err.Error()
		return snapshot, err
	}
	snapshot.Env = redactSecrets(svc.Env, env)

	prepare, ok := l.prepare[svc.Kind]
	if !ok {
		err := fmt.Errorf("%w: %q (service %q)", ErrUnknownKind, svc.Kind, svc.Name)
		snapshot.Error = err.Error()
		return snapshot, err
	}
	if err := prepare(ctx, l, svc); err != nil {
		snapshot.Error = err.Error()
		return snapshot, NewLaunchError("Launch", svc.Name, "image preparation failed", err)
	}

	spec := runtime.ContainerSpec{
		Name:     svc.Name,
		Image:    svc.Image,
		Env:      env,
		Networks: []string{svc.Network},
		NetworkAliases: map[string][]string{
			svc.Network: {svc.Name},
		},
		Labels: map[string]string{
			runtime.LabelManaged: "true",
			runtime.LabelRun:     run.RunID,
			runtime.LabelPhase:   run.PhaseID,
			runtime.LabelService: svc.Name,
		},
	}
	if svc.Port > 0 {
		spec.Ports = []runtime.PortBinding{
			{
				ContainerPort: svc.Port,
				HostPort:      svc.HostPort,
				Protocol:      "tcp",
			},
		}
	}
	for _, v := range svc.Volumes {
		spec.Volumes = append(spec.Volumes, runtime.VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	containerID, err := l.client.CreateContainer(ctx, spec)
	if err != nil {
		// A leftover container with our name from a previous run is
		// replaced; anything else is a launch failure.
		if errors.Is(err, runtime.ErrContainerAlreadyExists) {
			if rmErr := l.client.RemoveContainer(ctx, svc.Name, true); rmErr != nil {
				snapshot.Error = rmErr.Error()
				return snapshot, NewLaunchError("Launch", svc.Name, "replace existing container", rmErr)
			}
			containerID, err = l.client.CreateContainer(ctx, spec)
		}
		if err != nil {
			snapshot.Error = err.Error()
			return snapshot, NewLaunchError("Launch", svc.Name, "create container", err)
		}
	}
	snapshot.ContainerID = containerID

	if err := l.client.StartContainer(ctx, containerID); err != nil {
		snapshot.Error = err.Error()
		return snapshot, NewLaunchError("Launch", svc.Name, "start container", err)
	}

	l.logger.Info("service launched",
		"service", svc.Name,
		"image", svc.Image,
		"network", svc.Network,
		"container_id", shortID(containerID),
	)
	snapshot.Outcome = domain.OutcomeStarted
	snapshot.Error = ""
	return snapshot, nil
}

// Stop stops a service by name. Stopping a service that is not running is
// an idempotent no-op.
func (l *Launcher) Stop(ctx context.Context, name string) error {
	timeout := l.StopTimeout
	err := l.client.StopContainer(ctx, name, &timeout)
	if err != nil {
		if errors.Is(err, runtime.ErrContainerNotFound) || errors.Is(err, runtime.ErrContainerNotRunning) {
			l.logger.Debug("stop skipped, service not running", "service", name)
			return nil
		}
		return NewLaunchError("Stop", name, "stop container", err)
	}
	l.logger.Info("service stopped", "service", name)
	return nil
}

// redactSecrets keeps resolved plain values in the snapshot but stores
// secret-referencing vars by their reference, never the secret itself.
func redactSecrets(declared, resolved map[string]string) map[string]string {
	out := make(map[string]string, len(resolved))
	for name, value := range resolved {
		if ref, ok := declared[name]; ok && len(ref) >= len(secretScheme) && ref[:len(secretScheme)] == secretScheme {
			out[name] = ref
			continue
		}
		out[name] = value
	}
	return out
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
