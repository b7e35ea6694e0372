// Package provision creates deployment infrastructure idempotently.
// "Already exists with matching configuration" is success; "exists with
// conflicting configuration" is a loud failure. Nothing here ever deletes
// or recreates live infrastructure.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/HamiGames/Lucid-sub000/internal/core/topology"
	"github.com/HamiGames/Lucid-sub000/internal/shell/runtime"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrConflict is returned when a resource exists with configuration
	// that disagrees with the topology.
	ErrConflict = errors.New("resource exists with conflicting configuration")
)

// ConflictError names exactly which field of an existing resource
// disagrees with the desired state.
type ConflictError struct {
	Resource string // "network", "volume"
	Name     string
	Field    string
	Want     string
	Got      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q %s mismatch: want %q, got %q", e.Resource, e.Name, e.Field, e.Want, e.Got)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// =============================================================================
// Outcome
// =============================================================================

// Outcome reports whether an ensure call created the resource or found it
// already in place.
type Outcome string

const (
	Created       Outcome = "created"
	AlreadyExists Outcome = "already_exists"
)

// =============================================================================
// Provisioner
// =============================================================================

// DirMaker creates a deployment directory on whatever host the runtime
// lives on. A nil DirMaker means the local filesystem.
type DirMaker interface {
	EnsureDir(ctx context.Context, path string) error
}

// Provisioner ensures networks, volumes and directories exist.
type Provisioner struct {
	client runtime.Client
	logger *slog.Logger

	// Dirs overrides where directories are created. Set when the runtime
	// is addressed over SSH so paths land on the remote host.
	Dirs DirMaker

	// MaxConcurrent bounds parallel ensure calls within one phase.
	// Resources in a phase are declared disjoint by the topology
	// validator, so concurrent provisioning is safe.
	MaxConcurrent int
}

// New creates a provisioner.
func New(client runtime.Client, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		client:        client,
		logger:        logger.With("component", "provisioner"),
		MaxConcurrent: 4,
	}
}

// EnsureNetwork creates the network if missing. An existing network with
// the same subnet/gateway/flags is AlreadyExists; any mismatch is a
// ConflictError - live networks are never deleted and recreated.
func (p *Provisioner) EnsureNetwork(ctx context.Context, net topology.Network) (Outcome, error) {
	existing, err := p.client.InspectNetwork(ctx, net.Name)
	if err == nil {
		if conflict := networkConflict(net, existing); conflict != nil {
			return "", conflict
		}
		p.logger.Debug("network already exists", "network", net.Name)
		return AlreadyExists, nil
	}
	if !errors.Is(err, runtime.ErrNetworkNotFound) {
		return "", err
	}

	_, err = p.client.CreateNetwork(ctx, runtime.NetworkSpec{
		Name:       net.Name,
		Subnet:     net.Subnet,
		Gateway:    net.Gateway,
		Internal:   net.Isolated,
		Attachable: net.Attachable,
		Labels:     map[string]string{runtime.LabelManaged: "true"},
	})
	if err != nil {
		// Lost a race with another creator; re-inspect and conflict-check.
		if errors.Is(err, runtime.ErrNetworkAlreadyExists) {
			existing, inspectErr := p.client.InspectNetwork(ctx, net.Name)
			if inspectErr != nil {
				return "", inspectErr
			}
			if conflict := networkConflict(net, existing); conflict != nil {
				return "", conflict
			}
			return AlreadyExists, nil
		}
		return "", err
	}

	p.logger.Info("network created", "network", net.Name, "subnet", net.Subnet)
	return Created, nil
}

// networkConflict compares a declared network against an existing one.
func networkConflict(want topology.Network, got *runtime.NetworkInfo) *ConflictError {
	if !subnetsEqual(want.Subnet, got.Subnet) {
		return &ConflictError{Resource: "network", Name: want.Name, Field: "subnet", Want: want.Subnet, Got: got.Subnet}
	}
	if want.Gateway != "" && got.Gateway != "" && want.Gateway != got.Gateway {
		return &ConflictError{Resource: "network", Name: want.Name, Field: "gateway", Want: want.Gateway, Got: got.Gateway}
	}
	if want.Isolated != got.Internal {
		return &ConflictError{Resource: "network", Name: want.Name, Field: "isolated", Want: fmt.Sprint(want.Isolated), Got: fmt.Sprint(got.Internal)}
	}
	return nil
}

// subnetsEqual compares subnets by parsed prefix so "172.20.0.0/24" and
// "172.20.0.0/24 " style formatting differences don't read as conflicts.
func subnetsEqual(a, b string) bool {
	if a == b {
		return true
	}
	pa, errA := netip.ParsePrefix(a)
	pb, errB := netip.ParsePrefix(b)
	if errA != nil || errB != nil {
		return false
	}
	return pa == pb
}

// EnsureVolume creates a named volume if missing.
func (p *Provisioner) EnsureVolume(ctx context.Context, name string) (Outcome, error) {
	exists, err := p.client.VolumeExists(ctx, name)
	if err != nil {
		return "", err
	}
	if exists {
		p.logger.Debug("volume already exists", "volume", name)
		return AlreadyExists, nil
	}

	if _, err := p.client.CreateVolume(ctx, runtime.VolumeSpec{
		Name:   name,
		Labels: map[string]string{runtime.LabelManaged: "true"},
	}); err != nil {
		return "", err
	}

	p.logger.Info("volume created", "volume", name)
	return Created, nil
}

// EnsureDirectories creates directories if missing, locally or through
// the configured DirMaker. A local path that exists as a non-directory is
// a ConflictError.
func (p *Provisioner) EnsureDirectories(ctx context.Context, paths []string) error {
	for _, path := range paths {
		if p.Dirs != nil {
			if err := p.Dirs.EnsureDir(ctx, path); err != nil {
				return err
			}
			p.logger.Info("directory ensured", "path", path)
			continue
		}

		info, err := os.Stat(path)
		if err == nil {
			if !info.IsDir() {
				return &ConflictError{Resource: "directory", Name: path, Field: "type", Want: "directory", Got: "file"}
			}
			continue
		}
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return err
		}
		p.logger.Info("directory created", "path", path)
	}
	return nil
}

// EnsurePhase provisions everything a phase needs: networks and volumes
// concurrently (bounded), directories up front. The first conflict aborts
// the whole phase.
func (p *Provisioner) EnsurePhase(ctx context.Context, networks []topology.Network, volumes []string, dirs []string) error {
	if err := p.EnsureDirectories(ctx, dirs); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.MaxConcurrent)

	for _, net := range networks {
		g.Go(func() error {
			_, err := p.EnsureNetwork(gctx, net)
			return err
		})
	}
	for _, vol := range volumes {
		g.Go(func() error {
			_, err := p.EnsureVolume(gctx, vol)
			return err
		})
	}

	return g.Wait()
}
