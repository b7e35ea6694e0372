// Package runtime provides the container runtime collaborator used by the
// orchestrator. All orchestration logic depends only on the Client
// interface; the Docker implementation lives in docker.go.
package runtime

import (
	"context"
	"time"
)

// =============================================================================
// Container Types
// =============================================================================

// ContainerSpec defines the specification for creating a container.
type ContainerSpec struct {
	Name           string
	Image          string
	Env            map[string]string
	Labels         map[string]string
	Ports          []PortBinding
	Volumes        []VolumeMount
	Networks       []string
	NetworkAliases map[string][]string // network name → aliases (service name for DNS)
}

// PortBinding defines a port mapping.
type PortBinding struct {
	ContainerPort int
	HostPort      int    // 0 for auto-assign
	Protocol      string // "tcp" or "udp"
	HostIP        string // "" for 0.0.0.0
}

// VolumeMount defines a volume mount.
type VolumeMount struct {
	Source   string // Volume name or host path
	Target   string // Container path
	ReadOnly bool
}

// ContainerInfo contains information about a container.
type ContainerInfo struct {
	ID        string
	Name      string
	Image     string
	State     string // "running", "exited", "created", ...
	CreatedAt time.Time
	Labels    map[string]string
	ExitCode  int
	IPAddress string // address on the first attached network
}

// ExecResult is the outcome of running a command inside a container.
type ExecResult struct {
	ExitCode int
	Output   string
}

// =============================================================================
// Network and Volume Types
// =============================================================================

// NetworkSpec defines the specification for creating a network.
type NetworkSpec struct {
	Name       string
	Subnet     string
	Gateway    string
	Internal   bool // no route outside the network
	Attachable bool
	Labels     map[string]string
}

// NetworkInfo describes an existing network, used for conflict checks.
type NetworkInfo struct {
	ID         string
	Name       string
	Subnet     string
	Gateway    string
	Internal   bool
	Attachable bool
}

// VolumeSpec defines the specification for creating a volume.
type VolumeSpec struct {
	Name   string
	Labels map[string]string
}

// ListOptions defines options for listing containers.
type ListOptions struct {
	All     bool              // Include stopped containers
	Filters map[string]string // e.g. {"label": "com.lucid.managed=true"}
}

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the container runtime interface.
type Client interface {
	// Container operations
	CreateContainer(ctx context.Context, spec ContainerSpec) (containerID string, err error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, containerID string, force bool) error
	InspectContainer(ctx context.Context, nameOrID string) (*ContainerInfo, error)
	ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error)
	Exec(ctx context.Context, nameOrID string, cmd []string) (*ExecResult, error)

	// Network operations
	CreateNetwork(ctx context.Context, spec NetworkSpec) (networkID string, err error)
	InspectNetwork(ctx context.Context, name string) (*NetworkInfo, error)

	// Volume operations
	CreateVolume(ctx context.Context, spec VolumeSpec) (volumeName string, err error)
	VolumeExists(ctx context.Context, name string) (bool, error)

	// Image operations
	PullImage(ctx context.Context, image string) error
	ImageExists(ctx context.Context, image string) (bool, error)

	// Health operations
	Ping(ctx context.Context) error
	Close() error
}

// =============================================================================
// Label Constants
// =============================================================================

const (
	LabelManaged = "com.lucid.managed"
	LabelRun     = "com.lucid.run"
	LabelPhase   = "com.lucid.phase"
	LabelService = "com.lucid.service"
)
