// Package topology contains the static deployment model and its validation.
// This is part of the Functional Core - all functions are pure with no I/O.
package topology

import "time"

// =============================================================================
// Probe Types
// =============================================================================

// ProbeType selects how a service's health is checked.
type ProbeType string

const (
	ProbeHTTP ProbeType = "http"
	ProbeTCP  ProbeType = "tcp"
	ProbeExec ProbeType = "exec"
)

// Probe describes how to check a single service.
// Exactly one of the type-specific fields is used depending on Type:
// Path for http, the service port for tcp, Command for exec.
type Probe struct {
	Type    ProbeType     `yaml:"type"`
	Path    string        `yaml:"path,omitempty"`
	Port    int           `yaml:"port,omitempty"` // overrides the service port
	Command []string      `yaml:"command,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"` // default 5s
}

// DefaultProbeTimeout bounds a single probe attempt.
const DefaultProbeTimeout = 5 * time.Second

// =============================================================================
// Service Types
// =============================================================================

// ServiceKind selects the launcher used for a service. Kinds are resolved
// once at topology load via a registry, not per-launch conditionals.
type ServiceKind string

const (
	KindContainer ServiceKind = "container"
	KindBuild     ServiceKind = "build" // image built from a local context before launch
)

// VolumeMount declares a named volume or host path mounted into a service.
type VolumeMount struct {
	Source   string `yaml:"source"`
	Target   string `yaml:"target"`
	ReadOnly bool   `yaml:"read_only,omitempty"`
}

// Service is one deployable unit. A service belongs to exactly one phase
// (membership is declared on the phase). DependsOn entries must name
// services in the same phase.
type Service struct {
	Name      string            `yaml:"name"`
	Kind      ServiceKind       `yaml:"kind,omitempty"`
	Network   string            `yaml:"network"`
	Port      int               `yaml:"port,omitempty"`
	HostPort  int               `yaml:"host_port,omitempty"`
	Image     string            `yaml:"image,omitempty"`
	Build     string            `yaml:"build,omitempty"` // build context path, used by kind=build
	Env       map[string]string `yaml:"env,omitempty"`
	Probe     Probe             `yaml:"probe"`
	DependsOn []string          `yaml:"depends_on,omitempty"`
	Volumes   []VolumeMount     `yaml:"volumes,omitempty"`
}

// =============================================================================
// Phase and Cluster Types
// =============================================================================

// DefaultHealthThreshold is the fraction of a phase's services that must be
// healthy for the phase to pass when the phase does not set its own.
const DefaultHealthThreshold = 0.75

// Phase is an ordered group of services deployed and health-gated together.
// Ordinals define strict sequential execution order and must be contiguous
// starting at 1.
type Phase struct {
	ID              string   `yaml:"id"`
	Ordinal         int      `yaml:"ordinal"`
	Services        []string `yaml:"services"`
	HealthThreshold float64  `yaml:"health_threshold,omitempty"`
}

// Threshold returns the phase's health threshold, defaulted.
func (p Phase) Threshold() float64 {
	if p.HealthThreshold == 0 {
		return DefaultHealthThreshold
	}
	return p.HealthThreshold
}

// Cluster groups phases and services under an operator-facing name.
type Cluster struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Phases   []string `yaml:"phases"`
	Services []string `yaml:"services"`
}

// =============================================================================
// Network Types
// =============================================================================

// Network declares a deployment network. Subnets must be pairwise
// non-overlapping across the whole topology.
type Network struct {
	Name       string `yaml:"name"`
	Subnet     string `yaml:"subnet"`
	Gateway    string `yaml:"gateway,omitempty"`
	Isolated   bool   `yaml:"isolated,omitempty"` // no route to other networks except explicit bridges
	Attachable bool   `yaml:"attachable,omitempty"`
}

// =============================================================================
// Topology
// =============================================================================

// Topology is the immutable deployment description. It is loaded and
// validated once per run and passed explicitly; there is no process-wide
// mutable registry.
type Topology struct {
	Clusters    []Cluster `yaml:"clusters,omitempty"`
	Phases      []Phase   `yaml:"phases"`
	Services    []Service `yaml:"services"`
	Networks    []Network `yaml:"networks"`
	Volumes     []string  `yaml:"volumes,omitempty"`
	Directories []string  `yaml:"directories,omitempty"`
}

// Service returns the service with the given name, if declared.
func (t *Topology) Service(name string) (Service, bool) {
	for _, s := range t.Services {
		if s.Name == name {
			return s, true
		}
	}
	return Service{}, false
}

// Network returns the network with the given name, if declared.
func (t *Topology) Network(name string) (Network, bool) {
	for _, n := range t.Networks {
		if n.Name == name {
			return n, true
		}
	}
	return Network{}, false
}

// PhaseByID returns the phase with the given id, if declared.
func (t *Topology) PhaseByID(id string) (Phase, bool) {
	for _, p := range t.Phases {
		if p.ID == id {
			return p, true
		}
	}
	return Phase{}, false
}

// OrderedPhases returns the phases sorted by ordinal ascending.
func (t *Topology) OrderedPhases() []Phase {
	ordered := make([]Phase, len(t.Phases))
	copy(ordered, t.Phases)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].Ordinal < ordered[j-1].Ordinal; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered
}

// PhaseServices resolves a phase's service names to declared services.
// Unknown names are skipped; validation rejects them before this is used.
func (t *Topology) PhaseServices(phase Phase) []Service {
	var svcs []Service
	for _, name := range phase.Services {
		if s, ok := t.Service(name); ok {
			svcs = append(svcs, s)
		}
	}
	return svcs
}
