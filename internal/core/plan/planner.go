// Package plan builds deployment plans from a validated topology.
// Planning is pure: a plan lists what would happen, in order, without
// touching any collaborator. The dry-run path renders exactly this.
package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/HamiGames/Lucid-sub000/internal/core/topology"
)

// =============================================================================
// Plan Types
// =============================================================================

// ServiceStep is one planned service launch.
type ServiceStep struct {
	Name      string   `json:"name"`
	Image     string   `json:"image"`
	Network   string   `json:"network"`
	Port      int      `json:"port,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// PhaseStep is one planned phase: provision, launch, then health-gate.
type PhaseStep struct {
	PhaseID   string        `json:"phase_id"`
	Ordinal   int           `json:"ordinal"`
	Threshold float64       `json:"threshold"`
	Networks  []string      `json:"networks,omitempty"`
	Volumes   []string      `json:"volumes,omitempty"`
	Services  []ServiceStep `json:"services"`
}

// Plan is the full ordered deployment plan.
type Plan struct {
	Cluster     string        `json:"cluster,omitempty"`
	Environment string        `json:"environment,omitempty"`
	Directories []string      `json:"directories,omitempty"`
	Phases      []PhaseStep   `json:"phases"`
	MaxWait     time.Duration `json:"max_wait"`
}

// =============================================================================
// Plan Building
// =============================================================================

// Build computes the ordered plan for a topology. Services within a phase
// are listed in dependency order; networks are attributed to the first
// phase that uses them so provisioning happens exactly once.
func Build(t *topology.Topology, cluster, environment string, maxWait time.Duration) *Plan {
	p := &Plan{
		Cluster:     cluster,
		Environment: environment,
		Directories: t.Directories,
		MaxWait:     maxWait,
	}

	provisioned := make(map[string]bool)
	volumesPlanned := false

	for _, phase := range t.OrderedPhases() {
		step := PhaseStep{
			PhaseID:   phase.ID,
			Ordinal:   phase.Ordinal,
			Threshold: phase.Threshold(),
		}

		for _, svc := range OrderServices(t.PhaseServices(phase)) {
			if !provisioned[svc.Network] {
				provisioned[svc.Network] = true
				step.Networks = append(step.Networks, svc.Network)
			}
			step.Services = append(step.Services, ServiceStep{
				Name:      svc.Name,
				Image:     svc.Image,
				Network:   svc.Network,
				Port:      svc.Port,
				DependsOn: svc.DependsOn,
			})
		}

		// Named volumes are deployment-wide; attribute them to phase 1.
		if !volumesPlanned {
			step.Volumes = t.Volumes
			volumesPlanned = true
		}

		p.Phases = append(p.Phases, step)
	}

	return p
}

// OrderServices sorts a phase's services by their dependencies using
// Kahn's algorithm. Services with no dependencies come first. Cycles are
// caught at validation time; any leftover services are appended as a
// fallback so planning never drops a service.
func OrderServices(services []topology.Service) []topology.Service {
	if len(services) == 0 {
		return services
	}

	serviceMap := make(map[string]topology.Service)
	inDegree := make(map[string]int)
	dependents := make(map[string][]string)

	for _, svc := range services {
		serviceMap[svc.Name] = svc
		inDegree[svc.Name] = len(svc.DependsOn)
		for _, dep := range svc.DependsOn {
			dependents[dep] = append(dependents[dep], svc.Name)
		}
	}

	var queue []string
	for _, svc := range services {
		if inDegree[svc.Name] == 0 {
			queue = append(queue, svc.Name)
		}
	}

	var result []topology.Service
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		if svc, ok := serviceMap[name]; ok {
			result = append(result, svc)
		}

		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(result) < len(services) {
		for _, svc := range services {
			found := false
			for _, r := range result {
				if r.Name == svc.Name {
					found = true
					break
				}
			}
			if !found {
				result = append(result, svc)
			}
		}
	}

	return result
}

// =============================================================================
// Plan Rendering
// =============================================================================

// RenderText renders the plan for the --dry-run output.
func (p *Plan) RenderText() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Deployment plan")
	if p.Cluster != "" {
		fmt.Fprintf(&sb, " for cluster %q", p.Cluster)
	}
	if p.Environment != "" {
		fmt.Fprintf(&sb, " (%s)", p.Environment)
	}
	sb.WriteString("\n")

	for _, dir := range p.Directories {
		fmt.Fprintf(&sb, "  ensure directory %s\n", dir)
	}

	for _, phase := range p.Phases {
		fmt.Fprintf(&sb, "phase %d: %s (threshold %.0f%%)\n", phase.Ordinal, phase.PhaseID, phase.Threshold*100)
		for _, net := range phase.Networks {
			fmt.Fprintf(&sb, "  ensure network %s\n", net)
		}
		for _, vol := range phase.Volumes {
			fmt.Fprintf(&sb, "  ensure volume %s\n", vol)
		}
		for _, svc := range phase.Services {
			fmt.Fprintf(&sb, "  launch %s (image %s, network %s", svc.Name, svc.Image, svc.Network)
			if len(svc.DependsOn) > 0 {
				fmt.Fprintf(&sb, ", after %s", strings.Join(svc.DependsOn, ", "))
			}
			sb.WriteString(")\n")
		}
	}
	return sb.String()
}
