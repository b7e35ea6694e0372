package topology

import (
	"fmt"
	"net/netip"
	"strings"
)

// =============================================================================
// Topology Validation
// =============================================================================

// Validate checks the full topology and returns every violation found, not
// just the first. A nil return means the topology is deployable.
func Validate(t *Topology) *ConfigError {
	cfgErr := &ConfigError{}

	if t == nil {
		cfgErr.add(ErrEmptyInput, "", "topology is empty")
		return cfgErr
	}
	if len(t.Phases) == 0 {
		cfgErr.add(ErrNoPhases, "phases", "at least one phase is required")
	}
	if len(t.Services) == 0 {
		cfgErr.add(ErrNoServices, "services", "at least one service is required")
	}

	validateServices(t, cfgErr)
	validatePhases(t, cfgErr)
	validateNetworks(t, cfgErr)

	if cfgErr.HasViolations() {
		return cfgErr
	}
	return nil
}

func validateServices(t *Topology, cfgErr *ConfigError) {
	seen := make(map[string]bool, len(t.Services))
	for i, svc := range t.Services {
		field := fmt.Sprintf("services[%d]", i)

		if svc.Name == "" {
			cfgErr.add(ErrUnknownService, field+".name", "service name is required")
			continue
		}
		if seen[svc.Name] {
			cfgErr.add(ErrDuplicateService, field+".name", "service %q declared more than once", svc.Name)
		}
		seen[svc.Name] = true

		if svc.Network == "" {
			cfgErr.add(ErrUnknownNetwork, field+".network", "service %q declares no network", svc.Name)
		} else if _, ok := t.Network(svc.Network); !ok {
			cfgErr.add(ErrUnknownNetwork, field+".network", "service %q references undeclared network %q", svc.Name, svc.Network)
		}

		switch svc.Kind {
		case "", KindContainer, KindBuild:
		default:
			cfgErr.add(ErrUnknownKind, field+".kind", "service %q has unknown kind %q", svc.Name, svc.Kind)
		}

		validateProbe(svc, field+".probe", cfgErr)
	}
}

func validateProbe(svc Service, field string, cfgErr *ConfigError) {
	switch svc.Probe.Type {
	case ProbeHTTP:
		if svc.Probe.Path == "" {
			cfgErr.add(ErrInvalidProbe, field, "service %q http probe requires a path", svc.Name)
		}
	case ProbeTCP:
		if svc.Probe.Port == 0 && svc.Port == 0 {
			cfgErr.add(ErrInvalidProbe, field, "service %q tcp probe requires a port", svc.Name)
		}
	case ProbeExec:
		if len(svc.Probe.Command) == 0 {
			cfgErr.add(ErrInvalidProbe, field, "service %q exec probe requires a command", svc.Name)
		}
	default:
		cfgErr.add(ErrInvalidProbe, field+".type", "service %q has unknown probe type %q", svc.Name, svc.Probe.Type)
	}
}

func validatePhases(t *Topology, cfgErr *ConfigError) {
	// Ordinals must form a contiguous total order starting at 1.
	byOrdinal := make(map[int]string, len(t.Phases))
	for i, p := range t.Phases {
		field := fmt.Sprintf("phases[%d]", i)
		if prev, dup := byOrdinal[p.Ordinal]; dup {
			cfgErr.add(ErrOrdinalGap, field+".ordinal", "phases %q and %q share ordinal %d", prev, p.ID, p.Ordinal)
		}
		byOrdinal[p.Ordinal] = p.ID

		if p.HealthThreshold < 0 || p.HealthThreshold > 1 {
			cfgErr.add(ErrInvalidThreshold, field+".health_threshold", "phase %q threshold %.2f is outside (0,1]", p.ID, p.HealthThreshold)
		}
	}
	for want := 1; want <= len(t.Phases); want++ {
		if _, ok := byOrdinal[want]; !ok {
			cfgErr.add(ErrOrdinalGap, "phases", "no phase has ordinal %d", want)
		}
	}

	// A service belongs to exactly one phase, and no phase is empty: an
	// empty service set can never satisfy a health threshold.
	owner := make(map[string]string)
	for i, p := range t.Phases {
		if len(p.Services) == 0 {
			cfgErr.add(ErrNoServices, fmt.Sprintf("phases[%d].services", i), "phase %q declares no services", p.ID)
		}
		inPhase := make(map[string]bool, len(p.Services))
		for j, name := range p.Services {
			field := fmt.Sprintf("phases[%d].services[%d]", i, j)
			if _, ok := t.Service(name); !ok {
				cfgErr.add(ErrUnknownService, field, "phase %q references undeclared service %q", p.ID, name)
				continue
			}
			if prev, claimed := owner[name]; claimed {
				cfgErr.add(ErrDuplicateService, field, "service %q assigned to phases %q and %q", name, prev, p.ID)
			}
			owner[name] = p.ID
			inPhase[name] = true
		}

		validatePhaseDeps(t, p, inPhase, cfgErr)
	}

	for _, svc := range t.Services {
		if _, ok := owner[svc.Name]; !ok {
			cfgErr.add(ErrUnknownService, "phases", "service %q is not assigned to any phase", svc.Name)
		}
	}
}

// validatePhaseDeps checks that every dependency resolves within the phase
// and that the within-phase dependency graph is acyclic. Cross-phase
// ordering is expressed via phase ordinals, never per-service edges.
func validatePhaseDeps(t *Topology, p Phase, inPhase map[string]bool, cfgErr *ConfigError) {
	edges := make(map[string][]string)
	for _, name := range p.Services {
		svc, ok := t.Service(name)
		if !ok {
			continue
		}
		for k, dep := range svc.DependsOn {
			field := fmt.Sprintf("service %q depends_on[%d]", name, k)
			if dep == name {
				cfgErr.add(ErrCircularDependency, field, "service %q depends on itself", name)
				continue
			}
			if !inPhase[dep] {
				if _, declared := t.Service(dep); declared {
					cfgErr.add(ErrCrossPhaseDep, field, "service %q depends on %q outside phase %q", name, dep, p.ID)
				} else {
					cfgErr.add(ErrUnknownService, field, "service %q depends on undeclared service %q", name, dep)
				}
				continue
			}
			edges[name] = append(edges[name], dep)
		}
	}

	if cycle := findCycle(p.Services, edges); cycle != nil {
		cfgErr.add(ErrCircularDependency, fmt.Sprintf("phase %q", p.ID),
			"dependency cycle: %s", strings.Join(cycle, " -> "))
	}
}

// =============================================================================
// Cycle Detection
// =============================================================================

// findCycle returns a cycle path through the dependency graph, or nil when
// the graph is acyclic. Kahn's algorithm detects the cycle; a DFS over the
// leftover nodes reconstructs the path so the error can name it.
func findCycle(nodes []string, edges map[string][]string) []string {
	inDegree := make(map[string]int, len(nodes))
	forward := make(map[string][]string)
	for _, n := range nodes {
		inDegree[n] = 0
	}
	for node, deps := range edges {
		for _, dep := range deps {
			inDegree[node]++
			forward[dep] = append(forward[dep], node)
		}
	}

	var queue []string
	for _, n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	processed := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		processed++
		for _, dependent := range forward[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	if processed == len(nodes) {
		return nil
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	parent := make(map[string]string)
	var cycle []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = gray
		for _, dep := range edges[node] {
			if color[dep] == gray {
				cycle = []string{dep}
				for cur := node; cur != dep; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, dep)
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return true
			}
			if color[dep] == white {
				parent[dep] = node
				if dfs(dep) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	for _, n := range nodes {
		if inDegree[n] > 0 && color[n] == white {
			if dfs(n) {
				return cycle
			}
		}
	}
	return []string{"(cycle detected)"}
}

// =============================================================================
// Network Validation
// =============================================================================

func validateNetworks(t *Topology, cfgErr *ConfigError) {
	seen := make(map[string]bool, len(t.Networks))
	prefixes := make([]netip.Prefix, 0, len(t.Networks))
	names := make([]string, 0, len(t.Networks))

	for i, n := range t.Networks {
		field := fmt.Sprintf("networks[%d]", i)
		if seen[n.Name] {
			cfgErr.add(ErrDuplicateNetwork, field+".name", "network %q declared more than once", n.Name)
		}
		seen[n.Name] = true

		prefix, err := netip.ParsePrefix(n.Subnet)
		if err != nil {
			cfgErr.add(ErrInvalidSubnet, field+".subnet", "network %q subnet %q: %v", n.Name, n.Subnet, err)
			continue
		}

		if n.Gateway != "" {
			gw, err := netip.ParseAddr(n.Gateway)
			if err != nil {
				cfgErr.add(ErrInvalidSubnet, field+".gateway", "network %q gateway %q: %v", n.Name, n.Gateway, err)
			} else if !prefix.Contains(gw) {
				cfgErr.add(ErrInvalidSubnet, field+".gateway", "network %q gateway %s is outside subnet %s", n.Name, n.Gateway, n.Subnet)
			}
		}

		for j, other := range prefixes {
			if prefix.Overlaps(other) {
				cfgErr.add(ErrSubnetOverlap, field+".subnet", "network %q subnet %s overlaps %q (%s)", n.Name, n.Subnet, names[j], other)
			}
		}
		prefixes = append(prefixes, prefix)
		names = append(names, n.Name)
	}
}
