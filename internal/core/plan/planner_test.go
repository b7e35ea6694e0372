package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HamiGames/Lucid-sub000/internal/core/topology"
)

func planTopology() *topology.Topology {
	return &topology.Topology{
		Phases: []topology.Phase{
			{ID: "edge", Ordinal: 2, Services: []string{"proxy"}},
			{ID: "core", Ordinal: 1, Services: []string{"api", "db"}},
		},
		Services: []topology.Service{
			{Name: "api", Network: "backend", Image: "lucid/api", DependsOn: []string{"db"}},
			{Name: "db", Network: "backend", Image: "postgres:16"},
			{Name: "proxy", Network: "frontend", Image: "nginx:1.27"},
		},
		Networks: []topology.Network{
			{Name: "backend", Subnet: "172.20.0.0/24"},
			{Name: "frontend", Subnet: "172.21.0.0/24"},
		},
		Volumes:     []string{"pgdata"},
		Directories: []string{"/srv/lucid"},
	}
}

func TestBuild(t *testing.T) {
	p := Build(planTopology(), "lucid-main", "test", 2*time.Minute)

	require.Len(t, p.Phases, 2)
	assert.Equal(t, "core", p.Phases[0].PhaseID)
	assert.Equal(t, "edge", p.Phases[1].PhaseID)

	// db precedes api inside its phase.
	core := p.Phases[0]
	require.Len(t, core.Services, 2)
	assert.Equal(t, "db", core.Services[0].Name)
	assert.Equal(t, "api", core.Services[1].Name)

	// Each network is provisioned by the first phase that uses it.
	assert.Equal(t, []string{"backend"}, core.Networks)
	assert.Equal(t, []string{"frontend"}, p.Phases[1].Networks)

	// Volumes are attributed once, to the first phase.
	assert.Equal(t, []string{"pgdata"}, core.Volumes)
	assert.Empty(t, p.Phases[1].Volumes)

	assert.Equal(t, []string{"/srv/lucid"}, p.Directories)
	assert.Equal(t, 2*time.Minute, p.MaxWait)
}

func TestOrderServices(t *testing.T) {
	services := []topology.Service{
		{Name: "c", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
		{Name: "a"},
	}

	ordered := OrderServices(services)
	require.Len(t, ordered, 3)
	assert.Equal(t, "a", ordered[0].Name)
	assert.Equal(t, "b", ordered[1].Name)
	assert.Equal(t, "c", ordered[2].Name)
}

func TestOrderServices_NeverDropsServices(t *testing.T) {
	// A cycle is rejected at validation time; planning still keeps every
	// service if one slips through.
	services := []topology.Service{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
		{Name: "c"},
	}

	ordered := OrderServices(services)
	assert.Len(t, ordered, 3)
}

func TestRenderText(t *testing.T) {
	p := Build(planTopology(), "lucid-main", "dev", time.Minute)
	out := p.RenderText()

	assert.Contains(t, out, `cluster "lucid-main"`)
	assert.Contains(t, out, "phase 1: core")
	assert.Contains(t, out, "phase 2: edge")
	assert.Contains(t, out, "ensure network backend")
	assert.Contains(t, out, "ensure volume pgdata")
	assert.Contains(t, out, "ensure directory /srv/lucid")
	assert.Contains(t, out, "launch db")
	assert.Contains(t, out, "after db")
}
