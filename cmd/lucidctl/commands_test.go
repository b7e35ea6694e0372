package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/HamiGames/Lucid-sub000/internal/core/domain"
	"github.com/HamiGames/Lucid-sub000/internal/core/report"
	"github.com/HamiGames/Lucid-sub000/internal/core/topology"
	"github.com/HamiGames/Lucid-sub000/internal/shell/monitor"
)

type countingChecker struct {
	mu     sync.Mutex
	probes int
}

func (c *countingChecker) CheckOnce(_ context.Context, svc topology.Service) domain.HealthRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes++
	return domain.HealthRecord{Service: svc.Name, Status: domain.HealthHealthy}
}

func newStatusApp(checker *countingChecker, serve bool) *app {
	return &app{
		cfg: &Config{
			Server: ServerConfig{Addr: "127.0.0.1:0"},
		},
		opts: cliOptions{Serve: serve, Format: report.FormatText},
		topo: &topology.Topology{
			Phases: []topology.Phase{
				{ID: "core", Ordinal: 1, Services: []string{"api"}},
			},
			Services: []topology.Service{
				{Name: "api", Network: "backend", Port: 8080, Probe: topology.Probe{Type: topology.ProbeTCP}},
			},
			Networks: []topology.Network{
				{Name: "backend", Subnet: "172.20.0.0/24"},
			},
		},
		monitor: monitor.New(checker, nil, monitor.Config{
			PollInterval:  time.Second,
			MaxWait:       time.Second,
			MaxConcurrent: 1,
		}, nil),
	}
}

func TestRunStatus_ProbesOncePerService(t *testing.T) {
	checker := &countingChecker{}
	a := newStatusApp(checker, false)

	code := a.runStatus(context.Background())
	assert.Equal(t, ExitHealthy, code)
	assert.Equal(t, 1, checker.probes)
}

func TestRunStatus_ServeSkipsUpfrontProbeRound(t *testing.T) {
	checker := &countingChecker{}
	a := newStatusApp(checker, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code := a.runStatus(ctx)
	assert.Equal(t, ExitHealthy, code)
	// Probe rounds run per request; standing up the server costs none.
	assert.Zero(t, checker.probes)
}
