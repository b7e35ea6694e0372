// Package monitor probes service health and drives the phase health gate.
// A probe failure is a health signal (unhealthy); a failure to reach the
// probe infrastructure itself is kept distinct (failed) so operators don't
// misdiagnose platform problems as application bugs.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/HamiGames/Lucid-sub000/internal/core/domain"
	"github.com/HamiGames/Lucid-sub000/internal/core/topology"
	"github.com/HamiGames/Lucid-sub000/internal/shell/runtime"
)

// =============================================================================
// Checker Interface
// =============================================================================

// Checker performs exactly one health probe for a service.
type Checker interface {
	CheckOnce(ctx context.Context, svc topology.Service) domain.HealthRecord
}

// ErrProbeInfra marks errors where the probe could not run at all.
var ErrProbeInfra = errors.New("probe infrastructure unreachable")

// =============================================================================
// Probe Checker
// =============================================================================

// ProbeChecker implements Checker against the container runtime. Probe
// dispatch is a lookup table keyed by probe type.
type ProbeChecker struct {
	client     runtime.Client
	httpClient *http.Client
	dial       func(ctx context.Context, network, addr string) (net.Conn, error)
	probes     map[topology.ProbeType]probeFunc
}

type probeFunc func(ctx context.Context, c *ProbeChecker, svc topology.Service) error

// NewProbeChecker creates a checker backed by the runtime client.
func NewProbeChecker(client runtime.Client) *ProbeChecker {
	c := &ProbeChecker{
		client:     client,
		httpClient: &http.Client{},
		dial:       (&net.Dialer{}).DialContext,
	}
	c.probes = map[topology.ProbeType]probeFunc{
		topology.ProbeHTTP: probeHTTP,
		topology.ProbeTCP:  probeTCP,
		topology.ProbeExec: probeExec,
	}
	return c
}

// CheckOnce performs exactly one probe with a bounded timeout. It never
// returns an error: probe failure is encoded as unhealthy, infrastructure
// failure as failed.
func (c *ProbeChecker) CheckOnce(ctx context.Context, svc topology.Service) domain.HealthRecord {
	record := domain.HealthRecord{
		Service:     svc.Name,
		LastChecked: time.Now().UTC(),
	}

	probe, ok := c.probes[svc.Probe.Type]
	if !ok {
		record.Status = domain.HealthFailed
		record.Detail = fmt.Sprintf("unknown probe type %q", svc.Probe.Type)
		return record
	}

	timeout := svc.Probe.Timeout
	if timeout == 0 {
		timeout = topology.DefaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := probe(probeCtx, c, svc)
	switch {
	case err == nil:
		record.Status = domain.HealthHealthy
	case errors.Is(err, ErrProbeInfra):
		record.Status = domain.HealthFailed
		record.Detail = err.Error()
	default:
		record.Status = domain.HealthUnhealthy
		record.Detail = err.Error()
	}
	return record
}

// probeAddress resolves the address a network probe should hit: the host
// port on loopback when published, otherwise the container's address on
// its deployment network.
func (c *ProbeChecker) probeAddress(ctx context.Context, svc topology.Service, port int) (string, error) {
	if svc.HostPort > 0 {
		return fmt.Sprintf("127.0.0.1:%d", svc.HostPort), nil
	}

	info, err := c.client.InspectContainer(ctx, svc.Name)
	if err != nil {
		return "", fmt.Errorf("%w: inspect %s: %v", ErrProbeInfra, svc.Name, err)
	}
	if info.IPAddress == "" {
		return "", fmt.Errorf("service %s has no network address", svc.Name)
	}
	return fmt.Sprintf("%s:%d", info.IPAddress, port), nil
}

func probePort(svc topology.Service) int {
	if svc.Probe.Port > 0 {
		return svc.Probe.Port
	}
	return svc.Port
}

// probeHTTP performs one GET and treats any 2xx as healthy.
func probeHTTP(ctx context.Context, c *ProbeChecker, svc topology.Service) error {
	addr, err := c.probeAddress(ctx, svc, probePort(svc))
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s%s", addr, svc.Probe.Path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrProbeInfra, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http probe: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("http probe: status %d", resp.StatusCode)
	}
	return nil
}

// probeTCP performs one connect attempt.
func probeTCP(ctx context.Context, c *ProbeChecker, svc topology.Service) error {
	addr, err := c.probeAddress(ctx, svc, probePort(svc))
	if err != nil {
		return err
	}

	conn, err := c.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp probe: %v", err)
	}
	return conn.Close()
}

// probeExec runs the probe command inside the running instance; exit 0 is
// healthy.
func probeExec(ctx context.Context, c *ProbeChecker, svc topology.Service) error {
	result, err := c.client.Exec(ctx, svc.Name, svc.Probe.Command)
	if err != nil {
		if errors.Is(err, runtime.ErrContainerNotFound) {
			return fmt.Errorf("exec probe: container not running")
		}
		return fmt.Errorf("%w: exec in %s: %v", ErrProbeInfra, svc.Name, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("exec probe: exit code %d", result.ExitCode)
	}
	return nil
}
