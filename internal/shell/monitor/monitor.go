package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/HamiGames/Lucid-sub000/internal/core/domain"
	"github.com/HamiGames/Lucid-sub000/internal/core/health"
	"github.com/HamiGames/Lucid-sub000/internal/core/topology"
)

// =============================================================================
// Monitor Config
// =============================================================================

// Config configures the health monitor.
type Config struct {
	// PollInterval is the fixed time between probe rounds. No backoff:
	// the interval stays constant for the life of one await.
	PollInterval time.Duration

	// MaxWait bounds the whole health-check window for a phase.
	MaxWait time.Duration

	// MaxConcurrent is the maximum number of probes in flight at once.
	MaxConcurrent int
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:  5 * time.Second,
		MaxWait:       3 * time.Minute,
		MaxConcurrent: 8,
	}
}

// =============================================================================
// Monitor
// =============================================================================

// Monitor polls service health until a phase's threshold is met or the
// wait budget runs out.
type Monitor struct {
	checker Checker
	clock   Clock
	config  Config
	logger  *slog.Logger
}

// New creates a monitor. A nil clock means wall-clock time.
func New(checker Checker, clock Clock, config Config, logger *slog.Logger) *Monitor {
	if clock == nil {
		clock = RealClock()
	}
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.MaxWait == 0 {
		config.MaxWait = 3 * time.Minute
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		checker: checker,
		clock:   clock,
		config:  config,
		logger:  logger.With("component", "monitor"),
	}
}

// CheckOnce performs exactly one probe for a service.
func (m *Monitor) CheckOnce(ctx context.Context, svc topology.Service) domain.HealthRecord {
	return m.checker.CheckOnce(ctx, svc)
}

// AwaitHealthy polls all services of a phase until the healthy fraction
// meets the phase threshold or MaxWait elapses. Probes for independent
// services run concurrently with bounded parallelism; a service whose
// in-phase dependencies are not yet healthy is not probed and stays
// pending. Consecutive-failure counts are carried across rounds within
// one call. Context cancellation ends the wait after the current round.
func (m *Monitor) AwaitHealthy(ctx context.Context, phase topology.Phase, services []topology.Service) domain.PhaseHealthReport {
	threshold := phase.Threshold()
	start := m.clock.Now()

	records := make(map[string]domain.HealthRecord, len(services))
	for _, svc := range services {
		records[svc.Name] = domain.HealthRecord{
			Service: svc.Name,
			Status:  domain.HealthPending,
		}
	}

	report := domain.PhaseHealthReport{
		PhaseID:   phase.ID,
		Threshold: threshold,
	}

	for {
		report.Rounds++
		m.runRound(ctx, services, records)

		report.Records = orderedRecords(services, records)
		report.Elapsed = m.clock.Now().Sub(start)

		if report.HealthyFraction() >= threshold {
			report.Verdict = health.Verdict(report.Records, threshold)
			m.logger.Info("phase health threshold met",
				"phase", phase.ID,
				"verdict", report.Verdict,
				"rounds", report.Rounds,
			)
			return report
		}

		if report.Elapsed >= m.config.MaxWait || ctx.Err() != nil {
			report.Verdict = domain.VerdictTimedOut
			m.logger.Warn("phase health threshold not met",
				"phase", phase.ID,
				"healthy_fraction", report.HealthyFraction(),
				"threshold", threshold,
				"elapsed", report.Elapsed,
			)
			return report
		}

		select {
		case <-ctx.Done():
			report.Verdict = domain.VerdictTimedOut
			return report
		case <-m.clock.After(m.config.PollInterval):
		}
	}
}

// runRound probes every eligible service once, concurrently.
func (m *Monitor) runRound(ctx context.Context, services []topology.Service, records map[string]domain.HealthRecord) {
	// Eligibility is decided against the previous round's records, before
	// any probe goroutine can write. A dependent whose dependencies are
	// not yet healthy stays pending and never blocks its siblings.
	eligible := make([]topology.Service, 0, len(services))
	for _, svc := range services {
		if m.depsHealthy(svc, records) {
			eligible = append(eligible, svc)
		}
	}

	sem := make(chan struct{}, m.config.MaxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, svc := range eligible {
		wg.Add(1)
		go func(svc topology.Service) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}

			record := m.checker.CheckOnce(ctx, svc)

			mu.Lock()
			prev := records[svc.Name]
			if record.Status == domain.HealthHealthy {
				record.ConsecutiveFailures = 0
			} else {
				record.ConsecutiveFailures = prev.ConsecutiveFailures + 1
			}
			records[svc.Name] = record
			mu.Unlock()
		}(svc)
	}

	wg.Wait()
}

// depsHealthy reports whether all of a service's in-phase dependencies
// are currently healthy.
func (m *Monitor) depsHealthy(svc topology.Service, records map[string]domain.HealthRecord) bool {
	for _, dep := range svc.DependsOn {
		if records[dep].Status != domain.HealthHealthy {
			return false
		}
	}
	return true
}

// orderedRecords snapshots the record map in topology order.
func orderedRecords(services []topology.Service, records map[string]domain.HealthRecord) []domain.HealthRecord {
	out := make([]domain.HealthRecord, 0, len(services))
	for _, svc := range services {
		out = append(out, records[svc.Name])
	}
	return out
}
