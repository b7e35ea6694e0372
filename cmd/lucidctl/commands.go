package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/HamiGames/Lucid-sub000/internal/core/domain"
	"github.com/HamiGames/Lucid-sub000/internal/core/health"
	"github.com/HamiGames/Lucid-sub000/internal/core/report"
	"github.com/HamiGames/Lucid-sub000/internal/core/topology"
	"github.com/HamiGames/Lucid-sub000/internal/shell/api"
	"github.com/HamiGames/Lucid-sub000/internal/shell/launcher"
	"github.com/HamiGames/Lucid-sub000/internal/shell/monitor"
	"github.com/HamiGames/Lucid-sub000/internal/shell/orchestrator"
	"github.com/HamiGames/Lucid-sub000/internal/shell/provision"
	"github.com/HamiGames/Lucid-sub000/internal/shell/remote"
	"github.com/HamiGames/Lucid-sub000/internal/shell/revlog"
	"github.com/HamiGames/Lucid-sub000/internal/shell/rollback"
	"github.com/HamiGames/Lucid-sub000/internal/shell/runtime"
	"github.com/HamiGames/Lucid-sub000/internal/shell/secrets"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitHealthy     = 0
	ExitWarning     = 1
	ExitUnhealthy   = 2
	ExitConfigError = 3
)

// =============================================================================
// App Wiring
// =============================================================================

// app holds the wired collaborators for one CLI invocation.
type app struct {
	cfg    *Config
	opts   cliOptions
	logger *slog.Logger
	topo   *topology.Topology

	client       runtime.Client
	store        revlog.Store
	channel      *remote.Channel
	monitor      *monitor.Monitor
	orchestrator *orchestrator.Orchestrator
	rollback     *rollback.Manager
}

// cliOptions carries the parsed command-line flags into the actions.
type cliOptions struct {
	Cluster     string
	Environment string
	Format      report.Format
	Timeout     time.Duration
	Force       bool
	DryRun      bool
	Serve       bool
	Phase       string
	ToRevision  int64 // 0 means previous revision
}

// loadTopology reads, parses and validates the deployment description. A
// validation failure lists every violation at once.
func loadTopology(cfg *Config) (*topology.Topology, error) {
	data, err := os.ReadFile(cfg.Topology.Path)
	if err != nil {
		return nil, fmt.Errorf("read topology %s: %w", cfg.Topology.Path, err)
	}

	topo, err := topology.Parse(data, cfg.Values)
	if err != nil {
		return nil, err
	}

	if cerr := topology.Validate(topo); cerr != nil {
		return nil, cerr
	}
	return topo, nil
}

// newApp wires the collaborators. Nothing here has side effects on
// deployment infrastructure; actions drive those explicitly.
func newApp(cfg *Config, opts cliOptions, logger *slog.Logger) (*app, error) {
	topo, err := loadTopology(cfg)
	if err != nil {
		return nil, err
	}

	// Dry runs compute and print plans only; the runtime and the revision
	// log are never opened.
	if opts.DryRun {
		return &app{
			cfg:          cfg,
			opts:         opts,
			logger:       logger,
			topo:         topo,
			orchestrator: orchestrator.New(nil, nil, nil, nil, nil, logger),
		}, nil
	}

	client, err := runtime.NewDockerClient(cfg.Docker.Host)
	if err != nil {
		return nil, fmt.Errorf("container runtime: %w", err)
	}

	secretStore, err := buildSecretStore(cfg)
	if err != nil {
		client.Close()
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		client.Close()
		return nil, fmt.Errorf("revision log directory: %w", err)
	}
	store, err := revlog.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		client.Close()
		return nil, err
	}

	maxWait := cfg.Monitor.MaxWait
	if opts.Timeout > 0 {
		maxWait = opts.Timeout
	}

	resolver := launcher.NewResolver(cfg.Values, secretStore)
	l := launcher.New(client, resolver, logger)
	prov := provision.New(client, logger)

	// A remote engine needs its deployment directories created on that
	// host, not here.
	var channel *remote.Channel
	if strings.HasPrefix(cfg.Docker.Host, "ssh://") {
		channel, err = dialRemote(cfg)
		if err != nil {
			store.Close()
			client.Close()
			return nil, err
		}
		prov.Dirs = channel
	}

	checker := monitor.NewProbeChecker(client)
	mon := monitor.New(checker, nil, monitor.Config{
		PollInterval:  cfg.Monitor.PollInterval,
		MaxWait:       maxWait,
		MaxConcurrent: cfg.Monitor.MaxConcurrent,
	}, logger)
	rb := rollback.New(store, l, client, logger)
	orch := orchestrator.New(prov, l, mon, rb, nil, logger)

	return &app{
		cfg:          cfg,
		opts:         opts,
		logger:       logger,
		topo:         topo,
		client:       client,
		store:        store,
		channel:      channel,
		monitor:      mon,
		orchestrator: orch,
		rollback:     rb,
	}, nil
}

// dialRemote builds the SSH channel for an ssh:// Docker host. The key
// file path is configuration; the key material is never logged.
func dialRemote(cfg *Config) (*remote.Channel, error) {
	u, err := url.Parse(cfg.Docker.Host)
	if err != nil {
		return nil, fmt.Errorf("parse docker host: %w", err)
	}
	if cfg.Docker.SSHKey == "" {
		return nil, fmt.Errorf("docker host %s requires docker.ssh_key", u.Host)
	}

	key, err := os.ReadFile(cfg.Docker.SSHKey)
	if err != nil {
		return nil, fmt.Errorf("read SSH key: %w", err)
	}

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parse docker host port %q: %w", p, err)
		}
	}

	return remote.New(key, remote.Config{
		User: u.User.Username(),
		Host: u.Hostname(),
		Port: port,
	})
}

// buildSecretStore selects the secret source. The file store's passphrase
// comes from the environment and is never logged.
func buildSecretStore(cfg *Config) (secrets.Store, error) {
	switch cfg.Secrets.Source {
	case "", "env":
		return secrets.NewEnvStore(), nil
	case "file":
		passphrase := os.Getenv(cfg.Secrets.PassphraseEnv)
		if passphrase == "" {
			return nil, fmt.Errorf("secrets passphrase not set (env %s)", cfg.Secrets.PassphraseEnv)
		}
		return secrets.NewFileStore(cfg.Secrets.Path, passphrase)
	default:
		return nil, fmt.Errorf("unknown secrets source %q", cfg.Secrets.Source)
	}
}

func (a *app) close() {
	if a.channel != nil {
		a.channel.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
}

func (a *app) orchestratorOptions(continueOnFailure bool) orchestrator.Options {
	maxWait := a.cfg.Monitor.MaxWait
	if a.opts.Timeout > 0 {
		maxWait = a.opts.Timeout
	}
	return orchestrator.Options{
		Cluster:           a.opts.Cluster,
		Environment:       a.opts.Environment,
		ContinueOnFailure: continueOnFailure,
		MaxWait:           maxWait,
	}
}

// =============================================================================
// Actions
// =============================================================================

// runDeploy drives the full phased deployment. The test action is the
// same run with continue-on-failure, used for verification only.
func (a *app) runDeploy(ctx context.Context, continueOnFailure bool) int {
	if a.opts.DryRun {
		plan := a.orchestrator.DryRun(a.topo, a.orchestratorOptions(continueOnFailure))
		fmt.Print(plan.RenderText())
		return ExitHealthy
	}

	result, err := a.orchestrator.Deploy(ctx, a.topo, a.orchestratorOptions(continueOnFailure))
	if err != nil {
		fmt.Fprintf(os.Stderr, "deploy failed: %v\n", err)
		return ExitConfigError
	}

	rpt := report.Build(result.RunID, a.opts.Cluster, a.opts.Environment, result.Runs, time.Now().UTC())
	a.printReport(rpt)
	return rpt.Status.ExitCode()
}

// runStop stops every service in the topology, last phase first.
func (a *app) runStop(ctx context.Context) int {
	if a.opts.DryRun {
		fmt.Println("would stop all topology services, last phase first")
		return ExitHealthy
	}
	if err := a.orchestrator.StopAll(ctx, a.topo); err != nil {
		fmt.Fprintf(os.Stderr, "stop failed: %v\n", err)
		return ExitUnhealthy
	}
	return ExitHealthy
}

// runStatus probes every service once and reports point-in-time health.
// With --serve no upfront probe round runs; each request triggers its own.
func (a *app) runStatus(ctx context.Context) int {
	if a.opts.Serve {
		return a.serveStatus(ctx)
	}

	rpt := a.statusReport(ctx)
	a.printReport(rpt)
	return rpt.Status.ExitCode()
}

// statusReport builds a deployment report from one probe round.
func (a *app) statusReport(ctx context.Context) report.DeploymentReport {
	var runs []domain.PhaseRun
	for _, phase := range a.topo.OrderedPhases() {
		var records []domain.HealthRecord
		for _, svc := range a.topo.PhaseServices(phase) {
			records = append(records, a.monitor.CheckOnce(ctx, svc))
		}

		verdict := health.Verdict(records, phase.Threshold())
		run := domain.PhaseRun{
			PhaseID: phase.ID,
			Ordinal: phase.Ordinal,
			Verdict: verdict,
			Records: records,
		}
		if health.VerdictMeetsThreshold(verdict) {
			run.State = domain.PhasePassed
		} else {
			run.State = domain.PhaseFailed
			run.ErrorMessage = fmt.Sprintf("healthy fraction below threshold %.2f", phase.Threshold())
		}
		runs = append(runs, run)
	}

	return report.Build("", a.opts.Cluster, a.opts.Environment, runs, time.Now().UTC())
}

// serveStatus runs the status endpoint until the context is cancelled.
func (a *app) serveStatus(ctx context.Context) int {
	srv := api.NewServer(a.cfg.Server.Addr, func() report.DeploymentReport {
		probeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return a.statusReport(probeCtx)
	}, a.logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return ExitHealthy
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "status server: %v\n", err)
			return ExitUnhealthy
		}
		return ExitHealthy
	}
}

// runRollback restores one phase to an earlier revision.
func (a *app) runRollback(ctx context.Context) int {
	if a.opts.Phase == "" {
		fmt.Fprintln(os.Stderr, "rollback requires --phase")
		return ExitConfigError
	}
	if _, ok := a.topo.PhaseByID(a.opts.Phase); !ok {
		fmt.Fprintf(os.Stderr, "unknown phase %q\n", a.opts.Phase)
		return ExitConfigError
	}

	var to *int64
	if a.opts.ToRevision > 0 {
		to = &a.opts.ToRevision
	}

	if a.opts.DryRun {
		fmt.Printf("would roll back phase %s", a.opts.Phase)
		if to != nil {
			fmt.Printf(" to revision %d", *to)
		} else {
			fmt.Print(" to the previous revision")
		}
		fmt.Println()
		return ExitHealthy
	}

	if err := a.rollback.Rollback(ctx, a.opts.Phase, to); err != nil {
		fmt.Fprintf(os.Stderr, "rollback failed: %v\n", err)
		if errors.Is(err, rollback.ErrNoHistory) || errors.Is(err, rollback.ErrWrongPhase) {
			return ExitConfigError
		}
		return ExitUnhealthy
	}

	fmt.Printf("phase %s rolled back\n", a.opts.Phase)
	return ExitHealthy
}

// runClean force-removes every managed container. Requires --force;
// networks, volumes and the revision log are preserved.
func (a *app) runClean(ctx context.Context) int {
	if a.opts.DryRun {
		fmt.Println("would force-remove all managed containers (networks and volumes preserved)")
		return ExitHealthy
	}

	if err := a.rollback.EmergencyRollback(ctx, a.opts.Force); err != nil {
		if errors.Is(err, rollback.ErrForceRequired) {
			fmt.Fprintln(os.Stderr, "clean refuses to run without --force")
			return ExitConfigError
		}
		fmt.Fprintf(os.Stderr, "clean failed: %v\n", err)
		return ExitUnhealthy
	}

	fmt.Println("managed containers removed; networks and volumes preserved")
	return ExitHealthy
}

// printReport renders the report in the selected format.
func (a *app) printReport(rpt report.DeploymentReport) {
	out, err := report.Render(rpt, a.opts.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render report: %v\n", err)
		return
	}
	fmt.Print(out)
}
