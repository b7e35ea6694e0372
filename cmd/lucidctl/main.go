// lucidctl drives phased, health-gated deployments: validate the topology,
// provision infrastructure, launch services, gate each phase on its health
// threshold, and roll back what fails.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HamiGames/Lucid-sub000/internal/core/report"
	"github.com/HamiGames/Lucid-sub000/internal/core/topology"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: lucidctl [flags] <action>

actions:
  deploy     run all phases in order, gating each on its health threshold
  start      alias for deploy
  stop       stop every topology service, last phase first
  status     probe every service once and report (with --serve: keep serving)
  test       deploy with continue-on-failure, for verification runs
  rollback   restore a phase to an earlier revision (--phase, optionally --to)
  clean      force-remove all managed containers (requires --force)

flags:
`)
	flag.PrintDefaults()
}

func run() int {
	configPath := flag.String("config", "", "path to config file")
	topoPath := flag.String("topology", "", "path to topology file (overrides config)")
	cluster := flag.String("cluster", "", "cluster id to report under")
	environment := flag.String("environment", "dev", "deployment environment (dev|test|prod)")
	format := flag.String("format", "text", "report format (text|json)")
	timeout := flag.Int("timeout", 0, "health-check wait budget per phase, in seconds")
	force := flag.Bool("force", false, "required for clean (emergency rollback)")
	dryRun := flag.Bool("dry-run", false, "print the plan without invoking any collaborator")
	verbose := flag.Bool("verbose", false, "debug logging")
	serve := flag.Bool("serve", false, "with status: serve /healthz and /status over HTTP")
	phase := flag.String("phase", "", "phase id for rollback")
	toRevision := flag.Int64("to", 0, "target revision id for rollback (default: previous)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("lucidctl %s (built %s)\n", Version, BuildTime)
		return ExitHealthy
	}

	action := flag.Arg(0)
	if action == "" {
		usage()
		return ExitConfigError
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	if *topoPath != "" {
		cfg.Topology.Path = *topoPath
	}

	reportFormat, err := report.ParseFormat(*format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return ExitConfigError
	}

	logger := SetupLogger(cfg, *verbose)
	logger.Info("lucidctl starting",
		"version", Version,
		"action", action,
		"topology", cfg.Topology.Path,
	)

	opts := cliOptions{
		Cluster:     *cluster,
		Environment: *environment,
		Format:      reportFormat,
		Timeout:     time.Duration(*timeout) * time.Second,
		Force:       *force,
		DryRun:      *dryRun,
		Serve:       *serve,
		Phase:       *phase,
		ToRevision:  *toRevision,
	}

	a, err := newApp(cfg, opts, logger)
	if err != nil {
		var cerr *topology.ConfigError
		if errors.As(err, &cerr) {
			fmt.Fprintf(os.Stderr, "topology validation failed:\n%v\n", cerr)
			return ExitConfigError
		}
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		return ExitConfigError
	}
	defer a.close()

	// An interrupt aborts the run after the current round; phases are
	// never left mid-flight.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch action {
	case "deploy", "start":
		return a.runDeploy(ctx, false)
	case "test":
		return a.runDeploy(ctx, true)
	case "stop":
		return a.runStop(ctx)
	case "status":
		return a.runStatus(ctx)
	case "rollback":
		return a.runRollback(ctx)
	case "clean":
		return a.runClean(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", action)
		usage()
		return ExitConfigError
	}
}
