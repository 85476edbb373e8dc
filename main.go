// Package main provides the pgreindex command-line tool for unattended
// PostgreSQL index maintenance.
//
// pgreindex connects to a PostgreSQL server, detects bloated B-tree indexes
// across one or all databases, and rebuilds them with minimal lock
// contention: bounded retry with escalating backoff, leftover-artifact
// cleanup, a per-database failure budget, and before/after benefit
// accounting.
//
// Usage:
//
//	pgreindex -host db1 -username maint
//	pgreindex -dbname appdb -bloat-threshold 40 -maintenance-start 0100 -maintenance-stop 0500
//
// The password is taken from PGPASSWORD or ~/.pgpass.
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

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/koltyakov/pgreindex/internal/bloat"
	"github.com/koltyakov/pgreindex/internal/db"
	errs "github.com/koltyakov/pgreindex/internal/errors"
	"github.com/koltyakov/pgreindex/internal/logging"
	"github.com/koltyakov/pgreindex/internal/rebuild"
	"github.com/koltyakov/pgreindex/internal/session"
	"github.com/koltyakov/pgreindex/internal/window"
)

// version is the current application version, set at build time.
var version = "0.1.0"

// Default configuration values.
const (
	defaultPort           = 5432
	defaultBloatThreshold = 30
	defaultMinSizeMB      = 1
	defaultMaxSizeMB      = 1000000

	// discoveryDatabase is the maintenance database used to enumerate
	// targets when no -dbname was given.
	discoveryDatabase = "postgres"

	// discoveryTimeout bounds the initial database enumeration.
	discoveryTimeout = 30 * time.Second
)

// Exit codes. A gating early-exit (window closed, standby target) is a
// normal completion, not an error.
const (
	exitSuccess = 0
	exitFatal   = 1
)

func main() {
	os.Exit(run())
}

// run executes the main application logic and returns an exit code.
// This separation allows for easier testing and cleaner error handling.
//
// WORKFLOW:
//  1. Parse and validate command-line flags
//  2. Resolve the target database list (explicit or discovered)
//  3. Run the maintenance session across all targets
//  4. Map the outcome to an exit code per the error taxonomy
func run() int {
	cfg, err := parseFlags()
	if err != nil {
		if errors.Is(err, errShowVersion) {
			fmt.Println(version)
			return exitSuccess
		}
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitFatal
	}

	log := logging.New(uuid.NewString())
	defer func() { _ = log.Sync() }()

	orc, err := buildOrchestrator(cfg, log)
	if err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return exitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if orc.Databases, err = resolveDatabases(ctx, cfg); err != nil {
		log.Error("cannot resolve target databases", zap.Error(err))
		return exitFatal
	}
	log.Info("maintenance session starting",
		zap.Strings("databases", orc.Databases),
		zap.String("strategy", orc.Scanner.Name()),
		zap.String("window", orc.Window.String()))

	if _, err := orc.Run(ctx); err != nil {
		if errors.Is(err, errs.ErrStandby) || errors.Is(err, errs.ErrOutsideWindow) {
			// Gating abort: already logged as a warning by the orchestrator.
			return exitSuccess
		}
		log.Error("maintenance run failed", zap.Error(err))
		return exitFatal
	}
	return exitSuccess
}

// errShowVersion is returned when the -version flag is set.
var errShowVersion = errors.New("show version requested")

// Flags holds the command-line configuration options.
type Flags struct {
	Host             string  // Server host name or socket directory
	Port             int     // Server port
	Username         string  // Role to connect as
	DBName           string  // Single target database; empty discovers all
	BloatThreshold   float64 // Minimum bloat percentage for a rebuild
	IndexMinSizeMB   int64   // Minimum index size in MB
	IndexMaxSizeMB   int64   // Maximum index size in MB
	MaintenanceStart string  // Window start, HHMM
	MaintenanceStop  string  // Window stop, HHMM
	Strategy         string  // Bloat detection strategy
	FailedLimit      int     // Per-database failure budget; 0 = unlimited
	ParallelWorkers  int     // Intra-operation parallelism; 0 = disabled
	SortOrder        string  // Candidate ordering by size
	OnBlocked        string  // Gating policy: abort or skip
}

// Validate checks that the configuration is valid and returns an error if not.
func (f Flags) Validate() error {
	if f.Port < 1 || f.Port > 65535 {
		return errs.NewValidationError("port", fmt.Sprintf("%d", f.Port), "must be between 1 and 65535")
	}
	if f.FailedLimit < 0 {
		return errs.NewValidationError("failed-reindex-limit", fmt.Sprintf("%d", f.FailedLimit), "must not be negative")
	}
	if f.ParallelWorkers < 0 {
		return errs.NewValidationError("parallel-workers", fmt.Sprintf("%d", f.ParallelWorkers), "must not be negative")
	}
	return nil
}

// ScanOptions converts the size and threshold flags to scan filters.
func (f Flags) ScanOptions() bloat.Options {
	return bloat.Options{
		ThresholdPct: f.BloatThreshold,
		MinSizeBytes: f.IndexMinSizeMB << 20,
		MaxSizeBytes: f.IndexMaxSizeMB << 20,
		Order:        bloat.SortOrder(f.SortOrder),
	}
}

// ConnConfig converts the connection flags to a db config.
func (f Flags) ConnConfig() db.Config {
	return db.Config{
		Host:            f.Host,
		Port:            f.Port,
		User:            f.Username,
		ParallelWorkers: f.ParallelWorkers,
	}
}

// parseFlags parses command-line flags and returns the configuration.
// Returns errShowVersion if the -version flag was specified.
func parseFlags() (Flags, error) {
	var f Flags

	flag.StringVar(&f.Host, "host", os.Getenv("PGHOST"), "Server host name or socket directory")
	flag.IntVar(&f.Port, "port", defaultPort, "Server port")
	flag.StringVar(&f.Username, "username", os.Getenv("PGUSER"), "Role to connect as (default: current OS user)")
	flag.StringVar(&f.DBName, "dbname", "", "Target database (default: all non-template databases)")
	flag.Float64Var(&f.BloatThreshold, "bloat-threshold", defaultBloatThreshold, "Minimum bloat percentage for a rebuild")
	flag.Int64Var(&f.IndexMinSizeMB, "index-min-size", defaultMinSizeMB, "Minimum index size in MB")
	flag.Int64Var(&f.IndexMaxSizeMB, "index-max-size", defaultMaxSizeMB, "Maximum index size in MB")
	flag.StringVar(&f.MaintenanceStart, "maintenance-start", "", "Maintenance window start as HHMM (supports midnight wraparound)")
	flag.StringVar(&f.MaintenanceStop, "maintenance-stop", "", "Maintenance window stop as HHMM")
	flag.StringVar(&f.Strategy, "strategy", "estimate", "Bloat detection strategy: estimate or exact-scan")
	flag.IntVar(&f.FailedLimit, "failed-reindex-limit", 0, "Per-database failed rebuild limit before skipping the rest (0 = unlimited)")
	flag.IntVar(&f.ParallelWorkers, "parallel-workers", 0, "Parallel workers for a single rebuild (0 = server default)")
	flag.StringVar(&f.SortOrder, "sort-order", "asc", "Candidate ordering by index size: asc or desc")
	flag.StringVar(&f.OnBlocked, "on-blocked", "abort", "When gated (window closed, standby): abort the run or skip the database")
	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.Parse()

	if *showVersion {
		return Flags{}, errShowVersion
	}
	if err := f.Validate(); err != nil {
		return Flags{}, err
	}
	return f, nil
}

// buildOrchestrator translates validated flags into a wired session
// orchestrator. The target database list is resolved separately.
func buildOrchestrator(f Flags, log *zap.Logger) (*session.Orchestrator, error) {
	win, err := window.Parse(f.MaintenanceStart, f.MaintenanceStop)
	if err != nil {
		return nil, err
	}
	scanner, err := bloat.ForStrategy(f.Strategy)
	if err != nil {
		return nil, err
	}
	gating, err := session.ParseGatingPolicy(f.OnBlocked)
	if err != nil {
		return nil, err
	}
	opts := f.ScanOptions()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	connCfg := f.ConnConfig()
	return &session.Orchestrator{
		Connect: func(ctx context.Context, database string) (session.Target, error) {
			conn, err := db.Connect(ctx, connCfg.ForDatabase(database))
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		Scanner: scanner,
		Opts:    opts,
		NewRebuilder: func(t session.Target) session.Rebuilder {
			strategy := rebuild.ForProfile(t.Profile(), t, connCfg.ForDatabase(t.Name()))
			return &rebuild.Retryer{Strategy: strategy, Log: log}
		},
		StrategyExtensions: func(p db.ServerProfile) []string {
			return rebuild.ForProfile(p, nil, db.Config{}).RequiredExtensions()
		},
		Window: win,
		Gating: gating,
		Budget: session.FailureBudget{Limit: f.FailedLimit},
		Log:    log,
	}, nil
}

// resolveDatabases returns the target list: the explicit -dbname, or every
// connectable non-template database on the server.
func resolveDatabases(ctx context.Context, f Flags) ([]string, error) {
	if f.DBName != "" {
		return []string{f.DBName}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	conn, err := db.Connect(ctx, f.ConnConfig().ForDatabase(discoveryDatabase))
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	return conn.Databases(ctx)
}
