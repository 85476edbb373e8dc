// Package session orchestrates a maintenance run across one or many
// databases.
//
// For each database the orchestrator sequences the other components: health
// check, advisory lock, extension provisioning, bloat scan, then per
// candidate a defensive re-check of health and maintenance window, the
// retrying rebuild, and benefit accounting. Work is fully synchronous: one
// index at a time, one database at a time. All state travels in explicit
// DatabaseRun and Summary values.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/koltyakov/pgreindex/internal/bloat"
	"github.com/koltyakov/pgreindex/internal/db"
	errs "github.com/koltyakov/pgreindex/internal/errors"
	"github.com/koltyakov/pgreindex/internal/rebuild"
	"github.com/koltyakov/pgreindex/internal/window"
)

// Target is one connected database. *db.Conn satisfies it; tests use fakes.
type Target interface {
	// Name returns the database name.
	Name() string

	// Health probes liveness and standby state.
	Health(ctx context.Context) db.Status

	// Profile returns the server profile resolved at connect time.
	Profile() db.ServerProfile

	// EnsureExtension idempotently provisions a helper extension.
	EnsureExtension(ctx context.Context, name string) error

	// RelationSize measures a relation's current on-disk size.
	RelationSize(ctx context.Context, qualified string) (int64, error)

	// AcquireLock takes the per-database advisory lock without waiting.
	AcquireLock(ctx context.Context) (bool, error)

	// ReleaseLock releases the advisory lock if held.
	ReleaseLock(ctx context.Context) error

	// Query executes a scan query on the session.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)

	// Exec executes a rebuild or cleanup statement on the session.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	// Close ends the session.
	Close(ctx context.Context)
}

// Rebuilder drives the retrying rebuild of one index.
type Rebuilder interface {
	Rebuild(ctx context.Context, index bloat.Candidate) rebuild.Result
}

// GatingPolicy decides what a gating condition (standby target, window
// closed) does to the rest of a multi-database run.
type GatingPolicy int

const (
	// GatingAbortRun aborts the whole run on a gating condition.
	GatingAbortRun GatingPolicy = iota

	// GatingSkipDatabase skips only the affected database and continues.
	GatingSkipDatabase
)

// ParseGatingPolicy maps the -on-blocked flag value to a policy.
func ParseGatingPolicy(s string) (GatingPolicy, error) {
	switch s {
	case "abort":
		return GatingAbortRun, nil
	case "skip":
		return GatingSkipDatabase, nil
	default:
		return GatingAbortRun, errs.NewValidationError("on-blocked", s, "must be abort or skip")
	}
}

// DatabaseRun accumulates the outcome of one database's maintenance.
type DatabaseRun struct {
	// Database is the database name.
	Database string

	// Candidates is the scanner's ordered candidate list.
	Candidates []bloat.Candidate

	// Rebuilt counts successfully rebuilt indexes.
	Rebuilt int

	// Failures counts indexes that failed after all retries. Monotonically
	// non-decreasing; never reset mid-run.
	Failures int

	// BenefitBytes is the cumulative size released. Negative contributions
	// (an index that grew back before measurement) are kept as-is.
	BenefitBytes int64

	// Skipped is set when the database was not processed (lock held by
	// another invocation, or gating under the skip policy).
	Skipped bool
}

// RecordFailure counts one FailedAfterRetries outcome.
func (r *DatabaseRun) RecordFailure() {
	r.Failures++
}

// Summary is the whole run's outcome, built incrementally.
type Summary struct {
	// Runs are the per-database outcomes in processing order.
	Runs []DatabaseRun

	// Databases is the number of databases processed.
	Databases int

	// TotalBenefitBytes is the benefit summed over all runs.
	TotalBenefitBytes int64
}

// Orchestrator sequences a maintenance run. All collaborators are injected;
// the zero value of optional fields picks sane defaults.
type Orchestrator struct {
	// Databases are the targets, in order.
	Databases []string

	// Connect opens a session to one database.
	Connect func(ctx context.Context, database string) (Target, error)

	// Scanner ranks rebuild candidates.
	Scanner bloat.Scanner

	// Opts are the scan filters.
	Opts bloat.Options

	// NewRebuilder builds the retrying rebuilder for a connected target,
	// selecting the strategy from its profile.
	NewRebuilder func(t Target) Rebuilder

	// StrategyExtensions lists extensions the selected rebuild strategy
	// needs on a server with the given profile. Nil means none.
	StrategyExtensions func(p db.ServerProfile) []string

	// Window gates the run by time of day. Nil means always open.
	Window *window.Window

	// Gating is the policy for gating conditions. Default aborts the run.
	Gating GatingPolicy

	// Budget is the per-database failure circuit breaker.
	Budget FailureBudget

	// Log receives one line per state transition.
	Log *zap.Logger

	// Now is the clock, injectable for tests. Nil means time.Now.
	Now func() time.Time
}

// Run processes all databases and returns the summary. A gating error
// (errors.ErrStandby, errors.ErrOutsideWindow) carries the partial summary
// and maps to a clean exit; any other error is fatal.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	log := o.log()
	var sum Summary

	for _, name := range o.Databases {
		run, err := o.processDatabase(ctx, name)
		sum.Runs = append(sum.Runs, run)
		sum.Databases++
		sum.TotalBenefitBytes += run.BenefitBytes

		if err != nil {
			if isGating(err) {
				log.Warn("maintenance gated", zap.String("database", name), zap.Error(err))
				if o.Gating == GatingSkipDatabase {
					continue
				}
				return sum, err
			}
			return sum, err
		}

		if !run.Skipped {
			log.Info("database maintenance complete",
				zap.String("database", name),
				zap.Int("rebuilt", run.Rebuilt),
				zap.Int("failed", run.Failures),
				zap.String("released", fmtBytes(run.BenefitBytes)))
		}
	}

	if sum.Databases > 1 {
		log.Info("maintenance run complete",
			zap.Int("databases", sum.Databases),
			zap.String("total_released", fmtBytes(sum.TotalBenefitBytes)))
	}
	return sum, nil
}

// processDatabase runs maintenance for one database.
func (o *Orchestrator) processDatabase(ctx context.Context, name string) (DatabaseRun, error) {
	run := DatabaseRun{Database: name}
	log := o.log().With(zap.String("database", name))

	if !o.open() {
		return run, fmt.Errorf("%w: %s", errs.ErrOutsideWindow, o.Window)
	}

	t, err := o.Connect(ctx, name)
	if err != nil {
		return run, err
	}
	defer t.Close(ctx)

	if err := checkHealth(t.Health(ctx), name); err != nil {
		return run, err
	}

	locked, err := t.AcquireLock(ctx)
	if err != nil {
		return run, err
	}
	if !locked {
		log.Warn("another invocation holds the maintenance lock, skipping database")
		run.Skipped = true
		return run, nil
	}
	defer func() { _ = t.ReleaseLock(ctx) }()

	if err := o.provisionExtensions(ctx, t); err != nil {
		return run, err
	}

	run.Candidates, err = o.Scanner.Scan(ctx, t, o.Opts)
	if err != nil {
		return run, err
	}
	if len(run.Candidates) == 0 {
		log.Info("no bloat indexes found")
		return run, nil
	}
	log.Info("bloated indexes found",
		zap.Int("count", len(run.Candidates)),
		zap.String("strategy", o.Scanner.Name()))

	rb := o.NewRebuilder(t)
	for _, cand := range run.Candidates {
		// Defensive re-check: a failover or the window closing mid-run
		// must stop further rebuilds.
		if err := checkHealth(t.Health(ctx), name); err != nil {
			return run, err
		}
		if !o.open() {
			return run, fmt.Errorf("%w: %s", errs.ErrOutsideWindow, o.Window)
		}

		if err := o.processCandidate(ctx, t, rb, cand, &run, log); err != nil {
			return run, err
		}
		if o.Budget.ShouldStop(run.Failures) {
			log.Warn("failed reindex limit reached, skipping remaining candidates",
				zap.Int("failures", run.Failures),
				zap.Int("limit", o.Budget.Limit))
			break
		}
	}
	return run, nil
}

// processCandidate rebuilds one index and accounts its benefit. The size
// before is measured fresh, immediately before the first attempt, and the
// size after fresh again once the rebuild succeeded.
func (o *Orchestrator) processCandidate(ctx context.Context, t Target, rb Rebuilder, cand bloat.Candidate, run *DatabaseRun, log *zap.Logger) error {
	qualified := cand.Qualified()

	sizeBefore, err := t.RelationSize(ctx, qualified)
	if err != nil {
		// Candidates are stale snapshots; the index may be gone already.
		log.Warn("cannot measure index, skipping",
			zap.String("index", qualified),
			zap.Error(err))
		return nil
	}

	log.Info("rebuilding index",
		zap.String("index", qualified),
		zap.String("size", fmtBytes(sizeBefore)),
		zap.Float64("bloat_pct", cand.BloatPct))

	res := rb.Rebuild(ctx, cand)
	if !res.Succeeded() {
		if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
			return res.Err
		}
		run.RecordFailure()
		log.Error("index rebuild failed",
			zap.String("index", qualified),
			zap.Int("attempts", len(res.Attempts)),
			zap.Error(res.Err))
		return nil
	}

	sizeAfter, err := t.RelationSize(ctx, qualified)
	if err != nil {
		// Rebuilt, but the benefit cannot be accounted.
		run.Rebuilt++
		log.Warn("index rebuilt but size could not be measured",
			zap.String("index", qualified),
			zap.Error(err))
		return nil
	}

	benefit := sizeBefore - sizeAfter
	run.Rebuilt++
	run.BenefitBytes += benefit
	log.Info("index rebuilt",
		zap.String("index", qualified),
		zap.String("size_before", fmtBytes(sizeBefore)),
		zap.String("size_after", fmtBytes(sizeAfter)),
		zap.String("reduction", reductionPct(sizeBefore, sizeAfter)))
	return nil
}

// provisionExtensions creates the helper extensions the scanner and the
// selected rebuild strategy need.
func (o *Orchestrator) provisionExtensions(ctx context.Context, t Target) error {
	exts := append([]string(nil), o.Scanner.RequiredExtensions()...)
	if o.StrategyExtensions != nil {
		exts = append(exts, o.StrategyExtensions(t.Profile())...)
	}
	for _, ext := range exts {
		if err := t.EnsureExtension(ctx, ext); err != nil {
			return err
		}
	}
	return nil
}

// checkHealth maps a health status to the error taxonomy.
func checkHealth(status db.Status, database string) error {
	switch status {
	case db.StatusUnreachable:
		return fmt.Errorf("%w: %s", errs.ErrUnreachable, database)
	case db.StatusStandby:
		return fmt.Errorf("%w: %s", errs.ErrStandby, database)
	default:
		return nil
	}
}

// isGating reports whether an error is a gating condition rather than a
// fatal one.
func isGating(err error) bool {
	return errors.Is(err, errs.ErrStandby) || errors.Is(err, errs.ErrOutsideWindow)
}

func (o *Orchestrator) open() bool {
	now := o.Now
	if now == nil {
		now = time.Now
	}
	return o.Window.Open(now())
}

func (o *Orchestrator) log() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}
	return o.Log
}

// reductionPct renders the size reduction of a successful rebuild as an
// integer-truncated percentage.
func reductionPct(before, after int64) string {
	if before <= 0 {
		return "0%"
	}
	return strconv.FormatInt((before-after)*100/before, 10) + "%"
}

// fmtBytes renders a byte count for log output.
func fmtBytes(b int64) string {
	neg := ""
	if b < 0 {
		neg = "-"
		b = -b
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	f := float64(b)
	i := 0
	for f >= 1024 && i < len(units)-1 {
		f /= 1024
		i++
	}
	return neg + strconv.FormatFloat(f, 'f', 1, 64) + " " + units[i]
}
