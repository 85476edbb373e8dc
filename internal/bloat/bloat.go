// Package bloat detects bloated B-tree indexes.
//
// Two interchangeable scanning strategies are provided:
//   - Estimate: a statistical model over catalog/page statistics. Cheap, no
//     index-page I/O, approximate.
//   - ExactScan: pgstatindex() page inspection per index. Accurate, but
//     reads every candidate index and needs the pgstattuple extension.
//
// Both strategies apply identical filters (valid persistent B-tree indexes
// outside system schemas, bloat and size thresholds) and return candidates
// ordered by size in the requested direction. Callers never re-sort.
package bloat

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	errs "github.com/koltyakov/pgreindex/internal/errors"
)

// SortOrder is the candidate ordering direction by index size.
type SortOrder string

const (
	// SortAsc orders candidates smallest first, so quick wins land before
	// long rebuilds.
	SortAsc SortOrder = "asc"

	// SortDesc orders candidates largest first.
	SortDesc SortOrder = "desc"
)

// Candidate is an immutable snapshot of one bloated index. Sizes are stale
// the moment the snapshot is produced; callers re-measure before rebuilding.
type Candidate struct {
	// Schema is the index schema name, unquoted.
	Schema string

	// Name is the index name, unquoted.
	Name string

	// SizeBytes is the index size at scan time.
	SizeBytes int64

	// BloatPct is the estimated or measured bloat ratio, one decimal.
	BloatPct float64
}

// Qualified returns the schema-qualified, quoted index name for use in SQL.
func (c Candidate) Qualified() string {
	return pgx.Identifier{c.Schema, c.Name}.Sanitize()
}

// Options are the candidate filters shared by all scanning strategies.
type Options struct {
	// ThresholdPct excludes indexes with bloat below this percentage.
	ThresholdPct float64

	// MinSizeBytes and MaxSizeBytes bound the index size.
	MinSizeBytes int64
	MaxSizeBytes int64

	// Order is the result ordering by size.
	Order SortOrder
}

// Validate checks the options and returns a configuration error if invalid.
func (o Options) Validate() error {
	if o.ThresholdPct < 0 || o.ThresholdPct > 100 {
		return errs.NewValidationError("bloat-threshold", fmt.Sprintf("%g", o.ThresholdPct), "must be between 0 and 100")
	}
	if o.MinSizeBytes < 0 {
		return errs.NewValidationError("index-min-size", fmt.Sprintf("%d", o.MinSizeBytes), "must not be negative")
	}
	if o.MaxSizeBytes < o.MinSizeBytes {
		return errs.NewValidationError("index-max-size", fmt.Sprintf("%d", o.MaxSizeBytes), "must not be below index-min-size")
	}
	if o.Order != SortAsc && o.Order != SortDesc {
		return errs.NewValidationError("sort-order", string(o.Order), "must be asc or desc")
	}
	return nil
}

// Querier executes a parameterized query against the target database.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Scanner ranks bloated indexes in one database. Any implementation
// satisfying the contract (thresholds in, ordered candidates out) is
// substitutable without touching callers.
type Scanner interface {
	// Name identifies the strategy in logs.
	Name() string

	// RequiredExtensions lists extensions the strategy depends on.
	RequiredExtensions() []string

	// Scan returns rebuild candidates ordered by size per opts.Order.
	Scan(ctx context.Context, q Querier, opts Options) ([]Candidate, error)
}

// ForStrategy maps a -strategy flag value to a scanner.
func ForStrategy(name string) (Scanner, error) {
	switch name {
	case "estimate":
		return Estimate{}, nil
	case "exact-scan":
		return ExactScan{}, nil
	default:
		return nil, errs.NewValidationError("strategy", name, "must be estimate or exact-scan")
	}
}

// collect runs a strategy query and scans its rows. Every strategy query
// produces (schema, index, size, bloat) rows pre-ordered by size.
func collect(ctx context.Context, q Querier, sql string, opts Options) ([]Candidate, error) {
	rows, err := q.Query(ctx, sql, opts.ThresholdPct, opts.MinSizeBytes, opts.MaxSizeBytes)
	if err != nil {
		return nil, errs.NewQueryError(sql, err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.Schema, &c.Name, &c.SizeBytes, &c.BloatPct); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// orderClause renders opts.Order for interpolation into a strategy query.
// Options.Validate has already restricted the value set.
func orderClause(o SortOrder) string {
	if o == SortDesc {
		return "desc"
	}
	return "asc"
}
