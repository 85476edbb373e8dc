// Package rebuild performs the physical index rebuilds.
//
// A Strategy makes one rebuild attempt for one index. Two implementations
// exist, selected once per connection from the server profile:
//   - NativeConcurrent: REINDEX INDEX CONCURRENTLY on servers that have it.
//   - Repack: the pg_repack external utility for older servers.
//
// A failed attempt of either kind can leave behind an unusable index object
// (suffixed _ccnew for the native path, prefixed index_ for pg_repack) that
// would obstruct the next attempt; DropArtifacts removes it. The Retryer
// drives a strategy through the fixed backoff schedule.
package rebuild

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koltyakov/pgreindex/internal/bloat"
	"github.com/koltyakov/pgreindex/internal/db"
)

// Session is the database session a strategy works over. *db.Conn
// satisfies it.
type Session interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Strategy performs one rebuild attempt of one index. Attempt always
// returns an outcome: nil for success, an error carrying the diagnostic
// otherwise.
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string

	// RequiredExtensions lists extensions the strategy depends on.
	RequiredExtensions() []string

	// Attempt rebuilds the index once.
	Attempt(ctx context.Context, index bloat.Candidate) error

	// DropArtifacts removes any leftover invalid index object a failed
	// attempt left behind.
	DropArtifacts(ctx context.Context, index bloat.Candidate) error
}

// ForProfile selects the strategy a server supports. cfg carries the
// connection parameters handed to the external utility on the legacy path.
func ForProfile(profile db.ServerProfile, session Session, cfg db.Config) Strategy {
	if profile.Capability == db.CapabilityNativeConcurrent {
		return &NativeConcurrent{DB: session}
	}
	return &Repack{DB: session, Conn: cfg, Jobs: profile.ParallelWorkers}
}

// invalidArtifactsSQL finds invalid indexes on the same table as the target
// whose name matches the strategy's artifact pattern ($2, a LIKE pattern).
const invalidArtifactsSQL = `
select n.nspname, ci.relname
from pg_index i
join pg_class ci on ci.oid = i.indexrelid
join pg_namespace n on n.oid = ci.relnamespace
where not i.indisvalid
  and i.indrelid = (select indrelid from pg_index where indexrelid = $1::regclass)
  and ci.relname like $2`

// dropInvalidMatching drops every invalid index on the target's table whose
// name matches pattern. DROP INDEX CONCURRENTLY avoids taking a long
// exclusive lock while cleaning up.
func dropInvalidMatching(ctx context.Context, s Session, index bloat.Candidate, pattern string) error {
	rows, err := s.Query(ctx, invalidArtifactsSQL, index.Qualified(), pattern)
	if err != nil {
		return err
	}

	var artifacts []bloat.Candidate
	for rows.Next() {
		var a bloat.Candidate
		if err := rows.Scan(&a.Schema, &a.Name); err != nil {
			rows.Close()
			return err
		}
		artifacts = append(artifacts, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, a := range artifacts {
		if _, err := s.Exec(ctx, "DROP INDEX CONCURRENTLY IF EXISTS "+a.Qualified()); err != nil {
			return err
		}
	}
	return nil
}

// escapeLike escapes LIKE metacharacters in a literal name so it can be
// embedded in a pattern.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
