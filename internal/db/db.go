// Package db provides PostgreSQL connection and session management for
// index maintenance.
//
// This package handles connecting to target databases and the session-level
// concerns the rebuild work depends on:
//   - Liveness and standby (read replica) detection
//   - Server capability profiling for rebuild strategy selection
//   - Session GUCs: statement_timeout disabled, a short lock_timeout so a
//     blocked rebuild attempt fails fast instead of hanging
//   - A per-database advisory lock so two invocations never target the same
//     database concurrently
//   - Idempotent helper extension provisioning
package db

import (
	"context"
	"fmt"
	"os/user"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	errs "github.com/koltyakov/pgreindex/internal/errors"
)

// DefaultLockTimeout bounds how long a rebuild attempt waits for the locks
// it needs. A blocked attempt fails fast and is retried by the caller.
const DefaultLockTimeout = 5 * time.Second

// lockKeyPrefix namespaces the advisory lock key so unrelated tools hashing
// the same database name do not collide.
const lockKeyPrefix = "pgreindex:"

// Config holds the connection parameters for one target server.
type Config struct {
	// Host is the server host name or socket directory.
	Host string

	// Port is the server port.
	Port int

	// User is the role to connect as. Empty means the current OS user.
	User string

	// Database is the database to connect to.
	Database string

	// ParallelWorkers is passed to max_parallel_maintenance_workers so a
	// single rebuild can use intra-operation parallelism. 0 leaves the
	// server default untouched.
	ParallelWorkers int

	// LockTimeout bounds lock acquisition per statement. Zero means
	// DefaultLockTimeout.
	LockTimeout time.Duration
}

// ForDatabase returns a copy of the config pointing at another database on
// the same server.
func (c Config) ForDatabase(name string) Config {
	c.Database = name
	return c
}

// DSN renders the config as a libpq-style connection string. The password is
// never part of the DSN; pgx picks it up from PGPASSWORD or ~/.pgpass.
func (c Config) DSN() string {
	var parts []string
	if c.Host != "" {
		parts = append(parts, "host="+c.Host)
	}
	if c.Port != 0 {
		parts = append(parts, fmt.Sprintf("port=%d", c.Port))
	}
	u := c.User
	if u == "" {
		if cur, err := user.Current(); err == nil {
			u = cur.Username
		}
	}
	if u != "" {
		parts = append(parts, "user="+u)
	}
	if c.Database != "" {
		parts = append(parts, "dbname="+c.Database)
	}
	return strings.Join(parts, " ")
}

// Conn is a session against one target database.
type Conn struct {
	pg      *pgx.Conn
	cfg     Config
	profile ServerProfile
	locked  bool
}

// Connect opens a session, applies the maintenance GUCs and resolves the
// server profile. A server that does not answer is reported as
// errors.ErrUnreachable.
func Connect(ctx context.Context, cfg Config) (*Conn, error) {
	pg, err := pgx.Connect(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrUnreachable, cfg.Database, err)
	}
	c := &Conn{pg: pg, cfg: cfg}

	if err := c.setup(ctx); err != nil {
		_ = pg.Close(ctx)
		return nil, err
	}
	return c, nil
}

// setup applies session GUCs and resolves the server profile.
func (c *Conn) setup(ctx context.Context) error {
	lockTimeout := c.cfg.LockTimeout
	if lockTimeout == 0 {
		lockTimeout = DefaultLockTimeout
	}

	if _, err := c.pg.Exec(ctx, "SET statement_timeout = 0"); err != nil {
		return fmt.Errorf("set statement_timeout: %w", err)
	}
	if _, err := c.pg.Exec(ctx, fmt.Sprintf("SET lock_timeout = '%dms'", lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}

	var versionNum int
	if err := c.pg.QueryRow(ctx, "select current_setting('server_version_num')::int").Scan(&versionNum); err != nil {
		return errs.NewQueryError("server_version_num", err)
	}
	c.profile = ResolveProfile(versionNum, c.cfg.ParallelWorkers)

	if c.cfg.ParallelWorkers > 0 && c.profile.MajorVersion >= 11 {
		sql := fmt.Sprintf("SET max_parallel_maintenance_workers = %d", c.cfg.ParallelWorkers)
		if _, err := c.pg.Exec(ctx, sql); err != nil {
			return fmt.Errorf("set max_parallel_maintenance_workers: %w", err)
		}
	}
	return nil
}

// Name returns the connected database name.
func (c *Conn) Name() string {
	return c.cfg.Database
}

// Profile returns the server profile resolved at connect time. It cannot
// change mid-run.
func (c *Conn) Profile() ServerProfile {
	return c.profile
}

// ConnParams returns the connection parameters of this session, for handing
// to a subprocess targeting the same database.
func (c *Conn) ConnParams() Config {
	return c.cfg
}

// Query runs a query on the session.
func (c *Conn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.pg.Query(ctx, sql, args...)
}

// Exec runs a statement on the session.
func (c *Conn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.pg.Exec(ctx, sql, args...)
}

// Databases lists the connectable non-template databases on the server,
// used when no -dbname was given.
func (c *Conn) Databases(ctx context.Context) ([]string, error) {
	rows, err := c.pg.Query(ctx, `select datname from pg_database where not datistemplate and datallowconn order by datname`)
	if err != nil {
		return nil, errs.NewQueryError("list databases", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// EnsureExtension provisions a helper extension if it is not already
// present. The operation is idempotent.
func (c *Conn) EnsureExtension(ctx context.Context, name string) error {
	sql := "CREATE EXTENSION IF NOT EXISTS " + pgx.Identifier{name}.Sanitize()
	if _, err := c.pg.Exec(ctx, sql); err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrExtensionMissing, name, err)
	}
	return nil
}

// RelationSize returns the current on-disk size of a relation in bytes.
func (c *Conn) RelationSize(ctx context.Context, qualified string) (int64, error) {
	var size int64
	if err := c.pg.QueryRow(ctx, "select pg_relation_size($1::regclass)", qualified).Scan(&size); err != nil {
		return 0, errs.NewQueryError("pg_relation_size "+qualified, err)
	}
	return size, nil
}

// AcquireLock takes the per-database advisory session lock. It returns false
// without waiting when another invocation already holds it.
func (c *Conn) AcquireLock(ctx context.Context) (bool, error) {
	var got bool
	if err := c.pg.QueryRow(ctx, "select pg_try_advisory_lock($1)", LockKey(c.cfg.Database)).Scan(&got); err != nil {
		return false, errs.NewQueryError("pg_try_advisory_lock", err)
	}
	c.locked = got
	return got, nil
}

// ReleaseLock releases the advisory session lock if held. The lock also
// dies with the session, so failure here is not fatal.
func (c *Conn) ReleaseLock(ctx context.Context) error {
	if !c.locked {
		return nil
	}
	c.locked = false
	_, err := c.pg.Exec(ctx, "select pg_advisory_unlock($1)", LockKey(c.cfg.Database))
	return err
}

// Close ends the session.
func (c *Conn) Close(ctx context.Context) {
	_ = c.pg.Close(ctx)
}

// LockKey derives the advisory lock key for a database. The key is stable
// across invocations so independent runs against the same database contend
// on the same lock.
func LockKey(database string) int64 {
	return int64(xxhash.Sum64String(lockKeyPrefix + database))
}
