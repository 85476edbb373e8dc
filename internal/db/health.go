package db

import "context"

// Status is the outcome of a connection health check.
type Status int

const (
	// StatusReady means the server answers and accepts writes.
	StatusReady Status = iota

	// StatusStandby means the server is in recovery (a read replica);
	// reindex operations require a writable target.
	StatusStandby

	// StatusUnreachable means the server did not answer a liveness probe.
	StatusUnreachable
)

// String implements fmt.Stringer for log output.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusStandby:
		return "standby"
	default:
		return "unreachable"
	}
}

// Health probes the session. The probe is a trivial round-trip followed by a
// recovery check; it is re-run before every rebuild attempt because either
// condition can appear mid-run (failover, promotion, network loss).
func (c *Conn) Health(ctx context.Context) Status {
	var one int
	if err := c.pg.QueryRow(ctx, "select 1").Scan(&one); err != nil {
		return StatusUnreachable
	}

	var inRecovery bool
	if err := c.pg.QueryRow(ctx, "select pg_is_in_recovery()").Scan(&inRecovery); err != nil {
		return StatusUnreachable
	}
	if inRecovery {
		return StatusStandby
	}
	return StatusReady
}
