package rebuild

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/koltyakov/pgreindex/internal/bloat"
	errs "github.com/koltyakov/pgreindex/internal/errors"
)

// DefaultDelays is the fixed escalating wait before each rebuild attempt.
// The first attempt runs immediately; the escalation absorbs transient lock
// contention from concurrent DDL or long transactions.
var DefaultDelays = []time.Duration{0, 10 * time.Second, 30 * time.Second, 60 * time.Second}

// Schedule is a finite, non-decreasing backoff policy. It satisfies
// backoff.BackOff and terminates with backoff.Stop once the delays are
// exhausted, which caps the attempt count at len(delays).
type Schedule struct {
	delays []time.Duration
	next   int
}

// NewSchedule returns a Schedule over the given delays. No delays means
// DefaultDelays.
func NewSchedule(delays ...time.Duration) *Schedule {
	if len(delays) == 0 {
		delays = DefaultDelays
	}
	return &Schedule{delays: delays}
}

// NextBackOff implements backoff.BackOff.
func (s *Schedule) NextBackOff() time.Duration {
	if s.next >= len(s.delays) {
		return backoff.Stop
	}
	d := s.delays[s.next]
	s.next++
	return d
}

// Reset implements backoff.BackOff.
func (s *Schedule) Reset() {
	s.next = 0
}

// Attempt records one rebuild attempt of one index.
type Attempt struct {
	// Number is the attempt index, starting at 0.
	Number int

	// Delay is the wait that elapsed before this attempt.
	Delay time.Duration

	// Err is nil for a successful attempt.
	Err error
}

// Result is the final outcome for one index.
type Result struct {
	// Index is the schema-qualified index name.
	Index string

	// Attempts are all attempts made, in order.
	Attempts []Attempt

	// Err is nil when the rebuild succeeded; otherwise a *errors.RebuildError
	// (or a context error if the run was cancelled mid-wait).
	Err error
}

// Succeeded reports whether the rebuild completed.
func (r Result) Succeeded() bool {
	return r.Err == nil
}

// Retryer drives a Strategy through the backoff schedule for one index at a
// time: wait, attempt, and on failure drop the leftover artifact before the
// next attempt. The loop stops at the first success or when the schedule is
// exhausted.
type Retryer struct {
	// Strategy performs the attempts.
	Strategy Strategy

	// Schedule is the backoff policy. Nil means NewSchedule().
	Schedule backoff.BackOff

	// Sleep waits between attempts. Nil means a context-aware sleep; tests
	// substitute a recorder to run without real delays.
	Sleep func(ctx context.Context, d time.Duration) error

	// Log receives one line per state transition. Nil disables logging.
	Log *zap.Logger
}

// Rebuild runs the retry state machine for one index.
func (r *Retryer) Rebuild(ctx context.Context, index bloat.Candidate) Result {
	sched := r.Schedule
	if sched == nil {
		sched = NewSchedule()
	}
	sched.Reset()

	wait := r.Sleep
	if wait == nil {
		wait = sleep
	}
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	res := Result{Index: index.Qualified()}
	var lastErr error

	for n := 0; ; n++ {
		delay := sched.NextBackOff()
		if delay == backoff.Stop {
			res.Err = errs.NewRebuildError(res.Index, len(res.Attempts), lastErr)
			return res
		}
		if delay > 0 {
			log.Info("waiting before retry",
				zap.String("index", res.Index),
				zap.Duration("delay", delay),
				zap.Int("attempt", n))
			if err := wait(ctx, delay); err != nil {
				res.Err = err
				return res
			}
		}

		err := r.Strategy.Attempt(ctx, index)
		res.Attempts = append(res.Attempts, Attempt{Number: n, Delay: delay, Err: err})
		if err == nil {
			return res
		}
		lastErr = err

		log.Warn("rebuild attempt failed",
			zap.String("index", res.Index),
			zap.Int("attempt", n),
			zap.Error(err))

		// A failed attempt can leave an invalid index object that would
		// obstruct the next one. A failed drop is left for the operator:
		// removing an ambiguous artifact automatically risks deleting a
		// legitimate concurrently-built index.
		if cerr := r.Strategy.DropArtifacts(ctx, index); cerr != nil {
			log.Warn("could not drop leftover invalid index",
				zap.String("index", res.Index),
				zap.Error(cerr))
		}
	}
}

// sleep waits for d or until the context ends.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
