// Package window implements the maintenance-window gate.
//
// A window is a time-of-day range given as two HHMM values. Rebuild work is
// only permitted while the current time falls inside the range. A window
// whose start is later than its stop crosses midnight (e.g. 2200-0300).
// A nil *Window means no window was configured and the gate is always open.
package window

import (
	"fmt"
	"strconv"
	"time"

	errs "github.com/koltyakov/pgreindex/internal/errors"
)

// Window is an inclusive time-of-day range in which maintenance may run.
// Times are held as minutes since midnight; seconds are ignored, matching
// the HHMM granularity of the configuration.
type Window struct {
	start int // minutes since midnight
	stop  int
}

// Parse builds a Window from two HHMM strings. Both must be given: an empty
// pair returns a nil Window (always open), a half-configured pair is a
// configuration error.
func Parse(start, stop string) (*Window, error) {
	if start == "" && stop == "" {
		return nil, nil
	}
	if start == "" || stop == "" {
		return nil, errs.NewValidationError("maintenance window", "", "both -maintenance-start and -maintenance-stop must be set")
	}

	s, err := parseHHMM(start)
	if err != nil {
		return nil, errs.NewValidationError("maintenance-start", start, err.Error())
	}
	e, err := parseHHMM(stop)
	if err != nil {
		return nil, errs.NewValidationError("maintenance-stop", stop, err.Error())
	}

	return &Window{start: s, stop: e}, nil
}

// Open reports whether now falls inside the window. A nil window is always
// open. Boundary minutes are inside the window on both ends.
func (w *Window) Open(now time.Time) bool {
	if w == nil {
		return true
	}

	cur := now.Hour()*60 + now.Minute()

	if w.start <= w.stop {
		return cur >= w.start && cur <= w.stop
	}
	// Window crosses midnight: blocked only strictly between stop and start.
	return cur <= w.stop || cur >= w.start
}

// String renders the window as "HHMM-HHMM" for log output.
func (w *Window) String() string {
	if w == nil {
		return "always open"
	}
	return fmt.Sprintf("%02d%02d-%02d%02d", w.start/60, w.start%60, w.stop/60, w.stop%60)
}

// parseHHMM converts an HHMM string to minutes since midnight.
func parseHHMM(s string) (int, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("must be HHMM")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("must be HHMM")
		}
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[2:])
	if h > 23 {
		return 0, fmt.Errorf("hour out of range")
	}
	if m > 59 {
		return 0, fmt.Errorf("minute out of range")
	}
	return h*60 + m, nil
}
