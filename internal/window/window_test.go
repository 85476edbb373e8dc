package window

import (
	"errors"
	"testing"
	"time"

	errs "github.com/koltyakov/pgreindex/internal/errors"
)

// at builds a clock reading for a given hour and minute on an arbitrary day.
func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 15, hour, minute, 30, 0, time.UTC)
}

// TestOpenSameDayWindow verifies gating for windows that do not cross midnight:
// blocked iff now < start or now > stop.
func TestOpenSameDayWindow(t *testing.T) {
	w, err := Parse("0900", "1730")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tests := []struct {
		name string
		now  time.Time
		open bool
	}{
		{"well before start", at(3, 0), false},
		{"minute before start", at(8, 59), false},
		{"at start", at(9, 0), true},
		{"inside", at(12, 30), true},
		{"at stop", at(17, 30), true},
		{"minute after stop", at(17, 31), false},
		{"late evening", at(23, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Open(tt.now); got != tt.open {
				t.Errorf("Open(%02d:%02d) = %v, expected %v",
					tt.now.Hour(), tt.now.Minute(), got, tt.open)
			}
		})
	}
}

// TestOpenMidnightWraparound verifies gating for windows that cross midnight:
// blocked iff stop < now < start.
func TestOpenMidnightWraparound(t *testing.T) {
	w, err := Parse("2200", "0300")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tests := []struct {
		name string
		now  time.Time
		open bool
	}{
		{"before midnight inside", at(23, 15), true},
		{"at start", at(22, 0), true},
		{"after midnight inside", at(1, 30), true},
		{"at stop", at(3, 0), true},
		{"minute after stop", at(3, 1), false},
		{"midday blocked", at(12, 0), false},
		{"minute before start", at(21, 59), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Open(tt.now); got != tt.open {
				t.Errorf("Open(%02d:%02d) = %v, expected %v",
					tt.now.Hour(), tt.now.Minute(), got, tt.open)
			}
		})
	}
}

// TestNilWindowAlwaysOpen verifies that an unconfigured window never blocks.
func TestNilWindowAlwaysOpen(t *testing.T) {
	w, err := Parse("", "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if w != nil {
		t.Fatal("expected nil window for empty pair")
	}
	for hour := 0; hour < 24; hour++ {
		if !w.Open(at(hour, 0)) {
			t.Errorf("nil window blocked at %02d:00", hour)
		}
	}
}

// TestParseErrors verifies invalid HHMM inputs are rejected as config errors.
func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		start string
		stop  string
	}{
		{"half configured", "0900", ""},
		{"other half configured", "", "1700"},
		{"too short", "900", "1700"},
		{"non numeric", "09a0", "1700"},
		{"hour out of range", "2500", "1700"},
		{"minute out of range", "0960", "1700"},
		{"bad stop", "0900", "1161"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.start, tt.stop); err == nil {
				t.Errorf("Parse(%q, %q) expected error", tt.start, tt.stop)
			} else if !errors.Is(err, errs.ErrInvalidConfig) {
				t.Errorf("Parse(%q, %q) error should match ErrInvalidConfig, got %v", tt.start, tt.stop, err)
			}
		})
	}
}

// TestString verifies the log rendering of windows.
func TestString(t *testing.T) {
	w, err := Parse("2200", "0305")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := w.String(); got != "2200-0305" {
		t.Errorf("String() = %q, expected %q", got, "2200-0305")
	}

	var none *Window
	if got := none.String(); got != "always open" {
		t.Errorf("nil String() = %q, expected %q", got, "always open")
	}
}
