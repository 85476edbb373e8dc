package session

import "testing"

// TestShouldStop verifies the circuit breaker trips iff a non-zero limit
// has been reached.
func TestShouldStop(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		failures int
		stop     bool
	}{
		{"unlimited never stops", 0, 0, false},
		{"unlimited with many failures", 0, 1000, false},
		{"below limit", 3, 2, false},
		{"at limit", 3, 3, true},
		{"above limit", 3, 4, true},
		{"limit one first failure", 1, 1, true},
		{"limit one no failures", 1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := FailureBudget{Limit: tt.limit}
			if got := b.ShouldStop(tt.failures); got != tt.stop {
				t.Errorf("ShouldStop(%d) with limit %d = %v, expected %v",
					tt.failures, tt.limit, got, tt.stop)
			}
		})
	}
}

// TestRecordFailure verifies the counter is monotonically non-decreasing.
func TestRecordFailure(t *testing.T) {
	run := DatabaseRun{Database: "appdb"}
	for i := 1; i <= 5; i++ {
		run.RecordFailure()
		if run.Failures != i {
			t.Fatalf("after %d failures, counter = %d", i, run.Failures)
		}
	}
}
