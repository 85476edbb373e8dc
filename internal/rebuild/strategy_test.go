package rebuild

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/koltyakov/pgreindex/internal/bloat"
	"github.com/koltyakov/pgreindex/internal/db"
)

// TestForProfile verifies capability-based strategy selection.
func TestForProfile(t *testing.T) {
	native := db.ServerProfile{MajorVersion: 15, Capability: db.CapabilityNativeConcurrent}
	legacy := db.ServerProfile{MajorVersion: 11, Capability: db.CapabilityLegacyExternalTool, ParallelWorkers: 2}

	if s := ForProfile(native, nil, db.Config{}); s.Name() != "reindex-concurrently" {
		t.Errorf("native profile selected %q", s.Name())
	}

	s := ForProfile(legacy, nil, db.Config{Database: "appdb"})
	if s.Name() != "pg_repack" {
		t.Fatalf("legacy profile selected %q", s.Name())
	}
	if rp, ok := s.(*Repack); !ok || rp.Jobs != 2 {
		t.Error("legacy strategy should carry the parallel worker count as jobs")
	}
}

// TestRepackArgs verifies the subprocess invocation for one index.
func TestRepackArgs(t *testing.T) {
	s := &Repack{
		Conn: db.Config{Host: "db1", Port: 5433, User: "maint", Database: "appdb"},
		Jobs: 2,
	}
	args := s.args(bloat.Candidate{Schema: "public", Name: "orders_pkey"})
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"--host db1",
		"--port 5433",
		"--username maint",
		"--dbname appdb",
		"--jobs 2",
		"--index public.orders_pkey",
		"--no-order",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
}

// TestRepackArgsDefaults verifies optional parameters are omitted.
func TestRepackArgsDefaults(t *testing.T) {
	s := &Repack{Conn: db.Config{Database: "appdb"}}
	joined := strings.Join(s.args(bloat.Candidate{Schema: "public", Name: "i"}), " ")

	for _, unwanted := range []string{"--host", "--port", "--username", "--jobs"} {
		if strings.Contains(joined, unwanted) {
			t.Errorf("args should omit %s: %s", unwanted, joined)
		}
	}
}

// TestRepackAttemptDiagnostic verifies a failing subprocess becomes a
// failure outcome carrying the captured output.
func TestRepackAttemptDiagnostic(t *testing.T) {
	s := &Repack{
		Conn: db.Config{Database: "appdb"},
		Runner: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("ERROR: relation is busy\n"), errors.New("exit status 1")
		},
	}

	err := s.Attempt(context.Background(), bloat.Candidate{Schema: "public", Name: "orders_pkey"})
	if err == nil {
		t.Fatal("expected failure outcome")
	}
	if !strings.Contains(err.Error(), "relation is busy") {
		t.Errorf("diagnostic should carry subprocess output, got %v", err)
	}
}

// TestRepackAttemptSuccess verifies a zero exit status is a success.
func TestRepackAttemptSuccess(t *testing.T) {
	var gotName string
	s := &Repack{
		Conn: db.Config{Database: "appdb"},
		Runner: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			gotName = name
			return []byte("INFO: repacking index\n"), nil
		},
	}

	if err := s.Attempt(context.Background(), bloat.Candidate{Schema: "public", Name: "i"}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if gotName != "pg_repack" {
		t.Errorf("invoked %q, expected pg_repack", gotName)
	}
}

// TestEscapeLike verifies LIKE metacharacters in index names are escaped
// before pattern matching for artifact cleanup.
func TestEscapeLike(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"orders_pkey", `orders\_pkey`},
		{"pct%idx", `pct\%idx`},
		{`back\slash`, `back\\slash`},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := escapeLike(tt.input); got != tt.expected {
				t.Errorf("escapeLike(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}
