package rebuild

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/koltyakov/pgreindex/internal/bloat"
	"github.com/koltyakov/pgreindex/internal/db"
)

// repackArtifactPattern matches the temporary index pg_repack builds
// (index_<oid>); a failed run leaves it behind, invalid.
const repackArtifactPattern = `index\_%`

// CommandRunner invokes an external utility and returns its combined
// output. Split out so tests run without a pg_repack binary.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// runCommand is the production CommandRunner.
func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Repack rebuilds an index through the pg_repack external utility, the
// online-rewrite path for servers without REINDEX CONCURRENTLY. The server
// side requires the pg_repack extension.
type Repack struct {
	// DB is the maintenance session, used for artifact cleanup.
	DB Session

	// Conn carries the connection parameters handed to the subprocess.
	Conn db.Config

	// Jobs is pg_repack's worker count. 0 leaves its default.
	Jobs int

	// Runner invokes the utility. Nil means the real subprocess.
	Runner CommandRunner
}

// Name implements Strategy.
func (s *Repack) Name() string { return "pg_repack" }

// RequiredExtensions implements Strategy.
func (s *Repack) RequiredExtensions() []string { return []string{"pg_repack"} }

// Attempt implements Strategy. A non-zero exit status becomes a failure
// outcome carrying the utility's output as the diagnostic.
func (s *Repack) Attempt(ctx context.Context, index bloat.Candidate) error {
	runner := s.Runner
	if runner == nil {
		runner = runCommand
	}

	args := s.args(index)
	out, err := runner(ctx, "pg_repack", args...)
	if err != nil {
		diag := strings.TrimSpace(string(out))
		if diag == "" {
			return fmt.Errorf("pg_repack %s.%s: %w", index.Schema, index.Name, err)
		}
		return fmt.Errorf("pg_repack %s.%s: %w: %s", index.Schema, index.Name, err, diag)
	}
	return nil
}

// args renders the pg_repack invocation for one index.
func (s *Repack) args(index bloat.Candidate) []string {
	args := []string{"--no-order", "--elevel", "WARNING"}
	if s.Conn.Host != "" {
		args = append(args, "--host", s.Conn.Host)
	}
	if s.Conn.Port != 0 {
		args = append(args, "--port", strconv.Itoa(s.Conn.Port))
	}
	if s.Conn.User != "" {
		args = append(args, "--username", s.Conn.User)
	}
	args = append(args, "--dbname", s.Conn.Database)
	if s.Jobs > 0 {
		args = append(args, "--jobs", strconv.Itoa(s.Jobs))
	}
	return append(args, "--index", index.Schema+"."+index.Name)
}

// DropArtifacts implements Strategy. pg_repack builds its temporary index
// under an index_ prefix on the same table; a failed run leaves it invalid.
func (s *Repack) DropArtifacts(ctx context.Context, index bloat.Candidate) error {
	return dropInvalidMatching(ctx, s.DB, index, repackArtifactPattern)
}
