package rebuild

import (
	"context"
	"fmt"

	"github.com/koltyakov/pgreindex/internal/bloat"
)

// nativeArtifactSuffix marks the transient index REINDEX CONCURRENTLY
// builds; a failed run leaves it behind, invalid.
const nativeArtifactSuffix = "_ccnew"

// NativeConcurrent rebuilds an index with REINDEX INDEX CONCURRENTLY,
// avoiding a long exclusive lock on the table. The session's lock_timeout
// makes a blocked attempt fail fast; the Retryer absorbs the failure.
type NativeConcurrent struct {
	DB Session
}

// Name implements Strategy.
func (s *NativeConcurrent) Name() string { return "reindex-concurrently" }

// RequiredExtensions implements Strategy. The native path needs none.
func (s *NativeConcurrent) RequiredExtensions() []string { return nil }

// Attempt implements Strategy.
func (s *NativeConcurrent) Attempt(ctx context.Context, index bloat.Candidate) error {
	if _, err := s.DB.Exec(ctx, "REINDEX INDEX CONCURRENTLY "+index.Qualified()); err != nil {
		return fmt.Errorf("reindex concurrently %s: %w", index.Qualified(), err)
	}
	return nil
}

// DropArtifacts implements Strategy. A failed concurrent reindex leaves an
// invalid index named after the target with a _ccnew suffix (numbered when
// several builds failed in a row).
func (s *NativeConcurrent) DropArtifacts(ctx context.Context, index bloat.Candidate) error {
	pattern := escapeLike(index.Name) + escapeLike(nativeArtifactSuffix) + "%"
	return dropInvalidMatching(ctx, s.DB, index, pattern)
}
