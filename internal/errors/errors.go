// Package errors provides typed errors for pgreindex operations.
//
// This package defines sentinel errors and error types that allow callers
// to handle specific error conditions programmatically using errors.Is()
// and errors.As().
//
// Sentinel Errors:
//   - ErrUnreachable: the target server does not answer a liveness probe
//   - ErrStandby: the target server is a read replica
//   - ErrOutsideWindow: the current time is outside the maintenance window
//   - ErrInvalidConfig: configuration validation failed
//   - ErrExtensionMissing: a required PostgreSQL extension is unavailable
//
// Typed Errors:
//   - ValidationError: wraps configuration/input validation errors
//   - QueryError: wraps database query errors
//   - RebuildError: wraps a rebuild failure after all retries
//
// The sentinels split the error taxonomy into its exit-code classes:
// ErrUnreachable and ErrInvalidConfig are fatal (exit 1), while
// ErrStandby and ErrOutsideWindow are gating aborts (exit 0, warning).
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrUnreachable indicates the server did not answer a trivial liveness probe.
	ErrUnreachable = errors.New("server unreachable")

	// ErrStandby indicates the target server reports it is a read replica.
	ErrStandby = errors.New("server is in recovery (standby)")

	// ErrOutsideWindow indicates the current time falls outside the maintenance window.
	ErrOutsideWindow = errors.New("outside maintenance window")

	// ErrInvalidConfig indicates configuration validation failed.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrExtensionMissing indicates a required PostgreSQL extension could not be provisioned.
	ErrExtensionMissing = errors.New("required extension missing")
)

// ValidationError represents a configuration or input validation error.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was invalid (may be redacted for sensitive fields)
	Message string // Human-readable validation message
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, value, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
}

// Unwrap returns ErrInvalidConfig for errors.Is support.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// Is reports whether target matches this error type.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// QueryError represents a database query error.
type QueryError struct {
	Query string // SQL query (may be truncated for long queries)
	Err   error  // Underlying database error
}

// queryMaxLen is the maximum length of a query string in error messages.
const queryMaxLen = 100

// NewQueryError creates a new QueryError.
// Long queries are automatically truncated.
func NewQueryError(query string, err error) *QueryError {
	if len(query) > queryMaxLen {
		query = query[:queryMaxLen] + "..."
	}
	return &QueryError{Query: query, Err: err}
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed [%s]: %v", e.Query, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error type.
func (e *QueryError) Is(target error) bool {
	_, ok := target.(*QueryError)
	return ok
}

// RebuildError represents a rebuild that failed after exhausting all retries.
type RebuildError struct {
	Index    string // Schema-qualified index name
	Attempts int    // Number of attempts made
	Err      error  // Error from the final attempt
}

// NewRebuildError creates a new RebuildError.
func NewRebuildError(index string, attempts int, err error) *RebuildError {
	return &RebuildError{Index: index, Attempts: attempts, Err: err}
}

// Error implements the error interface.
func (e *RebuildError) Error() string {
	return fmt.Sprintf("rebuild of %s failed after %d attempts: %v", e.Index, e.Attempts, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RebuildError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error type.
func (e *RebuildError) Is(target error) bool {
	_, ok := target.(*RebuildError)
	return ok
}
