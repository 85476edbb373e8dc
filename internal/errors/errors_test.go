package errors

import (
	"errors"
	"testing"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("bloat-threshold", "-5", "must be between 0 and 100")

	if !errors.Is(err, ErrInvalidConfig) {
		t.Error("ValidationError should match ErrInvalidConfig")
	}

	expected := `invalid bloat-threshold "-5": must be between 0 and 100`
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
}

func TestValidationErrorNoValue(t *testing.T) {
	err := NewValidationError("host", "", "required")
	expected := "invalid host: required"
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
}

func TestQueryError(t *testing.T) {
	err := NewQueryError("SELECT pg_is_in_recovery()", errors.New("connection reset"))

	expected := "query failed [SELECT pg_is_in_recovery()]: connection reset"
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
}

func TestQueryErrorLongQuery(t *testing.T) {
	longQuery := "SELECT " + string(make([]byte, 200))
	err := NewQueryError(longQuery, errors.New("error"))

	// Query should be truncated with ...
	if len(err.Query) != 103 { // 100 + "..."
		t.Errorf("expected truncated query length 103, got %d", len(err.Query))
	}
	if err.Query[len(err.Query)-3:] != "..." {
		t.Error("expected truncated query to end with ...")
	}
}

func TestQueryErrorUnwrap(t *testing.T) {
	underlying := errors.New("lock timeout")
	err := NewQueryError("REINDEX INDEX CONCURRENTLY i", underlying)

	if !errors.Is(err, underlying) {
		t.Error("expected errors.Is to match underlying error")
	}
}

func TestRebuildError(t *testing.T) {
	underlying := errors.New("could not obtain lock")
	err := NewRebuildError("public.orders_pkey", 4, underlying)

	if err.Attempts != 4 {
		t.Errorf("expected 4 attempts, got %d", err.Attempts)
	}

	if !errors.Is(err, underlying) {
		t.Error("expected errors.Is to match underlying error")
	}

	expected := "rebuild of public.orders_pkey failed after 4 attempts: could not obtain lock"
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
}

func TestSentinelErrors(t *testing.T) {
	// Verify sentinel errors are distinct
	sentinels := []error{
		ErrUnreachable,
		ErrStandby,
		ErrOutsideWindow,
		ErrInvalidConfig,
		ErrExtensionMissing,
	}

	for i, err1 := range sentinels {
		for j, err2 := range sentinels {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("sentinel errors should be distinct: %v == %v", err1, err2)
			}
		}
	}
}
