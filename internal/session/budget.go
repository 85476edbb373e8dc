package session

// FailureBudget is the per-database circuit breaker over accumulated
// rebuild failures. Limit 0 means unlimited: the breaker never trips.
type FailureBudget struct {
	Limit int
}

// ShouldStop reports whether a database has burned its failure budget and
// its remaining candidates should be skipped.
func (b FailureBudget) ShouldStop(failures int) bool {
	return b.Limit != 0 && failures >= b.Limit
}
