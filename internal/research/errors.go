package research

import "errors"

// Error kinds distinguish where a failure originated so callers can decide
// between absorbing it as a warning and aborting the run. Collaborator
// implementations wrap these with %w so errors.Is matching works through
// arbitrary context.
var (
	// ErrSearchUnavailable covers transport and auth failures of the search
	// provider. Fatal to the iteration, not the run.
	ErrSearchUnavailable = errors.New("search unavailable")

	// ErrFetchFailed covers network, parse, and blocked-content failures for
	// a single URL. Absorbed as a per-URL warning.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrSynthesisFailed covers LLM completion failures. Fatal to the
	// iteration when raised mid-iteration, fatal to the run at final synthesis.
	ErrSynthesisFailed = errors.New("synthesis failed")

	// ErrPlanningFailed covers query planning failures. Fatal to the run.
	ErrPlanningFailed = errors.New("query planning failed")

	// ErrCacheCorrupted marks an unreadable cache entry. Always treated as a
	// miss, never propagated as fatal.
	ErrCacheCorrupted = errors.New("cache entry corrupted")

	// ErrSessionClosed rejects mutations of a session in a terminal state.
	ErrSessionClosed = errors.New("run session is closed")
)
