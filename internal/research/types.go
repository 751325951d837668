// Package research defines core types shared across subsystems.
package research

import "time"

// RunStatus represents the lifecycle state of a research run.
type RunStatus string

// Run status values persisted in run metadata.
const (
	RunStatusInitialized RunStatus = "initialized"
	RunStatusRunning     RunStatus = "running"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusError       RunStatus = "error"
)

// RunMetadata is the durable record for a single research run. It is owned
// exclusively by the run session and persisted after every state transition.
type RunMetadata struct {
	RunID          string        `json:"run_id"`
	RunUUID        string        `json:"run_uuid"`
	Question       string        `json:"question"`
	CreatedAt      time.Time     `json:"created_at"`
	Status         RunStatus     `json:"status"`
	IterationCount int           `json:"iteration_count"`
	SourceCount    int           `json:"source_count"`
	Duration       time.Duration `json:"duration_ns"`
	ErrorText      string        `json:"error_text,omitempty"`
}

// CachedSource is one extracted document in the shared content cache.
// Entries are immutable once written; a fresh fetch replaces the whole entry.
type CachedSource struct {
	URL       string    `json:"url"`
	URLHash   string    `json:"url_hash"`
	Content   string    `json:"-"`
	Method    string    `json:"method"`
	FetchedAt time.Time `json:"fetched_at"`
}

// IterationRecord captures one search->fetch->answer cycle. Records are sealed
// when the iteration completes and appended to the session in iteration order.
type IterationRecord struct {
	Index      int       `json:"index"`
	Query      string    `json:"query"`
	ResultURLs []string  `json:"result_urls"`
	Answer     string    `json:"answer"`
	Warnings   []string  `json:"warnings,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// SearchResult is one ranked hit returned by the search provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// RunConfig carries the knobs the core recognizes for a single run.
type RunConfig struct {
	Iterations          int           `json:"iterations"`
	ResultsPerIteration int           `json:"results_per_iteration"`
	FetchConcurrency    int           `json:"fetch_concurrency"`
	CacheTTL            time.Duration `json:"cache_ttl"`
	SlugSalt            string        `json:"slug_salt,omitempty"`
}

// Normalize fills unset fields with workable defaults.
func (c RunConfig) Normalize() RunConfig {
	if c.Iterations <= 0 {
		c.Iterations = 3
	}
	if c.ResultsPerIteration <= 0 {
		c.ResultsPerIteration = 3
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 4
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 24 * time.Hour
	}
	return c
}
