package research

import (
	"context"
	"time"
)

// SearchProvider returns ranked web results for a query string.
type SearchProvider interface {
	Search(ctx context.Context, query string, count int) ([]SearchResult, error)
}

// Extractor fetches a URL and returns the extracted text plus the name of the
// extraction path that produced it.
type Extractor interface {
	Extract(ctx context.Context, url string) (text string, method string, err error)
}

// Synthesizer produces an answer from a system instruction and a user prompt
// that already carries any supporting sources.
type Synthesizer interface {
	Synthesize(ctx context.Context, system, user string) (string, error)
}

// QueryPlanner turns a research question into n diversified search queries.
type QueryPlanner interface {
	Plan(ctx context.Context, question string, n int) ([]string, error)
}

// Slugger names a run after its question. Implementations may consult an LLM;
// the result is sanitized before use either way.
type Slugger interface {
	Slug(ctx context.Context, question string) (string, error)
}

// ContentStore is the shared URL-addressed cache of extracted documents.
type ContentStore interface {
	Get(ctx context.Context, url string) (CachedSource, bool)
	Put(ctx context.Context, url, content, method string) (CachedSource, error)
}

// Hasher computes the stable digest used to address cache entries.
type Hasher interface {
	Hash(url string) string
}

// Clock returns the current time (useful for testing staleness).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run UUIDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Publisher pushes run completion events to an external topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RunRecorder mirrors terminal run metadata into an external store. The run
// directory remains the source of truth; mirrors are best effort.
type RunRecorder interface {
	RecordRun(ctx context.Context, meta RunMetadata) error
}
