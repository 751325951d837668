// Package fetch coordinates content resolution for the research pipeline. It
// guarantees at most one in-flight fetch per URL process-wide, bounds total
// concurrent fetches, and writes successful results through the shared
// content cache.
package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deepscout/deepscout/internal/research"
	"github.com/deepscout/deepscout/internal/urlhash"
)

// FetchFunc performs the actual retrieval and extraction for one URL.
type FetchFunc func(ctx context.Context, url string) (content string, method string, err error)

// Result is the outcome of a Resolve call.
type Result struct {
	Content string
	Method  string
	// Cached is true when the result came from the content store without a
	// new fetch.
	Cached bool
	// Shared is true when this caller waited on another caller's in-flight
	// fetch instead of issuing its own.
	Shared bool
	Dur    time.Duration
}

// contentCache is the slice of the cache the coordinator needs.
type contentCache interface {
	Get(ctx context.Context, url string) (research.CachedSource, bool)
	Put(ctx context.Context, url, content, method string) (research.CachedSource, error)
	IsStale(src research.CachedSource, ttl time.Duration) bool
}

// call tracks one in-flight fetch; waiters block on done and then read the
// shared outcome.
type call struct {
	done    chan struct{}
	content string
	method  string
	err     error
}

// Config controls Coordinator behavior.
type Config struct {
	// MaxConcurrent bounds simultaneous fetches process-wide (default 4).
	MaxConcurrent int
	// DomainRPS throttles requests per second per host (0 = unlimited).
	DomainRPS float64
	// DomainBurst is the per-host burst allowance (default 1).
	DomainBurst int
}

// Coordinator deduplicates and bounds fetches. The single-flight guard is
// keyed by the normalized URL and is global to the process, so independent
// runs sharing a Coordinator never fetch the same URL twice concurrently.
type Coordinator struct {
	cache   contentCache
	sem     chan struct{}
	limiter *domainLimiter
	logger  *zap.Logger

	mu       sync.Mutex
	inflight map[string]*call
}

// New constructs a Coordinator.
func New(cache contentCache, cfg Config, logger *zap.Logger) *Coordinator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cache:    cache,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		limiter:  newDomainLimiter(cfg.DomainRPS, cfg.DomainBurst),
		logger:   logger,
		inflight: make(map[string]*call),
	}
}

// Resolve returns content for url, consulting the cache first. A fresh entry
// within ttl is returned immediately with its method suffixed "(cached)".
// Otherwise the caller either becomes the leader for this URL or waits for
// the leader already fetching it; all waiters share the leader's outcome.
// Failures are propagated to every waiter and never cached.
func (c *Coordinator) Resolve(ctx context.Context, url string, fetchFn FetchFunc, ttl time.Duration) (Result, error) {
	start := time.Now()
	if src, found := c.cache.Get(ctx, url); found && !c.cache.IsStale(src, ttl) {
		return Result{
			Content: src.Content,
			Method:  src.Method + " (cached)",
			Cached:  true,
			Dur:     time.Since(start),
		}, nil
	}

	key := urlhash.Normalize(url)

	c.mu.Lock()
	if existing, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return c.await(ctx, existing, start)
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	c.lead(ctx, key, url, fetchFn, cl)

	if cl.err != nil {
		return Result{Dur: time.Since(start)}, cl.err
	}
	return Result{
		Content: cl.content,
		Method:  cl.method,
		Dur:     time.Since(start),
	}, nil
}

// await blocks until the leader finishes or ctx is done.
func (c *Coordinator) await(ctx context.Context, cl *call, start time.Time) (Result, error) {
	select {
	case <-cl.done:
	case <-ctx.Done():
		return Result{}, fmt.Errorf("wait for in-flight fetch: %w", ctx.Err())
	}
	if cl.err != nil {
		return Result{Shared: true, Dur: time.Since(start)}, cl.err
	}
	return Result{
		Content: cl.content,
		Method:  cl.method,
		Shared:  true,
		Dur:     time.Since(start),
	}, nil
}

// lead executes the fetch as the single-flight leader and broadcasts the
// outcome. The guard is dropped before done is closed so the next Resolve
// for this URL starts a fresh fetch rather than observing a settled call.
func (c *Coordinator) lead(ctx context.Context, key, url string, fetchFn FetchFunc, cl *call) {
	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
		close(cl.done)
	}()

	if err := c.acquire(ctx); err != nil {
		cl.err = err
		return
	}
	defer c.release()

	if err := c.limiter.Wait(ctx, url); err != nil {
		cl.err = err
		return
	}

	content, method, err := fetchFn(ctx, url)
	if err != nil {
		cl.err = err
		return
	}

	if _, putErr := c.cache.Put(ctx, url, content, method); putErr != nil {
		// The fetched content is still good; losing the cache write only
		// costs a refetch later.
		c.logger.Warn("cache write-through failed", zap.String("url", url), zap.Error(putErr))
	}
	cl.content = content
	cl.method = method
}

func (c *Coordinator) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("acquire fetch slot: %w", ctx.Err())
	}
}

func (c *Coordinator) release() {
	<-c.sem
}
