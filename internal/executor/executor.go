// Package executor runs one search->filter->fetch->aggregate->answer cycle.
package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deepscout/deepscout/internal/fetch"
	"github.com/deepscout/deepscout/internal/progress"
	"github.com/deepscout/deepscout/internal/prompts"
	"github.com/deepscout/deepscout/internal/research"
	"github.com/deepscout/deepscout/internal/urlhash"
)

// Sentinel answers recorded when an iteration has nothing to synthesize.
const (
	AnswerNoResults    = "No search results found."
	AnswerNothingNew   = "No new search results to scrape."
	AnswerNoContent    = "No content could be scraped from the search results."
	AnswerSynthFailure = "Synthesis failed for this iteration."
)

// resolver is the slice of the fetch coordinator the executor needs.
type resolver interface {
	Resolve(ctx context.Context, url string, fetchFn fetch.FetchFunc, ttl time.Duration) (fetch.Result, error)
}

// Executor coordinates the external collaborators for a single iteration.
// Fetches for distinct URLs run concurrently; everything else is sequential.
type Executor struct {
	search    research.SearchProvider
	extractor research.Extractor
	resolver  resolver
	synth     research.Synthesizer
	clock     research.Clock
	events    progress.Emitter
	logger    *zap.Logger
}

// New constructs an Executor.
func New(
	search research.SearchProvider,
	extractor research.Extractor,
	resolver resolver,
	synth research.Synthesizer,
	clock research.Clock,
	events progress.Emitter,
	logger *zap.Logger,
) *Executor {
	if events == nil {
		events = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		search:    search,
		extractor: extractor,
		resolver:  resolver,
		synth:     synth,
		clock:     clock,
		events:    events,
		logger:    logger,
	}
}

// fetchedSource is one successfully resolved URL, in search result order.
type fetchedSource struct {
	title   string
	url     string
	method  string
	content string
}

// Execute runs iteration index of runID. seen holds the normalized URLs
// already touched by earlier iterations; the returned record's ResultURLs
// lists the new URLs this iteration considered so the caller can extend the
// set. Per-URL failures become warnings, never errors; only a search outage
// is returned as an error.
func (e *Executor) Execute(
	ctx context.Context,
	runID string,
	index int,
	query string,
	seen map[string]struct{},
	cfg research.RunConfig,
) (research.IterationRecord, error) {
	cfg = cfg.Normalize()
	rec := research.IterationRecord{
		Index:     index,
		Query:     query,
		StartedAt: e.clock.Now(),
	}

	results, err := e.search.Search(ctx, query, cfg.ResultsPerIteration)
	if err != nil {
		return rec, fmt.Errorf("search for iteration %d: %w", index, err)
	}
	if len(results) == 0 {
		return e.seal(runID, rec, AnswerNoResults, AnswerNoResults), nil
	}

	fresh := filterSeen(results, seen)
	for _, r := range fresh {
		rec.ResultURLs = append(rec.ResultURLs, r.URL)
	}
	if len(fresh) == 0 {
		return e.seal(runID, rec, AnswerNothingNew, "All search results already scraped."), nil
	}

	sources := e.resolveAll(ctx, runID, index, fresh, cfg.CacheTTL, &rec)
	if len(sources) == 0 {
		return e.seal(runID, rec, AnswerNoContent), nil
	}

	answer, err := e.synth.Synthesize(ctx, prompts.AgenticSystem, prompts.Iteration(query, aggregate(sources)))
	if err != nil {
		// An iteration-level synthesis failure is absorbed: the run moves on
		// to the next iteration with the failure on record.
		e.logger.Warn("iteration synthesis failed",
			zap.String("run_id", runID),
			zap.Int("iteration", index),
			zap.Error(err))
		return e.seal(runID, rec, AnswerSynthFailure, fmt.Sprintf("synthesis failed: %v", err)), nil
	}

	return e.seal(runID, rec, answer), nil
}

// resolveAll fetches every fresh result concurrently and returns the
// successes in their original search order.
func (e *Executor) resolveAll(
	ctx context.Context,
	runID string,
	index int,
	fresh []research.SearchResult,
	ttl time.Duration,
	rec *research.IterationRecord,
) []fetchedSource {
	type slot struct {
		src fetchedSource
		err error
	}
	slots := make([]slot, len(fresh))

	var wg sync.WaitGroup
	for i, r := range fresh {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := e.resolver.Resolve(ctx, r.URL, e.extractor.Extract, ttl)
			if err != nil {
				slots[i] = slot{err: err}
				return
			}
			e.emitResolved(runID, index, r.URL, result)
			slots[i] = slot{src: fetchedSource{
				title:   r.Title,
				url:     r.URL,
				method:  result.Method,
				content: result.Content,
			}}
		}()
	}
	wg.Wait()

	var sources []fetchedSource
	for i, s := range slots {
		if s.err != nil {
			warning := fmt.Sprintf("failed to fetch %s: %v", fresh[i].URL, s.err)
			rec.Warnings = append(rec.Warnings, warning)
			e.emit(progress.Event{
				RunID:     runID,
				Stage:     progress.StageWarning,
				Iteration: index,
				URL:       fresh[i].URL,
				Note:      warning,
			})
			continue
		}
		sources = append(sources, s.src)
	}
	return sources
}

func (e *Executor) emitResolved(runID string, index int, url string, result fetch.Result) {
	stage := progress.StageCacheMiss
	if result.Cached {
		stage = progress.StageCacheHit
	}
	e.emit(progress.Event{
		RunID:     runID,
		Stage:     stage,
		Iteration: index,
		URL:       url,
	})
	e.emit(progress.Event{
		RunID:     runID,
		Stage:     progress.StageFetchDone,
		Iteration: index,
		URL:       url,
		Method:    result.Method,
		Bytes:     int64(len(result.Content)),
		Dur:       result.Dur,
	})
}

// seal stamps the finish time, appends any closing warnings, and returns the
// completed record.
func (e *Executor) seal(runID string, rec research.IterationRecord, answer string, warnings ...string) research.IterationRecord {
	rec.Answer = answer
	rec.Warnings = append(rec.Warnings, warnings...)
	rec.FinishedAt = e.clock.Now()
	for _, w := range warnings {
		e.emit(progress.Event{
			RunID:     runID,
			Stage:     progress.StageWarning,
			Iteration: rec.Index,
			Note:      w,
		})
	}
	return rec
}

func (e *Executor) emit(evt progress.Event) {
	evt.TS = e.clock.Now()
	e.events.Emit(evt)
}

// filterSeen drops results whose normalized URL was already touched by an
// earlier iteration of this run.
func filterSeen(results []research.SearchResult, seen map[string]struct{}) []research.SearchResult {
	var fresh []research.SearchResult
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		if _, ok := seen[urlhash.Normalize(r.URL)]; ok {
			continue
		}
		fresh = append(fresh, r)
	}
	return fresh
}

// aggregate joins fetched documents with per-source attribution, mirroring
// the layout the synthesis prompt expects.
func aggregate(sources []fetchedSource) string {
	parts := make([]string, 0, len(sources))
	for _, s := range sources {
		title := s.title
		if title == "" {
			title = s.url
		}
		parts = append(parts, fmt.Sprintf("## Source: %s\nURL: <%s>\nMethod: %s\n\n%s\n", title, s.url, s.method, s.content))
	}
	return strings.Join(parts, "\n\n---\n\n")
}
