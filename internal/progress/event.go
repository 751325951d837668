// Package progress defines the event structures emitted by the research
// pipeline, replacing ad-hoc progress printing with a stream any sink can
// consume.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart  Stage = "RUN_START"
	StagePlanDone  Stage = "PLAN_DONE"
	StageIterStart Stage = "ITER_START"
	StageIterDone  Stage = "ITER_DONE"
	StageFetchDone Stage = "FETCH_DONE"
	StageCacheHit  Stage = "CACHE_HIT"
	StageCacheMiss Stage = "CACHE_MISS"
	StageWarning   Stage = "WARNING"
	StageRunDone   Stage = "RUN_DONE"
	StageRunError  Stage = "RUN_ERROR"
)

// Event captures a single milestone of a research run.
type Event struct {
	// RunID identifies the run the event belongs to.
	RunID string `json:"run_id"`
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time `json:"ts"`
	// Stage denotes which lifecycle or fetch milestone occurred.
	Stage Stage `json:"stage"`
	// Iteration is the 1-based iteration index for iteration-scoped events.
	Iteration int `json:"iteration,omitempty"`
	// Query is the search query for iteration events.
	Query string `json:"query,omitempty"`
	// URL is the optional page URL; it should not contain credentials.
	URL string `json:"url,omitempty"`
	// Method names the extraction path for fetch completions.
	Method string `json:"method,omitempty"`
	// Bytes carries the extracted content size for fetch completions.
	Bytes int64 `json:"bytes,omitempty"`
	// Dur captures execution latency for fetches, iterations, and runs.
	Dur time.Duration `json:"dur,omitempty"`
	// Note lets emitters attach low-volume context (e.g. warning text).
	Note string `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StagePlanDone, StageRunDone, StageRunError, StageWarning:
	case StageIterStart, StageIterDone:
		if e.Iteration < 1 {
			return fmt.Errorf("%s requires a 1-based iteration", e.Stage)
		}
	case StageFetchDone:
		if e.URL == "" {
			return errors.New("fetch done requires url")
		}
	case StageCacheHit, StageCacheMiss:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
