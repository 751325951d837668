// Package orchestrator drives full research runs: plan, iterate, synthesize,
// and seal the session.
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/deepscout/deepscout/internal/progress"
	"github.com/deepscout/deepscout/internal/prompts"
	"github.com/deepscout/deepscout/internal/research"
	"github.com/deepscout/deepscout/internal/session"
	"github.com/deepscout/deepscout/internal/urlhash"
)

// iterationRunner is the slice of the iteration executor the orchestrator
// drives.
type iterationRunner interface {
	Execute(ctx context.Context, runID string, index int, query string, seen map[string]struct{}, cfg research.RunConfig) (research.IterationRecord, error)
}

// Config wires the optional outward mirrors of the orchestrator.
type Config struct {
	// Topic names the destination for run completion events; used only when a
	// publisher is set.
	Topic string
}

// Orchestrator owns the run lifecycle. Iterations run strictly in order:
// iteration i+1 starts only after iteration i's record is persisted, because
// deduplication depends on the accumulated URL set.
type Orchestrator struct {
	sessions *session.Manager
	planner  research.QueryPlanner
	runner   iterationRunner
	synth    research.Synthesizer
	clock    research.Clock
	events   progress.Emitter

	publisher research.Publisher
	recorder  research.RunRecorder
	topic     string
	logger    *zap.Logger
}

// New constructs an Orchestrator. publisher and recorder may be nil; the run
// directory is always the source of truth and mirrors are best effort.
func New(
	sessions *session.Manager,
	planner research.QueryPlanner,
	runner iterationRunner,
	synth research.Synthesizer,
	clock research.Clock,
	events progress.Emitter,
	publisher research.Publisher,
	recorder research.RunRecorder,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if events == nil {
		events = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		sessions:  sessions,
		planner:   planner,
		runner:    runner,
		synth:     synth,
		clock:     clock,
		events:    events,
		publisher: publisher,
		recorder:  recorder,
		topic:     cfg.Topic,
		logger:    logger,
	}
}

// Run executes the whole workflow for question and returns the final answer
// plus the run id. On a fatal failure the session is sealed with its partial
// state before the error is returned.
func (o *Orchestrator) Run(ctx context.Context, question string, cfg research.RunConfig) (string, string, error) {
	cfg = cfg.Normalize()

	s, err := o.sessions.Create(ctx, question, cfg)
	if err != nil {
		return "", "", fmt.Errorf("create run session: %w", err)
	}
	runID := s.ID()
	o.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart, Note: question})

	if err := s.Start(ctx); err != nil {
		return "", runID, fmt.Errorf("start run session: %w", err)
	}

	answer, err := o.execute(ctx, s, question, cfg)
	if err != nil {
		o.failRun(ctx, s, err)
		return "", runID, err
	}

	if err := s.Complete(ctx, answer); err != nil {
		return "", runID, fmt.Errorf("complete run session: %w", err)
	}
	meta := s.Metadata()
	o.emit(progress.Event{RunID: runID, Stage: progress.StageRunDone, Dur: meta.Duration})
	o.mirror(ctx, meta)

	return answer, runID, nil
}

// execute runs planning, all iterations, and the final synthesis. Any error
// it returns is fatal to the run.
func (o *Orchestrator) execute(ctx context.Context, s *session.Session, question string, cfg research.RunConfig) (string, error) {
	runID := s.ID()

	queries, err := o.planQueries(ctx, runID, question, cfg.Iterations)
	if err != nil {
		return "", err
	}

	seen := make(map[string]struct{})
	answers := make([]string, 0, len(queries))
	for i, query := range queries {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("run cancelled before iteration %d: %w", i+1, err)
		}

		o.emit(progress.Event{RunID: runID, Stage: progress.StageIterStart, Iteration: i + 1, Query: query})

		rec, err := o.runner.Execute(ctx, runID, i+1, query, seen, cfg)
		if err != nil {
			return "", fmt.Errorf("iteration %d: %w", i+1, err)
		}
		for _, u := range rec.ResultURLs {
			seen[urlhash.Normalize(u)] = struct{}{}
		}

		// The record must land before the next iteration starts so a crash
		// never loses a finished iteration.
		if err := s.RecordIteration(ctx, rec); err != nil {
			return "", fmt.Errorf("record iteration %d: %w", i+1, err)
		}
		answers = append(answers, rec.Answer)

		o.emit(progress.Event{
			RunID:     runID,
			Stage:     progress.StageIterDone,
			Iteration: i + 1,
			Query:     query,
			Dur:       rec.FinishedAt.Sub(rec.StartedAt),
		})
	}

	final, err := o.synth.Synthesize(ctx, prompts.FinalSynthesisSystem, prompts.FinalSynthesis(question, answers))
	if err != nil {
		return "", fmt.Errorf("final synthesis: %w", err)
	}
	return final, nil
}

// planQueries asks the planner for n queries. A short plan is padded with the
// question itself so the run always has n iterations; a planner outage is
// fatal.
func (o *Orchestrator) planQueries(ctx context.Context, runID, question string, n int) ([]string, error) {
	queries, err := o.planner.Plan(ctx, question, n)
	if err != nil {
		return nil, fmt.Errorf("plan queries: %w", err)
	}
	if len(queries) > n {
		queries = queries[:n]
	}
	if len(queries) < n {
		o.logger.Warn("planner returned fewer queries than requested, padding with the question",
			zap.String("run_id", runID),
			zap.Int("got", len(queries)),
			zap.Int("want", n))
		o.emit(progress.Event{
			RunID: runID,
			Stage: progress.StageWarning,
			Note:  fmt.Sprintf("planner produced %d of %d queries", len(queries), n),
		})
		for len(queries) < n {
			queries = append(queries, question)
		}
	}

	o.emit(progress.Event{RunID: runID, Stage: progress.StagePlanDone, Note: fmt.Sprintf("%d queries", len(queries))})
	return queries, nil
}

// failRun seals the session with its partial state. The original error wins;
// sealing problems are only logged.
func (o *Orchestrator) failRun(ctx context.Context, s *session.Session, cause error) {
	if err := s.Fail(ctx, cause); err != nil {
		o.logger.Error("failed to seal errored run", zap.String("run_id", s.ID()), zap.Error(err))
	}
	o.emit(progress.Event{RunID: s.ID(), Stage: progress.StageRunError, Note: cause.Error()})
	o.mirror(ctx, s.Metadata())
}

// mirror pushes terminal run metadata to the optional publisher and recorder.
func (o *Orchestrator) mirror(ctx context.Context, meta research.RunMetadata) {
	if o.publisher != nil {
		if _, err := o.publisher.Publish(ctx, o.topic, meta); err != nil {
			o.logger.Warn("publish run completion failed", zap.String("run_id", meta.RunID), zap.Error(err))
		}
	}
	if o.recorder != nil {
		if err := o.recorder.RecordRun(ctx, meta); err != nil {
			o.logger.Warn("record run mirror failed", zap.String("run_id", meta.RunID), zap.Error(err))
		}
	}
}

func (o *Orchestrator) emit(evt progress.Event) {
	evt.TS = o.clock.Now()
	o.events.Emit(evt)
}
