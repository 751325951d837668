package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deepscout/deepscout/internal/progress"
	pubmem "github.com/deepscout/deepscout/internal/publisher/memory"
	"github.com/deepscout/deepscout/internal/research"
	"github.com/deepscout/deepscout/internal/session"
	"github.com/deepscout/deepscout/internal/storage/memory"
	"github.com/deepscout/deepscout/internal/urlhash"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type stubPlanner struct {
	queries []string
	err     error
}

func (p stubPlanner) Plan(context.Context, string, int) ([]string, error) {
	return p.queries, p.err
}

// scriptedRunner returns canned iteration records and snapshots the seen set
// it was handed on each call.
type scriptedRunner struct {
	mu      sync.Mutex
	urls    map[int][]string
	errOn   int
	queries []string
	seen    []map[string]struct{}
}

func (r *scriptedRunner) Execute(_ context.Context, _ string, index int, query string, seen map[string]struct{}, _ research.RunConfig) (research.IterationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[string]struct{}, len(seen))
	for k := range seen {
		snapshot[k] = struct{}{}
	}
	r.seen = append(r.seen, snapshot)
	r.queries = append(r.queries, query)

	if r.errOn == index {
		return research.IterationRecord{}, fmt.Errorf("%w: search broke", research.ErrSearchUnavailable)
	}
	return research.IterationRecord{
		Index:      index,
		Query:      query,
		ResultURLs: r.urls[index],
		Answer:     fmt.Sprintf("answer %d", index),
	}, nil
}

type stubSynth struct {
	mu     sync.Mutex
	answer string
	err    error
	user   string
}

func (s *stubSynth) Synthesize(_ context.Context, _, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	return s.answer, s.err
}

type fixedSlugger struct{ slug string }

func (s fixedSlugger) Slug(context.Context, string) (string, error) { return s.slug, nil }

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Stage)
	}
	return out
}

type recordingMirror struct {
	mu       sync.Mutex
	recorded []research.RunMetadata
}

func (m *recordingMirror) RecordRun(_ context.Context, meta research.RunMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, meta)
	return nil
}

type fixture struct {
	orch    *Orchestrator
	manager *session.Manager
	runner  *scriptedRunner
	synth   *stubSynth
	emitter *recordingEmitter
	pub     *pubmem.Publisher
	mirror  *recordingMirror
}

func newFixture(t *testing.T, planner stubPlanner, runner *scriptedRunner, synth *stubSynth) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	manager := session.NewManager(memory.NewBlobStore(), session.ManagerConfig{
		Slugger: fixedSlugger{slug: "test_run"},
		Clock:   clock,
		Logger:  zap.NewNop(),
	})
	emitter := &recordingEmitter{}
	pub := pubmem.New()
	mirror := &recordingMirror{}
	orch := New(manager, planner, runner, synth, clock, emitter, pub, mirror, Config{Topic: "runs"}, zap.NewNop())
	return &fixture{orch: orch, manager: manager, runner: runner, synth: synth, emitter: emitter, pub: pub, mirror: mirror}
}

func TestRunDeduplicatesAcrossIterations(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{urls: map[int][]string{
		1: {"https://a.example/", "https://b.example/"},
		2: {"https://c.example/"},
	}}
	synth := &stubSynth{answer: "final answer"}
	f := newFixture(t, stubPlanner{queries: []string{"query one", "query two"}}, runner, synth)

	answer, runID, err := f.orch.Run(context.Background(), "question", research.RunConfig{Iterations: 2})
	require.NoError(t, err)
	require.Equal(t, "final answer", answer)
	require.Equal(t, "test_run", runID)

	// Iteration 2 saw everything iteration 1 touched.
	require.Len(t, runner.seen, 2)
	require.Empty(t, runner.seen[0])
	require.Contains(t, runner.seen[1], urlhash.Normalize("https://a.example/"))
	require.Contains(t, runner.seen[1], urlhash.Normalize("https://b.example/"))

	// Final synthesis folds both iteration answers.
	require.Contains(t, synth.user, "Answer 1:\nanswer 1")
	require.Contains(t, synth.user, "Answer 2:\nanswer 2")

	s, ok := f.manager.Get(runID)
	require.True(t, ok)
	meta := s.Metadata()
	require.Equal(t, research.RunStatusCompleted, meta.Status)
	require.Equal(t, 2, meta.IterationCount)
	require.Equal(t, 3, meta.SourceCount)

	stages := f.emitter.stages()
	require.Contains(t, stages, progress.StageRunStart)
	require.Contains(t, stages, progress.StagePlanDone)
	require.Contains(t, stages, progress.StageIterStart)
	require.Contains(t, stages, progress.StageIterDone)
	require.Contains(t, stages, progress.StageRunDone)

	require.Len(t, f.pub.ForTopic("runs"), 1)
	require.Len(t, f.mirror.recorded, 1)
	require.Equal(t, research.RunStatusCompleted, f.mirror.recorded[0].Status)
}

func TestRunPadsShortQueryPlans(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{urls: map[int][]string{}}
	f := newFixture(t, stubPlanner{queries: []string{"only one"}}, runner, &stubSynth{answer: "final"})

	_, _, err := f.orch.Run(context.Background(), "the original question", research.RunConfig{Iterations: 3})
	require.NoError(t, err)

	require.Equal(t, []string{"only one", "the original question", "the original question"}, runner.queries)
	require.Contains(t, f.emitter.stages(), progress.StageWarning)
}

func TestRunTruncatesOverlongQueryPlans(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{urls: map[int][]string{}}
	f := newFixture(t, stubPlanner{queries: []string{"q1", "q2", "q3", "q4"}}, runner, &stubSynth{answer: "final"})

	_, _, err := f.orch.Run(context.Background(), "question", research.RunConfig{Iterations: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"q1", "q2"}, runner.queries)
}

func TestRunPlannerFailureIsFatal(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{}
	f := newFixture(t, stubPlanner{err: fmt.Errorf("%w: no plan", research.ErrPlanningFailed)}, runner, &stubSynth{})

	_, runID, err := f.orch.Run(context.Background(), "question", research.RunConfig{Iterations: 2})
	require.ErrorIs(t, err, research.ErrPlanningFailed)

	s, ok := f.manager.Get(runID)
	require.True(t, ok)
	require.Equal(t, research.RunStatusError, s.Metadata().Status)
	require.Contains(t, f.emitter.stages(), progress.StageRunError)
	require.Empty(t, runner.queries)

	// Error mirrors still fire so downstream systems see the failure.
	require.Len(t, f.mirror.recorded, 1)
	require.Equal(t, research.RunStatusError, f.mirror.recorded[0].Status)
}

func TestRunIterationFailurePreservesPartialState(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{
		urls:  map[int][]string{1: {"https://a.example/"}},
		errOn: 2,
	}
	f := newFixture(t, stubPlanner{queries: []string{"q1", "q2"}}, runner, &stubSynth{})

	_, runID, err := f.orch.Run(context.Background(), "question", research.RunConfig{Iterations: 2})
	require.ErrorIs(t, err, research.ErrSearchUnavailable)

	s, ok := f.manager.Get(runID)
	require.True(t, ok)
	meta := s.Metadata()
	require.Equal(t, research.RunStatusError, meta.Status)
	require.Equal(t, 1, meta.IterationCount, "iteration 1 must survive the failure")
	require.Len(t, s.Iterations(), 1)
}

func TestRunFinalSynthesisFailureIsFatal(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{urls: map[int][]string{}}
	synth := &stubSynth{err: fmt.Errorf("%w: boom", research.ErrSynthesisFailed)}
	f := newFixture(t, stubPlanner{queries: []string{"q1"}}, runner, synth)

	_, runID, err := f.orch.Run(context.Background(), "question", research.RunConfig{Iterations: 1})
	require.ErrorIs(t, err, research.ErrSynthesisFailed)

	s, ok := f.manager.Get(runID)
	require.True(t, ok)
	require.Equal(t, research.RunStatusError, s.Metadata().Status)
	require.Equal(t, 1, s.Metadata().IterationCount)
}

func TestRunCancelledContextFailsRun(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{urls: map[int][]string{}}
	f := newFixture(t, stubPlanner{queries: []string{"q1"}}, runner, &stubSynth{answer: "final"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, runID, err := f.orch.Run(ctx, "question", research.RunConfig{Iterations: 1})
	require.ErrorIs(t, err, context.Canceled)

	s, ok := f.manager.Get(runID)
	require.True(t, ok)
	require.Equal(t, research.RunStatusError, s.Metadata().Status)
}

func TestRunErrorsAreWrappedWithIterationIndex(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{errOn: 1}
	f := newFixture(t, stubPlanner{queries: []string{"q1"}}, runner, &stubSynth{})

	_, _, err := f.orch.Run(context.Background(), "question", research.RunConfig{Iterations: 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "iteration 1")
	require.True(t, errors.Is(err, research.ErrSearchUnavailable))
}
