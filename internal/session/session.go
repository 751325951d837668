package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/deepscout/deepscout/internal/research"
	"github.com/deepscout/deepscout/internal/storage"
)

const (
	metadataFile     = "metadata.json"
	finalAnswerFile  = "final_answer.md"
	allAnswersFile   = "all_iteration_answers.md"
	runSummaryFile   = "run_summary.json"
	iterationDirName = "iterations"
)

// Session is one end-to-end research execution. All mutations go through its
// methods; the orchestrator drives it from a single goroutine, the mutex only
// guards readers (inspection API) against in-flight writes.
type Session struct {
	blobs  storage.BlobStore
	clock  research.Clock
	logger *zap.Logger
	dir    string
	cfg    research.RunConfig

	mu         sync.Mutex
	meta       research.RunMetadata
	iterations []research.IterationRecord
}

// ID returns the run identifier (also the run directory name).
func (s *Session) ID() string {
	return s.meta.RunID
}

// Dir returns the blob path of the run directory.
func (s *Session) Dir() string {
	return s.dir
}

// Metadata returns a copy of the current run metadata.
func (s *Session) Metadata() research.RunMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// Iterations returns a copy of the recorded iteration list.
func (s *Session) Iterations() []research.IterationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]research.IterationRecord, len(s.iterations))
	copy(out, s.iterations)
	return out
}

// Start transitions initialized -> running and persists the change.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureStatus(research.RunStatusInitialized); err != nil {
		return err
	}
	s.meta.Status = research.RunStatusRunning
	return s.persistMetadataLocked(ctx)
}

// RecordIteration appends a sealed iteration record, updates the counters,
// and persists both the record artifact and the refreshed metadata.
func (s *Session) RecordIteration(ctx context.Context, rec research.IterationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureStatus(research.RunStatusRunning); err != nil {
		return err
	}
	if want := len(s.iterations) + 1; rec.Index != want {
		return fmt.Errorf("iteration index %d out of order, want %d", rec.Index, want)
	}

	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal iteration record: %w", err)
	}
	path := fmt.Sprintf("%s/%s/iteration_%02d.json", s.dir, iterationDirName, rec.Index)
	if _, err := s.blobs.PutObject(ctx, path, "application/json", payload); err != nil {
		return fmt.Errorf("persist iteration record: %w", err)
	}

	s.iterations = append(s.iterations, rec)
	s.meta.IterationCount = len(s.iterations)
	s.meta.SourceCount += len(rec.ResultURLs)
	return s.persistMetadataLocked(ctx)
}

// Complete transitions running -> completed and writes the terminal
// artifacts: the final answer, the per-iteration digest, and the summary.
func (s *Session) Complete(ctx context.Context, finalAnswer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureStatus(research.RunStatusRunning); err != nil {
		return err
	}
	s.meta.Status = research.RunStatusCompleted
	s.meta.Duration = s.clock.Now().Sub(s.meta.CreatedAt)

	if _, err := s.blobs.PutObject(ctx, s.dir+"/"+finalAnswerFile, "text/markdown", []byte(finalAnswer)); err != nil {
		return fmt.Errorf("persist final answer: %w", err)
	}
	if err := s.writeTerminalArtifactsLocked(ctx); err != nil {
		return err
	}
	if err := s.persistMetadataLocked(ctx); err != nil {
		return err
	}

	s.logger.Info("run completed",
		zap.Int("iterations", s.meta.IterationCount),
		zap.Int("sources", s.meta.SourceCount),
		zap.Duration("dur", s.meta.Duration))
	return nil
}

// Fail transitions to the error status from any non-terminal state. Partial
// iteration data already recorded is kept and still summarized.
func (s *Session) Fail(ctx context.Context, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal() {
		return research.ErrSessionClosed
	}
	s.meta.Status = research.RunStatusError
	s.meta.Duration = s.clock.Now().Sub(s.meta.CreatedAt)
	if cause != nil {
		s.meta.ErrorText = cause.Error()
	}

	if err := s.writeTerminalArtifactsLocked(ctx); err != nil {
		s.logger.Warn("failed to write partial artifacts", zap.Error(err))
	}
	if err := s.persistMetadataLocked(ctx); err != nil {
		return err
	}

	s.logger.Warn("run failed",
		zap.Int("iterations", s.meta.IterationCount),
		zap.String("error", s.meta.ErrorText))
	return nil
}

func (s *Session) terminal() bool {
	return s.meta.Status == research.RunStatusCompleted || s.meta.Status == research.RunStatusError
}

func (s *Session) ensureStatus(want research.RunStatus) error {
	if s.terminal() {
		return research.ErrSessionClosed
	}
	if s.meta.Status != want {
		return fmt.Errorf("run %s is %s, expected %s", s.meta.RunID, s.meta.Status, want)
	}
	return nil
}

func (s *Session) persistMetadata(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistMetadataLocked(ctx)
}

func (s *Session) persistMetadataLocked(ctx context.Context) error {
	payload, err := json.MarshalIndent(s.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run metadata: %w", err)
	}
	if _, err := s.blobs.PutObject(ctx, s.dir+"/"+metadataFile, "application/json", payload); err != nil {
		return fmt.Errorf("persist run metadata: %w", err)
	}
	return nil
}
