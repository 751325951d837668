package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deepscout/deepscout/internal/research"
)

// runSummary is the shape of run_summary.json.
type runSummary struct {
	Question   string             `json:"question"`
	Status     research.RunStatus `json:"status"`
	Config     research.RunConfig `json:"config"`
	Iterations []summaryIteration `json:"iterations"`
	DurationNS int64              `json:"duration_ns"`
	Error      string             `json:"error,omitempty"`
}

type summaryIteration struct {
	Index    int      `json:"index"`
	Query    string   `json:"query"`
	URLs     []string `json:"urls"`
	Warnings []string `json:"warnings,omitempty"`
}

// writeTerminalArtifactsLocked writes the iteration digest and the JSON
// summary. Callers hold the session mutex.
func (s *Session) writeTerminalArtifactsLocked(ctx context.Context) error {
	if len(s.iterations) > 0 {
		digest := renderIterationDigest(s.iterations)
		if _, err := s.blobs.PutObject(ctx, s.dir+"/"+allAnswersFile, "text/markdown", []byte(digest)); err != nil {
			return fmt.Errorf("persist iteration digest: %w", err)
		}
	}

	summary := runSummary{
		Question:   s.meta.Question,
		Status:     s.meta.Status,
		Config:     s.cfg,
		DurationNS: int64(s.meta.Duration),
		Error:      s.meta.ErrorText,
		Iterations: make([]summaryIteration, 0, len(s.iterations)),
	}
	for _, rec := range s.iterations {
		summary.Iterations = append(summary.Iterations, summaryIteration{
			Index:    rec.Index,
			Query:    rec.Query,
			URLs:     rec.ResultURLs,
			Warnings: rec.Warnings,
		})
	}

	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	if _, err := s.blobs.PutObject(ctx, s.dir+"/"+runSummaryFile, "application/json", payload); err != nil {
		return fmt.Errorf("persist run summary: %w", err)
	}
	return nil
}

// renderIterationDigest produces the human-readable per-iteration answer log.
func renderIterationDigest(iterations []research.IterationRecord) string {
	var b strings.Builder
	for _, rec := range iterations {
		fmt.Fprintf(&b, "\n---\n\n# Iteration %d\n\n", rec.Index)
		fmt.Fprintf(&b, "## Search Query:\n%s\n\n", rec.Query)
		fmt.Fprintf(&b, "## Search URLs:\n%s\n\n", strings.Join(rec.ResultURLs, "\n"))
		if len(rec.Warnings) > 0 {
			fmt.Fprintf(&b, "## Warnings:\n- %s\n\n", strings.Join(rec.Warnings, "\n- "))
		}
		fmt.Fprintf(&b, "## Answer:\n%s\n", rec.Answer)
	}
	return b.String()
}
