package sinks

import (
	"context"
	"sync"

	"github.com/deepscout/deepscout/internal/progress"
)

const defaultEventCap = 512

// MemorySink retains recent events per run so the inspection API can serve
// them. Each run keeps at most capPerRun events; older ones are discarded.
type MemorySink struct {
	mu        sync.RWMutex
	byRun     map[string][]progress.Event
	capPerRun int
}

// NewMemorySink creates a MemorySink. capPerRun <= 0 selects the default.
func NewMemorySink(capPerRun int) *MemorySink {
	if capPerRun <= 0 {
		capPerRun = defaultEventCap
	}
	return &MemorySink{
		byRun:     make(map[string][]progress.Event),
		capPerRun: capPerRun,
	}
}

// Consume appends the batch to the per-run buffers.
func (s *MemorySink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		events := append(s.byRun[evt.RunID], evt)
		if overflow := len(events) - s.capPerRun; overflow > 0 {
			events = events[overflow:]
		}
		s.byRun[evt.RunID] = events
	}
	return nil
}

// Events returns a copy of the retained events for runID in arrival order.
func (s *MemorySink) Events(runID string) []progress.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]progress.Event(nil), s.byRun[runID]...)
}

// Close implements the Sink interface; it performs no action.
func (s *MemorySink) Close(context.Context) error {
	return nil
}
