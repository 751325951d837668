package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/deepscout/deepscout/internal/progress"
)

// PrometheusSink exports research progress metrics via Prometheus. It owns
// all collectors for runs started/completed/running, fetch completions, and
// cache hit/miss counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	fetchTotal    *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	cacheEvents   *prometheus.CounterVec
	warningsTotal prometheus.Counter

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "research_runs_started_total",
			Help: "Total research runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "research_runs_completed_total",
			Help: "Total research runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "research_runs_running",
			Help: "Current number of running research runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "research_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "research_fetches_total",
			Help: "Fetch completions partitioned by extraction method.",
		}, []string{"method"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "research_fetch_duration_seconds",
			Help:    "Duration of content resolution per URL.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "research_cache_events_total",
			Help: "Cache lookups partitioned by hit/miss.",
		}, []string{"result"}),
		warningsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "research_warnings_total",
			Help: "Warnings raised across all runs.",
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.fetchTotal,
		s.fetchDuration,
		s.cacheEvents,
		s.warningsTotal,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.completeRun(evt, "success")
	case progress.StageRunError:
		s.completeRun(evt, "error")
	case progress.StageFetchDone:
		method := evt.Method
		if method == "" {
			method = "unknown"
		}
		s.fetchTotal.WithLabelValues(method).Inc()
		if evt.Dur > 0 {
			s.fetchDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageCacheHit:
		s.cacheEvents.WithLabelValues("hit").Inc()
	case progress.StageCacheMiss:
		s.cacheEvents.WithLabelValues("miss").Inc()
	case progress.StageWarning:
		s.warningsTotal.Inc()
	}
}

func (s *PrometheusSink) completeRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

// Close implements the Sink interface; collectors stay registered.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// runTracker dedups start/complete transitions so the running gauge stays
// accurate even if an emitter repeats a lifecycle event.
type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(runID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[runID]; ok {
		return false
	}
	t.running[runID] = struct{}{}
	return true
}

func (t *runTracker) complete(runID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[runID]; !ok {
		return false
	}
	delete(t.running, runID)
	return true
}
