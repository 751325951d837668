package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deepscout/deepscout/internal/progress"
	"github.com/deepscout/deepscout/internal/progress/sinks"
	"github.com/deepscout/deepscout/internal/research"
	"github.com/deepscout/deepscout/internal/session"
	"github.com/deepscout/deepscout/internal/storage/memory"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestServer(t *testing.T) (*Server, *session.Manager, *sinks.MemorySink) {
	t.Helper()
	manager := session.NewManager(memory.NewBlobStore(), session.ManagerConfig{
		Clock:  &testClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		Logger: zap.NewNop(),
	})
	events := sinks.NewMemorySink(0)
	srv := NewServer(manager, events, prometheus.NewRegistry(), zap.NewNop())
	return srv, manager, events
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := get(t, srv.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	srv, manager, _ := newTestServer(t)
	_, err := manager.Create(context.Background(), "What is inflation?", research.RunConfig{})
	require.NoError(t, err)

	rec := get(t, srv.Handler(), "/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Runs []research.RunMetadata `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Runs, 1)
	require.Equal(t, "What is inflation?", payload.Runs[0].Question)
}

func TestGetRunWithIterations(t *testing.T) {
	t.Parallel()

	srv, manager, _ := newTestServer(t)
	ctx := context.Background()
	s, err := manager.Create(ctx, "q", research.RunConfig{})
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.RecordIteration(ctx, research.IterationRecord{
		Index: 1, Query: "first", ResultURLs: []string{"https://a"}, Answer: "a1",
	}))

	rec := get(t, srv.Handler(), "/v1/runs/"+s.ID())
	require.Equal(t, http.StatusOK, rec.Code)

	var payload runDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, s.ID(), payload.RunID)
	require.Len(t, payload.Iterations, 1)
	require.Equal(t, "first", payload.Iterations[0].Query)
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := get(t, srv.Handler(), "/v1/runs/ghost")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunEvents(t *testing.T) {
	t.Parallel()

	srv, manager, events := newTestServer(t)
	ctx := context.Background()
	s, err := manager.Create(ctx, "q", research.RunConfig{})
	require.NoError(t, err)

	require.NoError(t, events.Consume(ctx, []progress.Event{
		{RunID: s.ID(), TS: time.Now().UTC(), Stage: progress.StageRunStart},
		{RunID: s.ID(), TS: time.Now().UTC(), Stage: progress.StageRunDone},
	}))

	rec := get(t, srv.Handler(), "/v1/runs/"+s.ID()+"/events")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Events []progress.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Events, 2)
	require.Equal(t, progress.StageRunStart, payload.Events[0].Stage)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := get(t, srv.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}
