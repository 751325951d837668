package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepscout/deepscout/internal/research"
)

func chatHandler(t *testing.T, content string, capture *chatRequest) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, content)
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{APIKey: "test-key", BaseURL: srv.URL, Temperature: 0.2})
	require.NoError(t, err)
	return client
}

func TestSynthesizeSendsSystemAndUserMessages(t *testing.T) {
	t.Parallel()

	var captured chatRequest
	client := newTestClient(t, chatHandler(t, "the answer", &captured))

	answer, err := client.Synthesize(context.Background(), "be thorough", "what is cpi?")
	require.NoError(t, err)
	require.Equal(t, "the answer", answer)

	require.Len(t, captured.Messages, 2)
	require.Equal(t, "system", captured.Messages[0].Role)
	require.Equal(t, "be thorough", captured.Messages[0].Content)
	require.Equal(t, "user", captured.Messages[1].Role)
	require.Equal(t, defaultModel, captured.Model)
	require.InDelta(t, 0.2, captured.Temperature, 1e-9)
}

func TestSynthesizeWrapsFailures(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, err := client.Synthesize(context.Background(), "", "question")
	require.ErrorIs(t, err, research.ErrSynthesisFailed)
}

func TestPlanParsesQueryLines(t *testing.T) {
	t.Parallel()

	reply := "1. golang scheduler internals\n2) goroutine preemption history\n- \"work stealing runtime\"\n\nextra beyond n"
	client := newTestClient(t, chatHandler(t, reply, nil))

	queries, err := client.Plan(context.Background(), "how does the go scheduler work", 3)
	require.NoError(t, err)
	require.Equal(t, []string{
		"golang scheduler internals",
		"goroutine preemption history",
		"work stealing runtime",
	}, queries)
}

func TestPlanMayReturnFewerQueries(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, chatHandler(t, "only one query", nil))

	queries, err := client.Plan(context.Background(), "question", 3)
	require.NoError(t, err)
	require.Len(t, queries, 1)
}

func TestPlanWrapsFailures(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})

	_, err := client.Plan(context.Background(), "question", 2)
	require.ErrorIs(t, err, research.ErrPlanningFailed)
}

func TestSlugUsesZeroTemperature(t *testing.T) {
	t.Parallel()

	var captured chatRequest
	client := newTestClient(t, chatHandler(t, "  go_scheduler_design \n", &captured))

	slug, err := client.Slug(context.Background(), "how does the go scheduler work")
	require.NoError(t, err)
	require.Equal(t, "go_scheduler_design", slug)
	require.Zero(t, captured.Temperature)
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}
