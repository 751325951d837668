package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepscout/deepscout/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Search.BraveAPIKey = "test-brave-key"
	cfg.LLM.GroqAPIKey = "test-groq-key"
	cfg.Storage.BaseDir = t.TempDir()
	cfg.Logging.Development = false
	return cfg
}

func TestNewBuildsLocalGraph(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close(context.Background())

	require.NotNil(t, a.Orchestrator)
	require.NotNil(t, a.Sessions)
	require.NotNil(t, a.Hub)
	require.NotNil(t, a.Events)
	require.NotNil(t, a.Registry)
	require.Nil(t, a.renderer)
	require.Nil(t, a.recorder)
	require.Nil(t, a.publisher)
}

func TestNewRequiresSearchKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Search.BraveAPIKey = ""
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "search client")
}

func TestNewRequiresLLMKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.LLM.GroqAPIKey = ""
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "llm client")
}

func TestCloseIsIdempotentWithPartialGraph(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)

	a.Close(context.Background())
	a.Close(context.Background())
}
