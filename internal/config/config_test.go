package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 3, cfg.Research.Iterations)
	require.Equal(t, "24h", cfg.Research.CacheTTL)
	require.Equal(t, "llama-3.3-70b-versatile", cfg.LLM.Model)
	require.Equal(t, "local", cfg.Storage.Backend)
	require.True(t, cfg.Fetch.RespectRobots)
	require.False(t, cfg.Headless.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
research:
  iterations: 5
  cache_ttl: 1h
storage:
  backend: gcs
  gcs_bucket: my-bucket
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, 5, cfg.Research.Iterations)
	require.Equal(t, "gcs", cfg.Storage.Backend)
	require.Equal(t, "my-bucket", cfg.Storage.GCSBucket)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name string
		yaml string
	}{
		{"bad backend", "storage:\n  backend: tape\n"},
		{"gcs without bucket", "storage:\n  backend: gcs\n"},
		{"zero iterations", "research:\n  iterations: -1\n"},
		{"bad ttl", "research:\n  cache_ttl: sometimes\n"},
		{"headless without parallel", "headless:\n  enabled: true\n  max_parallel: 0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.yaml), 0o600))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestRunConfigConversion(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	rc := cfg.RunConfig()
	require.Equal(t, 3, rc.Iterations)
	require.Equal(t, 24*time.Hour, rc.CacheTTL)
	require.Equal(t, 4, rc.FetchConcurrency)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("DEEPSCOUT_SERVER_PORT", "7070")
	t.Setenv("DEEPSCOUT_SEARCH_BRAVE_API_KEY", "env-brave-key")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "env-brave-key", cfg.Search.BraveAPIKey)
}
