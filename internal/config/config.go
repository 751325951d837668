// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/deepscout/deepscout/internal/research"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Research ResearchConfig `mapstructure:"research"`
	Search   SearchConfig   `mapstructure:"search"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the inspection HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ResearchConfig governs the run pipeline.
type ResearchConfig struct {
	Iterations          int    `mapstructure:"iterations"`
	ResultsPerIteration int    `mapstructure:"results_per_iteration"`
	FetchConcurrency    int    `mapstructure:"fetch_concurrency"`
	CacheTTL            string `mapstructure:"cache_ttl"`
	SlugSalt            string `mapstructure:"slug_salt"`
}

// SearchConfig holds search provider credentials.
type SearchConfig struct {
	BraveAPIKey string `mapstructure:"brave_api_key"`
}

// LLMConfig selects the model backing synthesis, planning, and naming.
type LLMConfig struct {
	GroqAPIKey  string  `mapstructure:"groq_api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// FetchConfig configures the static HTTP fetcher and per-domain politeness.
type FetchConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
	DomainRPS      float64 `mapstructure:"domain_rps"`
	DomainBurst    int     `mapstructure:"domain_burst"`
	MaxChars       int     `mapstructure:"max_chars"`
}

// HeadlessConfig configures the browser rendering fallback.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// StorageConfig selects where cache entries and run artifacts live.
type StorageConfig struct {
	// Backend is "local" or "gcs".
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	CachePrefix string `mapstructure:"cache_prefix"`
	RunsPrefix  string `mapstructure:"runs_prefix"`
}

// DBConfig controls the optional Postgres run mirror.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for run completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEEPSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("research.iterations", 3)
	v.SetDefault("research.results_per_iteration", 3)
	v.SetDefault("research.fetch_concurrency", 4)
	v.SetDefault("research.cache_ttl", "24h")
	v.SetDefault("research.slug_salt", "")
	v.SetDefault("search.brave_api_key", "")
	v.SetDefault("llm.groq_api_key", "")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("fetch.user_agent", "deepscout/1.0 (research agent)")
	v.SetDefault("fetch.timeout_seconds", 20)
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.domain_rps", 1.0)
	v.SetDefault("fetch.domain_burst", 1)
	v.SetDefault("fetch.max_chars", 10000)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "data/deepscout")
	v.SetDefault("storage.cache_prefix", "sources")
	v.SetDefault("storage.runs_prefix", "runs")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "runs")
	v.SetDefault("db.max_conns", 0)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Research.Iterations <= 0 {
		return fmt.Errorf("research.iterations must be > 0")
	}
	if c.Research.ResultsPerIteration <= 0 {
		return fmt.Errorf("research.results_per_iteration must be > 0")
	}
	if c.Research.FetchConcurrency <= 0 {
		return fmt.Errorf("research.fetch_concurrency must be > 0")
	}
	if _, err := time.ParseDuration(c.Research.CacheTTL); err != nil {
		return fmt.Errorf("research.cache_ttl is not a duration: %w", err)
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Storage.Backend {
	case "local", "gcs":
	default:
		return fmt.Errorf("storage.backend must be local or gcs, got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
	}
	return nil
}

// RunConfig converts the research section into the per-run knobs the core
// consumes.
func (c Config) RunConfig() research.RunConfig {
	ttl, _ := time.ParseDuration(c.Research.CacheTTL)
	return research.RunConfig{
		Iterations:          c.Research.Iterations,
		ResultsPerIteration: c.Research.ResultsPerIteration,
		FetchConcurrency:    c.Research.FetchConcurrency,
		CacheTTL:            ttl,
		SlugSalt:            c.Research.SlugSalt,
	}.Normalize()
}

// FetchTimeout converts the fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// NavTimeout converts the headless navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
