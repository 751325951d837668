// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"

	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/deepscout/deepscout/internal/cache"
	"github.com/deepscout/deepscout/internal/clock/system"
	"github.com/deepscout/deepscout/internal/config"
	"github.com/deepscout/deepscout/internal/executor"
	"github.com/deepscout/deepscout/internal/extract"
	"github.com/deepscout/deepscout/internal/fetch"
	"github.com/deepscout/deepscout/internal/id/uuid"
	"github.com/deepscout/deepscout/internal/llm/groq"
	"github.com/deepscout/deepscout/internal/logging"
	"github.com/deepscout/deepscout/internal/orchestrator"
	"github.com/deepscout/deepscout/internal/progress"
	"github.com/deepscout/deepscout/internal/progress/sinks"
	"github.com/deepscout/deepscout/internal/publisher/pubsub"
	"github.com/deepscout/deepscout/internal/research"
	"github.com/deepscout/deepscout/internal/search/brave"
	"github.com/deepscout/deepscout/internal/session"
	"github.com/deepscout/deepscout/internal/storage"
	"github.com/deepscout/deepscout/internal/storage/gcs"
	"github.com/deepscout/deepscout/internal/storage/local"
	"github.com/deepscout/deepscout/internal/storage/postgres"
	"github.com/deepscout/deepscout/internal/urlhash"
)

// App holds the shared, long-lived services for the application. It is built
// once at startup and passed to the commands that need it; everything it
// owns is shut down by Close.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Sessions     *session.Manager
	Orchestrator *orchestrator.Orchestrator
	Hub          *progress.Hub
	Events       *sinks.MemorySink
	Registry     *prometheus.Registry

	renderer  *extract.HeadlessRenderer
	recorder  *postgres.RunStore
	publisher *pubsub.Publisher
	gcsClient *gstorage.Client
}

// New builds the full object graph from cfg. It fails fast: any service that
// is configured but cannot be initialized aborts startup.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}

	blobs, err := a.buildBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	clk := system.New()
	hasher := urlhash.New()

	contentCache := cache.New(blobs, hasher, clk, cfg.Storage.CachePrefix, logger)
	coordinator := fetch.New(contentCache, fetch.Config{
		MaxConcurrent: cfg.Research.FetchConcurrency,
		DomainRPS:     cfg.Fetch.DomainRPS,
		DomainBurst:   cfg.Fetch.DomainBurst,
	}, logger)

	fetcher := extract.NewPageFetcher(extract.FetcherConfig{
		UserAgent:     cfg.Fetch.UserAgent,
		Timeout:       cfg.FetchTimeout(),
		RespectRobots: cfg.Fetch.RespectRobots,
	})
	var renderer extract.Renderer
	if cfg.Headless.Enabled {
		headless, err := extract.NewHeadlessRenderer(extract.HeadlessConfig{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("init headless renderer: %w", err)
		}
		a.renderer = headless
		renderer = headless
		logger.Info("headless rendering enabled", zap.Int("max_parallel", cfg.Headless.MaxParallel))
	}
	chain := extract.NewChain(fetcher, renderer, extract.Config{
		MaxChars: cfg.Fetch.MaxChars,
		Logger:   logger,
	})

	searchClient, err := brave.New(brave.Config{APIKey: cfg.Search.BraveAPIKey, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("init search client: %w", err)
	}
	llm, err := groq.New(groq.Config{
		APIKey:      cfg.LLM.GroqAPIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init llm client: %w", err)
	}

	a.Registry = prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(a.Registry)
	if err != nil {
		return nil, fmt.Errorf("init metrics sink: %w", err)
	}
	a.Events = sinks.NewMemorySink(0)
	a.Hub = progress.NewHub(progress.Config{Logger: logger},
		sinks.NewLogSink(logger),
		promSink,
		a.Events,
	)

	a.Sessions = session.NewManager(blobs, session.ManagerConfig{
		Prefix:  cfg.Storage.RunsPrefix,
		Slugger: llm,
		IDs:     uuid.New(),
		Clock:   clk,
		Logger:  logger,
	})

	runner := executor.New(searchClient, chain, coordinator, llm, clk, a.Hub, logger)

	var recorder research.RunRecorder
	if cfg.DB.DSN != "" {
		store, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init run store: %w", err)
		}
		a.recorder = store
		recorder = store
		logger.Info("postgres run mirror enabled", zap.String("table", cfg.DB.Table))
	}

	var publisher research.Publisher
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		pub, err := pubsub.Connect(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.publisher = pub
		publisher = pub
		logger.Info("pubsub run notifications enabled", zap.String("topic", cfg.PubSub.TopicName))
	}

	a.Orchestrator = orchestrator.New(
		a.Sessions,
		llm,
		runner,
		llm,
		clk,
		a.Hub,
		publisher,
		recorder,
		orchestrator.Config{Topic: cfg.PubSub.TopicName},
		logger,
	)

	return a, nil
}

func (a *App) buildBlobStore(ctx context.Context, cfg config.Config) (storage.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.gcsClient = client
		a.Logger.Info("using gcs storage backend", zap.String("bucket", cfg.Storage.GCSBucket))
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	default:
		a.Logger.Info("using local storage backend", zap.String("base_dir", cfg.Storage.BaseDir))
		return local.New(local.Config{BaseDir: cfg.Storage.BaseDir})
	}
}

// Close flushes the event hub and releases every external client. Errors are
// logged rather than returned; shutdown is best effort.
func (a *App) Close(ctx context.Context) {
	if a.Hub != nil {
		if err := a.Hub.Close(ctx); err != nil {
			a.Logger.Warn("event hub close failed", zap.Error(err))
		}
	}
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.Logger.Warn("pubsub close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.Logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
