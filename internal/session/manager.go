// Package session implements durable research run sessions. Every run owns a
// named directory of artifacts under the runs prefix of a blob store; the
// metadata record is rewritten after each state transition so a crash leaves
// an inspectable, consistent trail.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/deepscout/deepscout/internal/prompts"
	"github.com/deepscout/deepscout/internal/research"
	"github.com/deepscout/deepscout/internal/storage"
)

const defaultPrefix = "runs"

// ManagerConfig wires the session factory.
type ManagerConfig struct {
	// Prefix is the blob path under which run directories live (default "runs").
	Prefix string
	// Slugger names runs; nil means the question itself is sanitized into the
	// run id.
	Slugger research.Slugger
	IDs     research.IDGenerator
	Clock   research.Clock
	Logger  *zap.Logger
}

// Manager creates sessions and tracks the ones opened by this process.
type Manager struct {
	blobs   storage.BlobStore
	prefix  string
	slugger research.Slugger
	ids     research.IDGenerator
	clock   research.Clock
	logger  *zap.Logger

	mu   sync.Mutex
	open map[string]*Session
}

// NewManager constructs a Manager over the given blob store.
func NewManager(blobs storage.BlobStore, cfg ManagerConfig) *Manager {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{
		blobs:   blobs,
		prefix:  cfg.Prefix,
		slugger: cfg.Slugger,
		ids:     cfg.IDs,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		open:    make(map[string]*Session),
	}
}

// Create opens a new session for question. The run id starts from a slug of
// the question; on collision with an existing persisted run a numeric suffix
// is appended deterministically until a free name is found.
func (m *Manager) Create(ctx context.Context, question string, cfg research.RunConfig) (*Session, error) {
	base := m.baseSlug(ctx, question, cfg.SlugSalt)

	runID, err := m.claimRunID(ctx, base)
	if err != nil {
		return nil, err
	}

	runUUID := ""
	if m.ids != nil {
		if runUUID, err = m.ids.NewID(); err != nil {
			return nil, fmt.Errorf("generate run uuid: %w", err)
		}
	}

	s := &Session{
		blobs:  m.blobs,
		clock:  m.clock,
		logger: m.logger.With(zap.String("run_id", runID)),
		dir:    m.prefix + "/" + runID,
		cfg:    cfg,
		meta: research.RunMetadata{
			RunID:     runID,
			RunUUID:   runUUID,
			Question:  question,
			CreatedAt: m.clock.Now(),
			Status:    research.RunStatusInitialized,
		},
	}
	if err := s.persistMetadata(ctx); err != nil {
		return nil, fmt.Errorf("persist initial metadata: %w", err)
	}

	m.mu.Lock()
	m.open[runID] = s
	m.mu.Unlock()

	m.logger.Info("run session created",
		zap.String("run_id", runID),
		zap.String("question", question))
	return s, nil
}

// Get returns a session opened by this process, if any.
func (m *Manager) Get(runID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.open[runID]
	return s, ok
}

// List returns metadata for every session opened by this process, sorted by
// creation time, newest first.
func (m *Manager) List() []research.RunMetadata {
	m.mu.Lock()
	metas := make([]research.RunMetadata, 0, len(m.open))
	for _, s := range m.open {
		metas = append(metas, s.Metadata())
	}
	m.mu.Unlock()

	sort.Slice(metas, func(i, j int) bool {
		if metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].RunID < metas[j].RunID
		}
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas
}

// baseSlug derives the run name stem. Slugger failures fall back to the
// question itself; either way the result passes through the sanitizer.
func (m *Manager) baseSlug(ctx context.Context, question, salt string) string {
	raw := question
	if m.slugger != nil {
		if generated, err := m.slugger.Slug(ctx, question); err == nil {
			raw = generated
		} else {
			m.logger.Warn("slug generation failed, naming run after the question", zap.Error(err))
		}
	}
	if salt != "" {
		raw += "_" + salt
	}
	return prompts.SanitizeSlug(raw)
}

// claimRunID probes persisted run directories for base, base_1, base_2 ...
// and returns the first free name.
func (m *Manager) claimRunID(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 0; ; i++ {
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d", base, i)
		}
		_, err := m.blobs.GetObject(ctx, m.prefix+"/"+candidate+"/"+metadataFile)
		if errors.Is(err, storage.ErrObjectNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("probe run directory %s: %w", candidate, err)
		}
	}
}
