// Package cache implements the shared content-addressed store of extracted
// documents. Entries are keyed by a stable hash of the normalized URL and are
// shared across runs; the cache never performs fetches itself.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/deepscout/deepscout/internal/research"
	"github.com/deepscout/deepscout/internal/storage"
)

const (
	contentSuffix  = ".md"
	metadataSuffix = ".json"
)

// Store persists CachedSource entries through a BlobStore. Each entry is a
// content blob plus a sidecar metadata document; a readable metadata record
// with a readable content blob is the only thing that counts as a hit.
type Store struct {
	blobs  storage.BlobStore
	hasher research.Hasher
	clock  research.Clock
	prefix string
	logger *zap.Logger
}

// New constructs a Store. prefix scopes entries within the blob store, e.g.
// "sources".
func New(blobs storage.BlobStore, hasher research.Hasher, clock research.Clock, prefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "sources"
	}
	return &Store{
		blobs:  blobs,
		hasher: hasher,
		clock:  clock,
		prefix: prefix,
		logger: logger,
	}
}

// Get returns the cached entry for url. Corrupted or partially written
// entries are reported as a miss so callers fall through to a re-fetch.
func (s *Store) Get(ctx context.Context, url string) (research.CachedSource, bool) {
	hash := s.hasher.Hash(url)
	src, err := s.load(ctx, hash)
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn("treating unreadable cache entry as miss",
				zap.String("url", url),
				zap.String("url_hash", hash),
				zap.Error(err),
			)
		}
		return research.CachedSource{}, false
	}
	return src, true
}

// Put writes a fresh entry for url, replacing any prior entry for the same
// hash. The content blob lands before the metadata record so a crash in
// between leaves a miss, never a dangling hit.
func (s *Store) Put(ctx context.Context, url, content, method string) (research.CachedSource, error) {
	hash := s.hasher.Hash(url)
	src := research.CachedSource{
		URL:       url,
		URLHash:   hash,
		Content:   content,
		Method:    method,
		FetchedAt: s.clock.Now(),
	}

	if _, err := s.blobs.PutObject(ctx, s.contentPath(hash), "text/markdown; charset=utf-8", []byte(content)); err != nil {
		return research.CachedSource{}, fmt.Errorf("put cache content: %w", err)
	}
	meta, err := json.Marshal(src)
	if err != nil {
		return research.CachedSource{}, fmt.Errorf("marshal cache metadata: %w", err)
	}
	if _, err := s.blobs.PutObject(ctx, s.metadataPath(hash), "application/json", meta); err != nil {
		return research.CachedSource{}, fmt.Errorf("put cache metadata: %w", err)
	}
	return src, nil
}

// IsStale reports whether the entry's age exceeds ttl. Staleness is evaluated
// at read time and never stored.
func (s *Store) IsStale(src research.CachedSource, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return s.clock.Now().Sub(src.FetchedAt) > ttl
}

func (s *Store) load(ctx context.Context, hash string) (research.CachedSource, error) {
	metaBytes, err := s.blobs.GetObject(ctx, s.metadataPath(hash))
	if err != nil {
		return research.CachedSource{}, err
	}
	var src research.CachedSource
	if err := json.Unmarshal(metaBytes, &src); err != nil {
		return research.CachedSource{}, fmt.Errorf("%w: %v", research.ErrCacheCorrupted, err)
	}
	if src.URLHash != hash || src.FetchedAt.IsZero() {
		return research.CachedSource{}, fmt.Errorf("%w: metadata fields inconsistent", research.ErrCacheCorrupted)
	}
	content, err := s.blobs.GetObject(ctx, s.contentPath(hash))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return research.CachedSource{}, fmt.Errorf("%w: metadata without content", research.ErrCacheCorrupted)
		}
		return research.CachedSource{}, err
	}
	src.Content = string(content)
	return src, nil
}

func (s *Store) contentPath(hash string) string {
	return s.prefix + "/" + hash + contentSuffix
}

func (s *Store) metadataPath(hash string) string {
	return s.prefix + "/" + hash + metadataSuffix
}
