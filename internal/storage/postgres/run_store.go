// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deepscout/deepscout/internal/research"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RunStoreConfig controls the Postgres connection pool used for run rows.
type RunStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RunStore mirrors terminal run metadata into Postgres. The run directory
// stays the source of truth; rows here exist for querying across runs.
type RunStore struct {
	pool  execCloser
	table string
}

// NewRunStore creates a Postgres-backed RunStore using the provided config.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: pool, table: table}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for
// testing).
func NewRunStoreWithPool(pool execCloser, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

var _ research.RunRecorder = (*RunStore)(nil)

// RecordRun upserts one run metadata row. Re-recording the same run id
// refreshes the mutable columns so retried mirrors stay idempotent.
func (s *RunStore) RecordRun(ctx context.Context, meta research.RunMetadata) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("run store is not configured")
	}
	if meta.RunID == "" {
		return fmt.Errorf("run id is required")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	run_uuid,
	question,
	created_at,
	status,
	iteration_count,
	source_count,
	duration_ms,
	error_text
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (run_id) DO UPDATE SET
	status = EXCLUDED.status,
	iteration_count = EXCLUDED.iteration_count,
	source_count = EXCLUDED.source_count,
	duration_ms = EXCLUDED.duration_ms,
	error_text = EXCLUDED.error_text
`, s.table)

	_, err := s.pool.Exec(ctx, query,
		meta.RunID,
		meta.RunUUID,
		meta.Question,
		meta.CreatedAt,
		string(meta.Status),
		meta.IterationCount,
		meta.SourceCount,
		meta.Duration.Milliseconds(),
		meta.ErrorText,
	)
	if err != nil {
		return fmt.Errorf("insert run row: %w", err)
	}
	return nil
}
