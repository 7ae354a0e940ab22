// Package postgres implements relay.MemoryStore backed by PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/relay"
)

// Option configures a Postgres Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements relay.MemoryStore over a pgx connection pool.
// Writes upsert on the (conversation_id, key) primary key, so concurrent
// turns on the same conversation serialize at the row with last-writer-
// wins semantics. Database failures surface as boundary statuses.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ relay.MemoryStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the turn_memory table. Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS turn_memory (
		conversation_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value JSONB NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (conversation_id, key)
	)`)
	if err != nil {
		return fmt.Errorf("postgres: init: %w", err)
	}
	return nil
}

// Read returns the stored value for (conversationID, key).
func (s *Store) Read(ctx context.Context, conversationID, key string, authorized bool) relay.ReadResult {
	if !authorized {
		return relay.ReadResult{Status: relay.ReadUnauthorized}
	}
	start := time.Now()

	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM turn_memory WHERE conversation_id = $1 AND key = $2`,
		conversationID, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		s.logger.Debug("postgres: read miss", "key", key, "duration", time.Since(start))
		return relay.ReadResult{Status: relay.ReadNotFound}
	}
	if err != nil {
		s.logger.Error("postgres: read failed", "key", key, "error", err, "duration", time.Since(start))
		return relay.ReadResult{Status: relay.ReadUnavailable, Err: err.Error()}
	}

	data, err := relay.UnmarshalMemoryValue(raw)
	if err != nil {
		s.logger.Error("postgres: read corrupt value", "key", key, "error", err)
		return relay.ReadResult{Status: relay.ReadUnavailable, Err: err.Error()}
	}
	s.logger.Debug("postgres: read ok", "key", key, "duration", time.Since(start))
	return relay.ReadResult{Status: relay.ReadSuccess, Data: data}
}

// Write upserts the value for (conversationID, key).
func (s *Store) Write(ctx context.Context, conversationID, key string, data map[string]any, authorized bool) relay.WriteResult {
	if !authorized {
		return relay.WriteResult{Status: relay.WriteUnauthorized}
	}
	start := time.Now()

	raw, err := relay.MarshalMemoryValue(data)
	if err != nil {
		s.logger.Error("postgres: write unserializable", "key", key, "error", err)
		return relay.WriteResult{Status: relay.WriteFailed, Err: fmt.Sprintf("serialize value: %v", err)}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO turn_memory (conversation_id, key, value, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (conversation_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		conversationID, key, raw, relay.NowUnix())
	if err != nil {
		s.logger.Error("postgres: write failed", "key", key, "error", err, "duration", time.Since(start))
		return relay.WriteResult{Status: relay.WriteFailed, Err: err.Error()}
	}
	s.logger.Debug("postgres: write ok", "key", key, "bytes", len(raw), "duration", time.Since(start))
	return relay.WriteResult{Status: relay.WriteSuccess}
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
