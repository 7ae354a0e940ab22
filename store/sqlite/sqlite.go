// Package sqlite implements relay.MemoryStore over a local SQLite file
// using the pure-Go driver. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/nevindra/relay"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Option configures a SQLite Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements relay.MemoryStore backed by a local SQLite file.
// One row per (conversation_id, key); writes upsert. Every failure mode
// of the underlying database comes back as a boundary status, never as
// an error or a panic.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ relay.MemoryStore = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...Option) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the turn_memory table.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS turn_memory (
		conversation_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (conversation_id, key)
	)`)
	if err != nil {
		s.logger.Error("sqlite: init failed", "error", err, "duration", time.Since(start))
		return err
	}
	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Read returns the stored value for (conversationID, key).
func (s *Store) Read(ctx context.Context, conversationID, key string, authorized bool) relay.ReadResult {
	if !authorized {
		return relay.ReadResult{Status: relay.ReadUnauthorized}
	}
	start := time.Now()

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM turn_memory WHERE conversation_id = ? AND key = ?`,
		conversationID, key).Scan(&raw)
	if err == sql.ErrNoRows {
		s.logger.Debug("sqlite: read miss", "key", key, "duration", time.Since(start))
		return relay.ReadResult{Status: relay.ReadNotFound}
	}
	if err != nil {
		s.logger.Error("sqlite: read failed", "key", key, "error", err, "duration", time.Since(start))
		return relay.ReadResult{Status: relay.ReadUnavailable, Err: err.Error()}
	}

	data, err := relay.UnmarshalMemoryValue([]byte(raw))
	if err != nil {
		s.logger.Error("sqlite: read corrupt value", "key", key, "error", err)
		return relay.ReadResult{Status: relay.ReadUnavailable, Err: err.Error()}
	}
	s.logger.Debug("sqlite: read ok", "key", key, "duration", time.Since(start))
	return relay.ReadResult{Status: relay.ReadSuccess, Data: data}
}

// Write upserts the value for (conversationID, key). Last writer wins.
func (s *Store) Write(ctx context.Context, conversationID, key string, data map[string]any, authorized bool) relay.WriteResult {
	if !authorized {
		return relay.WriteResult{Status: relay.WriteUnauthorized}
	}
	start := time.Now()

	raw, err := relay.MarshalMemoryValue(data)
	if err != nil {
		s.logger.Error("sqlite: write unserializable", "key", key, "error", err)
		return relay.WriteResult{Status: relay.WriteFailed, Err: fmt.Sprintf("serialize value: %v", err)}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turn_memory (conversation_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(conversation_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		conversationID, key, string(raw), relay.NowUnix())
	if err != nil {
		s.logger.Error("sqlite: write failed", "key", key, "error", err, "duration", time.Since(start))
		return relay.WriteResult{Status: relay.WriteFailed, Err: err.Error()}
	}
	s.logger.Debug("sqlite: write ok", "key", key, "bytes", len(raw), "duration", time.Since(start))
	return relay.WriteResult{Status: relay.WriteSuccess}
}
