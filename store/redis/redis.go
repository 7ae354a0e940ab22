// Package redis implements relay.MemoryStore over a shared Redis
// instance, for deployments where several runtime processes serve the
// same conversation space.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nevindra/relay"
)

// Option configures a Redis Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTTL sets an expiry on written values. Zero (the default) keeps
// values until overwritten.
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// Store implements relay.MemoryStore over a Redis client. Each
// (conversation_id, key) pair maps to one Redis key; SET gives the
// upsert law for free. Connection failures surface as boundary statuses.
type Store struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

var _ relay.MemoryStore = (*Store)(nil)

// New creates a Store using an existing Redis client.
// The caller owns the client and is responsible for closing it.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s
}

func redisKey(conversationID, key string) string {
	return "relay:memory:" + conversationID + ":" + key
}

// Read returns the stored value for (conversationID, key).
func (s *Store) Read(ctx context.Context, conversationID, key string, authorized bool) relay.ReadResult {
	if !authorized {
		return relay.ReadResult{Status: relay.ReadUnauthorized}
	}
	start := time.Now()

	raw, err := s.client.Get(ctx, redisKey(conversationID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		s.logger.Debug("redis: read miss", "key", key, "duration", time.Since(start))
		return relay.ReadResult{Status: relay.ReadNotFound}
	}
	if err != nil {
		s.logger.Error("redis: read failed", "key", key, "error", err, "duration", time.Since(start))
		return relay.ReadResult{Status: relay.ReadUnavailable, Err: err.Error()}
	}

	data, err := relay.UnmarshalMemoryValue(raw)
	if err != nil {
		s.logger.Error("redis: read corrupt value", "key", key, "error", err)
		return relay.ReadResult{Status: relay.ReadUnavailable, Err: err.Error()}
	}
	s.logger.Debug("redis: read ok", "key", key, "duration", time.Since(start))
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
		s.logger.Error("redis: write unserializable", "key", key, "error", err)
		return relay.WriteResult{Status: relay.WriteFailed, Err: fmt.Sprintf("serialize value: %v", err)}
	}

	if err := s.client.Set(ctx, redisKey(conversationID, key), raw, s.ttl).Err(); err != nil {
		s.logger.Error("redis: write failed", "key", key, "error", err, "duration", time.Since(start))
		return relay.WriteResult{Status: relay.WriteFailed, Err: err.Error()}
	}
	s.logger.Debug("redis: write ok", "key", key, "bytes", len(raw), "duration", time.Since(start))
	return relay.WriteResult{Status: relay.WriteSuccess}
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
