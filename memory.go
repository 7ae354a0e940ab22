package relay

import (
	"context"
	"encoding/json"
	"sync"
)

// --- Boundary contract ---

// ReadStatus is the outcome class of a memory read.
type ReadStatus string

const (
	ReadSuccess      ReadStatus = "success"
	ReadNotFound     ReadStatus = "not_found"
	ReadUnavailable  ReadStatus = "unavailable"
	ReadUnauthorized ReadStatus = "unauthorized"
)

// WriteStatus is the outcome class of a memory write.
type WriteStatus string

const (
	WriteSuccess      WriteStatus = "success"
	WriteFailed       WriteStatus = "failed"
	WriteUnauthorized WriteStatus = "unauthorized"
)

// ReadResult is the uniform outcome of a memory read.
type ReadResult struct {
	Status ReadStatus     `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
	Err    string         `json:"error,omitempty"`
}

// WriteResult is the uniform outcome of a memory write.
type WriteResult struct {
	Status WriteStatus `json:"status"`
	Err    string      `json:"error,omitempty"`
}

// TurnMemoryKey is the fixed key turn memory reads and writes. Keeping a
// single key per conversation exercises the boundary's upsert law on
// every warranted turn.
const TurnMemoryKey = "facts"

// MemoryStore is the boundary for per-conversation turn memory. Every call
// carries the authorization decided upstream; an unauthorized request must
// return the unauthorized status without touching the backing store.
// Implementations report failure through statuses, never through panics:
// a broken store degrades the turn's memory fields and nothing else.
//
// Write upserts on (conversationID, key). Data must survive a JSON round
// trip; unserializable payloads fail the write.
type MemoryStore interface {
	Read(ctx context.Context, conversationID, key string, authorized bool) ReadResult
	Write(ctx context.Context, conversationID, key string, data map[string]any, authorized bool) WriteResult
}

// MarshalMemoryValue validates and encodes a memory payload for storage.
func MarshalMemoryValue(data map[string]any) ([]byte, error) {
	return json.Marshal(data)
}

// UnmarshalMemoryValue decodes a stored memory payload.
func UnmarshalMemoryValue(b []byte) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// --- In-memory store ---

// MemStore is the map-backed MemoryStore used by tests and local runs.
// Values round-trip through JSON on write so reads return exactly what a
// durable store would. Safe for concurrent use.
type MemStore struct {
	mu   sync.RWMutex
	rows map[string]string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string]string)}
}

func memKey(conversationID, key string) string {
	return conversationID + "\x00" + key
}

// Read returns the stored value for (conversationID, key).
func (s *MemStore) Read(_ context.Context, conversationID, key string, authorized bool) ReadResult {
	if !authorized {
		return ReadResult{Status: ReadUnauthorized}
	}
	s.mu.RLock()
	raw, ok := s.rows[memKey(conversationID, key)]
	s.mu.RUnlock()
	if !ok {
		return ReadResult{Status: ReadNotFound}
	}
	data, err := UnmarshalMemoryValue([]byte(raw))
	if err != nil {
		return ReadResult{Status: ReadUnavailable, Err: err.Error()}
	}
	return ReadResult{Status: ReadSuccess, Data: data}
}

// Write upserts the value for (conversationID, key).
func (s *MemStore) Write(_ context.Context, conversationID, key string, data map[string]any, authorized bool) WriteResult {
	if !authorized {
		return WriteResult{Status: WriteUnauthorized}
	}
	raw, err := MarshalMemoryValue(data)
	if err != nil {
		return WriteResult{Status: WriteFailed, Err: err.Error()}
	}
	s.mu.Lock()
	s.rows[memKey(conversationID, key)] = string(raw)
	s.mu.Unlock()
	return WriteResult{Status: WriteSuccess}
}

// Len returns the number of stored rows.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// compile-time check
var _ MemoryStore = (*MemStore)(nil)

// --- Disabled store ---

// DisabledStore is the MemoryStore used when memory is switched off.
// Reads are unavailable and writes fail; the turn's routing is identical
// to a run with a live store, only the recorded statuses differ.
type DisabledStore struct{}

func (DisabledStore) Read(_ context.Context, _, _ string, authorized bool) ReadResult {
	if !authorized {
		return ReadResult{Status: ReadUnauthorized}
	}
	return ReadResult{Status: ReadUnavailable, Err: "memory disabled"}
}

func (DisabledStore) Write(_ context.Context, _, _ string, _ map[string]any, authorized bool) WriteResult {
	if !authorized {
		return WriteResult{Status: WriteUnauthorized}
	}
	return WriteResult{Status: WriteFailed, Err: "memory disabled"}
}

// compile-time check
var _ MemoryStore = DisabledStore{}

// --- Long-term memory contract ---

// LongTermEntry is one durable cross-conversation memory record.
type LongTermEntry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	CreatedAt int64          `json:"created_at"`
}

// RetrieveResult is the uniform outcome of a long-term memory retrieval.
type RetrieveResult struct {
	Status  ReadStatus      `json:"status"`
	Entries []LongTermEntry `json:"entries,omitempty"`
	Err     string          `json:"error,omitempty"`
}

// LongTermMemory is the contract for durable memory that outlives a
// conversation. Appends are immutable: entries are never updated or
// deleted through this interface, and retrieval selects by user and entry
// type. The same authorization and non-panicking rules as MemoryStore
// apply. No implementation ships in this module; integrations provide one.
type LongTermMemory interface {
	Append(ctx context.Context, entry LongTermEntry, authorized bool) WriteResult
	Retrieve(ctx context.Context, userID, entryType string, limit int, authorized bool) RetrieveResult
}
