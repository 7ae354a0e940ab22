package relay

import (
	"context"
	"sync"
)

// scriptedBackend pops one canned response per Generate call and records
// every request it sees. Once the script runs out it reports an error
// status, the way a dead upstream would.
type scriptedBackend struct {
	mu        sync.Mutex
	responses []ModelResponse
	requests  []ModelRequest
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Generate(_ context.Context, req ModelRequest) ModelResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if len(b.responses) == 0 {
		return ModelResponse{Status: ModelStatusError, Metadata: map[string]any{"error": "script exhausted"}}
	}
	resp := b.responses[0]
	b.responses = b.responses[1:]
	return resp
}

func (b *scriptedBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func (b *scriptedBackend) request(i int) ModelRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[i]
}

func textResponse(s string) ModelResponse {
	return ModelResponse{Output: s, Status: ModelStatusSuccess}
}

// panicBackend panics on every call.
type panicBackend struct{}

func (panicBackend) Name() string { return "panic" }
func (panicBackend) Generate(context.Context, ModelRequest) ModelResponse {
	panic("backend exploded")
}

// recordingTracer captures span names, event names, and the metadata they
// carried.
type recordingTracer struct {
	mu     sync.Mutex
	spans  []string
	events []string
	metas  []TraceMetadata
}

func (t *recordingTracer) Enabled() bool { return true }

func (t *recordingTracer) StartSpan(_ context.Context, name string, _ map[string]any, tm TraceMetadata) SpanHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = append(t.spans, name)
	t.metas = append(t.metas, tm)
	return name
}

func (t *recordingTracer) EndSpan(context.Context, SpanHandle, string, map[string]any) {}

func (t *recordingTracer) RecordEvent(_ context.Context, name string, _ map[string]any, tm TraceMetadata) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, name)
	t.metas = append(t.metas, tm)
}

func (t *recordingTracer) sawSpan(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.spans {
		if s == name {
			return true
		}
	}
	return false
}

func (t *recordingTracer) sawEvent(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.events {
		if e == name {
			return true
		}
	}
	return false
}

// panickingTracer panics on every method, Enabled included.
type panickingTracer struct{}

func (panickingTracer) Enabled() bool { panic("tracer enabled") }
func (panickingTracer) StartSpan(context.Context, string, map[string]any, TraceMetadata) SpanHandle {
	panic("tracer start")
}
func (panickingTracer) EndSpan(context.Context, SpanHandle, string, map[string]any) {
	panic("tracer end")
}
func (panickingTracer) RecordEvent(context.Context, string, map[string]any, TraceMetadata) {
	panic("tracer event")
}

// panickingStore panics on both boundary calls.
type panickingStore struct{}

func (panickingStore) Read(context.Context, string, string, bool) ReadResult {
	panic("store read")
}
func (panickingStore) Write(context.Context, string, string, map[string]any, bool) WriteResult {
	panic("store write")
}

// failingStore reports unavailable reads and failed writes.
type failingStore struct{}

func (failingStore) Read(_ context.Context, _, _ string, authorized bool) ReadResult {
	if !authorized {
		return ReadResult{Status: ReadUnauthorized}
	}
	return ReadResult{Status: ReadUnavailable, Err: "down"}
}

func (failingStore) Write(_ context.Context, _, _ string, _ map[string]any, authorized bool) WriteResult {
	if !authorized {
		return WriteResult{Status: WriteUnauthorized}
	}
	return WriteResult{Status: WriteFailed, Err: "down"}
}

// countingStore wraps a MemoryStore and counts boundary calls.
type countingStore struct {
	inner  MemoryStore
	mu     sync.Mutex
	reads  int
	writes int
}

func (s *countingStore) Read(ctx context.Context, conversationID, key string, authorized bool) ReadResult {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return s.inner.Read(ctx, conversationID, key, authorized)
}

func (s *countingStore) Write(ctx context.Context, conversationID, key string, data map[string]any, authorized bool) WriteResult {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return s.inner.Write(ctx, conversationID, key, data, authorized)
}

func (s *countingStore) counts() (reads, writes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.writes
}

// countingTool succeeds with canned results and counts executions.
type countingTool struct {
	name string
	data map[string]any
	mu   sync.Mutex
	runs int
}

func (t *countingTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        t.name,
		Description: "test tool",
		InputSchema: InputSchema{
			Type:       "object",
			Properties: map[string]Property{"q": {Type: "string"}},
		},
	}
}

func (t *countingTool) Execute(context.Context, map[string]any) ToolResult {
	t.mu.Lock()
	t.runs++
	t.mu.Unlock()
	return ToolResult{Success: true, Data: t.data}
}

func (t *countingTool) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}
