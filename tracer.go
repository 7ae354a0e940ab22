package relay

import (
	"context"
	"strings"
	"sync/atomic"
)

// --- Trace contract ---

// TraceMetadata carries the caller-supplied identifiers stamped on every
// span and event. The runtime propagates these verbatim; nothing on the
// tracing path mints an identifier.
type TraceMetadata struct {
	TraceID        string `json:"trace_id"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`
}

// SpanHandle identifies an open span to the tracer that produced it.
// Opaque to the runtime; a nil handle is ignored by EndSpan.
type SpanHandle any

// Tracer records spans and events for a turn. The observer package
// provides an OTEL-backed implementation; NoopTracer is the default.
// Implementations should not panic, but the runtime guards every call
// anyway: a faulty tracer can never change a turn's outcome.
type Tracer interface {
	StartSpan(ctx context.Context, name string, meta map[string]any, tm TraceMetadata) SpanHandle
	EndSpan(ctx context.Context, handle SpanHandle, status string, meta map[string]any)
	RecordEvent(ctx context.Context, name string, meta map[string]any, tm TraceMetadata)
	Enabled() bool
}

// Canonical trace event names. Backends key dashboards on these; call
// sites never invent ad-hoc names.
const (
	EventModelCallAttempted     = "model_call_attempted"
	EventModelCallCompleted     = "model_call_completed"
	EventMemoryWriteAttempted   = "memory_write_attempted"
	EventToolCallDetected       = "tool_call_detected"
	EventToolExecutionStarted   = "tool_execution_started"
	EventToolExecutionCompleted = "tool_execution_completed"
	EventToolExecutionFailed    = "tool_execution_failed"
	EventMCPRequestSent         = "mcp_request_sent"
	EventMCPResponseReceived    = "mcp_response_received"
)

type traceMetaKey struct{}

// WithTraceMeta returns a context carrying the turn's trace metadata.
// Tools that emit their own trace events (the MCP bridge) read it back
// with TraceMetaFromContext; tools never see the turn state itself.
func WithTraceMeta(ctx context.Context, tm TraceMetadata) context.Context {
	return context.WithValue(ctx, traceMetaKey{}, tm)
}

// TraceMetaFromContext returns the trace metadata carried on ctx, if any.
func TraceMetaFromContext(ctx context.Context) (TraceMetadata, bool) {
	tm, ok := ctx.Value(traceMetaKey{}).(TraceMetadata)
	return tm, ok
}

// NoopTracer drops everything. Used when no tracer is configured.
type NoopTracer struct{}

func (NoopTracer) StartSpan(context.Context, string, map[string]any, TraceMetadata) SpanHandle {
	return nil
}
func (NoopTracer) EndSpan(context.Context, SpanHandle, string, map[string]any)     {}
func (NoopTracer) RecordEvent(context.Context, string, map[string]any, TraceMetadata) {}
func (NoopTracer) Enabled() bool                                                   { return false }

// compile-time check
var _ Tracer = NoopTracer{}

// --- Metadata deny list ---

// deniedMetadataExact lists metadata keys that must never leave the
// process through a tracing backend: raw conversational content and
// credential material. Backends drop these keys and bump the
// DeniedMetadataKeys alarm.
var deniedMetadataExact = map[string]bool{
	"prompt":             true,
	"system_prompt":      true,
	"raw_input":          true,
	"output":             true,
	"final_output":       true,
	"formatted_response": true,
	"memory_context":     true,
	"tool_context":       true,
}

var deniedMetadataSubstrings = []string{"api_key", "apikey", "secret", "token", "password", "credential", "authorization"}

// DeniedMetadataKey reports whether a metadata key may not be exported.
func DeniedMetadataKey(key string) bool {
	k := strings.ToLower(key)
	if deniedMetadataExact[k] {
		return true
	}
	for _, sub := range deniedMetadataSubstrings {
		if strings.Contains(k, sub) {
			return true
		}
	}
	return false
}

// --- Invariant alarms ---

// InvariantAlarms counts conditions that indicate a broken integration
// rather than a failed turn: panicking tracers, emissions without a trace
// id, metadata dropped by the deny list. Counters are atomic; recording
// never blocks and never fails.
type InvariantAlarms struct {
	TracerPanics       atomic.Int64
	BlankTraceIDs      atomic.Int64
	DeniedMetadataKeys atomic.Int64
}

// Snapshot returns the current counter values.
func (a *InvariantAlarms) Snapshot() map[string]int64 {
	if a == nil {
		return nil
	}
	return map[string]int64{
		"tracer_panics":        a.TracerPanics.Load(),
		"blank_trace_ids":      a.BlankTraceIDs.Load(),
		"denied_metadata_keys": a.DeniedMetadataKeys.Load(),
	}
}

// --- Guarded emission ---

// The helpers below are the only way the runtime talks to a tracer. Each
// one recovers panics and records them on the alarms, so tracing faults
// stay invisible to the turn.

func traceEnabled(tr Tracer, alarms *InvariantAlarms) (on bool) {
	if tr == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			alarmTracerPanic(alarms)
			on = false
		}
	}()
	return tr.Enabled()
}

func beginSpan(ctx context.Context, tr Tracer, alarms *InvariantAlarms, name string, meta map[string]any, tm TraceMetadata) (h SpanHandle) {
	if !traceEnabled(tr, alarms) {
		return nil
	}
	if tm.TraceID == "" && alarms != nil {
		alarms.BlankTraceIDs.Add(1)
	}
	defer func() {
		if r := recover(); r != nil {
			alarmTracerPanic(alarms)
			h = nil
		}
	}()
	return tr.StartSpan(ctx, name, meta, tm)
}

func finishSpan(ctx context.Context, tr Tracer, alarms *InvariantAlarms, h SpanHandle, status string, meta map[string]any) {
	if h == nil || tr == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			alarmTracerPanic(alarms)
		}
	}()
	tr.EndSpan(ctx, h, status, meta)
}

func emitEvent(ctx context.Context, tr Tracer, alarms *InvariantAlarms, name string, meta map[string]any, tm TraceMetadata) {
	if !traceEnabled(tr, alarms) {
		return
	}
	if tm.TraceID == "" && alarms != nil {
		alarms.BlankTraceIDs.Add(1)
	}
	defer func() {
		if r := recover(); r != nil {
			alarmTracerPanic(alarms)
		}
	}()
	tr.RecordEvent(ctx, name, meta, tm)
}

func alarmTracerPanic(alarms *InvariantAlarms) {
	if alarms != nil {
		alarms.TracerPanics.Add(1)
	}
}
