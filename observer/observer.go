// Package observer provides OTEL-based tracing backends for relay.
//
// NewTracer returns a relay.Tracer that maps spans and events onto
// OpenTelemetry, enforcing the metadata deny-list on every attribute.
// Init wires an OTLP HTTP exporter configured through the standard OTEL
// env vars. Recorder is an in-process bounded trace store for tests and
// inspection; Fanout tees one trace stream to several backends.
package observer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nevindra/relay"
)

const scopeName = "github.com/nevindra/relay/observer"

// Tracer implements relay.Tracer on OpenTelemetry. The caller-supplied
// trace metadata travels as span attributes; OTEL's own span identity is
// an export-layer detail the runtime never sees, so the contract that the
// core only observes caller-supplied identifiers holds.
type Tracer struct {
	inner  trace.Tracer
	alarms *relay.InvariantAlarms
}

// NewTracer returns a Tracer backed by the global OTEL TracerProvider.
// Call Init first to configure the provider; otherwise spans go to a
// no-op backend. The alarms may be nil; pass the runtime's so deny-list
// drops are counted in one place.
func NewTracer(alarms *relay.InvariantAlarms) *Tracer {
	return &Tracer{inner: otel.Tracer(scopeName), alarms: alarms}
}

func (t *Tracer) Enabled() bool { return true }

// StartSpan opens an OTEL span stamped with the trace metadata and the
// filtered caller metadata. The returned handle is the span itself.
func (t *Tracer) StartSpan(ctx context.Context, name string, meta map[string]any, tm relay.TraceMetadata) relay.SpanHandle {
	attrs := t.metaAttrs(tm)
	attrs = t.appendFiltered(attrs, meta)
	_, span := t.inner.Start(ctx, name, trace.WithAttributes(attrs...))
	return span
}

// EndSpan records the status and any final metadata, then closes the span.
func (t *Tracer) EndSpan(_ context.Context, handle relay.SpanHandle, status string, meta map[string]any) {
	span, ok := handle.(trace.Span)
	if !ok || span == nil {
		return
	}
	span.SetAttributes(t.appendFiltered(nil, meta)...)
	if status != "" && status != "ok" {
		span.SetStatus(codes.Error, status)
	}
	span.End()
}

// RecordEvent emits a zero-duration span carrying the event name and
// filtered metadata. Events are emitted outside any OTEL span context, so
// a dedicated span keeps them queryable by name on the backend.
func (t *Tracer) RecordEvent(ctx context.Context, name string, meta map[string]any, tm relay.TraceMetadata) {
	attrs := t.metaAttrs(tm)
	attrs = t.appendFiltered(attrs, meta)
	_, span := t.inner.Start(ctx, name, trace.WithAttributes(attrs...))
	span.End()
}

func (t *Tracer) metaAttrs(tm relay.TraceMetadata) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("relay.trace_id", tm.TraceID),
		attribute.String("relay.conversation_id", tm.ConversationID),
	}
	if tm.UserID != "" {
		attrs = append(attrs, attribute.String("relay.user_id", tm.UserID))
	}
	return attrs
}

// appendFiltered converts metadata to OTEL attributes, dropping keys the
// deny-list forbids and bumping the alarm for each drop.
func (t *Tracer) appendFiltered(attrs []attribute.KeyValue, meta map[string]any) []attribute.KeyValue {
	for k, v := range meta {
		if relay.DeniedMetadataKey(k) {
			if t.alarms != nil {
				t.alarms.DeniedMetadataKeys.Add(1)
			}
			continue
		}
		attrs = append(attrs, toAttr(k, v))
	}
	return attrs
}

// toAttr converts a metadata value to an OTEL attribute.KeyValue.
func toAttr(key string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	case bool:
		return attribute.Bool(key, val)
	default:
		return attribute.String(key, fmt.Sprintf("%v", val))
	}
}

// compile-time check
var _ relay.Tracer = (*Tracer)(nil)
