package observer

import (
	"context"
	"fmt"
	"testing"

	"github.com/nevindra/relay"
)

func TestRecorderSpanAndEvent(t *testing.T) {
	r := NewRecorder(16, nil)
	ctx := context.Background()
	tm := relay.TraceMetadata{TraceID: "t-1", ConversationID: "c-1"}

	h := r.StartSpan(ctx, "model_call_node", map[string]any{"visit": 3}, tm)
	r.EndSpan(ctx, h, "ok", map[string]any{"command": "format"})
	r.RecordEvent(ctx, "model_call_attempted", map[string]any{"backend": "scripted"}, tm)

	entries := r.Snapshot()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	span := entries[0]
	if span.Kind != KindSpan || span.Name != "model_call_node" {
		t.Errorf("span = %+v", span)
	}
	if span.Meta["visit"] != 3 || span.Meta["command"] != "format" {
		t.Errorf("span meta = %#v, want start and end meta merged", span.Meta)
	}
	if span.TraceMeta.TraceID != "t-1" {
		t.Errorf("span trace id = %q", span.TraceMeta.TraceID)
	}
	ev := entries[1]
	if ev.Kind != KindEvent || ev.Name != "model_call_attempted" {
		t.Errorf("event = %+v", ev)
	}
}

func TestRecorderRingWraparound(t *testing.T) {
	r := NewRecorder(3, nil)
	ctx := context.Background()
	tm := relay.TraceMetadata{TraceID: "t-1"}

	for i := 0; i < 5; i++ {
		r.RecordEvent(ctx, fmt.Sprintf("event_%d", i), nil, tm)
	}

	names := r.EventNames()
	want := []string{"event_2", "event_3", "event_4"}
	if len(names) != len(want) {
		t.Fatalf("got %d entries, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRecorderDenyList(t *testing.T) {
	alarms := &relay.InvariantAlarms{}
	r := NewRecorder(8, alarms)
	tm := relay.TraceMetadata{TraceID: "t-1"}

	r.RecordEvent(context.Background(), "model_call_attempted", map[string]any{
		"prompt":      "full raw prompt text",
		"api_key":     "sk-secret",
		"status":      "success",
		"duration_ms": int64(12),
	}, tm)

	entries := r.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	meta := entries[0].Meta
	if _, ok := meta["prompt"]; ok {
		t.Error("prompt should have been dropped by the deny-list")
	}
	if _, ok := meta["api_key"]; ok {
		t.Error("api_key should have been dropped by the deny-list")
	}
	if meta["status"] != "success" {
		t.Errorf("status = %v, want success", meta["status"])
	}
	if got := alarms.DeniedMetadataKeys.Load(); got != 2 {
		t.Errorf("denied key alarm = %d, want 2", got)
	}
}

func TestRecorderZeroCapacity(t *testing.T) {
	r := NewRecorder(0, nil)
	if r.Enabled() {
		t.Error("zero-capacity recorder should report disabled")
	}
	r.RecordEvent(context.Background(), "x", nil, relay.TraceMetadata{})
	if len(r.Snapshot()) != 0 {
		t.Error("zero-capacity recorder should record nothing")
	}
}

func TestFanoutTees(t *testing.T) {
	a := NewRecorder(8, nil)
	b := NewRecorder(8, nil)
	f := NewFanout(a, b, nil)

	ctx := context.Background()
	tm := relay.TraceMetadata{TraceID: "t-1"}
	h := f.StartSpan(ctx, "decision_node", nil, tm)
	f.EndSpan(ctx, h, "ok", nil)
	f.RecordEvent(ctx, "tool_call_detected", nil, tm)

	for name, rec := range map[string]*Recorder{"a": a, "b": b} {
		entries := rec.Snapshot()
		if len(entries) != 2 {
			t.Errorf("%s: got %d entries, want 2", name, len(entries))
		}
	}
}

type panicTracer struct{}

func (panicTracer) Enabled() bool { return true }
func (panicTracer) StartSpan(context.Context, string, map[string]any, relay.TraceMetadata) relay.SpanHandle {
	panic("boom")
}
func (panicTracer) EndSpan(context.Context, relay.SpanHandle, string, map[string]any) {
	panic("boom")
}
func (panicTracer) RecordEvent(context.Context, string, map[string]any, relay.TraceMetadata) {
	panic("boom")
}

func TestFanoutIsolatesPanickingBackend(t *testing.T) {
	rec := NewRecorder(8, nil)
	f := NewFanout(panicTracer{}, rec)

	ctx := context.Background()
	tm := relay.TraceMetadata{TraceID: "t-1"}
	h := f.StartSpan(ctx, "decision_node", nil, tm)
	f.EndSpan(ctx, h, "ok", nil)
	f.RecordEvent(ctx, "tool_call_detected", nil, tm)

	if got := len(rec.Snapshot()); got != 2 {
		t.Errorf("healthy backend got %d entries, want 2", got)
	}
}
