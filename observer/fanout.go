package observer

import (
	"context"

	"github.com/nevindra/relay"
)

// Fanout tees every span and event to several tracers, typically an OTEL
// Tracer plus a Recorder. A backend that panics only loses its own copy;
// the runtime's guards around the Fanout as a whole still apply.
type Fanout struct {
	tracers []relay.Tracer
}

// NewFanout combines tracers. Nil entries are skipped.
func NewFanout(tracers ...relay.Tracer) *Fanout {
	f := &Fanout{}
	for _, t := range tracers {
		if t != nil {
			f.tracers = append(f.tracers, t)
		}
	}
	return f
}

// Enabled reports whether any backend is enabled.
func (f *Fanout) Enabled() bool {
	for _, t := range f.tracers {
		if t.Enabled() {
			return true
		}
	}
	return false
}

func (f *Fanout) StartSpan(ctx context.Context, name string, meta map[string]any, tm relay.TraceMetadata) relay.SpanHandle {
	handles := make([]relay.SpanHandle, len(f.tracers))
	for i, t := range f.tracers {
		handles[i] = f.start(ctx, t, name, meta, tm)
	}
	return handles
}

func (f *Fanout) EndSpan(ctx context.Context, handle relay.SpanHandle, status string, meta map[string]any) {
	handles, ok := handle.([]relay.SpanHandle)
	if !ok {
		return
	}
	for i, t := range f.tracers {
		if i < len(handles) && handles[i] != nil {
			f.end(ctx, t, handles[i], status, meta)
		}
	}
}

func (f *Fanout) RecordEvent(ctx context.Context, name string, meta map[string]any, tm relay.TraceMetadata) {
	for _, t := range f.tracers {
		f.event(ctx, t, name, meta, tm)
	}
}

func (f *Fanout) start(ctx context.Context, t relay.Tracer, name string, meta map[string]any, tm relay.TraceMetadata) (h relay.SpanHandle) {
	defer func() { _ = recover() }()
	return t.StartSpan(ctx, name, meta, tm)
}

func (f *Fanout) end(ctx context.Context, t relay.Tracer, h relay.SpanHandle, status string, meta map[string]any) {
	defer func() { _ = recover() }()
	t.EndSpan(ctx, h, status, meta)
}

func (f *Fanout) event(ctx context.Context, t relay.Tracer, name string, meta map[string]any, tm relay.TraceMetadata) {
	defer func() { _ = recover() }()
	t.RecordEvent(ctx, name, meta, tm)
}

// compile-time check
var _ relay.Tracer = (*Fanout)(nil)
