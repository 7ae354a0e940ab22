package observer

import (
	"context"
	"sync"
	"time"

	"github.com/nevindra/relay"
)

// EntryKind distinguishes recorded spans from events.
type EntryKind string

const (
	KindSpan  EntryKind = "span"
	KindEvent EntryKind = "event"
)

// Entry is one recorded span or event.
type Entry struct {
	Kind       EntryKind
	Name       string
	Status     string
	Meta       map[string]any
	TraceMeta  relay.TraceMetadata
	At         time.Time
	DurationMS int64
}

// Recorder is an in-process relay.Tracer that keeps the most recent
// entries in a bounded ring. It is the inspection store for tests and
// local debugging; pair it with an OTEL Tracer through Fanout when both
// are wanted. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	alarms  *relay.InvariantAlarms
}

// NewRecorder creates a Recorder keeping at most max entries. A max of
// zero or less records nothing.
func NewRecorder(max int, alarms *relay.InvariantAlarms) *Recorder {
	if max < 0 {
		max = 0
	}
	return &Recorder{entries: make([]Entry, max), alarms: alarms}
}

func (r *Recorder) Enabled() bool { return len(r.entries) > 0 }

type openSpan struct {
	name    string
	meta    map[string]any
	tm      relay.TraceMetadata
	started time.Time
}

// StartSpan returns a handle; the span is recorded when EndSpan closes it.
func (r *Recorder) StartSpan(_ context.Context, name string, meta map[string]any, tm relay.TraceMetadata) relay.SpanHandle {
	return &openSpan{name: name, meta: r.filter(meta), tm: tm, started: time.Now()}
}

func (r *Recorder) EndSpan(_ context.Context, handle relay.SpanHandle, status string, meta map[string]any) {
	s, ok := handle.(*openSpan)
	if !ok || s == nil {
		return
	}
	merged := s.meta
	for k, v := range r.filter(meta) {
		if merged == nil {
			merged = map[string]any{}
		}
		merged[k] = v
	}
	r.record(Entry{
		Kind:       KindSpan,
		Name:       s.name,
		Status:     status,
		Meta:       merged,
		TraceMeta:  s.tm,
		At:         s.started,
		DurationMS: time.Since(s.started).Milliseconds(),
	})
}

func (r *Recorder) RecordEvent(_ context.Context, name string, meta map[string]any, tm relay.TraceMetadata) {
	r.record(Entry{
		Kind:      KindEvent,
		Name:      name,
		Meta:      r.filter(meta),
		TraceMeta: tm,
		At:        time.Now(),
	})
}

func (r *Recorder) record(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return
	}
	r.entries[r.next] = e
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

// filter applies the metadata deny-list, copying the map so recorded
// entries never alias caller state.
func (r *Recorder) filter(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if relay.DeniedMetadataKey(k) {
			if r.alarms != nil {
				r.alarms.DeniedMetadataKeys.Add(1)
			}
			continue
		}
		out[k] = v
	}
	return out
}

// Snapshot returns the recorded entries, oldest first.
func (r *Recorder) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]Entry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}

// EventNames returns the names of recorded events, oldest first.
func (r *Recorder) EventNames() []string {
	var names []string
	for _, e := range r.Snapshot() {
		if e.Kind == KindEvent {
			names = append(names, e.Name)
		}
	}
	return names
}

// compile-time check
var _ relay.Tracer = (*Recorder)(nil)
