package relay

import (
	"context"
	"testing"
)

func TestMemStoreRoundTrip(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	w := s.Write(ctx, "c1", TurnMemoryKey, map[string]any{"fact": "likes tea"}, true)
	if w.Status != WriteSuccess {
		t.Fatalf("write status = %q", w.Status)
	}

	r := s.Read(ctx, "c1", TurnMemoryKey, true)
	if r.Status != ReadSuccess {
		t.Fatalf("read status = %q", r.Status)
	}
	if r.Data["fact"] != "likes tea" {
		t.Errorf("data = %v", r.Data)
	}
}

func TestMemStoreUpsert(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	s.Write(ctx, "c1", TurnMemoryKey, map[string]any{"fact": "old"}, true)
	s.Write(ctx, "c1", TurnMemoryKey, map[string]any{"fact": "new"}, true)

	if s.Len() != 1 {
		t.Errorf("upsert created a second row: %d", s.Len())
	}
	r := s.Read(ctx, "c1", TurnMemoryKey, true)
	if r.Data["fact"] != "new" {
		t.Errorf("latest write not returned: %v", r.Data)
	}
}

func TestMemStoreMiss(t *testing.T) {
	r := NewMemStore().Read(context.Background(), "c1", TurnMemoryKey, true)
	if r.Status != ReadNotFound {
		t.Errorf("status = %q, want not_found", r.Status)
	}
	if r.Data != nil {
		t.Errorf("miss carried data: %v", r.Data)
	}
}

func TestMemStoreUnauthorizedNeverTouchesRows(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if w := s.Write(ctx, "c1", TurnMemoryKey, map[string]any{"fact": "x"}, false); w.Status != WriteUnauthorized {
		t.Errorf("write status = %q", w.Status)
	}
	if s.Len() != 0 {
		t.Error("unauthorized write reached the store")
	}
	if r := s.Read(ctx, "c1", TurnMemoryKey, false); r.Status != ReadUnauthorized {
		t.Errorf("read status = %q", r.Status)
	}
}

func TestMemStoreUnserializableValueFailsWrite(t *testing.T) {
	s := NewMemStore()
	w := s.Write(context.Background(), "c1", TurnMemoryKey, map[string]any{"ch": make(chan int)}, true)
	if w.Status != WriteFailed {
		t.Errorf("status = %q, want failed", w.Status)
	}
	if w.Err == "" {
		t.Error("failure detail missing")
	}
	if s.Len() != 0 {
		t.Error("failed write left a row behind")
	}
}

func TestMemStoreConversationIsolation(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	s.Write(ctx, "c1", TurnMemoryKey, map[string]any{"fact": "one"}, true)

	if r := s.Read(ctx, "c2", TurnMemoryKey, true); r.Status != ReadNotFound {
		t.Errorf("cross-conversation read: %+v", r)
	}
}

func TestDisabledStore(t *testing.T) {
	s := DisabledStore{}
	ctx := context.Background()

	if r := s.Read(ctx, "c1", TurnMemoryKey, true); r.Status != ReadUnavailable {
		t.Errorf("read status = %q, want unavailable", r.Status)
	}
	if r := s.Read(ctx, "c1", TurnMemoryKey, false); r.Status != ReadUnauthorized {
		t.Errorf("unauthorized read status = %q", r.Status)
	}
	if w := s.Write(ctx, "c1", TurnMemoryKey, nil, true); w.Status != WriteFailed {
		t.Errorf("write status = %q, want failed", w.Status)
	}
	if w := s.Write(ctx, "c1", TurnMemoryKey, nil, false); w.Status != WriteUnauthorized {
		t.Errorf("unauthorized write status = %q", w.Status)
	}
}

func TestMemoryValueRoundTrip(t *testing.T) {
	raw, err := MarshalMemoryValue(map[string]any{"fact": "x", "n": float64(3)})
	if err != nil {
		t.Fatal(err)
	}
	data, err := UnmarshalMemoryValue(raw)
	if err != nil {
		t.Fatal(err)
	}
	if data["fact"] != "x" || data["n"] != float64(3) {
		t.Errorf("round trip changed data: %v", data)
	}
}
