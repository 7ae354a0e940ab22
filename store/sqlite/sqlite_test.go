package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/nevindra/relay"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	data := map[string]any{"fact": "likes tea", "recorded_at": float64(1700000000)}
	if res := s.Write(ctx, "conv-1", "facts", data, true); res.Status != relay.WriteSuccess {
		t.Fatalf("Write status = %q, err = %q", res.Status, res.Err)
	}

	res := s.Read(ctx, "conv-1", "facts", true)
	if res.Status != relay.ReadSuccess {
		t.Fatalf("Read status = %q, err = %q", res.Status, res.Err)
	}
	if !reflect.DeepEqual(res.Data, data) {
		t.Errorf("Read data = %#v, want %#v", res.Data, data)
	}
}

func TestWriteUpserts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Write(ctx, "conv-1", "facts", map[string]any{"fact": "first"}, true)
	s.Write(ctx, "conv-1", "facts", map[string]any{"fact": "second"}, true)

	res := s.Read(ctx, "conv-1", "facts", true)
	if res.Status != relay.ReadSuccess {
		t.Fatalf("Read status = %q", res.Status)
	}
	if res.Data["fact"] != "second" {
		t.Errorf("fact = %v, want second (last writer wins)", res.Data["fact"])
	}
}

func TestReadMiss(t *testing.T) {
	s := testStore(t)
	res := s.Read(context.Background(), "conv-1", "facts", true)
	if res.Status != relay.ReadNotFound {
		t.Errorf("Read status = %q, want not_found", res.Status)
	}
	if res.Data != nil {
		t.Errorf("Read data = %#v, want nil", res.Data)
	}
}

func TestUnauthorizedNeverTouchesStore(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if res := s.Write(ctx, "conv-1", "facts", map[string]any{"fact": "x"}, false); res.Status != relay.WriteUnauthorized {
		t.Errorf("Write status = %q, want unauthorized", res.Status)
	}
	if res := s.Read(ctx, "conv-1", "facts", false); res.Status != relay.ReadUnauthorized {
		t.Errorf("Read status = %q, want unauthorized", res.Status)
	}
	// The unauthorized write must not have persisted anything.
	if res := s.Read(ctx, "conv-1", "facts", true); res.Status != relay.ReadNotFound {
		t.Errorf("authorized Read after denied write = %q, want not_found", res.Status)
	}
}

func TestUnserializableWriteFails(t *testing.T) {
	s := testStore(t)
	res := s.Write(context.Background(), "conv-1", "facts", map[string]any{"ch": make(chan int)}, true)
	if res.Status != relay.WriteFailed {
		t.Errorf("Write status = %q, want failed", res.Status)
	}
	if res.Err == "" {
		t.Error("expected a descriptive error string")
	}
}

func TestConversationsAreIsolated(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Write(ctx, "conv-a", "facts", map[string]any{"fact": "a"}, true)
	s.Write(ctx, "conv-b", "facts", map[string]any{"fact": "b"}, true)

	if res := s.Read(ctx, "conv-a", "facts", true); res.Data["fact"] != "a" {
		t.Errorf("conv-a fact = %v, want a", res.Data["fact"])
	}
	if res := s.Read(ctx, "conv-b", "facts", true); res.Data["fact"] != "b" {
		t.Errorf("conv-b fact = %v, want b", res.Data["fact"])
	}
}
