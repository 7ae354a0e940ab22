package relay

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewIDIsUUIDv7(t *testing.T) {
	id := NewID()
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("NewID produced unparseable id %q: %v", id, err)
	}
	if parsed.Version() != 7 {
		t.Errorf("version = %d, want 7", parsed.Version())
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNowUnixPositive(t *testing.T) {
	if NowUnix() <= 0 {
		t.Error("NowUnix returned non-positive time")
	}
}
