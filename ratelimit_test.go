package relay

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitPassthroughWithoutLimits(t *testing.T) {
	inner := &scriptedBackend{responses: []ModelResponse{textResponse("ok")}}
	b := WithRateLimit(inner)

	resp := b.Generate(context.Background(), ModelRequest{Prompt: "hi"})
	if resp.Status != ModelStatusSuccess || resp.Output != "ok" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if b.Name() != "scripted" {
		t.Errorf("name not forwarded: %q", b.Name())
	}
}

func TestRateLimitAllowsWithinBudget(t *testing.T) {
	inner := &scriptedBackend{responses: []ModelResponse{textResponse("a"), textResponse("b")}}
	b := WithRateLimit(inner, RPM(2))

	start := time.Now()
	b.Generate(context.Background(), ModelRequest{})
	b.Generate(context.Background(), ModelRequest{})
	if time.Since(start) > time.Second {
		t.Error("calls within budget should not block")
	}
	if inner.calls() != 2 {
		t.Errorf("inner calls = %d", inner.calls())
	}
}

func TestRateLimitBlockedCallHonorsContext(t *testing.T) {
	inner := &scriptedBackend{responses: []ModelResponse{textResponse("a")}}
	b := WithRateLimit(inner, RPM(1))
	b.Generate(context.Background(), ModelRequest{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	resp := b.Generate(ctx, ModelRequest{})
	if resp.Status != ModelStatusError {
		t.Errorf("blocked call status = %q, want error", resp.Status)
	}
	if inner.calls() != 1 {
		t.Errorf("blocked call reached the backend: %d calls", inner.calls())
	}
}

func TestMetaInt(t *testing.T) {
	meta := map[string]any{"a": 3, "b": int64(4), "c": float64(5), "d": "six"}
	if got := metaInt(meta, "a"); got != 3 {
		t.Errorf("int: %d", got)
	}
	if got := metaInt(meta, "b"); got != 4 {
		t.Errorf("int64: %d", got)
	}
	if got := metaInt(meta, "c"); got != 5 {
		t.Errorf("float64: %d", got)
	}
	if got := metaInt(meta, "d"); got != 0 {
		t.Errorf("string should read as 0: %d", got)
	}
	if got := metaInt(meta, "missing"); got != 0 {
		t.Errorf("missing should read as 0: %d", got)
	}
}

func TestRateLimitRecordsTokenUsage(t *testing.T) {
	inner := &scriptedBackend{responses: []ModelResponse{
		{Status: ModelStatusSuccess, Output: "a", Metadata: map[string]any{"input_tokens": 60, "output_tokens": 50}},
		textResponse("b"),
	}}
	b := WithRateLimit(inner, TPM(100))
	b.Generate(context.Background(), ModelRequest{})

	// The first call consumed the whole token budget; the next blocks
	// until the window slides, so a short context must fail it.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	resp := b.Generate(ctx, ModelRequest{})
	if resp.Status != ModelStatusError {
		t.Errorf("over-budget call status = %q, want error", resp.Status)
	}
}
