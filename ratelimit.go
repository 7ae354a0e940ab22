package relay

import (
	"context"
	"sync"
	"time"
)

// rateLimitBackend wraps a ModelBackend with proactive rate limiting.
// Requests block until the rate budget allows them to proceed. This is
// admission control, not retry: a failed call is never re-sent.
type rateLimitBackend struct {
	inner ModelBackend
	mu    sync.Mutex

	// RPM state: sliding window of request timestamps.
	rpm       int
	rpmWindow []time.Time

	// TPM state: sliding window of (timestamp, tokenCount) pairs.
	tpm       int
	tpmWindow []tpmEntry
}

type tpmEntry struct {
	at     time.Time
	tokens int
}

// RateLimitOption configures a rate-limited backend.
type RateLimitOption func(*rateLimitBackend)

// RPM sets the maximum requests per minute.
func RPM(n int) RateLimitOption {
	return func(r *rateLimitBackend) { r.rpm = n }
}

// TPM sets the maximum tokens per minute (input + output combined).
// Token counts are read from response metadata after each request. This
// is a soft limit: the request that exceeds the budget completes, but
// subsequent requests block until the window slides.
func TPM(n int) RateLimitOption {
	return func(r *rateLimitBackend) { r.tpm = n }
}

// WithRateLimit wraps b with proactive rate limiting:
//
//	backend = relay.WithRateLimit(provider, relay.RPM(60))
//	backend = relay.WithRateLimit(provider, relay.RPM(60), relay.TPM(100000))
func WithRateLimit(b ModelBackend, opts ...RateLimitOption) ModelBackend {
	r := &rateLimitBackend{inner: b}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *rateLimitBackend) Name() string { return r.inner.Name() }

func (r *rateLimitBackend) Generate(ctx context.Context, req ModelRequest) ModelResponse {
	if err := r.waitForBudget(ctx); err != nil {
		return ModelResponse{
			Status:   ModelStatusError,
			Metadata: map[string]any{"error": err.Error()},
		}
	}
	resp := r.inner.Generate(ctx, req)
	if resp.Status == ModelStatusSuccess {
		r.recordUsage(resp.Metadata)
	}
	return resp
}

// waitForBudget blocks until both RPM and TPM budgets allow a request.
// Returns ctx.Err() if the context is cancelled while waiting.
func (r *rateLimitBackend) waitForBudget(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-time.Minute)

		r.rpmWindow = pruneTime(r.rpmWindow, cutoff)
		r.tpmWindow = pruneTpm(r.tpmWindow, cutoff)

		rpmOK := r.rpm <= 0 || len(r.rpmWindow) < r.rpm

		tpmOK := true
		if r.tpm > 0 {
			var total int
			for _, e := range r.tpmWindow {
				total += e.tokens
			}
			tpmOK = total < r.tpm
		}

		if rpmOK && tpmOK {
			if r.rpm > 0 {
				r.rpmWindow = append(r.rpmWindow, now)
			}
			r.mu.Unlock()
			return nil
		}

		// Wait until the oldest entry in the blocking window expires.
		var wait time.Duration
		if !rpmOK && len(r.rpmWindow) > 0 {
			wait = r.rpmWindow[0].Add(time.Minute).Sub(now)
		}
		if !tpmOK && len(r.tpmWindow) > 0 {
			w := r.tpmWindow[0].at.Add(time.Minute).Sub(now)
			if wait == 0 || w < wait {
				wait = w
			}
		}
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// recordUsage adds token counts from response metadata to the TPM window.
// Backends report usage under "input_tokens" and "output_tokens".
func (r *rateLimitBackend) recordUsage(meta map[string]any) {
	if r.tpm <= 0 || meta == nil {
		return
	}
	total := metaInt(meta, "input_tokens") + metaInt(meta, "output_tokens")
	if total <= 0 {
		return
	}
	r.mu.Lock()
	r.tpmWindow = append(r.tpmWindow, tpmEntry{at: time.Now(), tokens: total})
	r.mu.Unlock()
}

// metaInt reads an integer metadata value, tolerating the float64 that
// JSON decoding produces.
func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// pruneTime removes entries older than cutoff from a sorted time slice.
func pruneTime(s []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(s) && s[i].Before(cutoff) {
		i++
	}
	return s[i:]
}

// pruneTpm removes entries older than cutoff from a sorted tpmEntry slice.
func pruneTpm(s []tpmEntry, cutoff time.Time) []tpmEntry {
	i := 0
	for i < len(s) && s[i].at.Before(cutoff) {
		i++
	}
	return s[i:]
}

// compile-time check
var _ ModelBackend = (*rateLimitBackend)(nil)
