package relay

import "testing"

func TestErrModelString(t *testing.T) {
	err := &ErrModel{Backend: "anthropic", Message: "overloaded"}
	if got := err.Error(); got != "anthropic: overloaded" {
		t.Errorf("Error() = %q", got)
	}
}

func TestErrHTTPString(t *testing.T) {
	err := &ErrHTTP{Status: 429, Body: "rate limited"}
	if got := err.Error(); got != "http 429: rate limited" {
		t.Errorf("Error() = %q", got)
	}
}
