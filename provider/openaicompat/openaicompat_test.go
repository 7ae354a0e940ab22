package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nevindra/relay"
)

func TestGenerateSuccess(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"choices":[{"message":{"content":"hi."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":10,"completion_tokens":2}}`))
	}))
	defer srv.Close()

	b := New("test-key", srv.URL, "test-model")
	resp := b.Generate(context.Background(), relay.ModelRequest{
		Task:         "conversation",
		Prompt:       "User:\nhello\n\nAnswer:",
		SystemPrompt: "be brief",
	})

	if resp.Status != relay.ModelStatusSuccess {
		t.Fatalf("status = %q, metadata = %#v", resp.Status, resp.Metadata)
	}
	if resp.Output != "hi." {
		t.Errorf("output = %q", resp.Output)
	}
	if resp.Metadata["input_tokens"] != 10 {
		t.Errorf("input_tokens = %v", resp.Metadata["input_tokens"])
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Errorf("messages = %+v, want system then user", gotBody.Messages)
	}
	if gotBody.Messages[0].Content != "be brief" {
		t.Errorf("system content = %q; the contract must travel on the system channel", gotBody.Messages[0].Content)
	}
	if strings.Contains(gotBody.Messages[1].Content, "be brief") {
		t.Error("system contract leaked into the user prompt")
	}
}

func TestGenerateHTTPErrorFoldsToStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := New("k", srv.URL, "m")
	resp := b.Generate(context.Background(), relay.ModelRequest{Prompt: "x"})
	if resp.Status != relay.ModelStatusError {
		t.Fatalf("status = %q, want error", resp.Status)
	}
	errStr, _ := resp.Metadata["error"].(string)
	if !strings.Contains(errStr, "503") {
		t.Errorf("error = %q, want status code detail", errStr)
	}
}

func TestGenerateTransportErrorFoldsToStatus(t *testing.T) {
	b := New("k", "http://127.0.0.1:1", "m") // nothing listens here
	resp := b.Generate(context.Background(), relay.ModelRequest{Prompt: "x"})
	if resp.Status != relay.ModelStatusError {
		t.Fatalf("status = %q, want error", resp.Status)
	}
}

func TestGenerateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	b := New("k", srv.URL, "m")
	resp := b.Generate(context.Background(), relay.ModelRequest{Prompt: "x"})
	if resp.Status != relay.ModelStatusError {
		t.Errorf("status = %q, want error", resp.Status)
	}
}
