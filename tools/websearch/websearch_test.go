package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nevindra/relay"
)

func TestNoCredentialsFailsWithoutNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	tool := New(Credentials{}, WithBaseURL(Brave, srv.URL))
	res := tool.Execute(context.Background(), map[string]any{"query": "anything"})
	if res.Success {
		t.Error("expected failure without credentials")
	}
	if !strings.Contains(res.Error, "credentials") {
		t.Errorf("error = %q, want credential mention", res.Error)
	}
	if called {
		t.Error("no network request should have been made")
	}
}

func TestProviderPriority(t *testing.T) {
	cases := []struct {
		name  string
		creds Credentials
		want  Provider
	}{
		{"brave first", Credentials{Brave: "b", Serper: "s", Tavily: "t"}, Brave},
		{"serper when no brave", Credentials{Serper: "s", Tavily: "t"}, Serper},
		{"tavily last", Credentials{Tavily: "t"}, Tavily},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tool := New(tc.creds)
			p, _, ok := tool.pickProvider()
			if !ok || p != tc.want {
				t.Errorf("picked %q (ok=%v), want %q", p, ok, tc.want)
			}
		})
	}
}

func TestBraveSearchEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "brave-key" {
			t.Errorf("token header = %q", got)
		}
		w.Write([]byte(`{"web":{"results":[
			{"title":"One","url":"https://one.example","description":"first"},
			{"title":"Two","url":"https://two.example","description":"second"}
		]}}`))
	}))
	defer srv.Close()

	tool := New(Credentials{Brave: "brave-key"}, WithBaseURL(Brave, srv.URL))
	res := tool.Execute(context.Background(), map[string]any{"query": "AI news"})
	if !res.Success {
		t.Fatalf("Execute failed: %s", res.Error)
	}
	results, _ := res.Data["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	first := results[0].(map[string]any)
	if first["title"] != "One" || first["snippet"] != "first" {
		t.Errorf("first result = %#v", first)
	}
}

func TestHTTPErrorCollapses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tool := New(Credentials{Serper: "k"}, WithBaseURL(Serper, srv.URL))
	res := tool.Execute(context.Background(), map[string]any{"query": "x"})
	if res.Success {
		t.Error("expected failure on HTTP 429")
	}
	if !strings.Contains(res.Error, "serper") {
		t.Errorf("error = %q, want provider name", res.Error)
	}
}

func TestStreamedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: {\"results\":[{\"title\":\"stale\",\"url\":\"https://a.example\",\"content\":\"old\"}]}\n" +
			"data: {\"results\":[{\"title\":\"fresh\",\"url\":\"https://b.example\",\"content\":\"new\"}]}\n" +
			"data: [DONE]\n"))
	}))
	defer srv.Close()

	tool := New(Credentials{Tavily: "k"}, WithBaseURL(Tavily, srv.URL))
	res := tool.Execute(context.Background(), map[string]any{"query": "x"})
	if !res.Success {
		t.Fatalf("Execute failed: %s", res.Error)
	}
	results, _ := res.Data["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (latest payload only)", len(results))
	}
	if results[0].(map[string]any)["title"] != "fresh" {
		t.Errorf("result = %#v, want the latest stream payload", results[0])
	}
}

func TestNormalizeShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want relay.ResultItem
	}{
		{
			"top-level list",
			`[{"title":"T","url":"https://x.example","snippet":"s"}]`,
			relay.ResultItem{Title: "T", URL: "https://x.example", Snippet: "s"},
		},
		{
			"brave web.results",
			`{"web":{"results":[{"title":"T","url":"https://x.example","description":"d"}]}}`,
			relay.ResultItem{Title: "T", URL: "https://x.example", Snippet: "d"},
		},
		{
			"sources list",
			`{"sources":[{"title":"T","url":"https://x.example","content":"c"}]}`,
			relay.ResultItem{Title: "T", URL: "https://x.example", Snippet: "c"},
		},
		{
			"serper organic with link key",
			`{"organic":[{"title":"T","link":"https://x.example","snippet":"s"}]}`,
			relay.ResultItem{Title: "T", URL: "https://x.example", Snippet: "s"},
		},
		{
			"single-object answer",
			`{"answer":"forty-two"}`,
			relay.ResultItem{Snippet: "forty-two"},
		},
		{
			"generic fallback",
			`{"hits":[{"title":"T","url":"https://x.example","snippet":"s"}]}`,
			relay.ResultItem{Title: "T", URL: "https://x.example", Snippet: "s"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			items := Normalize([]byte(tc.raw))
			if len(items) != 1 {
				t.Fatalf("got %d items, want 1", len(items))
			}
			if items[0] != tc.want {
				t.Errorf("item = %+v, want %+v", items[0], tc.want)
			}
		})
	}

	if items := Normalize([]byte(`{"unrelated":42}`)); items != nil {
		t.Errorf("unknown shape should yield nil, got %+v", items)
	}
}

func TestLatestPayload(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"plain object", `{"a":1}`, `{"a":1}`, false},
		{"plain list", `[1,2]`, `[1,2]`, false},
		{"ndjson takes last", "{\"n\":1}\n{\"n\":2}", `{"n":2}`, false},
		{"sse prefix and sentinel", "data: {\"n\":1}\ndata: [DONE]", `{"n":1}`, false},
		{"interleaved noise", "event: update\ndata: {\"n\":3}\n", `{"n":3}`, false},
		{"empty", "", "", true},
		{"no json", "plain text only", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LatestPayload([]byte(tc.body))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("LatestPayload: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("payload = %s, want %s", got, tc.want)
			}
		})
	}
}
