// Package websearch implements the web_search tool: a multi-provider
// search client over Brave, Serper, and Tavily. The first provider with a
// credential is used; one request per invocation, no retries. Provider
// failures of any kind collapse into a single failed tool result.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nevindra/relay"
)

// Provider identifies a search backend.
type Provider string

const (
	Brave  Provider = "brave"
	Serper Provider = "serper"
	Tavily Provider = "tavily"
)

// defaultPriority is the credential selection order when none is configured.
var defaultPriority = []Provider{Brave, Serper, Tavily}

// Credentials holds the per-provider API keys. Empty keys disable the
// provider.
type Credentials struct {
	Brave  string
	Serper string
	Tavily string
}

// Option configures a Tool.
type Option func(*Tool)

// WithHTTPClient replaces the HTTP client (tests point it at a fake server).
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tool) { t.client = c }
}

// WithPriority sets the provider selection order.
func WithPriority(order ...Provider) Option {
	return func(t *Tool) { t.priority = order }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tool) { t.logger = l }
}

// WithBaseURL overrides a provider's endpoint. Tests use it to target an
// httptest server.
func WithBaseURL(p Provider, base string) Option {
	return func(t *Tool) { t.baseURLs[p] = base }
}

// Tool is the web_search tool.
type Tool struct {
	creds    Credentials
	priority []Provider
	client   *http.Client
	logger   *slog.Logger
	baseURLs map[Provider]string
	count    int
}

// New creates a web search tool. Providers without credentials are
// skipped; with no credentials at all the tool fails fast without any
// network I/O.
func New(creds Credentials, opts ...Option) *Tool {
	t := &Tool{
		creds:    creds,
		priority: defaultPriority,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   slog.New(discardHandler{}),
		baseURLs: map[Provider]string{
			Brave:  "https://api.search.brave.com",
			Serper: "https://google.serper.dev",
			Tavily: "https://api.tavily.com",
		},
		count: relay.MaxResults,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tool) Definition() relay.ToolDefinition {
	return relay.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web for current information. Use for recent events, news, prices, weather, or anything that requires up-to-date data.",
		InputSchema: relay.InputSchema{
			Type: "object",
			Properties: map[string]relay.Property{
				"query": {Type: "string", Description: "Search query optimized for search engines"},
				"count": {Type: "integer", Description: "Maximum number of results"},
			},
			Required: []string{"query"},
		},
	}
}

// Execute runs one search. All failures, from missing credentials to
// transport and protocol errors, come back as Success=false with a single
// error string; the call is never retried.
func (t *Tool) Execute(ctx context.Context, args map[string]any) relay.ToolResult {
	start := time.Now()

	query, _ := args["query"].(string)
	if query == "" {
		return fail(start, "query is required")
	}
	count := t.count
	if n, ok := args["count"].(float64); ok && int(n) > 0 {
		count = int(n)
	}

	provider, key, ok := t.pickProvider()
	if !ok {
		return fail(start, "no search provider credentials configured")
	}

	raw, err := t.search(ctx, provider, key, query, count)
	if err != nil {
		t.logger.Warn("web search failed", "provider", string(provider), "err", err)
		return fail(start, fmt.Sprintf("%s search failed: %v", provider, err))
	}

	items := relay.SanitizeResults(Normalize(raw))
	results := make([]any, 0, len(items))
	for _, item := range items {
		results = append(results, map[string]any{
			"title":   item.Title,
			"url":     item.URL,
			"snippet": item.Snippet,
		})
	}
	t.logger.Debug("web search ok", "provider", string(provider), "results", len(results))
	return relay.ToolResult{
		Success:         true,
		Data:            map[string]any{"results": results, "provider": string(provider)},
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}
}

// pickProvider returns the first provider in priority order holding a
// credential.
func (t *Tool) pickProvider() (Provider, string, bool) {
	for _, p := range t.priority {
		switch p {
		case Brave:
			if t.creds.Brave != "" {
				return Brave, t.creds.Brave, true
			}
		case Serper:
			if t.creds.Serper != "" {
				return Serper, t.creds.Serper, true
			}
		case Tavily:
			if t.creds.Tavily != "" {
				return Tavily, t.creds.Tavily, true
			}
		}
	}
	return "", "", false
}

// search makes exactly one request against the chosen provider and
// returns the latest JSON payload from the response body.
func (t *Tool) search(ctx context.Context, p Provider, key, query string, count int) (json.RawMessage, error) {
	var req *http.Request
	var err error

	switch p {
	case Brave:
		u := fmt.Sprintf("%s/res/v1/web/search?q=%s&count=%d", t.baseURLs[p], url.QueryEscape(query), count)
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Subscription-Token", key)

	case Serper:
		body, _ := json.Marshal(map[string]any{"q": query, "num": count})
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, t.baseURLs[p]+"/search", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-KEY", key)

	case Tavily:
		body, _ := json.Marshal(map[string]any{"api_key": key, "query": query, "max_results": count})
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, t.baseURLs[p]+"/search", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

	default:
		return nil, fmt.Errorf("unknown provider %q", p)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &relay.ErrHTTP{Status: resp.StatusCode, Body: string(detail)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	return LatestPayload(body)
}

func fail(start time.Time, msg string) relay.ToolResult {
	return relay.ToolResult{
		Success:         false,
		Error:           msg,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// compile-time check
var _ relay.Tool = (*Tool)(nil)
