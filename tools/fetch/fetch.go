// Package fetch implements the fetch_page tool: a bounded GET with
// readable-content extraction.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/nevindra/relay"
)

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 1 << 20

// maxContentRunes caps the extracted text carried in the result. The
// guardrail trims further before anything reaches a prompt.
const maxContentRunes = 4000

// Tool fetches a URL and extracts its readable text content.
type Tool struct {
	client *http.Client
}

// New creates a fetch tool with a 15-second timeout.
func New() *Tool {
	return &Tool{client: &http.Client{Timeout: 15 * time.Second}}
}

func (t *Tool) Definition() relay.ToolDefinition {
	return relay.ToolDefinition{
		Name:        "fetch_page",
		Description: "Fetch a URL and extract its readable text content. Use for reading web pages, articles, documentation.",
		InputSchema: relay.InputSchema{
			Type: "object",
			Properties: map[string]relay.Property{
				"url": {Type: "string", Description: "URL to fetch"},
			},
			Required: []string{"url"},
		},
	}
}

func (t *Tool) Execute(ctx context.Context, args map[string]any) relay.ToolResult {
	start := time.Now()

	rawURL, _ := args["url"].(string)
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return relay.ToolResult{
			Success:         false,
			Error:           fmt.Sprintf("invalid URL %q: http or https required", rawURL),
			ExecutionTimeMS: time.Since(start).Milliseconds(),
		}
	}

	title, content, err := t.fetch(ctx, rawURL, parsed)
	if err != nil {
		return relay.ToolResult{
			Success:         false,
			Error:           err.Error(),
			ExecutionTimeMS: time.Since(start).Milliseconds(),
		}
	}

	return relay.ToolResult{
		Success: true,
		Data: map[string]any{
			"title":   title,
			"url":     rawURL,
			"content": relay.TruncateRunes(content, maxContentRunes),
		},
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}
}

func (t *Tool) fetch(ctx context.Context, rawURL string, parsed *url.URL) (title, content string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; RelayBot/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", fmt.Errorf("read error: %w", err)
	}

	html := string(body)

	// Try readability extraction
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err == nil && article.TextContent != "" {
		return article.Title, strings.TrimSpace(article.TextContent), nil
	}

	// Fallback: simple HTML stripping
	return "", stripHTML(html), nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// stripHTML removes script/style blocks and tags, collapsing whitespace.
func stripHTML(html string) string {
	text := scriptRe.ReplaceAllString(html, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// compile-time check
var _ relay.Tool = (*Tool)(nil)
