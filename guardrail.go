package relay

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// --- Limits ---

// Guardrail limits. These bound how much tool output may reach a prompt
// and how long a turn may run. Tool results that exceed a limit are
// trimmed, never errored: the turn always reaches the format node.
const (
	// MaxToolCallsPerTurn caps tool executions within one turn. Requests
	// beyond the cap are dropped and the violation is traced.
	MaxToolCallsPerTurn = 1

	// MaxResults caps the result items kept after sanitization.
	MaxResults = 5

	// MaxSnippetLen caps each result snippet, in runes.
	MaxSnippetLen = 300

	// MaxTotalChars caps the combined size of all sanitized result items.
	MaxTotalChars = 1500

	// MaxToolContextChars caps the formatted tool context block.
	MaxToolContextChars = 2048

	// MaxMemoryContextChars caps the memory context block.
	MaxMemoryContextChars = 2048

	// MaxCombinedInjectChars caps memory plus tool context combined at
	// prompt assembly. Tool context has priority when both compete.
	MaxCombinedInjectChars = 1500

	// MaxNodeVisitsPerTurn is the default node-visit budget. Exhaustion
	// forces the format node with whatever the state holds.
	MaxNodeVisitsPerTurn = 25
)

// Per-call timeouts. Each I/O boundary gets its own; a timeout fails that
// call, never the turn.
const (
	DefaultToolCallTimeout  = 10 * time.Second
	DefaultModelCallTimeout = 60 * time.Second
	DefaultMemoryOpTimeout  = 5 * time.Second
)

// --- Result sanitization ---

// ResultItem is the uniform shape tool output is reduced to before any of
// it may be injected into a prompt.
type ResultItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// CoerceResults extracts result items from a tool's data payload. It
// accepts a "results" list of item-shaped maps, a single item-shaped map
// at the top level, or a bare "content"/"answer" string, and ignores
// anything it cannot shape. Unknown payloads yield nil, never an error.
func CoerceResults(data map[string]any) []ResultItem {
	if data == nil {
		return nil
	}
	if raw, ok := data["results"]; ok {
		if list, ok := raw.([]any); ok {
			items := make([]ResultItem, 0, len(list))
			for _, el := range list {
				if m, ok := el.(map[string]any); ok {
					items = append(items, coerceItem(m))
				}
			}
			return items
		}
		if list, ok := raw.([]ResultItem); ok {
			return append([]ResultItem(nil), list...)
		}
	}
	if item := coerceItem(data); item != (ResultItem{}) {
		return []ResultItem{item}
	}
	return nil
}

func coerceItem(m map[string]any) ResultItem {
	item := ResultItem{
		Title:   stringField(m, "title"),
		URL:     stringField(m, "url"),
		Snippet: stringField(m, "snippet"),
	}
	if item.Snippet == "" {
		if s := stringField(m, "content"); s != "" {
			item.Snippet = s
		} else if s := stringField(m, "answer"); s != "" {
			item.Snippet = s
		} else if s := stringField(m, "description"); s != "" {
			item.Snippet = s
		}
	}
	return item
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SanitizeResults applies the injection limits to raw result items:
// non-http(s) URLs are dropped, snippets are truncated to MaxSnippetLen,
// at most MaxResults items are kept, and items that would push the
// combined size past MaxTotalChars are discarded. Items without a URL
// pass the scheme filter; there is nothing to follow.
func SanitizeResults(items []ResultItem) []ResultItem {
	out := make([]ResultItem, 0, len(items))
	total := 0
	for _, item := range items {
		if !allowedURL(item.URL) {
			continue
		}
		item.Snippet = TruncateRunes(item.Snippet, MaxSnippetLen)
		size := len([]rune(item.Title)) + len([]rune(item.URL)) + len([]rune(item.Snippet))
		if total+size > MaxTotalChars {
			continue
		}
		total += size
		out = append(out, item)
		if len(out) == MaxResults {
			break
		}
	}
	return out
}

// allowedURL reports whether u is empty or parses with an http or https
// scheme. Everything else (javascript:, data:, file:, garbage) is dropped.
func allowedURL(u string) bool {
	if u == "" {
		return true
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

// FormatToolContext renders sanitized items into the block injected into
// the prompt, capped at MaxToolContextChars.
func FormatToolContext(items []ResultItem) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, item.Title)
		if item.URL != "" {
			b.WriteString("\n")
			b.WriteString(item.URL)
		}
		if item.Snippet != "" {
			b.WriteString("\n")
			b.WriteString(item.Snippet)
		}
	}
	return TruncateRunes(b.String(), MaxToolContextChars)
}

// TruncateRunes shortens s to at most max runes. The byte-length check is
// a fast path: a string of n bytes has at most n runes.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
