package websearch

import (
	"encoding/json"

	"github.com/nevindra/relay"
)

// Normalize reduces any known provider response shape to the uniform
// result triple. Extractors are tried in order and dispatch on the
// discriminating key each shape carries:
//
//   - a top-level JSON list of result objects
//   - Brave-style nesting under web.results
//   - a sources list (answer engines citing their evidence)
//   - a results or organic list at the top level
//   - a single-object answer ({"answer": ...})
//
// Unknown shapes fall through to a generic scan for the first list of
// result-shaped objects. Nothing recognizable yields nil, never an error.
func Normalize(raw json.RawMessage) []relay.ResultItem {
	if len(raw) == 0 {
		return nil
	}

	// Top-level list.
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err == nil {
		return itemize(list)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}

	// Brave: {"web": {"results": [...]}}
	if web, ok := obj["web"].(map[string]any); ok {
		if items := itemsFromAny(web["results"]); items != nil {
			return items
		}
	}

	// Answer engines: {"sources": [...]}
	if items := itemsFromAny(obj["sources"]); items != nil {
		return items
	}

	// Tavily: {"results": [...]}; Serper: {"organic": [...]}
	if items := itemsFromAny(obj["results"]); items != nil {
		return items
	}
	if items := itemsFromAny(obj["organic"]); items != nil {
		return items
	}

	// Single-object answer: {"answer": "..."}
	if answer, ok := obj["answer"].(string); ok && answer != "" {
		return []relay.ResultItem{{Snippet: answer}}
	}

	// Generic fallback: first list value holding result-shaped objects.
	for _, v := range obj {
		if items := itemsFromAny(v); len(items) > 0 {
			return items
		}
	}
	return nil
}

func itemsFromAny(v any) []relay.ResultItem {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	maps := make([]map[string]any, 0, len(list))
	for _, el := range list {
		if m, ok := el.(map[string]any); ok {
			maps = append(maps, m)
		}
	}
	if len(maps) == 0 {
		return nil
	}
	return itemize(maps)
}

func itemize(maps []map[string]any) []relay.ResultItem {
	items := make([]relay.ResultItem, 0, len(maps))
	for _, m := range maps {
		item := relay.ResultItem{
			Title:   str(m, "title"),
			URL:     firstStr(m, "url", "link"),
			Snippet: firstStr(m, "snippet", "description", "content"),
		}
		if item == (relay.ResultItem{}) {
			continue
		}
		items = append(items, item)
	}
	return items
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func firstStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(m, k); s != "" {
			return s
		}
	}
	return ""
}
