package websearch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// LatestPayload extracts the freshest complete JSON payload from a
// response body. Plain JSON passes through unchanged; line-delimited
// streams (NDJSON, SSE with "data: " prefixes and a "[DONE]" sentinel)
// yield the last line that decodes as a JSON object or array.
func LatestPayload(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed), nil
	}

	var latest json.RawMessage
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "data:")
		line = strings.TrimSpace(line)
		if line == "" || line == "[DONE]" {
			continue
		}
		if line[0] != '{' && line[0] != '[' {
			continue
		}
		if json.Valid([]byte(line)) {
			latest = json.RawMessage(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan response: %w", err)
	}
	if latest == nil {
		return nil, fmt.Errorf("no JSON payload in response")
	}
	return latest, nil
}
