package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Model response statuses.
const (
	ModelStatusSuccess = "success"
	ModelStatusError   = "error"
)

// ToolCallMarker opens an inline tool directive in model output. The JSON
// object that follows it names the tool and its arguments.
const ToolCallMarker = "[TOOL_CALL]"

// ModelBackend is the generation boundary. Implementations must not panic
// and must not surface Go errors: a failed call comes back as a response
// with Status "error" and detail in Metadata, so the turn can degrade
// instead of crash. The provider packages implement this for real APIs.
type ModelBackend interface {
	Generate(ctx context.Context, req ModelRequest) ModelResponse
	Name() string
}

// generateGuarded invokes the backend and folds a panic into an error
// response. Backends should never panic; the loop must survive one anyway.
func generateGuarded(ctx context.Context, backend ModelBackend, req ModelRequest) (resp ModelResponse) {
	defer func() {
		if r := recover(); r != nil {
			resp = ModelResponse{
				Status:   ModelStatusError,
				Metadata: map[string]any{"error": fmt.Sprintf("backend panicked: %v", r)},
			}
		}
	}()
	return backend.Generate(ctx, req)
}

// ParseToolCall extracts a [TOOL_CALL] directive from model output.
// It returns the parsed payload, the text preceding the marker, and
// whether a directive was found. A marker followed by JSON that does not
// decode to a named call is not a directive: the output passes through
// untouched as plain text.
func ParseToolCall(output string) (*ToolCallPayload, string, bool) {
	idx := strings.Index(output, ToolCallMarker)
	if idx < 0 {
		return nil, output, false
	}

	rest := output[idx+len(ToolCallMarker):]
	dec := json.NewDecoder(strings.NewReader(rest))
	var payload struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := dec.Decode(&payload); err != nil || payload.Name == "" {
		return nil, output, false
	}

	args := payload.Arguments
	if args == nil {
		args = map[string]any{}
	}
	return &ToolCallPayload{Name: payload.Name, Arguments: args},
		strings.TrimSpace(output[:idx]), true
}
