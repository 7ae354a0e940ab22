package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// --- Tool contract ---

// Property describes one argument in a tool's input schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// InputSchema declares a tool's arguments as a JSON-schema object.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDefinition describes a callable capability to the model and the
// registry.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// ToolResult is the uniform outcome of a tool invocation. Execute has no
// error return: failures travel in the result, and a tool that panics is
// folded into a failed result by the registry.
type ToolResult struct {
	Success         bool           `json:"success"`
	Data            map[string]any `json:"data,omitempty"`
	Error           string         `json:"error,omitempty"`
	ExecutionTimeMS int64          `json:"execution_time_ms"`
}

// Tool is a pluggable capability. Tools are stateless with respect to the
// turn: they see only their arguments and a context, never the turn state
// or the memory boundary.
type Tool interface {
	Definition() ToolDefinition
	Execute(ctx context.Context, args map[string]any) ToolResult
}

// --- Registry ---

// Registry holds the tools a runtime may execute and validates arguments
// against each tool's declared schema before dispatch. Register at
// startup; lookups afterwards are read-only and safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	logger  *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the structured logger for dispatch logging.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty tool registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = nopLogger
	}
	return r
}

// Register adds a tool and compiles its argument schema. Registering a
// second tool under the same name is an error.
func (r *Registry) Register(t Tool) error {
	def := t.Definition()
	if def.Name == "" {
		return fmt.Errorf("tool definition has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %q already registered", def.Name)
	}

	if len(def.InputSchema.Properties) > 0 || len(def.InputSchema.Required) > 0 {
		schema, err := compileInputSchema(def)
		if err != nil {
			return fmt.Errorf("compile schema for tool %q: %w", def.Name, err)
		}
		r.schemas[def.Name] = schema
	}
	r.tools[def.Name] = t
	return nil
}

func compileInputSchema(def ToolDefinition) (*jsonschema.Schema, error) {
	in := def.InputSchema
	if in.Type == "" {
		in.Type = "object"
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return jsonschema.CompileString(def.Name+".schema.json", string(raw))
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Definitions returns all registered tool definitions, sorted by name.
func (r *Registry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute validates args and dispatches one tool call synchronously.
// An unknown name, failed validation, panic, or expired context all come
// back as a failed ToolResult; Execute never returns an error and never
// blocks past ctx.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) ToolResult {
	start := time.Now()

	r.mu.RLock()
	t, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if !ok {
		return ToolResult{
			Success:         false,
			Error:           fmt.Sprintf("tool %q not found", name),
			ExecutionTimeMS: time.Since(start).Milliseconds(),
		}
	}

	if schema != nil {
		if err := validateArgs(schema, args); err != nil {
			r.logger.Warn("tool arguments rejected", "tool", name, "err", err)
			return ToolResult{
				Success:         false,
				Error:           fmt.Sprintf("invalid arguments: %v", err),
				ExecutionTimeMS: time.Since(start).Milliseconds(),
			}
		}
	}

	done := make(chan ToolResult, 1)
	go func() {
		done <- invokeGuarded(ctx, t, args)
	}()

	var res ToolResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = ToolResult{Success: false, Error: fmt.Sprintf("tool %q: %v", name, ctx.Err())}
	}
	if res.ExecutionTimeMS == 0 {
		res.ExecutionTimeMS = time.Since(start).Milliseconds()
	}
	r.logger.Debug("tool executed",
		"tool", name,
		"success", res.Success,
		"duration_ms", res.ExecutionTimeMS)
	return res
}

// validateArgs checks args against the compiled schema. Arguments are
// round-tripped through JSON so Go-typed values (int, struct) compare the
// way wire-decoded values would.
func validateArgs(schema *jsonschema.Schema, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("arguments not serializable: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	return schema.Validate(decoded)
}

// invokeGuarded runs the tool and converts a panic into a failed result.
func invokeGuarded(ctx context.Context, t Tool, args map[string]any) (res ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			res = ToolResult{Success: false, Error: fmt.Sprintf("tool panicked: %v", r)}
		}
	}()
	return t.Execute(ctx, args)
}
