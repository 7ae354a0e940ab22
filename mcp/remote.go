package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nevindra/relay"
)

// Remote surfaces one server-side MCP tool through the relay tool
// contract. It reads the turn's trace metadata from the context placed
// there by the tool-execution node and brackets every call with the
// mcp_request_sent / mcp_response_received events.
type Remote struct {
	client *Client
	def    relay.ToolDefinition
	tracer relay.Tracer
}

// RemoteTools initializes the client, lists the server's tools, and
// wraps each one as a relay.Tool ready for registration. The tracer may
// be nil.
func RemoteTools(ctx context.Context, client *Client, tracer relay.Tracer) ([]relay.Tool, error) {
	if _, _, err := client.Initialize(ctx); err != nil {
		return nil, err
	}
	defs, err := client.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	tools := make([]relay.Tool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, &Remote{
			client: client,
			def:    toRelayDefinition(d),
			tracer: tracer,
		})
	}
	return tools, nil
}

func (r *Remote) Definition() relay.ToolDefinition { return r.def }

func (r *Remote) Execute(ctx context.Context, args map[string]any) relay.ToolResult {
	start := time.Now()
	tm, _ := relay.TraceMetaFromContext(ctx)

	r.emit(ctx, relay.EventMCPRequestSent, map[string]any{"tool": r.def.Name}, tm)

	res, err := r.client.CallTool(ctx, r.def.Name, args)
	elapsed := time.Since(start).Milliseconds()

	r.emit(ctx, relay.EventMCPResponseReceived, map[string]any{
		"tool":        r.def.Name,
		"is_error":    err != nil || res.IsError,
		"duration_ms": elapsed,
	}, tm)

	if err != nil {
		return relay.ToolResult{Success: false, Error: err.Error(), ExecutionTimeMS: elapsed}
	}
	if res.IsError {
		return relay.ToolResult{Success: false, Error: res.Text(), ExecutionTimeMS: elapsed}
	}

	text := res.Text()
	data := map[string]any{"content": text}
	// Servers returning a JSON object in the text block get it decoded so
	// result shaping downstream sees structure, not a string.
	var decoded map[string]any
	if err := json.Unmarshal([]byte(text), &decoded); err == nil {
		data = decoded
	}
	return relay.ToolResult{Success: true, Data: data, ExecutionTimeMS: elapsed}
}

func (r *Remote) emit(ctx context.Context, name string, meta map[string]any, tm relay.TraceMetadata) {
	if r.tracer == nil {
		return
	}
	defer func() { _ = recover() }()
	r.tracer.RecordEvent(ctx, name, meta, tm)
}

// toRelayDefinition converts an MCP tool definition, collapsing schemas
// this runtime cannot validate into permissive object schemas.
func toRelayDefinition(d ToolDefinition) relay.ToolDefinition {
	def := relay.ToolDefinition{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: relay.InputSchema{Type: "object"},
	}
	var schema struct {
		Type       string `json:"type"`
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(d.InputSchema, &schema); err != nil {
		return def
	}
	if schema.Type != "" {
		def.InputSchema.Type = schema.Type
	}
	if len(schema.Properties) > 0 {
		def.InputSchema.Properties = make(map[string]relay.Property, len(schema.Properties))
		for name, p := range schema.Properties {
			def.InputSchema.Properties[name] = relay.Property{Type: p.Type, Description: p.Description}
		}
	}
	def.InputSchema.Required = schema.Required
	return def
}

// compile-time check
var _ relay.Tool = (*Remote)(nil)
