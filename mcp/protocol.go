// Package mcp bridges the runtime to the Model Context Protocol (MCP)
// over newline-delimited JSON-RPC 2.0. The Client half consumes tools
// from an external MCP server (typically a subprocess's stdio) and
// surfaces each one through the relay tool contract; the Server half
// exposes a local relay.Registry to external MCP clients.
//
// The protocol follows the MCP specification (revision 2025-03-26).
package mcp

import "encoding/json"

// --- JSON-RPC 2.0 types ---

// request is a JSON-RPC 2.0 request or notification. Notifications have
// a nil ID.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification returns true if this is a notification (no ID field).
func (r *request) isNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is a JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Standard JSON-RPC 2.0 error codes.
const (
	errCodeParse          = -32700
	errCodeMethodNotFound = -32601
	errCodeInvalidParams  = -32602
)

// --- MCP protocol types ---

// protocolVersion is the MCP protocol version this package implements.
const protocolVersion = "2025-03-26"

// initializeParams is the client's initialize request payload.
type initializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    any        `json:"capabilities"`
	ClientInfo      clientInfo `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// initializeResult is the server's response to an initialize request.
type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    serverCapabilities `json:"capabilities"`
	ServerInfo      serverInfo         `json:"serverInfo"`
}

type serverCapabilities struct {
	Tools *capability `json:"tools,omitempty"`
}

type capability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// --- Tool types ---

// ToolDefinition describes a tool exposed via MCP.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// toolsListResult is the response to tools/list.
type toolsListResult struct {
	Tools []ToolDefinition `json:"tools"`
}

// toolCallParams is the request payload for tools/call.
type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolCallResult is the response payload for tools/call.
type ToolCallResult struct {
	Content []textContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// textContent is a text content block in MCP responses.
type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Text joins the text content blocks of a result.
func (r ToolCallResult) Text() string {
	var out string
	for i, c := range r.Content {
		if c.Type != "text" {
			continue
		}
		if i > 0 && out != "" {
			out += "\n"
		}
		out += c.Text
	}
	return out
}

// TextResult creates a successful ToolCallResult with a single text content block.
func TextResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []textContent{{Type: "text", Text: text}},
	}
}

// ErrorResult creates an error ToolCallResult with a single text content block.
func ErrorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []textContent{{Type: "text", Text: text}},
		IsError: true,
	}
}
