package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
)

// Client speaks MCP to a server over any transport carrying
// newline-delimited JSON-RPC, typically a subprocess's stdin/stdout pair.
// Requests are issued one at a time; the client serializes callers.
type Client struct {
	mu      sync.Mutex
	w       io.Writer
	scanner *bufio.Scanner
	nextID  int
	name    string
	version string
}

// NewClient creates a Client over the given transport halves. Call
// Initialize before anything else.
func NewClient(r io.Reader, w io.Writer) *Client {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 10<<20), 10<<20) // 10MB max message
	return &Client{
		w:       w,
		scanner: scanner,
		name:    "relay",
		version: "1.0.0",
	}
}

// Initialize performs the MCP handshake. Returns the server's info.
func (c *Client) Initialize(ctx context.Context) (name, version string, err error) {
	params, _ := json.Marshal(initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    struct{}{},
		ClientInfo:      clientInfo{Name: c.name, Version: c.version},
	})
	raw, err := c.call(ctx, "initialize", params)
	if err != nil {
		return "", "", err
	}
	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", "", fmt.Errorf("mcp: decode initialize result: %w", err)
	}
	// initialized notification completes the handshake
	if err := c.notify("notifications/initialized"); err != nil {
		return "", "", err
	}
	return result.ServerInfo.Name, result.ServerInfo.Version, nil
}

// ListTools returns the tools the server advertises.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	raw, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var result toolsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("mcp: decode tools/list result: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes one server-side tool.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (ToolCallResult, error) {
	params, err := json.Marshal(toolCallParams{Name: name, Arguments: args})
	if err != nil {
		return ToolCallResult{}, fmt.Errorf("mcp: marshal arguments: %w", err)
	}
	raw, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return ToolCallResult{}, err
	}
	var result ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return ToolCallResult{}, fmt.Errorf("mcp: decode tools/call result: %w", err)
	}
	return result, nil
}

// call sends one request and reads responses until the matching ID
// arrives. Server-initiated notifications in between are skipped.
func (c *Client) call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.nextID++
	id := strconv.Itoa(c.nextID)
	req := request{JSONRPC: "2.0", ID: json.RawMessage(id), Method: method, Params: params}
	if err := c.write(req); err != nil {
		return nil, err
	}

	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		if string(resp.ID) != id {
			continue
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("mcp: %s: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
		}
		return resp.Result, nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, fmt.Errorf("mcp: read transport: %w", err)
	}
	return nil, fmt.Errorf("mcp: transport closed awaiting %s response", method)
}

func (c *Client) notify(method string) error {
	return c.write(request{JSONRPC: "2.0", Method: method})
}

func (c *Client) write(req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("mcp: marshal request: %w", err)
	}
	data = append(data, '\n')
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("mcp: write transport: %w", err)
	}
	return nil
}
