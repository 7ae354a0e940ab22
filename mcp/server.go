package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/nevindra/relay"
)

// Server exposes a local relay.Registry to MCP clients over stdio using
// newline-delimited JSON-RPC 2.0.
type Server struct {
	name     string
	version  string
	registry *relay.Registry
	logger   *slog.Logger

	// reader/writer can be overridden for testing (defaults to stdin/stdout).
	reader io.Reader
	writer io.Writer
	mu     sync.Mutex // protects writes
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets a structured logger. Logs must not go to stdout,
// which carries the protocol.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithTransport overrides the stdio transport.
func WithTransport(r io.Reader, w io.Writer) ServerOption {
	return func(s *Server) { s.reader = r; s.writer = w }
}

// NewServer creates an MCP server serving the registry's tools.
func NewServer(name, version string, registry *relay.Registry, opts ...ServerOption) *Server {
	s := &Server{
		name:     name,
		version:  version,
		registry: registry,
		logger:   slog.New(discardHandler{}),
		reader:   os.Stdin,
		writer:   os.Stdout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Serve reads JSON-RPC messages and writes responses until the transport
// closes or ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, 0, 10<<20), 10<<20) // 10MB max message

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handleMessage(ctx, line)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("mcp: read transport: %w", err)
	}
	return nil
}

func (s *Server) handleMessage(ctx context.Context, data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		s.writeResponse(response{
			JSONRPC: "2.0",
			ID:      json.RawMessage("null"),
			Error:   &rpcError{Code: errCodeParse, Message: "parse error"},
		})
		return
	}

	resp := s.dispatch(ctx, &req)
	if resp != nil {
		s.writeResponse(*resp)
	}
}

// dispatch routes a request to the appropriate handler. Returns nil for
// notifications.
func (s *Server) dispatch(ctx context.Context, req *request) *response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized", "notifications/cancelled":
		return nil
	case "ping":
		return s.respond(req.ID, struct{}{})
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		if req.isNotification() {
			return nil
		}
		return s.respondError(req.ID, errCodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleInitialize(req *request) *response {
	caps := serverCapabilities{}
	if len(s.registry.Definitions()) > 0 {
		caps.Tools = &capability{}
	}
	return s.respond(req.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    caps,
		ServerInfo:      serverInfo{Name: s.name, Version: s.version},
	})
}

func (s *Server) handleToolsList(req *request) *response {
	local := s.registry.Definitions()
	defs := make([]ToolDefinition, len(local))
	for i, d := range local {
		schema, err := json.Marshal(d.InputSchema)
		if err != nil {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		defs[i] = ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: schema,
		}
	}
	return s.respond(req.ID, toolsListResult{Tools: defs})
}

func (s *Server) handleToolsCall(ctx context.Context, req *request) *response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.respondError(req.ID, errCodeInvalidParams, "invalid params: "+err.Error())
	}

	res := s.registry.Execute(ctx, params.Name, params.Arguments)
	if !res.Success {
		return s.respond(req.ID, ErrorResult(res.Error))
	}

	text, err := json.Marshal(res.Data)
	if err != nil {
		return s.respond(req.ID, ErrorResult("encode result: "+err.Error()))
	}
	return s.respond(req.ID, TextResult(string(text)))
}

// --- response helpers ---

func (s *Server) respond(id json.RawMessage, result any) *response {
	raw, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("mcp: marshal result", "err", err)
		return s.respondError(id, errCodeParse, "encode result")
	}
	return &response{JSONRPC: "2.0", ID: id, Result: raw}
}

func (s *Server) respondError(id json.RawMessage, code int, message string) *response {
	return &response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

func (s *Server) writeResponse(resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("mcp: marshal response", "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data = append(data, '\n')
	if _, err := s.writer.Write(data); err != nil {
		s.logger.Error("mcp: write response", "err", err)
	}
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
