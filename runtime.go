package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Turn statuses returned to callers.
const (
	TurnStatusSuccess = "success"
	TurnStatusError   = "error"
)

// TurnRequest is one invocation of the runtime. ConversationID and TraceID
// are honored verbatim when set; transport shims fill missing ones with
// NewID before calling Invoke. The core never mints identifiers.
type TurnRequest struct {
	Input          string
	ConversationID string
	TraceID        string
	UserID         string
	InputType      InputType
	MediaURL       string
}

// TurnResult is the caller-facing outcome of a turn. Output is always
// non-empty: degraded turns carry a fallback message, not an error.
type TurnResult struct {
	Output         string `json:"output"`
	Status         string `json:"status"`
	ConversationID string `json:"conversation_id"`
	TraceID        string `json:"trace_id"`
}

// Runtime orchestrates conversational turns over a model backend, a tool
// registry, a memory boundary, and a tracer. Construct with New; safe for
// concurrent use, one goroutine per concurrent turn.
type Runtime struct {
	backend  ModelBackend
	registry *Registry
	store    MemoryStore
	tracer   Tracer
	alarms   *InvariantAlarms
	logger   *slog.Logger
	contract string
	options  ModelOptions

	modelTimeout  time.Duration
	toolTimeout   time.Duration
	memoryTimeout time.Duration
	maxVisits     int
	toolLimit     int

	nDecide      decideNode
	nPreprocess  preprocessNode
	nMemoryRead  memoryReadNode
	nMemoryWrite memoryWriteNode
	nModelCall   modelCallNode
	nToolExec    toolExecutionNode
	nFormat      formatNode
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithMemory sets the turn memory boundary. Default: an in-process
// MemStore. Use DisabledStore to switch memory off without changing
// routing.
func WithMemory(s MemoryStore) Option { return func(rt *Runtime) { rt.store = s } }

// WithTools sets the tool registry. Default: an empty registry.
func WithTools(r *Registry) Option { return func(rt *Runtime) { rt.registry = r } }

// WithTracer sets the tracing backend. Default: NoopTracer.
func WithTracer(t Tracer) Option { return func(rt *Runtime) { rt.tracer = t } }

// WithLogger sets the structured logger. Default: a no-op logger.
func WithLogger(l *slog.Logger) Option { return func(rt *Runtime) { rt.logger = l } }

// WithSystemContract replaces the default behavioral contract sent on the
// model's system channel.
func WithSystemContract(s string) Option { return func(rt *Runtime) { rt.contract = s } }

// WithModelOptions sets generation parameters passed on every request.
func WithModelOptions(o ModelOptions) Option { return func(rt *Runtime) { rt.options = o } }

// WithModelTimeout bounds one backend generate call.
func WithModelTimeout(d time.Duration) Option { return func(rt *Runtime) { rt.modelTimeout = d } }

// WithToolTimeout bounds one tool invocation.
func WithToolTimeout(d time.Duration) Option { return func(rt *Runtime) { rt.toolTimeout = d } }

// WithMemoryTimeout bounds one memory boundary call.
func WithMemoryTimeout(d time.Duration) Option { return func(rt *Runtime) { rt.memoryTimeout = d } }

// WithNodeBudget overrides the per-turn node visit budget.
func WithNodeBudget(n int) Option { return func(rt *Runtime) { rt.maxVisits = n } }

// WithToolCallLimit overrides the per-turn tool call cap.
func WithToolCallLimit(n int) Option { return func(rt *Runtime) { rt.toolLimit = n } }

// New creates a Runtime around a model backend.
func New(backend ModelBackend, opts ...Option) (*Runtime, error) {
	if backend == nil {
		return nil, errors.New("relay: nil model backend")
	}
	rt := &Runtime{
		backend:       backend,
		contract:      DefaultSystemContract,
		modelTimeout:  DefaultModelCallTimeout,
		toolTimeout:   DefaultToolCallTimeout,
		memoryTimeout: DefaultMemoryOpTimeout,
		maxVisits:     MaxNodeVisitsPerTurn,
		toolLimit:     MaxToolCallsPerTurn,
		alarms:        &InvariantAlarms{},
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.registry == nil {
		rt.registry = NewRegistry()
	}
	if rt.store == nil {
		rt.store = NewMemStore()
	}
	if rt.tracer == nil {
		rt.tracer = NoopTracer{}
	}
	if rt.logger == nil {
		rt.logger = nopLogger
	}
	if rt.maxVisits < 3 {
		return nil, fmt.Errorf("relay: node budget %d cannot fit a turn", rt.maxVisits)
	}

	rt.nDecide = decideNode{toolLimit: rt.toolLimit}
	rt.nPreprocess = preprocessNode{rt: rt}
	rt.nMemoryRead = memoryReadNode{rt: rt}
	rt.nMemoryWrite = memoryWriteNode{rt: rt}
	rt.nModelCall = modelCallNode{rt: rt}
	rt.nToolExec = toolExecutionNode{rt: rt}
	rt.nFormat = formatNode{rt: rt}
	return rt, nil
}

// Alarms exposes the runtime's invariant counters.
func (rt *Runtime) Alarms() *InvariantAlarms { return rt.alarms }

// Invoke runs one turn to completion. Turns that degrade internally still
// return Status "success" with a best-effort output; Status "error" is
// reserved for a turn that could not produce a response at all, and even
// then the fallback output is delivered. Identifiers echo back verbatim.
func (rt *Runtime) Invoke(ctx context.Context, req TurnRequest) (res TurnResult, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error("turn panicked", "err", fmt.Sprint(r),
				"conversation_id", req.ConversationID, "trace_id", req.TraceID)
			res = TurnResult{
				Output:         degradedOutput,
				Status:         TurnStatusError,
				ConversationID: req.ConversationID,
				TraceID:        req.TraceID,
			}
			err = nil
		}
	}()

	s := rt.runTurn(ctx, req)
	res = TurnResult{
		Output:         s.FormattedResponse,
		Status:         TurnStatusSuccess,
		ConversationID: req.ConversationID,
		TraceID:        req.TraceID,
	}
	if res.Output == "" {
		res.Output = degradedOutput
	}
	rt.logger.Info("turn completed",
		"conversation_id", req.ConversationID,
		"trace_id", req.TraceID,
		"status", res.Status,
		"tool_calls", s.ToolCallCount,
		"memory_write_status", string(s.MemoryWriteStatus),
		"duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// nopLogger is a logger that discards all output. Used when WithLogger is
// not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
