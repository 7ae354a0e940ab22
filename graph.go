package relay

import (
	"context"
	"time"
)

// Canonical node names. They appear verbatim as span names; dashboards and
// tests key on them.
const (
	NodeStateInit   = "state_init_node"
	NodeDecision    = "decision_node"
	NodePreprocess  = "preprocess_node"
	NodeMemoryRead  = "memory_read_node"
	NodeModelCall   = "model_call_node"
	NodeToolExec    = "tool_execution_node"
	NodeMemoryWrite = "memory_write_node"
	NodeFormat      = "format_response_node"
)

// Node is one unit of turn work. Run reads the state and returns a partial
// update; it never mutates the state it was handed and never returns an
// error. Whatever goes wrong becomes a state field for the decision node
// to interpret.
type Node interface {
	Name() string
	Run(ctx context.Context, s TurnState) StateDelta
}

// initialTurnState seeds the record for one turn. Identifiers come from
// the request verbatim; transport shims generate missing ones before
// entry, the core never does.
func initialTurnState(req TurnRequest, now int64) TurnState {
	it := req.InputType
	if it == "" {
		it = InputText
	}
	return TurnState{
		ConversationID:  req.ConversationID,
		TraceID:         req.TraceID,
		UserID:          req.UserID,
		CreatedAt:       now,
		RawInput:        req.Input,
		InputType:       it,
		MediaURL:        req.MediaURL,
		MemoryAvailable: true,
	}
}

// runTurn drives one turn: state-init once, then decision and the decreed
// node in alternation, until format completes the turn or the visit budget
// forces it. Nodes execute strictly sequentially on the calling goroutine;
// each visit is one span.
func (rt *Runtime) runTurn(ctx context.Context, req TurnRequest) TurnState {
	tm := TraceMetadata{TraceID: req.TraceID, ConversationID: req.ConversationID, UserID: req.UserID}

	visits := 0
	visit := func(name string, f func() StateDelta) StateDelta {
		visits++
		h := beginSpan(ctx, rt.tracer, rt.alarms, name, map[string]any{"visit": visits}, tm)
		d := f()
		finishSpan(ctx, rt.tracer, rt.alarms, h, "ok", map[string]any{"command": string(d.Command)})
		return d
	}

	var s TurnState
	visit(NodeStateInit, func() StateDelta {
		s = initialTurnState(req, time.Now().Unix())
		return StateDelta{}
	})

	for !s.Done {
		// A decision plus its node costs two visits; keep one in reserve
		// so the forced format below always fits the budget.
		if visits >= rt.maxVisits-1 {
			rt.logger.Warn("node visit budget exhausted, forcing format",
				"visits", visits, "conversation_id", s.ConversationID)
			s = visit(NodeFormat, func() StateDelta { return rt.nFormat.Run(ctx, s) }).Apply(s)
			break
		}

		s = visit(NodeDecision, func() StateDelta { return rt.nDecide.Run(ctx, s) }).Apply(s)

		// A directive the per-turn limit can no longer honor is dropped at
		// routing; surface the violation.
		if s.Command != CommandExecuteTool && s.ModelResponse != nil &&
			s.ModelResponse.ToolCall != nil && s.ToolCallCount >= rt.toolLimit {
			rt.logger.Warn("tool call discarded: per-turn limit reached",
				"tool", s.ModelResponse.ToolCall.Name, "count", s.ToolCallCount)
		}

		node := rt.nodeFor(s.Command)
		s = visit(node.Name(), func() StateDelta { return node.Run(ctx, s) }).Apply(s)
	}
	return s
}

func (rt *Runtime) nodeFor(cmd Command) Node {
	switch cmd {
	case CommandPreprocess:
		return rt.nPreprocess
	case CommandMemoryRead:
		return rt.nMemoryRead
	case CommandCallModel:
		return rt.nModelCall
	case CommandExecuteTool:
		return rt.nToolExec
	case CommandMemoryWrite:
		return rt.nMemoryWrite
	default:
		return rt.nFormat
	}
}
