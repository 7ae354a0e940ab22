package relay

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// degradedOutput is delivered when a turn ends without a usable model
// response: backend failure, budget exhaustion, or an all-tool-call turn.
const degradedOutput = "Sorry, something went wrong before an answer was ready. Please try again."

func traceMeta(s TurnState) TraceMetadata {
	return TraceMetadata{TraceID: s.TraceID, ConversationID: s.ConversationID, UserID: s.UserID}
}

// --- Preprocess ---

// preprocessNode normalizes raw input and records the effective modality.
// Unknown modalities degrade to text; the node never fails a turn.
type preprocessNode struct{ rt *Runtime }

func (preprocessNode) Name() string { return NodePreprocess }

func (n preprocessNode) Run(_ context.Context, s TurnState) StateDelta {
	it := s.InputType
	switch it {
	case InputText, InputAudio, InputImage:
	default:
		it = InputText
	}
	return StateDelta{Preprocessed: &PreprocessResult{
		Text:      NormalizeInput(s.RawInput),
		InputType: it,
		MediaURL:  s.MediaURL,
	}}
}

// --- Memory read ---

// memoryReadNode makes the turn's single recall call. Boundary statuses
// map onto state fields; a panicking store degrades availability and
// nothing else. The result is only recorded on success.
type memoryReadNode struct{ rt *Runtime }

func (memoryReadNode) Name() string { return NodeMemoryRead }

func (n memoryReadNode) Run(ctx context.Context, s TurnState) StateDelta {
	d := StateDelta{
		MemoryReadAttempted:  ptr(true),
		MemoryReadAuthorized: ptr(false),
	}

	res, panicked := n.read(ctx, s)
	if panicked {
		d.MemoryAvailable = ptr(false)
		return d
	}

	switch res.Status {
	case ReadSuccess:
		d.MemoryRead = &res
		d.MemoryContext = ptr(formatMemoryContext(res.Data))
	case ReadUnavailable:
		d.MemoryAvailable = ptr(false)
	}
	// not_found and unauthorized leave no result; availability holds
	return d
}

func (n memoryReadNode) read(ctx context.Context, s TurnState) (res ReadResult, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			n.rt.logger.Error("memory read panicked", "err", fmt.Sprint(r))
			panicked = true
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, n.rt.memoryTimeout)
	defer cancel()
	return n.rt.store.Read(ctx, s.ConversationID, TurnMemoryKey, s.MemoryReadAuthorized), false
}

// --- Memory write ---

// memoryWriteNode makes the turn's single persistence call. It records
// the boundary's status verbatim; only a panic degrades availability.
// Nothing here touches the output fields.
type memoryWriteNode struct{ rt *Runtime }

func (memoryWriteNode) Name() string { return NodeMemoryWrite }

func (n memoryWriteNode) Run(ctx context.Context, s TurnState) StateDelta {
	d := StateDelta{MemoryWriteAuthorized: ptr(false)}

	fact := s.RawInput
	if s.Preprocessed != nil {
		fact = s.Preprocessed.Text
	}
	payload := map[string]any{
		"fact":        fact,
		"recorded_at": time.Now().Unix(),
	}
	if s.ModelResponse != nil && s.ModelResponse.Status == ModelStatusSuccess {
		payload["response"] = s.ModelResponse.Output
	}

	emitEvent(ctx, n.rt.tracer, n.rt.alarms, EventMemoryWriteAttempted,
		map[string]any{"key": TurnMemoryKey}, traceMeta(s))

	res, panicked := n.write(ctx, s, payload)
	if panicked {
		d.MemoryWriteStatus = WriteFailed
		d.MemoryAvailable = ptr(false)
		return d
	}
	if res.Status != WriteSuccess {
		n.rt.logger.Warn("memory write not persisted", "status", res.Status, "err", res.Err)
	}
	d.MemoryWriteStatus = res.Status
	return d
}

func (n memoryWriteNode) write(ctx context.Context, s TurnState, payload map[string]any) (res WriteResult, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			n.rt.logger.Error("memory write panicked", "err", fmt.Sprint(r))
			panicked = true
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, n.rt.memoryTimeout)
	defer cancel()
	return n.rt.store.Write(ctx, s.ConversationID, TurnMemoryKey, payload, s.MemoryWriteAuthorized), false
}

// --- Model call ---

// modelCallNode assembles the prompt, calls the backend, and lifts any
// tool directive onto the response. Backend failures are recorded on the
// state, never raised.
type modelCallNode struct{ rt *Runtime }

func (modelCallNode) Name() string { return NodeModelCall }

func (n modelCallNode) Run(ctx context.Context, s TurnState) StateDelta {
	userText := s.RawInput
	if s.Preprocessed != nil {
		userText = s.Preprocessed.Text
	}
	prompt := AssemblePrompt(s.MemoryContext, s.ToolContext, userText)

	system := n.rt.contract
	if catalog := FormatToolCatalog(n.rt.registry.Definitions()); catalog != "" {
		system += "\n\n" + catalog
	}

	tm := traceMeta(s)
	emitEvent(ctx, n.rt.tracer, n.rt.alarms, EventModelCallAttempted,
		map[string]any{"backend": n.rt.backend.Name(), "prompt_chars": len([]rune(prompt))}, tm)

	callCtx, cancel := context.WithTimeout(ctx, n.rt.modelTimeout)
	start := time.Now()
	resp := generateGuarded(callCtx, n.rt.backend, ModelRequest{
		Task:         "conversation",
		Prompt:       prompt,
		SystemPrompt: system,
		Options:      n.rt.options,
	})
	cancel()

	emitEvent(ctx, n.rt.tracer, n.rt.alarms, EventModelCallCompleted,
		map[string]any{"status": resp.Status, "duration_ms": time.Since(start).Milliseconds()}, tm)

	if resp.Status == ModelStatusSuccess && resp.ToolCall == nil {
		if tc, remainder, ok := ParseToolCall(resp.Output); ok {
			resp.ToolCall = tc
			resp.Output = remainder
		}
	}
	if resp.ToolCall != nil {
		emitEvent(ctx, n.rt.tracer, n.rt.alarms, EventToolCallDetected,
			map[string]any{"tool": resp.ToolCall.Name}, tm)
	}
	if resp.Status != ModelStatusSuccess {
		n.rt.logger.Warn("model call failed", "backend", n.rt.backend.Name(), "status", resp.Status)
	}
	return StateDelta{ModelResponse: &resp}
}

// --- Tool execution ---

// toolExecutionNode runs at most one tool call per turn. Its steps are
// fixed: limit check, dispatch through the registry, sanitize, format the
// tool context, retire the consumed response so routing returns to the
// model. It never touches memory fields or authorization latches.
type toolExecutionNode struct{ rt *Runtime }

func (toolExecutionNode) Name() string { return NodeToolExec }

func (n toolExecutionNode) Run(ctx context.Context, s TurnState) StateDelta {
	if s.ModelResponse == nil || s.ModelResponse.ToolCall == nil {
		return StateDelta{}
	}
	tc := s.ModelResponse.ToolCall
	tm := traceMeta(s)

	// Limit check before anything runs. Entered at the cap, the node
	// retires the directive and contributes an empty context.
	if s.ToolCallCount >= n.rt.toolLimit {
		n.rt.logger.Warn("tool call dropped: per-turn limit reached",
			"tool", tc.Name, "count", s.ToolCallCount)
		emitEvent(ctx, n.rt.tracer, n.rt.alarms, EventToolExecutionFailed,
			map[string]any{"tool": tc.Name, "reason": "tool_call_limit"}, tm)
		return StateDelta{ToolContext: ptr(""), ClearToolCall: true}
	}

	emitEvent(ctx, n.rt.tracer, n.rt.alarms, EventToolExecutionStarted,
		map[string]any{"tool": tc.Name, "arg_count": len(tc.Arguments)}, tm)

	execCtx, cancel := context.WithTimeout(WithTraceMeta(ctx, tm), n.rt.toolTimeout)
	res := n.rt.registry.Execute(execCtx, tc.Name, tc.Arguments)
	cancel()

	if res.Success {
		emitEvent(ctx, n.rt.tracer, n.rt.alarms, EventToolExecutionCompleted,
			map[string]any{"tool": tc.Name, "duration_ms": res.ExecutionTimeMS}, tm)
	} else {
		n.rt.logger.Warn("tool execution failed", "tool", tc.Name, "err", res.Error)
		emitEvent(ctx, n.rt.tracer, n.rt.alarms, EventToolExecutionFailed,
			map[string]any{"tool": tc.Name, "reason": res.Error}, tm)
	}

	var items []ResultItem
	if res.Success {
		items = SanitizeResults(CoerceResults(res.Data))
	}
	return StateDelta{
		AppendToolResults:  items,
		ToolContext:        ptr(FormatToolContext(items)),
		ToolCalls:          1,
		ClearModelResponse: true,
	}
}

// --- Format ---

// formatNode is the terminal node. It selects the deliverable output,
// falling back to the degraded message when the turn produced nothing,
// and marks the turn done. Every turn ends here, whatever happened before.
type formatNode struct{ rt *Runtime }

func (formatNode) Name() string { return NodeFormat }

func (n formatNode) Run(_ context.Context, s TurnState) StateDelta {
	final := s.FinalOutput
	if final == "" && s.ModelResponse != nil && s.ModelResponse.Status == ModelStatusSuccess {
		final = s.ModelResponse.Output
	}
	if strings.TrimSpace(final) == "" {
		final = degradedOutput
	}
	return StateDelta{
		FinalOutput: ptr(final),
		Formatted:   ptr(strings.TrimSpace(final)),
		Done:        true,
	}
}

// formatMemoryContext renders recalled data for prompt injection: sorted
// keys, one per line, bounded by the memory context cap.
func formatMemoryContext(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %v", k, data[k])
	}
	return TruncateRunes(b.String(), MaxMemoryContextChars)
}
