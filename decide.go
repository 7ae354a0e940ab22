package relay

import (
	"context"
	"regexp"
	"strings"
)

// --- Warrant predicates ---

// The two predicates below decide when a turn touches memory. They look
// only at the normalized input text, so routing stays deterministic and
// identical whether the memory backend is live, broken, or disabled.

var recallRe = regexp.MustCompile(
	`(?i)\b(do you remember|what did i|recall|last time|earlier|previously|we (talked|discussed)|my name)\b`)

var retentionRe = regexp.MustCompile(
	`(?i)\b(remember|don'?t forget|note that|keep in mind|i (like|love|prefer|hate)|my \w+ is)\b`)

// recallWarranted reports whether the input references prior context.
func recallWarranted(text string) bool {
	return recallRe.MatchString(text)
}

// retentionWarranted reports whether the input carries a fact worth
// persisting: an explicit retention request or a first-person durable
// statement. Inputs under ten runes are noise, never facts. Recall
// questions ("do you remember ...") contain retention vocabulary but
// carry no fact, so anything recall-warranted never warrants a write:
// a write here would replace the stored fact with the question asking
// for it.
func retentionWarranted(text string) bool {
	if len([]rune(strings.TrimSpace(text))) < 10 {
		return false
	}
	if recallWarranted(text) {
		return false
	}
	return retentionRe.MatchString(text)
}

// --- Decision node ---

// decideNode selects the next command from the state alone. Rules are
// evaluated strictly in order and the first match wins; authorization
// latches are set here and nowhere else. The node never calls a boundary
// and never sees memory contents, only presence and status fields.
type decideNode struct {
	toolLimit int // per-turn tool call cap, MaxToolCallsPerTurn by default
}

func (decideNode) Name() string { return NodeDecision }

func (n decideNode) Run(_ context.Context, s TurnState) StateDelta {
	// 1. nothing normalized yet
	if s.Preprocessed == nil {
		return StateDelta{Command: CommandPreprocess}
	}

	// 2. one recall attempt, only when the input asks for prior context
	if s.MemoryRead == nil && !s.MemoryReadAttempted && recallWarranted(s.Preprocessed.Text) {
		return StateDelta{Command: CommandMemoryRead, MemoryReadAuthorized: ptr(true)}
	}

	// 3. no answer yet
	if s.ModelResponse == nil {
		return StateDelta{Command: CommandCallModel}
	}

	// 4. pending tool directive, still within the per-turn budget. Any
	// write latch left pending is dropped before the hop.
	if s.ModelResponse.ToolCall != nil && s.ToolCallCount < n.toolLimit {
		return StateDelta{Command: CommandExecuteTool, MemoryWriteAuthorized: ptr(false)}
	}

	// 5. one write attempt, only when the input carries a durable fact
	if s.MemoryWriteStatus == "" && retentionWarranted(s.Preprocessed.Text) {
		return StateDelta{Command: CommandMemoryWrite, MemoryWriteAuthorized: ptr(true)}
	}

	// 6. nothing left to do
	return StateDelta{Command: CommandFormat}
}

// compile-time check
var _ Node = decideNode{}
