package relay

import (
	"fmt"
	"strings"
)

// DefaultSystemContract is the behavioral contract delivered on the
// backend's system channel. It travels separately from the assembled user
// prompt and is never concatenated into it.
const DefaultSystemContract = `You are a concise, reliable assistant.
Ground answers in the provided memory and tool context when present, and say so when you do not know.
To use a tool, reply with exactly one line of the form [TOOL_CALL]{"name": "<tool>", "arguments": {...}} and no other text.
Never fabricate tool output.`

// AssemblePrompt builds the structured user prompt for a model call. Pure:
// same inputs, same string.
//
// Each context block is capped on its own (MaxMemoryContextChars,
// MaxToolContextChars), then the two are capped together at
// MaxCombinedInjectChars with tool context taking priority: memory gets
// whatever budget tools leave behind. Empty blocks are omitted along with
// their headers; the prompt always ends with the answer cue.
func AssemblePrompt(memoryContext, toolContext, userText string) string {
	memoryContext = TruncateRunes(memoryContext, MaxMemoryContextChars)
	toolContext = TruncateRunes(toolContext, MaxToolContextChars)

	toolLen := len([]rune(toolContext))
	if toolLen > MaxCombinedInjectChars {
		toolContext = TruncateRunes(toolContext, MaxCombinedInjectChars)
		toolLen = MaxCombinedInjectChars
	}
	if budget := MaxCombinedInjectChars - toolLen; len([]rune(memoryContext)) > budget {
		memoryContext = TruncateRunes(memoryContext, budget)
	}

	var b strings.Builder
	if memoryContext != "" {
		b.WriteString("Memory Context:\n")
		b.WriteString(memoryContext)
		b.WriteString("\n\n")
	}
	if toolContext != "" {
		b.WriteString("Tool Results:\n")
		b.WriteString(toolContext)
		b.WriteString("\n\n")
	}
	b.WriteString("User:\n")
	b.WriteString(userText)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// FormatToolCatalog renders tool definitions for the system channel so
// backends without native tool calling can emit the [TOOL_CALL] marker.
// Returns "" when no tools are registered.
func FormatToolCatalog(defs []ToolDefinition) string {
	if len(defs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, def := range defs {
		fmt.Fprintf(&b, "- %s: %s", def.Name, def.Description)
		if len(def.InputSchema.Required) > 0 {
			fmt.Fprintf(&b, " (required: %s)", strings.Join(def.InputSchema.Required, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
