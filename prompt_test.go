package relay

import (
	"strings"
	"testing"
)

func TestAssemblePromptOmitsEmptyBlocks(t *testing.T) {
	got := AssemblePrompt("", "", "hi there")
	if strings.Contains(got, "Memory Context:") || strings.Contains(got, "Tool Results:") {
		t.Errorf("empty blocks rendered headers: %q", got)
	}
	if !strings.HasPrefix(got, "User:\nhi there") {
		t.Errorf("user text misplaced: %q", got)
	}
	if !strings.HasSuffix(got, "Answer:") {
		t.Errorf("missing answer cue: %q", got)
	}
}

func TestAssemblePromptBlockOrder(t *testing.T) {
	got := AssemblePrompt("color: blue", "[1] result", "question")
	mem := strings.Index(got, "Memory Context:")
	tool := strings.Index(got, "Tool Results:")
	user := strings.Index(got, "User:")
	if mem < 0 || tool < 0 || user < 0 {
		t.Fatalf("block missing: %q", got)
	}
	if !(mem < tool && tool < user) {
		t.Errorf("blocks out of order: mem=%d tool=%d user=%d", mem, tool, user)
	}
}

func TestAssemblePromptDeterministic(t *testing.T) {
	a := AssemblePrompt("m", "t", "u")
	b := AssemblePrompt("m", "t", "u")
	if a != b {
		t.Error("same inputs produced different prompts")
	}
}

func TestAssemblePromptCombinedCapPrefersTool(t *testing.T) {
	mem := strings.Repeat("m", MaxCombinedInjectChars)
	tool := strings.Repeat("t", MaxCombinedInjectChars)
	got := AssemblePrompt(mem, tool, "u")

	// Tool context fills the combined budget; memory gets nothing and its
	// header disappears with it.
	if strings.Contains(got, "Memory Context:") {
		t.Errorf("memory block survived a zero budget: %d chars", len(got))
	}
	if !strings.Contains(got, strings.Repeat("t", MaxCombinedInjectChars)) {
		t.Error("tool context truncated below the combined cap")
	}
}

func TestAssemblePromptSplitsRemainingBudget(t *testing.T) {
	tool := strings.Repeat("t", 1000)
	mem := strings.Repeat("m", 1000)
	got := AssemblePrompt(mem, tool, "u")
	wantMem := MaxCombinedInjectChars - 1000
	if !strings.Contains(got, strings.Repeat("m", wantMem)) {
		t.Errorf("memory should keep %d chars of budget", wantMem)
	}
	if strings.Contains(got, strings.Repeat("m", wantMem+1)) {
		t.Error("memory exceeded leftover budget")
	}
}

func TestFormatToolCatalog(t *testing.T) {
	got := FormatToolCatalog([]ToolDefinition{
		{Name: "web_search", Description: "search the web", InputSchema: InputSchema{Required: []string{"query"}}},
		{Name: "fetch_page", Description: "fetch a page"},
	})
	if !strings.Contains(got, "- web_search: search the web (required: query)") {
		t.Errorf("catalog entry malformed: %q", got)
	}
	if !strings.Contains(got, "- fetch_page: fetch a page") {
		t.Errorf("catalog entry malformed: %q", got)
	}
	if FormatToolCatalog(nil) != "" {
		t.Error("empty catalog should be empty string")
	}
}
