package plaintext

import (
	"strings"
	"testing"
)

func TestRenderBold(t *testing.T) {
	result := Render("This is **bold** text")
	if result != "This is bold text" {
		t.Errorf("expected flattened bold, got: %q", result)
	}
}

func TestRenderItalic(t *testing.T) {
	result := Render("This is *italic* text")
	if result != "This is italic text" {
		t.Errorf("expected flattened italic, got: %q", result)
	}
}

func TestRenderCodeSpan(t *testing.T) {
	result := Render("Use `fmt.Println` here")
	if result != "Use fmt.Println here" {
		t.Errorf("expected flattened code span, got: %q", result)
	}
}

func TestRenderHeading(t *testing.T) {
	result := Render("### Section Title\n\nbody text")
	if !strings.HasPrefix(result, "Section Title") {
		t.Errorf("expected heading text first, got: %q", result)
	}
	if !strings.Contains(result, "body text") {
		t.Errorf("expected body text, got: %q", result)
	}
	if strings.Contains(result, "#") {
		t.Errorf("heading marker leaked through: %q", result)
	}
}

func TestRenderCodeBlock(t *testing.T) {
	result := Render("```go\nfunc main() {}\n```")
	if !strings.Contains(result, "func main() {}") {
		t.Errorf("expected code content, got: %q", result)
	}
	if strings.Contains(result, "```") {
		t.Errorf("fence leaked through: %q", result)
	}
}

func TestRenderLink(t *testing.T) {
	result := Render("[click here](https://example.com)")
	if !strings.Contains(result, "click here") {
		t.Errorf("expected link text, got: %q", result)
	}
	if !strings.Contains(result, "(https://example.com)") {
		t.Errorf("expected destination in parens, got: %q", result)
	}
}

func TestRenderList(t *testing.T) {
	result := Render("- first\n- second")
	if !strings.Contains(result, "- first") || !strings.Contains(result, "- second") {
		t.Errorf("expected bulleted items, got: %q", result)
	}
}

func TestRenderOrderedList(t *testing.T) {
	result := Render("1. first\n2. second\n3. third")
	for _, want := range []string{"1. first", "2. second", "3. third"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q, got: %q", want, result)
		}
	}
}

func TestRenderStrikethrough(t *testing.T) {
	result := Render("This is ~~gone~~ text")
	if result != "This is gone text" {
		t.Errorf("expected flattened strikethrough, got: %q", result)
	}
}

func TestRenderPlainPassthrough(t *testing.T) {
	result := Render("no markup at all")
	if result != "no markup at all" {
		t.Errorf("plain text changed: %q", result)
	}
}

func TestRenderEmpty(t *testing.T) {
	if got := Render(""); got != "" {
		t.Errorf("expected empty output, got: %q", got)
	}
}
