package relay

import "testing"

func TestNormalizeInput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trims whitespace", "  hello  ", "hello"},
		{"strips zero-width space", "he​llo", "he llo"},
		{"strips byte order mark", "he\xef\xbb\xbfllo", "he llo"},
		{"removes soft hyphen", "co­operate", "cooperate"},
		{"folds fullwidth latin", "ｈｅｌｌｏ", "hello"},
		{"folds ligature", "ﬁle", "file"},
		{"keeps newline and tab", "a\nb\tc", "a\nb\tc"},
		{"drops other control chars", "a\x00b\x07c", "abc"},
		{"empty stays empty", "", ""},
		{"plain text untouched", "what is the weather?", "what is the weather?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeInput(tt.in); got != tt.want {
				t.Errorf("NormalizeInput(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeInputDeterministic(t *testing.T) {
	in := "ｒｅｍｅｍｂｅｒ​ that"
	if NormalizeInput(in) != NormalizeInput(in) {
		t.Error("normalization not deterministic")
	}
}
