package relay

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// zeroWidthChars are Unicode zero-width and invisible characters commonly
// used to smuggle content past string matching.
var zeroWidthChars = strings.NewReplacer(
	"\u200b", " ", // zero-width space
	"\u200c", " ", // zero-width non-joiner
	"\u200d", " ", // zero-width joiner
	"\ufeff", " ", // zero-width no-break space (BOM)
	"\u2060", " ", // word joiner
	"\u180e", " ", // Mongolian vowel separator
	"\u00ad", "", // soft hyphen (removed, not replaced)
)

// NormalizeInput prepares raw user input for routing and prompting:
// zero-width characters are stripped, the text is NFKC-normalized
// (fullwidth Latin, ligatures, mathematical alphanumerics), control
// characters other than newline and tab are removed, and surrounding
// whitespace is trimmed. Deterministic; never fails.
func NormalizeInput(s string) string {
	cleaned := zeroWidthChars.Replace(s)
	cleaned = norm.NFKC.String(cleaned)
	cleaned = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, cleaned)
	return strings.TrimSpace(cleaned)
}
