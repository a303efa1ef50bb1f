// Package sanitize cleans free-text labels read from data files (unit IDs,
// brain-region names) before they are echoed back to MCP clients. It strips
// control characters and XML/HTML tags so a crafted population file cannot
// smuggle instructions into a model's context.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxLabelLength is the maximum length of a sanitized label in bytes.
const MaxLabelLength = 128

var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reTripleBacktick matches code fences.
	reTripleBacktick = regexp.MustCompile("```+")

	reWhitespace = regexp.MustCompile(`\s+`)
)

// Label returns input as a single trimmed line: control characters and tags
// removed, code fences collapsed, runs of whitespace folded to one space,
// and the result truncated to MaxLabelLength.
func Label(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = reWhitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if len(s) > MaxLabelLength {
		s = truncate(s, MaxLabelLength)
	}
	return s
}

// stripControlChars removes ASCII control characters (0x00-0x1F, 0x7F),
// turning newlines and tabs into spaces.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
