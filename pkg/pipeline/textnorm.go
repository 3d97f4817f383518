package pipeline

import (
	"regexp"
	"strings"
	"unicode"
)

var duplicateBlankLines = regexp.MustCompile(`\n{3,}`)
var duplicateSpaces = regexp.MustCompile(`[ \t]{2,}`)

// NormalizeText implements Phase 1 step 1 (spec §4.5): strip control
// characters, collapse duplicate blanks, and trim.
func NormalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	cleaned := b.String()
	cleaned = duplicateSpaces.ReplaceAllString(cleaned, " ")
	cleaned = duplicateBlankLines.ReplaceAllString(cleaned, "\n\n")
	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
