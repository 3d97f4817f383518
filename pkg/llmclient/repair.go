package llmclient

import (
	"bytes"
	"strings"
)

// repairJSON makes a best-effort attempt to turn slightly malformed LLM
// output into parseable JSON: stripping markdown code fences, trimming
// leading/trailing prose around the outermost object, and appending the
// closing braces a truncated object is missing. An unterminated string
// or an unclosed array is not repaired. It never fails — callers still run the
// result through json.Unmarshal and report ErrResponseInvalid
// themselves if that fails too.
func repairJSON(data []byte) []byte {
	text := string(data)
	text = stripCodeFences(text)
	text = extractOutermostObject(text)
	return []byte(text)
}

// RepairAndExtract is the exported form used by pipeline phases to
// recover a JSON object embedded in raw LLM response text.
func RepairAndExtract(text string) []byte {
	return repairJSON([]byte(text))
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop an optional language tag on the fence's opening line
		// (e.g. "```json").
		firstLine := s[:idx]
		if !strings.ContainsAny(firstLine, "{}[]") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractOutermostObject returns the substring from the first '{' to
// its matching closing '}', tolerating unbalanced trailing braces by
// tracking nesting depth and stopping once it returns to zero.
func extractOutermostObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	// Unbalanced — truncated mid-object. Close it out as a best effort.
	var b bytes.Buffer
	b.WriteString(s[start:])
	for i := 0; i < depth; i++ {
		b.WriteByte('}')
	}
	return b.String()
}
