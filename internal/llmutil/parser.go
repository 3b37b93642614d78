// internal/llmutil/parser.go
package llmutil

import (
	"regexp"
	"strings"
)

var (
	// toolCallRegex captures the interior of the first <tool_call> block.
	toolCallRegex = regexp.MustCompile(`(?s)<tool_call>\s*(.*?)\s*</tool_call>`)

	quoteReplacer = strings.NewReplacer("“", `"`, "”", `"`)
)

// TaggedBlock returns the trimmed interior of the first <tool_call>...</tool_call>
// block in text.
func TaggedBlock(text string) (string, bool) {
	matches := toolCallRegex.FindStringSubmatch(text)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// JSONCandidates returns every top-level balanced {...} substring of text in
// the order encountered. Braces inside double-quoted strings do not count, and
// a backslash escapes the character after it while inside a string. The quote
// state is tracked across the whole text, including prose between objects.
func JSONCandidates(text string) []string {
	var (
		candidates []string
		depth      int
		start      = -1
		inString   bool
		escaped    bool
	)

	// All delimiters are ASCII, so scanning bytes is safe for UTF-8 input.
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				candidates = append(candidates, text[start:i+1])
			}
		}
	}
	return candidates
}

// Candidates lists the strings worth decoding as an action payload, in
// priority order: the tagged block interior first, then every brace candidate
// from the full text. Each candidate has typographic double quotes replaced.
func Candidates(text string) []string {
	var out []string
	if block, ok := TaggedBlock(text); ok {
		out = append(out, NormalizeQuotes(block))
	}
	for _, c := range JSONCandidates(text) {
		out = append(out, NormalizeQuotes(c))
	}
	return out
}

// NormalizeQuotes replaces curly double quotes with ASCII quotes.
func NormalizeQuotes(s string) string {
	return quoteReplacer.Replace(s)
}

// Truncate shortens s to at most maxLen bytes plus an ellipsis, for logging
// model output.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	// Simple truncation; does not account for rune boundaries but sufficient for logging.
	return s[:maxLen] + "..."
}
