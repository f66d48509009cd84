// Package jsonx recovers structured JSON from free-form LLM output.
//
// Models wrap JSON in code fences, prose, or markdown, and sometimes
// truncate mid-object. The extractor is intentionally forgiving: it tries
// strategies in order of strictness and returns the first success.
package jsonx

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// Extract recovers a JSON object from v.
//
// Strategies, in order:
//  1. v is already a map — returned as-is.
//  2. Direct parse of the full text.
//  3. First fenced code block (```json or unlabelled); parse its interior.
//  4. Bracket-matching scan from the first '{', respecting strings and
//     backslash escapes.
//  5. Question heuristic: if the text contains '?', synthesize a question
//     object from the first line carrying one.
//
// Returns (nil, false) when nothing parsable is found.
func Extract(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case nil:
		return nil, false
	case string:
		return extractFromText(t)
	case []byte:
		return extractFromText(string(t))
	default:
		return nil, false
	}
}

func extractFromText(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	// Direct parse.
	if obj, ok := parseObject(text); ok {
		return obj, true
	}

	// Fenced code blocks. Prefer the first block that parses.
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		if obj, ok := parseObject(strings.TrimSpace(m[1])); ok {
			return obj, true
		}
		// A fenced block may itself carry prose around the object.
		if candidate := scanBalancedObject(m[1]); candidate != "" {
			if obj, ok := parseObject(candidate); ok {
				return obj, true
			}
		}
	}

	// Bracket-matching scan over the raw text.
	if candidate := scanBalancedObject(text); candidate != "" {
		if obj, ok := parseObject(candidate); ok {
			return obj, true
		}
	}

	// Heuristic fallback for conversational question outputs.
	if obj, ok := questionFallback(text); ok {
		return obj, true
	}

	return nil, false
}

func parseObject(text string) (map[string]any, bool) {
	if !strings.HasPrefix(strings.TrimSpace(text), "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// scanBalancedObject returns the substring from the first '{' to its
// matching close brace, ignoring braces inside JSON strings. Returns ""
// when the text has no '{' or the object never closes (truncation).
func scanBalancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
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
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// questionFallback synthesizes a question object from conversational
// output. Used by question-generating paths where losing the question is
// worse than losing the structure around it.
func questionFallback(text string) (map[string]any, bool) {
	if !strings.Contains(text, "?") {
		return nil, false
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "?") {
			return map[string]any{
				"question":          line,
				"question_type":     "open_ended",
				"internal_analysis": map[string]any{"extracted": true},
			}, true
		}
	}
	return nil, false
}

// ExtractString is Extract over text only; convenience for call sites
// holding provider content.
func ExtractString(text string) (map[string]any, bool) {
	return extractFromText(text)
}
