package ai

import (
	"encoding/json"
	"strings"

	aierrors "github.com/hrygo/agentcore/internal/errors"
)

// ParseStage reports which layer of ParseJSON produced the value.
type ParseStage int

const (
	// ParseFailed means neither layer produced a value.
	ParseFailed ParseStage = iota
	// ParseStrict means the whole response was valid JSON.
	ParseStrict
	// ParseExtracted means JSON was recovered from surrounding prose or code fences.
	ParseExtracted
)

// ParseJSON decodes an LLM response into v.
// It first tries a strict decode of the trimmed text, then extracts the first
// balanced JSON object or array. On failure it returns a RESPONSE_PARSE_ERROR
// and leaves the caller to apply its typed fallback.
func ParseJSON(content string, v any) (ParseStage, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ParseFailed, aierrors.ResponseParseError("empty response", nil)
	}

	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return ParseStrict, nil
	}

	extracted := ExtractJSON(trimmed)
	if extracted == "" {
		return ParseFailed, aierrors.ResponseParseError("no json found in response", nil).
			WithContext("response", Truncate(trimmed, 200))
	}
	if err := json.Unmarshal([]byte(extracted), v); err != nil {
		return ParseFailed, aierrors.ResponseParseError("invalid json in response", err).
			WithContext("response", Truncate(trimmed, 200))
	}
	return ParseExtracted, nil
}

// ExtractJSON returns the first balanced JSON object or array in text,
// ignoring brackets inside string literals. Returns "" if none is complete.
func ExtractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.IndexAny(text, "{[")
	for start != -1 {
		if end := matchBracket(text, start); end != -1 {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate
			}
		}
		next := strings.IndexAny(text[start+1:], "{[")
		if next == -1 {
			break
		}
		start += next + 1
	}
	return ""
}

// matchBracket returns the index closing the bracket at start, or -1.
func matchBracket(text string, start int) int {
	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]
		if escape {
			escape = false
			continue
		}
		if char == '\\' && inString {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch char {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
