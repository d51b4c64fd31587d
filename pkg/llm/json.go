package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches a leading <think>...</think> block some free models emit.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// fencePattern captures the body of the first markdown code fence.
var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\n?(.*?)```")

// StripFences removes a leading think block and unwraps a markdown code fence if present.
func StripFences(response string) string {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")
	if m := fencePattern.FindStringSubmatch(cleaned); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(cleaned)
}

// ExtractJSON pulls the first JSON object or array out of a model reply that
// may be wrapped in prose or code fences.
func ExtractJSON(response string) (string, error) {
	cleaned := StripFences(response)

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if jsonStr, ok := extractBalancedJSON(cleaned, '{', '}'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	if arrStart >= 0 {
		if jsonStr, ok := extractBalancedJSON(cleaned, '[', ']'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	if json.Valid([]byte(cleaned)) {
		return cleaned, nil
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// extractBalancedJSON returns the first bracket-balanced span opened by openChar,
// ignoring brackets inside string literals.
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// ParseJSONResponse extracts JSON from a model reply and unmarshals it into T.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}

	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}

	return result, nil
}
