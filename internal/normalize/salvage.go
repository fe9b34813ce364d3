package normalize

import (
	"encoding/json"
	"strings"
)

// decode parses content as exactly one JSON value. When that fails it
// retries on the first balanced object or array span in the text and
// reports salvaged=true.
func decode(content string) (v any, salvaged bool, err error) {
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &v); err == nil {
		return v, false, nil
	}

	span, ok := firstBalancedSpan(content)
	if !ok {
		return nil, false, &ParseError{Kind: MalformedJSON, Detail: "no balanced JSON object or array found", Text: content}
	}
	v = nil
	if err := json.Unmarshal([]byte(span), &v); err != nil {
		return nil, false, &ParseError{Kind: MalformedJSON, Detail: "salvaged span is not valid JSON: " + err.Error(), Text: content}
	}
	return v, true, nil
}

// firstBalancedSpan returns the substring from the first '{' or '[' to its
// matching closer. Brackets inside string literals are ignored.
func firstBalancedSpan(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}

	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				return "", false
			}
			open := stack[len(stack)-1]
			if (c == '}' && open != '{') || (c == ']' && open != '[') {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
