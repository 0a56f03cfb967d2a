package llm

import (
	"regexp"
	"strings"
)

var trailingComma = regexp.MustCompile(`,\s*([\]}])`)

// Repair applies a best-effort cleanup to near-JSON service output: trims
// code-fence markers and surrounding prose, strips trailing commas, and
// closes unbalanced brackets. It never guarantees valid JSON; callers must
// still decode and classify failure as KindParseFailure.
func Repair(raw string) string {
	s := strings.TrimSpace(raw)

	// Strip markdown code fences, with or without a language tag
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	// Cut surrounding prose down to the outermost JSON value
	start := strings.IndexAny(s, "{[")
	if start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndexAny(s, "}]"); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}

	s = trailingComma.ReplaceAllString(s, "$1")

	return closeBrackets(s)
}

// closeBrackets appends the closers for any brackets left open outside of
// string literals, in reverse opening order
func closeBrackets(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			stack = append(stack, c)
		case c == '}' || c == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			s += "}"
		} else {
			s += "]"
		}
	}
	return s
}
