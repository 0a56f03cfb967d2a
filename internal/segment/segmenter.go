// Package segment splits cleaned raw input into bounded-size batches on
// paragraph and line boundaries.
package segment

import "strings"

// Clean normalizes line endings and trims surrounding whitespace
func Clean(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// Split produces an ordered, non-overlapping sequence of chunks whose
// concatenation (modulo chunk-boundary whitespace) reproduces the input.
//
// Split preference per chunk: the last double-newline at or before maxSize,
// then the last single newline, then a hard cut at maxSize. The hard-cut
// fallback guarantees progress even on a single line longer than the limit,
// so Split always terminates.
func Split(text string, maxSize int) []string {
	text = Clean(text)
	if text == "" {
		return nil
	}
	if maxSize <= 0 {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxSize {
			chunks = append(chunks, text)
			break
		}

		window := text[:maxSize]
		cut := strings.LastIndex(window, "\n\n")
		if cut <= 0 {
			cut = strings.LastIndex(window, "\n")
		}
		if cut <= 0 {
			cut = maxSize // Hard cut: no newline anywhere in the window
		}

		chunk := strings.TrimSpace(text[:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = strings.TrimLeft(text[cut:], " \t\n")
	}
	return chunks
}
