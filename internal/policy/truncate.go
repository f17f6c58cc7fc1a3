package policy

import (
	"strings"
	"unicode"
)

// Truncate shortens text to at most limit runes. It cuts at the last sentence boundary when
// that boundary lies past the midpoint of the limit, otherwise at the last word boundary,
// otherwise hard. A limit <= 0 disables truncation.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= limit {
		return text
	}

	// Sentence boundary: terminal punctuation followed by whitespace, past the midpoint.
	for i := limit - 1; i+1 > limit/2; i-- {
		if isSentenceEnd(r[i]) && unicode.IsSpace(r[i+1]) {
			return trimRight(r[:i+1])
		}
	}

	// The limit falls exactly on a word end.
	if unicode.IsSpace(r[limit]) {
		if out := trimRight(r[:limit]); out != "" {
			return out
		}
	}

	// Word boundary.
	for i := limit - 1; i > 0; i-- {
		if unicode.IsSpace(r[i]) {
			if out := trimRight(r[:i]); out != "" {
				return out
			}
			break
		}
	}

	return string(r[:limit])
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func trimRight(r []rune) string {
	return strings.TrimRightFunc(string(r), unicode.IsSpace)
}
