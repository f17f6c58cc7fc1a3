package policy

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalized is a message prepared for term matching: lower-cased, accent-folded, with
// every non letter/digit rune collapsed into a single space.
type normalized struct {
	text   string
	tokens []string
	set    map[string]struct{}
}

func normalize(s string) *normalized {
	folded := foldAccents(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}

	text := strings.TrimRight(b.String(), " ")
	tokens := strings.Fields(text)
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return &normalized{text: text, tokens: tokens, set: set}
}

// normalizeTerm normalizes a configured term the same way message text is normalized.
func normalizeTerm(term string) string {
	return normalize(term).text
}

func foldAccents(s string) string {
	// transform.Chain is stateful, so a new chain is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize returns text lower-cased, accent-folded and with punctuation collapsed into
// single spaces, the form all term matching works on.
func Normalize(text string) string {
	return normalize(text).text
}
