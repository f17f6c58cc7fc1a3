package policy

import (
	"sort"
	"strings"
)

// termMatcher is a precompiled term set. Single-word terms match whole tokens through a
// hash-set lookup; multi-word terms match as whole-token sequences of the normalized text,
// or as plain substrings when substring is set.
type termMatcher struct {
	single    map[string]string
	multi     []phrase
	substring bool
}

type phrase struct {
	norm   string
	padded string
	term   string
}

func newTermMatcher(lists ...[]string) *termMatcher {
	m := &termMatcher{single: make(map[string]string)}
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, term := range list {
			n := normalizeTerm(term)
			if n == "" {
				continue
			}
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			if strings.Contains(n, " ") {
				m.multi = append(m.multi, phrase{norm: n, padded: " " + n + " ", term: term})
			} else {
				m.single[n] = term
			}
		}
	}
	sort.Slice(m.multi, func(i, j int) bool { return m.multi[i].norm < m.multi[j].norm })
	return m
}

// newSubstringMatcher is newTermMatcher with multi-word terms matched anywhere in the text.
// Outbound forbidden terms use it so a phrase glued to a longer word is still blocked.
func newSubstringMatcher(lists ...[]string) *termMatcher {
	m := newTermMatcher(lists...)
	m.substring = true
	return m
}

// match returns the first configured term found in n. Tokens are scanned in text order
// before multi-word phrases so results are deterministic.
func (m *termMatcher) match(n *normalized) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, tok := range n.tokens {
		if term, ok := m.single[tok]; ok {
			return term, true
		}
	}
	if m.substring {
		for _, p := range m.multi {
			if strings.Contains(n.text, p.norm) {
				return p.term, true
			}
		}
		return "", false
	}
	padded := " " + n.text + " "
	for _, p := range m.multi {
		if strings.Contains(padded, p.padded) {
			return p.term, true
		}
	}
	return "", false
}

func (m *termMatcher) size() int {
	if m == nil {
		return 0
	}
	return len(m.single) + len(m.multi)
}
