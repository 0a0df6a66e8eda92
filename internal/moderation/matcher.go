// Package moderation implements the toxicity moderation decision logic:
// a deterministic lexical matcher over a static banned-term list and a
// policy engine that combines lexical findings with model-produced
// category scores into a single verdict.
package moderation

import (
	"strings"
	"unicode"
)

// leetMap translates common character substitutions back to letters so
// that obfuscated terms like "b@dw0rd" still hit the blocklist.
var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
	'!': 'i',
}

// Matcher performs exact, word-boundary, case-insensitive matching of
// message text against a static banned-term set. Single-word entries are
// checked per token; multi-word entries are checked as phrases over the
// normalized token stream. A Matcher is immutable after construction and
// safe for concurrent use.
type Matcher struct {
	words   map[string]bool
	phrases []string
}

// NewMatcher builds a Matcher from the given banned terms. Terms are
// lowercased; blank entries are dropped. Entries containing whitespace
// are treated as phrases, everything else as single words.
func NewMatcher(terms []string) *Matcher {
	m := &Matcher{words: make(map[string]bool)}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if strings.ContainsAny(t, " \t") {
			m.phrases = append(m.phrases, strings.Join(strings.Fields(t), " "))
		} else {
			m.words[t] = true
		}
	}
	return m
}

// DefaultMatcher returns a Matcher loaded with the built-in blocklist.
func DefaultMatcher() *Matcher {
	return NewMatcher(defaultBannedTerms)
}

// Match scans text for a banned term and returns the first matching term
// in tokenization order. A match requires the whole token (or token
// sequence, for phrases) to equal a blocklist entry; banned substrings
// embedded in longer words do not match. Matching is case-insensitive
// and repeated with leetspeak normalization applied. Empty or
// non-textual input never matches.
func (m *Matcher) Match(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	plain := tokenize(strings.ToLower(text))
	if term, ok := m.matchTokens(plain); ok {
		return term, true
	}

	norm := tokenize(normalizeLeet(strings.ToLower(text)))
	if term, ok := m.matchTokens(norm); ok {
		return term, true
	}

	return "", false
}

// matchTokens checks single words first (cheap map lookups), then phrases.
func (m *Matcher) matchTokens(tokens []string) (string, bool) {
	for _, tok := range tokens {
		if m.words[tok] {
			return tok, true
		}
	}
	if len(m.phrases) > 0 {
		joined := " " + strings.Join(tokens, " ") + " "
		for _, p := range m.phrases {
			if strings.Contains(joined, " "+p+" ") {
				return p, true
			}
		}
	}
	return "", false
}

// tokenize splits text into maximal runs of letters, digits, and
// underscores. Everything else is a boundary.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// normalizeLeet maps leetspeak substitution characters to their letter
// equivalents. Characters without a mapping pass through unchanged.
func normalizeLeet(text string) string {
	return strings.Map(func(r rune) rune {
		if repl, ok := leetMap[r]; ok {
			return repl
		}
		return r
	}, text)
}
