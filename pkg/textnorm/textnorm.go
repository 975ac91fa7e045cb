// Package textnorm implements the string cleaning rules shared by every route
// matcher.
//
// Normalisation lower-cases the input with a pinned Unicode case table
// (golang.org/x/text/cases), trims it, and keeps only Cyrillic-script runes,
// ASCII letters, ASCII digits and the hyphen. Whitespace is either collapsed
// to single spaces or removed entirely, depending on the caller.
//
// All functions are pure and safe for concurrent use.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize cleans input for comparison.
//
// When keepSpaces is true, whitespace runs are collapsed to a single ASCII
// space and the result is trimmed. When false, all whitespace is removed.
// Normalize is idempotent: Normalize(Normalize(s, k), k) == Normalize(s, k).
func Normalize(input string, keepSpaces bool) string {
	// A Caser carries state between calls and must not be shared.
	lowered := cases.Lower(language.Und).String(strings.TrimSpace(input))

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case keep(r):
			b.WriteRune(r)
		case keepSpaces && unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}

	if !keepSpaces {
		return b.String()
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokenize splits text by sep, normalises every piece without spaces and
// drops the pieces that end up empty. Order is preserved.
func Tokenize(text, sep string) []string {
	parts := strings.Split(text, sep)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if n := Normalize(p, false); n != "" {
			tokens = append(tokens, n)
		}
	}
	return tokens
}

// keep reports whether r survives normalisation regardless of the
// whitespace mode.
func keep(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-':
		return true
	}
	return unicode.Is(unicode.Cyrillic, r)
}
