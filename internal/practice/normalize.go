// Package practice implements the quiz core: answer normalization and
// validation, XP scoring, the spaced-practice ledger, daily stats, and the
// per-question session state machine.
package practice

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// strippedRunes are apostrophe, quote, and hyphen variants removed during
// normalization so orthographic noise never causes a false negative.
var strippedRunes = map[rune]struct{}{
	'\'':     {}, // straight apostrophe
	'"':      {}, // straight double quote
	'‘': {}, // left single quote
	'’': {}, // right single quote
	'‚': {}, // single low quote
	'‛': {}, // single reversed quote
	'“': {}, // left double quote
	'”': {}, // right double quote
	'„': {}, // double low quote
	'`':      {}, // grave accent as apostrophe
	'´': {}, // acute accent as apostrophe
	'ʹ': {}, // modifier letter prime
	'ʻ': {}, // modifier letter turned comma
	'ʼ': {}, // modifier letter apostrophe
	'′': {}, // prime
	'-':      {}, // hyphen
	'‐': {}, // unicode hyphen
}

// decomposer splits characters into base + combining marks and drops the marks.
var decomposer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// Normalize canonicalizes a free-text string for answer comparison:
// NFD-decompose and strip combining diacritical marks, strip apostrophe/
// quote/hyphen variants, strip whitespace, lowercase. Deterministic and
// idempotent; no locale-specific casing. Stored answers and user input go
// through the same function.
func Normalize(s string) string {
	decomposed, _, err := transform.String(decomposer, s)
	if err != nil {
		// Malformed input: fall back to the raw string, the per-rune
		// filtering below still applies.
		decomposed = s
	}

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.IsSpace(r) {
			continue
		}
		if _, strip := strippedRunes[r]; strip {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
