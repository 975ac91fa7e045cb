// Package match implements the two matching phases of a dispatch cycle.
//
// [Exact] compares the tokenised text against each alias of a route and
// extracts the trailing tokens as parameters. [Fuzzy] compares the whole
// normalised text against each alias by Levenshtein similarity. Both are pure
// functions of their arguments and never retain state between calls.
package match

import (
	"slices"
	"strings"

	"github.com/MrWong99/chatroute/pkg/route"
	"github.com/MrWong99/chatroute/pkg/textnorm"
)

// Outcome is the result kind of an exact match attempt.
type Outcome int

const (
	// NoMatch means no alias of the route matched.
	NoMatch Outcome = iota

	// Matched means an alias matched; see ExactResult.Params.
	Matched

	// Abort means the text addressed a different bot. The caller should stop
	// the exact phase (or skip the route, depending on its policy).
	Abort
)

// String returns the lower-case name of the outcome.
func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Abort:
		return "abort"
	default:
		return "no_match"
	}
}

// ExactResult is returned by [Exact].
type ExactResult struct {
	Outcome Outcome

	// Params holds the normalised tokens following the matched alias. It is
	// non-nil (possibly empty) iff Outcome is Matched.
	Params []string

	// Alias is the alias that matched.
	Alias string
}

// Exact tries every alias of r against text in order and returns the first
// alias whose tokens form a prefix of the text tokens.
//
// If r checks the bot name, the part of text after its last '@' is the
// claimed bot name. It must equal botName case-insensitively (both trimmed)
// or the result is Abort. On equality the claimed name is cut off before
// tokenising.
func Exact(r *route.Route, text, botName string) ExactResult {
	working := text
	if r.ChecksBotName() {
		if i := strings.LastIndex(text, "@"); i >= 0 {
			claimed := strings.TrimSpace(text[i+1:])
			if !strings.EqualFold(claimed, strings.TrimSpace(botName)) {
				return ExactResult{Outcome: Abort}
			}
			working = strings.TrimSpace(text[:i])
		}
	}

	tokens := textnorm.Tokenize(working, r.Separator)
	for _, alias := range r.Aliases {
		at := textnorm.Tokenize(alias, r.Separator)
		if len(at) == 0 || len(at) > len(tokens) {
			continue
		}
		if !slices.Equal(at, tokens[:len(at)]) {
			continue
		}
		params := tokens[len(at):]
		if r.RequireData && len(params) == 0 {
			continue
		}
		return ExactResult{
			Outcome: Matched,
			Params:  append([]string{}, params...),
			Alias:   alias,
		}
	}
	return ExactResult{Outcome: NoMatch}
}
