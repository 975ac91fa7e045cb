package match

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/chatroute/pkg/route"
	"github.com/MrWong99/chatroute/pkg/textnorm"
)

// Similarity returns the Levenshtein similarity of a and b in percent:
//
//	(1 - distance / max(len(a), len(b))) * 100
//
// Lengths are counted in runes. Two empty strings are 100% similar. The
// function is symmetric and Similarity(a, a) == 100.
func Similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 100
	}
	d := matchr.Levenshtein(a, b)
	return (1 - float64(d)/float64(longest)) * 100
}

// Fuzzy compares text against every alias of r after normalising both with
// spaces kept. It returns the best score seen and whether any alias reached
// r.Temperature. Routes that are exact-only (temperature 100) or that carry
// data never match fuzzily.
func Fuzzy(r *route.Route, text string) (score float64, ok bool) {
	if !r.FuzzyEnabled() {
		return 0, false
	}

	nt := textnorm.Normalize(text, true)
	threshold := float64(r.Temperature)
	for _, alias := range r.Aliases {
		s := Similarity(textnorm.Normalize(alias, true), nt)
		if s > score {
			score = s
		}
		if s >= threshold {
			ok = true
		}
	}
	return score, ok
}

// Suggest returns the alias closest to the leading words of text, for "did
// you mean" replies. Each alias is compared against as many leading words of
// text as it has itself. Ties on similarity are broken by Jaro-Winkler
// distance, then by order. ok is false when no alias reaches minScore.
func Suggest(aliases []string, text string, minScore float64) (best string, score float64, ok bool) {
	words := strings.Fields(textnorm.Normalize(text, true))
	if len(words) == 0 {
		return "", 0, false
	}

	var bestJW float64
	for _, alias := range aliases {
		na := textnorm.Normalize(alias, true)
		n := len(strings.Fields(na))
		if n == 0 {
			continue
		}
		head := strings.Join(words[:min(n, len(words))], " ")

		s := Similarity(na, head)
		if s < minScore || s < score {
			continue
		}
		jw := matchr.JaroWinkler(na, head, false)
		if ok && s == score && jw <= bestJW {
			continue
		}
		best, score, bestJW, ok = alias, s, jw, true
	}
	return best, score, ok
}
