package autocomplete

import (
	"regexp"
	"strings"
)

// span marks a half-open word range [start, end) of a term that was
// produced by an alias substitution. Once a range is aliased it must not
// be aliased again, otherwise chains like California -> CA -> Canada
// would leak unrelated results.
type span struct {
	start, end int
}

func (s span) overlaps(o span) bool {
	return s.start < o.end && s.end > o.start
}

func overlapsAny(s span, ranges []span) bool {
	for _, r := range ranges {
		if s.overlaps(r) {
			return true
		}
	}
	return false
}

// buildNormAliasMap normalizes the two-way and one-way raw phrase alias
// dictionaries of a provider into a single lookup map of normalized
// phrase -> normalized replacement phrases.
//
// Two-way entries {x: ys} link every normalized variant of x with every
// normalized variant of each y in both directions, and additionally link
// each variant of a y to every other variant, so join-char variants
// survive the equivalence. One-way entries only add x -> y edges.
func buildNormAliasMap(twoWay, oneWay map[string][]string, joinChars string, filter *regexp.Regexp) map[string][]string {
	aliases := make(map[string][]string)

	add := func(from, to string) {
		if from == to {
			return
		}
		for _, existing := range aliases[from] {
			if existing == to {
				return
			}
		}
		aliases[from] = append(aliases[from], to)
	}

	for x, ys := range twoWay {
		xVars := NormTermVariations(x, joinChars, filter)
		var yVars []string
		for _, y := range ys {
			yVars = append(yVars, NormTermVariations(y, joinChars, filter)...)
		}
		for _, xv := range xVars {
			for _, yv := range yVars {
				add(xv, yv)
				add(yv, xv)
			}
		}
		for _, yv1 := range yVars {
			for _, yv2 := range yVars {
				add(yv1, yv2)
			}
		}
	}

	for x, ys := range oneWay {
		xVars := NormTermVariations(x, joinChars, filter)
		for _, xv := range xVars {
			for _, y := range ys {
				for _, yv := range NormTermVariations(y, joinChars, filter) {
					add(xv, yv)
				}
			}
		}
	}

	return aliases
}

// aliasedVariations expands a normalized term into itself plus every term
// reachable through alias substitution. Each derived term carries the set
// of word ranges already produced by aliasing; a candidate substitution
// that touches any such range is skipped. Termination follows from the
// seen-set: no term is pushed twice.
func aliasedVariations(term string, aliases map[string][]string) []string {
	type entry struct {
		term   string
		ranges []span
	}

	seen := map[string]struct{}{term: {}}
	out := []string{term}
	stack := []entry{{term: term}}

	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		words := strings.Fields(e.term)
		n := len(words)
		for i := 0; i < n; i++ {
			for j := i + 1; j <= n; j++ {
				cand := span{i, j}
				if overlapsAny(cand, e.ranges) {
					continue
				}
				phrase := strings.Join(words[i:j], " ")
				repls, ok := aliases[phrase]
				if !ok {
					continue
				}
				for _, repl := range repls {
					replWords := strings.Fields(repl)
					spliced := make([]string, 0, n-(j-i)+len(replWords))
					spliced = append(spliced, words[:i]...)
					spliced = append(spliced, replWords...)
					spliced = append(spliced, words[j:]...)
					derived := strings.Join(spliced, " ")
					if _, dup := seen[derived]; dup {
						continue
					}
					seen[derived] = struct{}{}
					out = append(out, derived)

					// Shift ranges that sit past the splice point so they
					// keep pointing at the same words of the derived term.
					delta := len(replWords) - (j - i)
					ranges := make([]span, 0, len(e.ranges)+1)
					for _, r := range e.ranges {
						if r.start >= j {
							r.start += delta
							r.end += delta
						}
						ranges = append(ranges, r)
					}
					ranges = append(ranges, span{i, i + len(replWords)})
					stack = append(stack, entry{term: derived, ranges: ranges})
				}
			}
		}
	}
	return out
}
