package autocomplete

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// whitespaceRun collapses runs of whitespace to a single space.
var whitespaceRun = regexp.MustCompile(`\s+`)

// foldASCII lowercases the input, applies Unicode compatibility
// decomposition and drops everything outside ASCII. This is what turns
// "Estée" into "estee".
func foldASCII(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFKD.String(s) {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeTerm canonicalizes a raw term. Each join character is replaced
// per the joinRepl mapping before the character filter runs, so a join
// character can be read as either a space or nothing depending on the
// variant being generated.
//
// Pipeline order matters: fold -> "&" -> trim -> join-char map ->
// character filter -> whitespace collapse.
func normalizeTerm(term string, joinRepl map[rune]string, filter *regexp.Regexp) string {
	t := foldASCII(term)
	t = strings.ReplaceAll(t, "&", "and")
	t = strings.TrimSpace(t)

	if len(joinRepl) > 0 {
		var b strings.Builder
		b.Grow(len(t))
		for _, r := range t {
			if repl, ok := joinRepl[r]; ok {
				b.WriteString(repl)
				continue
			}
			b.WriteRune(r)
		}
		t = b.String()
	}

	t = filter.ReplaceAllString(t, "")
	t = whitespaceRun.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// dropAll maps every join character to the empty string.
func dropAll(joinChars string) map[rune]string {
	repl := make(map[rune]string, len(joinChars))
	for _, r := range joinChars {
		repl[r] = ""
	}
	return repl
}

// Normalize returns the single canonical form of a term, with every join
// character removed. This is the form used for cache keys.
func Normalize(term, joinChars string, filter *regexp.Regexp) string {
	return normalizeTerm(term, dropAll(joinChars), filter)
}

// NormTermVariations returns every normalized variation of a term. Each
// join character present in the term is independently interpreted as
// either nothing or a space, so "U/S-A" expands to "usa", "u sa", "us a"
// and "u s a". Blank variants are dropped and duplicates removed,
// preserving first occurrence.
func NormTermVariations(term, joinChars string, filter *regexp.Regexp) []string {
	var present []rune
	for _, r := range joinChars {
		if strings.ContainsRune(term, r) {
			present = append(present, r)
		}
	}

	seen := make(map[string]struct{})
	var out []string
	for mask := 0; mask < 1<<len(present); mask++ {
		repl := dropAll(joinChars)
		for i, r := range present {
			if mask&(1<<i) != 0 {
				repl[r] = " "
			}
		}
		v := normalizeTerm(term, repl, filter)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
