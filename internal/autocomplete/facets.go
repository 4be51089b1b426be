package autocomplete

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Facet is one element of a facet expression: a combinator ("and"/"or")
// over a non-empty list of key/value conditions. A suggest call may pass
// several facets; they are intersected with each other and with the
// prefix matches.
type Facet struct {
	Type   string       `json:"type"`
	Facets []FacetValue `json:"facets"`
}

// FacetValue is a single key/value condition. Values are compared and
// keyed by their string form.
type FacetValue struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (v FacetValue) valueString() string {
	if s, ok := v.Value.(string); ok {
		return s
	}
	return fmt.Sprint(v.Value)
}

func (v FacetValue) equal(o FacetValue) bool {
	return v.Key == o.Key && v.valueString() == o.valueString()
}

func facetListsEqual(a, b []FacetValue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].equal(b[i]) {
			return false
		}
	}
	return true
}

// ValidateFacets reports whether a facet expression is well formed:
// every facet has type "and" or "or" and a non-empty condition list with
// a key and a value on every condition.
func ValidateFacets(facets []Facet) bool {
	for _, f := range facets {
		if f.Type != "and" && f.Type != "or" {
			return false
		}
		if len(f.Facets) == 0 {
			return false
		}
		for _, fv := range f.Facets {
			if fv.Key == "" || fv.Value == nil {
				return false
			}
		}
	}
	return true
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashFacets returns a deterministic hash of a facet expression, used to
// compose cache keys. Ordering of conditions within a facet and of
// facets within the expression does not affect the hash; any change to a
// type, key or value does. Child hashes are sorted lexicographically at
// both levels before combining.
func HashFacets(facets []Facet) string {
	facetHashes := make([]string, 0, len(facets))
	for _, f := range facets {
		subHashes := make([]string, 0, len(f.Facets))
		for _, fv := range f.Facets {
			subHashes = append(subHashes, sha1Hex("key:"+fv.Key+"value:"+fv.valueString()))
		}
		sort.Strings(subHashes)
		facetHashes = append(facetHashes, sha1Hex("type:"+f.Type+"facets:"+strings.Join(subHashes, ",")))
	}
	sort.Strings(facetHashes)
	return sha1Hex(strings.Join(facetHashes, ","))
}
