package autocomplete

import (
	"context"
	"fmt"
)

// Item is one indexable unit produced by a Provider.
type Item struct {
	// ID is a stable, provider-scoped identifier. Ties between equal
	// scores break lexicographically by ID, so sources expecting many
	// ties should choose textual, human-ordered IDs.
	ID string

	// Terms are the raw strings the item can be found under.
	Terms []string

	// Score ranks the item; higher means earlier in results. 0 is the
	// sentinel for "rank last".
	Score float64

	// Data is the opaque payload returned on a match. Facet keys
	// declared by the provider must appear in it.
	Data map[string]any
}

// Provider adapts one content source (a model, a static dictionary) to
// indexable items. The provider name doubles as the Redis key prefix for
// everything the source owns; keep it short.
type Provider interface {
	// Name is the short, unique key prefix of this source.
	Name() string

	// Facets lists the facet keys the source declares. Every listed key
	// must also be a key in Item.Data.
	Facets() []string

	// PhraseAliases returns two-way phrase equivalences: {x: ys} means
	// x is also every y, and every y is also x.
	PhraseAliases() map[string][]string

	// OneWayPhraseAliases returns one-way phrase aliases: {x: ys} means
	// x is also every y, but not the reverse.
	OneWayPhraseAliases() map[string][]string

	// Include reports whether the item belongs in the index at all.
	Include(item Item) bool

	// Iterate enumerates every item of the source. Used by the bulk
	// store/remove operations.
	Iterate(ctx context.Context, fn func(Item) error) error
}

// ProviderDefaults carries the no-op defaults of the optional provider
// hooks. Embed it and override what the source needs.
type ProviderDefaults struct{}

func (ProviderDefaults) Facets() []string                         { return nil }
func (ProviderDefaults) PhraseAliases() map[string][]string       { return nil }
func (ProviderDefaults) OneWayPhraseAliases() map[string][]string { return nil }
func (ProviderDefaults) Include(Item) bool                        { return true }

// facetValues extracts the provider's declared facets from an item's
// payload, preserving declaration order. Declared keys missing from the
// payload are skipped.
func facetValues(p Provider, item Item) []FacetValue {
	var out []FacetValue
	for _, key := range p.Facets() {
		v, ok := item.Data[key]
		if !ok {
			continue
		}
		out = append(out, FacetValue{Key: key, Value: fmt.Sprint(v)})
	}
	return out
}
