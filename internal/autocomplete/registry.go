package autocomplete

import (
	"fmt"
	"regexp"
	"sync"
	"time"
)

// Registry holds the autocompleter definitions: which providers serve
// which named query surface, and the layered settings overrides. Both
// the indexer and the query engine resolve their parameters through it.
//
// Registration normally happens once at startup; all methods are safe
// for concurrent use afterwards.
type Registry struct {
	mu     sync.RWMutex
	global Settings

	// providers per autocompleter, in registration order.
	acs map[string][]Provider

	acOverrides       map[string]Override // by autocompleter name
	providerOverrides map[string]Override // by provider name
	acProvOverrides   map[string]Override // by autocompleter + provider name

	// normalized alias maps, built lazily once per provider.
	aliasCache map[string]map[string][]string
}

// NewRegistry validates the global settings tier and returns an empty
// registry. A broken global tier is fatal at startup by design.
func NewRegistry(global Settings) (*Registry, error) {
	if err := global.Validate(); err != nil {
		return nil, fmt.Errorf("global settings: %w", err)
	}
	return &Registry{
		global:            global,
		acs:               make(map[string][]Provider),
		acOverrides:       make(map[string]Override),
		providerOverrides: make(map[string]Override),
		acProvOverrides:   make(map[string]Override),
		aliasCache:        make(map[string]map[string][]string),
	}, nil
}

// Register adds a provider to the named autocompleter. Registering the
// same provider name twice on one autocompleter is a no-op.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.acs[name] {
		if existing.Name() == p.Name() {
			return
		}
	}
	r.acs[name] = append(r.acs[name], p)
}

// Unregister removes a provider from the named autocompleter.
func (r *Registry) Unregister(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	providers := r.acs[name]
	for i, existing := range providers {
		if existing.Name() == p.Name() {
			r.acs[name] = append(providers[:i:i], providers[i+1:]...)
			return
		}
	}
}

// Providers returns the named autocompleter's providers in registration
// order, or nil when the autocompleter does not exist.
func (r *Registry) Providers(name string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.acs[name]
}

// knownProvider reports whether any autocompleter carries the provider.
func (r *Registry) knownProvider(providerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, providers := range r.acs {
		for _, p := range providers {
			if p.Name() == providerName {
				return true
			}
		}
	}
	return false
}

// SetAutocompleterOverride layers settings on one autocompleter.
func (r *Registry) SetAutocompleterOverride(name string, o Override) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acOverrides[name] = o
}

// SetProviderOverride layers settings on one provider, for every
// autocompleter it serves. Changing normalization settings invalidates
// the provider's cached alias map.
func (r *Registry) SetProviderOverride(providerName string, o Override) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providerOverrides[providerName] = o
	delete(r.aliasCache, providerName)
}

// SetACProviderOverride layers settings on one provider within one
// autocompleter. This is the most specific tier.
func (r *Registry) SetACProviderOverride(name, providerName string, o Override) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acProvOverrides[acProvKey(name, providerName)] = o
}

func acProvKey(name, providerName string) string {
	return name + "\x00" + providerName
}

// tiers returns the override layers for an (autocompleter, provider)
// pair, most specific first. Either part may be empty.
func (r *Registry) tiers(name, providerName string) []Override {
	out := make([]Override, 0, 3)
	if name != "" && providerName != "" {
		if o, ok := r.acProvOverrides[acProvKey(name, providerName)]; ok {
			out = append(out, o)
		}
	}
	if providerName != "" {
		if o, ok := r.providerOverrides[providerName]; ok {
			out = append(out, o)
		}
	}
	if name != "" {
		if o, ok := r.acOverrides[name]; ok {
			out = append(out, o)
		}
	}
	return out
}

// MaxResults resolves autocompleter -> global.
func (r *Registry) MaxResults(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.tiers(name, "") {
		if o.MaxResults != nil {
			return *o.MaxResults
		}
	}
	return r.global.MaxResults
}

// MoveExactMatchesToTop resolves autocompleter -> global.
func (r *Registry) MoveExactMatchesToTop(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.tiers(name, "") {
		if o.MoveExactMatchesToTop != nil {
			return *o.MoveExactMatchesToTop
		}
	}
	return r.global.MoveExactMatchesToTop
}

// CacheTimeout resolves autocompleter -> global.
func (r *Registry) CacheTimeout(name string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.tiers(name, "") {
		if o.CacheTimeout != nil {
			return *o.CacheTimeout
		}
	}
	return r.global.CacheTimeout
}

// FlattenSingleResults resolves autocompleter -> global.
func (r *Registry) FlattenSingleResults(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.tiers(name, "") {
		if o.FlattenSingleResults != nil {
			return *o.FlattenSingleResults
		}
	}
	return r.global.FlattenSingleResults
}

// MinLetters resolves autocompleter+provider -> provider -> global.
func (r *Registry) MinLetters(name, providerName string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.tiers(name, providerName) {
		if o.MinLetters != nil {
			return *o.MinLetters
		}
	}
	return r.global.MinLetters
}

// MaxExactMatchWords resolves provider -> global. Indexing has no
// autocompleter context, so the autocompleter tier never applies.
func (r *Registry) MaxExactMatchWords(providerName string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.tiers("", providerName) {
		if o.MaxExactMatchWords != nil {
			return *o.MaxExactMatchWords
		}
	}
	return r.global.MaxExactMatchWords
}

// JoinChars resolves provider -> global. An empty provider name yields
// the global tier, which is what query normalization uses.
func (r *Registry) JoinChars(providerName string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.tiers("", providerName) {
		if o.JoinChars != nil {
			return *o.JoinChars
		}
	}
	return r.global.JoinChars
}

// CharacterFilter resolves provider -> global.
func (r *Registry) CharacterFilter(providerName string) *regexp.Regexp {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.tiers("", providerName) {
		if o.CharacterFilter != nil {
			return o.CharacterFilter
		}
	}
	return r.global.CharacterFilter
}

// normAliases returns the provider's normalized phrase alias map,
// building and caching it on first use.
func (r *Registry) normAliases(p Provider) map[string][]string {
	r.mu.RLock()
	cached, ok := r.aliasCache[p.Name()]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	joinChars := r.JoinChars(p.Name())
	filter := r.CharacterFilter(p.Name())
	aliases := buildNormAliasMap(p.PhraseAliases(), p.OneWayPhraseAliases(), joinChars, filter)

	r.mu.Lock()
	r.aliasCache[p.Name()] = aliases
	r.mu.Unlock()
	return aliases
}
