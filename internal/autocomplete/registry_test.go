package autocomplete

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProvider struct {
	ProviderDefaults
	name    string
	facets  []string
	aliases map[string][]string
	oneWay  map[string][]string
	items   []Item
	exclude map[string]bool
}

func (p *staticProvider) Name() string { return p.name }

func (p *staticProvider) Facets() []string { return p.facets }

func (p *staticProvider) PhraseAliases() map[string][]string { return p.aliases }

func (p *staticProvider) OneWayPhraseAliases() map[string][]string { return p.oneWay }

func (p *staticProvider) Include(item Item) bool { return !p.exclude[item.ID] }

func (p *staticProvider) Iterate(ctx context.Context, fn func(Item) error) error {
	for _, item := range p.items {
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(DefaultSettings())
	require.NoError(t, err)
	return reg
}

func TestRegistryValidatesGlobalSettings(t *testing.T) {
	s := DefaultSettings()
	s.MaxResults = 0
	_, err := NewRegistry(s)
	assert.Error(t, err)
}

func TestRegistryRegisterPreservesOrder(t *testing.T) {
	reg := newTestRegistry(t)
	a := &staticProvider{name: "a"}
	b := &staticProvider{name: "b"}

	reg.Register("main", a)
	reg.Register("main", b)
	reg.Register("main", a) // duplicate, ignored

	providers := reg.Providers("main")
	require.Len(t, providers, 2)
	assert.Equal(t, "a", providers[0].Name())
	assert.Equal(t, "b", providers[1].Name())

	reg.Unregister("main", a)
	providers = reg.Providers("main")
	require.Len(t, providers, 1)
	assert.Equal(t, "b", providers[0].Name())
}

func TestRegistrySettingsTiers(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Register("main", &staticProvider{name: "music"})

	// Global defaults apply with no overrides.
	assert.Equal(t, 10, reg.MaxResults("main"))
	assert.Equal(t, 1, reg.MinLetters("main", "music"))

	// Provider tier beats global.
	reg.SetProviderOverride("music", Override{MinLetters: Int(2)})
	assert.Equal(t, 2, reg.MinLetters("main", "music"))

	// Autocompleter+provider tier beats provider.
	reg.SetACProviderOverride("main", "music", Override{MinLetters: Int(3)})
	assert.Equal(t, 3, reg.MinLetters("main", "music"))
	// Other autocompleters still see the provider tier.
	assert.Equal(t, 2, reg.MinLetters("other", "music"))

	// Autocompleter-scoped settings.
	reg.SetAutocompleterOverride("main", Override{
		MaxResults:   Int(5),
		CacheTimeout: Duration(30 * time.Second),
	})
	assert.Equal(t, 5, reg.MaxResults("main"))
	assert.Equal(t, 30*time.Second, reg.CacheTimeout("main"))
	assert.Equal(t, 10, reg.MaxResults("other"))
}

func TestRegistryProviderScopedIndexSettings(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Register("main", &staticProvider{name: "music"})

	assert.Equal(t, 0, reg.MaxExactMatchWords("music"))
	assert.Equal(t, "-/", reg.JoinChars("music"))

	reg.SetProviderOverride("music", Override{
		MaxExactMatchWords: Int(3),
		JoinChars:          String("-"),
	})
	assert.Equal(t, 3, reg.MaxExactMatchWords("music"))
	assert.Equal(t, "-", reg.JoinChars("music"))

	// Query-side normalization reads the global tier.
	assert.Equal(t, "-/", reg.JoinChars(""))
}

func TestRegistryKnownProvider(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Register("main", &staticProvider{name: "music"})

	assert.True(t, reg.knownProvider("music"))
	assert.False(t, reg.knownProvider("films"))
}
