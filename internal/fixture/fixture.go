// Package fixture loads dictionary providers from YAML files. A fixture
// file declares a provider name, optional facets and phrase aliases, and
// a flat list of items; it is the way static datasets (stock symbols,
// place names) get indexed without writing a Provider by hand.
package fixture

import (
	"context"
	"fmt"
	"os"

	"github.com/ara818/autocompleter/internal/autocomplete"
	"gopkg.in/yaml.v3"
)

// StringOrList accepts either a single YAML scalar or a sequence of
// scalars, so `terms: U2` and `terms: [U2, "U two"]` both work.
type StringOrList []string

func (s *StringOrList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = []string{v}
		return nil
	case yaml.SequenceNode:
		var v []string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = v
		return nil
	default:
		return fmt.Errorf("yaml: line %d: expected string or list of strings", node.Line)
	}
}

type fixtureItem struct {
	ID     string         `yaml:"id"`
	Terms  StringOrList   `yaml:"terms"`
	Score  float64        `yaml:"score"`
	Data   map[string]any `yaml:"data"`
	Hidden bool           `yaml:"hidden"`
}

type fixtureFile struct {
	Name                string                  `yaml:"name"`
	Facets              []string                `yaml:"facets"`
	PhraseAliases       map[string]StringOrList `yaml:"phrase_aliases"`
	OneWayPhraseAliases map[string]StringOrList `yaml:"one_way_phrase_aliases"`
	Items               []fixtureItem           `yaml:"items"`
}

// Provider is a static dictionary source backed by a fixture file.
type Provider struct {
	name    string
	facets  []string
	aliases map[string][]string
	oneWay  map[string][]string
	items   []autocomplete.Item
	hidden  map[string]bool
}

var _ autocomplete.Provider = (*Provider)(nil)

// Load reads a fixture file into a Provider.
func Load(path string) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if f.Name == "" {
		return nil, fmt.Errorf("%s: fixture missing provider name", path)
	}

	p := &Provider{
		name:    f.Name,
		facets:  f.Facets,
		aliases: toAliasMap(f.PhraseAliases),
		oneWay:  toAliasMap(f.OneWayPhraseAliases),
		hidden:  make(map[string]bool),
	}
	for i, it := range f.Items {
		if it.ID == "" {
			return nil, fmt.Errorf("%s: item %d missing id", path, i)
		}
		p.items = append(p.items, autocomplete.Item{
			ID:    it.ID,
			Terms: it.Terms,
			Score: it.Score,
			Data:  it.Data,
		})
		if it.Hidden {
			p.hidden[it.ID] = true
		}
	}
	return p, nil
}

// LoadAll reads several fixture files.
func LoadAll(paths []string) ([]*Provider, error) {
	out := make([]*Provider, 0, len(paths))
	for _, path := range paths {
		p, err := Load(path)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func toAliasMap(in map[string]StringOrList) map[string][]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (p *Provider) Name() string                             { return p.name }
func (p *Provider) Facets() []string                         { return p.facets }
func (p *Provider) PhraseAliases() map[string][]string       { return p.aliases }
func (p *Provider) OneWayPhraseAliases() map[string][]string { return p.oneWay }

// Include filters out items the fixture marks hidden. Storing a hidden
// item retracts it, which is how a fixture edit can delist an item
// without a full reindex.
func (p *Provider) Include(item autocomplete.Item) bool { return !p.hidden[item.ID] }

// Iterate enumerates the fixture's items.
func (p *Provider) Iterate(ctx context.Context, fn func(autocomplete.Item) error) error {
	for _, item := range p.items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}
