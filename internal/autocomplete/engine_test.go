package autocomplete

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestRanksByScore(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{name: "music"}
	env.reg.Register("main", p)

	env.mustStore(t, p,
		musicItem("mid", 5, "band one"),
		musicItem("top", 10, "band two"),
		musicItem("low", 1, "band three"),
	)

	results, err := env.engine.Suggest(context.Background(), "main", "band", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"top", "mid", "low"}, ids(t, results.Flat()))
}

func TestSuggestZeroScoreRanksLast(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{name: "music"}
	env.reg.Register("main", p)

	env.mustStore(t, p,
		musicItem("unranked", 0, "band one"),
		musicItem("ranked", 1, "band two"),
	)

	results, err := env.engine.Suggest(context.Background(), "main", "band", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ranked", "unranked"}, ids(t, results.Flat()))
}

func TestSuggestTiesBreakLexicographically(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{name: "music"}
	env.reg.Register("main", p)

	env.mustStore(t, p,
		musicItem("zebra", 5, "band"),
		musicItem("apple", 5, "band"),
		musicItem("mango", 5, "band"),
	)

	results, err := env.engine.Suggest(context.Background(), "main", "band", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "mango", "zebra"}, ids(t, results.Flat()))
}

func TestSuggestMultiWordIntersection(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{name: "music"}
	env.reg.Register("main", p)

	env.mustStore(t, p,
		musicItem("beatles", 10, "The Beatles"),
		musicItem("stones", 9, "The Rolling Stones"),
	)

	results, err := env.engine.Suggest(context.Background(), "main", "the ro", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"stones"}, ids(t, results.Flat()))
}

func TestSuggestJoinCharQueryVariants(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{name: "music"}
	env.reg.Register("main", p)

	env.mustStore(t, p, musicItem("acdc", 10, "ACDC"))

	// "AC/DC" has a join-char variant "acdc" which hits the stored term.
	results, err := env.engine.Suggest(context.Background(), "main", "AC/DC", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"acdc"}, ids(t, results.Flat()))
}

func TestSuggestJoinCharStoredVariants(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{name: "music"}
	env.reg.Register("main", p)

	env.mustStore(t, p, musicItem("gnr", 10, "Guns-N-Roses"))

	// Stored variants cover both readings of "-", so either phrasing of
	// the query matches.
	for _, q := range []string{"guns n", "gunsn", "roses guns"} {
		results, err := env.engine.Suggest(context.Background(), "main", q, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"gnr"}, ids(t, results.Flat()), "query %q", q)
	}
}

func TestSuggestAccentFolding(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{name: "brands"}
	env.reg.Register("main", p)

	env.mustStore(t, p, musicItem("el", 10, "Estée Lauder", "EL"))

	for _, q := range []string{"estee lauder", "estée lauder"} {
		results, err := env.engine.Suggest(context.Background(), "main", q, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"el"}, ids(t, results.Flat()), "query %q", q)
	}
}

func TestSuggestPhraseAliases(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{
		name:    "places",
		aliases: map[string][]string{"USA": {"United States"}},
	}
	env.reg.Register("main", p)

	env.mustStore(t, p, musicItem("usa", 10, "USA Embassy"))

	results, err := env.engine.Suggest(context.Background(), "main", "united st", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"usa"}, ids(t, results.Flat()))
}

func TestSuggestTwoWayAliasBothDirections(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{
		name:    "econ",
		aliases: map[string][]string{"United States": {"US", "USA", "America"}},
	}
	env.reg.Register("main", p)

	env.mustStore(t, p, musicItem("cpi", 10, "US Consumer Price Index"))

	queries := []string{
		"us consumer price index",
		"united states consumer price index",
		"usa consumer price index",
		"america consumer price index",
	}
	for _, q := range queries {
		results, err := env.engine.Suggest(context.Background(), "main", q, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"cpi"}, ids(t, results.Flat()), "query %q", q)
	}
}

func TestSuggestOneWayAliasDirectional(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{
		name:   "places",
		oneWay: map[string][]string{"St": {"Saint"}},
	}
	env.reg.Register("main", p)

	env.mustStore(t, p,
		musicItem("stmarks", 10, "St Marks"),
		musicItem("saintpeter", 9, "Saint Peter"),
	)

	// "St Marks" also indexes as "saint marks".
	results, err := env.engine.Suggest(context.Background(), "main", "saint", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"stmarks", "saintpeter"}, ids(t, results.Flat()))

	// The reverse does not hold: "Saint Peter" is not reachable as "st".
	results, err = env.engine.Suggest(context.Background(), "main", "st pe", nil)
	require.NoError(t, err)
	assert.Zero(t, results.Len())
}

func TestSuggestSharedAliasTargetDoesNotLeak(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{
		name: "econ",
		aliases: map[string][]string{
			"California": {"CA"},
			"Canada":     {"CA"},
		},
	}
	env.reg.Register("main", p)

	env.mustStore(t, p,
		musicItem("calif", 10, "California Unemployment"),
		musicItem("canada", 9, "Canada Unemployment"),
	)

	// "CA" bridges both phrases, but a stored alias variant is never
	// re-aliased, so California never becomes Canada.
	results, err := env.engine.Suggest(context.Background(), "main", "california unemployment", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"calif"}, ids(t, results.Flat()))

	// Querying the shared abbreviation legitimately matches both.
	results, err = env.engine.Suggest(context.Background(), "main", "ca unemployment", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"calif", "canada"}, ids(t, results.Flat()))
}

func TestSuggestMinLettersSkipsProvider(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	music := &staticProvider{name: "music"}
	films := &staticProvider{name: "films"}
	env.reg.Register("main", music)
	env.reg.Register("main", films)
	env.reg.SetProviderOverride("films", Override{MinLetters: Int(3)})

	env.mustStore(t, music, musicItem("u2", 10, "u2"))
	env.mustStore(t, films, musicItem("up", 10, "up"))

	results, err := env.engine.Suggest(context.Background(), "main", "u", nil)
	require.NoError(t, err)
	// films never ran; it is absent from the result, not empty.
	assert.Equal(t, []string{"music"}, results.Providers())
	assert.Equal(t, []string{"u2"}, ids(t, results.Provider("music")))
}

func TestSuggestBudgetRedistribution(t *testing.T) {
	s := DefaultSettings()
	s.MaxResults = 16
	env := newTestEnv(t, s)

	a := &staticProvider{name: "aa"}
	b := &staticProvider{name: "bb"}
	c := &staticProvider{name: "cc"}
	env.reg.Register("main", a)
	env.reg.Register("main", b)
	env.reg.Register("main", c)

	store := func(p *staticProvider, n int) {
		for i := 0; i < n; i++ {
			id := string(rune('a' + i))
			env.mustStore(t, p, musicItem(p.name+id, float64(n-i), "common term"))
		}
	}
	store(a, 5)
	store(b, 9)
	store(c, 1)

	results, err := env.engine.Suggest(context.Background(), "main", "common", nil)
	require.NoError(t, err)
	assert.Len(t, results.Provider("aa"), 5)
	assert.Len(t, results.Provider("bb"), 9)
	assert.Len(t, results.Provider("cc"), 1)
}

func TestSuggestMovesExactMatchesToTop(t *testing.T) {
	s := DefaultSettings()
	s.MaxExactMatchWords = 3
	s.MoveExactMatchesToTop = true
	env := newTestEnv(t, s)
	p := &staticProvider{name: "music"}
	env.reg.Register("main", p)

	env.mustStore(t, p,
		musicItem("clash", 10, "The Clash Hits"),
		musicItem("the", 1, "The"),
	)

	// "the" prefixes both; the exact match wins despite its low score.
	results, err := env.engine.Suggest(context.Background(), "main", "the", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"the", "clash"}, ids(t, results.Flat()))
}

func TestSuggestExactMatchesNotPromotedByDefault(t *testing.T) {
	s := DefaultSettings()
	s.MaxExactMatchWords = 3 // exact index exists, promotion stays off
	env := newTestEnv(t, s)
	p := &staticProvider{name: "music"}
	env.reg.Register("main", p)

	env.mustStore(t, p,
		musicItem("clash", 10, "The Clash Hits"),
		musicItem("the", 1, "The"),
	)

	results, err := env.engine.Suggest(context.Background(), "main", "the", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"clash", "the"}, ids(t, results.Flat()))
}

func TestExactSuggest(t *testing.T) {
	s := DefaultSettings()
	s.MaxExactMatchWords = 3
	env := newTestEnv(t, s)
	p := &staticProvider{name: "music"}
	env.reg.Register("main", p)

	env.mustStore(t, p,
		musicItem("u2", 10, "U2"),
		musicItem("u2tribute", 9, "U2 Tribute Band"),
	)

	// Prefix matching would return both; exact only the whole term.
	results, err := env.engine.ExactSuggest(context.Background(), "main", "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, ids(t, results.Flat()))

	results, err = env.engine.ExactSuggest(context.Background(), "main", "u2 tribute")
	require.NoError(t, err)
	assert.Zero(t, results.Len())
}

func TestExactSuggestDisabledWithoutExactIndex(t *testing.T) {
	env := newTestEnv(t, DefaultSettings()) // MaxExactMatchWords 0
	p := &staticProvider{name: "music"}
	env.reg.Register("main", p)

	env.mustStore(t, p, musicItem("u2", 10, "U2"))

	results, err := env.engine.ExactSuggest(context.Background(), "main", "u2")
	require.NoError(t, err)
	assert.Zero(t, results.Len())
}

func TestSuggestFacetAnd(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{name: "music", facets: []string{"genre", "decade"}}
	env.reg.Register("main", p)

	rocker := func(id string, genre string, decade int) Item {
		return Item{
			ID:    id,
			Terms: []string{"band " + id},
			Score: 5,
			Data:  map[string]any{"id": id, "genre": genre, "decade": decade},
		}
	}
	env.mustStore(t, p,
		rocker("a", "rock", 1960),
		rocker("b", "rock", 1970),
		rocker("c", "pop", 1960),
	)

	results, err := env.engine.Suggest(context.Background(), "main", "band", []Facet{
		{Type: "and", Facets: []FacetValue{
			{Key: "genre", Value: "rock"},
			{Key: "decade", Value: 1960},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(t, results.Flat()))
}

func TestSuggestFacetOr(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{name: "music", facets: []string{"genre"}}
	env.reg.Register("main", p)

	byGenre := func(id, genre string) Item {
		return Item{
			ID:    id,
			Terms: []string{"band " + id},
			Score: 5,
			Data:  map[string]any{"id": id, "genre": genre},
		}
	}
	env.mustStore(t, p,
		byGenre("a", "rock"),
		byGenre("b", "pop"),
		byGenre("c", "jazz"),
	)

	results, err := env.engine.Suggest(context.Background(), "main", "band", []Facet{
		{Type: "or", Facets: []FacetValue{
			{Key: "genre", Value: "rock"},
			{Key: "genre", Value: "jazz"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(t, results.Flat()))
}

func TestSuggestFacetsIgnoredForUndeclaredKeys(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{name: "music"} // declares no facets
	env.reg.Register("main", p)

	env.mustStore(t, p, musicItem("u2", 10, "U2"))

	// The facet references a key the provider does not declare, so the
	// provider is searched unfaceted rather than producing nothing.
	results, err := env.engine.Suggest(context.Background(), "main", "u2", []Facet{
		{Type: "and", Facets: []FacetValue{{Key: "genre", Value: "rock"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, ids(t, results.Flat()))
}

func TestSuggestExactPromotionRespectsFacets(t *testing.T) {
	s := DefaultSettings()
	s.MaxExactMatchWords = 3
	s.MoveExactMatchesToTop = true
	env := newTestEnv(t, s)
	p := &staticProvider{name: "music", facets: []string{"genre"}}
	env.reg.Register("main", p)

	env.mustStore(t, p,
		Item{ID: "popact", Terms: []string{"hits"}, Score: 1, Data: map[string]any{"id": "popact", "genre": "pop"}},
		Item{ID: "rockact", Terms: []string{"hits collection"}, Score: 5, Data: map[string]any{"id": "rockact", "genre": "rock"}},
	)

	// "hits" is an exact match for the pop act, but the rock facet must
	// keep it out.
	results, err := env.engine.Suggest(context.Background(), "main", "hits", []Facet{
		{Type: "and", Facets: []FacetValue{{Key: "genre", Value: "rock"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"rockact"}, ids(t, results.Flat()))
}

func TestSuggestMultiProviderResultShape(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	music := &staticProvider{name: "music"}
	films := &staticProvider{name: "films"}
	env.reg.Register("main", music)
	env.reg.Register("main", films)

	env.mustStore(t, music, musicItem("u2", 10, "union"))
	env.mustStore(t, films, musicItem("up", 10, "union station"))

	results, err := env.engine.Suggest(context.Background(), "main", "union", nil)
	require.NoError(t, err)
	assert.False(t, results.Flattened())
	assert.Equal(t, []string{"music", "films"}, results.Providers())
}

func TestSuggestSingleProviderFlattens(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{name: "music"}
	env.reg.Register("main", p)

	env.mustStore(t, p, musicItem("u2", 10, "U2"))

	results, err := env.engine.Suggest(context.Background(), "main", "u2", nil)
	require.NoError(t, err)
	assert.True(t, results.Flattened())
}

func TestSuggestEmptyQueryNormalization(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{name: "music"}
	env.reg.Register("main", p)

	env.mustStore(t, p, musicItem("u2", 10, "U2"))

	// Nothing survives normalization; no Redis query runs.
	results, err := env.engine.Suggest(context.Background(), "main", "!!!", nil)
	require.NoError(t, err)
	assert.Zero(t, results.Len())
}

func TestSuggestUnknownAutocompleter(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())

	results, err := env.engine.Suggest(context.Background(), "nope", "u2", nil)
	require.NoError(t, err)
	assert.Zero(t, results.Len())
}

func TestSuggestCacheServesRepeatQueries(t *testing.T) {
	s := DefaultSettings()
	s.CacheTimeout = time.Minute
	env := newTestEnv(t, s)
	p := &staticProvider{name: "music"}
	env.reg.Register("main", p)

	env.mustStore(t, p, musicItem("u2", 10, "U2"))

	first, err := env.engine.Suggest(context.Background(), "main", "u2", nil)
	require.NoError(t, err)
	require.Equal(t, 1, first.Len())

	// Retract the item; the cached entry still answers.
	require.NoError(t, env.indexer.Remove(context.Background(), p, Item{ID: "u2"}))

	second, err := env.engine.Suggest(context.Background(), "main", "u2", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Len())

	// Facet expressions key separate cache entries.
	faceted, err := env.engine.Suggest(context.Background(), "main", "u2", []Facet{
		{Type: "and", Facets: []FacetValue{{Key: "genre", Value: "rock"}}},
	})
	require.NoError(t, err)
	assert.Zero(t, faceted.Len())
}

func TestSuggestLeavesNoIntermediateKeys(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{name: "music", facets: []string{"genre"}}
	env.reg.Register("main", p)

	env.mustStore(t, p, Item{
		ID: "u2", Terms: []string{"U2 The Band"}, Score: 10,
		Data: map[string]any{"id": "u2", "genre": "rock"},
	})

	_, err := env.engine.Suggest(context.Background(), "main", "u2 the", []Facet{
		{Type: "and", Facets: []FacetValue{{Key: "genre", Value: "rock"}}},
	})
	require.NoError(t, err)

	ctx := context.Background()
	iter := testRedis.Scan(ctx, 0, testKeyRoot+".results.*", 0).Iterator()
	var leftover []string
	for iter.Next(ctx) {
		leftover = append(leftover, iter.Val())
	}
	require.NoError(t, iter.Err())
	assert.Empty(t, leftover)
}

func TestProviderResult(t *testing.T) {
	env := newTestEnv(t, DefaultSettings())
	p := &staticProvider{name: "music"}
	env.reg.Register("main", p)

	env.mustStore(t, p, musicItem("u2", 10, "U2"))

	payload, err := env.engine.ProviderResult(context.Background(), "music", "u2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u2"}`, string(payload))

	payload, err = env.engine.ProviderResult(context.Background(), "music", "ghost")
	require.NoError(t, err)
	assert.Nil(t, payload)
}
