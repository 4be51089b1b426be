package autocomplete

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Engine answers suggest queries against the postings the Indexer
// maintains. All sorted-set math happens server-side in Redis; one
// pipelined batch per query computes every provider's candidate ids,
// and a second hydrates payloads.
type Engine struct {
	log  *zap.Logger
	rdb  *redis.Client
	reg  *Registry
	keys keySchema
}

// NewEngine constructs a query engine over the same key root as the
// indexer that feeds it.
func NewEngine(log *zap.Logger, rdb *redis.Client, reg *Registry, root string) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		log:  log.Named("engine"),
		rdb:  rdb,
		reg:  reg,
		keys: newKeySchema(root),
	}
}

// providerCmds holds the queued ZRANGE results of one provider until the
// pipeline executes.
type providerCmds struct {
	prefix *redis.StringSliceCmd
	exact  *redis.StringSliceCmd
}

// Suggest returns ranked payloads for a prefix query, optionally
// filtered by a facet expression. Results are grouped per provider with
// the shared budget split between them; exact matches are promoted to
// the top when the autocompleter is configured to do so.
func (e *Engine) Suggest(ctx context.Context, name, q string, facets []Facet) (*Results, error) {
	providers := e.reg.Providers(name)
	if len(providers) == 0 {
		return newResults(true), nil
	}

	maxResults := e.reg.MaxResults(name)
	cacheTimeout := e.reg.CacheTimeout(name)
	moveExact := e.reg.MoveExactMatchesToTop(name)

	var cacheKey string
	if cacheTimeout > 0 {
		normQuery := Normalize(q, e.reg.JoinChars(""), e.reg.CharacterFilter(""))
		cacheKey = e.keys.cache(name, normQuery, HashFacets(facets))
		if cached, err := e.readCache(ctx, cacheKey, name); err != nil {
			return nil, err
		} else if cached != nil {
			return cached, nil
		}
	}

	normTerms := NormTermVariations(q, e.reg.JoinChars(""), e.reg.CharacterFilter(""))
	if len(normTerms) == 0 {
		return newResults(true), nil
	}

	facetKeys := make(map[string]struct{})
	for _, f := range facets {
		for _, fv := range f.Facets {
			facetKeys[fv.Key] = struct{}{}
		}
	}

	// Intermediate sorted sets get a per-request namespace so concurrent
	// queries cannot trample each other.
	baseResultKey := e.keys.result(uuid.NewString())
	baseExactKey := e.keys.result(uuid.NewString())
	var toDelete []string

	pipe := e.rdb.Pipeline()
	cmds := make(map[string]providerCmds, len(providers))
	skipped := make(map[string]bool, len(providers))
	queryLen := utf8.RuneCountInString(q)

	for _, p := range providers {
		providerName := p.Name()
		if queryLen < e.reg.MinLetters(name, providerName) {
			skipped[providerName] = true
			continue
		}

		// One candidate set per variant: the intersection of the prefix
		// postings of its words. Variants then union together.
		variantKeys := make([]string, 0, len(normTerms))
		for i, term := range normTerms {
			wordKeys := wordPrefixKeys(e.keys, providerName, term)
			if len(wordKeys) == 0 {
				continue
			}
			if len(wordKeys) == 1 {
				variantKeys = append(variantKeys, wordKeys[0])
				continue
			}
			dest := fmt.Sprintf("%s.%d", baseResultKey, i)
			pipe.ZInterStore(ctx, dest, &redis.ZStore{Keys: wordKeys, Aggregate: "MIN"})
			toDelete = append(toDelete, dest)
			variantKeys = append(variantKeys, dest)
		}
		if len(variantKeys) == 0 {
			skipped[providerName] = true
			continue
		}

		resultKey := variantKeys[0]
		if len(variantKeys) > 1 {
			pipe.ZUnionStore(ctx, baseResultKey, &redis.ZStore{Keys: variantKeys, Aggregate: "MIN"})
			toDelete = append(toDelete, baseResultKey)
			resultKey = baseResultKey
		}

		useFacets := len(facetKeys) > 0 && subset(facetKeys, p.Facets())
		var facetResultKeys []string
		if useFacets {
			facetResultKeys = e.queueFacetSets(ctx, pipe, providerName, facets, &toDelete)
		}

		finalKey := resultKey
		if len(facetResultKeys) > 0 {
			finalKey = e.keys.result(uuid.NewString())
			pipe.ZInterStore(ctx, finalKey, &redis.ZStore{
				Keys:      append([]string{resultKey}, facetResultKeys...),
				Aggregate: "MIN",
			})
			toDelete = append(toDelete, finalKey)
		}

		pc := providerCmds{
			prefix: pipe.ZRange(ctx, finalKey, 0, int64(maxResults-1)),
		}

		if moveExact && e.reg.MaxExactMatchWords(providerName) > 0 {
			exactKeys := make([]string, 0, len(normTerms))
			for _, term := range normTerms {
				exactKeys = append(exactKeys, e.keys.exact(providerName, term))
			}
			exactKey := exactKeys[0]
			if len(exactKeys) > 1 {
				pipe.ZUnionStore(ctx, baseExactKey, &redis.ZStore{Keys: exactKeys, Aggregate: "MIN"})
				toDelete = append(toDelete, baseExactKey)
				exactKey = baseExactKey
			}
			// Exact promotion must not leak items the facet filter
			// excludes.
			if len(facetResultKeys) > 0 {
				dest := e.keys.result(uuid.NewString())
				pipe.ZInterStore(ctx, dest, &redis.ZStore{
					Keys:      append([]string{exactKey}, facetResultKeys...),
					Aggregate: "MIN",
				})
				toDelete = append(toDelete, dest)
				exactKey = dest
			}
			pc.exact = pipe.ZRange(ctx, exactKey, 0, int64(maxResults-1))
		}

		cmds[providerName] = pc
	}

	if len(toDelete) > 0 {
		pipe.Del(ctx, toDelete...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		// The trailing DEL never ran; don't leave intermediates behind.
		if len(toDelete) > 0 {
			e.rdb.Del(context.WithoutCancel(ctx), toDelete...)
		}
		return nil, fmt.Errorf("suggest %s: %w", name, err)
	}

	order := make([]string, 0, len(providers))
	available := make(map[string]int, len(providers))
	idsByProvider := make(map[string][]string, len(providers))
	for _, p := range providers {
		providerName := p.Name()
		order = append(order, providerName)
		if skipped[providerName] {
			continue
		}
		pc := cmds[providerName]
		ids := pc.prefix.Val()
		if pc.exact != nil {
			ids = promoteExact(ids, pc.exact.Val())
		}
		idsByProvider[providerName] = ids
		available[providerName] = len(ids)
	}

	budget := allocateBudget(maxResults, order, available, skipped)
	for providerName, n := range budget {
		idsByProvider[providerName] = idsByProvider[providerName][:n]
	}

	results, err := e.hydrate(ctx, name, order, skipped, idsByProvider)
	if err != nil {
		return nil, err
	}

	if cacheKey != "" {
		e.writeCache(ctx, cacheKey, results, cacheTimeout)
	}
	return results, nil
}

// ExactSuggest returns ranked payloads for whole-term matches only: the
// query must equal a stored term of the item (in some normalized
// variation) rather than merely prefix it.
func (e *Engine) ExactSuggest(ctx context.Context, name, q string) (*Results, error) {
	providers := e.reg.Providers(name)
	if len(providers) == 0 {
		return newResults(true), nil
	}

	maxResults := e.reg.MaxResults(name)
	cacheTimeout := e.reg.CacheTimeout(name)

	var cacheKey string
	if cacheTimeout > 0 {
		cacheKey = e.keys.exactCache(name, q)
		if cached, err := e.readCache(ctx, cacheKey, name); err != nil {
			return nil, err
		} else if cached != nil {
			return cached, nil
		}
	}

	normTerms := NormTermVariations(q, e.reg.JoinChars(""), e.reg.CharacterFilter(""))
	if len(normTerms) == 0 {
		return newResults(true), nil
	}

	// A single scratch key is reused across providers: the pipeline
	// executes its commands in queue order, so each ZRANGE sees only its
	// own provider's union. Unlike Suggest, every provider may return up
	// to the full budget; exact matches are rare enough not to split it.
	scratch := e.keys.result(uuid.NewString())

	pipe := e.rdb.Pipeline()
	rangeCmds := make(map[string]*redis.StringSliceCmd, len(providers))

	for _, p := range providers {
		providerName := p.Name()
		exactKeys := make([]string, 0, len(normTerms))
		for _, term := range normTerms {
			exactKeys = append(exactKeys, e.keys.exact(providerName, term))
		}
		pipe.ZUnionStore(ctx, scratch, &redis.ZStore{Keys: exactKeys, Aggregate: "MIN"})
		rangeCmds[providerName] = pipe.ZRange(ctx, scratch, 0, int64(maxResults-1))
		pipe.Del(ctx, scratch)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		e.rdb.Del(context.WithoutCancel(ctx), scratch)
		return nil, fmt.Errorf("exact suggest %s: %w", name, err)
	}

	order := make([]string, 0, len(providers))
	idsByProvider := make(map[string][]string, len(providers))
	for _, p := range providers {
		providerName := p.Name()
		order = append(order, providerName)
		idsByProvider[providerName] = rangeCmds[providerName].Val()
	}

	results, err := e.hydrate(ctx, name, order, nil, idsByProvider)
	if err != nil {
		return nil, err
	}

	if cacheKey != "" {
		e.writeCache(ctx, cacheKey, results, cacheTimeout)
	}
	return results, nil
}

// ProviderResult fetches the stored payload of a single item, or nil
// when the id is not indexed.
func (e *Engine) ProviderResult(ctx context.Context, providerName, id string) (json.RawMessage, error) {
	raw, err := e.rdb.HGet(ctx, e.keys.payload(providerName), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read payload %s/%s: %w", providerName, id, err)
	}
	return json.RawMessage(raw), nil
}

// queueFacetSets queues the sorted-set math of a facet expression and
// returns the keys holding each facet's matching ids. "or" facets union
// their conditions, "and" facets intersect them; the caller intersects
// the returned keys with the prefix candidates.
func (e *Engine) queueFacetSets(ctx context.Context, pipe redis.Pipeliner, providerName string, facets []Facet, toDelete *[]string) []string {
	out := make([]string, 0, len(facets))
	for _, f := range facets {
		keys := make([]string, 0, len(f.Facets))
		for _, fv := range f.Facets {
			keys = append(keys, e.keys.facetSet(providerName, fv.Key, fv.valueString()))
		}
		if len(keys) == 1 {
			out = append(out, keys[0])
			continue
		}
		dest := e.keys.result(uuid.NewString())
		store := &redis.ZStore{Keys: keys, Aggregate: "MIN"}
		if f.Type == "or" {
			pipe.ZUnionStore(ctx, dest, store)
		} else {
			pipe.ZInterStore(ctx, dest, store)
		}
		*toDelete = append(*toDelete, dest)
		out = append(out, dest)
	}
	return out
}

// hydrate resolves ranked ids to payloads with one HMGET per provider,
// preserving rank order and dropping ids whose payload has vanished.
func (e *Engine) hydrate(ctx context.Context, name string, order []string, skipped map[string]bool, idsByProvider map[string][]string) (*Results, error) {
	pipe := e.rdb.Pipeline()
	fetches := make(map[string]*redis.SliceCmd, len(order))
	for _, providerName := range order {
		if skipped[providerName] {
			continue
		}
		ids := idsByProvider[providerName]
		if len(ids) == 0 {
			continue
		}
		fetches[providerName] = pipe.HMGet(ctx, e.keys.payload(providerName), ids...)
	}
	if len(fetches) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("hydrate %s: %w", name, err)
		}
	}

	resultProviders := 0
	for _, providerName := range order {
		if !skipped[providerName] {
			resultProviders++
		}
	}
	flat := e.reg.FlattenSingleResults(name) && resultProviders == 1

	results := newResults(flat)
	for _, providerName := range order {
		if skipped[providerName] {
			continue
		}
		payloads := make([]json.RawMessage, 0, len(idsByProvider[providerName]))
		if cmd, ok := fetches[providerName]; ok {
			for _, v := range cmd.Val() {
				s, ok := v.(string)
				if !ok {
					continue
				}
				payloads = append(payloads, json.RawMessage(s))
			}
		}
		results.add(providerName, payloads)
	}
	return results, nil
}

func (e *Engine) readCache(ctx context.Context, key, name string) (*Results, error) {
	raw, err := e.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read result cache: %w", err)
	}

	providerNames := make([]string, 0)
	for _, p := range e.reg.Providers(name) {
		providerNames = append(providerNames, p.Name())
	}
	results, err := decodeResults(raw, providerNames)
	if err != nil {
		// A stale or corrupt entry should not fail the query.
		e.log.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return nil, nil
	}
	return results, nil
}

func (e *Engine) writeCache(ctx context.Context, key string, results *Results, ttl time.Duration) {
	raw, err := json.Marshal(results)
	if err != nil {
		e.log.Warn("result cache serialize failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := e.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		e.log.Warn("result cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// wordPrefixKeys returns the prefix posting keys of a variant's words.
func wordPrefixKeys(k keySchema, providerName, term string) []string {
	words := strings.Fields(term)
	keys := make([]string, 0, len(words))
	for _, w := range words {
		keys = append(keys, k.prefix(providerName, w))
	}
	return keys
}

// promoteExact moves exact-match ids to the head of the ranked id list,
// preserving their own rank order and deduplicating against the rest.
func promoteExact(ids, exactIDs []string) []string {
	if len(exactIDs) == 0 {
		return ids
	}
	inExact := make(map[string]struct{}, len(exactIDs))
	for _, id := range exactIDs {
		inExact[id] = struct{}{}
	}
	out := make([]string, 0, len(ids)+len(exactIDs))
	out = append(out, exactIDs...)
	for _, id := range ids {
		if _, dup := inExact[id]; dup {
			continue
		}
		out = append(out, id)
	}
	return out
}

// subset reports whether every key in want appears in have.
func subset(want map[string]struct{}, have []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for k := range want {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}
