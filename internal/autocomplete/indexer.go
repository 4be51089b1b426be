package autocomplete

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// deleteChunkSize bounds the number of keys per DEL command during bulk
// teardown, keeping individual commands small.
const deleteChunkSize = 100

// storeAllConcurrency bounds the number of in-flight items during bulk
// indexing.
const storeAllConcurrency = 8

// Indexer writes and retracts the postings of items: prefix and exact
// sorted sets, facet sorted sets, the bookkeeping sets, and the
// id -> payload/terms/facets hashes. All writes of one item go out as a
// single pipelined batch.
type Indexer struct {
	log  *zap.Logger
	rdb  *redis.Client
	reg  *Registry
	keys keySchema
}

// NewIndexer constructs an indexer rooted at the given key namespace.
// An empty root selects DefaultKeyRoot.
func NewIndexer(log *zap.Logger, rdb *redis.Client, reg *Registry, root string) *Indexer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Indexer{
		log:  log.Named("indexer"),
		rdb:  rdb,
		reg:  reg,
		keys: newKeySchema(root),
	}
}

// storedScore converts the logical score (higher is better) into the
// stored score (lower is better). Redis returns sorted sets ascending
// with lexicographic tie-breaking on the member, so storing reciprocals
// keeps equal-score items alphabetical by id. Logical zero means "rank
// last" and maps to +Inf.
func storedScore(score float64) float64 {
	if score <= 0 {
		return math.Inf(1)
	}
	return 1 / score
}

// normTerms computes the full index key space of an item's terms: every
// join-char variation of every term, expanded through the provider's
// phrase aliases, deduplicated preserving order.
func (ix *Indexer) normTerms(p Provider, terms []string) []string {
	joinChars := ix.reg.JoinChars(p.Name())
	filter := ix.reg.CharacterFilter(p.Name())

	var variants []string
	for _, term := range terms {
		variants = append(variants, NormTermVariations(term, joinChars, filter)...)
	}

	aliases := ix.reg.normAliases(p)
	if len(aliases) > 0 {
		var expanded []string
		for _, v := range variants {
			expanded = append(expanded, aliasedVariations(v, aliases)...)
		}
		variants = expanded
	}

	seen := make(map[string]struct{}, len(variants))
	out := variants[:0]
	for _, v := range variants {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// oldNormTerms fetches the previously stored normalized terms of an id,
// or nil when the id was never stored.
func (ix *Indexer) oldNormTerms(ctx context.Context, providerName, id string) ([]string, error) {
	raw, err := ix.rdb.HGet(ctx, ix.keys.termMap(providerName), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read term map: %w", err)
	}
	var terms []string
	if err := json.Unmarshal([]byte(raw), &terms); err != nil {
		return nil, fmt.Errorf("decode term map entry: %w", err)
	}
	return terms, nil
}

// oldFacets fetches the previously stored facet list of an id, or nil.
func (ix *Indexer) oldFacets(ctx context.Context, providerName, id string) ([]FacetValue, error) {
	raw, err := ix.rdb.HGet(ctx, ix.keys.facetMap(providerName), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read facet map: %w", err)
	}
	var facets []FacetValue
	if err := json.Unmarshal([]byte(raw), &facets); err != nil {
		return nil, fmt.Errorf("decode facet map entry: %w", err)
	}
	return facets, nil
}

// Store indexes one item: prefix postings for every prefix of every word
// of every normalized variant, exact postings for variants short enough,
// facet postings, and the id -> payload/terms/facets hashes.
//
// When the stored terms and facets are unchanged only the payload is
// rewritten. When deleteOld is set, postings of a previous version of
// the item are retracted first so renames leave no orphans. An item the
// provider no longer includes is removed instead.
func (ix *Indexer) Store(ctx context.Context, p Provider, item Item, deleteOld bool) error {
	if !ix.reg.knownProvider(p.Name()) {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, p.Name())
	}
	if item.ID == "" {
		return ErrEmptyItemID
	}
	if !p.Include(item) {
		return ix.Remove(ctx, p, item)
	}

	providerName := p.Name()
	normTerms := ix.normTerms(p, item.Terms)
	score := storedScore(item.Score)
	facets := facetValues(p, item)

	data := item.Data
	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("serialize payload: %w", err)
	}

	oldTerms, err := ix.oldNormTerms(ctx, providerName, item.ID)
	if err != nil {
		return err
	}
	oldFacets, err := ix.oldFacets(ctx, providerName, item.ID)
	if err != nil {
		return err
	}

	termsChanged := !slices.Equal(normTerms, oldTerms)
	facetsChanged := !facetListsEqual(facets, oldFacets)

	// Fast path: same terms, same facets. Only the payload moves.
	if !termsChanged && !facetsChanged && oldTerms != nil {
		if err := ix.rdb.HSet(ctx, ix.keys.payload(providerName), item.ID, payload).Err(); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
		return nil
	}

	if deleteOld {
		if termsChanged && oldTerms != nil {
			if err := ix.clearTerms(ctx, providerName, item.ID, oldTerms); err != nil {
				return err
			}
		}
		if facetsChanged && oldFacets != nil {
			if err := ix.clearFacets(ctx, providerName, item.ID, oldFacets); err != nil {
				return err
			}
		}
	}

	pipe := ix.rdb.Pipeline()

	for _, term := range normTerms {
		for _, word := range strings.Fields(term) {
			prefix := ""
			for _, r := range word {
				prefix += string(r)
				pipe.ZAdd(ctx, ix.keys.prefix(providerName, prefix), redis.Z{Score: score, Member: item.ID})
				pipe.SAdd(ctx, ix.keys.prefixSet(providerName), prefix)
			}
		}
	}

	if maxExact := ix.reg.MaxExactMatchWords(providerName); maxExact > 0 {
		for _, term := range normTerms {
			if len(strings.Fields(term)) > maxExact {
				continue
			}
			pipe.ZAdd(ctx, ix.keys.exact(providerName, term), redis.Z{Score: score, Member: item.ID})
			pipe.SAdd(ctx, ix.keys.exactSet(providerName), term)
		}
	}

	for _, fv := range facets {
		pipe.ZAdd(ctx, ix.keys.facetSet(providerName, fv.Key, fv.valueString()), redis.Z{Score: score, Member: item.ID})
	}

	pipe.HSet(ctx, ix.keys.payload(providerName), item.ID, payload)

	termsJSON, err := json.Marshal(normTerms)
	if err != nil {
		return fmt.Errorf("serialize terms: %w", err)
	}
	pipe.HSet(ctx, ix.keys.termMap(providerName), item.ID, termsJSON)

	if len(facets) > 0 {
		facetsJSON, err := json.Marshal(facets)
		if err != nil {
			return fmt.Errorf("serialize facets: %w", err)
		}
		pipe.HSet(ctx, ix.keys.facetMap(providerName), item.ID, facetsJSON)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store %s/%s: %w", providerName, item.ID, err)
	}

	ix.log.Debug("stored item",
		zap.String("provider", providerName),
		zap.String("id", item.ID),
		zap.Int("variants", len(normTerms)),
	)
	return nil
}

// Remove retracts every posting of an item and deletes its payload,
// terms and facets entries. Removing an item that was never stored is a
// no-op.
func (ix *Indexer) Remove(ctx context.Context, p Provider, item Item) error {
	if !ix.reg.knownProvider(p.Name()) {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, p.Name())
	}
	if item.ID == "" {
		return ErrEmptyItemID
	}

	oldTerms, err := ix.oldNormTerms(ctx, p.Name(), item.ID)
	if err != nil {
		return err
	}
	if oldTerms != nil {
		if err := ix.clearTerms(ctx, p.Name(), item.ID, oldTerms); err != nil {
			return err
		}
	}

	oldFacets, err := ix.oldFacets(ctx, p.Name(), item.ID)
	if err != nil {
		return err
	}
	if oldFacets != nil {
		if err := ix.clearFacets(ctx, p.Name(), item.ID, oldFacets); err != nil {
			return err
		}
	}
	return nil
}

// clearTerms retracts every prefix and exact posting derived from the
// given normalized terms, and drops the id from the payload and term
// hashes.
func (ix *Indexer) clearTerms(ctx context.Context, providerName, id string, normTerms []string) error {
	pipe := ix.rdb.Pipeline()

	for _, term := range normTerms {
		for _, word := range strings.Fields(term) {
			prefix := ""
			for _, r := range word {
				prefix += string(r)
				pipe.ZRem(ctx, ix.keys.prefix(providerName, prefix), id)
				pipe.SRem(ctx, ix.keys.prefixSet(providerName), prefix)
			}
		}
	}

	for _, term := range normTerms {
		pipe.ZRem(ctx, ix.keys.exact(providerName, term), id)
		pipe.SRem(ctx, ix.keys.exactSet(providerName), term)
	}

	pipe.HDel(ctx, ix.keys.payload(providerName), id)
	pipe.HDel(ctx, ix.keys.termMap(providerName), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear terms %s/%s: %w", providerName, id, err)
	}
	return nil
}

// clearFacets retracts the facet postings of an id and drops it from the
// facet hash.
func (ix *Indexer) clearFacets(ctx context.Context, providerName, id string, facets []FacetValue) error {
	pipe := ix.rdb.Pipeline()
	for _, fv := range facets {
		pipe.ZRem(ctx, ix.keys.facetSet(providerName, fv.Key, fv.valueString()), id)
	}
	pipe.HDel(ctx, ix.keys.facetMap(providerName), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear facets %s/%s: %w", providerName, id, err)
	}
	return nil
}

// StoreAll indexes every item of every provider of the named
// autocompleter, then purges the autocompleter's cache namespace.
func (ix *Indexer) StoreAll(ctx context.Context, name string, deleteOld bool) error {
	start := time.Now()
	providers := ix.reg.Providers(name)
	if len(providers) == 0 {
		return nil
	}

	// Bulk writes always invalidate the cache, even on partial failure.
	defer func() {
		if err := ix.ClearCache(context.WithoutCancel(ctx), name); err != nil {
			ix.log.Warn("cache purge after bulk store failed", zap.String("autocompleter", name), zap.Error(err))
		}
	}()

	total := 0
	for _, p := range providers {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(storeAllConcurrency)

		count := 0
		iterErr := p.Iterate(ctx, func(item Item) error {
			count++
			g.Go(func() error {
				return ix.Store(gctx, p, item, deleteOld)
			})
			return gctx.Err()
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("bulk store %s: %w", p.Name(), err)
		}
		if iterErr != nil {
			return fmt.Errorf("iterate %s: %w", p.Name(), iterErr)
		}
		total += count
	}

	ix.log.Info("bulk store complete",
		zap.String("autocompleter", name),
		zap.Int("items", total),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// RemoveAll deletes every key of every provider of the named
// autocompleter, whether or not the underlying items still exist: the
// bookkeeping sets drive deletion of the prefix and exact postings, the
// hashes are dropped wholesale, and a final scan sweeps stragglers
// (facet sets, postings orphaned by interrupted stores). The cache
// namespace is purged last.
func (ix *Indexer) RemoveAll(ctx context.Context, name string) error {
	start := time.Now()
	providers := ix.reg.Providers(name)
	if len(providers) == 0 {
		return nil
	}

	for _, p := range providers {
		providerName := p.Name()

		prefixes, err := ix.rdb.SMembers(ctx, ix.keys.prefixSet(providerName)).Result()
		if err != nil {
			return fmt.Errorf("read prefix set %s: %w", providerName, err)
		}
		exactTerms, err := ix.rdb.SMembers(ctx, ix.keys.exactSet(providerName)).Result()
		if err != nil {
			return fmt.Errorf("read exact set %s: %w", providerName, err)
		}

		doomed := make([]string, 0, len(prefixes)+len(exactTerms)+5)
		for _, prefix := range prefixes {
			doomed = append(doomed, ix.keys.prefix(providerName, prefix))
		}
		doomed = append(doomed, ix.keys.prefixSet(providerName))
		for _, term := range exactTerms {
			doomed = append(doomed, ix.keys.exact(providerName, term))
		}
		doomed = append(doomed,
			ix.keys.exactSet(providerName),
			ix.keys.payload(providerName),
			ix.keys.termMap(providerName),
			ix.keys.facetMap(providerName),
		)
		if err := ix.deleteChunked(ctx, doomed); err != nil {
			return fmt.Errorf("delete postings %s: %w", providerName, err)
		}

		// Postings can outlive the bookkeeping sets when an id changed
		// and the old one was never retracted. Sweep what's left.
		leftovers, err := ix.scanKeys(ctx, ix.keys.providerPattern(providerName))
		if err != nil {
			return fmt.Errorf("scan leftovers %s: %w", providerName, err)
		}
		if err := ix.deleteChunked(ctx, leftovers); err != nil {
			return fmt.Errorf("delete leftovers %s: %w", providerName, err)
		}
	}

	if err := ix.ClearCache(ctx, name); err != nil {
		return err
	}

	ix.log.Info("bulk remove complete",
		zap.String("autocompleter", name),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// ClearCache purges every cached suggest and exact-suggest result of the
// named autocompleter.
func (ix *Indexer) ClearCache(ctx context.Context, name string) error {
	keys, err := ix.scanKeys(ctx, ix.keys.cachePattern(name))
	if err != nil {
		return fmt.Errorf("scan cache: %w", err)
	}
	exactKeys, err := ix.scanKeys(ctx, ix.keys.exactCachePattern(name))
	if err != nil {
		return fmt.Errorf("scan exact cache: %w", err)
	}
	return ix.deleteChunked(ctx, append(keys, exactKeys...))
}

func (ix *Indexer) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := ix.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %q: %w", pattern, err)
	}
	return keys, nil
}

func (ix *Indexer) deleteChunked(ctx context.Context, keys []string) error {
	for len(keys) > 0 {
		n := min(len(keys), deleteChunkSize)
		if err := ix.rdb.Del(ctx, keys[:n]...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		keys = keys[n:]
	}
	return nil
}
