package autocomplete

// DefaultKeyRoot is the Redis namespace all keys live under. Deployments
// indexing test data should use a distinct root (e.g. "djac.test") so
// bulk teardown can scan it safely.
const DefaultKeyRoot = "djac"

// keySchema derives every Redis key name from the root namespace.
// Keys are deliberately short; prefix postings are created for every
// prefix of every word of every variant, so the schema dominates memory.
type keySchema struct {
	root string
}

func newKeySchema(root string) keySchema {
	if root == "" {
		root = DefaultKeyRoot
	}
	return keySchema{root: root}
}

// payload is the provider's id -> data payload hash.
func (k keySchema) payload(provider string) string {
	return k.root + "." + provider
}

// termMap is the provider's id -> normalized terms hash.
func (k keySchema) termMap(provider string) string {
	return k.root + "." + provider + ".tm"
}

// facetMap is the provider's id -> facet list hash.
func (k keySchema) facetMap(provider string) string {
	return k.root + "." + provider + ".fm"
}

// prefix is the sorted set of (id, score) postings for one word prefix.
func (k keySchema) prefix(provider, word string) string {
	return k.root + "." + provider + ".p." + word
}

// prefixSet is the bookkeeping set of all prefixes stored for a provider.
func (k keySchema) prefixSet(provider string) string {
	return k.root + "." + provider + ".ps"
}

// exact is the sorted set of (id, score) postings for one exact term.
func (k keySchema) exact(provider, term string) string {
	return k.root + "." + provider + ".e." + term
}

// exactSet is the bookkeeping set of all exact terms stored for a provider.
func (k keySchema) exactSet(provider string) string {
	return k.root + "." + provider + ".es"
}

// facetSet is the sorted set of (id, score) postings for one facet value.
func (k keySchema) facetSet(provider, facetKey, facetValue string) string {
	return k.root + "." + provider + ".f." + facetKey + "." + facetValue
}

// cache is a suggest result cache entry.
func (k keySchema) cache(name, normQuery, facetHash string) string {
	return k.root + "." + name + ".c." + normQuery + "." + facetHash
}

// exactCache is an exact-suggest result cache entry.
func (k keySchema) exactCache(name, query string) string {
	return k.root + "." + name + ".ce." + query
}

func (k keySchema) cachePattern(name string) string {
	return k.root + "." + name + ".c.*"
}

func (k keySchema) exactCachePattern(name string) string {
	return k.root + "." + name + ".ce.*"
}

// result is an ephemeral intermediate sorted set. The id must be unique
// per request (a UUID) so concurrent queries cannot collide.
func (k keySchema) result(id string) string {
	return k.root + ".results." + id
}

// providerPattern matches every key under a provider's namespace except
// the payload hash itself. remove_all sweeps it for stragglers.
func (k keySchema) providerPattern(provider string) string {
	return k.root + "." + provider + ".*"
}
