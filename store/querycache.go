package store

import (
	"bytes"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/docket/query"
)

// DefaultQueryCacheSize is the number of compiled predicates a QueryCache
// keeps when no size is given.
const DefaultQueryCacheSize = 512

// QueryCache memoizes compiled query predicates keyed by the query's
// MessagePack form with sorted map keys. MessagePack keeps times apart from
// strings. Queries holding typed containers (map[string]int, []string, ...)
// or values of other types are compiled without caching, since their
// encoding would collide with the untyped form the compiler reads
// differently.
type QueryCache struct {
	cache *lru.Cache[string, query.Predicate]
}

// NewQueryCache returns a cache holding up to size predicates.
func NewQueryCache(size int) *QueryCache {
	if size <= 0 {
		size = DefaultQueryCacheSize
	}
	// lru.New only fails for non-positive sizes.
	c, _ := lru.New[string, query.Predicate](size)
	return &QueryCache{cache: c}
}

// Compile returns the predicate for q, compiling it on a miss.
func (c *QueryCache) Compile(q map[string]any) (query.Predicate, error) {
	if len(q) == 0 {
		return query.MatchAll, nil
	}
	key, ok := cacheKey(q)
	if !ok {
		return query.Compile(q)
	}
	if p, ok := c.cache.Get(key); ok {
		return p, nil
	}
	p, err := query.Compile(q)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, p)
	return p, nil
}

func cacheKey(q map[string]any) (string, bool) {
	if !cacheable(q) {
		return "", false
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(q); err != nil {
		return "", false
	}
	return buf.String(), true
}

// cacheable reports whether v only holds untyped containers and scalars
// whose encoding is unambiguous.
func cacheable(v any) bool {
	switch t := v.(type) {
	case nil, string, bool, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	case map[string]any:
		for _, e := range t {
			if !cacheable(e) {
				return false
			}
		}
		return true
	case []any:
		for _, e := range t {
			if !cacheable(e) {
				return false
			}
		}
		return true
	}
	return false
}

// Len reports how many predicates are cached.
func (c *QueryCache) Len() int { return c.cache.Len() }
