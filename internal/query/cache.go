package query

import (
	"container/list"
	"strconv"
	"sync"

	"dietinsights/internal/metrics"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"
)

const DefaultCacheEntries = 256

type cacheKey struct {
	version uint64
	hash    uint64
}

type cacheEntry struct {
	key    cacheKey
	params string
	value  any
}

// Cache memoizes query results per snapshot version. A lookup only matches an
// entry stored for the same version, so results computed from an older snapshot
// are never served. Inserting a newer version drops all older entries.
//
// Values must be treated as immutable once stored.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]*list.Element
	lru     *list.List
	latest  uint64
	max     int

	flight singleflight.Group
}

func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	return &Cache{
		entries: make(map[cacheKey]*list.Element),
		lru:     list.New(),
		max:     maxEntries,
	}
}

func (c *Cache) get(version uint64, params string) (any, bool) {
	key := cacheKey{version: version, hash: xxh3.HashString(params)}

	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*cacheEntry)
	if e.params != params {
		return nil, false
	}
	c.lru.MoveToFront(el)
	return e.value, true
}

func (c *Cache) put(version uint64, params string, value any) {
	key := cacheKey{version: version, hash: xxh3.HashString(params)}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case version < c.latest:
		// Computed from a snapshot that has since been replaced
		return
	case version > c.latest:
		c.latest = version
		for k, el := range c.entries {
			if k.version < version {
				c.lru.Remove(el)
				delete(c.entries, k)
			}
		}
	}

	if el, ok := c.entries[key]; ok {
		el.Value = &cacheEntry{key: key, params: params, value: value}
		c.lru.MoveToFront(el)
		return
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, params: params, value: value})
	for c.lru.Len() > c.max {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// cached returns the value stored for (version, params) or computes, stores and
// returns it. Concurrent misses for the same key share one computation.
func cached[T any](c *Cache, version uint64, params string, compute func() T) T {
	if v, ok := c.get(version, params); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return v.(T)
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	flightKey := strconv.FormatUint(version, 10) + "\x00" + params
	v, _, _ := c.flight.Do(flightKey, func() (any, error) {
		if v, ok := c.get(version, params); ok {
			return v, nil
		}
		out := compute()
		c.put(version, params, out)
		return out, nil
	})
	return v.(T)
}
