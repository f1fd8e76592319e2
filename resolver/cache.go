package resolver

import (
	"strings"
	"sync"
	"time"

	"github.com/metafates/gache"
	"github.com/tannoy-player/tannoy/filesystem"
	"github.com/tannoy-player/tannoy/where"
)

// cacheEntry is one cached search result set with its insertion timestamp.
// Seq orders entries for eviction; wall-clock timestamps can collide.
type cacheEntry struct {
	Candidates []Candidate `json:"candidates"`
	At         time.Time   `json:"at"`
	Seq        uint64      `json:"seq"`
}

// searchCache keeps recent search results keyed by normalized query.
// Entries expire after a fixed TTL; the cache is capacity-bounded and evicts
// the oldest entry first. State survives restarts through a gache-backed file.
type searchCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	seq      uint64
	entries  map[string]*cacheEntry
	cacher   *gache.Cache[map[string]*cacheEntry]
}

func newSearchCache(ttl time.Duration, capacity int) *searchCache {
	c := &searchCache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*cacheEntry),
		cacher: gache.New[map[string]*cacheEntry](&gache.Options{
			Path:       where.SearchCache(),
			Lifetime:   ttl,
			FileSystem: &filesystem.GacheFs{},
		}),
	}

	// Best effort: warm from the persisted copy, dropping anything stale.
	if persisted, expired, err := c.cacher.Get(); err == nil && !expired && persisted != nil {
		for q, entry := range persisted {
			if time.Since(entry.At) <= ttl {
				c.entries[q] = entry
				if entry.Seq > c.seq {
					c.seq = entry.Seq
				}
			}
		}
	}
	return c
}

// get returns the cached candidates for a query if present and fresh.
func (c *searchCache) get(query string) ([]Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[normalizeQuery(query)]
	if !ok {
		return nil, false
	}
	if time.Since(entry.At) > c.ttl {
		delete(c.entries, normalizeQuery(query))
		return nil, false
	}
	return entry.Candidates, true
}

// put stores a result set, evicting the oldest entry when over capacity.
func (c *searchCache) put(query string, candidates []Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.entries[normalizeQuery(query)] = &cacheEntry{
		Candidates: candidates,
		At:         time.Now(),
		Seq:        c.seq,
	}

	for len(c.entries) > c.capacity {
		var oldestKey string
		var oldestSeq uint64
		for q, entry := range c.entries {
			if oldestKey == "" || entry.Seq < oldestSeq {
				oldestKey = q
				oldestSeq = entry.Seq
			}
		}
		delete(c.entries, oldestKey)
	}

	_ = c.cacher.Set(c.entries)
}

// normalizeQuery folds case and collapses whitespace so trivially different
// spellings of the same query share a cache slot.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
