// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cache

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/danielhkuo/quickly-elect/collections"
	"github.com/danielhkuo/quickly-elect/models"
)

// DefaultTTL is how long a cached result is served before refetching.
const DefaultTTL = 5 * time.Minute

// Signature identifies one find request. Two requests with the same
// collection, predicate, paging and ordering share a cache entry.
type Signature struct {
	Collection string
	Query      string
}

// NewSignature canonicalizes a find request. Map keys are marshaled in sorted
// order, so predicates built in different orders produce the same signature.
func NewSignature(collection string, where collections.Where, opts collections.FindOptions) Signature {
	b, err := json.Marshal(struct {
		Where collections.Where `json:"where,omitempty"`
		Limit int               `json:"limit,omitempty"`
		Skip  int               `json:"skip,omitempty"`
		Sort  []string          `json:"sort,omitempty"`
	}{where, opts.Limit, opts.Skip, opts.Sort})
	if err != nil {
		// Never valid JSON, so it cannot collide with an encodable query.
		return Signature{Collection: collection, Query: "!" + err.Error()}
	}
	return Signature{Collection: collection, Query: string(b)}
}

type entry struct {
	data      []models.Record
	timestamp time.Time
}

// Cache is a TTL map of find results. A nil *Cache is valid and caches nothing.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[Signature]entry
	now     func() time.Time
}

// New returns a cache whose entries live for ttl. A non-positive ttl means DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[Signature]entry),
		now:     time.Now,
	}
}

// Read returns the cached result for sig. Expired entries are evicted and
// reported as a miss.
func (c *Cache) Read(sig Signature) ([]models.Record, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[sig]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.timestamp) >= c.ttl {
		delete(c.entries, sig)
		return nil, false
	}
	return slices.Clone(e.data), true
}

// Write stores data under sig, replacing any previous entry.
func (c *Cache) Write(sig Signature, data []models.Record) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sig] = entry{data: slices.Clone(data), timestamp: c.now()}
}

// Invalidate drops the entry for sig.
func (c *Cache) Invalidate(sig Signature) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sig)
}

// InvalidateCollection drops every entry for collection.
func (c *Cache) InvalidateCollection(collection string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for sig := range c.entries {
		if sig.Collection == collection {
			delete(c.entries, sig)
		}
	}
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len reports how many entries are held, expired or not.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
