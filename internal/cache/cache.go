// Package cache implements the Cache component (spec §4.D): a process-local
// TTL+LRU map used for read-through caching of job list/detail reads.
// Grounded on github.com/hashicorp/golang-lru/v2/expirable, new wiring the
// teacher's go.mod listed but never exercised.
package cache

import (
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	maxEntries    = 1000
	listTTL       = 2 * time.Minute
	detailTTL     = 10 * time.Minute
	jobsKeyPrefix = "jobs:"
)

// Stats mirrors what spec §4.D and §4.F's "cache" sub-document require:
// hit/miss/set/delete counters, hit rate, size, and a memory estimate.
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Sets        int64   `json:"sets"`
	Deletes     int64   `json:"deletes"`
	Size        int     `json:"size"`
	HitRate     float64 `json:"hitRate"`
	MemoryBytes int64   `json:"memoryBytesEstimate"`
}

// Cache wraps two expirable LRUs — one per TTL class — since
// golang-lru/v2/expirable applies a single TTL to an entire cache instance
// rather than per-entry. Job detail entries (job:<id>, 10m) and list-query
// entries (jobs:<filter>, 2m) are kept in separate underlying LRUs so each
// gets its own expiry, while Cache still presents one logical keyspace.
type Cache struct {
	details *lru.LRU[string, []byte]
	lists   *lru.LRU[string, []byte]

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

// New builds a Cache using the spec-default TTLs (2m list, 10m detail).
func New() *Cache {
	return NewWithTTL(listTTL, detailTTL)
}

// NewWithTTL builds a Cache with caller-supplied TTLs, letting
// internal/config's tuning overlay (spec §4.D knobs) override the
// defaults. A zero duration falls back to the spec default for that class.
func NewWithTTL(listTTLOverride, detailTTLOverride time.Duration) *Cache {
	if listTTLOverride <= 0 {
		listTTLOverride = listTTL
	}
	if detailTTLOverride <= 0 {
		detailTTLOverride = detailTTL
	}
	return &Cache{
		details: lru.NewLRU[string, []byte](maxEntries, nil, detailTTLOverride),
		lists:   lru.NewLRU[string, []byte](maxEntries, nil, listTTLOverride),
	}
}

func (c *Cache) backingFor(key string) *lru.LRU[string, []byte] {
	if strings.HasPrefix(key, jobsKeyPrefix) {
		return c.lists
	}
	return c.details
}

// Get returns the cached value for key, or (nil, false) on a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	v, ok := c.backingFor(key).Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores value under key using its class's TTL.
func (c *Cache) Set(key string, value []byte) {
	c.backingFor(key).Add(key, value)
	c.sets.Add(1)
}

// Delete removes a single key.
func (c *Cache) Delete(key string) {
	c.backingFor(key).Remove(key)
	c.deletes.Add(1)
}

// Has reports whether key is present without affecting hit/miss counters.
func (c *Cache) Has(key string) bool {
	return c.backingFor(key).Contains(key)
}

// Keys returns every key currently cached, across both TTL classes.
func (c *Cache) Keys() []string {
	keys := append([]string{}, c.lists.Keys()...)
	keys = append(keys, c.details.Keys()...)
	return keys
}

// Clear empties both TTL classes.
func (c *Cache) Clear() {
	c.lists.Purge()
	c.details.Purge()
}

// InvalidateJob deletes job:<id> and every jobs:* list entry (spec §4.D
// coherence policy: any create/update/delete of a job invalidates both).
func (c *Cache) InvalidateJob(detailKey string) {
	c.details.Remove(detailKey)
	c.deletes.Add(1)
	for _, k := range c.lists.Keys() {
		c.lists.Remove(k)
		c.deletes.Add(1)
	}
}

func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	size := c.lists.Len() + c.details.Len()
	return Stats{
		Hits:        hits,
		Misses:      misses,
		Sets:        c.sets.Load(),
		Deletes:     c.deletes.Load(),
		Size:        size,
		HitRate:     rate,
		MemoryBytes: estimateMemory(c),
	}
}

// estimateMemory is a rough, intentionally cheap estimate (spec only asks
// for "a rough memory estimate") — average 512 bytes per cached JSON blob.
func estimateMemory(c *Cache) int64 {
	const avgEntryBytes = 512
	return int64((c.lists.Len() + c.details.Len()) * avgEntryBytes)
}

// DetailKey builds the "job:<id>" cache key (spec §4.D).
func DetailKey(id string) string { return "job:" + id }

// ListKey builds the "jobs:<canonical-json(filter)>" cache key (spec §4.D).
func ListKey(canonicalFilter string) string { return jobsKeyPrefix + canonicalFilter }
