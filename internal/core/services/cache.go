package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/docmind/internal/core/domain"
	"github.com/custodia-labs/docmind/internal/logger"
)

// ResultCache memoises search results until a bucket they depend on changes.
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]*domain.CacheEntry
	maxEntries int
	now        func() time.Time

	// version reports the current index snapshot.
	version func() uint64
}

// NewResultCache creates a cache holding at most maxEntries results.
// A non-positive maxEntries uses domain.DefaultCacheMaxEntries.
func NewResultCache(maxEntries int, version func() uint64) *ResultCache {
	if maxEntries <= 0 {
		maxEntries = domain.DefaultCacheMaxEntries
	}
	return &ResultCache{
		entries:    make(map[string]*domain.CacheEntry),
		maxEntries: maxEntries,
		now:        time.Now,
		version:    version,
	}
}

// CacheKey combines the query features with every option that changes the result.
func CacheKey(features *domain.QueryFeatures, opts domain.SearchOptions) string {
	buckets := append([]string(nil), opts.Buckets...)
	sort.Strings(buckets)
	scope := opts.Scope
	if scope == "" {
		scope = domain.ScopeAll
	}
	return fmt.Sprintf("%s|expand=%t|threshold=%g|max=%d|scope=%s|buckets=%s",
		features.CacheKey(), opts.ExpandSynonyms, opts.FuzzyThreshold,
		opts.EffectiveMaxResults(), scope, strings.Join(buckets, ","))
}

// Get returns a copy of the cached result for key.
func (c *ResultCache) Get(key string) (*domain.SearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return entry.Result.Clone(), true
}

// Put stores a result computed against snapshot version. Results computed
// against an older snapshot than the current one are discarded.
func (c *ResultCache) Put(key string, result *domain.SearchResult, buckets []string, version uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.version != nil && c.version() != version {
		logger.Debug("Discarding stale result for %q (snapshot %d)", result.Query, version)
		return false
	}

	depends := make(map[string]struct{}, len(buckets))
	for _, b := range buckets {
		depends[b] = struct{}{}
	}

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = &domain.CacheEntry{
		Key:              key,
		Result:           result.Clone(),
		CreatedAt:        c.now(),
		DependsOnBuckets: depends,
		Version:          version,
	}
	return true
}

// Invalidate evicts every entry depending on any of the buckets.
func (c *ResultCache) Invalidate(buckets []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, entry := range c.entries {
		if entry.DependsOn(buckets) {
			delete(c.entries, key)
			evicted++
		}
	}
	if evicted > 0 {
		logger.Debug("Cache: evicted %d entries for buckets %v", evicted, buckets)
	}
	return evicted
}

// Clear removes every entry.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*domain.CacheEntry)
}

// Len returns the number of cached results.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the entry with the earliest CreatedAt. Caller must hold mu.
func (c *ResultCache) evictOldest() {
	var oldest *domain.CacheEntry
	for _, e := range c.entries {
		if oldest == nil || e.CreatedAt.Before(oldest.CreatedAt) ||
			(e.CreatedAt.Equal(oldest.CreatedAt) && e.Key < oldest.Key) {
			oldest = e
		}
	}
	if oldest != nil {
		delete(c.entries, oldest.Key)
	}
}
