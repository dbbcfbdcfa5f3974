package services

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docmind/internal/core/domain"
)

func newTestCache(maxEntries int) (*ResultCache, *atomic.Uint64, *fakeClock) {
	var version atomic.Uint64
	c := NewResultCache(maxEntries, version.Load)
	clock := newFakeClock(t0)
	c.now = clock.Now
	return c, &version, clock
}

func TestCacheKey(t *testing.T) {
	p := NewQueryProcessor(domain.DefaultRuleSet())
	f := p.Process("Bo Ren investment", true)

	base := domain.DefaultSearchOptions()
	key := CacheKey(&f, base)
	assert.Equal(t, key, CacheKey(&f, base))

	other := base
	other.FuzzyThreshold = 0.3
	assert.NotEqual(t, key, CacheKey(&f, other))

	other = base
	other.Scope = domain.ScopeMemory
	assert.NotEqual(t, key, CacheKey(&f, other))

	a, b := base, base
	a.Buckets = []string{"people", "financial"}
	b.Buckets = []string{"financial", "people"}
	assert.Equal(t, CacheKey(&f, a), CacheKey(&f, b))

	empty := base
	empty.Scope = ""
	assert.Equal(t, key, CacheKey(&f, empty))

	lower := p.Process("bo ren investment", true)
	assert.NotEqual(t, key, CacheKey(&lower, base))
}

func TestResultCache_GetReturnsCopy(t *testing.T) {
	c, _, _ := newTestCache(4)
	result := domain.EmptyResult("q")
	result.MemoryHits = []domain.MemoryHit{{Fact: domain.MemoryFact{Key: "k"}, Relevance: 1}}

	require.True(t, c.Put("k", result, []string{"people"}, 0))
	result.MemoryHits[0].Relevance = 0

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1.0, got.MemoryHits[0].Relevance)

	got.MemoryHits[0].Relevance = 0.5
	again, _ := c.Get("k")
	assert.Equal(t, 1.0, again.MemoryHits[0].Relevance)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestResultCache_DiscardsStaleSnapshot(t *testing.T) {
	c, version, _ := newTestCache(4)
	version.Store(3)

	assert.False(t, c.Put("k", domain.EmptyResult("q"), nil, 2))
	assert.Equal(t, 0, c.Len())

	assert.True(t, c.Put("k", domain.EmptyResult("q"), nil, 3))
	assert.Equal(t, 1, c.Len())
}

func TestResultCache_EvictsOldest(t *testing.T) {
	c, _, clock := newTestCache(2)

	c.Put("first", domain.EmptyResult("1"), nil, 0)
	clock.Advance(time.Second)
	c.Put("second", domain.EmptyResult("2"), nil, 0)
	clock.Advance(time.Second)

	c.Put("second", domain.EmptyResult("2b"), nil, 0)
	assert.Equal(t, 2, c.Len())

	c.Put("third", domain.EmptyResult("3"), nil, 0)
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("first")
	assert.False(t, ok)
	got, ok := c.Get("second")
	require.True(t, ok)
	assert.Equal(t, "2b", got.Query)
}

func TestResultCache_Invalidate(t *testing.T) {
	c, _, _ := newTestCache(8)
	c.Put("people", domain.EmptyResult("p"), []string{domain.BucketPeople}, 0)
	c.Put("docs", domain.EmptyResult("d"), []string{domain.BucketDocuments}, 0)
	c.Put("both", domain.EmptyResult("b"), []string{domain.BucketCompany, domain.BucketDocuments}, 0)

	assert.Equal(t, 2, c.Invalidate([]string{domain.BucketDocuments}))
	_, ok := c.Get("people")
	assert.True(t, ok)

	assert.Equal(t, 0, c.Invalidate([]string{domain.BucketTags}))
	assert.Equal(t, 0, c.Invalidate(nil))

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestNewResultCache_DefaultCapacity(t *testing.T) {
	c := NewResultCache(0, nil)
	assert.Equal(t, domain.DefaultCacheMaxEntries, c.maxEntries)
	assert.True(t, c.Put("k", domain.EmptyResult("q"), nil, 42))
}
