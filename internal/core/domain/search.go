package domain

import (
	"fmt"
	"math"
	"time"
)

// Default search option values.
const (
	DefaultFuzzyThreshold = 0.6
	DefaultMaxResults     = 10
)

// SearchScope restricts which sources a search consults.
type SearchScope string

// Search scopes.
const (
	ScopeAll       SearchScope = "all"
	ScopeMemory    SearchScope = "memory"
	ScopeDocuments SearchScope = "documents"
)

// IsValid returns true if the scope is recognised. The empty scope means all.
func (s SearchScope) IsValid() bool {
	switch s {
	case "", ScopeAll, ScopeMemory, ScopeDocuments:
		return true
	default:
		return false
	}
}

// IncludesMemory reports whether the memory pass runs.
func (s SearchScope) IncludesMemory() bool {
	return s != ScopeDocuments
}

// IncludesDocuments reports whether the document pass runs.
func (s SearchScope) IncludesDocuments() bool {
	return s != ScopeMemory
}

// SearchOptions configures a search query.
type SearchOptions struct {
	// ExpandSynonyms enables synonym and domain-term expansion.
	ExpandSynonyms bool

	// FuzzyThreshold is the minimum score in [0,1]. 0 is browse mode,
	// 1 accepts exact-token matches only.
	FuzzyThreshold float64

	// MaxResults caps each result list. 0 uses DefaultMaxResults.
	MaxResults int

	// UseCache enables the result cache for this call.
	UseCache bool

	// Scope restricts the search to memory or documents.
	Scope SearchScope

	// Buckets restricts the memory pass to the named buckets. Empty means all.
	Buckets []string
}

// DefaultSearchOptions returns the options used when a caller passes none.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		ExpandSynonyms: true,
		FuzzyThreshold: DefaultFuzzyThreshold,
		MaxResults:     DefaultMaxResults,
		UseCache:       true,
		Scope:          ScopeAll,
	}
}

// Validate checks option ranges. The returned error wraps ErrInvalidQueryOptions.
func (o SearchOptions) Validate() error {
	if math.IsNaN(o.FuzzyThreshold) || o.FuzzyThreshold < 0 || o.FuzzyThreshold > 1 {
		return fmt.Errorf("%w: fuzzy threshold %v outside [0,1]", ErrInvalidQueryOptions, o.FuzzyThreshold)
	}
	if o.MaxResults < 0 {
		return fmt.Errorf("%w: max results %d is negative", ErrInvalidQueryOptions, o.MaxResults)
	}
	if !o.Scope.IsValid() {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidQueryOptions, o.Scope)
	}
	return nil
}

// EffectiveMaxResults returns MaxResults with the default applied.
func (o SearchOptions) EffectiveMaxResults() int {
	if o.MaxResults <= 0 {
		return DefaultMaxResults
	}
	return o.MaxResults
}

// MatchType is the dominant reason a hit was returned.
type MatchType string

// Match types.
const (
	MatchExact  MatchType = "exact"
	MatchFuzzy  MatchType = "fuzzy"
	MatchTag    MatchType = "tag"
	MatchMemory MatchType = "memory"
)

// SearchPath classifies how a result was produced.
type SearchPath string

// Search paths.
const (
	PathCache        SearchPath = "cache"
	PathMemoryOnly   SearchPath = "memory_only"
	PathDocumentOnly SearchPath = "document_only"
	PathHybrid       SearchPath = "hybrid"
)

// DocumentHit is a scored reference to a document record.
type DocumentHit struct {
	Record      DocumentRecord
	Relevance   float64
	MatchType   MatchType
	MatchReason string
}

// MemoryHit is a scored reference to a memory fact.
type MemoryHit struct {
	Fact      MemoryFact
	Relevance float64
}

// CitationKind identifies what a citation points at.
type CitationKind string

// Citation kinds.
const (
	CitationMemory   CitationKind = "memory"
	CitationDocument CitationKind = "document"
)

// Citation traces part of an answer back to its source.
type Citation struct {
	Kind CitationKind

	// Ref is the bucket name for memory citations and the category for documents.
	Ref string

	// ID is the fact key or document ID.
	ID string

	// Excerpt is at most MaxExcerptLength characters.
	Excerpt string
}

// MaxExcerptLength bounds citation excerpts.
const MaxExcerptLength = 200

// Answer is the synthesised response to a query.
type Answer struct {
	Text string

	// Confidence is in [0, 0.99]; answers are heuristic, never certain.
	Confidence float64

	Sources []Citation
}

// Performance records how long a search took.
type Performance struct {
	TotalTimeMs  float64
	StageTimesMs map[string]float64
}

// Search stage names used in Performance.StageTimesMs.
const (
	StageQuery     = "query"
	StageCache     = "cache"
	StageMemory    = "memory"
	StageDocuments = "documents"
	StageAnswer    = "answer"
)

// SearchResult is the full response to one search call.
type SearchResult struct {
	// ID correlates the result with log lines.
	ID string

	// Query is the raw query text.
	Query string

	Documents  []DocumentHit
	MemoryHits []MemoryHit

	// Answer is nil when no hit was confident enough.
	Answer *Answer

	SearchPath SearchPath

	// Relevance is the combined relevance of the top hits
	// (memory weighted 0.4, documents 0.6 by default).
	Relevance float64

	Performance Performance
}

// EmptyResult returns the result for a query with nothing to match.
func EmptyResult(query string) *SearchResult {
	return &SearchResult{
		Query:      query,
		Documents:  []DocumentHit{},
		MemoryHits: []MemoryHit{},
		SearchPath: PathDocumentOnly,
		Performance: Performance{
			StageTimesMs: map[string]float64{},
		},
	}
}

// Clone returns a copy whose slices and maps can be modified without
// affecting the original.
func (r *SearchResult) Clone() *SearchResult {
	out := *r
	out.Documents = append([]DocumentHit(nil), r.Documents...)
	out.MemoryHits = append([]MemoryHit(nil), r.MemoryHits...)
	if out.Documents == nil {
		out.Documents = []DocumentHit{}
	}
	if out.MemoryHits == nil {
		out.MemoryHits = []MemoryHit{}
	}
	if r.Answer != nil {
		answer := *r.Answer
		answer.Sources = append([]Citation(nil), r.Answer.Sources...)
		out.Answer = &answer
	}
	out.Performance.StageTimesMs = make(map[string]float64, len(r.Performance.StageTimesMs))
	for k, v := range r.Performance.StageTimesMs {
		out.Performance.StageTimesMs[k] = v
	}
	return &out
}

// CacheEntry is a memoised search result.
type CacheEntry struct {
	Key              string
	Result           *SearchResult
	CreatedAt        time.Time
	DependsOnBuckets map[string]struct{}

	// Version is the index snapshot the result was computed against.
	Version uint64
}

// DependsOn reports whether the entry depends on any of the given buckets.
func (e *CacheEntry) DependsOn(buckets []string) bool {
	for _, b := range buckets {
		if _, ok := e.DependsOnBuckets[b]; ok {
			return true
		}
	}
	return false
}
