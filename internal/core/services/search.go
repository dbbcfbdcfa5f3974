package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docmind/internal/core/domain"
	"github.com/custodia-labs/docmind/internal/core/ports/driven"
	"github.com/custodia-labs/docmind/internal/core/ports/driving"
	"github.com/custodia-labs/docmind/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// Combined relevance weights.
const (
	memoryRelevanceWeight   = 0.4
	documentRelevanceWeight = 0.6
)

// SearchService answers queries from the memory index and document records.
type SearchService struct {
	index     driving.MemoryIndex
	processor *QueryProcessor
	engine    *RetrievalEngine
	answers   *AnswerSynthesizer
	cache     *ResultCache
	buckets   []string
	defaults  domain.SearchOptions
}

// NewSearchService creates a new search service.
// The cache parameter is optional (can be nil); when set it is subscribed
// to index changes so dependent results are evicted eagerly.
func NewSearchService(
	index driving.MemoryIndex,
	store driven.MetadataStore,
	rules domain.RuleSet,
	cache *ResultCache,
) *SearchService {
	s := &SearchService{
		index:     index,
		processor: NewQueryProcessor(rules),
		engine:    NewRetrievalEngine(index, store),
		answers:   NewAnswerSynthesizer(),
		cache:     cache,
		buckets:   rules.Buckets(),
		defaults:  domain.DefaultSearchOptions(),
	}
	if cache != nil {
		index.Subscribe(func(buckets []string) {
			cache.Invalidate(buckets)
		})
	}
	return s
}

// SetDefaults sets the options used when Search is called without any.
func (s *SearchService) SetDefaults(opts domain.SearchOptions) {
	s.defaults = opts
}

// Search runs a query. Only invalid options produce an error; an
// unavailable index degrades to an empty result.
func (s *SearchService) Search(
	ctx context.Context, rawText string, options *domain.SearchOptions,
) (*domain.SearchResult, error) {
	start := time.Now()
	opts := s.defaults
	if options != nil {
		opts = *options
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Scope == "" {
		opts.Scope = domain.ScopeAll
	}

	id := uuid.NewString()
	logger.Section("Search Execution")
	logger.Debug("Search %s: query=%q threshold=%.2f max=%d", id, rawText, opts.FuzzyThreshold, opts.EffectiveMaxResults())

	stages := make(map[string]float64)
	finish := func(r *domain.SearchResult) *domain.SearchResult {
		r.ID = id
		r.Performance = domain.Performance{
			TotalTimeMs:  elapsedMs(start),
			StageTimesMs: stages,
		}
		log := logger.With().Str("search", id).Logger()
		log.Info().
			Str("path", string(r.SearchPath)).
			Int("documents", len(r.Documents)).
			Int("facts", len(r.MemoryHits)).
			Float64("ms", r.Performance.TotalTimeMs).
			Msg("Search complete")
		return r
	}

	stage := time.Now()
	features := s.processor.Process(rawText, opts.ExpandSynonyms)
	stages[domain.StageQuery] = elapsedMs(stage)
	logger.Debug("Features: tokens=%d amounts=%v dates=%v names=%v",
		len(features.Tokens), features.Amounts, features.Dates, features.ProperNames)

	if features.IsEmpty() {
		logger.Debug("Nothing searchable in query")
		return finish(domain.EmptyResult(rawText)), nil
	}

	key := CacheKey(&features, opts)
	useCache := opts.UseCache && s.cache != nil
	if useCache {
		stage = time.Now()
		cached, ok := s.cache.Get(key)
		stages[domain.StageCache] = elapsedMs(stage)
		if ok {
			logger.Debug("Cache hit for %q", key)
			cached.Query = rawText
			cached.SearchPath = domain.PathCache
			return finish(cached), nil
		}
	}

	version := s.index.SnapshotVersion()
	result := domain.EmptyResult(rawText)
	depends := make([]string, 0, len(s.buckets)+1)

	if opts.Scope.IncludesMemory() {
		stage = time.Now()
		hits, err := s.engine.Memory(&features, opts)
		stages[domain.StageMemory] = elapsedMs(stage)
		if err != nil {
			return finish(s.degrade(rawText, err)), nil
		}
		result.MemoryHits = hits
		if len(opts.Buckets) > 0 {
			depends = append(depends, opts.Buckets...)
		} else {
			depends = append(depends, s.buckets...)
		}
	}

	if opts.Scope.IncludesDocuments() {
		stage = time.Now()
		hits, err := s.engine.Documents(ctx, &features, opts)
		stages[domain.StageDocuments] = elapsedMs(stage)
		if err != nil {
			return finish(s.degrade(rawText, err)), nil
		}
		result.Documents = hits
		depends = append(depends, domain.BucketDocuments)
	}

	stage = time.Now()
	result.Answer = s.answers.Synthesize(result.MemoryHits, result.Documents)
	stages[domain.StageAnswer] = elapsedMs(stage)

	result.SearchPath = searchPath(result)
	result.Relevance = combinedRelevance(result)

	if useCache {
		s.cache.Put(key, result, depends, version)
	}
	return finish(result), nil
}

// degrade turns a retrieval failure into an empty result.
func (s *SearchService) degrade(rawText string, err error) *domain.SearchResult {
	if errors.Is(err, domain.ErrIndexUnavailable) {
		logger.Warn("Index unavailable, returning empty result: %v", err)
	} else {
		logger.Warn("Search failed, returning empty result: %v", err)
	}
	return domain.EmptyResult(rawText)
}

func searchPath(r *domain.SearchResult) domain.SearchPath {
	switch {
	case len(r.MemoryHits) > 0 && len(r.Documents) > 0:
		return domain.PathHybrid
	case len(r.MemoryHits) > 0:
		return domain.PathMemoryOnly
	default:
		return domain.PathDocumentOnly
	}
}

// combinedRelevance weighs the top memory and document hits.
func combinedRelevance(r *domain.SearchResult) float64 {
	var memory, documents float64
	if len(r.MemoryHits) > 0 {
		memory = r.MemoryHits[0].Relevance
	}
	if len(r.Documents) > 0 {
		documents = r.Documents[0].Relevance
	}
	return memoryRelevanceWeight*memory + documentRelevanceWeight*documents
}

func elapsedMs(since time.Time) float64 {
	return float64(time.Since(since).Microseconds()) / 1000
}
