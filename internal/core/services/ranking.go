package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/custodia-labs/docmind/internal/core/domain"
	"github.com/custodia-labs/docmind/internal/core/ports/driven"
	"github.com/custodia-labs/docmind/internal/core/ports/driving"
	"github.com/custodia-labs/docmind/internal/logger"
)

// Document sub-score weights.
const (
	exactWeight = 0.5
	nameWeight  = 0.3
	fuzzyWeight = 0.2
)

const (
	// nameSimilarity is the minimum similarity for two names to match.
	nameSimilarity = 0.8

	// fuzzyFloor discards word similarities that are mostly noise.
	fuzzyFloor = 0.5
)

// RetrievalEngine scores memory facts and document records against query
// features. It only reads from the index and the metadata store.
type RetrievalEngine struct {
	index driving.MemoryIndex
	store driven.MetadataStore
}

// NewRetrievalEngine creates a retrieval engine.
func NewRetrievalEngine(index driving.MemoryIndex, store driven.MetadataStore) *RetrievalEngine {
	return &RetrievalEngine{index: index, store: store}
}

// Memory returns the facts matching the features, best first.
func (e *RetrievalEngine) Memory(
	features *domain.QueryFeatures, opts domain.SearchOptions,
) ([]domain.MemoryHit, error) {
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = []string{""}
	}

	hits := make([]domain.MemoryHit, 0)
	for _, bucket := range buckets {
		facts, err := e.index.Query(bucket, nil)
		if err != nil {
			return nil, fmt.Errorf("memory pass: %w", err)
		}
		for i := range facts {
			score := scoreFact(features, &facts[i])
			if opts.FuzzyThreshold > 0 && (score == 0 || score < opts.FuzzyThreshold) {
				continue
			}
			hits = append(hits, domain.MemoryHit{Fact: facts[i], Relevance: score})
		}
	}

	browse := opts.FuzzyThreshold == 0
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := &hits[i], &hits[j]
		if !browse && a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		if !a.Fact.LastUpdated.Equal(b.Fact.LastUpdated) {
			return a.Fact.LastUpdated.After(b.Fact.LastUpdated)
		}
		if a.Fact.Bucket != b.Fact.Bucket {
			return a.Fact.Bucket < b.Fact.Bucket
		}
		return a.Fact.Key < b.Fact.Key
	})

	if limit := opts.EffectiveMaxResults(); len(hits) > limit {
		hits = hits[:limit]
	}
	logger.Debug("Memory pass: %d hits", len(hits))
	return hits, nil
}

// Documents returns the records matching the features, best first.
func (e *RetrievalEngine) Documents(
	ctx context.Context, features *domain.QueryFeatures, opts domain.SearchOptions,
) ([]domain.DocumentHit, error) {
	records, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: document pass: %v", domain.ErrIndexUnavailable, err)
	}

	browse := opts.FuzzyThreshold == 0
	exactOnly := opts.FuzzyThreshold >= 1

	hits := make([]domain.DocumentHit, 0)
	for i := range records {
		s := scoreDocument(features, &records[i])
		switch {
		case browse:
		case exactOnly:
			if !s.allExact() {
				continue
			}
		case s.total == 0 || s.total < opts.FuzzyThreshold:
			continue
		}
		hits = append(hits, domain.DocumentHit{
			Record:      records[i],
			Relevance:   s.total,
			MatchType:   s.matchType(),
			MatchReason: s.reason(),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := &hits[i], &hits[j]
		if !browse && a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		if !a.Record.UpdatedAt.Equal(b.Record.UpdatedAt) {
			return a.Record.UpdatedAt.After(b.Record.UpdatedAt)
		}
		return a.Record.ID < b.Record.ID
	})

	if limit := opts.EffectiveMaxResults(); len(hits) > limit {
		hits = hits[:limit]
	}
	logger.Debug("Document pass: %d of %d records retained", len(hits), len(records))
	return hits, nil
}

// scoreFact is the fraction of query terms found in the fact's bucket, key or value.
func scoreFact(features *domain.QueryFeatures, fact *domain.MemoryFact) float64 {
	total := features.TermCount()
	if total == 0 {
		return 0
	}

	fields := []string{
		strings.ToLower(fact.Bucket),
		strings.ToLower(readableKey(fact.Key)),
		strings.ToLower(fact.Value),
	}
	contains := func(term string) bool {
		for _, f := range fields {
			if strings.Contains(f, term) {
				return true
			}
		}
		return false
	}

	matched := 0
	for _, tok := range features.Tokens {
		for _, v := range tok.Variants() {
			if contains(v) {
				matched++
				break
			}
		}
	}
	valueAmounts := findAmounts(fact.Value)
	for _, a := range features.Amounts {
		if contains(a) || anyMatch(valueAmounts, a, amountsEqual) {
			matched++
		}
	}
	valueDates := append(findDates(fact.Value), fact.Value)
	for _, d := range features.Dates {
		if contains(d) || anyMatch(valueDates, d, datesEqual) {
			matched++
		}
	}
	return float64(matched) / float64(total)
}

// documentScore holds the sub-scores of one record.
type documentScore struct {
	exactTerms   int
	exactMatched int
	exactKinds   map[string]bool

	names        int
	namesMatched []string

	fuzzy float64
	total float64
}

func (s *documentScore) exact() float64 {
	if s.exactTerms == 0 {
		return 0
	}
	return float64(s.exactMatched) / float64(s.exactTerms)
}

func (s *documentScore) name() float64 {
	if s.names == 0 {
		return 0
	}
	return float64(len(s.namesMatched)) / float64(s.names)
}

// allExact reports whether every exact term and every name matched.
func (s *documentScore) allExact() bool {
	if s.exactTerms == 0 && s.names == 0 {
		return false
	}
	return s.exactMatched == s.exactTerms && len(s.namesMatched) == s.names
}

// matchType reports exact when any structured field, tag, amount, date or
// party name matched, fuzzy when only free text overlapped, and tag for
// records retained without a match (browse mode).
func (s *documentScore) matchType() domain.MatchType {
	switch {
	case s.exactMatched > 0 || len(s.namesMatched) > 0:
		return domain.MatchExact
	case s.fuzzy > 0:
		return domain.MatchFuzzy
	default:
		return domain.MatchTag
	}
}

func (s *documentScore) reason() string {
	var parts []string
	if len(s.namesMatched) > 0 {
		parts = append(parts, "party match: "+strings.Join(s.namesMatched, ", "))
	}
	if s.exactMatched > 0 {
		kind := "field"
		if s.exactKinds["tag"] && !s.exactKinds["field"] {
			kind = "tag"
		}
		parts = append(parts, fmt.Sprintf("%s match: %d/%d terms", kind, s.exactMatched, s.exactTerms))
	}
	if s.fuzzy > 0 {
		parts = append(parts, fmt.Sprintf("text similarity %.2f", s.fuzzy))
	}
	if len(parts) == 0 {
		return "recent document"
	}
	return strings.Join(parts, "; ")
}

// scoreDocument combines the exact, name and fuzzy sub-scores of a record.
func scoreDocument(features *domain.QueryFeatures, rec *domain.DocumentRecord) documentScore {
	s := documentScore{exactKinds: make(map[string]bool)}
	nameWords := features.NameWords()

	fieldText := exactFieldText(rec)
	tagText := make([]string, 0, len(rec.Tags))
	for _, t := range rec.Tags {
		tagText = append(tagText, normalizeText(t))
	}

	for _, tok := range features.Tokens {
		if _, isName := nameWords[tok.Original]; isName {
			continue
		}
		s.exactTerms++
		switch {
		case anyPhrase(fieldText, tok.Variants()):
			s.exactMatched++
			s.exactKinds["field"] = true
		case anyPhrase(tagText, tok.Variants()):
			s.exactMatched++
			s.exactKinds["tag"] = true
		}
	}

	amounts := recordAmounts(rec)
	for _, a := range features.Amounts {
		s.exactTerms++
		if anyMatch(amounts, a, amountsEqual) {
			s.exactMatched++
			s.exactKinds["field"] = true
		}
	}
	dates := recordDates(rec)
	for _, d := range features.Dates {
		s.exactTerms++
		if anyMatch(dates, d, datesEqual) {
			s.exactMatched++
			s.exactKinds["field"] = true
		}
	}

	people := recordNames(rec)
	for _, name := range features.ProperNames {
		s.names++
		if match, ok := bestName(name, people); ok {
			s.namesMatched = append(s.namesMatched, match)
		}
	}

	s.fuzzy = fuzzyOverlap(features, nameWords, rec)
	s.total = exactWeight*s.exact() + nameWeight*s.name() + fuzzyWeight*s.fuzzy
	if s.total > 1 {
		s.total = 1
	}
	return s
}

// exactFieldText returns the normalised structured fields of a record.
func exactFieldText(rec *domain.DocumentRecord) []string {
	out := []string{
		strings.Join(rec.Category.Words(), " "),
		normalizeText(string(rec.Status)),
		normalizeText(rec.ContractValue),
		normalizeText(rec.EffectiveDate),
		normalizeText(rec.ExpirationDate),
		normalizeText(rec.RenewalTerms),
	}
	for _, k := range sortedKeys(rec.CriticalFacts) {
		out = append(out, normalizeText(readableKey(k)), normalizeText(rec.CriticalFacts[k]))
	}
	for _, k := range sortedKeys(rec.FinancialTerms) {
		out = append(out, normalizeText(readableKey(k)), normalizeText(rec.FinancialTerms[k]))
	}
	return out
}

func recordAmounts(rec *domain.DocumentRecord) []string {
	out := findAmounts(rec.ContractValue)
	if rec.ContractValue != "" {
		out = append(out, rec.ContractValue)
	}
	for _, v := range rec.FinancialTerms {
		out = append(out, findAmounts(v)...)
	}
	for _, v := range rec.CriticalFacts {
		out = append(out, findAmounts(v)...)
	}
	return out
}

func recordDates(rec *domain.DocumentRecord) []string {
	var out []string
	for _, d := range []string{rec.EffectiveDate, rec.ExpirationDate} {
		if d != "" {
			out = append(out, d)
		}
	}
	for _, s := range rec.Signers {
		if s.DateSigned != nil && *s.DateSigned != "" {
			out = append(out, *s.DateSigned)
		}
	}
	for _, v := range rec.CriticalFacts {
		out = append(out, findDates(v)...)
	}
	out = append(out, findDates(rec.RenewalTerms)...)
	return out
}

func recordNames(rec *domain.DocumentRecord) []string {
	var out []string
	for _, p := range rec.PrimaryParties {
		out = append(out, p.Name)
		if p.Organization != "" {
			out = append(out, p.Organization)
		}
	}
	for _, s := range rec.Signers {
		out = append(out, s.Name)
	}
	return out
}

// bestName returns the first candidate matching name by containment or
// edit-distance similarity.
func bestName(name string, candidates []string) (string, bool) {
	want := strings.ToLower(collapseSpaces(name))
	for _, c := range candidates {
		have := strings.ToLower(collapseSpaces(c))
		if have == "" {
			continue
		}
		if strings.Contains(have, want) || strings.Contains(want, have) || similarity(want, have) >= nameSimilarity {
			return c, true
		}
	}
	return "", false
}

// fuzzyOverlap averages each non-name token's best similarity to a free-text word.
func fuzzyOverlap(features *domain.QueryFeatures, nameWords map[string]struct{}, rec *domain.DocumentRecord) float64 {
	if rec.FreeText.IsEmpty() {
		return 0
	}
	var text []string
	text = append(text, words(rec.FreeText.BusinessContext)...)
	for _, t := range rec.FreeText.KeyTerms {
		text = append(text, words(t)...)
	}
	for _, o := range rec.FreeText.Obligations {
		text = append(text, words(o)...)
	}

	var sum float64
	var n int
	for _, tok := range features.Tokens {
		if _, isName := nameWords[tok.Original]; isName {
			continue
		}
		n++
		best := 0.0
		for _, v := range tok.Variants() {
			for _, w := range text {
				if sim := similarity(v, w); sim > best {
					best = sim
				}
			}
		}
		if best >= fuzzyFloor {
			sum += best
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// similarity is 1 minus the normalised Levenshtein distance.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	sim := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}

// anyPhrase reports whether any variant appears as a whole-word phrase in any text.
func anyPhrase(texts, variants []string) bool {
	for _, t := range texts {
		if t == "" {
			continue
		}
		padded := " " + t + " "
		for _, v := range variants {
			if strings.Contains(padded, " "+normalizeText(v)+" ") {
				return true
			}
		}
	}
	return false
}

func anyMatch(values []string, want string, eq func(a, b string) bool) bool {
	for _, v := range values {
		if eq(v, want) {
			return true
		}
	}
	return false
}
