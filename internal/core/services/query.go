package services

import (
	"sort"
	"strings"

	"github.com/custodia-labs/docmind/internal/core/domain"
)

// QueryProcessor turns raw query text into comparable features.
// It is stateless apart from its rule set and safe for concurrent use.
type QueryProcessor struct {
	rules domain.RuleSet
}

// NewQueryProcessor creates a query processor using the given rule set.
func NewQueryProcessor(rules domain.RuleSet) *QueryProcessor {
	return &QueryProcessor{rules: rules}
}

// Process normalises raw text, removes stop-words, optionally expands
// synonyms and extracts amounts, dates and proper names.
func (p *QueryProcessor) Process(raw string, expandSynonyms bool) domain.QueryFeatures {
	features := domain.QueryFeatures{
		Normalized:  normalizeText(raw),
		Tokens:      []domain.QueryToken{},
		Amounts:     sortedSet(findAmounts(raw)),
		Dates:       sortedSet(findDates(raw)),
		ProperNames: []string{},
	}

	remaining := stripDatesAndAmounts(raw)
	features.ProperNames = p.properNames(remaining)

	seen := make(map[string]struct{})
	for _, w := range words(remaining) {
		if p.rules.IsStopWord(w) {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}

		token := domain.QueryToken{Original: w, Expansions: []string{}}
		if expandSynonyms {
			token.Expansions = p.expand(w)
		}
		features.Tokens = append(features.Tokens, token)
	}

	return features
}

// expand returns the sorted synonym set for a token, never including the token.
func (p *QueryProcessor) expand(token string) []string {
	syns := p.rules.Synonyms[token]
	out := make([]string, 0, len(syns))
	for _, s := range syns {
		if s != token {
			out = append(out, s)
		}
	}
	return sortedSet(out)
}

// properNames finds capitalised spans of two or more words. Leading and
// trailing stop-words ("How", "What", "Is") are dropped from each span.
func (p *QueryProcessor) properNames(text string) []string {
	var names []string
	for _, span := range properNameRe.FindAllString(text, -1) {
		parts := strings.Fields(span)
		for i := range parts {
			parts[i] = strings.TrimRight(possessiveRe.ReplaceAllString(parts[i], ""), ".'’-")
		}
		for len(parts) > 0 && p.isNameStopWord(parts[0]) {
			parts = parts[1:]
		}
		for len(parts) > 0 && p.isNameStopWord(parts[len(parts)-1]) {
			parts = parts[:len(parts)-1]
		}
		if len(parts) >= 2 {
			names = append(names, strings.Join(parts, " "))
		}
	}
	return sortedSet(names)
}

func (p *QueryProcessor) isNameStopWord(word string) bool {
	return word == "" || p.rules.IsStopWord(strings.ToLower(word))
}

// sortedSet de-duplicates and sorts values. It never returns nil.
func sortedSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
