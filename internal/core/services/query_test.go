package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/docmind/internal/core/domain"
)

func originals(tokens []domain.QueryToken) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Original)
	}
	return out
}

func TestQueryProcessor_StopWordsAndPossessives(t *testing.T) {
	p := NewQueryProcessor(domain.DefaultRuleSet())

	f := p.Process("What is the company's EIN?", true)

	assert.Equal(t, "what is the company ein", f.Normalized)
	assert.Equal(t, []string{"company", "ein"}, originals(f.Tokens))
	assert.Empty(t, f.ProperNames)
	assert.Empty(t, f.Amounts)
	assert.Empty(t, f.Dates)
}

func TestQueryProcessor_SynonymExpansion(t *testing.T) {
	p := NewQueryProcessor(domain.DefaultRuleSet())

	expanded := p.Process("Who invested?", true)
	assert.Equal(t, []string{"invested"}, originals(expanded.Tokens))
	assert.Equal(t, []string{"funding", "invest", "investment", "investor", "safe"}, expanded.Tokens[0].Expansions)

	plain := p.Process("Who invested?", false)
	assert.Equal(t, []string{"invested"}, originals(plain.Tokens))
	assert.NotNil(t, plain.Tokens[0].Expansions)
	assert.Empty(t, plain.Tokens[0].Expansions)
}

func TestQueryProcessor_ProperNames(t *testing.T) {
	p := NewQueryProcessor(domain.DefaultRuleSet())

	tests := []struct {
		query string
		want  []string
	}{
		{"How much did Bo Ren invest?", []string{"Bo Ren"}},
		{"What did Bo Ren's company sign?", []string{"Bo Ren"}},
		{"Who Invested?", []string{}},
		{"Contracts with Acme Ventures and Jane Q Public", []string{"Acme Ventures", "Jane Q Public"}},
		{"lowercase only", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Process(tt.query, true).ProperNames)
		})
	}
}

func TestQueryProcessor_AmountsAndDates(t *testing.T) {
	p := NewQueryProcessor(domain.DefaultRuleSet())

	f := p.Process("Which SAFE for $25,000 was signed on 2024-03-01 or March 5th, 2024?", true)

	assert.Equal(t, []string{"$25,000"}, f.Amounts)
	assert.Equal(t, []string{"2024-03-01", "march 5th, 2024"}, f.Dates)
	assert.NotContains(t, originals(f.Tokens), "25")
	assert.NotContains(t, originals(f.Tokens), "2024")
	assert.Contains(t, originals(f.Tokens), "safe")
	assert.Contains(t, originals(f.Tokens), "signed")
}

func TestQueryProcessor_DeduplicatesTokens(t *testing.T) {
	p := NewQueryProcessor(domain.DefaultRuleSet())

	f := p.Process("safe SAFE Safe terms", false)
	assert.Equal(t, []string{"safe", "terms"}, originals(f.Tokens))
}

func TestQueryProcessor_EmptyAfterStopWords(t *testing.T) {
	p := NewQueryProcessor(domain.DefaultRuleSet())

	f := p.Process("What is the?", true)
	assert.True(t, f.IsEmpty())
	assert.NotNil(t, f.Tokens)

	blank := p.Process("   ", true)
	assert.True(t, blank.IsEmpty())
}

func TestQueryProcessor_Deterministic(t *testing.T) {
	p := NewQueryProcessor(domain.DefaultRuleSet())

	q := "How much did Bo Ren invest on 2024-03-01 for $25k?"
	first := p.Process(q, true)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, p.Process(q, true))
	}
	again := p.Process(q, true)
	assert.Equal(t, first.CacheKey(), again.CacheKey())
}

func TestQueryProcessor_ConfiguredSynonyms(t *testing.T) {
	rules := domain.DefaultRuleSet().WithSynonyms(map[string][]string{"Board": {"directors", "Governance"}})
	p := NewQueryProcessor(rules)

	f := p.Process("board approvals", true)
	assert.Equal(t, []string{"directors", "governance"}, f.Tokens[0].Expansions)
}
