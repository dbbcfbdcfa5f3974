package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docmind/internal/core/domain"
)

func newTestEngine(t *testing.T, records ...domain.DocumentRecord) (*RetrievalEngine, *QueryProcessor) {
	t.Helper()
	idx, store, _ := newTestIndex(records...)
	require.NoError(t, idx.RebuildAll(context.Background()))
	return NewRetrievalEngine(idx, store), NewQueryProcessor(domain.DefaultRuleSet())
}

func opts(threshold float64) domain.SearchOptions {
	o := domain.DefaultSearchOptions()
	o.FuzzyThreshold = threshold
	return o
}

func TestScoreDocument_ProperNameScenario(t *testing.T) {
	p := NewQueryProcessor(domain.DefaultRuleSet())
	f := p.Process("How much did Bo Ren invest?", true)

	bo := boRenRecord()
	s := scoreDocument(&f, &bo)
	assert.InDelta(t, 0.8, s.total, 1e-9)
	assert.Equal(t, domain.MatchExact, s.matchType())
	assert.Contains(t, s.reason(), "party match: Bo Ren")

	ana := anaLiRecord()
	other := scoreDocument(&f, &ana)
	assert.InDelta(t, 0.5, other.total, 1e-9)
	assert.Empty(t, other.namesMatched)
}

func TestScoreDocument_TagAndFuzzy(t *testing.T) {
	p := NewQueryProcessor(domain.DefaultRuleSet())

	tagged := domain.DocumentRecord{
		ID: "Corporate_Governance/consent.pdf", Filename: "consent.pdf",
		Category: domain.CategoryCorporateGovernance, Status: domain.StatusExecuted,
		Tags: []string{"SAFE"},
	}
	f := p.Process("safe documents", false)
	s := scoreDocument(&f, &tagged)
	assert.InDelta(t, 0.25, s.total, 1e-9)
	assert.Equal(t, domain.MatchExact, s.matchType(), "a tag hit is an exact match")
	assert.Contains(t, s.reason(), "tag match: 1/2 terms")

	prose := domain.DocumentRecord{
		ID: "Legal_Compliance/memo.pdf", Filename: "memo.pdf",
		Category: domain.CategoryLegal, Status: domain.StatusExecuted,
		FreeText: domain.FreeText{BusinessContext: "Equity investment from angel investors"},
	}
	f = p.Process("investmnt", false)
	s = scoreDocument(&f, &prose)
	assert.InDelta(t, 0.2*0.9, s.total, 1e-9)
	assert.Equal(t, domain.MatchFuzzy, s.matchType())
}

func TestScoreDocument_MatchTypeWithoutExactHit(t *testing.T) {
	p := NewQueryProcessor(domain.DefaultRuleSet())
	rec := boRenRecord()

	f := p.Process("Bo Ren", false)
	s := scoreDocument(&f, &rec)
	assert.Zero(t, s.exactMatched)
	assert.Equal(t, domain.MatchExact, s.matchType(), "party names count as exact")

	f = p.Process("zzz", false)
	s = scoreDocument(&f, &rec)
	assert.Zero(t, s.total)
	assert.Equal(t, domain.MatchTag, s.matchType())
}

func TestScoreDocument_AmountsAndDates(t *testing.T) {
	p := NewQueryProcessor(domain.DefaultRuleSet())
	rec := boRenRecord()
	rec.EffectiveDate = "March 1, 2024"

	f := p.Process("$25k on 2024-03-01", false)
	s := scoreDocument(&f, &rec)
	assert.Equal(t, 2, s.exactTerms)
	assert.Equal(t, 2, s.exactMatched)
	assert.InDelta(t, 0.5, s.total, 1e-9)
}

func TestScoreFact(t *testing.T) {
	p := NewQueryProcessor(domain.DefaultRuleSet())
	f := p.Process("What is the company's EIN?", true)

	fact := domain.MemoryFact{Bucket: "company", Key: "ein_number", Value: "85-0989775"}
	assert.Equal(t, 1.0, scoreFact(&f, &fact))

	unrelated := domain.MemoryFact{Bucket: "people", Key: "Bo Ren", Value: "Investor"}
	assert.Equal(t, 0.0, scoreFact(&f, &unrelated))

	money := p.Process("$25k", false)
	amount := domain.MemoryFact{Bucket: "financial", Key: "Bo Ren investment", Value: "$25,000"}
	assert.Equal(t, 1.0, scoreFact(&money, &amount))
}

func TestRetrievalEngine_DefaultThreshold(t *testing.T) {
	engine, p := newTestEngine(t, einRecord(), boRenRecord(), anaLiRecord())
	f := p.Process("How much did Bo Ren invest?", true)

	docs, err := engine.Documents(context.Background(), &f, opts(domain.DefaultFuzzyThreshold))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, boRenRecord().ID, docs[0].Record.ID)
	assert.Greater(t, docs[0].Relevance, domain.DefaultFuzzyThreshold)

	facts, err := engine.Memory(&f, opts(domain.DefaultFuzzyThreshold))
	require.NoError(t, err)
	require.Len(t, facts, 3)
	assert.Equal(t, "Bo Ren investment", facts[0].Fact.Key)
	assert.Equal(t, "Investment_Fundraising/safe-bo-ren.pdf contract value", facts[1].Fact.Key)
	assert.Equal(t, "Bo Ren", facts[2].Fact.Key)
	for _, h := range facts {
		assert.Equal(t, 1.0, h.Relevance)
	}
}

func TestRetrievalEngine_ExactOnlyThreshold(t *testing.T) {
	fuzzyOnly := domain.DocumentRecord{
		ID: "Legal_Compliance/memo.pdf", Filename: "memo.pdf",
		Category: domain.CategoryLegal, Status: domain.StatusExecuted,
		FreeText:  domain.FreeText{BusinessContext: "angel investor Bo Renn"},
		UpdatedAt: t2,
	}
	engine, p := newTestEngine(t, boRenRecord(), anaLiRecord(), fuzzyOnly)
	f := p.Process("Bo Ren invest", true)

	docs, err := engine.Documents(context.Background(), &f, opts(1))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, boRenRecord().ID, docs[0].Record.ID)

	facts, err := engine.Memory(&f, opts(1))
	require.NoError(t, err)
	for _, h := range facts {
		assert.Equal(t, 1.0, h.Relevance)
	}
	assert.NotEmpty(t, facts)
}

func TestRetrievalEngine_BrowseMode(t *testing.T) {
	engine, p := newTestEngine(t, einRecord(), boRenRecord(), anaLiRecord())
	f := p.Process("zzz", false)

	docs, err := engine.Documents(context.Background(), &f, opts(0))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, anaLiRecord().ID, docs[0].Record.ID)
	assert.Equal(t, boRenRecord().ID, docs[1].Record.ID)
	assert.Equal(t, einRecord().ID, docs[2].Record.ID)

	facts, err := engine.Memory(&f, opts(0))
	require.NoError(t, err)
	require.NotEmpty(t, facts)
	for i := 1; i < len(facts); i++ {
		assert.False(t, facts[i].Fact.LastUpdated.After(facts[i-1].Fact.LastUpdated))
	}
}

func TestRetrievalEngine_MaxResultsAndBuckets(t *testing.T) {
	engine, p := newTestEngine(t, boRenRecord(), anaLiRecord())
	f := p.Process("investor", true)

	o := opts(0.3)
	o.MaxResults = 1
	facts, err := engine.Memory(&f, o)
	require.NoError(t, err)
	assert.Len(t, facts, 1)

	o = opts(0.3)
	o.Buckets = []string{domain.BucketFinancial}
	facts, err = engine.Memory(&f, o)
	require.NoError(t, err)
	require.NotEmpty(t, facts)
	for _, h := range facts {
		assert.Equal(t, domain.BucketFinancial, h.Fact.Bucket)
	}
}

func TestRetrievalEngine_DeterministicOrdering(t *testing.T) {
	engine, p := newTestEngine(t, einRecord(), boRenRecord(), anaLiRecord())
	f := p.Process("safe investment", true)

	firstDocs, err := engine.Documents(context.Background(), &f, opts(0.2))
	require.NoError(t, err)
	firstFacts, err := engine.Memory(&f, opts(0.2))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		docs, err := engine.Documents(context.Background(), &f, opts(0.2))
		require.NoError(t, err)
		facts, err := engine.Memory(&f, opts(0.2))
		require.NoError(t, err)
		assert.Equal(t, firstDocs, docs)
		assert.Equal(t, firstFacts, facts)
	}
}

func TestRetrievalEngine_StoreFailure(t *testing.T) {
	idx, store, _ := newTestIndex(einRecord())
	engine := NewRetrievalEngine(idx, store)
	f := NewQueryProcessor(domain.DefaultRuleSet()).Process("ein", true)

	store.SetScanError(errors.New("unreadable"))
	_, err := engine.Documents(context.Background(), &f, opts(0.6))
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}
