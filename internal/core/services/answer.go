package services

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/docmind/internal/core/domain"
)

// Answer selection limits.
const (
	answerMinRelevance  = 0.3
	answerMaxFacts      = 3
	answerMaxDocuments  = 2
	answerMaxConfidence = 0.99
)

// AnswerSynthesizer assembles a short answer with citations from ranked hits.
type AnswerSynthesizer struct{}

// NewAnswerSynthesizer creates an answer synthesizer.
func NewAnswerSynthesizer() *AnswerSynthesizer {
	return &AnswerSynthesizer{}
}

// Synthesize returns nil when no hit clears the minimum relevance.
func (a *AnswerSynthesizer) Synthesize(memory []domain.MemoryHit, documents []domain.DocumentHit) *domain.Answer {
	var facts []domain.MemoryHit
	for _, h := range memory {
		if len(facts) == answerMaxFacts {
			break
		}
		if h.Relevance >= answerMinRelevance {
			facts = append(facts, h)
		}
	}
	var docs []domain.DocumentHit
	for _, h := range documents {
		if len(docs) == answerMaxDocuments {
			break
		}
		if h.Relevance >= answerMinRelevance {
			docs = append(docs, h)
		}
	}
	if len(facts) == 0 && len(docs) == 0 {
		return nil
	}

	var sentences []string
	var top float64
	answer := &domain.Answer{Sources: make([]domain.Citation, 0, len(facts)+len(docs))}

	for _, h := range facts {
		sentence := fmt.Sprintf("%s: %s.", readableKey(h.Fact.Key), strings.TrimRight(h.Fact.Value, "."))
		sentences = append(sentences, sentence)
		answer.Sources = append(answer.Sources, domain.Citation{
			Kind:    domain.CitationMemory,
			Ref:     h.Fact.Bucket,
			ID:      h.Fact.Key,
			Excerpt: excerpt(sentence, domain.MaxExcerptLength),
		})
		if h.Relevance > top {
			top = h.Relevance
		}
	}

	for i, h := range docs {
		lead := "See"
		if i > 0 || len(facts) > 0 {
			lead = "Also see"
		}
		sentences = append(sentences, fmt.Sprintf("%s %s (%s).", lead, h.Record.Filename, h.Record.Category))
		answer.Sources = append(answer.Sources, domain.Citation{
			Kind:    domain.CitationDocument,
			Ref:     string(h.Record.Category),
			ID:      h.Record.ID,
			Excerpt: excerpt(documentExcerpt(&h.Record), domain.MaxExcerptLength),
		})
		if h.Relevance > top {
			top = h.Relevance
		}
	}

	answer.Text = strings.Join(sentences, " ")
	answer.Confidence = min(top, answerMaxConfidence)
	return answer
}

// documentExcerpt picks the most descriptive text of a record.
func documentExcerpt(rec *domain.DocumentRecord) string {
	if rec.FreeText.BusinessContext != "" {
		return rec.FreeText.BusinessContext
	}
	var parts []string
	for _, p := range rec.PrimaryParties {
		parts = append(parts, partyDescriptionWithName(p))
	}
	if rec.ContractValue != "" {
		parts = append(parts, "value "+rec.ContractValue)
	}
	if rec.EffectiveDate != "" {
		parts = append(parts, "effective "+rec.EffectiveDate)
	}
	if len(parts) == 0 {
		return rec.Filename
	}
	return strings.Join(parts, "; ")
}

func partyDescriptionWithName(p domain.Party) string {
	desc := partyDescription(p)
	if desc == "Party" {
		return p.Name
	}
	return p.Name + ", " + desc
}
