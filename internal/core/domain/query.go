package domain

import "strings"

// QueryToken is one normalised query word with its synonym expansions.
type QueryToken struct {
	Original string

	// Expansions is a sorted set that never contains Original.
	Expansions []string
}

// Variants returns the original followed by every expansion.
func (t QueryToken) Variants() []string {
	return append([]string{t.Original}, t.Expansions...)
}

// QueryFeatures is the structured form of a query.
// The same text and options always produce the same features.
type QueryFeatures struct {
	// Normalized is the lower-cased, punctuation-free query text,
	// including stop-words.
	Normalized string

	Tokens []QueryToken

	// Amounts, Dates and ProperNames are sorted sets.
	Amounts     []string
	Dates       []string
	ProperNames []string
}

// IsEmpty reports whether nothing searchable remained after normalisation.
func (f *QueryFeatures) IsEmpty() bool {
	return len(f.Tokens) == 0 && len(f.Amounts) == 0 && len(f.Dates) == 0 && len(f.ProperNames) == 0
}

// TermCount is the number of terms memory overlap is measured against:
// tokens plus amount and date features.
func (f *QueryFeatures) TermCount() int {
	return len(f.Tokens) + len(f.Amounts) + len(f.Dates)
}

// NameWords returns the lower-cased words of every proper name.
func (f *QueryFeatures) NameWords() map[string]struct{} {
	words := make(map[string]struct{})
	for _, name := range f.ProperNames {
		for _, w := range strings.Fields(strings.ToLower(name)) {
			words[w] = struct{}{}
		}
	}
	return words
}

// CacheKey returns the normalised form used for result caching. It covers
// every feature that influences scoring, so case-sensitive name extraction
// cannot collide.
func (f *QueryFeatures) CacheKey() string {
	var b strings.Builder
	b.WriteString(f.Normalized)
	b.WriteString("|names=")
	b.WriteString(strings.Join(f.ProperNames, ","))
	b.WriteString("|amounts=")
	b.WriteString(strings.Join(f.Amounts, ","))
	b.WriteString("|dates=")
	b.WriteString(strings.Join(f.Dates, ","))
	return b.String()
}
