package domain

import (
	"sort"
	"strings"
)

// RuleSetVersion identifies the built-in extraction and synonym tables.
// Bump it whenever DefaultRuleSet changes in a way that alters facts.
const RuleSetVersion = 5

// FieldSource names the record field an extraction rule reads.
type FieldSource string

// Extraction field sources.
const (
	FieldCriticalFacts  FieldSource = "critical_facts"
	FieldFinancialTerms FieldSource = "financial_terms"
	FieldContractValue  FieldSource = "contract_value"
	FieldParties        FieldSource = "primary_parties"
	FieldPartyValue     FieldSource = "party_contract_value"
	FieldSigners        FieldSource = "signers"
	FieldSignedDates    FieldSource = "signer_dates"
	FieldEffectiveDate  FieldSource = "effective_date"
	FieldExpirationDate FieldSource = "expiration_date"
	FieldRenewalTerms   FieldSource = "renewal_terms"
	FieldTemplate       FieldSource = "template_analysis"
	FieldTags           FieldSource = "tags"
	FieldStatus         FieldSource = "status"
)

// ExtractionRule derives facts for one bucket from one record field.
//
// KeyTemplate may reference {document}, {filename}, {category}, {name},
// {field} and {value}; an empty template keeps the source's natural key
// (the fact key, party name or tag). Per-document facts key on {document},
// the record ID, because filenames repeat across folders.
type ExtractionRule struct {
	Bucket string
	Source FieldSource

	// Keys selects critical_facts / financial_terms entries whose key
	// contains any of the substrings. Empty selects all.
	Keys []string

	// Fallback selects only critical_facts keys no other rule claimed.
	Fallback bool

	// Roles filters parties by case-insensitive role substring. Empty selects all.
	Roles []string

	// Categories filters records by category. Empty selects all.
	Categories []Category

	KeyTemplate string
}

// MatchesKey reports whether a field key is selected by the rule.
func (r ExtractionRule) MatchesKey(key string) bool {
	if len(r.Keys) == 0 {
		return true
	}
	lower := strings.ToLower(key)
	for _, k := range r.Keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// MatchesRole reports whether a party role is selected by the rule.
func (r ExtractionRule) MatchesRole(role string) bool {
	if len(r.Roles) == 0 {
		return true
	}
	lower := strings.ToLower(role)
	for _, want := range r.Roles {
		if strings.Contains(lower, want) {
			return true
		}
	}
	return false
}

// AppliesTo reports whether the rule's category filter admits the record.
func (r ExtractionRule) AppliesTo(c Category) bool {
	if len(r.Categories) == 0 {
		return true
	}
	for _, want := range r.Categories {
		if want == c {
			return true
		}
	}
	return false
}

// RuleSet is the data-driven configuration of extraction and query processing.
type RuleSet struct {
	Version int

	// Rules are applied in order. The first rule to produce a given
	// bucket/key for a record supplies that record's contribution.
	Rules []ExtractionRule

	// Synonyms maps a normalised token to its expansions.
	Synonyms map[string][]string

	StopWords map[string]struct{}
}

// Buckets returns the sorted, de-duplicated bucket names the rules feed.
func (rs *RuleSet) Buckets() []string {
	seen := make(map[string]struct{})
	for _, r := range rs.Rules {
		seen[r.Bucket] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for b := range seen {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// IsStopWord reports whether a normalised token is a stop-word.
func (rs *RuleSet) IsStopWord(token string) bool {
	_, ok := rs.StopWords[token]
	return ok
}

// WithSynonyms returns a copy of the rule set with extra synonyms merged in.
// Keys and expansions are lower-cased; existing expansions are kept.
func (rs RuleSet) WithSynonyms(extra map[string][]string) RuleSet {
	merged := make(map[string][]string, len(rs.Synonyms)+len(extra))
	for k, v := range rs.Synonyms {
		merged[k] = append([]string(nil), v...)
	}
	for k, v := range extra {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		for _, exp := range v {
			exp = strings.ToLower(strings.TrimSpace(exp))
			if exp != "" && exp != key {
				merged[key] = append(merged[key], exp)
			}
		}
	}
	rs.Synonyms = merged
	return rs
}

var companyFactKeys = []string{
	"ein", "tax_id", "company", "incorporat", "entity", "address",
	"registered", "state_of", "formation", "duns", "legal_name",
}

var financialFactKeys = []string{
	"amount", "valuation", "price", "revenue", "investment", "value",
	"fee", "salary", "compensation", "discount", "cap", "payment",
}

var dateFactKeys = []string{"date", "deadline", "expir", "renewal", "term_end"}

// DefaultRuleSet returns the built-in rule tables.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Version: RuleSetVersion,
		Rules: []ExtractionRule{
			{Bucket: BucketCompany, Source: FieldCriticalFacts, Keys: companyFactKeys},
			{Bucket: BucketFinancial, Source: FieldCriticalFacts, Keys: financialFactKeys},
			{Bucket: BucketDates, Source: FieldCriticalFacts, Keys: dateFactKeys},
			{Bucket: BucketCompany, Source: FieldCriticalFacts, Fallback: true},

			{Bucket: BucketFinancial, Source: FieldContractValue, KeyTemplate: "{document} contract value"},
			{Bucket: BucketFinancial, Source: FieldFinancialTerms, KeyTemplate: "{document} {field}"},
			{
				Bucket:      BucketFinancial,
				Source:      FieldPartyValue,
				Roles:       []string{"investor", "purchaser", "holder"},
				Categories:  []Category{CategoryInvestment},
				KeyTemplate: "{name} investment",
			},

			{Bucket: BucketPeople, Source: FieldParties},
			{Bucket: BucketPeople, Source: FieldSigners},

			{Bucket: BucketDates, Source: FieldEffectiveDate, KeyTemplate: "{document} effective date"},
			{Bucket: BucketDates, Source: FieldExpirationDate, KeyTemplate: "{document} expiration date"},
			{Bucket: BucketDates, Source: FieldRenewalTerms, KeyTemplate: "{document} renewal terms"},
			{Bucket: BucketDates, Source: FieldSignedDates, KeyTemplate: "{name} signed {document}"},

			{Bucket: BucketTemplates, Source: FieldTemplate, KeyTemplate: "{document}"},
			{Bucket: BucketTags, Source: FieldTags},
			{Bucket: BucketStatus, Source: FieldStatus},
		},
		Synonyms:  defaultSynonyms(),
		StopWords: defaultStopWords(),
	}
}

func defaultSynonyms() map[string][]string {
	return map[string][]string{
		"invested":   {"investment", "investor", "funding", "safe", "invest"},
		"invest":     {"investment", "investor", "funding", "safe", "invested"},
		"investor":   {"investment", "invest", "funding", "shareholder"},
		"investors":  {"investor", "investment", "funding", "shareholder"},
		"investment": {"invest", "investor", "funding", "safe"},
		"funding":    {"investment", "financing", "safe", "raise"},
		"raised":     {"funding", "investment", "financing"},
		"safe":       {"simple agreement for future equity", "investment"},
		"ein":        {"tax id", "employer identification number", "ein number"},
		"tax":        {"ein", "tax id"},
		"salary":     {"compensation", "wage", "pay"},
		"paid":       {"payment", "compensation", "salary"},
		"employee":   {"employment", "hire", "staff"},
		"employees":  {"employee", "employment", "staff"},
		"contract":   {"agreement"},
		"agreement":  {"contract"},
		"signed":     {"executed", "signature", "signer"},
		"signer":     {"signed", "signature"},
		"price":      {"value", "amount", "cost"},
		"cost":       {"price", "value", "amount"},
		"worth":      {"value", "valuation"},
		"owner":      {"founder", "shareholder"},
		"founder":    {"owner", "cofounder"},
		"address":    {"location", "registered office"},
		"incorporated": {
			"incorporation", "formation", "state of incorporation",
		},
		"expire":    {"expiration", "expiry", "end date"},
		"expires":   {"expiration", "expiry", "end date"},
		"renewal":   {"renew", "renewal terms"},
		"start":     {"effective", "effective date"},
		"template":  {"form", "blank"},
		"templates": {"template", "form"},
		"nda":       {"non-disclosure", "confidentiality"},
		"ip":        {"intellectual property", "patent", "trademark"},
	}
}

func defaultStopWords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "is", "are", "was", "were", "be", "been", "being",
		"of", "to", "in", "on", "at", "for", "by", "with", "about", "from", "as",
		"what", "who", "whom", "which", "when", "where", "why", "how", "much", "many",
		"do", "does", "did", "done", "has", "have", "had", "can", "could", "should",
		"would", "will", "shall", "may", "our", "we", "us", "my", "me", "i", "you",
		"your", "it", "its", "this", "that", "these", "those", "and", "or", "there",
		"their", "they", "them", "any", "all", "tell", "show", "find", "list",
		"please", "give", "get",
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}
