package services

import (
	"sort"
	"strings"

	"github.com/custodia-labs/docmind/internal/core/domain"
)

// candidate is one candidate fact produced by a rule.
type candidate struct {
	key   string
	value string
}

// extract applies the rule set to a record. Rules run in order and the
// first rule to produce a bucket/key pair supplies its value.
func (m *MemoryIndexManager) extract(rec *domain.DocumentRecord) map[domain.FactRef]string {
	return extractFacts(&m.rules, rec)
}

func extractFacts(rules *domain.RuleSet, rec *domain.DocumentRecord) map[domain.FactRef]string {
	out := make(map[domain.FactRef]string)
	for _, rule := range rules.Rules {
		if !rule.AppliesTo(rec.Category) {
			continue
		}
		for _, c := range candidates(rules, rule, rec) {
			key := collapseSpaces(c.key)
			value := strings.TrimSpace(c.value)
			if key == "" || value == "" {
				continue
			}
			ref := domain.FactRef{Bucket: rule.Bucket, Key: key}
			if _, taken := out[ref]; !taken {
				out[ref] = value
			}
		}
	}
	return out
}

func candidates(rules *domain.RuleSet, rule domain.ExtractionRule, rec *domain.DocumentRecord) []candidate {
	render := func(natural, name, field, value string) string {
		if rule.KeyTemplate == "" {
			return natural
		}
		return strings.NewReplacer(
			"{document}", rec.ID,
			"{filename}", rec.Filename,
			"{category}", string(rec.Category),
			"{name}", name,
			"{field}", readableKey(field),
			"{value}", value,
		).Replace(rule.KeyTemplate)
	}

	var out []candidate
	switch rule.Source {
	case domain.FieldCriticalFacts:
		for _, k := range sortedKeys(rec.CriticalFacts) {
			selected := rule.MatchesKey(k)
			if rule.Fallback {
				selected = !claimedCriticalFact(rules, rec.Category, k)
			}
			if selected {
				v := rec.CriticalFacts[k]
				out = append(out, candidate{render(strings.TrimSpace(k), "", k, v), v})
			}
		}

	case domain.FieldFinancialTerms:
		for _, k := range sortedKeys(rec.FinancialTerms) {
			if rule.MatchesKey(k) {
				v := rec.FinancialTerms[k]
				out = append(out, candidate{render(readableKey(k), "", k, v), v})
			}
		}

	case domain.FieldContractValue:
		if rec.ContractValue != "" {
			out = append(out, candidate{render("contract value", "", "contract_value", rec.ContractValue), rec.ContractValue})
		}

	case domain.FieldParties:
		for _, p := range rec.PrimaryParties {
			if rule.MatchesRole(p.Role) {
				out = append(out, candidate{render(p.Name, p.Name, "", ""), partyDescription(p)})
			}
		}

	case domain.FieldPartyValue:
		if rec.ContractValue == "" {
			break
		}
		for _, p := range rec.PrimaryParties {
			if rule.MatchesRole(p.Role) {
				out = append(out, candidate{render(p.Name, p.Name, "", rec.ContractValue), rec.ContractValue})
			}
		}

	case domain.FieldSigners:
		for _, s := range rec.Signers {
			value := "Signer of " + rec.Filename
			if s.DateSigned != nil && *s.DateSigned != "" {
				value += " (signed " + *s.DateSigned + ")"
			}
			out = append(out, candidate{render(s.Name, s.Name, "", ""), value})
		}

	case domain.FieldSignedDates:
		for _, s := range rec.Signers {
			if s.DateSigned != nil && *s.DateSigned != "" {
				out = append(out, candidate{render(s.Name, s.Name, "", *s.DateSigned), *s.DateSigned})
			}
		}

	case domain.FieldEffectiveDate:
		out = appendField(out, render, "effective_date", rec.EffectiveDate)
	case domain.FieldExpirationDate:
		out = appendField(out, render, "expiration_date", rec.ExpirationDate)
	case domain.FieldRenewalTerms:
		out = appendField(out, render, "renewal_terms", rec.RenewalTerms)

	case domain.FieldTemplate:
		if rec.IsTemplate() {
			value := string(rec.Category)
			if rec.TemplateAnalysis != nil && rec.TemplateAnalysis.TemplateType != "" {
				value = rec.TemplateAnalysis.TemplateType
			}
			out = append(out, candidate{render(rec.Filename, "", "", value), value})
		}

	case domain.FieldTags:
		for _, tag := range rec.Tags {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag != "" {
				out = append(out, candidate{render(tag, "", "", rec.Filename), rec.Filename})
			}
		}

	case domain.FieldStatus:
		if rec.Status != "" {
			status := readableKey(string(rec.Status))
			out = append(out, candidate{render(status, "", "status", status), status})
		}
	}
	return out
}

func appendField(out []candidate, render func(natural, name, field, value string) string, field, value string) []candidate {
	if value == "" {
		return out
	}
	return append(out, candidate{render(readableKey(field), "", field, value), value})
}

// claimedCriticalFact reports whether a non-fallback rule selects a critical fact key.
func claimedCriticalFact(rules *domain.RuleSet, c domain.Category, key string) bool {
	for _, r := range rules.Rules {
		if r.Source == domain.FieldCriticalFacts && !r.Fallback && r.AppliesTo(c) && r.MatchesKey(key) {
			return true
		}
	}
	return false
}

func partyDescription(p domain.Party) string {
	role := strings.TrimSpace(p.Role)
	org := strings.TrimSpace(p.Organization)
	switch {
	case role != "" && org != "":
		return role + " (" + org + ")"
	case role != "":
		return role
	case org != "":
		return org
	default:
		return "Party"
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
