package sidecar

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/custodia-labs/docmind/internal/core/domain"
)

//go:embed schema.json
var schemaJSON string

var schemaLoader = gojsonschema.NewStringLoader(schemaJSON)

// sidecarFile is the on-disk form of a document record.
type sidecarFile struct {
	Filename         string         `json:"filename"`
	Category         string         `json:"category"`
	Status           string         `json:"status"`
	Signers          []signerJSON   `json:"signers,omitempty"`
	PrimaryParties   []partyJSON    `json:"primary_parties,omitempty"`
	EffectiveDate    string         `json:"effective_date,omitempty"`
	ExpirationDate   string         `json:"expiration_date,omitempty"`
	RenewalTerms     string         `json:"renewal_terms,omitempty"`
	ContractValue    string         `json:"contract_value,omitempty"`
	FinancialTerms   map[string]any `json:"financial_terms,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	CriticalFacts    map[string]any `json:"critical_facts,omitempty"`
	FreeText         *freeTextJSON  `json:"free_text,omitempty"`
	TemplateAnalysis *templateJSON  `json:"template_analysis,omitempty"`
	UpdatedAt        string         `json:"updated_at,omitempty"`
}

type signerJSON struct {
	Name       string  `json:"name"`
	DateSigned *string `json:"date_signed"`
}

type partyJSON struct {
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
	Role         string `json:"role,omitempty"`
}

type freeTextJSON struct {
	BusinessContext string   `json:"business_context,omitempty"`
	KeyTerms        []string `json:"key_terms,omitempty"`
	Obligations     []string `json:"obligations,omitempty"`
}

type templateJSON struct {
	IsTemplate   bool   `json:"is_template"`
	TemplateType string `json:"template_type,omitempty"`
}

// validate checks raw sidecar bytes against the embedded schema.
func validate(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedRecord, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", domain.ErrMalformedRecord, strings.Join(msgs, "; "))
	}
	return nil
}

// decode validates and converts sidecar bytes into the record with the given ID.
func decode(id string, data []byte) (domain.DocumentRecord, error) {
	if err := validate(data); err != nil {
		return domain.DocumentRecord{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var f sidecarFile
	if err := dec.Decode(&f); err != nil {
		return domain.DocumentRecord{}, fmt.Errorf("%w: %v", domain.ErrMalformedRecord, err)
	}

	rec := domain.DocumentRecord{
		ID:             id,
		Filename:       f.Filename,
		Category:       domain.Category(f.Category),
		Status:         domain.Status(f.Status),
		EffectiveDate:  f.EffectiveDate,
		ExpirationDate: f.ExpirationDate,
		RenewalTerms:   f.RenewalTerms,
		ContractValue:  f.ContractValue,
		FinancialTerms: scalars(f.FinancialTerms),
		CriticalFacts:  scalars(f.CriticalFacts),
	}
	if len(f.Tags) > 0 {
		rec.Tags = f.Tags
	}
	for _, s := range f.Signers {
		rec.Signers = append(rec.Signers, domain.Signer{Name: s.Name, DateSigned: s.DateSigned})
	}
	for _, p := range f.PrimaryParties {
		rec.PrimaryParties = append(rec.PrimaryParties, domain.Party(p))
	}
	if f.FreeText != nil {
		rec.FreeText = domain.FreeText{
			BusinessContext: f.FreeText.BusinessContext,
			KeyTerms:        nonEmpty(f.FreeText.KeyTerms),
			Obligations:     nonEmpty(f.FreeText.Obligations),
		}
	}
	if f.TemplateAnalysis != nil {
		rec.TemplateAnalysis = &domain.TemplateAnalysis{
			IsTemplate:   f.TemplateAnalysis.IsTemplate,
			TemplateType: f.TemplateAnalysis.TemplateType,
		}
	}
	if f.UpdatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, f.UpdatedAt)
		if err != nil {
			return domain.DocumentRecord{}, fmt.Errorf("%w: updated_at: %v", domain.ErrMalformedRecord, err)
		}
		rec.UpdatedAt = t.UTC()
	}

	if err := rec.Validate(); err != nil {
		return domain.DocumentRecord{}, err
	}
	return rec, nil
}

// scalars flattens a JSON object of scalars into strings. Nulls are dropped.
func scalars(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func nonEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return values
}
