package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category is the business folder a document is organised into.
type Category string

// Known business folders.
const (
	CategoryCorporateGovernance  Category = "Corporate_Governance"
	CategoryInvestment           Category = "Investment_Fundraising"
	CategoryEmployment           Category = "Employment_HR"
	CategoryIntellectualProperty Category = "Intellectual_Property"
	CategorySales                Category = "Sales_Customers"
	CategoryVendors              Category = "Vendors_Partners"
	CategoryFinance              Category = "Finance_Tax"
	CategoryLegal                Category = "Legal_Compliance"
	CategoryRealEstate           Category = "Real_Estate"
	CategoryTemplates            Category = "Templates"
	CategoryUncategorized        Category = "Uncategorized"
)

// Categories returns every known category in folder order.
func Categories() []Category {
	return []Category{
		CategoryCorporateGovernance,
		CategoryInvestment,
		CategoryEmployment,
		CategoryIntellectualProperty,
		CategorySales,
		CategoryVendors,
		CategoryFinance,
		CategoryLegal,
		CategoryRealEstate,
		CategoryTemplates,
		CategoryUncategorized,
	}
}

// IsValid returns true if the category is a known business folder.
func (c Category) IsValid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Words returns the lower-cased words of the folder name,
// e.g. "Investment_Fundraising" -> ["investment", "fundraising"].
func (c Category) Words() []string {
	return strings.FieldsFunc(strings.ToLower(string(c)), func(r rune) bool {
		return r == '_' || r == ' ' || r == '-'
	})
}

// String returns the string representation.
func (c Category) String() string {
	return string(c)
}

// Status is the execution state of a document.
type Status string

// Document statuses.
const (
	StatusNotExecuted       Status = "not_executed"
	StatusPartiallyExecuted Status = "partially_executed"
	StatusExecuted          Status = "executed"
	StatusTemplate          Status = "template"
)

// IsValid returns true if the status is recognised.
func (s Status) IsValid() bool {
	switch s {
	case StatusNotExecuted, StatusPartiallyExecuted, StatusExecuted, StatusTemplate:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s Status) String() string {
	return string(s)
}

// Signer is a person who signed (or must sign) a document.
type Signer struct {
	Name string

	// DateSigned is nil while the signature is outstanding.
	DateSigned *string
}

// Party is a primary party to a document.
type Party struct {
	Name         string
	Organization string
	Role         string
}

// FreeText holds the unstructured fields produced by extraction.
type FreeText struct {
	BusinessContext string
	KeyTerms        []string
	Obligations     []string
}

// IsEmpty reports whether no free text is present.
func (f FreeText) IsEmpty() bool {
	return f.BusinessContext == "" && len(f.KeyTerms) == 0 && len(f.Obligations) == 0
}

// TemplateAnalysis describes whether a document is a reusable template.
type TemplateAnalysis struct {
	IsTemplate   bool
	TemplateType string
}

// DocumentRecord is the metadata for one organised document.
// Records are owned by the metadata store and treated as immutable;
// re-extraction replaces the whole record.
type DocumentRecord struct {
	// ID is the stable path-derived key (slash separated, relative to the library root).
	ID string

	// Filename is the document file name.
	Filename string

	Category Category
	Status   Status

	// Signers is ordered as extracted.
	Signers []Signer

	PrimaryParties []Party

	// Optional dates and values. Empty means absent.
	EffectiveDate  string
	ExpirationDate string
	RenewalTerms   string
	ContractValue  string

	// FinancialTerms holds named financial terms (valuation cap, discount, ...).
	FinancialTerms map[string]string

	Tags []string

	// CriticalFacts is the open mapping of extracted facts (ein_number, ...).
	CriticalFacts map[string]string

	FreeText FreeText

	// TemplateAnalysis is nil when the extractor did not analyse templates.
	TemplateAnalysis *TemplateAnalysis

	// UpdatedAt is when the metadata was produced. Used for recency ordering.
	UpdatedAt time.Time
}

// IsTemplate reports whether the record is a template, either by status
// or by template analysis.
func (r *DocumentRecord) IsTemplate() bool {
	if r.Status == StatusTemplate {
		return true
	}
	return r.TemplateAnalysis != nil && r.TemplateAnalysis.IsTemplate
}

// Validate checks the required fields. The returned error wraps ErrMalformedRecord.
func (r *DocumentRecord) Validate() error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return fmt.Errorf("%w: missing id", ErrMalformedRecord)
	case strings.TrimSpace(r.Filename) == "":
		return fmt.Errorf("%w: %s: missing filename", ErrMalformedRecord, r.ID)
	case !r.Category.IsValid():
		return fmt.Errorf("%w: %s: unknown category %q", ErrMalformedRecord, r.ID, r.Category)
	case !r.Status.IsValid():
		return fmt.Errorf("%w: %s: unknown status %q", ErrMalformedRecord, r.ID, r.Status)
	}
	for i, p := range r.PrimaryParties {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: %s: party %d has no name", ErrMalformedRecord, r.ID, i)
		}
	}
	for i, s := range r.Signers {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("%w: %s: signer %d has no name", ErrMalformedRecord, r.ID, i)
		}
	}
	return nil
}
