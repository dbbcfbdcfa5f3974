package domain

import (
	"slices"
	"time"
)

// Bucket names of the aggregated fact indexes.
const (
	BucketCompany   = "company"
	BucketPeople    = "people"
	BucketFinancial = "financial"
	BucketDates     = "dates"
	BucketTemplates = "templates"
	BucketTags      = "tags"
	BucketStatus    = "status"

	// BucketDocuments is a pseudo-bucket. It holds no facts but is reported
	// as affected whenever the document set changes, so cached results that
	// ran the document pass are invalidated.
	BucketDocuments = "_documents"
)

// MemoryFact is one aggregated fact inside a named bucket.
type MemoryFact struct {
	Bucket string

	// Key identifies the fact within its bucket (a person's name, "ein_number", ...).
	Key string

	Value string

	// SourceDocumentIDs is the sorted set of records backing the fact.
	// It is never empty for a fact held by the index.
	SourceDocumentIDs []string

	LastUpdated time.Time
}

// Ref returns the fact's bucket/key identity.
func (f *MemoryFact) Ref() FactRef {
	return FactRef{Bucket: f.Bucket, Key: f.Key}
}

// HasSource reports whether id backs the fact.
func (f *MemoryFact) HasSource(id string) bool {
	_, found := slices.BinarySearch(f.SourceDocumentIDs, id)
	return found
}

// FactRef identifies a fact by bucket and key.
type FactRef struct {
	Bucket string
	Key    string
}

// FactContribution is the value one document contributed to a fact.
// Seq orders contributions by ingestion; the highest Seq supplies the
// fact's visible value.
type FactContribution struct {
	DocumentID string
	Value      string
	Seq        uint64
	UpdatedAt  time.Time
}

// IndexStats summarises the memory index.
type IndexStats struct {
	Version   uint64
	Records   int
	Buckets   map[string]int
	Available bool
}
