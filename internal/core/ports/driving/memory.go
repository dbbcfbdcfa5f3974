package driving

import (
	"context"

	"github.com/custodia-labs/docmind/internal/core/domain"
)

// FactPredicate selects facts in MemoryIndex.Query.
type FactPredicate func(fact *domain.MemoryFact) bool

// ChangeListener is notified after every index mutation with the buckets
// whose facts changed. BucketDocuments is included when the record set changed.
type ChangeListener func(buckets []string)

// MemoryIndex maintains the aggregated fact buckets.
type MemoryIndex interface {
	// Ingest extracts facts from a record and upserts them. Re-ingesting
	// identical content is a no-op on fact state.
	Ingest(ctx context.Context, record domain.DocumentRecord) error

	// IngestBatch ingests records in order. Failures are logged and
	// counted but never stop the batch.
	IngestBatch(ctx context.Context, records []domain.DocumentRecord) (ingested int, failed int)

	// Remove strips a record from every fact, dropping facts left without sources.
	Remove(ctx context.Context, recordID string) error

	// RebuildAll re-scans every record and replaces all buckets. On failure
	// the previous index is left intact.
	RebuildAll(ctx context.Context) error

	// Query returns matching facts. An empty bucket matches every bucket;
	// a nil predicate matches every fact.
	Query(bucket string, predicate FactPredicate) ([]domain.MemoryFact, error)

	// SnapshotVersion is bumped on every ingest and remove.
	SnapshotVersion() uint64

	// Stats summarises the index.
	Stats() domain.IndexStats

	// Subscribe registers a change listener.
	Subscribe(listener ChangeListener)
}
