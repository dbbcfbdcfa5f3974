package driven

import (
	"context"

	"github.com/custodia-labs/docmind/internal/core/domain"
)

// MetadataStore provides access to per-document metadata records.
// Backed by JSON sidecar files co-located with each organised document.
type MetadataStore interface {
	// Scan re-reads the backing storage and returns every valid record.
	// Malformed records are skipped; storage failures are returned.
	Scan(ctx context.Context) ([]domain.DocumentRecord, error)

	// List returns the current view of records without touching storage
	// more than necessary. Records are ordered by ID.
	List(ctx context.Context) ([]domain.DocumentRecord, error)

	// Get retrieves a record by ID. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*domain.DocumentRecord, error)

	// Track adds or refreshes a record in the current view. It never writes
	// the backing storage, which stays owned by the organiser. The result
	// reports whether the view changed.
	Track(ctx context.Context, record domain.DocumentRecord) (bool, error)

	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, id string) error
}
