package driven

import (
	"context"

	"github.com/custodia-labs/docmind/internal/core/domain"
)

// StoredFact is a memory fact together with every per-document contribution.
type StoredFact struct {
	Fact          domain.MemoryFact
	Contributions []domain.FactContribution
}

// FactStore persists the memory index between runs.
// Backed by SQLite.
type FactStore interface {
	// LoadFacts returns every stored fact.
	LoadFacts(ctx context.Context) ([]StoredFact, error)

	// SaveFacts upserts and deletes facts atomically.
	SaveFacts(ctx context.Context, upserts []StoredFact, deletes []domain.FactRef) error

	// ReplaceAll atomically replaces the whole index. On failure the
	// previous contents are kept.
	ReplaceAll(ctx context.Context, facts []StoredFact) error

	// Close releases resources.
	Close() error
}
