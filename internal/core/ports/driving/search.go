package driving

import (
	"context"

	"github.com/custodia-labs/docmind/internal/core/domain"
)

// SearchService answers free-text questions about ingested documents.
type SearchService interface {
	// Search runs the query pipeline. A nil opts uses the configured defaults.
	// Only invalid options produce an error; an unavailable index degrades
	// to an empty result.
	Search(ctx context.Context, rawText string, opts *domain.SearchOptions) (*domain.SearchResult, error)
}
