package driving

import (
	"context"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// SearchService provides search capabilities to external actors.
type SearchService interface {
	// Search ranks pages for a query. Out-of-range threshold and weight are
	// clamped and reported in the response warnings. An empty query returns
	// an empty response. Hybrid mode degrades to keyword results instead of
	// failing when the embedding producer is unavailable.
	Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResponse, error)
}
