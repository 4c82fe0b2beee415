package driven

import (
	"context"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// KeywordSearch provides full-text search over page content.
// Backed by SQLite FTS5. The index is maintained by PageStore writes.
type KeywordSearch interface {
	// Search returns pages matching the query, best first.
	// Scores are opaque; higher is better.
	Search(ctx context.Context, query, wikiID string, limit int) ([]domain.KeywordHit, error)
}
