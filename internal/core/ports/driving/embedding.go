package driving

import (
	"context"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// EmbeddingService drives embedding generation and exposes its state
// for operational tooling.
type EmbeddingService interface {
	// EmbedPage embeds one page now, whatever its status.
	EmbedPage(ctx context.Context, pageID string) error

	// EmbedPending claims up to limit pending pages and embeds them.
	EmbedPending(ctx context.Context, limit int) (*domain.EmbedRun, error)

	// Retry moves a failed page back to pending.
	Retry(ctx context.Context, pageID string) error

	// RetryFailed moves all failed pages of a wiki back to pending.
	// An empty wikiID covers every wiki.
	RetryFailed(ctx context.Context, wikiID string) (int, error)

	// ListByStatus lists pages in a lifecycle state.
	ListByStatus(ctx context.Context, status domain.EmbeddingStatus, wikiID string, limit int) ([]domain.Page, error)

	// StatusCounts returns page counts per lifecycle state.
	StatusCounts(ctx context.Context, wikiID string) (domain.StatusCounts, error)

	// RunWorkers polls for pending pages until ctx is cancelled.
	RunWorkers(ctx context.Context) error
}
