package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// PageStore persists page content.
type PageStore interface {
	// PutPage stores or updates a page. When the content changed, the page is
	// marked dirty in the same transaction. Returns whether it changed.
	PutPage(ctx context.Context, page *domain.Page) (bool, error)

	// GetPage retrieves a page by ID.
	GetPage(ctx context.Context, id string) (*domain.Page, error)

	// GetPages retrieves pages by ID. Unknown IDs are skipped.
	GetPages(ctx context.Context, ids []string) ([]domain.Page, error)

	// DeletePage removes a page with its embeddings and tag links.
	DeletePage(ctx context.Context, id string) error

	// ListWikiIDs returns every wiki that has at least one completed page.
	ListWikiIDs(ctx context.Context) ([]string, error)
}

// EmbeddingTracker is the per-page embedding state machine.
//
// Status transitions: pending -> processing -> completed|failed,
// any -> pending on content change, failed -> pending on retry.
// A completed page always has embeddings; any other status has none.
type EmbeddingTracker interface {
	// MarkDirty sets a page to pending and deletes its embeddings.
	MarkDirty(ctx context.Context, pageID string) error

	// ClaimBatch atomically moves up to limit pending pages to processing.
	// Pages processing since before staleBefore are reclaimed as well.
	// Concurrent callers never receive the same page.
	ClaimBatch(ctx context.Context, limit int, staleBefore time.Time) ([]domain.PageClaim, error)

	// ClaimPage claims one page regardless of status unless a live claim holds it,
	// in which case it returns domain.ErrPageBusy.
	ClaimPage(ctx context.Context, pageID string, staleBefore time.Time) (*domain.PageClaim, error)

	// Complete stores the embeddings and marks the page completed.
	// Returns domain.ErrStaleClaim if the claim token no longer holds the page.
	Complete(ctx context.Context, claim domain.PageClaim, embeddings []domain.PageEmbedding) error

	// Fail marks the page failed with a reason.
	// Returns domain.ErrStaleClaim if the claim token no longer holds the page.
	Fail(ctx context.Context, claim domain.PageClaim, reason string) error

	// Retry moves a failed page back to pending.
	Retry(ctx context.Context, pageID string) error

	// RetryFailed moves every failed page in a wiki (or all wikis) back to pending.
	RetryFailed(ctx context.Context, wikiID string) (int, error)

	// ListByStatus returns pages in a status, optionally scoped to a wiki.
	ListByStatus(ctx context.Context, status domain.EmbeddingStatus, wikiID string, limit int) ([]domain.Page, error)

	// CountByStatus returns the number of pages in each status.
	CountByStatus(ctx context.Context, wikiID string) (domain.StatusCounts, error)
}
