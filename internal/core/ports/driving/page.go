package driving

import (
	"context"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// PageService accepts page content from the wiki.
type PageService interface {
	// Put stores a page. Changed content resets the embedding status to pending.
	Put(ctx context.Context, page domain.Page) (*domain.Page, bool, error)

	// Get retrieves a page.
	Get(ctx context.Context, pageID string) (*domain.Page, error)

	// Delete removes a page and everything derived from it.
	Delete(ctx context.Context, pageID string) error
}
