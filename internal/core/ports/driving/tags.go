package driving

import (
	"context"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// TagService manages tags on behalf of people.
type TagService interface {
	// Create adds a human tag, or returns the existing tag with the same name.
	Create(ctx context.Context, wikiID, name, color string) (*domain.Tag, error)

	// List returns a wiki's tags.
	List(ctx context.Context, wikiID string) ([]domain.Tag, error)

	// ListForPage returns the tags on a page.
	ListForPage(ctx context.Context, pageID string) ([]domain.Tag, error)

	// Verify marks a tag as confirmed by a person.
	Verify(ctx context.Context, tagID string) (*domain.Tag, error)

	// Attach links a tag to a page.
	Attach(ctx context.Context, tagID, pageID string) error

	// Detach unlinks a tag from a page.
	Detach(ctx context.Context, tagID, pageID string) error
}
