package driven

import (
	"context"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// TagStore persists tags and their page associations.
// Names are unique per wiki, compared case-insensitively.
type TagStore interface {
	// FindTagByName returns the wiki's tag with this name, ignoring case.
	// Returns domain.ErrNotFound when absent.
	FindTagByName(ctx context.Context, wikiID, name string) (*domain.Tag, error)

	// GetOrCreateTag returns the existing tag with the same name in the wiki,
	// or inserts tag. The bool reports whether a new tag was created.
	GetOrCreateTag(ctx context.Context, tag *domain.Tag) (*domain.Tag, bool, error)

	// GetTag retrieves a tag by ID.
	GetTag(ctx context.Context, id string) (*domain.Tag, error)

	// ListTags returns all tags of a wiki ordered by name.
	ListTags(ctx context.Context, wikiID string) ([]domain.Tag, error)

	// ListTagsForPage returns the tags attached to a page ordered by name.
	ListTagsForPage(ctx context.Context, pageID string) ([]domain.Tag, error)

	// AttachTag links a tag to pages. Existing links are left as they are.
	AttachTag(ctx context.Context, tagID string, pageIDs ...string) error

	// DetachTag removes the link between a tag and a page.
	DetachTag(ctx context.Context, tagID, pageID string) error

	// SetVerified marks a tag as human-verified.
	SetVerified(ctx context.Context, tagID string) error
}
