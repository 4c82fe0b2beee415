package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driving"
	"github.com/custodia-labs/wikiscope/internal/logger"
)

// Ensure TagService implements the interface.
var _ driving.TagService = (*TagService)(nil)

// TagService manages tags on behalf of people. Verification happens only here.
type TagService struct {
	tagStore driven.TagStore
}

// NewTagService creates a new tag service.
func NewTagService(tagStore driven.TagStore) *TagService {
	return &TagService{tagStore: tagStore}
}

// Create adds a human tag. The name is normalised first; an existing tag with
// the same name, in any case, is returned instead of a duplicate.
func (s *TagService) Create(ctx context.Context, wikiID, name, color string) (*domain.Tag, error) {
	wikiID = strings.TrimSpace(wikiID)
	if wikiID == "" {
		return nil, fmt.Errorf("%w: wiki id is required", domain.ErrInvalidInput)
	}
	name = domain.NormalizeTagName(name)
	if err := domain.ValidateTagName(name); err != nil {
		return nil, err
	}

	tag, created, err := s.tagStore.GetOrCreateTag(ctx, &domain.Tag{
		ID:        uuid.NewString(),
		WikiID:    wikiID,
		Name:      name,
		Color:     strings.TrimSpace(color),
		Source:    domain.TagSourceHuman,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("create tag %q: %w", name, err)
	}
	if created {
		logger.Debug("Created tag %q in wiki %s", name, wikiID)
	}
	return tag, nil
}

// List returns a wiki's tags ordered by name.
func (s *TagService) List(ctx context.Context, wikiID string) ([]domain.Tag, error) {
	return s.tagStore.ListTags(ctx, wikiID)
}

// ListForPage returns the tags on a page ordered by name.
func (s *TagService) ListForPage(ctx context.Context, pageID string) ([]domain.Tag, error) {
	return s.tagStore.ListTagsForPage(ctx, pageID)
}

// Verify marks a tag as confirmed by a person.
func (s *TagService) Verify(ctx context.Context, tagID string) (*domain.Tag, error) {
	if err := s.tagStore.SetVerified(ctx, tagID); err != nil {
		return nil, fmt.Errorf("verify tag %s: %w", tagID, err)
	}
	logger.Info("Tag %s verified", tagID)
	return s.tagStore.GetTag(ctx, tagID)
}

// Attach links a tag to a page.
func (s *TagService) Attach(ctx context.Context, tagID, pageID string) error {
	if err := s.tagStore.AttachTag(ctx, tagID, pageID); err != nil {
		return fmt.Errorf("attach tag %s: %w", tagID, err)
	}
	return nil
}

// Detach unlinks a tag from a page.
func (s *TagService) Detach(ctx context.Context, tagID, pageID string) error {
	return s.tagStore.DetachTag(ctx, tagID, pageID)
}
