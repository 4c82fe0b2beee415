package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driving"
	"github.com/custodia-labs/wikiscope/internal/logger"
)

// Ensure PageService implements the interface.
var _ driving.PageService = (*PageService)(nil)

// PageService accepts page content pushed by the wiki.
type PageService struct {
	pageStore driven.PageStore
}

// NewPageService creates a new page service.
func NewPageService(pageStore driven.PageStore) *PageService {
	return &PageService{pageStore: pageStore}
}

// Put stores a page. Changed content resets the page to pending and drops its
// embeddings in the same write. The bool reports whether anything changed.
func (s *PageService) Put(ctx context.Context, page domain.Page) (*domain.Page, bool, error) {
	page.ID = strings.TrimSpace(page.ID)
	page.WikiID = strings.TrimSpace(page.WikiID)
	if page.ID == "" {
		return nil, false, fmt.Errorf("%w: page id is required", domain.ErrInvalidInput)
	}
	if page.WikiID == "" {
		return nil, false, fmt.Errorf("%w: wiki id is required", domain.ErrInvalidInput)
	}

	changed, err := s.pageStore.PutPage(ctx, &page)
	if err != nil {
		return nil, false, fmt.Errorf("put page %s: %w", page.ID, err)
	}
	if changed {
		logger.Debug("Page %s changed, queued for embedding", page.ID)
	}

	stored, err := s.pageStore.GetPage(ctx, page.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, changed, nil
}

// Get retrieves a page.
func (s *PageService) Get(ctx context.Context, pageID string) (*domain.Page, error) {
	return s.pageStore.GetPage(ctx, pageID)
}

// Delete removes a page with its embeddings and tag links.
func (s *PageService) Delete(ctx context.Context, pageID string) error {
	if err := s.pageStore.DeletePage(ctx, pageID); err != nil {
		return fmt.Errorf("delete page %s: %w", pageID, err)
	}
	logger.Debug("Deleted page %s", pageID)
	return nil
}
