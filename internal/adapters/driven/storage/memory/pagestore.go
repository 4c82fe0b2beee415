package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
)

// Ensure PageStore implements the interfaces.
var (
	_ driven.PageStore        = (*PageStore)(nil)
	_ driven.EmbeddingTracker = (*PageStore)(nil)
	_ driven.VectorIndex      = (*PageStore)(nil)
	_ driven.KeywordSearch    = (*PageStore)(nil)
)

// PageStore is an in-memory implementation of the page, embedding, vector
// and keyword ports. One mutex guards all four so status and embeddings
// always change together.
type PageStore struct {
	mu         sync.RWMutex
	pages      map[string]domain.Page
	embeddings map[string][]domain.PageEmbedding
}

// NewPageStore creates a new in-memory page store.
func NewPageStore() *PageStore {
	return &PageStore{
		pages:      make(map[string]domain.Page),
		embeddings: make(map[string][]domain.PageEmbedding),
	}
}

// ==================== PageStore ====================

// PutPage stores or updates a page, resetting it to pending when the content changed.
func (s *PageStore) PutPage(_ context.Context, page *domain.Page) (bool, error) {
	if page == nil || page.ID == "" || page.WikiID == "" {
		return false, domain.ErrInvalidInput
	}
	page.ContentHash = domain.ContentHash(page.Title, page.Content)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	createdAt := now
	if existing, ok := s.pages[page.ID]; ok {
		if existing.ContentHash == page.ContentHash && existing.WikiID == page.WikiID {
			return false, nil
		}
		createdAt = existing.CreatedAt
	}

	page.CreatedAt = createdAt
	page.UpdatedAt = now
	page.EmbeddingStatus = domain.EmbeddingStatusPending
	page.EmbeddingError = ""
	page.ClaimToken = ""
	page.ClaimedAt = time.Time{}
	s.pages[page.ID] = *page
	delete(s.embeddings, page.ID)
	return true, nil
}

// GetPage retrieves a page by ID.
func (s *PageStore) GetPage(_ context.Context, id string) (*domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &page, nil
}

// GetPages retrieves pages by ID, ordered by ID.
func (s *PageStore) GetPages(_ context.Context, ids []string) ([]domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Page
	for _, id := range ids {
		if page, ok := s.pages[id]; ok {
			result = append(result, page)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// DeletePage removes a page and its embeddings.
func (s *PageStore) DeletePage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.pages, id)
	delete(s.embeddings, id)
	return nil
}

// ListWikiIDs returns every wiki that has at least one completed page.
func (s *PageStore) ListWikiIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var ids []string
	for _, page := range s.pages {
		if page.EmbeddingStatus == domain.EmbeddingStatusCompleted && !seen[page.WikiID] {
			seen[page.WikiID] = true
			ids = append(ids, page.WikiID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ==================== EmbeddingTracker ====================

// MarkDirty sets a page to pending and deletes its embeddings.
func (s *PageStore) MarkDirty(_ context.Context, pageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markDirtyLocked(pageID)
}

func (s *PageStore) markDirtyLocked(pageID string) error {
	page, ok := s.pages[pageID]
	if !ok {
		return domain.ErrNotFound
	}
	page.EmbeddingStatus = domain.EmbeddingStatusPending
	page.EmbeddingError = ""
	page.ClaimToken = ""
	page.ClaimedAt = time.Time{}
	s.pages[pageID] = page
	delete(s.embeddings, pageID)
	return nil
}

// ClaimBatch moves up to limit pending or stale pages to processing.
func (s *PageStore) ClaimBatch(_ context.Context, limit int, staleBefore time.Time) ([]domain.PageClaim, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []domain.Page
	for _, page := range s.pages {
		if claimable(page, staleBefore) {
			candidates = append(candidates, page)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].UpdatedAt.Equal(candidates[j].UpdatedAt) {
			return candidates[i].UpdatedAt.Before(candidates[j].UpdatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	token := uuid.NewString()
	now := time.Now().UTC()
	claims := make([]domain.PageClaim, 0, len(candidates))
	for _, page := range candidates {
		page.EmbeddingStatus = domain.EmbeddingStatusProcessing
		page.EmbeddingError = ""
		page.ClaimToken = token
		page.ClaimedAt = now
		s.pages[page.ID] = page
		claims = append(claims, domain.PageClaim{Page: page, Token: token})
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].Page.ID < claims[j].Page.ID })
	return claims, nil
}

// ClaimPage claims one page in any state unless a live claim holds it.
func (s *PageStore) ClaimPage(_ context.Context, pageID string, staleBefore time.Time) (*domain.PageClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.pages[pageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if page.EmbeddingStatus == domain.EmbeddingStatusProcessing && !page.ClaimedAt.Before(staleBefore) {
		return nil, domain.ErrPageBusy
	}

	token := uuid.NewString()
	page.EmbeddingStatus = domain.EmbeddingStatusProcessing
	page.EmbeddingError = ""
	page.ClaimToken = token
	page.ClaimedAt = time.Now().UTC()
	s.pages[pageID] = page
	delete(s.embeddings, pageID)
	return &domain.PageClaim{Page: page, Token: token}, nil
}

// Complete stores embeddings and marks the page completed if the claim still holds.
func (s *PageStore) Complete(_ context.Context, claim domain.PageClaim, embeddings []domain.PageEmbedding) error {
	if len(embeddings) == 0 {
		return fmt.Errorf("%w: no embeddings for page %s", domain.ErrInvalidInput, claim.Page.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.pages[claim.Page.ID]
	if !ok || !holds(page, claim.Token) {
		return domain.ErrStaleClaim
	}
	if err := s.replaceLocked(page, embeddings); err != nil {
		return err
	}
	page.EmbeddingStatus = domain.EmbeddingStatusCompleted
	page.EmbeddingError = ""
	page.ClaimToken = ""
	page.ClaimedAt = time.Time{}
	s.pages[page.ID] = page
	return nil
}

// Fail marks the page failed if the claim still holds.
func (s *PageStore) Fail(_ context.Context, claim domain.PageClaim, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.pages[claim.Page.ID]
	if !ok || !holds(page, claim.Token) {
		return domain.ErrStaleClaim
	}
	page.EmbeddingStatus = domain.EmbeddingStatusFailed
	page.EmbeddingError = reason
	page.ClaimToken = ""
	page.ClaimedAt = time.Time{}
	s.pages[page.ID] = page
	return nil
}

// Retry moves a failed page back to pending.
func (s *PageStore) Retry(_ context.Context, pageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.pages[pageID]
	if !ok {
		return domain.ErrNotFound
	}
	if page.EmbeddingStatus != domain.EmbeddingStatusFailed {
		return fmt.Errorf("%w: page %s is %s, not failed", domain.ErrInvalidInput, pageID, page.EmbeddingStatus)
	}
	page.EmbeddingStatus = domain.EmbeddingStatusPending
	page.EmbeddingError = ""
	s.pages[pageID] = page
	return nil
}

// RetryFailed moves every failed page in scope back to pending.
func (s *PageStore) RetryFailed(_ context.Context, wikiID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, page := range s.pages {
		if page.EmbeddingStatus != domain.EmbeddingStatusFailed || (wikiID != "" && page.WikiID != wikiID) {
			continue
		}
		page.EmbeddingStatus = domain.EmbeddingStatusPending
		page.EmbeddingError = ""
		s.pages[id] = page
		n++
	}
	return n, nil
}

// ListByStatus returns pages in a status, oldest update first.
func (s *PageStore) ListByStatus(_ context.Context, status domain.EmbeddingStatus, wikiID string, limit int) ([]domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Page
	for _, page := range s.pages {
		if page.EmbeddingStatus == status && (wikiID == "" || page.WikiID == wikiID) {
			result = append(result, page)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.Before(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountByStatus returns page counts for every status, including zeros.
func (s *PageStore) CountByStatus(_ context.Context, wikiID string) (domain.StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := domain.StatusCounts{}
	for _, st := range domain.AllEmbeddingStatuses() {
		counts[st] = 0
	}
	for _, page := range s.pages {
		if wikiID == "" || page.WikiID == wikiID {
			counts[page.EmbeddingStatus]++
		}
	}
	return counts, nil
}

func claimable(page domain.Page, staleBefore time.Time) bool {
	switch page.EmbeddingStatus {
	case domain.EmbeddingStatusPending:
		return true
	case domain.EmbeddingStatusProcessing:
		return page.ClaimedAt.Before(staleBefore)
	default:
		return false
	}
}

func holds(page domain.Page, token string) bool {
	return page.EmbeddingStatus == domain.EmbeddingStatusProcessing && page.ClaimToken == token
}
