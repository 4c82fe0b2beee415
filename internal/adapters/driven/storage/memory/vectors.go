package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
)

// ==================== VectorIndex ====================

// Upsert replaces every embedding of a page and marks it completed.
func (s *PageStore) Upsert(_ context.Context, pageID string, embeddings []domain.PageEmbedding) error {
	if len(embeddings) == 0 {
		return fmt.Errorf("%w: no embeddings for page %s", domain.ErrInvalidInput, pageID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.pages[pageID]
	if !ok {
		return domain.ErrNotFound
	}
	if err := s.replaceLocked(page, embeddings); err != nil {
		return err
	}
	page.EmbeddingStatus = domain.EmbeddingStatusCompleted
	page.EmbeddingError = ""
	page.ClaimToken = ""
	page.ClaimedAt = time.Time{}
	s.pages[pageID] = page
	return nil
}

// Delete removes a page's embeddings and returns it to pending.
func (s *PageStore) Delete(_ context.Context, pageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markDirtyLocked(pageID)
}

// Query returns the nearest chunks above the similarity floor.
func (s *PageStore) Query(_ context.Context, q driven.VectorQuery) ([]domain.VectorHit, error) {
	if q.TopK <= 0 || len(q.Vector) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.dimensionLocked("")
	if stored == 0 {
		return nil, nil
	}
	if stored != len(q.Vector) {
		return nil, &domain.DimensionMismatchError{Stored: stored, Query: len(q.Vector)}
	}

	var hits []domain.VectorHit
	for _, chunks := range s.embeddings {
		for _, e := range chunks {
			if q.WikiID != "" && e.WikiID != q.WikiID {
				continue
			}
			sim := domain.Dot(e.Vector, q.Vector)
			if sim < q.MinSimilarity {
				continue
			}
			hits = append(hits, domain.VectorHit{
				PageID:      e.PageID,
				WikiID:      e.WikiID,
				ChunkIndex:  e.ChunkIndex,
				HeadingPath: e.HeadingPath,
				Content:     e.Content,
				Similarity:  sim,
			})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		if hits[i].PageID != hits[j].PageID {
			return hits[i].PageID < hits[j].PageID
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
	if len(hits) > q.TopK {
		hits = hits[:q.TopK]
	}
	return hits, nil
}

// PrimaryEmbeddings mean-pools each completed page's chunks, ordered by page ID.
func (s *PageStore) PrimaryEmbeddings(_ context.Context, wikiID string) ([]domain.PrimaryEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PrimaryEmbedding
	for id, page := range s.pages {
		if page.WikiID != wikiID || page.EmbeddingStatus != domain.EmbeddingStatusCompleted {
			continue
		}
		chunks := s.embeddings[id]
		if len(chunks) == 0 {
			continue
		}
		vectors := make([][]float32, len(chunks))
		for i, e := range chunks {
			vectors[i] = e.Vector
		}
		out = append(out, domain.PrimaryEmbedding{PageID: id, Vector: domain.MeanPool(vectors)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageID < out[j].PageID })
	return out, nil
}

// Dimension returns the stored vector length, or 0 for an empty index.
func (s *PageStore) Dimension(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensionLocked(""), nil
}

func (s *PageStore) dimensionLocked(excludePage string) int {
	for id, chunks := range s.embeddings {
		if id != excludePage && len(chunks) > 0 {
			return chunks[0].Dimension
		}
	}
	return 0
}

func (s *PageStore) replaceLocked(page domain.Page, embeddings []domain.PageEmbedding) error {
	dim := len(embeddings[0].Vector)
	for _, e := range embeddings {
		if len(e.Vector) != dim || dim == 0 {
			return fmt.Errorf("%w: page %s has mixed chunk dimensions", domain.ErrInvalidInput, page.ID)
		}
	}
	if stored := s.dimensionLocked(page.ID); stored != 0 && stored != dim {
		return &domain.DimensionMismatchError{Stored: stored, Query: dim}
	}

	now := time.Now().UTC()
	chunks := make([]domain.PageEmbedding, len(embeddings))
	for i, e := range embeddings {
		e.PageID = page.ID
		e.WikiID = page.WikiID
		e.Dimension = dim
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		chunks[i] = e
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	s.embeddings[page.ID] = chunks
	return nil
}
