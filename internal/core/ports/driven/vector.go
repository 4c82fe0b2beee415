package driven

import (
	"context"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// VectorIndex stores chunk embeddings and answers similarity queries.
// Backed by SQLite with an in-database dot product over normalised vectors.
type VectorIndex interface {
	// Upsert replaces every embedding of a page in one transaction.
	// Readers never observe a mix of old and new chunks.
	Upsert(ctx context.Context, pageID string, embeddings []domain.PageEmbedding) error

	// Delete removes every embedding of a page.
	Delete(ctx context.Context, pageID string) error

	// Query returns up to TopK chunks with similarity >= MinSimilarity, ordered
	// by similarity descending, then page ID and chunk index ascending.
	// A query vector whose length differs from the stored dimension returns
	// a *domain.DimensionMismatchError.
	Query(ctx context.Context, q VectorQuery) ([]domain.VectorHit, error)

	// PrimaryEmbeddings returns one mean-pooled vector per completed page in a wiki,
	// ordered by page ID.
	PrimaryEmbeddings(ctx context.Context, wikiID string) ([]domain.PrimaryEmbedding, error)

	// Dimension returns the stored vector dimension, or 0 for an empty index.
	Dimension(ctx context.Context) (int, error)
}

// VectorQuery describes a nearest-neighbour query.
type VectorQuery struct {
	// Vector is the unit-normalised query embedding.
	Vector []float32

	// TopK caps the number of hits.
	TopK int

	// MinSimilarity drops hits below this cosine similarity.
	MinSimilarity float64

	// WikiID scopes the query when non-empty.
	WikiID string
}
