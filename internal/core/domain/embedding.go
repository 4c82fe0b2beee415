package domain

import (
	"math"
	"strings"
	"time"
)

// PageEmbedding is one chunk-level vector for a page.
// All embeddings in one index share the same dimension.
type PageEmbedding struct {
	// PageID is the owning page.
	PageID string

	// WikiID is copied from the page for scoped queries.
	WikiID string

	// ChunkIndex is the ordinal position of the chunk within the page.
	ChunkIndex int

	// HeadingPath is the breadcrumb of section headings for the chunk.
	HeadingPath []string

	// Content is the chunk text, kept for result previews.
	Content string

	// Vector is the unit-normalised embedding.
	Vector []float32

	// Dimension is len(Vector).
	Dimension int

	// ModelName is the model that produced the vector.
	ModelName string

	// CreatedAt is when the vector was stored.
	CreatedAt time.Time
}

// HeadingBreadcrumb joins the heading path for display.
func (e PageEmbedding) HeadingBreadcrumb() string {
	return strings.Join(e.HeadingPath, " > ")
}

// Chunk is a piece of page content ready for embedding.
type Chunk struct {
	// Index is the ordinal position within the page.
	Index int

	// HeadingPath is the breadcrumb of headings enclosing the chunk.
	HeadingPath []string

	// Content is the chunk text.
	Content string
}

// VectorHit is a chunk returned by a nearest-neighbour query.
type VectorHit struct {
	PageID      string
	WikiID      string
	ChunkIndex  int
	HeadingPath []string
	Content     string
	Similarity  float64
}

// KeywordHit is a page returned by the full-text backend.
type KeywordHit struct {
	PageID  string
	WikiID  string
	Title   string
	Snippet string
	Score   float64
}

// PrimaryEmbedding is the single vector representing a whole page.
type PrimaryEmbedding struct {
	PageID string
	Vector []float32
}

// Normalize scales v to unit length in place and returns it.
// A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Dot returns the dot product of a and b. For unit vectors this is the cosine similarity.
// Vectors of different length return 0.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MeanPool averages vectors element-wise and normalises the result.
func MeanPool(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float32, len(vectors[0]))
	for _, v := range vectors {
		for i := range out {
			if i < len(v) {
				out[i] += v[i]
			}
		}
	}
	n := float32(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return Normalize(out)
}
