package driven

import "github.com/custodia-labs/wikiscope/internal/core/domain"

// Chunker splits page content into chunks for embedding.
// Chunks keep the heading path of the section they came from.
type Chunker interface {
	// Name returns the chunker name for logging.
	Name() string

	// Chunk splits a page. An empty page yields no chunks.
	Chunk(page *domain.Page) []domain.Chunk
}
