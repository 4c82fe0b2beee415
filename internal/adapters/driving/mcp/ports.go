package mcp

import (
	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search provides search capabilities.
	Search driving.SearchService

	// Embeddings drives the embedding lifecycle.
	Embeddings driving.EmbeddingService

	// Clusters runs and lists clustering results.
	Clusters driving.ClusterService

	// Tagging proposes tags for clusters. Nil when no LLM is configured.
	Tagging driving.TaggingService

	// Pages reads page content for resources.
	Pages driving.PageService

	// Tags lists a wiki's tags for resources.
	Tags driving.TagService

	// SearchDefaults fills options the caller leaves out.
	SearchDefaults domain.SearchSettings
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	// The remaining ports are optional; their tools report unavailability.
	return nil
}
