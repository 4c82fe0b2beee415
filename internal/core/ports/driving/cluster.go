package driving

import (
	"context"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// ClusterService groups a wiki's pages by embedding proximity.
type ClusterService interface {
	// Run computes a new cluster generation for a wiki.
	// Returns domain.ErrClusteringInProgress if a run for the wiki is active.
	Run(ctx context.Context, wikiID string) (*domain.ClusterRun, error)

	// List returns the current clusters of a wiki.
	List(ctx context.Context, wikiID string) ([]domain.Cluster, error)

	// Get retrieves a cluster.
	Get(ctx context.Context, clusterID string) (*domain.Cluster, error)

	// IsRunning reports whether a run is active for the wiki.
	IsRunning(wikiID string) bool
}

// TaggingService proposes AI tags for clusters.
type TaggingService interface {
	// TagCluster tags one cluster. A cluster whose result is cached is not
	// sent to the model again.
	TagCluster(ctx context.Context, clusterID string) (*domain.ClusterTagResult, error)

	// TagWiki tags every cluster of the wiki's current generation.
	// One cluster's failure does not stop the others.
	TagWiki(ctx context.Context, wikiID string) (*domain.TagRun, error)
}
