package driven

import (
	"context"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// ClusterStore persists cluster generations.
type ClusterStore interface {
	// CurrentGeneration returns the latest generation number for a wiki, 0 if none.
	CurrentGeneration(ctx context.Context, wikiID string) (int64, error)

	// ReplaceClusters swaps the wiki's clusters for a new generation in one
	// transaction. Tags set on the incoming clusters are stored as their cache.
	ReplaceClusters(ctx context.Context, wikiID string, generation int64, clusters []domain.Cluster) error

	// ListClusters returns the current generation for a wiki.
	ListClusters(ctx context.Context, wikiID string) ([]domain.Cluster, error)

	// GetCluster retrieves a cluster by ID.
	GetCluster(ctx context.Context, clusterID string) (*domain.Cluster, error)

	// SaveClusterTags caches a tagging result. It only writes when the stored
	// membership hash still equals membershipHash; otherwise it returns
	// domain.ErrNotFound.
	SaveClusterTags(ctx context.Context, clusterID, membershipHash string, tags []domain.TagCandidate) error
}
