package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
)

// Ensure ClusterStore implements the interface.
var _ driven.ClusterStore = (*ClusterStore)(nil)

// ClusterStore is an in-memory implementation of driven.ClusterStore.
type ClusterStore struct {
	mu          sync.RWMutex
	generations map[string]int64
	byWiki      map[string][]string
	clusters    map[string]domain.Cluster
}

// NewClusterStore creates a new in-memory cluster store.
func NewClusterStore() *ClusterStore {
	return &ClusterStore{
		generations: make(map[string]int64),
		byWiki:      make(map[string][]string),
		clusters:    make(map[string]domain.Cluster),
	}
}

// CurrentGeneration returns the latest generation for a wiki, 0 if none.
func (s *ClusterStore) CurrentGeneration(_ context.Context, wikiID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generations[wikiID], nil
}

// ReplaceClusters swaps the wiki's clusters for a new generation.
func (s *ClusterStore) ReplaceClusters(_ context.Context, wikiID string, generation int64, clusters []domain.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byWiki[wikiID] {
		delete(s.clusters, id)
	}
	ids := make([]string, 0, len(clusters))
	for _, c := range clusters {
		c.WikiID = wikiID
		c.Generation = generation
		c.MemberPageIDs = sortedCopy(c.MemberPageIDs)
		if c.Tags != nil && c.TaggedAt.IsZero() {
			c.TaggedAt = time.Now().UTC()
		}
		s.clusters[c.ID] = c
		ids = append(ids, c.ID)
	}
	s.byWiki[wikiID] = ids
	s.generations[wikiID] = generation
	return nil
}

// ListClusters returns the current generation in build order.
func (s *ClusterStore) ListClusters(_ context.Context, wikiID string) ([]domain.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Cluster, 0, len(s.byWiki[wikiID]))
	for _, id := range s.byWiki[wikiID] {
		result = append(result, s.clusters[id])
	}
	return result, nil
}

// GetCluster retrieves a cluster by ID.
func (s *ClusterStore) GetCluster(_ context.Context, clusterID string) (*domain.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clusters[clusterID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

// SaveClusterTags caches tags while the membership hash still matches.
func (s *ClusterStore) SaveClusterTags(_ context.Context, clusterID, membershipHash string, tags []domain.TagCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clusters[clusterID]
	if !ok || c.MembershipHash != membershipHash {
		return domain.ErrNotFound
	}
	if tags == nil {
		tags = []domain.TagCandidate{}
	}
	c.Tags = append([]domain.TagCandidate{}, tags...)
	c.TaggedAt = time.Now().UTC()
	s.clusters[clusterID] = c
	return nil
}

func sortedCopy(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
