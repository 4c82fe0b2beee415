package services

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driving"
	"github.com/custodia-labs/wikiscope/internal/logger"
)

// Ensure ClusterService implements the interface.
var _ driving.ClusterService = (*ClusterService)(nil)

// clusterNamespace scopes cluster IDs derived from wiki, generation and position.
var clusterNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("wikiscope.cluster"))

// ClusterService groups a wiki's pages by the proximity of their embeddings.
// Each run replaces the previous generation. At most one run per wiki is
// active at a time.
type ClusterService struct {
	vectorIndex  driven.VectorIndex
	clusterStore driven.ClusterStore
	settings     domain.ClusteringSettings

	mu      sync.Mutex
	running map[string]bool

	now func() time.Time
}

// NewClusterService creates a new cluster service.
func NewClusterService(
	vectorIndex driven.VectorIndex,
	clusterStore driven.ClusterStore,
	settings domain.ClusteringSettings,
) *ClusterService {
	if settings.Representatives <= 0 {
		settings.Representatives = domain.DefaultRepresentatives
	}
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = domain.DefaultMaxIterations
	}
	return &ClusterService{
		vectorIndex:  vectorIndex,
		clusterStore: clusterStore,
		settings:     settings,
		running:      make(map[string]bool),
		now:          time.Now,
	}
}

// Run computes a new cluster generation for a wiki from the primary
// embeddings of its completed pages. Clusters whose membership is unchanged
// keep their cached tags.
func (s *ClusterService) Run(ctx context.Context, wikiID string) (*domain.ClusterRun, error) {
	wikiID = strings.TrimSpace(wikiID)
	if wikiID == "" {
		return nil, fmt.Errorf("%w: wiki id is required", domain.ErrInvalidInput)
	}
	if !s.acquire(wikiID) {
		return nil, domain.ErrClusteringInProgress
	}
	defer s.release(wikiID)

	logger.Section("Clustering " + wikiID)
	defer logger.Timed("clustering " + wikiID)()

	primaries, err := s.vectorIndex.PrimaryEmbeddings(ctx, wikiID)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	previous, err := s.clusterStore.ListClusters(ctx, wikiID)
	if err != nil {
		return nil, fmt.Errorf("load previous clusters: %w", err)
	}
	generation, err := s.clusterStore.CurrentGeneration(ctx, wikiID)
	if err != nil {
		return nil, fmt.Errorf("load generation: %w", err)
	}
	generation++

	clusters, err := s.build(ctx, wikiID, generation, primaries)
	if err != nil {
		return nil, err
	}
	carried := carryTags(clusters, previous)

	if err := s.clusterStore.ReplaceClusters(ctx, wikiID, generation, clusters); err != nil {
		return nil, fmt.Errorf("store clusters: %w", err)
	}

	logger.Info("Clustered %d pages of wiki %s into %d clusters (generation %d, %d tag caches kept)",
		len(primaries), wikiID, len(clusters), generation, carried)
	return &domain.ClusterRun{
		WikiID:      wikiID,
		Generation:  generation,
		Pages:       len(primaries),
		Clusters:    clusters,
		CarriedTags: carried,
	}, nil
}

// List returns the current clusters of a wiki.
func (s *ClusterService) List(ctx context.Context, wikiID string) ([]domain.Cluster, error) {
	return s.clusterStore.ListClusters(ctx, wikiID)
}

// Get retrieves a cluster.
func (s *ClusterService) Get(ctx context.Context, clusterID string) (*domain.Cluster, error) {
	return s.clusterStore.GetCluster(ctx, clusterID)
}

// IsRunning reports whether a run is active for the wiki.
func (s *ClusterService) IsRunning(wikiID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[wikiID]
}

func (s *ClusterService) acquire(wikiID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[wikiID] {
		return false
	}
	s.running[wikiID] = true
	return true
}

func (s *ClusterService) release(wikiID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, wikiID)
}

// build partitions pages into clusters. Output is a pure function of the
// input embeddings, the seed and the generation.
func (s *ClusterService) build(
	ctx context.Context, wikiID string, generation int64, primaries []domain.PrimaryEmbedding,
) ([]domain.Cluster, error) {
	if len(primaries) == 0 {
		return []domain.Cluster{}, nil
	}

	points := make([][]float32, len(primaries))
	for i, p := range primaries {
		points[i] = domain.Normalize(append([]float32(nil), p.Vector...))
	}

	k := chooseK(len(points), s.settings.K)
	rng := rand.New(rand.NewSource(s.settings.Seed)) //nolint:gosec // reproducibility, not security
	assign, centroids, err := sphericalKMeans(ctx, points, k, s.settings.MaxIterations, rng)
	if err != nil {
		return nil, err
	}
	logger.Debug("k-means: %d points, k=%d", len(points), k)

	groups := make([][]int, len(centroids))
	for i, c := range assign {
		groups[c] = append(groups[c], i)
	}
	// Order clusters by their first member so positions do not depend on centroid order.
	type group struct {
		centroid int
		members  []int
	}
	var ordered []group
	for c, members := range groups {
		if len(members) > 0 {
			ordered = append(ordered, group{centroid: c, members: members})
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		return primaries[ordered[i].members[0]].PageID < primaries[ordered[j].members[0]].PageID
	})

	computedAt := s.now().UTC()
	clusters := make([]domain.Cluster, 0, len(ordered))
	for pos, g := range ordered {
		memberIDs := make([]string, len(g.members))
		for i, m := range g.members {
			memberIDs[i] = primaries[m].PageID
		}
		sort.Strings(memberIDs)

		clusters = append(clusters, domain.Cluster{
			ID:                    clusterID(wikiID, generation, pos),
			WikiID:                wikiID,
			Generation:            generation,
			MemberPageIDs:         memberIDs,
			RepresentativePageIDs: representatives(primaries, points, g.members, centroids[g.centroid], s.settings.Representatives),
			MembershipHash:        domain.MembershipHash(memberIDs),
			ComputedAt:            computedAt,
		})
	}
	return clusters, nil
}

// carryTags copies the tag cache from previous clusters with identical
// membership. Any membership change leaves the cluster untagged.
func carryTags(clusters, previous []domain.Cluster) int {
	cached := make(map[string]domain.Cluster, len(previous))
	for _, c := range previous {
		if c.IsTagged() {
			cached[c.MembershipHash] = c
		}
	}
	carried := 0
	for i := range clusters {
		if prev, ok := cached[clusters[i].MembershipHash]; ok {
			clusters[i].Tags = prev.Tags
			clusters[i].TaggedAt = prev.TaggedAt
			carried++
		}
	}
	return carried
}

func clusterID(wikiID string, generation int64, position int) string {
	name := fmt.Sprintf("%s/%d/%d", wikiID, generation, position)
	return uuid.NewSHA1(clusterNamespace, []byte(name)).String()
}

// chooseK returns the configured cluster count, or round(sqrt(n)), capped at n.
func chooseK(n, configured int) int {
	k := configured
	if k <= 0 {
		k = int(math.Round(math.Sqrt(float64(n))))
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// representatives returns up to r members nearest the centroid, nearest first.
func representatives(primaries []domain.PrimaryEmbedding, points [][]float32, members []int, centroid []float32, r int) []string {
	ranked := append([]int(nil), members...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := domain.Dot(points[ranked[i]], centroid), domain.Dot(points[ranked[j]], centroid)
		if a != b {
			return a > b
		}
		return primaries[ranked[i]].PageID < primaries[ranked[j]].PageID
	})
	if len(ranked) > r {
		ranked = ranked[:r]
	}
	ids := make([]string, len(ranked))
	for i, m := range ranked {
		ids[i] = primaries[m].PageID
	}
	return ids
}

// sphericalKMeans clusters unit vectors by cosine similarity.
// Seeding is k-means++ over cosine distance. An empty cluster is reseeded
// with the point farthest from its centroid.
func sphericalKMeans(ctx context.Context, points [][]float32, k, maxIter int, rng *rand.Rand) ([]int, [][]float32, error) {
	centroids := seedCentroids(points, k, rng)
	assign := make([]int, len(points))
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if !assignPoints(points, centroids, assign) && iter > 0 {
			break
		}

		dim := len(points[0])
		sums := make([][]float64, len(centroids))
		counts := make([]int, len(centroids))
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, c := range assign {
			counts[c]++
			for d, x := range points[i] {
				sums[c][d] += float64(x)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				if far := farthestPoint(points, centroids, assign); far >= 0 {
					centroids[c] = append([]float32(nil), points[far]...)
				}
				continue
			}
			next := make([]float32, dim)
			for d := range next {
				next[d] = float32(sums[c][d] / float64(counts[c]))
			}
			centroids[c] = domain.Normalize(next)
		}
	}
	assignPoints(points, centroids, assign)
	return assign, centroids, nil
}

// seedCentroids picks k starting centroids with k-means++: each next seed is
// sampled with probability proportional to its squared cosine distance from
// the nearest seed so far.
func seedCentroids(points [][]float32, k int, rng *rand.Rand) [][]float32 {
	centroids := make([][]float32, 0, k)
	centroids = append(centroids, append([]float32(nil), points[rng.Intn(len(points))]...))

	dist := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			d := 1 - maxDot(p, centroids)
			if d < 0 {
				d = 0
			}
			dist[i] = d * d
			total += dist[i]
		}
		if total == 0 {
			// Every point coincides with a seed; duplicate seeds end up empty.
			centroids = append(centroids, append([]float32(nil), points[rng.Intn(len(points))]...))
			continue
		}
		target := rng.Float64() * total
		pick := -1
		for i, d := range dist {
			if d == 0 {
				continue
			}
			pick = i
			target -= d
			if target < 0 {
				break
			}
		}
		centroids = append(centroids, append([]float32(nil), points[pick]...))
	}
	return centroids
}

// assignPoints moves each point to its most similar centroid, lowest index on
// ties, and reports whether any assignment changed.
func assignPoints(points, centroids [][]float32, assign []int) bool {
	changed := false
	for i, p := range points {
		best, bestSim := 0, math.Inf(-1)
		for c, centroid := range centroids {
			if sim := domain.Dot(p, centroid); sim > bestSim {
				best, bestSim = c, sim
			}
		}
		if assign[i] != best {
			assign[i] = best
			changed = true
		}
	}
	return changed
}

// farthestPoint returns the point least similar to its own centroid, or -1
// when every point sits on its centroid.
func farthestPoint(points, centroids [][]float32, assign []int) int {
	far, farSim := -1, 1.0-1e-9
	for i, p := range points {
		if sim := domain.Dot(p, centroids[assign[i]]); sim < farSim {
			far, farSim = i, sim
		}
	}
	return far
}

func maxDot(p []float32, centroids [][]float32) float64 {
	best := math.Inf(-1)
	for _, c := range centroids {
		if d := domain.Dot(p, c); d > best {
			best = d
		}
	}
	return best
}
