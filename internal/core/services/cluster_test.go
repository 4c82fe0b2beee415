package services

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/wikiscope/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// topicPages are three groups whose embeddings are identical within a group
// and orthogonal across groups.
var topicPages = []struct {
	id, title, content string
}{
	{"py-1", "Decorators", "python decorators"},
	{"py-2", "Wrappers", "python wrappers"},
	{"py-3", "Functions", "python functions"},
	{"gd-1", "Tomatoes", "garden tomatoes"},
	{"gd-2", "Soil", "soil"},
	{"gd-3", "Beds", "garden soil"},
	{"gd-4", "Compost", "soil tomatoes"},
	{"api-1", "Login", "rest login"},
	{"api-2", "OAuth", "api oauth"},
}

func newClusterFixture(t *testing.T, settings domain.ClusteringSettings) (*ClusterService, *memory.PageStore, *memory.ClusterStore) {
	t.Helper()
	pages := memory.NewPageStore()
	embedder := &vocabEmbedder{}
	for _, p := range topicPages {
		indexPage(t, pages, embedder, p.id, "w1", p.title, p.content)
	}
	clusters := memory.NewClusterStore()
	return NewClusterService(pages, clusters, settings), pages, clusters
}

func memberSets(clusters []domain.Cluster) [][]string {
	out := make([][]string, len(clusters))
	for i, c := range clusters {
		out[i] = c.MemberPageIDs
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func TestClusterService_Run_SeparatesTopics(t *testing.T) {
	svc, _, _ := newClusterFixture(t, domain.ClusteringSettings{K: 3, Seed: 7, Representatives: 2})

	run, err := svc.Run(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), run.Generation)
	assert.Equal(t, 9, run.Pages)

	assert.Equal(t, [][]string{
		{"api-1", "api-2"},
		{"gd-1", "gd-2", "gd-3", "gd-4"},
		{"py-1", "py-2", "py-3"},
	}, memberSets(run.Clusters))

	for _, c := range run.Clusters {
		assert.Equal(t, domain.MembershipHash(c.MemberPageIDs), c.MembershipHash)
		assert.LessOrEqual(t, len(c.RepresentativePageIDs), 2)
		assert.Subset(t, c.MemberPageIDs, c.RepresentativePageIDs)
		assert.False(t, c.IsTagged())
	}
}

func TestClusterService_Run_EveryPageInExactlyOneCluster(t *testing.T) {
	svc, _, _ := newClusterFixture(t, domain.ClusteringSettings{Seed: 1})

	run, err := svc.Run(context.Background(), "w1")
	require.NoError(t, err)
	// round(sqrt(9)) = 3
	assert.Len(t, run.Clusters, 3)

	seen := make(map[string]int)
	for _, c := range run.Clusters {
		for _, id := range c.MemberPageIDs {
			seen[id]++
		}
	}
	assert.Len(t, seen, len(topicPages))
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestClusterService_Run_Deterministic(t *testing.T) {
	build := func() [][]string {
		pages := memory.NewPageStore()
		rng := rand.New(rand.NewSource(99))
		for i := 0; i < 40; i++ {
			id := fmt.Sprintf("page-%02d", i)
			_, err := pages.PutPage(context.Background(), &domain.Page{ID: id, WikiID: "w1", Content: id})
			require.NoError(t, err)
			vec := make([]float32, 16)
			for d := range vec {
				vec[d] = float32(rng.NormFloat64())
			}
			require.NoError(t, pages.Upsert(context.Background(), id, []domain.PageEmbedding{{Vector: domain.Normalize(vec)}}))
		}
		svc := NewClusterService(pages, memory.NewClusterStore(), domain.ClusteringSettings{Seed: 42})
		run, err := svc.Run(context.Background(), "w1")
		require.NoError(t, err)
		return memberSets(run.Clusters)
	}

	first := build()
	require.NotEmpty(t, first)
	assert.LessOrEqual(t, len(first), 6) // round(sqrt(40))
	total := 0
	for _, members := range first {
		total += len(members)
	}
	assert.Equal(t, 40, total)
	assert.Equal(t, first, build())
}

func TestClusterService_Run_NewGenerationReplacesOld(t *testing.T) {
	svc, _, clusters := newClusterFixture(t, domain.ClusteringSettings{K: 3, Seed: 7})
	ctx := context.Background()

	first, err := svc.Run(ctx, "w1")
	require.NoError(t, err)
	second, err := svc.Run(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Generation)

	// Same partition, fresh identities.
	assert.Equal(t, memberSets(first.Clusters), memberSets(second.Clusters))
	assert.NotEqual(t, first.Clusters[0].ID, second.Clusters[0].ID)

	_, err = clusters.GetCluster(ctx, first.Clusters[0].ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	current, err := svc.List(ctx, "w1")
	require.NoError(t, err)
	assert.Len(t, current, 3)
}

func TestClusterService_Run_CarriesTagsForUnchangedMembership(t *testing.T) {
	svc, pages, clusters := newClusterFixture(t, domain.ClusteringSettings{K: 3, Seed: 7})
	ctx := context.Background()

	first, err := svc.Run(ctx, "w1")
	require.NoError(t, err)
	tags := []domain.TagCandidate{{Name: "python", Confidence: 0.9, Category: domain.TagCategoryTechnology}}
	for _, c := range first.Clusters {
		require.NoError(t, clusters.SaveClusterTags(ctx, c.ID, c.MembershipHash, tags))
	}

	// Add a page to the garden topic only.
	indexPage(t, pages, &vocabEmbedder{}, "gd-5", "w1", "Seeds", "garden")

	second, err := svc.Run(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 2, second.CarriedTags)

	for _, c := range second.Clusters {
		stored, err := svc.Get(ctx, c.ID)
		require.NoError(t, err)
		if c.MemberPageIDs[0] == "gd-1" {
			assert.False(t, stored.IsTagged(), "changed membership must drop the cache")
			assert.Contains(t, stored.MemberPageIDs, "gd-5")
			continue
		}
		assert.True(t, stored.IsTagged())
		assert.Equal(t, tags, stored.Tags)
	}
}

func TestClusterService_Run_EmptyWiki(t *testing.T) {
	svc, _, _ := newClusterFixture(t, domain.ClusteringSettings{K: 3})

	run, err := svc.Run(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, run.Clusters)
	assert.Zero(t, run.Pages)
}

func TestClusterService_Run_IgnoresPendingPages(t *testing.T) {
	svc, pages, _ := newClusterFixture(t, domain.ClusteringSettings{K: 3, Seed: 7})
	storePage(t, pages, "draft", "w1", "Draft", "not embedded yet")

	run, err := svc.Run(context.Background(), "w1")
	require.NoError(t, err)
	for _, c := range run.Clusters {
		assert.NotContains(t, c.MemberPageIDs, "draft")
	}
}

func TestClusterService_Run_InProgress(t *testing.T) {
	svc, _, _ := newClusterFixture(t, domain.ClusteringSettings{K: 3})

	require.True(t, svc.acquire("w1"))
	assert.True(t, svc.IsRunning("w1"))

	_, err := svc.Run(context.Background(), "w1")
	assert.ErrorIs(t, err, domain.ErrClusteringInProgress)

	// Other wikis are independent.
	_, err = svc.Run(context.Background(), "w2")
	assert.NoError(t, err)

	svc.release("w1")
	assert.False(t, svc.IsRunning("w1"))
	_, err = svc.Run(context.Background(), "w1")
	assert.NoError(t, err)
}

func TestClusterService_Run_RequiresWiki(t *testing.T) {
	svc, _, _ := newClusterFixture(t, domain.ClusteringSettings{})
	_, err := svc.Run(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestClusterService_Representatives(t *testing.T) {
	primaries := []domain.PrimaryEmbedding{{PageID: "a"}, {PageID: "b"}, {PageID: "c"}, {PageID: "d"}}
	points := [][]float32{
		domain.Normalize([]float32{1, 1}),
		{1, 0},
		domain.Normalize([]float32{1, 0.1}),
		{1, 0},
	}
	centroid := []float32{1, 0}

	assert.Equal(t, []string{"b", "d", "c"}, representatives(primaries, points, []int{0, 1, 2, 3}, centroid, 3))
	assert.Equal(t, []string{"b"}, representatives(primaries, points, []int{0, 1, 2, 3}, centroid, 1))
}

func TestChooseK(t *testing.T) {
	tests := []struct {
		n, configured, want int
	}{
		{1, 0, 1},
		{2, 0, 1},
		{9, 0, 3},
		{10, 0, 3},
		{40, 0, 6},
		{5, 4, 4},
		{3, 10, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, chooseK(tt.n, tt.configured), "n=%d k=%d", tt.n, tt.configured)
	}
}

func TestSphericalKMeans_DuplicatePoints(t *testing.T) {
	points := [][]float32{{1, 0}, {1, 0}, {1, 0}}
	rng := rand.New(rand.NewSource(1))

	assign, centroids, err := sphericalKMeans(context.Background(), points, 3, 10, rng)
	require.NoError(t, err)
	assert.Len(t, centroids, 3)
	assert.Equal(t, []int{0, 0, 0}, assign)
}

func TestSphericalKMeans_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := sphericalKMeans(ctx, [][]float32{{1, 0}, {0, 1}}, 2, 10, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClusterID_Stable(t *testing.T) {
	assert.Equal(t, clusterID("w1", 3, 0), clusterID("w1", 3, 0))
	assert.NotEqual(t, clusterID("w1", 3, 0), clusterID("w1", 3, 1))
	assert.NotEqual(t, clusterID("w1", 3, 0), clusterID("w1", 4, 0))
	assert.NotEqual(t, clusterID("w1", 3, 0), clusterID("w2", 3, 0))
}
