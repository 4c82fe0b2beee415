package mcp

import (
	"context"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driving"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	resp    *domain.SearchResponse
	err     error
	gotOpts domain.SearchOptions
}

func (m *mockSearchService) Search(
	_ context.Context,
	_ string,
	opts domain.SearchOptions,
) (*domain.SearchResponse, error) {
	m.gotOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.resp == nil {
		return &domain.SearchResponse{Mode: opts.Mode}, nil
	}
	return m.resp, nil
}

// mockEmbeddingService is a mock implementation of driving.EmbeddingService.
type mockEmbeddingService struct {
	counts   domain.StatusCounts
	pages    []domain.Page
	run      *domain.EmbedRun
	err      error
	gotLimit int
}

func (m *mockEmbeddingService) EmbedPage(context.Context, string) error { return m.err }

func (m *mockEmbeddingService) EmbedPending(_ context.Context, limit int) (*domain.EmbedRun, error) {
	m.gotLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.run, nil
}

func (m *mockEmbeddingService) Retry(context.Context, string) error { return m.err }

func (m *mockEmbeddingService) RetryFailed(context.Context, string) (int, error) { return 0, m.err }

func (m *mockEmbeddingService) ListByStatus(
	_ context.Context, status domain.EmbeddingStatus, _ string, _ int,
) ([]domain.Page, error) {
	if !status.IsValid() {
		return nil, domain.ErrInvalidInput
	}
	var out []domain.Page
	for _, p := range m.pages {
		if p.EmbeddingStatus == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockEmbeddingService) StatusCounts(context.Context, string) (domain.StatusCounts, error) {
	return m.counts, m.err
}

func (m *mockEmbeddingService) RunWorkers(context.Context) error { return m.err }

// mockClusterService is a mock implementation of driving.ClusterService.
type mockClusterService struct {
	clusters []domain.Cluster
	err      error
}

func (m *mockClusterService) Run(_ context.Context, wikiID string) (*domain.ClusterRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.ClusterRun{WikiID: wikiID, Generation: 3, Pages: 9, Clusters: m.clusters}, nil
}

func (m *mockClusterService) List(context.Context, string) ([]domain.Cluster, error) {
	return m.clusters, m.err
}

func (m *mockClusterService) Get(context.Context, string) (*domain.Cluster, error) {
	return nil, domain.ErrNotFound
}

func (m *mockClusterService) IsRunning(string) bool { return false }

// mockTaggingService is a mock implementation of driving.TaggingService.
type mockTaggingService struct {
	result *domain.ClusterTagResult
	err    error
}

func (m *mockTaggingService) TagCluster(context.Context, string) (*domain.ClusterTagResult, error) {
	return m.result, m.err
}

func (m *mockTaggingService) TagWiki(_ context.Context, wikiID string) (*domain.TagRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.TagRun{WikiID: wikiID, Clusters: 2, Tagged: 2, Applied: 5}, nil
}

// mockPageService is a mock implementation of driving.PageService.
type mockPageService struct {
	page *domain.Page
	err  error
}

func (m *mockPageService) Put(context.Context, domain.Page) (*domain.Page, bool, error) {
	return m.page, true, m.err
}

func (m *mockPageService) Get(context.Context, string) (*domain.Page, error) {
	return m.page, m.err
}

func (m *mockPageService) Delete(context.Context, string) error { return m.err }

// mockTagService is a mock implementation of driving.TagService.
type mockTagService struct {
	tags []domain.Tag
	err  error
}

func (m *mockTagService) Create(context.Context, string, string, string) (*domain.Tag, error) {
	return nil, m.err
}

func (m *mockTagService) List(context.Context, string) ([]domain.Tag, error) { return m.tags, m.err }

func (m *mockTagService) ListForPage(context.Context, string) ([]domain.Tag, error) {
	return m.tags, m.err
}

func (m *mockTagService) Verify(context.Context, string) (*domain.Tag, error) { return nil, m.err }

func (m *mockTagService) Attach(context.Context, string, string) error { return m.err }

func (m *mockTagService) Detach(context.Context, string, string) error { return m.err }

// Ensure mocks implement interfaces.
var (
	_ driving.SearchService    = (*mockSearchService)(nil)
	_ driving.EmbeddingService = (*mockEmbeddingService)(nil)
	_ driving.ClusterService   = (*mockClusterService)(nil)
	_ driving.TaggingService   = (*mockTaggingService)(nil)
	_ driving.PageService      = (*mockPageService)(nil)
	_ driving.TagService       = (*mockTagService)(nil)
)
