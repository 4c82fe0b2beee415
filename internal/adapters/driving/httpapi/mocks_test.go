package httpapi

import (
	"context"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

type mockSearch struct {
	gotQuery string
	gotOpts  domain.SearchOptions
	resp     *domain.SearchResponse
	err      error
}

func (m *mockSearch) Search(_ context.Context, query string, opts domain.SearchOptions) (*domain.SearchResponse, error) {
	m.gotQuery = query
	m.gotOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.resp == nil {
		return &domain.SearchResponse{Results: []domain.SearchResult{}, Mode: opts.Mode}, nil
	}
	return m.resp, nil
}

type mockPages struct {
	pages map[string]*domain.Page
}

func newMockPages() *mockPages {
	return &mockPages{pages: make(map[string]*domain.Page)}
}

func (m *mockPages) Put(_ context.Context, page domain.Page) (*domain.Page, bool, error) {
	if page.WikiID == "" {
		return nil, false, domain.ErrInvalidInput
	}
	prev, ok := m.pages[page.ID]
	changed := !ok || prev.Content != page.Content || prev.Title != page.Title
	if changed {
		page.EmbeddingStatus = domain.EmbeddingStatusPending
		m.pages[page.ID] = &page
	}
	return m.pages[page.ID], changed, nil
}

func (m *mockPages) Get(_ context.Context, pageID string) (*domain.Page, error) {
	p, ok := m.pages[pageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (m *mockPages) Delete(_ context.Context, pageID string) error {
	if _, ok := m.pages[pageID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.pages, pageID)
	return nil
}

type mockEmbeddings struct {
	pages      *mockPages
	embedErr   error
	pendingRun *domain.EmbedRun
	gotLimit   int
	counts     domain.StatusCounts
	requeued   int
}

func (m *mockEmbeddings) EmbedPage(_ context.Context, pageID string) error {
	if m.embedErr != nil {
		return m.embedErr
	}
	p, ok := m.pages.pages[pageID]
	if !ok {
		return domain.ErrNotFound
	}
	p.EmbeddingStatus = domain.EmbeddingStatusCompleted
	return nil
}

func (m *mockEmbeddings) EmbedPending(_ context.Context, limit int) (*domain.EmbedRun, error) {
	m.gotLimit = limit
	return m.pendingRun, nil
}

func (m *mockEmbeddings) Retry(_ context.Context, pageID string) error {
	p, ok := m.pages.pages[pageID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.EmbeddingStatus != domain.EmbeddingStatusFailed {
		return domain.ErrInvalidInput
	}
	p.EmbeddingStatus = domain.EmbeddingStatusPending
	p.EmbeddingError = ""
	return nil
}

func (m *mockEmbeddings) RetryFailed(context.Context, string) (int, error) {
	return m.requeued, nil
}

func (m *mockEmbeddings) ListByStatus(
	_ context.Context, status domain.EmbeddingStatus, wikiID string, _ int,
) ([]domain.Page, error) {
	if !status.IsValid() {
		return nil, domain.ErrInvalidInput
	}
	var out []domain.Page
	for _, p := range m.pages.pages {
		if p.EmbeddingStatus == status && (wikiID == "" || p.WikiID == wikiID) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockEmbeddings) StatusCounts(context.Context, string) (domain.StatusCounts, error) {
	return m.counts, nil
}

func (m *mockEmbeddings) RunWorkers(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

type mockClusters struct {
	running  map[string]bool
	clusters []domain.Cluster
}

func (m *mockClusters) Run(_ context.Context, wikiID string) (*domain.ClusterRun, error) {
	if m.running[wikiID] {
		return nil, domain.ErrClusteringInProgress
	}
	return &domain.ClusterRun{WikiID: wikiID, Generation: 1, Pages: 4, Clusters: m.clusters}, nil
}

func (m *mockClusters) List(context.Context, string) ([]domain.Cluster, error) {
	return m.clusters, nil
}

func (m *mockClusters) Get(_ context.Context, clusterID string) (*domain.Cluster, error) {
	for i := range m.clusters {
		if m.clusters[i].ID == clusterID {
			return &m.clusters[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockClusters) IsRunning(wikiID string) bool { return m.running[wikiID] }

type mockTagging struct {
	err error
}

func (m *mockTagging) TagCluster(_ context.Context, clusterID string) (*domain.ClusterTagResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.ClusterTagResult{
		ClusterID:  clusterID,
		Candidates: []domain.TagCandidate{{Name: "rest-api", Confidence: 0.9, Category: domain.TagCategoryTechnology}},
	}, nil
}

func (m *mockTagging) TagWiki(_ context.Context, wikiID string) (*domain.TagRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.TagRun{WikiID: wikiID, Clusters: 1, Tagged: 1, Applied: 1}, nil
}

type mockTags struct {
	tags map[string]*domain.Tag
}

func (m *mockTags) Create(_ context.Context, wikiID, name, color string) (*domain.Tag, error) {
	normalized := domain.NormalizeTagName(name)
	if err := domain.ValidateTagName(normalized); err != nil {
		return nil, err
	}
	tag := &domain.Tag{ID: "t-" + normalized, WikiID: wikiID, Name: normalized, Color: color, Source: domain.TagSourceHuman}
	m.tags[tag.ID] = tag
	return tag, nil
}

func (m *mockTags) List(_ context.Context, wikiID string) ([]domain.Tag, error) {
	var out []domain.Tag
	for _, t := range m.tags {
		if t.WikiID == wikiID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockTags) ListForPage(context.Context, string) ([]domain.Tag, error) {
	return nil, nil
}

func (m *mockTags) Verify(_ context.Context, tagID string) (*domain.Tag, error) {
	t, ok := m.tags[tagID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	t.Verified = true
	return t, nil
}

func (m *mockTags) Attach(context.Context, string, string) error { return nil }

func (m *mockTags) Detach(context.Context, string, string) error { return nil }
