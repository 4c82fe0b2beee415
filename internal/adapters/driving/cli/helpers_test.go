package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// executeCommand runs the root command with args and returns its output.
// Flag values are reset first so tests do not leak into each other.
func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return executeCommandContext(t, context.Background(), stdin, args...)
}

func executeCommandContext(t *testing.T, ctx context.Context, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.ExecuteContext(ctx)
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// setupTestServices installs mock services and returns a restore func.
func setupTestServices() func() {
	old := Services{
		Search:         searchService,
		Pages:          pageService,
		Embeddings:     embeddingService,
		Clusters:       clusterService,
		Tagging:        taggingService,
		Tags:           tagService,
		Settings:       settingsService,
		Scheduler:      scheduler,
		Watcher:        promptWatcher,
		SearchDefaults: searchDefaults,
		ServerAddr:     serverAddr,
	}

	SetServices(Services{
		Search:         &mockSearchService{},
		Pages:          newMockPageService(),
		Embeddings:     &mockEmbeddingService{},
		Clusters:       &mockClusterService{},
		Tagging:        &mockTaggingService{},
		Tags:           &mockTagService{},
		Settings:       newMockSettingsService(),
		SearchDefaults: domain.DefaultAppSettings().Search,
	})

	return func() { SetServices(old) }
}

type mockSearchService struct {
	gotQuery string
	gotOpts  domain.SearchOptions
}

func (m *mockSearchService) Search(
	_ context.Context,
	query string,
	opts domain.SearchOptions,
) (*domain.SearchResponse, error) {
	m.gotQuery = query
	m.gotOpts = opts
	return &domain.SearchResponse{
		Results: []domain.SearchResult{{
			PageID:        "page-1",
			WikiID:        "w1",
			Title:         "Test Page",
			ChunkPreview:  "REST   uses\nHTTP verbs",
			HeadingPath:   []string{"API", "Verbs"},
			SemanticScore: domain.Float64Ptr(0.91),
			CombinedScore: 0.95,
		}},
		Total: 1,
		Mode:  opts.Mode,
	}, nil
}

type mockSearchServiceError struct{}

func (m *mockSearchServiceError) Search(context.Context, string, domain.SearchOptions) (*domain.SearchResponse, error) {
	return nil, domain.ErrSearchUnavailable
}

type mockPageService struct {
	pages map[string]*domain.Page
}

func newMockPageService() *mockPageService {
	return &mockPageService{pages: make(map[string]*domain.Page)}
}

func (m *mockPageService) Put(_ context.Context, page domain.Page) (*domain.Page, bool, error) {
	if page.WikiID == "" {
		return nil, false, domain.ErrInvalidInput
	}
	if old, ok := m.pages[page.ID]; ok && old.Content == page.Content {
		return old, false, nil
	}
	page.EmbeddingStatus = domain.EmbeddingStatusPending
	m.pages[page.ID] = &page
	return &page, true, nil
}

func (m *mockPageService) Get(_ context.Context, pageID string) (*domain.Page, error) {
	if p, ok := m.pages[pageID]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockPageService) Delete(_ context.Context, pageID string) error {
	if _, ok := m.pages[pageID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.pages, pageID)
	return nil
}

type mockEmbeddingService struct {
	embedded   []string
	retried    []string
	gotLimit   int
	gotWiki    string
	gotStatus  domain.EmbeddingStatus
	workersErr error
}

func (m *mockEmbeddingService) EmbedPage(_ context.Context, pageID string) error {
	if pageID == "down" {
		return domain.ErrProducerUnavailable
	}
	m.embedded = append(m.embedded, pageID)
	return nil
}

func (m *mockEmbeddingService) EmbedPending(_ context.Context, limit int) (*domain.EmbedRun, error) {
	m.gotLimit = limit
	return &domain.EmbedRun{Claimed: 3, Completed: 2, Failed: 1}, nil
}

func (m *mockEmbeddingService) Retry(_ context.Context, pageID string) error {
	m.retried = append(m.retried, pageID)
	return nil
}

func (m *mockEmbeddingService) RetryFailed(_ context.Context, wikiID string) (int, error) {
	m.gotWiki = wikiID
	return 4, nil
}

func (m *mockEmbeddingService) ListByStatus(
	_ context.Context, status domain.EmbeddingStatus, wikiID string, limit int,
) ([]domain.Page, error) {
	m.gotStatus = status
	m.gotWiki = wikiID
	m.gotLimit = limit
	if status != domain.EmbeddingStatusFailed {
		return nil, nil
	}
	return []domain.Page{{
		ID:              "p9",
		WikiID:          "w1",
		Title:           "Broken",
		Content:         "secret body",
		EmbeddingStatus: domain.EmbeddingStatusFailed,
		EmbeddingError:  "producer timeout",
	}}, nil
}

func (m *mockEmbeddingService) StatusCounts(_ context.Context, wikiID string) (domain.StatusCounts, error) {
	m.gotWiki = wikiID
	return domain.StatusCounts{
		domain.EmbeddingStatusPending:   5,
		domain.EmbeddingStatusCompleted: 12,
		domain.EmbeddingStatusFailed:    1,
	}, nil
}

func (m *mockEmbeddingService) RunWorkers(context.Context) error { return m.workersErr }

type mockClusterService struct {
	err error
}

func (m *mockClusterService) Run(_ context.Context, wikiID string) (*domain.ClusterRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.ClusterRun{WikiID: wikiID, Generation: 4, Pages: 10, Clusters: testClusters(), CarriedTags: 1}, nil
}

func (m *mockClusterService) List(_ context.Context, wikiID string) ([]domain.Cluster, error) {
	if wikiID == "empty" {
		return nil, nil
	}
	return testClusters(), nil
}

func (m *mockClusterService) Get(context.Context, string) (*domain.Cluster, error) {
	return nil, domain.ErrNotFound
}

func (m *mockClusterService) IsRunning(string) bool { return false }

func testClusters() []domain.Cluster {
	return []domain.Cluster{
		{
			ID:                    "c1",
			WikiID:                "w1",
			Generation:            4,
			MemberPageIDs:         []string{"p1", "p2", "p3"},
			RepresentativePageIDs: []string{"p2", "p1"},
			Tags:                  []domain.TagCandidate{{Name: "python"}, {Name: "testing"}},
		},
		{ID: "c2", WikiID: "w1", Generation: 4, MemberPageIDs: []string{"p4"}, RepresentativePageIDs: []string{"p4"}},
	}
}

type mockTaggingService struct {
	wikis []string
}

func (m *mockTaggingService) TagCluster(_ context.Context, clusterID string) (*domain.ClusterTagResult, error) {
	if clusterID == "missing" {
		return nil, domain.ErrNotFound
	}
	return &domain.ClusterTagResult{
		ClusterID: clusterID,
		Candidates: []domain.TagCandidate{
			{Name: "python", Confidence: 0.92, Rationale: "All pages show Python code.", Category: domain.TagCategoryTechnology},
			{Name: "howto", Confidence: 0.7, Rationale: "Step by step guides.", Category: domain.TagCategoryType},
		},
		Applied: []domain.Tag{{Name: "python"}, {Name: "howto"}},
	}, nil
}

func (m *mockTaggingService) TagWiki(_ context.Context, wikiID string) (*domain.TagRun, error) {
	m.wikis = append(m.wikis, wikiID)
	return &domain.TagRun{WikiID: wikiID, Clusters: 2, Tagged: 1, Cached: 1, Applied: 3}, nil
}

type mockTagService struct{}

func (m *mockTagService) Create(_ context.Context, wikiID, name, _ string) (*domain.Tag, error) {
	name = domain.NormalizeTagName(name)
	if err := domain.ValidateTagName(name); err != nil {
		return nil, err
	}
	return &domain.Tag{ID: "t-new", WikiID: wikiID, Name: name, Source: domain.TagSourceHuman}, nil
}

func (m *mockTagService) List(context.Context, string) ([]domain.Tag, error) {
	return []domain.Tag{
		{ID: "t1", Name: "python", Source: domain.TagSourceAI, Confidence: domain.Float64Ptr(0.85)},
		{ID: "t2", Name: "howto", Source: domain.TagSourceHuman, Verified: true},
	}, nil
}

func (m *mockTagService) ListForPage(_ context.Context, pageID string) ([]domain.Tag, error) {
	if pageID == "untagged" {
		return nil, nil
	}
	return []domain.Tag{{ID: "t1", Name: "python", Source: domain.TagSourceAI}}, nil
}

func (m *mockTagService) Verify(_ context.Context, tagID string) (*domain.Tag, error) {
	if tagID != "t1" {
		return nil, domain.ErrNotFound
	}
	return &domain.Tag{ID: "t1", Name: "python", Verified: true}, nil
}

func (m *mockTagService) Attach(context.Context, string, string) error { return nil }

func (m *mockTagService) Detach(context.Context, string, string) error { return nil }

type mockSettingsService struct {
	settings    domain.AppSettings
	validateErr error
	embedErr    error
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{settings: domain.DefaultAppSettings()}
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(settings *domain.AppSettings) error {
	m.settings = *settings
	return nil
}

func (m *mockSettingsService) SetSearchMode(mode domain.SearchMode) error {
	if !mode.IsValid() {
		return domain.ErrInvalidInput
	}
	m.settings.Search.Mode = mode
	return nil
}

func (m *mockSettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, baseURL, apiKey string) error {
	m.settings.Embedding.Provider = provider
	m.settings.Embedding.Model = model
	m.settings.Embedding.BaseURL = baseURL
	m.settings.Embedding.APIKey = apiKey
	return nil
}

func (m *mockSettingsService) SetLLMProvider(provider domain.AIProvider, model, baseURL, apiKey string) error {
	m.settings.LLM.Provider = provider
	m.settings.LLM.Model = model
	m.settings.LLM.BaseURL = baseURL
	m.settings.LLM.APIKey = apiKey
	return nil
}

func (m *mockSettingsService) Validate() error { return m.validateErr }

func (m *mockSettingsService) GetDefaults() domain.AppSettings { return domain.DefaultAppSettings() }

func (m *mockSettingsService) GetSchedulerConfig() domain.SchedulerConfig {
	return domain.DefaultSchedulerConfig()
}

func (m *mockSettingsService) ValidateEmbeddingConfig() error { return m.embedErr }

func (m *mockSettingsService) ValidateLLMConfig() error { return nil }

var errBoom = errors.New("boom")
