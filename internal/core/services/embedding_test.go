package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/wikiscope/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
	"github.com/custodia-labs/wikiscope/internal/postprocessors/chunker"
)

// hookEmbedder runs a callback before producing vectors.
type hookEmbedder struct {
	vocabEmbedder
	before func()
}

func (m *hookEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.before != nil {
		m.before()
	}
	return m.vocabEmbedder.EmbedBatch(ctx, texts)
}

func newEmbeddingFixture(t *testing.T) (*EmbeddingService, *memory.PageStore, *vocabEmbedder) {
	t.Helper()
	store := memory.NewPageStore()
	embedder := &vocabEmbedder{}
	svc := NewEmbeddingService(store, embedder, chunker.New(chunker.WithChunkSize(200), chunker.WithOverlap(0)),
		domain.WorkerSettings{PollInterval: 10 * time.Millisecond})
	return svc, store, embedder
}

func storePage(t *testing.T, store *memory.PageStore, id, wikiID, title, content string) {
	t.Helper()
	_, err := store.PutPage(context.Background(), &domain.Page{ID: id, WikiID: wikiID, Title: title, Content: content})
	require.NoError(t, err)
}

func pageStatus(t *testing.T, store *memory.PageStore, id string) domain.EmbeddingStatus {
	t.Helper()
	page, err := store.GetPage(context.Background(), id)
	require.NoError(t, err)
	return page.EmbeddingStatus
}

// chunkCount counts a page's stored chunks through a wide vector query.
func chunkCount(t *testing.T, store *memory.PageStore, pageID string) int {
	t.Helper()
	dim, err := store.Dimension(context.Background())
	require.NoError(t, err)
	if dim == 0 {
		return 0
	}
	q := make([]float32, dim)
	q[0] = 1
	hits, err := store.Query(context.Background(), driven.VectorQuery{Vector: q, TopK: 1000, MinSimilarity: -1})
	require.NoError(t, err)
	n := 0
	for _, h := range hits {
		if h.PageID == pageID {
			n++
		}
	}
	return n
}

func TestNewEmbeddingService_Defaults(t *testing.T) {
	svc := NewEmbeddingService(memory.NewPageStore(), nil, chunker.New(), domain.WorkerSettings{})
	assert.Equal(t, domain.DefaultWorkerCount, svc.settings.Count)
	assert.Equal(t, domain.DefaultWorkerBatchSize, svc.settings.BatchSize)
	assert.Equal(t, domain.DefaultPollInterval, svc.settings.PollInterval)
	assert.Equal(t, domain.DefaultStaleAfter, svc.settings.StaleAfter)
}

func TestEmbeddingService_EmbedPending(t *testing.T) {
	svc, store, embedder := newEmbeddingFixture(t)
	storePage(t, store, "p1", "w1", "Decorators", "# Basics\nIntro to Python decorators.\n\n# Advanced\nDecorator factories wrap functions.")
	storePage(t, store, "p2", "w1", "Garden", "Growing tomatoes in soil.")

	run, err := svc.EmbedPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, &domain.EmbedRun{Claimed: 2, Completed: 2}, run)

	assert.Equal(t, domain.EmbeddingStatusCompleted, pageStatus(t, store, "p1"))
	assert.Equal(t, domain.EmbeddingStatusCompleted, pageStatus(t, store, "p2"))
	assert.Equal(t, 2, chunkCount(t, store, "p1"))
	assert.Equal(t, 1, chunkCount(t, store, "p2"))

	// Chunk texts carry the title and heading path.
	var texts []string
	for _, batch := range embedder.batches {
		texts = append(texts, batch...)
	}
	assert.Contains(t, texts, "Decorators\nBasics\n\nIntro to Python decorators.")

	// Nothing left to do.
	run, err = svc.EmbedPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, run.Claimed)
}

func TestEmbeddingService_EmbedPending_FailureIsNotRetried(t *testing.T) {
	svc, store, embedder := newEmbeddingFixture(t)
	storePage(t, store, "p1", "w1", "Decorators", "Intro to Python decorators.")
	embedder.embedErr = domain.ErrProducerUnavailable

	run, err := svc.EmbedPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Failed)

	page, err := store.GetPage(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.EmbeddingStatusFailed, page.EmbeddingStatus)
	assert.Contains(t, page.EmbeddingError, "producer unavailable")
	assert.Zero(t, chunkCount(t, store, "p1"))

	// Failed pages wait for an operator.
	embedder.embedErr = nil
	run, err = svc.EmbedPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, run.Claimed)

	require.NoError(t, svc.Retry(context.Background(), "p1"))
	assert.Equal(t, domain.EmbeddingStatusPending, pageStatus(t, store, "p1"))

	run, err = svc.EmbedPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Completed)
	assert.Equal(t, domain.EmbeddingStatusCompleted, pageStatus(t, store, "p1"))
}

func TestEmbeddingService_Retry_OnlyFailed(t *testing.T) {
	svc, store, _ := newEmbeddingFixture(t)
	storePage(t, store, "p1", "w1", "Decorators", "Intro to Python decorators.")

	err := svc.Retry(context.Background(), "p1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = svc.Retry(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEmbeddingService_RetryFailed(t *testing.T) {
	svc, store, embedder := newEmbeddingFixture(t)
	storePage(t, store, "p1", "w1", "A", "Python.")
	storePage(t, store, "p2", "w1", "B", "Soil.")
	storePage(t, store, "p3", "w2", "C", "Baking.")
	embedder.embedErr = domain.ErrProducerUnavailable

	_, err := svc.EmbedPending(context.Background(), 0)
	require.NoError(t, err)

	n, err := svc.RetryFailed(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	counts, err := svc.StatusCounts(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.EmbeddingStatusPending])
	assert.Equal(t, 1, counts[domain.EmbeddingStatusFailed])
}

func TestEmbeddingService_StaleClaimDiscardsResult(t *testing.T) {
	store := memory.NewPageStore()
	storePage(t, store, "p1", "w1", "Decorators", "Intro to Python decorators.")

	embedder := &hookEmbedder{}
	embedder.before = func() {
		// The page is edited while the worker is embedding.
		storePage(t, store, "p1", "w1", "Decorators", "Rewritten entirely.")
	}
	svc := NewEmbeddingService(store, embedder, chunker.New(), domain.WorkerSettings{})

	run, err := svc.EmbedPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Stale)
	assert.Zero(t, run.Completed)

	assert.Equal(t, domain.EmbeddingStatusPending, pageStatus(t, store, "p1"))
	assert.Zero(t, chunkCount(t, store, "p1"))
}

func TestEmbeddingService_ReclaimsStalePages(t *testing.T) {
	svc, store, _ := newEmbeddingFixture(t)
	storePage(t, store, "p1", "w1", "Decorators", "Intro to Python decorators.")

	// A worker claims the page and crashes.
	claims, err := store.ClaimBatch(context.Background(), 10, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, claims, 1)

	run, err := svc.EmbedPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, run.Claimed)

	svc.now = func() time.Time { return time.Now().Add(domain.DefaultStaleAfter + time.Minute) }
	run, err = svc.EmbedPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Completed)

	// The crashed worker's late result is rejected.
	err = store.Complete(context.Background(), claims[0], []domain.PageEmbedding{{Vector: []float32{1}}})
	assert.ErrorIs(t, err, domain.ErrStaleClaim)
}

func TestEmbeddingService_EmbedPage(t *testing.T) {
	svc, store, _ := newEmbeddingFixture(t)
	storePage(t, store, "p1", "w1", "Decorators", "Intro to Python decorators.")

	require.NoError(t, svc.EmbedPage(context.Background(), "p1"))
	assert.Equal(t, domain.EmbeddingStatusCompleted, pageStatus(t, store, "p1"))

	// Completed pages can be re-embedded on demand.
	require.NoError(t, svc.EmbedPage(context.Background(), "p1"))
	assert.Equal(t, 1, chunkCount(t, store, "p1"))

	err := svc.EmbedPage(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEmbeddingService_EmbedPage_Busy(t *testing.T) {
	svc, store, _ := newEmbeddingFixture(t)
	storePage(t, store, "p1", "w1", "Decorators", "Intro to Python decorators.")

	_, err := store.ClaimBatch(context.Background(), 1, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	err = svc.EmbedPage(context.Background(), "p1")
	assert.ErrorIs(t, err, domain.ErrPageBusy)
}

func TestEmbeddingService_EmptyPage(t *testing.T) {
	svc, store, embedder := newEmbeddingFixture(t)
	storePage(t, store, "titled", "w1", "Python", "")
	storePage(t, store, "blank", "w1", "", "   ")

	run, err := svc.EmbedPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Completed)
	assert.Equal(t, 1, run.Failed)

	assert.Equal(t, domain.EmbeddingStatusCompleted, pageStatus(t, store, "titled"))
	page, err := store.GetPage(context.Background(), "blank")
	require.NoError(t, err)
	assert.Equal(t, domain.EmbeddingStatusFailed, page.EmbeddingStatus)
	assert.Equal(t, domain.ErrEmptyContent.Error(), page.EmbeddingError)

	require.Len(t, embedder.batches, 1)
	assert.Equal(t, []string{"Python\n\nPython"}, embedder.batches[0])
}

func TestEmbeddingService_NoEmbedder(t *testing.T) {
	store := memory.NewPageStore()
	storePage(t, store, "p1", "w1", "A", "Python.")
	svc := NewEmbeddingService(store, nil, chunker.New(), domain.WorkerSettings{})

	assert.ErrorIs(t, svc.EmbedPage(context.Background(), "p1"), domain.ErrEmbeddingUnavailable)
	_, err := svc.EmbedPending(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, svc.RunWorkers(context.Background()), domain.ErrEmbeddingUnavailable)

	counts, err := svc.StatusCounts(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.EmbeddingStatusPending])
}

func TestEmbeddingService_ListByStatus(t *testing.T) {
	svc, store, _ := newEmbeddingFixture(t)
	storePage(t, store, "p1", "w1", "A", "Python.")

	pages, err := svc.ListByStatus(context.Background(), domain.EmbeddingStatusPending, "w1", 0)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "p1", pages[0].ID)

	_, err = svc.ListByStatus(context.Background(), "queued", "", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEmbeddingService_ConcurrentBatchesNeverDoubleProcess(t *testing.T) {
	svc, store, embedder := newEmbeddingFixture(t)
	for i := 0; i < 40; i++ {
		id := "p" + strings.Repeat("x", i)
		storePage(t, store, id, "w1", id, "Python decorators page "+id)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := domain.EmbedRun{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := svc.EmbedPending(context.Background(), 3)
			for err == nil && run.Claimed > 0 {
				mu.Lock()
				total.Claimed += run.Claimed
				total.Completed += run.Completed
				mu.Unlock()
				run, err = svc.EmbedPending(context.Background(), 3)
			}
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 40, total.Claimed)
	assert.Equal(t, 40, total.Completed)

	seen := make(map[string]int)
	for _, batch := range embedder.batches {
		for _, text := range batch {
			seen[text]++
		}
	}
	assert.Len(t, seen, 40)
	for text, n := range seen {
		assert.Equal(t, 1, n, text)
	}
}

func TestEmbeddingService_RunWorkers(t *testing.T) {
	svc, store, _ := newEmbeddingFixture(t)
	storePage(t, store, "p1", "w1", "A", "Python decorators.")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.RunWorkers(ctx) }()

	require.Eventually(t, func() bool {
		return pageStatus(t, store, "p1") == domain.EmbeddingStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	// Pages added while workers run are picked up on the next poll.
	storePage(t, store, "p2", "w1", "B", "Garden soil.")
	require.Eventually(t, func() bool {
		return pageStatus(t, store, "p2") == domain.EmbeddingStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop")
	}
}

func TestChunkText(t *testing.T) {
	assert.Equal(t, "body", chunkText("", domain.Chunk{Content: "body"}))
	assert.Equal(t, "T\n\nbody", chunkText("T", domain.Chunk{Content: "body"}))
	assert.Equal(t, "T\nA > B\n\nbody", chunkText("T", domain.Chunk{HeadingPath: []string{"A", "B"}, Content: "body"}))
}
