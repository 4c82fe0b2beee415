package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driving"
	"github.com/custodia-labs/wikiscope/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driving.EmbeddingService = (*EmbeddingService)(nil)

// EmbeddingService turns claimed pages into stored chunk embeddings.
// Pages move through the tracker's state machine. A result whose claim was
// superseded is dropped.
type EmbeddingService struct {
	tracker  driven.EmbeddingTracker
	embedder driven.EmbeddingService
	chunker  driven.Chunker
	settings domain.WorkerSettings

	// now is replaceable for staleness tests.
	now func() time.Time
}

// NewEmbeddingService creates an embedding service.
// The embedder is optional; without it every embedding operation returns
// domain.ErrEmbeddingUnavailable while status queries keep working.
func NewEmbeddingService(
	tracker driven.EmbeddingTracker,
	embedder driven.EmbeddingService,
	chunker driven.Chunker,
	settings domain.WorkerSettings,
) *EmbeddingService {
	if settings.Count <= 0 {
		settings.Count = domain.DefaultWorkerCount
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = domain.DefaultWorkerBatchSize
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = domain.DefaultPollInterval
	}
	if settings.StaleAfter <= 0 {
		settings.StaleAfter = domain.DefaultStaleAfter
	}
	return &EmbeddingService{
		tracker:  tracker,
		embedder: embedder,
		chunker:  chunker,
		settings: settings,
		now:      time.Now,
	}
}

// EmbedPage embeds one page now, whatever its status.
// A page held by a live worker claim returns domain.ErrPageBusy.
func (s *EmbeddingService) EmbedPage(ctx context.Context, pageID string) error {
	if s.embedder == nil {
		return domain.ErrEmbeddingUnavailable
	}
	claim, err := s.tracker.ClaimPage(ctx, pageID, s.staleBefore())
	if err != nil {
		return fmt.Errorf("claim page %s: %w", pageID, err)
	}
	return s.process(ctx, *claim)
}

// EmbedPending claims up to limit pending or stale pages and embeds them.
// A limit of zero uses the configured batch size.
func (s *EmbeddingService) EmbedPending(ctx context.Context, limit int) (*domain.EmbedRun, error) {
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if limit <= 0 {
		limit = s.settings.BatchSize
	}

	claims, err := s.tracker.ClaimBatch(ctx, limit, s.staleBefore())
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}

	run := &domain.EmbedRun{Claimed: len(claims)}
	for _, claim := range claims {
		err := s.process(ctx, claim)
		switch {
		case err == nil:
			run.Completed++
		case errors.Is(err, domain.ErrStaleClaim):
			run.Stale++
		case ctx.Err() != nil:
			return run, ctx.Err()
		default:
			run.Failed++
		}
	}
	if run.Claimed > 0 {
		logger.Info("Embedding batch: %d claimed, %d completed, %d failed, %d stale",
			run.Claimed, run.Completed, run.Failed, run.Stale)
	}
	return run, nil
}

// process embeds a claimed page and records the outcome against the claim.
// A cancelled context leaves the page processing so the stale check can reclaim it.
func (s *EmbeddingService) process(ctx context.Context, claim domain.PageClaim) error {
	page := claim.Page
	logger.Debug("Embedding page %s (%s)", page.ID, page.Title)

	embeddings, err := s.embed(ctx, page)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Embedding failed for page %s: %v", page.ID, err)
		if failErr := s.tracker.Fail(ctx, claim, err.Error()); failErr != nil {
			if errors.Is(failErr, domain.ErrStaleClaim) {
				logger.Debug("Discarding failure for page %s: claim superseded", page.ID)
			}
			return failErr
		}
		return err
	}

	if err := s.tracker.Complete(ctx, claim, embeddings); err != nil {
		if errors.Is(err, domain.ErrStaleClaim) {
			logger.Debug("Discarding embeddings for page %s: claim superseded", page.ID)
		}
		return err
	}
	logger.Info("Embedded page %s: %d chunks", page.ID, len(embeddings))
	return nil
}

// embed chunks a page and produces one vector per chunk.
// A page with no body is embedded from its title alone.
func (s *EmbeddingService) embed(ctx context.Context, page domain.Page) ([]domain.PageEmbedding, error) {
	chunks := s.chunker.Chunk(&page)
	if len(chunks) == 0 {
		if strings.TrimSpace(page.Title) == "" {
			return nil, domain.ErrEmptyContent
		}
		chunks = []domain.Chunk{{Index: 0, Content: page.Title}}
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunkText(page.Title, chunk)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: %d vectors for %d chunks", domain.ErrInvalidResponseFormat, len(vectors), len(chunks))
	}

	model := s.embedder.ModelName()
	embeddings := make([]domain.PageEmbedding, len(chunks))
	for i, chunk := range chunks {
		if len(vectors[i]) == 0 {
			return nil, fmt.Errorf("%w: empty vector for chunk %d", domain.ErrInvalidResponseFormat, chunk.Index)
		}
		embeddings[i] = domain.PageEmbedding{
			PageID:      page.ID,
			WikiID:      page.WikiID,
			ChunkIndex:  chunk.Index,
			HeadingPath: chunk.HeadingPath,
			Content:     chunk.Content,
			Vector:      domain.Normalize(vectors[i]),
			Dimension:   len(vectors[i]),
			ModelName:   model,
		}
	}
	return embeddings, nil
}

// chunkText prefixes a chunk with its page title and section so that short
// chunks keep their context.
func chunkText(title string, chunk domain.Chunk) string {
	var b strings.Builder
	if title != "" {
		b.WriteString(title)
		b.WriteString("\n")
	}
	if len(chunk.HeadingPath) > 0 {
		b.WriteString(strings.Join(chunk.HeadingPath, " > "))
		b.WriteString("\n")
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(chunk.Content)
	return b.String()
}

// Retry moves a failed page back to pending.
func (s *EmbeddingService) Retry(ctx context.Context, pageID string) error {
	if err := s.tracker.Retry(ctx, pageID); err != nil {
		return fmt.Errorf("retry page %s: %w", pageID, err)
	}
	logger.Info("Page %s queued for re-embedding", pageID)
	return nil
}

// RetryFailed moves all failed pages of a wiki back to pending.
func (s *EmbeddingService) RetryFailed(ctx context.Context, wikiID string) (int, error) {
	n, err := s.tracker.RetryFailed(ctx, wikiID)
	if err != nil {
		return 0, fmt.Errorf("retry failed pages: %w", err)
	}
	logger.Info("%d failed pages queued for re-embedding", n)
	return n, nil
}

// ListByStatus lists pages in a lifecycle state.
func (s *EmbeddingService) ListByStatus(
	ctx context.Context, status domain.EmbeddingStatus, wikiID string, limit int,
) ([]domain.Page, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown embedding status %q", domain.ErrInvalidInput, status)
	}
	if limit <= 0 {
		limit = 100
	}
	return s.tracker.ListByStatus(ctx, status, wikiID, limit)
}

// StatusCounts returns page counts per lifecycle state.
func (s *EmbeddingService) StatusCounts(ctx context.Context, wikiID string) (domain.StatusCounts, error) {
	return s.tracker.CountByStatus(ctx, wikiID)
}

// RunWorkers starts the configured number of workers and blocks until ctx
// is cancelled. Each worker claims a batch, embeds it, and sleeps for the
// poll interval when there was nothing to do.
func (s *EmbeddingService) RunWorkers(ctx context.Context) error {
	if s.embedder == nil {
		return domain.ErrEmbeddingUnavailable
	}
	logger.Info("Starting %d embedding workers (batch %d, poll %s)",
		s.settings.Count, s.settings.BatchSize, s.settings.PollInterval)

	var wg sync.WaitGroup
	for i := 0; i < s.settings.Count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.worker(ctx, id)
		}(i)
	}
	wg.Wait()
	logger.Info("Embedding workers stopped")
	return nil
}

func (s *EmbeddingService) worker(ctx context.Context, id int) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		run, err := s.EmbedPending(ctx, s.settings.BatchSize)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn("Embedding worker %d: %v", id, err)
		}

		// Keep draining while there is work.
		if err == nil && run.Claimed > 0 {
			timer.Reset(0)
			continue
		}
		timer.Reset(s.settings.PollInterval)
	}
}

func (s *EmbeddingService) staleBefore() time.Time {
	return s.now().Add(-s.settings.StaleAfter)
}
