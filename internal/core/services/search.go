package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driving"
	"github.com/custodia-labs/wikiscope/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// previewRunes caps the chunk text returned with each result.
const previewRunes = 300

// candidate is one page's evidence before fusion.
type candidate struct {
	pageID      string
	wikiID      string
	title       string
	preview     string
	headingPath []string
	keyword     *float64
	semantic    *float64
	combined    float64
}

// SearchService ranks pages by keyword relevance, semantic similarity or both.
// It holds no state between calls and is safe for concurrent use.
type SearchService struct {
	keywordSearch    driven.KeywordSearch
	vectorIndex      driven.VectorIndex
	embeddingService driven.EmbeddingService
	pageStore        driven.PageStore
}

// NewSearchService creates a new search service.
// The embeddingService and pageStore parameters are optional (can be nil).
// Without an embedding service hybrid search serves keyword results only.
func NewSearchService(
	keywordSearch driven.KeywordSearch,
	vectorIndex driven.VectorIndex,
	embeddingService driven.EmbeddingService,
	pageStore driven.PageStore,
) *SearchService {
	return &SearchService{
		keywordSearch:    keywordSearch,
		vectorIndex:      vectorIndex,
		embeddingService: embeddingService,
		pageStore:        pageStore,
	}
}

// Search ranks pages for a query.
func (s *SearchService) Search(
	ctx context.Context, query string, opts domain.SearchOptions,
) (*domain.SearchResponse, error) {
	logger.Section("Search Execution")
	defer logger.Timed("search")()
	logger.Debug("Query: %q", query)

	opts, warnings, err := normaliseOptions(opts)
	if err != nil {
		return nil, err
	}
	resp := &domain.SearchResponse{
		Results:  []domain.SearchResult{},
		Mode:     opts.Mode,
		Warnings: warnings,
	}

	query = strings.TrimSpace(query)
	if query == "" {
		logger.Debug("Empty query, returning no results")
		return resp, nil
	}
	logger.Debug("Mode: %s, limit: %d, offset: %d, threshold: %.2f, weight: %.2f",
		opts.Mode, opts.Limit, opts.Offset, opts.Threshold, opts.SemanticWeight)

	var ranked []candidate
	switch opts.Mode {
	case domain.SearchModeSemantic:
		ranked, err = s.semanticOnly(ctx, query, opts)
	case domain.SearchModeKeyword:
		ranked, err = s.keywordOnly(ctx, query, opts)
	default:
		ranked, err = s.hybrid(ctx, query, opts, resp)
	}
	if err != nil {
		return nil, err
	}

	s.hydrateTitles(ctx, ranked)

	resp.Total = len(ranked)
	for _, c := range paginate(ranked, opts.Offset, opts.Limit) {
		resp.Results = append(resp.Results, c.result())
	}
	logger.Info("Search %q: %d of %d results (%s)", query, len(resp.Results), resp.Total, resp.Mode)
	return resp, nil
}

// normaliseOptions fills defaults and clamps out-of-range inputs.
// Clamping is reported as a warning instead of an error.
func normaliseOptions(opts domain.SearchOptions) (domain.SearchOptions, []string, error) {
	var warnings []string

	if opts.Mode == "" {
		opts.Mode = domain.SearchModeHybrid
	}
	if !opts.Mode.IsValid() {
		return opts, nil, fmt.Errorf("%w: unknown search mode %q", domain.ErrInvalidInput, opts.Mode)
	}
	if opts.Limit <= 0 {
		opts.Limit = domain.DefaultSearchLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.CandidatePool <= 0 {
		opts.CandidatePool = domain.DefaultCandidatePool
	}
	if need := opts.Offset + opts.Limit; opts.CandidatePool < need {
		opts.CandidatePool = need
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = domain.DefaultQueryTimeout
	}

	var clamped bool
	if opts.Threshold, clamped = clampUnit(opts.Threshold, domain.DefaultSearchThreshold); clamped {
		warnings = append(warnings, fmt.Sprintf("%s: clamped to %.2f", domain.ErrThresholdOutOfRange, opts.Threshold))
	}
	if opts.SemanticWeight, clamped = clampUnit(opts.SemanticWeight, domain.DefaultSemanticWeight); clamped {
		warnings = append(warnings, fmt.Sprintf("%s: clamped to %.2f", domain.ErrWeightOutOfRange, opts.SemanticWeight))
	}
	return opts, warnings, nil
}

// clampUnit clamps v to [0,1]. NaN becomes fallback.
func clampUnit(v, fallback float64) (float64, bool) {
	switch {
	case math.IsNaN(v):
		return fallback, true
	case v < 0:
		return 0, true
	case v > 1:
		return 1, true
	default:
		return v, false
	}
}

// semanticOnly has no fallback signal, so failures reach the caller.
func (s *SearchService) semanticOnly(ctx context.Context, query string, opts domain.SearchOptions) ([]candidate, error) {
	byPage, err := s.semanticCandidates(ctx, query, opts)
	if err != nil {
		logger.Warn("Semantic search failed: %v", err)
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	ranked := collect(byPage)
	for i := range ranked {
		ranked[i].combined = *ranked[i].semantic
	}
	sortCandidates(ranked, true)
	return ranked, nil
}

func (s *SearchService) keywordOnly(ctx context.Context, query string, opts domain.SearchOptions) ([]candidate, error) {
	byPage, err := s.keywordCandidates(ctx, query, opts)
	if err != nil {
		logger.Warn("Keyword search failed: %v", err)
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	ranked := collect(byPage)
	for i := range ranked {
		ranked[i].combined = *ranked[i].keyword
	}
	sortCandidates(ranked, false)
	return ranked, nil
}

// hybrid runs both signals in parallel and blends them. A failed semantic
// signal degrades the response to keyword results rather than failing.
func (s *SearchService) hybrid(
	ctx context.Context, query string, opts domain.SearchOptions, resp *domain.SearchResponse,
) ([]candidate, error) {
	var keywordHits, semanticHits map[string]*candidate
	var keywordErr, semanticErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		keywordHits, keywordErr = s.keywordCandidates(ctx, query, opts)
	}()
	go func() {
		defer wg.Done()
		semanticHits, semanticErr = s.semanticCandidates(ctx, query, opts)
	}()
	wg.Wait()

	switch {
	case keywordErr != nil && semanticErr != nil:
		logger.Warn("Hybrid search: both signals failed")
		return nil, fmt.Errorf("hybrid search: %w", errors.Join(keywordErr, semanticErr))

	case errors.Is(semanticErr, domain.ErrEmbeddingDimensionMismatch):
		// Stale vectors are a configuration fault, not an outage.
		logger.Error("Hybrid search: %v; re-embed all pages", semanticErr)
		return nil, fmt.Errorf("hybrid search: %w", semanticErr)

	case semanticErr != nil:
		logger.Warn("Hybrid search degraded to keyword: %v", semanticErr)
		resp.Mode = domain.SearchModeKeyword
		resp.Degraded = true
		resp.Warnings = append(resp.Warnings, "semantic search unavailable, keyword results only: "+semanticErr.Error())
		ranked := collect(keywordHits)
		for i := range ranked {
			ranked[i].combined = *ranked[i].keyword
		}
		sortCandidates(ranked, false)
		return ranked, nil

	case keywordErr != nil:
		logger.Warn("Hybrid search: keyword signal failed, semantic results only: %v", keywordErr)
		resp.Warnings = append(resp.Warnings, "keyword search unavailable, semantic results only: "+keywordErr.Error())
		resp.Mode = domain.SearchModeSemantic
		ranked := collect(semanticHits)
		for i := range ranked {
			ranked[i].combined = *ranked[i].semantic
		}
		sortCandidates(ranked, true)
		return ranked, nil
	}

	return fuse(keywordHits, semanticHits, opts.SemanticWeight), nil
}

// fuse min-max normalises each signal over the candidate union and blends
// them. A missing signal counts as 0, so a page whose only signal carries
// zero weight stays in the union with a combined score of 0.
func fuse(keywordHits, semanticHits map[string]*candidate, weight float64) []candidate {
	union := make(map[string]*candidate, len(keywordHits)+len(semanticHits))
	for id, c := range semanticHits {
		union[id] = c
	}
	for id, k := range keywordHits {
		if c, ok := union[id]; ok {
			c.keyword = k.keyword
			if c.title == "" {
				c.title = k.title
			}
			continue
		}
		union[id] = k
	}

	ranked := collect(union)
	kmin, kmax := bounds(ranked, func(c *candidate) *float64 { return c.keyword })
	smin, smax := bounds(ranked, func(c *candidate) *float64 { return c.semantic })

	for i := range ranked {
		c := &ranked[i]
		var kn, sn float64
		if c.keyword != nil {
			kn = minMax(*c.keyword, kmin, kmax)
		}
		if c.semantic != nil {
			sn = minMax(*c.semantic, smin, smax)
		}
		c.combined = weight*sn + (1-weight)*kn
	}
	sortCandidates(ranked, weight >= 0.5)
	return ranked
}

func bounds(cs []candidate, signal func(*candidate) *float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range cs {
		if v := signal(&cs[i]); v != nil {
			lo = math.Min(lo, *v)
			hi = math.Max(hi, *v)
		}
	}
	return lo, hi
}

// minMax scales v into [0,1]. A degenerate range maps every value to 1.
func minMax(v, lo, hi float64) float64 {
	if hi <= lo {
		return 1
	}
	return (v - lo) / (hi - lo)
}

// sortCandidates orders by combined score, then the primary signal's raw
// score, then the secondary's, then page ID.
func sortCandidates(cs []candidate, semanticFirst bool) {
	primary := func(c *candidate) *float64 { return c.keyword }
	secondary := func(c *candidate) *float64 { return c.semantic }
	if semanticFirst {
		primary, secondary = secondary, primary
	}
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := &cs[i], &cs[j]
		if a.combined != b.combined {
			return a.combined > b.combined
		}
		if c := compareRaw(primary(a), primary(b)); c != 0 {
			return c > 0
		}
		if c := compareRaw(secondary(a), secondary(b)); c != 0 {
			return c > 0
		}
		return a.pageID < b.pageID
	})
}

// compareRaw orders present scores above absent ones.
func compareRaw(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a > *b:
		return 1
	case *a < *b:
		return -1
	default:
		return 0
	}
}

func (s *SearchService) keywordCandidates(
	ctx context.Context, query string, opts domain.SearchOptions,
) (map[string]*candidate, error) {
	if s.keywordSearch == nil {
		return nil, domain.ErrSearchUnavailable
	}
	hits, err := s.keywordSearch.Search(ctx, query, opts.WikiID, opts.CandidatePool)
	if err != nil {
		return nil, err
	}
	logger.Debug("Keyword search: %d hits", len(hits))

	out := make(map[string]*candidate, len(hits))
	for _, h := range hits {
		if _, seen := out[h.PageID]; seen {
			continue
		}
		out[h.PageID] = &candidate{
			pageID:  h.PageID,
			wikiID:  h.WikiID,
			title:   h.Title,
			preview: h.Snippet,
			keyword: domain.Float64Ptr(h.Score),
		}
	}
	return out, nil
}

// semanticCandidates embeds the query under the configured timeout and keeps
// each page's best chunk.
func (s *SearchService) semanticCandidates(
	ctx context.Context, query string, opts domain.SearchOptions,
) (map[string]*candidate, error) {
	if s.embeddingService == nil || s.vectorIndex == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	embedCtx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
	vector, err := s.embeddingService.Embed(embedCtx, query)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrProducerUnavailable) {
			err = fmt.Errorf("%w: query embedding timed out after %s", domain.ErrProducerUnavailable, opts.QueryTimeout)
		}
		return nil, err
	}
	logger.Debug("Query embedding: %d dimensions", len(vector))

	hits, err := s.vectorIndex.Query(ctx, driven.VectorQuery{
		Vector:        domain.Normalize(vector),
		TopK:          opts.CandidatePool,
		MinSimilarity: opts.Threshold,
		WikiID:        opts.WikiID,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("Vector search: %d chunk hits", len(hits))

	// Hits arrive best first, so the first chunk per page is its best
	out := make(map[string]*candidate)
	for _, h := range hits {
		if _, seen := out[h.PageID]; seen {
			continue
		}
		out[h.PageID] = &candidate{
			pageID:      h.PageID,
			wikiID:      h.WikiID,
			preview:     h.Content,
			headingPath: h.HeadingPath,
			semantic:    domain.Float64Ptr(h.Similarity),
		}
	}
	return out, nil
}

// hydrateTitles fills titles for pages found only by vector search.
func (s *SearchService) hydrateTitles(ctx context.Context, ranked []candidate) {
	if s.pageStore == nil {
		return
	}
	var missing []string
	for i := range ranked {
		if ranked[i].title == "" {
			missing = append(missing, ranked[i].pageID)
		}
	}
	if len(missing) == 0 {
		return
	}
	pages, err := s.pageStore.GetPages(ctx, missing)
	if err != nil {
		logger.Debug("Title lookup failed: %v", err)
		return
	}
	titles := make(map[string]string, len(pages))
	for i := range pages {
		titles[pages[i].ID] = pages[i].Title
	}
	for i := range ranked {
		if ranked[i].title == "" {
			ranked[i].title = titles[ranked[i].pageID]
		}
	}
}

func collect(byPage map[string]*candidate) []candidate {
	out := make([]candidate, 0, len(byPage))
	for _, c := range byPage {
		out = append(out, *c)
	}
	return out
}

// paginate applies offset and limit.
func paginate(ranked []candidate, offset, limit int) []candidate {
	if offset >= len(ranked) {
		return nil
	}
	end := offset + limit
	if end > len(ranked) {
		end = len(ranked)
	}
	return ranked[offset:end]
}

func (c candidate) result() domain.SearchResult {
	return domain.SearchResult{
		PageID:        c.pageID,
		WikiID:        c.wikiID,
		Title:         c.title,
		ChunkPreview:  truncateRunes(c.preview, previewRunes),
		HeadingPath:   c.headingPath,
		KeywordScore:  c.keyword,
		SemanticScore: c.semantic,
		CombinedScore: c.combined,
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
