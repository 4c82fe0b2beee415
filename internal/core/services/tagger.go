package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driving"
	"github.com/custodia-labs/wikiscope/internal/logger"
	"github.com/custodia-labs/wikiscope/internal/postprocessors/chunker"
)

var (
	_ driving.TaggingService  = (*TaggingService)(nil)
	_ driven.PromptStoreAware = (*TaggingService)(nil)
)

// defaultClusterTagsPrompt is used when no prompt store is configured.
// Placeholders: categories, existing tags, pages.
const defaultClusterTagsPrompt = `Propose 5 to 8 tags that apply to EVERY page below, not just one.
Tag names are lowercase words joined by hyphens. Categories: %s.
Confidence is a number from 0 to 1. Give a one-sentence rationale.
Reuse these existing tags when one means the same thing:
%s

Respond with JSON only:
{"tags": [{"name": "...", "confidence": 0.0, "rationale": "...", "category": "..."}]}

Pages:
%s`

// TaggingService asks the language model for tags shared by each cluster's pages.
// Model output is untrusted: it is parsed and validated before anything is stored.
// Calls are rate limited across clusters, and one cluster's failure never
// affects another.
type TaggingService struct {
	clusterStore driven.ClusterStore
	pageStore    driven.PageStore
	tagStore     driven.TagStore
	llm          driven.LLMService
	settings     domain.TaggingSettings
	limiter      *rate.Limiter

	mu          sync.RWMutex
	promptStore driven.PromptStore
}

// NewTaggingService creates a tagging service.
// The llm is optional; without it tagging returns domain.ErrLLMUnavailable.
func NewTaggingService(
	clusterStore driven.ClusterStore,
	pageStore driven.PageStore,
	tagStore driven.TagStore,
	llm driven.LLMService,
	settings domain.TaggingSettings,
) *TaggingService {
	if settings.ConfidenceThreshold < 0 {
		settings.ConfidenceThreshold = domain.DefaultConfidenceThreshold
	}
	if settings.MaxRetries < 0 {
		settings.MaxRetries = domain.DefaultTaggingMaxRetries
	}
	if settings.Timeout <= 0 {
		settings.Timeout = domain.DefaultTaggingTimeout
	}
	if settings.RequestsPerSecond <= 0 {
		settings.RequestsPerSecond = domain.DefaultTaggingRPS
	}
	if settings.Burst <= 0 {
		settings.Burst = domain.DefaultTaggingBurst
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = domain.DefaultTaggingConcurrency
	}
	if settings.MaxPageChars <= 0 {
		settings.MaxPageChars = domain.DefaultTaggingMaxPageChars
	}
	return &TaggingService{
		clusterStore: clusterStore,
		pageStore:    pageStore,
		tagStore:     tagStore,
		llm:          llm,
		settings:     settings,
		limiter:      rate.NewLimiter(rate.Limit(settings.RequestsPerSecond), settings.Burst),
	}
}

// SetPromptStore sets the store the cluster tagging template is loaded from.
func (s *TaggingService) SetPromptStore(store driven.PromptStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promptStore = store
}

// TagCluster tags one cluster. A cached result is returned without calling
// the model. Output that stays malformed after every retry is cached as an
// empty result so the cluster is not sent again until its membership changes.
// Accepted candidates are cached before they are applied, so a failed apply
// is finished by the next run from the cache.
func (s *TaggingService) TagCluster(ctx context.Context, clusterID string) (*domain.ClusterTagResult, error) {
	if s.llm == nil {
		return nil, domain.ErrLLMUnavailable
	}
	cluster, err := s.clusterStore.GetCluster(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("get cluster %s: %w", clusterID, err)
	}
	result := &domain.ClusterTagResult{ClusterID: cluster.ID}

	if cluster.IsTagged() {
		logger.Debug("Cluster %s: using cached tags", cluster.ID)
		result.Cached = true
		result.Candidates = cluster.Tags
		var errs []error
		for _, c := range cluster.Tags {
			tag, err := s.tagStore.FindTagByName(ctx, cluster.WikiID, c.Name)
			if errors.Is(err, domain.ErrNotFound) {
				// Left over from a run whose apply failed.
				tag, err = s.apply(ctx, cluster, c)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("apply tag %q to cluster %s: %w", c.Name, cluster.ID, err))
				continue
			}
			result.Applied = append(result.Applied, *tag)
		}
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}
		return result, nil
	}

	candidates, err := s.propose(ctx, cluster)
	switch {
	case errors.Is(err, domain.ErrInvalidResponseFormat):
		logger.Warn("Cluster %s: %v; recording no tags", cluster.ID, err)
		s.cache(ctx, cluster, []domain.TagCandidate{})
		return result, nil
	case err != nil:
		return nil, fmt.Errorf("tag cluster %s: %w", cluster.ID, err)
	}

	kept := make([]domain.TagCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence < s.settings.ConfidenceThreshold {
			logger.Debug("Cluster %s: dropping %q (confidence %.2f)", cluster.ID, c.Name, c.Confidence)
			continue
		}
		kept = append(kept, c)
	}

	s.cache(ctx, cluster, kept)

	var errs []error
	for _, c := range kept {
		tag, err := s.apply(ctx, cluster, c)
		if err != nil {
			errs = append(errs, fmt.Errorf("apply tag %q to cluster %s: %w", c.Name, cluster.ID, err))
			continue
		}
		result.Applied = append(result.Applied, *tag)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	result.Candidates = kept

	logger.Info("Cluster %s: %d tags applied to %d pages", cluster.ID, len(result.Applied), len(cluster.MemberPageIDs))
	return result, nil
}

// TagWiki tags every cluster of the wiki's current generation with bounded
// parallelism. Failures are counted and logged per cluster.
func (s *TaggingService) TagWiki(ctx context.Context, wikiID string) (*domain.TagRun, error) {
	if s.llm == nil {
		return nil, domain.ErrLLMUnavailable
	}
	clusters, err := s.clusterStore.ListClusters(ctx, wikiID)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}

	run := &domain.TagRun{WikiID: wikiID, Clusters: len(clusters)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.settings.Concurrency)

	for _, cluster := range clusters {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return run, ctx.Err()
		}
		wg.Add(1)
		go func(clusterID string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := s.TagCluster(ctx, clusterID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("Tagging cluster %s failed: %v", clusterID, err)
				run.Failed++
				return
			}
			if result.Cached {
				run.Cached++
			} else {
				run.Tagged++
			}
			run.Applied += len(result.Applied)
		}(cluster.ID)
	}
	wg.Wait()

	logger.Info("Tagged wiki %s: %d clusters, %d tagged, %d cached, %d failed",
		wikiID, run.Clusters, run.Tagged, run.Cached, run.Failed)
	return run, ctx.Err()
}

// propose asks the model for candidates, retrying malformed output.
// Producer failures are returned at once; the next run tries again.
func (s *TaggingService) propose(ctx context.Context, cluster *domain.Cluster) ([]domain.TagCandidate, error) {
	prompt, err := s.buildPrompt(ctx, cluster)
	if err != nil {
		return nil, err
	}

	attempts := 1 + s.settings.MaxRetries
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		output, err := s.generate(ctx, prompt)
		if err != nil {
			return nil, err
		}
		candidates, dropped, err := parseTagResponse(output)
		if err != nil {
			logger.Debug("Cluster %s attempt %d/%d: %v", cluster.ID, attempt, attempts, err)
			lastErr = err
			continue
		}
		if dropped > 0 {
			logger.Debug("Cluster %s: dropped %d invalid proposals", cluster.ID, dropped)
		}
		return candidates, nil
	}
	return nil, fmt.Errorf("%w after %d attempts", lastErr, attempts)
}

func (s *TaggingService) generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()

	output, err := s.llm.Generate(callCtx, prompt, driven.GenerateOptions{
		MaxTokens:   1024,
		Temperature: 0.2,
		JSON:        true,
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrProducerUnavailable) {
			return "", fmt.Errorf("%w: language model timed out after %s", domain.ErrProducerUnavailable, s.settings.Timeout)
		}
		return "", err
	}
	return output, nil
}

// buildPrompt fills the template with the category enum, the wiki's tag
// vocabulary and excerpts of the representative pages.
func (s *TaggingService) buildPrompt(ctx context.Context, cluster *domain.Cluster) (string, error) {
	ids := cluster.RepresentativePageIDs
	if len(ids) == 0 {
		ids = cluster.MemberPageIDs
	}
	pages, err := s.pageStore.GetPages(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("load representative pages: %w", err)
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("%w: cluster %s has no readable pages", domain.ErrNotFound, cluster.ID)
	}

	existing, err := s.tagStore.ListTags(ctx, cluster.WikiID)
	if err != nil {
		return "", fmt.Errorf("load existing tags: %w", err)
	}

	categories := make([]string, 0, 4)
	for _, c := range domain.AllTagCategories() {
		categories = append(categories, string(c))
	}

	vocabulary := "(none yet)"
	if len(existing) > 0 {
		names := make([]string, len(existing))
		for i, t := range existing {
			names[i] = t.Name
		}
		vocabulary = strings.Join(names, ", ")
	}

	var excerpts strings.Builder
	for i, page := range pages {
		if i > 0 {
			excerpts.WriteString("\n\n")
		}
		fmt.Fprintf(&excerpts, "### %s\n%s", page.Title, chunker.Excerpt(page.Content, s.settings.MaxPageChars))
	}

	return fmt.Sprintf(s.template(), strings.Join(categories, "|"), vocabulary, excerpts.String()), nil
}

func (s *TaggingService) template() string {
	s.mu.RLock()
	store := s.promptStore
	s.mu.RUnlock()
	if store == nil {
		return defaultClusterTagsPrompt
	}
	tmpl, err := store.Load(driven.PromptClusterTags)
	if err != nil || strings.Count(tmpl, "%s") != 3 {
		logger.Warn("Prompt %q unusable, using built-in default", driven.PromptClusterTags)
		return defaultClusterTagsPrompt
	}
	return tmpl
}

// apply reuses the wiki's tag with the same name, ignoring case, or creates
// an unverified AI tag, then links it to every member page.
func (s *TaggingService) apply(ctx context.Context, cluster *domain.Cluster, c domain.TagCandidate) (*domain.Tag, error) {
	tag, created, err := s.tagStore.GetOrCreateTag(ctx, &domain.Tag{
		ID:            uuid.NewString(),
		WikiID:        cluster.WikiID,
		Name:          c.Name,
		Source:        domain.TagSourceAI,
		AutoGenerated: true,
		Confidence:    domain.Float64Ptr(c.Confidence),
		ModelName:     s.llm.ModelName(),
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if created {
		logger.Debug("Created AI tag %q (confidence %.2f)", tag.Name, c.Confidence)
	}
	if err := s.tagStore.AttachTag(ctx, tag.ID, cluster.MemberPageIDs...); err != nil {
		return nil, err
	}
	return tag, nil
}

// cache stores the result against the membership it was computed for.
// A cluster superseded in the meantime is left alone.
func (s *TaggingService) cache(ctx context.Context, cluster *domain.Cluster, tags []domain.TagCandidate) {
	err := s.clusterStore.SaveClusterTags(ctx, cluster.ID, cluster.MembershipHash, tags)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		logger.Debug("Cluster %s superseded before its tags were cached", cluster.ID)
	case err != nil:
		logger.Warn("Caching tags for cluster %s: %v", cluster.ID, err)
	}
}
