package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage. Durations are stored in milliseconds.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keySearchMode        = "search.mode"
	keySearchThreshold   = "search.threshold"
	keySearchWeight      = "search.semantic_weight"
	keySearchLimit       = "search.limit"
	keySearchPool        = "search.candidate_pool"
	keySearchTimeout     = "search.query_timeout_ms"
	keyEmbedProvider     = "embedding.provider"
	keyEmbedModel        = "embedding.model"
	keyEmbedBaseURL      = "embedding.base_url"
	keyEmbedAPIKey       = "embedding.api_key"
	keyEmbedMaxBatch     = "embedding.max_batch"
	keyEmbedTimeout      = "embedding.timeout_ms"
	keyLLMProvider       = "llm.provider"
	keyLLMModel          = "llm.model"
	keyLLMBaseURL        = "llm.base_url"
	keyLLMAPIKey         = "llm.api_key"
	keyWorkerCount       = "worker.count"
	keyWorkerBatch       = "worker.batch_size"
	keyWorkerPoll        = "worker.poll_interval_ms"
	keyWorkerStale       = "worker.stale_after_ms"
	keyChunkStrategy     = "chunking.strategy"
	keyChunkSize         = "chunking.size"
	keyChunkOverlap      = "chunking.overlap"
	keyClusterK          = "clustering.k"
	keyClusterSeed       = "clustering.seed"
	keyClusterReps       = "clustering.representatives"
	keyClusterIterations = "clustering.max_iterations"
	keyTagConfidence     = "tagging.confidence_threshold"
	keyTagRetries        = "tagging.max_retries"
	keyTagTimeout        = "tagging.timeout_ms"
	keyTagRPS            = "tagging.rps"
	keyTagBurst          = "tagging.burst"
	keyTagConcurrency    = "tagging.concurrency"
	keyTagMaxPageChars   = "tagging.max_page_chars"
	keyServerAddr        = "server.addr"
	keySchedulerEnabled  = "scheduler.enabled"
)

const (
	defaultOllamaBaseURL  = "http://localhost:11434"
	chunkStrategyMarkdown = "markdown"
	chunkStrategyFixed    = "fixed"
)

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
	}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Search: domain.SearchSettings{
			Mode:           s.getSearchMode(defaults.Search.Mode),
			Threshold:      s.getFloat(keySearchThreshold, defaults.Search.Threshold),
			SemanticWeight: s.getFloat(keySearchWeight, defaults.Search.SemanticWeight),
			Limit:          s.getInt(keySearchLimit, defaults.Search.Limit),
			CandidatePool:  s.getInt(keySearchPool, defaults.Search.CandidatePool),
			QueryTimeout:   s.getMillis(keySearchTimeout, defaults.Search.QueryTimeout),
		},
		Embedding: domain.EmbeddingSettings{
			Provider: s.getProvider(keyEmbedProvider, defaults.Embedding.Provider),
			Model:    s.getString(keyEmbedModel, defaults.Embedding.Model),
			BaseURL:  s.getString(keyEmbedBaseURL, defaults.Embedding.BaseURL),
			APIKey:   s.configStore.GetString(keyEmbedAPIKey),
			MaxBatch: s.getInt(keyEmbedMaxBatch, defaults.Embedding.MaxBatch),
			Timeout:  s.getMillis(keyEmbedTimeout, defaults.Embedding.Timeout),
		},
		LLM: domain.LLMSettings{
			Provider: s.getProvider(keyLLMProvider, defaults.LLM.Provider),
			Model:    s.getString(keyLLMModel, defaults.LLM.Model),
			BaseURL:  s.configStore.GetString(keyLLMBaseURL), // No default - empty is valid for cloud providers
			APIKey:   s.configStore.GetString(keyLLMAPIKey),
		},
		Worker: domain.WorkerSettings{
			Count:        s.getInt(keyWorkerCount, defaults.Worker.Count),
			BatchSize:    s.getInt(keyWorkerBatch, defaults.Worker.BatchSize),
			PollInterval: s.getMillis(keyWorkerPoll, defaults.Worker.PollInterval),
			StaleAfter:   s.getMillis(keyWorkerStale, defaults.Worker.StaleAfter),
		},
		Chunking: domain.ChunkingSettings{
			Strategy: s.getString(keyChunkStrategy, defaults.Chunking.Strategy),
			Size:     s.getInt(keyChunkSize, defaults.Chunking.Size),
			Overlap:  s.getInt(keyChunkOverlap, defaults.Chunking.Overlap),
		},
		Clustering: domain.ClusteringSettings{
			K:               s.getInt(keyClusterK, defaults.Clustering.K),
			Seed:            int64(s.getInt(keyClusterSeed, int(defaults.Clustering.Seed))),
			Representatives: s.getInt(keyClusterReps, defaults.Clustering.Representatives),
			MaxIterations:   s.getInt(keyClusterIterations, defaults.Clustering.MaxIterations),
		},
		Tagging: domain.TaggingSettings{
			ConfidenceThreshold: s.getFloat(keyTagConfidence, defaults.Tagging.ConfidenceThreshold),
			MaxRetries:          s.getInt(keyTagRetries, defaults.Tagging.MaxRetries),
			Timeout:             s.getMillis(keyTagTimeout, defaults.Tagging.Timeout),
			RequestsPerSecond:   s.getFloat(keyTagRPS, defaults.Tagging.RequestsPerSecond),
			Burst:               s.getInt(keyTagBurst, defaults.Tagging.Burst),
			Concurrency:         s.getInt(keyTagConcurrency, defaults.Tagging.Concurrency),
			MaxPageChars:        s.getInt(keyTagMaxPageChars, defaults.Tagging.MaxPageChars),
		},
		Server: domain.ServerSettings{
			Addr: s.getString(keyServerAddr, defaults.Server.Addr),
		},
	}

	return settings, nil
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []struct {
		key   string
		value any
	}{
		{keySearchMode, settings.Search.Mode.String()},
		{keySearchThreshold, settings.Search.Threshold},
		{keySearchWeight, settings.Search.SemanticWeight},
		{keySearchLimit, settings.Search.Limit},
		{keySearchPool, settings.Search.CandidatePool},
		{keySearchTimeout, settings.Search.QueryTimeout.Milliseconds()},
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyEmbedMaxBatch, settings.Embedding.MaxBatch},
		{keyEmbedTimeout, settings.Embedding.Timeout.Milliseconds()},
		{keyLLMProvider, settings.LLM.Provider.String()},
		{keyLLMModel, settings.LLM.Model},
		{keyLLMBaseURL, settings.LLM.BaseURL},
		{keyWorkerCount, settings.Worker.Count},
		{keyWorkerBatch, settings.Worker.BatchSize},
		{keyWorkerPoll, settings.Worker.PollInterval.Milliseconds()},
		{keyWorkerStale, settings.Worker.StaleAfter.Milliseconds()},
		{keyChunkStrategy, settings.Chunking.Strategy},
		{keyChunkSize, settings.Chunking.Size},
		{keyChunkOverlap, settings.Chunking.Overlap},
		{keyClusterK, settings.Clustering.K},
		{keyClusterSeed, settings.Clustering.Seed},
		{keyClusterReps, settings.Clustering.Representatives},
		{keyClusterIterations, settings.Clustering.MaxIterations},
		{keyTagConfidence, settings.Tagging.ConfidenceThreshold},
		{keyTagRetries, settings.Tagging.MaxRetries},
		{keyTagTimeout, settings.Tagging.Timeout.Milliseconds()},
		{keyTagRPS, settings.Tagging.RequestsPerSecond},
		{keyTagBurst, settings.Tagging.Burst},
		{keyTagConcurrency, settings.Tagging.Concurrency},
		{keyTagMaxPageChars, settings.Tagging.MaxPageChars},
		{keyServerAddr, settings.Server.Addr},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	// API keys are only overwritten when set.
	if settings.Embedding.APIKey != "" {
		if err := s.configStore.Set(keyEmbedAPIKey, settings.Embedding.APIKey); err != nil {
			return fmt.Errorf("save embedding api_key: %w", err)
		}
	}
	if settings.LLM.APIKey != "" {
		if err := s.configStore.Set(keyLLMAPIKey, settings.LLM.APIKey); err != nil {
			return fmt.Errorf("save llm api_key: %w", err)
		}
	}

	return nil
}

// SetSearchMode updates the default search mode.
func (s *SettingsService) SetSearchMode(mode domain.SearchMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: search mode %q", domain.ErrInvalidInput, mode)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}
	settings.Search.Mode = mode
	return s.Save(settings)
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, baseURL, apiKey string) error {
	if !containsProvider(domain.AllEmbeddingProviders(), provider) {
		return fmt.Errorf("%w: provider %s does not support embeddings", domain.ErrInvalidInput, provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidInput, provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Provider = provider
	settings.Embedding.Model = model
	if model == "" {
		settings.Embedding.Model = domain.DefaultEmbeddingModels()[provider]
	}
	settings.Embedding.BaseURL = baseURL
	if baseURL == "" {
		settings.Embedding.BaseURL = defaultBaseURL(provider)
	}
	settings.Embedding.APIKey = apiKey

	return s.Save(settings)
}

// SetLLMProvider configures the LLM provider.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, baseURL, apiKey string) error {
	if !containsProvider(domain.AllLLMProviders(), provider) {
		return fmt.Errorf("%w: provider %s does not support completions", domain.ErrInvalidInput, provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidInput, provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.LLM.Provider = provider
	settings.LLM.Model = model
	if model == "" {
		settings.LLM.Model = domain.DefaultLLMModels()[provider]
	}
	settings.LLM.BaseURL = baseURL
	if baseURL == "" {
		settings.LLM.BaseURL = defaultBaseURL(provider)
	}
	settings.LLM.APIKey = apiKey

	return s.Save(settings)
}

// Validate checks that the stored settings are usable. All problems are
// reported together.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	var errs []error
	problem := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidInput}, args...)...))
	}

	if settings.Search.Mode.RequiresEmbedding() && !settings.Embedding.IsConfigured() {
		problem("search mode %q requires an embedding provider", settings.Search.Mode.Description())
	}
	if settings.Search.Threshold < 0 || settings.Search.Threshold > 1 {
		problem("search.threshold %.2f outside [0,1]", settings.Search.Threshold)
	}
	if settings.Search.SemanticWeight < 0 || settings.Search.SemanticWeight > 1 {
		problem("search.semantic_weight %.2f outside [0,1]", settings.Search.SemanticWeight)
	}
	if settings.Worker.Count < 1 {
		problem("worker.count must be at least 1")
	}
	switch settings.Chunking.Strategy {
	case chunkStrategyMarkdown, chunkStrategyFixed:
	default:
		problem("unknown chunking.strategy %q", settings.Chunking.Strategy)
	}
	if settings.Chunking.Overlap >= settings.Chunking.Size {
		problem("chunking.overlap must be smaller than chunking.size")
	}
	if settings.Tagging.ConfidenceThreshold < 0 || settings.Tagging.ConfidenceThreshold > 1 {
		problem("tagging.confidence_threshold %.2f outside [0,1]", settings.Tagging.ConfidenceThreshold)
	}

	scheduler := s.GetSchedulerConfig()
	if scheduler.GetTaskConfig(domain.TaskIDClusterRefresh).Enabled && !settings.LLM.IsConfigured() {
		problem("%s requires an LLM provider", domain.TaskIDClusterRefresh)
	}

	return errors.Join(errs...)
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// GetSchedulerConfig returns the scheduler configuration.
// Returns default configuration if nothing is configured.
func (s *SettingsService) GetSchedulerConfig() domain.SchedulerConfig {
	defaults := domain.DefaultSchedulerConfig()

	if _, exists := s.configStore.Get(keySchedulerEnabled); exists {
		defaults.Enabled = s.configStore.GetBool(keySchedulerEnabled)
	}

	// Map from task ID to config key (underscore version for TOML)
	taskKeys := map[string]string{
		domain.TaskIDEmbeddingSweep: "embedding_sweep",
		domain.TaskIDClusterRefresh: "cluster_refresh",
	}

	for taskID, configKey := range taskKeys {
		prefix := "scheduler." + configKey + "."
		taskCfg := defaults.TaskConfigs[taskID]

		if _, exists := s.configStore.Get(prefix + "enabled"); exists {
			taskCfg.Enabled = s.configStore.GetBool(prefix + "enabled")
		}

		// Interval is a duration string like "45m" or "1h".
		if interval := s.configStore.GetString(prefix + "interval"); interval != "" {
			if d, err := time.ParseDuration(interval); err == nil && d > 0 {
				taskCfg.Interval = d
			}
		}

		defaults.TaskConfigs[taskID] = taskCfg
	}

	return defaults
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getInt keeps an explicit zero, since zero is meaningful for keys like
// clustering.k and tagging.max_retries.
func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getMillis(key string, defaultVal time.Duration) time.Duration {
	ms := s.configStore.GetInt(key)
	if ms <= 0 {
		return defaultVal
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *SettingsService) getSearchMode(defaultVal domain.SearchMode) domain.SearchMode {
	mode := domain.SearchMode(s.configStore.GetString(keySearchMode))
	if !mode.IsValid() {
		return defaultVal
	}
	return mode
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	provider := domain.AIProvider(s.configStore.GetString(key))
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func containsProvider(providers []domain.AIProvider, provider domain.AIProvider) bool {
	for _, p := range providers {
		if p == provider {
			return true
		}
	}
	return false
}

func defaultBaseURL(provider domain.AIProvider) string {
	switch provider {
	case domain.AIProviderProducer:
		return domain.DefaultProducerURL
	case domain.AIProviderOllama:
		return defaultOllamaBaseURL
	default:
		return ""
	}
}
