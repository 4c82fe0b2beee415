package domain

import "time"

// AIProvider identifies a service that produces embeddings or completions.
type AIProvider string

// Available AI providers.
const (
	// AIProviderProducer is the wiki's own embedding producer process.
	AIProviderProducer AIProvider = "producer"

	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderProducer, AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama || p == AIProviderProducer
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderProducer:
		return "Embedding producer (self-hosted)"
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	default:
		return unknownDescription
	}
}

// SearchSettings holds server-side search defaults.
type SearchSettings struct {
	// Mode is the default retrieval mode.
	Mode SearchMode

	// Threshold is the default minimum similarity for semantic hits.
	Threshold float64

	// SemanticWeight is the default hybrid blend weight.
	SemanticWeight float64

	// Limit is the default page size.
	Limit int

	// CandidatePool is how many hits each signal contributes before fusion.
	CandidatePool int

	// QueryTimeout bounds the query embedding call.
	QueryTimeout time.Duration
}

// Options returns SearchOptions populated from these defaults.
func (s SearchSettings) Options() SearchOptions {
	return SearchOptions{
		Mode:           s.Mode,
		Limit:          s.Limit,
		Threshold:      s.Threshold,
		SemanticWeight: s.SemanticWeight,
		CandidatePool:  s.CandidatePool,
		QueryTimeout:   s.QueryTimeout,
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// MaxBatch is the largest batch sent in one request. Larger batches are split.
	MaxBatch int

	// Timeout bounds a single producer request.
	Timeout time.Duration
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() || e.Provider == AIProviderAnthropic {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI/Anthropic).
	APIKey string
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() || l.Provider == AIProviderProducer {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// WorkerSettings configures embedding workers.
type WorkerSettings struct {
	// Count is the number of concurrent workers.
	Count int

	// BatchSize is the claim_batch limit per poll.
	BatchSize int

	// PollInterval is the wait between empty polls.
	PollInterval time.Duration

	// StaleAfter is how long a page may stay processing before it can be reclaimed.
	StaleAfter time.Duration
}

// ChunkingSettings configures page chunking.
type ChunkingSettings struct {
	// Strategy names the chunker: "markdown" splits at headings, "fixed" at character windows.
	Strategy string

	// Size is the chunk budget in characters.
	Size int

	// Overlap is the number of trailing characters repeated in the next chunk.
	Overlap int
}

// ClusteringSettings configures the cluster builder.
type ClusteringSettings struct {
	// K is a fixed cluster count. Zero means round(sqrt(N)).
	K int

	// Seed makes runs reproducible.
	Seed int64

	// Representatives is the number of central pages kept per cluster.
	Representatives int

	// MaxIterations caps k-means refinement.
	MaxIterations int
}

// TaggingSettings configures the cluster tagger.
type TaggingSettings struct {
	// ConfidenceThreshold drops proposals below this confidence.
	ConfidenceThreshold float64

	// MaxRetries is the number of extra attempts after a failed parse.
	MaxRetries int

	// Timeout bounds one language model call.
	Timeout time.Duration

	// RequestsPerSecond limits language model calls across clusters.
	RequestsPerSecond float64

	// Burst is the rate limiter burst size.
	Burst int

	// Concurrency is the number of clusters tagged in parallel.
	Concurrency int

	// MaxPageChars truncates each representative page in the prompt.
	MaxPageChars int
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	// Addr is the listen address.
	Addr string
}

// AppSettings holds all application settings.
type AppSettings struct {
	Search     SearchSettings
	Embedding  EmbeddingSettings
	LLM        LLMSettings
	Worker     WorkerSettings
	Chunking   ChunkingSettings
	Clustering ClusteringSettings
	Tagging    TaggingSettings
	Server     ServerSettings
}

// Default values for settings.
const (
	DefaultSearchThreshold     = 0.5
	DefaultSemanticWeight      = 0.7
	DefaultSearchLimit         = 20
	DefaultCandidatePool       = 100
	DefaultQueryTimeout        = 3 * time.Second
	DefaultEmbeddingMaxBatch   = 32
	DefaultEmbeddingTimeout    = 60 * time.Second
	DefaultWorkerCount         = 2
	DefaultWorkerBatchSize     = 8
	DefaultPollInterval        = 5 * time.Second
	DefaultStaleAfter          = 10 * time.Minute
	DefaultChunkStrategy       = "markdown"
	DefaultChunkSize           = 1000
	DefaultChunkOverlap        = 200
	DefaultClusterSeed         = 42
	DefaultRepresentatives     = 3
	DefaultMaxIterations       = 50
	DefaultConfidenceThreshold = 0.5
	DefaultTaggingMaxRetries   = 2
	DefaultTaggingTimeout      = 60 * time.Second
	DefaultTaggingRPS          = 1.0
	DefaultTaggingBurst        = 1
	DefaultTaggingConcurrency  = 2
	DefaultTaggingMaxPageChars = 2000
	DefaultServerAddr          = "127.0.0.1:8484"
	DefaultProducerURL         = "http://localhost:8001/embed"
)

// DefaultAppSettings returns settings with sensible defaults.
// The LLM is left unconfigured; tagging is disabled until one is set.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Search: SearchSettings{
			Mode:           SearchModeHybrid,
			Threshold:      DefaultSearchThreshold,
			SemanticWeight: DefaultSemanticWeight,
			Limit:          DefaultSearchLimit,
			CandidatePool:  DefaultCandidatePool,
			QueryTimeout:   DefaultQueryTimeout,
		},
		Embedding: EmbeddingSettings{
			Provider: AIProviderProducer,
			BaseURL:  DefaultProducerURL,
			MaxBatch: DefaultEmbeddingMaxBatch,
			Timeout:  DefaultEmbeddingTimeout,
		},
		LLM: LLMSettings{},
		Worker: WorkerSettings{
			Count:        DefaultWorkerCount,
			BatchSize:    DefaultWorkerBatchSize,
			PollInterval: DefaultPollInterval,
			StaleAfter:   DefaultStaleAfter,
		},
		Chunking: ChunkingSettings{
			Strategy: DefaultChunkStrategy,
			Size:     DefaultChunkSize,
			Overlap:  DefaultChunkOverlap,
		},
		Clustering: ClusteringSettings{
			Seed:            DefaultClusterSeed,
			Representatives: DefaultRepresentatives,
			MaxIterations:   DefaultMaxIterations,
		},
		Tagging: TaggingSettings{
			ConfidenceThreshold: DefaultConfidenceThreshold,
			MaxRetries:          DefaultTaggingMaxRetries,
			Timeout:             DefaultTaggingTimeout,
			RequestsPerSecond:   DefaultTaggingRPS,
			Burst:               DefaultTaggingBurst,
			Concurrency:         DefaultTaggingConcurrency,
			MaxPageChars:        DefaultTaggingMaxPageChars,
		},
		Server: ServerSettings{
			Addr: DefaultServerAddr,
		},
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderProducer,
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderProducer: "all-MiniLM-L6-v2",
		AIProviderOllama:   "nomic-embed-text",
		AIProviderOpenAI:   "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		"all-MiniLM-L6-v2": 384,
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
