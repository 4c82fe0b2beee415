// Package producer provides an embedding service adapter for the wiki's
// embedding producer process.
package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/custodia-labs/wikiscope/internal/adapters/driven/embedding"
	"github.com/custodia-labs/wikiscope/internal/adapters/driven/remote"
	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

const providerName = "producer"

// Default configuration values.
const (
	DefaultModel    = "all-MiniLM-L6-v2"
	DefaultTimeout  = 60 * time.Second
	DefaultMaxBatch = 32
)

// Config holds configuration for the producer client.
type Config struct {
	// URL is the full endpoint that accepts embedding requests.
	URL string

	// Model is reported by ModelName until the producer names its own model.
	Model string

	// MaxBatch is the largest number of texts sent in one request.
	MaxBatch int

	// Timeout is the per-request timeout.
	Timeout time.Duration
}

// EmbeddingService calls the embedding producer over HTTP.
type EmbeddingService struct {
	client   *http.Client
	url      string
	maxBatch int

	mu         sync.RWMutex
	model      string
	dimensions int
}

type embedRequest struct {
	Texts     []string `json:"texts"`
	Normalize bool     `json:"normalize"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Dimension  int         `json:"dimension"`
	Model      string      `json:"model"`
}

// NewEmbeddingService creates a new producer client.
func NewEmbeddingService(cfg Config) *EmbeddingService {
	if cfg.URL == "" {
		cfg.URL = domain.DefaultProducerURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &EmbeddingService{
		client:   &http.Client{Timeout: cfg.Timeout},
		url:      cfg.URL,
		maxBatch: cfg.MaxBatch,
		model:    cfg.Model,
	}
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts, splitting them into requests of at most MaxBatch.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedding.InBatches(ctx, texts, s.maxBatch, s.call)
}

func (s *EmbeddingService) call(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Texts: texts, Normalize: true})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, remote.TransportError(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, remote.StatusError(providerName, resp)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode producer response: %w", domain.ErrInvalidResponseFormat, err)
	}
	if out.Dimension > 0 {
		for i, v := range out.Embeddings {
			if len(v) != out.Dimension {
				return nil, fmt.Errorf("%w: embedding %d has %d values, producer reported %d",
					domain.ErrInvalidResponseFormat, i, len(v), out.Dimension)
			}
		}
	}

	vecs := make([][]float32, len(out.Embeddings))
	for i, v := range out.Embeddings {
		vecs[i] = embedding.Float32s(v)
	}
	s.remember(out.Model, out.Dimension)
	return vecs, nil
}

func (s *EmbeddingService) remember(model string, dims int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if model != "" {
		s.model = model
	}
	if dims > 0 {
		s.dimensions = dims
	}
}

// Dimensions returns the vector size reported by the last response, or 0.
func (s *EmbeddingService) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions
}

// ModelName returns the producer's model name.
func (s *EmbeddingService) ModelName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// Ping embeds a short probe text. The producer exposes no cheaper endpoint.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if _, err := s.call(ctx, []string{"ping"}); err != nil {
		return fmt.Errorf("producer: ping failed: %w", err)
	}
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
