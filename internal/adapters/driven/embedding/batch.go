// Package embedding holds helpers shared by the embedding clients.
package embedding

import (
	"context"
	"fmt"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// BatchFunc embeds one batch. It must return one vector per text, in order.
type BatchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// InBatches splits texts into batches of at most size, calls fn for each and
// reassembles the vectors in input order. Every vector is normalised to unit
// length and all vectors must share one dimension.
func InBatches(ctx context.Context, texts []string, size int, fn BatchFunc) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if size <= 0 {
		size = len(texts)
	}

	result := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		vecs, err := fn(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch [%d:%d]: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%w: batch [%d:%d] returned %d vectors",
				domain.ErrInvalidResponseFormat, start, end, len(vecs))
		}
		result = append(result, vecs...)
	}

	dims := len(result[0])
	for i, v := range result {
		if len(v) == 0 || len(v) != dims {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d",
				domain.ErrInvalidResponseFormat, i, len(v), dims)
		}
		result[i] = domain.Normalize(v)
	}
	return result, nil
}

// Float32s converts a decoded JSON vector.
func Float32s(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
