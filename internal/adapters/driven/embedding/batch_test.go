package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

func TestInBatches(t *testing.T) {
	var sizes []int
	fn := func(_ context.Context, texts []string) ([][]float32, error) {
		sizes = append(sizes, len(texts))
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{3, 4}
		}
		return out, nil
	}

	vecs, err := InBatches(context.Background(), []string{"a", "b", "c", "d", "e", "f", "g"}, 3, fn)

	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)
	require.Len(t, vecs, 7)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.8, vecs[6][1], 1e-6)
}

func TestInBatches_ZeroSizeSendsOneBatch(t *testing.T) {
	calls := 0
	fn := func(_ context.Context, texts []string) ([][]float32, error) {
		calls++
		return make2D(len(texts), 2), nil
	}

	_, err := InBatches(context.Background(), []string{"a", "b"}, 0, fn)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestInBatches_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := InBatches(ctx, []string{"a"}, 4, func(context.Context, []string) ([][]float32, error) {
		return nil, domain.ErrProducerUnavailable
	})
	assert.ErrorIs(t, err, domain.ErrProducerUnavailable)
	assert.Contains(t, err.Error(), "batch [0:1]")

	_, err = InBatches(ctx, []string{"a", "b"}, 4, func(context.Context, []string) ([][]float32, error) {
		return make2D(1, 2), nil
	})
	assert.ErrorIs(t, err, domain.ErrInvalidResponseFormat)

	_, err = InBatches(ctx, []string{"a", "b"}, 1, func(_ context.Context, texts []string) ([][]float32, error) {
		if texts[0] == "b" {
			return make2D(1, 3), nil
		}
		return make2D(1, 2), nil
	})
	assert.ErrorIs(t, err, domain.ErrInvalidResponseFormat)
}

func TestFloat32s(t *testing.T) {
	assert.Equal(t, []float32{1.5, -2}, Float32s([]float64{1.5, -2}))
}

func make2D(n, dims int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dims)
		out[i][0] = 1
	}
	return out
}
