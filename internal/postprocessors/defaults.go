package postprocessors

import (
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
	"github.com/custodia-labs/wikiscope/internal/postprocessors/chunker"
)

// DefaultChunker is the strategy used when none is configured.
const DefaultChunker = "markdown"

// RegisterDefaults registers all built-in chunkers with the registry.
// Call this during application initialisation to enable standard chunkers.
func RegisterDefaults(r *Registry) {
	r.Register("markdown", func(cfg map[string]any) (driven.Chunker, error) {
		return chunker.New(chunkerOptions(cfg)...), nil
	})
	r.Register("fixed", func(cfg map[string]any) (driven.Chunker, error) {
		return chunker.NewFixed(chunkerOptions(cfg)...), nil
	})
}

// chunkerOptions converts generic config into chunker options.
// Supported config keys:
//   - chunk_size (int): Characters per chunk (default: 1000)
//   - overlap (int): Overlapping characters between chunks (default: 200)
func chunkerOptions(cfg map[string]any) []chunker.Option {
	var opts []chunker.Option
	if size, ok := getIntFromConfig(cfg, "chunk_size"); ok && size > 0 {
		opts = append(opts, chunker.WithChunkSize(size))
	}
	if overlap, ok := getIntFromConfig(cfg, "overlap"); ok && overlap >= 0 {
		opts = append(opts, chunker.WithOverlap(overlap))
	}
	return opts
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) (int, bool) {
	val, ok := cfg[key]
	if !ok {
		return 0, false
	}

	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
