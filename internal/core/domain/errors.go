package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTagName indicates a tag name that is not lowercase and hyphenated.
	ErrInvalidTagName = errors.New("invalid tag name")

	// ErrEmptyContent indicates a page has no text to embed.
	ErrEmptyContent = errors.New("page has no content")

	// Retrieval Errors.

	// ErrProducerUnavailable indicates the embedding producer or language model
	// could not be reached or timed out. Recoverable.
	ErrProducerUnavailable = errors.New("producer unavailable")

	// ErrInvalidResponseFormat indicates model output failed structured parsing.
	ErrInvalidResponseFormat = errors.New("invalid response format")

	// ErrEmbeddingDimensionMismatch indicates stored vectors and the query vector
	// differ in length. The index must be re-embedded.
	ErrEmbeddingDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStaleClaim indicates a worker's claim was superseded after a timeout.
	// The worker must discard its result.
	ErrStaleClaim = errors.New("stale claim")

	// ErrThresholdOutOfRange indicates a threshold outside [0,1]. Clamped, never returned.
	ErrThresholdOutOfRange = errors.New("threshold out of range")

	// ErrWeightOutOfRange indicates a semantic weight outside [0,1]. Clamped, never returned.
	ErrWeightOutOfRange = errors.New("semantic weight out of range")

	// ErrPageBusy indicates a page is held by a live worker claim.
	ErrPageBusy = errors.New("page is being processed")

	// ErrClusteringInProgress indicates a clustering run is already active for the wiki.
	ErrClusteringInProgress = errors.New("clustering in progress")

	// Service Availability Errors.

	// ErrLLMUnavailable indicates the LLM service is not configured.
	// Cluster tagging is disabled.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Semantic search and embedding generation are disabled.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrSearchUnavailable indicates the keyword backend is not configured.
	ErrSearchUnavailable = errors.New("search engine unavailable")
)

// DimensionMismatchError carries the two dimensions that disagreed.
// It matches ErrEmbeddingDimensionMismatch with errors.Is.
type DimensionMismatchError struct {
	Stored int
	Query  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: index has %d dimensions, query has %d",
		ErrEmbeddingDimensionMismatch, e.Stored, e.Query)
}

// Is reports whether target is ErrEmbeddingDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrEmbeddingDimensionMismatch
}
