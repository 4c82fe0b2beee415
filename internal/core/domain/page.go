package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EmbeddingStatus tracks whether a page's stored vectors match its content.
type EmbeddingStatus string

// Embedding lifecycle states.
const (
	// EmbeddingStatusPending means the page needs (re-)embedding.
	EmbeddingStatusPending EmbeddingStatus = "pending"

	// EmbeddingStatusProcessing means a worker has claimed the page.
	EmbeddingStatusProcessing EmbeddingStatus = "processing"

	// EmbeddingStatusCompleted means current vectors are stored.
	EmbeddingStatusCompleted EmbeddingStatus = "completed"

	// EmbeddingStatusFailed means the last attempt failed.
	// Failed pages are only retried by an explicit operator action.
	EmbeddingStatusFailed EmbeddingStatus = "failed"
)

// IsValid returns true if the status is recognised.
func (s EmbeddingStatus) IsValid() bool {
	switch s {
	case EmbeddingStatusPending, EmbeddingStatusProcessing,
		EmbeddingStatusCompleted, EmbeddingStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s EmbeddingStatus) String() string {
	return string(s)
}

// AllEmbeddingStatuses returns every lifecycle state in display order.
func AllEmbeddingStatuses() []EmbeddingStatus {
	return []EmbeddingStatus{
		EmbeddingStatusPending,
		EmbeddingStatusProcessing,
		EmbeddingStatusCompleted,
		EmbeddingStatusFailed,
	}
}

// Page is the slice of a wiki page the retrieval subsystem cares about.
type Page struct {
	// ID is the unique identifier for the page.
	ID string `json:"id"`

	// WikiID scopes the page to one wiki.
	WikiID string `json:"wiki_id"`

	// Title is the human-readable title.
	Title string `json:"title"`

	// Content is the page body in markdown.
	Content string `json:"content,omitempty"`

	// ContentHash is the sha256 of Content, used to skip no-op edits.
	ContentHash string `json:"content_hash"`

	// EmbeddingStatus is the current lifecycle state.
	EmbeddingStatus EmbeddingStatus `json:"embedding_status"`

	// EmbeddingError holds the reason for the last failure.
	EmbeddingError string `json:"embedding_error,omitempty"`

	// ClaimToken identifies the worker claim currently holding the page.
	// Empty unless the page is processing.
	ClaimToken string `json:"-"`

	// ClaimedAt is when the page moved to processing.
	ClaimedAt time.Time `json:"claimed_at,omitzero"`

	// CreatedAt is when the page was first stored.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the content last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// PageClaim is a page handed to a worker by a claim.
// Complete and Fail must present the same token.
type PageClaim struct {
	Page  Page
	Token string
}

// StatusCounts maps each lifecycle state to the number of pages in it.
type StatusCounts map[EmbeddingStatus]int

// EmbedRun summarises one pass over claimed pages.
type EmbedRun struct {
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`

	// Stale counts results discarded because the claim was superseded.
	Stale int `json:"stale"`
}

// ContentHash fingerprints the text that gets embedded.
func ContentHash(title, content string) string {
	sum := sha256.Sum256([]byte(title + "\n" + content))
	return hex.EncodeToString(sum[:])
}
