package domain

import "time"

const unknownDescription = "Unknown"

// SearchMode defines which retrieval signals a search uses.
type SearchMode string

// Available search modes.
const (
	// SearchModeSemantic ranks by vector similarity only.
	SearchModeSemantic SearchMode = "semantic"

	// SearchModeKeyword ranks by full-text relevance only.
	SearchModeKeyword SearchMode = "keyword"

	// SearchModeHybrid blends normalised keyword and semantic scores.
	SearchModeHybrid SearchMode = "hybrid"
)

// IsValid returns true if the search mode is recognised.
func (m SearchMode) IsValid() bool {
	switch m {
	case SearchModeSemantic, SearchModeKeyword, SearchModeHybrid:
		return true
	default:
		return false
	}
}

// RequiresEmbedding returns true if this mode needs a query vector.
func (m SearchMode) RequiresEmbedding() bool {
	return m == SearchModeSemantic || m == SearchModeHybrid
}

// String returns the string representation.
func (m SearchMode) String() string {
	return string(m)
}

// Description returns a human-readable description of the mode.
func (m SearchMode) Description() string {
	switch m {
	case SearchModeSemantic:
		return "Semantic (vector similarity)"
	case SearchModeKeyword:
		return "Keyword (full-text search)"
	case SearchModeHybrid:
		return "Hybrid (keyword + semantic)"
	default:
		return unknownDescription
	}
}

// AllSearchModes returns all available search modes.
func AllSearchModes() []SearchMode {
	return []SearchMode{
		SearchModeHybrid,
		SearchModeSemantic,
		SearchModeKeyword,
	}
}

// SearchOptions configures a single search call.
// Callers start from SearchSettings.Options() and override per request.
type SearchOptions struct {
	// Mode selects the retrieval signals.
	Mode SearchMode

	// WikiID restricts results to one wiki when non-empty.
	WikiID string

	// Limit is the maximum number of results.
	Limit int

	// Offset is the number of results to skip.
	Offset int

	// Threshold is the minimum cosine similarity for semantic candidates.
	Threshold float64

	// SemanticWeight is the blend weight of the semantic signal in hybrid mode.
	SemanticWeight float64

	// CandidatePool is how many candidates each signal contributes before fusion.
	CandidatePool int

	// QueryTimeout bounds the query embedding call.
	QueryTimeout time.Duration
}

// SearchResult represents a single ranked page.
type SearchResult struct {
	// PageID identifies the matched page.
	PageID string `json:"page_id"`

	// WikiID is the wiki the page belongs to.
	WikiID string `json:"wiki_id"`

	// Title is the page title, when known.
	Title string `json:"title,omitempty"`

	// ChunkPreview is the best matching chunk or keyword snippet.
	ChunkPreview string `json:"chunk_preview"`

	// HeadingPath attributes the preview to a section.
	HeadingPath []string `json:"heading_path,omitempty"`

	// KeywordScore is the raw keyword relevance, nil when the page had no keyword match.
	KeywordScore *float64 `json:"keyword_score"`

	// SemanticScore is the raw cosine similarity, nil when absent.
	SemanticScore *float64 `json:"semantic_score"`

	// CombinedScore is the ranking score.
	CombinedScore float64 `json:"combined_score"`
}

// SearchResponse is the outcome of a search call.
type SearchResponse struct {
	// Results is the requested page of ranked results.
	Results []SearchResult `json:"results"`

	// Total is the number of ranked results before pagination.
	Total int `json:"total"`

	// Mode is the mode actually served. Hybrid degrades to keyword.
	Mode SearchMode `json:"mode"`

	// Degraded is true when the semantic signal was dropped.
	Degraded bool `json:"degraded"`

	// Warnings lists clamped inputs and degrade reasons.
	Warnings []string `json:"warnings,omitempty"`
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
