package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TagSource records who created a tag.
type TagSource string

// Tag sources.
const (
	TagSourceHuman TagSource = "human"
	TagSourceAI    TagSource = "ai"
)

// IsValid returns true if the source is recognised.
func (s TagSource) IsValid() bool {
	return s == TagSourceHuman || s == TagSourceAI
}

// TagCategory classifies an AI tag proposal.
type TagCategory string

// Tag categories accepted from the language model.
const (
	TagCategoryTechnology TagCategory = "technology"
	TagCategoryConcept    TagCategory = "concept"
	TagCategoryType       TagCategory = "type"
	TagCategoryLevel      TagCategory = "level"
)

// IsValid returns true if the category is in the fixed enum.
func (c TagCategory) IsValid() bool {
	switch c {
	case TagCategoryTechnology, TagCategoryConcept, TagCategoryType, TagCategoryLevel:
		return true
	default:
		return false
	}
}

// AllTagCategories returns the category enum in prompt order.
func AllTagCategories() []TagCategory {
	return []TagCategory{
		TagCategoryTechnology,
		TagCategoryConcept,
		TagCategoryType,
		TagCategoryLevel,
	}
}

// Tag is a label attached to pages.
type Tag struct {
	// ID is the unique identifier for the tag.
	ID string `json:"id"`

	// WikiID scopes the tag. Names are unique per wiki.
	WikiID string `json:"wiki_id"`

	// Name is lowercase and hyphenated.
	Name string `json:"name"`

	// Color is an optional display colour.
	Color string `json:"color,omitempty"`

	// Source is human or ai.
	Source TagSource `json:"source"`

	// AutoGenerated is true for tags created by the cluster tagger.
	AutoGenerated bool `json:"auto_generated"`

	// Confidence is the model confidence in [0,1]. Nil for human tags.
	Confidence *float64 `json:"confidence,omitempty"`

	// ModelName is the model that proposed the tag.
	ModelName string `json:"model_name,omitempty"`

	// Verified is set only by an explicit human action.
	Verified bool `json:"verified"`

	// CreatedAt is when the tag was created.
	CreatedAt time.Time `json:"created_at"`
}

// TagCandidate is a validated tag proposal from the language model.
type TagCandidate struct {
	Name       string      `json:"name"`
	Confidence float64     `json:"confidence"`
	Rationale  string      `json:"rationale"`
	Category   TagCategory `json:"category"`
}

var tagNamePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// NormalizeTagName lowercases a name and turns whitespace and underscores into hyphens.
// It does not validate the result.
func NormalizeTagName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r == '_' || r == ' ' || r == '\t' {
			return '-'
		}
		return r
	}, name)
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	return strings.Trim(name, "-")
}

// ValidateTagName checks that name is already lowercase and hyphenated.
func ValidateTagName(name string) error {
	if !tagNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTagName, name)
	}
	return nil
}
