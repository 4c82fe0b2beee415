package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

func TestParseTagResponse_Valid(t *testing.T) {
	output := `{"tags": [
		{"name": "rest-api", "confidence": 0.9, "rationale": "All pages describe REST endpoints.", "category": "technology"},
		{"name": "authentication", "confidence": 0.8, "rationale": "Login flows.", "category": "concept"}
	]}`

	candidates, dropped, err := parseTagResponse(output)
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.Equal(t, []domain.TagCandidate{
		{Name: "rest-api", Confidence: 0.9, Rationale: "All pages describe REST endpoints.", Category: domain.TagCategoryTechnology},
		{Name: "authentication", Confidence: 0.8, Rationale: "Login flows.", Category: domain.TagCategoryConcept},
	}, candidates)
}

func TestParseTagResponse_Envelopes(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"bare array", `[{"name": "python", "confidence": 0.7, "category": "technology"}]`},
		{"code fence", "```json\n{\"tags\": [{\"name\": \"python\", \"confidence\": 0.7, \"category\": \"technology\"}]}\n```"},
		{"plain fence", "```\n[{\"name\": \"python\", \"confidence\": 0.7, \"category\": \"technology\"}]\n```"},
		{"leading prose", `Here are the tags: {"tags": [{"name": "python", "confidence": 0.7, "category": "technology"}]}`},
		{"trailing prose", `{"tags": [{"name": "python", "confidence": 0.7, "category": "technology"}]} Hope this helps!`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates, _, err := parseTagResponse(tt.output)
			require.NoError(t, err)
			require.Len(t, candidates, 1)
			assert.Equal(t, "python", candidates[0].Name)
		})
	}
}

func TestParseTagResponse_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"empty", ""},
		{"prose only", "I think these pages are about Python."},
		{"truncated", `{"tags": [{"name": "python", "confidence": 0.7`},
		{"missing tags key", `{"labels": []}`},
		{"tags not an array", `{"tags": "python"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseTagResponse(tt.output)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidResponseFormat)
		})
	}
}

func TestParseTagResponse_DropsInvalidEntriesIndividually(t *testing.T) {
	output := `{"tags": [
		{"name": "python", "confidence": 0.9, "category": "technology"},
		{"name": "Rest API", "confidence": 0.9, "category": "technology"},
		{"name": "decorators", "confidence": 1.5, "category": "concept"},
		{"name": "tutorial", "confidence": 0.8, "category": "genre"},
		{"name": "beginner", "category": "level"},
		{"name": "wrappers", "confidence": "high", "category": "concept"},
		"not-an-object",
		{"name": "PYTHON", "confidence": 0.6, "category": "technology"},
		{"name": "Guide", "confidence": 0.7, "category": " Type "}
	]}`

	candidates, dropped, err := parseTagResponse(output)
	require.NoError(t, err)
	assert.Equal(t, 7, dropped)
	require.Len(t, candidates, 2)
	assert.Equal(t, "python", candidates[0].Name)
	assert.Equal(t, "guide", candidates[1].Name)
	assert.Equal(t, domain.TagCategoryType, candidates[1].Category)
}

func TestParseTagResponse_EmptyList(t *testing.T) {
	candidates, dropped, err := parseTagResponse(`{"tags": []}`)
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.Empty(t, candidates)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, "plain", stripCodeFence("  plain "))
	assert.Equal(t, "{}\n", stripCodeFence("```json\n{}\n```"))
	assert.Equal(t, "{}", stripCodeFence("```{}```"))
}
