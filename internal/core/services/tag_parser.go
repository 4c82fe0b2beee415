package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// rawTagEntry is one untrusted proposal as the model wrote it.
type rawTagEntry struct {
	Name       string   `json:"name"`
	Confidence *float64 `json:"confidence"`
	Rationale  string   `json:"rationale"`
	Category   string   `json:"category"`
}

// parseTagResponse extracts tag candidates from model output.
//
// The output must contain a JSON object with a "tags" array, or a bare array.
// Anything else is domain.ErrInvalidResponseFormat. Entries that fail
// validation are dropped one by one and counted; they never fail the batch.
func parseTagResponse(output string) ([]domain.TagCandidate, int, error) {
	entries, err := extractTagEntries(output)
	if err != nil {
		return nil, 0, err
	}

	candidates := make([]domain.TagCandidate, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	dropped := 0
	for _, raw := range entries {
		var entry rawTagEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			dropped++
			continue
		}
		candidate, ok := validateTagEntry(entry)
		if !ok || seen[candidate.Name] {
			dropped++
			continue
		}
		seen[candidate.Name] = true
		candidates = append(candidates, candidate)
	}
	return candidates, dropped, nil
}

func extractTagEntries(output string) ([]json.RawMessage, error) {
	body := strings.TrimSpace(stripCodeFence(output))
	start := strings.IndexAny(body, "{[")
	if start < 0 {
		return nil, fmt.Errorf("%w: no JSON in model output", domain.ErrInvalidResponseFormat)
	}
	body = body[start:]

	// Decode one value and ignore trailing commentary.
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if body[0] == '[' {
		var entries []json.RawMessage
		if err := dec.Decode(&entries); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidResponseFormat, err)
		}
		return entries, nil
	}

	var envelope struct {
		Tags *[]json.RawMessage `json:"tags"`
	}
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidResponseFormat, err)
	}
	if envelope.Tags == nil {
		return nil, fmt.Errorf("%w: missing \"tags\" array", domain.ErrInvalidResponseFormat)
	}
	return *envelope.Tags, nil
}

// stripCodeFence removes a surrounding ``` block, with or without a language tag.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return s
}

// validateTagEntry checks one proposal. Names are compared case-insensitively,
// so case is folded; any other deviation from lowercase-hyphenated rejects it.
func validateTagEntry(entry rawTagEntry) (domain.TagCandidate, bool) {
	name := strings.ToLower(strings.TrimSpace(entry.Name))
	if domain.ValidateTagName(name) != nil {
		return domain.TagCandidate{}, false
	}
	if entry.Confidence == nil {
		return domain.TagCandidate{}, false
	}
	confidence := *entry.Confidence
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return domain.TagCandidate{}, false
	}
	category := domain.TagCategory(strings.ToLower(strings.TrimSpace(entry.Category)))
	if !category.IsValid() {
		return domain.TagCandidate{}, false
	}
	return domain.TagCandidate{
		Name:       name,
		Confidence: confidence,
		Rationale:  strings.TrimSpace(entry.Rationale),
		Category:   category,
	}, true
}
