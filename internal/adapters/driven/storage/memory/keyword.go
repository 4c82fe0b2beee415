package memory

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

const snippetRunes = 160

// ==================== KeywordSearch ====================

// Search scores pages by how often query terms occur in title and content.
// Title matches count double.
func (s *PageStore) Search(_ context.Context, query, wikiID string, limit int) ([]domain.KeywordHit, error) {
	terms := tokenize(query)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []domain.KeywordHit
	for _, page := range s.pages {
		if wikiID != "" && page.WikiID != wikiID {
			continue
		}
		title := termCounts(page.Title)
		body := termCounts(page.Content)
		score := 0.0
		for _, term := range terms {
			score += 2*float64(title[term]) + float64(body[term])
		}
		if score == 0 {
			continue
		}
		hits = append(hits, domain.KeywordHit{
			PageID:  page.ID,
			WikiID:  page.WikiID,
			Title:   page.Title,
			Snippet: snippet(page.Content),
			Score:   score,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].PageID < hits[j].PageID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	terms := fields[:0]
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			terms = append(terms, f)
		}
	}
	return terms
}

func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		counts[f]++
	}
	return counts
}

func snippet(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= snippetRunes {
		return string(runes)
	}
	return string(runes[:snippetRunes]) + "..."
}
