package sqlite

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
)

// ==================== Keyword Search ====================

// keywordSearch implements driven.KeywordSearch over the pages_fts table.
type keywordSearch struct {
	store *Store
}

var _ driven.KeywordSearch = (*keywordSearch)(nil)

// Search runs an FTS5 match. Query terms are OR-ed so partial matches rank
// below full ones; score is the negated bm25 so higher is better.
func (k *keywordSearch) Search(ctx context.Context, query, wikiID string, limit int) ([]domain.KeywordHit, error) {
	match := ftsQuery(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}

	rows, err := k.store.db.QueryContext(ctx, `
		SELECT page_id, wiki_id, title,
			snippet(pages_fts, 1, '', '', '...', 24) AS snippet,
			-bm25(pages_fts) AS score
		FROM pages_fts
		WHERE pages_fts MATCH ? AND (? = '' OR wiki_id = ?)
		ORDER BY score DESC, page_id ASC
		LIMIT ?
	`, match, wikiID, wikiID, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var hits []domain.KeywordHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var h domain.KeywordHit
		if err := rows.Scan(&h.PageID, &h.WikiID, &h.Title, &h.Snippet, &h.Score); err != nil {
			return nil, fmt.Errorf("scanning keyword hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keyword hits: %w", err)
	}
	return hits, nil
}

// ftsQuery turns free text into an FTS5 expression of quoted terms joined by OR.
// Quoting keeps user input from being parsed as FTS5 syntax.
func ftsQuery(query string) string {
	terms := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(terms))
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(t)
		if seen[t] {
			continue
		}
		seen[t] = true
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}
