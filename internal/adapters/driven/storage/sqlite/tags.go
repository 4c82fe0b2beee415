package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
)

const tagColumns = `id, wiki_id, name, color, source, auto_generated, confidence,
	model_name, verified, created_at`

// ==================== Tag Store ====================

// tagStore implements driven.TagStore.
// The unique index on (wiki_id, name COLLATE NOCASE) enforces one tag per
// name per wiki regardless of case.
type tagStore struct {
	store *Store
}

var _ driven.TagStore = (*tagStore)(nil)

// FindTagByName looks up a tag ignoring case.
func (s *tagStore) FindTagByName(ctx context.Context, wikiID, name string) (*domain.Tag, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT "+tagColumns+` FROM tags
		WHERE wiki_id = ? AND name = ? COLLATE NOCASE`, wikiID, name)
	return scanTag(row)
}

// GetOrCreateTag inserts tag unless the wiki already has one with the same name.
func (s *tagStore) GetOrCreateTag(ctx context.Context, tag *domain.Tag) (*domain.Tag, bool, error) {
	if tag == nil || tag.WikiID == "" || tag.Name == "" {
		return nil, false, domain.ErrInvalidInput
	}
	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = time.Now().UTC()
	}

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO tags (id, wiki_id, name, color, source, auto_generated, confidence,
			model_name, verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, tag.ID, tag.WikiID, tag.Name, tag.Color, string(tag.Source), boolToInt(tag.AutoGenerated),
		nullFloat(tag.Confidence), nullString(tag.ModelName), boolToInt(tag.Verified), tag.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("inserting tag: %w", err)
	}
	created := false
	if n, _ := res.RowsAffected(); n == 1 {
		created = true
	}

	stored, err := s.FindTagByName(ctx, tag.WikiID, tag.Name)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// GetTag retrieves a tag by ID.
func (s *tagStore) GetTag(ctx context.Context, id string) (*domain.Tag, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT "+tagColumns+" FROM tags WHERE id = ?", id)
	return scanTag(row)
}

// ListTags returns all tags of a wiki ordered by name.
func (s *tagStore) ListTags(ctx context.Context, wikiID string) ([]domain.Tag, error) {
	rows, err := s.store.db.QueryContext(ctx, "SELECT "+tagColumns+` FROM tags
		WHERE wiki_id = ? ORDER BY name`, wikiID)
	if err != nil {
		return nil, fmt.Errorf("querying tags: %w", err)
	}
	defer rows.Close()
	return scanTags(rows)
}

// ListTagsForPage returns the tags attached to a page ordered by name.
func (s *tagStore) ListTagsForPage(ctx context.Context, pageID string) ([]domain.Tag, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT t.id, t.wiki_id, t.name, t.color, t.source, t.auto_generated, t.confidence,
			t.model_name, t.verified, t.created_at
		FROM tags t JOIN page_tags pt ON pt.tag_id = t.id
		WHERE pt.page_id = ?
		ORDER BY t.name
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("querying page tags: %w", err)
	}
	defer rows.Close()
	return scanTags(rows)
}

// AttachTag links a tag to pages. Pages that no longer exist are skipped.
func (s *tagStore) AttachTag(ctx context.Context, tagID string, pageIDs ...string) error {
	if len(pageIDs) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM tags WHERE id = ?", tagID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("checking tag: %w", err)
	}

	for _, pageID := range pageIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO page_tags (page_id, tag_id)
			SELECT id, ? FROM pages WHERE id = ?
			ON CONFLICT DO NOTHING
		`, tagID, pageID); err != nil {
			return fmt.Errorf("attaching tag: %w", err)
		}
	}
	return tx.Commit()
}

// DetachTag removes the link between a tag and a page.
func (s *tagStore) DetachTag(ctx context.Context, tagID, pageID string) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM page_tags WHERE tag_id = ? AND page_id = ?", tagID, pageID)
	if err != nil {
		return fmt.Errorf("detaching tag: %w", err)
	}
	return nil
}

// SetVerified marks a tag as human-verified.
func (s *tagStore) SetVerified(ctx context.Context, tagID string) error {
	res, err := s.store.db.ExecContext(ctx, "UPDATE tags SET verified = 1 WHERE id = ?", tagID)
	if err != nil {
		return fmt.Errorf("verifying tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanTagInto(sc rowScanner) (*domain.Tag, error) {
	var t domain.Tag
	var source string
	var autoGen, verified int
	var confidence sql.NullFloat64
	var model sql.NullString

	if err := sc.Scan(&t.ID, &t.WikiID, &t.Name, &t.Color, &source, &autoGen, &confidence,
		&model, &verified, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Source = domain.TagSource(source)
	t.AutoGenerated = autoGen == 1
	t.Verified = verified == 1
	if confidence.Valid {
		t.Confidence = domain.Float64Ptr(confidence.Float64)
	}
	t.ModelName = model.String
	return &t, nil
}

// scanTag scans a single tag row.
func scanTag(row *sql.Row) (*domain.Tag, error) {
	t, err := scanTagInto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning tag: %w", err)
	}
	return t, nil
}

func scanTags(rows *sql.Rows) ([]domain.Tag, error) {
	var tags []domain.Tag //nolint:prealloc // size unknown from query
	for rows.Next() {
		t, err := scanTagInto(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tags = append(tags, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}
	return tags, nil
}

// nullFloat returns nil for a nil pointer, otherwise the value.
func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
