package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
)

const pageColumns = `id, wiki_id, title, content, content_hash, embedding_status,
	embedding_error, claim_token, claimed_at, created_at, updated_at`

// ==================== Page Store ====================

// pageStore implements driven.PageStore.
type pageStore struct {
	store *Store
}

var _ driven.PageStore = (*pageStore)(nil)

// PutPage stores or updates a page. A content change resets the page to
// pending, drops its embeddings and refreshes the keyword index, all in one
// transaction.
func (s *pageStore) PutPage(ctx context.Context, page *domain.Page) (bool, error) {
	if page == nil || page.ID == "" || page.WikiID == "" {
		return false, domain.ErrInvalidInput
	}
	page.ContentHash = domain.ContentHash(page.Title, page.Content)

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existingHash, existingWiki string
	var createdAt time.Time
	err = tx.QueryRowContext(ctx,
		"SELECT content_hash, wiki_id, created_at FROM pages WHERE id = ?", page.ID,
	).Scan(&existingHash, &existingWiki, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		createdAt = time.Now().UTC()
	case err != nil:
		return false, fmt.Errorf("reading page: %w", err)
	case existingHash == page.ContentHash && existingWiki == page.WikiID:
		return false, nil
	}

	now := time.Now().UTC()
	page.CreatedAt = createdAt
	page.UpdatedAt = now
	page.EmbeddingStatus = domain.EmbeddingStatusPending
	page.EmbeddingError = ""
	page.ClaimToken = ""
	page.ClaimedAt = time.Time{}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pages (id, wiki_id, title, content, content_hash, embedding_status,
			embedding_error, claim_token, claimed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'pending', NULL, NULL, NULL, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			wiki_id = excluded.wiki_id,
			title = excluded.title,
			content = excluded.content,
			content_hash = excluded.content_hash,
			embedding_status = 'pending',
			embedding_error = NULL,
			claim_token = NULL,
			claimed_at = NULL,
			updated_at = excluded.updated_at
	`, page.ID, page.WikiID, page.Title, page.Content, page.ContentHash, createdAt, now)
	if err != nil {
		return false, fmt.Errorf("saving page: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM page_embeddings WHERE page_id = ?", page.ID); err != nil {
		return false, fmt.Errorf("deleting embeddings: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM pages_fts WHERE page_id = ?", page.ID); err != nil {
		return false, fmt.Errorf("clearing keyword index: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO pages_fts (title, content, page_id, wiki_id) VALUES (?, ?, ?, ?)",
		page.Title, page.Content, page.ID, page.WikiID); err != nil {
		return false, fmt.Errorf("updating keyword index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing page: %w", err)
	}
	return true, nil
}

// GetPage retrieves a page by ID.
func (s *pageStore) GetPage(ctx context.Context, id string) (*domain.Page, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT "+pageColumns+" FROM pages WHERE id = ?", id)
	return scanPage(row)
}

// GetPages retrieves pages by ID, ordered by ID. Unknown IDs are skipped.
func (s *pageStore) GetPages(ctx context.Context, ids []string) ([]domain.Page, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+pageColumns+" FROM pages WHERE id IN ("+placeholders(len(ids))+") ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("querying pages: %w", err)
	}
	defer rows.Close()
	return scanPages(rows)
}

// DeletePage removes a page. Embeddings and tag links cascade.
func (s *pageStore) DeletePage(ctx context.Context, id string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, "DELETE FROM pages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pages_fts WHERE page_id = ?", id); err != nil {
		return fmt.Errorf("clearing keyword index: %w", err)
	}
	return tx.Commit()
}

// ListWikiIDs returns every wiki that has at least one completed page.
func (s *pageStore) ListWikiIDs(ctx context.Context) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT DISTINCT wiki_id FROM pages
		WHERE embedding_status = 'completed'
		ORDER BY wiki_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying wikis: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning wiki id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ==================== Embedding Tracker ====================

// trackerStore implements driven.EmbeddingTracker.
// Claims are guarded by a token: Complete and Fail only apply while the
// page is still processing under the token handed out by the claim.
type trackerStore struct {
	store *Store
}

var _ driven.EmbeddingTracker = (*trackerStore)(nil)

// MarkDirty sets a page to pending and deletes its embeddings.
func (s *trackerStore) MarkDirty(ctx context.Context, pageID string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := markDirtyTx(ctx, tx, pageID); err != nil {
		return err
	}
	return tx.Commit()
}

func markDirtyTx(ctx context.Context, tx *sql.Tx, pageID string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM page_embeddings WHERE page_id = ?", pageID); err != nil {
		return fmt.Errorf("deleting embeddings: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE pages
		SET embedding_status = 'pending', embedding_error = NULL, claim_token = NULL, claimed_at = NULL
		WHERE id = ?
	`, pageID)
	if err != nil {
		return fmt.Errorf("marking page dirty: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClaimBatch moves up to limit pending (or stale processing) pages to processing
// in a single UPDATE, so concurrent callers can never claim the same page.
func (s *trackerStore) ClaimBatch(ctx context.Context, limit int, staleBefore time.Time) ([]domain.PageClaim, error) {
	if limit <= 0 {
		return nil, nil
	}
	token := uuid.NewString()
	now := time.Now().UTC()

	rows, err := s.store.db.QueryContext(ctx, `
		UPDATE pages
		SET embedding_status = 'processing', claim_token = ?, claimed_at = ?, embedding_error = NULL
		WHERE id IN (
			SELECT id FROM pages
			WHERE embedding_status = 'pending'
			   OR (embedding_status = 'processing' AND claimed_at < ?)
			ORDER BY updated_at, id
			LIMIT ?
		)
		RETURNING id, wiki_id, title, content, content_hash
	`, token, now.UnixMilli(), staleBefore.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("claiming pages: %w", err)
	}
	defer rows.Close()

	var claims []domain.PageClaim
	for rows.Next() {
		p := domain.Page{
			EmbeddingStatus: domain.EmbeddingStatusProcessing,
			ClaimToken:      token,
			ClaimedAt:       time.UnixMilli(now.UnixMilli()).UTC(),
		}
		if err := rows.Scan(&p.ID, &p.WikiID, &p.Title, &p.Content, &p.ContentHash); err != nil {
			return nil, fmt.Errorf("scanning claimed page: %w", err)
		}
		claims = append(claims, domain.PageClaim{Page: p, Token: token})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating claimed pages: %w", err)
	}

	sort.Slice(claims, func(i, j int) bool { return claims[i].Page.ID < claims[j].Page.ID })
	return claims, nil
}

// ClaimPage claims a single page in any state unless a live claim holds it.
// Existing embeddings are dropped in the same transaction.
func (s *trackerStore) ClaimPage(ctx context.Context, pageID string, staleBefore time.Time) (*domain.PageClaim, error) {
	token := uuid.NewString()
	now := time.Now().UTC()

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	p := domain.Page{
		EmbeddingStatus: domain.EmbeddingStatusProcessing,
		ClaimToken:      token,
		ClaimedAt:       time.UnixMilli(now.UnixMilli()).UTC(),
	}
	err = tx.QueryRowContext(ctx, `
		UPDATE pages
		SET embedding_status = 'processing', claim_token = ?, claimed_at = ?, embedding_error = NULL
		WHERE id = ?
		  AND NOT (embedding_status = 'processing' AND claimed_at >= ?)
		RETURNING id, wiki_id, title, content, content_hash
	`, token, now.UnixMilli(), pageID, staleBefore.UnixMilli()).
		Scan(&p.ID, &p.WikiID, &p.Title, &p.Content, &p.ContentHash)
	if errors.Is(err, sql.ErrNoRows) {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT 1 FROM pages WHERE id = ?", pageID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, fmt.Errorf("checking page: %w", err)
		}
		return nil, domain.ErrPageBusy
	}
	if err != nil {
		return nil, fmt.Errorf("claiming page: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM page_embeddings WHERE page_id = ?", pageID); err != nil {
		return nil, fmt.Errorf("deleting embeddings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	return &domain.PageClaim{Page: p, Token: token}, nil
}

// Complete stores embeddings and marks the page completed if the claim still holds.
func (s *trackerStore) Complete(ctx context.Context, claim domain.PageClaim, embeddings []domain.PageEmbedding) error {
	if len(embeddings) == 0 {
		return fmt.Errorf("%w: no embeddings for page %s", domain.ErrInvalidInput, claim.Page.ID)
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE pages
		SET embedding_status = 'completed', embedding_error = NULL, claim_token = NULL, claimed_at = NULL
		WHERE id = ? AND claim_token = ? AND embedding_status = 'processing'
	`, claim.Page.ID, claim.Token)
	if err != nil {
		return fmt.Errorf("completing page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrStaleClaim
	}

	if err := replaceEmbeddingsTx(ctx, tx, claim.Page.ID, claim.Page.WikiID, embeddings); err != nil {
		return err
	}
	return tx.Commit()
}

// Fail marks the page failed if the claim still holds.
func (s *trackerStore) Fail(ctx context.Context, claim domain.PageClaim, reason string) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE pages
		SET embedding_status = 'failed', embedding_error = ?, claim_token = NULL, claimed_at = NULL
		WHERE id = ? AND claim_token = ? AND embedding_status = 'processing'
	`, reason, claim.Page.ID, claim.Token)
	if err != nil {
		return fmt.Errorf("failing page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrStaleClaim
	}
	return nil
}

// Retry moves a failed page back to pending.
func (s *trackerStore) Retry(ctx context.Context, pageID string) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE pages SET embedding_status = 'pending', embedding_error = NULL
		WHERE id = ? AND embedding_status = 'failed'
	`, pageID)
	if err != nil {
		return fmt.Errorf("retrying page: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var status string
	err = s.store.db.QueryRowContext(ctx, "SELECT embedding_status FROM pages WHERE id = ?", pageID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading page status: %w", err)
	}
	return fmt.Errorf("%w: page %s is %s, not failed", domain.ErrInvalidInput, pageID, status)
}

// RetryFailed moves every failed page in scope back to pending.
func (s *trackerStore) RetryFailed(ctx context.Context, wikiID string) (int, error) {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE pages SET embedding_status = 'pending', embedding_error = NULL
		WHERE embedding_status = 'failed' AND (? = '' OR wiki_id = ?)
	`, wikiID, wikiID)
	if err != nil {
		return 0, fmt.Errorf("retrying failed pages: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListByStatus returns pages in a status ordered by last update, oldest first.
func (s *trackerStore) ListByStatus(ctx context.Context, status domain.EmbeddingStatus, wikiID string, limit int) ([]domain.Page, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := s.store.db.QueryContext(ctx, "SELECT "+pageColumns+` FROM pages
		WHERE embedding_status = ? AND (? = '' OR wiki_id = ?)
		ORDER BY updated_at, id
		LIMIT ?`, string(status), wikiID, wikiID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pages by status: %w", err)
	}
	defer rows.Close()
	return scanPages(rows)
}

// CountByStatus returns page counts for every status, including zeros.
func (s *trackerStore) CountByStatus(ctx context.Context, wikiID string) (domain.StatusCounts, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT embedding_status, COUNT(*) FROM pages
		WHERE (? = '' OR wiki_id = ?)
		GROUP BY embedding_status
	`, wikiID, wikiID)
	if err != nil {
		return nil, fmt.Errorf("counting pages: %w", err)
	}
	defer rows.Close()

	counts := domain.StatusCounts{}
	for _, st := range domain.AllEmbeddingStatuses() {
		counts[st] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[domain.EmbeddingStatus(status)] = n
	}
	return counts, rows.Err()
}

// ==================== Scanning ====================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPageInto(sc rowScanner) (*domain.Page, error) {
	var p domain.Page
	var status string
	var errMsg, token sql.NullString
	var claimedAt sql.NullInt64

	if err := sc.Scan(&p.ID, &p.WikiID, &p.Title, &p.Content, &p.ContentHash, &status,
		&errMsg, &token, &claimedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.EmbeddingStatus = domain.EmbeddingStatus(status)
	p.EmbeddingError = errMsg.String
	p.ClaimToken = token.String
	if claimedAt.Valid {
		p.ClaimedAt = time.UnixMilli(claimedAt.Int64).UTC()
	}
	return &p, nil
}

// scanPage scans a single page row.
func scanPage(row *sql.Row) (*domain.Page, error) {
	p, err := scanPageInto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning page: %w", err)
	}
	return p, nil
}

// scanPages scans every remaining page row.
func scanPages(rows *sql.Rows) ([]domain.Page, error) {
	var pages []domain.Page //nolint:prealloc // size unknown from query
	for rows.Next() {
		p, err := scanPageInto(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning page: %w", err)
		}
		pages = append(pages, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pages: %w", err)
	}
	return pages, nil
}
