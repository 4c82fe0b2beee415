package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
)

// ==================== Vector Index ====================

// vectorIndex implements driven.VectorIndex with a linear scan evaluated
// inside SQLite by vec_dot. Vectors are stored unit-length, so the dot
// product is the cosine similarity and results are exact.
type vectorIndex struct {
	store *Store
}

var _ driven.VectorIndex = (*vectorIndex)(nil)

// Upsert replaces every embedding of a page and marks it completed.
func (v *vectorIndex) Upsert(ctx context.Context, pageID string, embeddings []domain.PageEmbedding) error {
	if len(embeddings) == 0 {
		return fmt.Errorf("%w: no embeddings for page %s", domain.ErrInvalidInput, pageID)
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var wikiID string
	err = tx.QueryRowContext(ctx, "SELECT wiki_id FROM pages WHERE id = ?", pageID).Scan(&wikiID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading page: %w", err)
	}

	if err := replaceEmbeddingsTx(ctx, tx, pageID, wikiID, embeddings); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE pages
		SET embedding_status = 'completed', embedding_error = NULL, claim_token = NULL, claimed_at = NULL
		WHERE id = ?
	`, pageID); err != nil {
		return fmt.Errorf("marking page completed: %w", err)
	}
	return tx.Commit()
}

// Delete removes a page's embeddings. The page returns to pending so that
// no page is left completed without vectors.
func (v *vectorIndex) Delete(ctx context.Context, pageID string) error {
	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := markDirtyTx(ctx, tx, pageID); err != nil {
		return err
	}
	return tx.Commit()
}

// Query returns the nearest chunks above the similarity floor.
func (v *vectorIndex) Query(ctx context.Context, q driven.VectorQuery) ([]domain.VectorHit, error) {
	if q.TopK <= 0 || len(q.Vector) == 0 {
		return nil, nil
	}

	stored, err := v.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if stored == 0 {
		return nil, nil
	}
	if stored != len(q.Vector) {
		return nil, &domain.DimensionMismatchError{Stored: stored, Query: len(q.Vector)}
	}

	rows, err := v.store.db.QueryContext(ctx, `
		SELECT page_id, wiki_id, chunk_index, heading_path, content, similarity
		FROM (
			SELECT page_id, wiki_id, chunk_index, heading_path, content,
				vec_dot(vector, ?) AS similarity
			FROM page_embeddings
			WHERE (? = '' OR wiki_id = ?)
		)
		WHERE similarity >= ?
		ORDER BY similarity DESC, page_id ASC, chunk_index ASC
		LIMIT ?
	`, float32SliceToBytes(q.Vector), q.WikiID, q.WikiID, q.MinSimilarity, q.TopK)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var hits []domain.VectorHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var hit domain.VectorHit
		var headingJSON string
		if err := rows.Scan(&hit.PageID, &hit.WikiID, &hit.ChunkIndex, &headingJSON,
			&hit.Content, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("scanning vector hit: %w", err)
		}
		if hit.HeadingPath, err = decodeStrings(headingJSON); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vector hits: %w", err)
	}
	return hits, nil
}

// PrimaryEmbeddings mean-pools each completed page's chunks into one vector.
func (v *vectorIndex) PrimaryEmbeddings(ctx context.Context, wikiID string) ([]domain.PrimaryEmbedding, error) {
	rows, err := v.store.db.QueryContext(ctx, `
		SELECT e.page_id, e.vector
		FROM page_embeddings e
		JOIN pages p ON p.id = e.page_id
		WHERE p.wiki_id = ? AND p.embedding_status = 'completed'
		ORDER BY e.page_id, e.chunk_index
	`, wikiID)
	if err != nil {
		return nil, fmt.Errorf("querying page vectors: %w", err)
	}
	defer rows.Close()

	var out []domain.PrimaryEmbedding
	var current string
	var chunks [][]float32
	flush := func() {
		if current != "" && len(chunks) > 0 {
			out = append(out, domain.PrimaryEmbedding{PageID: current, Vector: domain.MeanPool(chunks)})
		}
	}
	for rows.Next() {
		var pageID string
		var blob []byte
		if err := rows.Scan(&pageID, &blob); err != nil {
			return nil, fmt.Errorf("scanning page vector: %w", err)
		}
		if pageID != current {
			flush()
			current = pageID
			chunks = nil
		}
		chunks = append(chunks, bytesToFloat32Slice(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating page vectors: %w", err)
	}
	flush()
	return out, nil
}

// Dimension returns the stored vector length, or 0 for an empty index.
func (v *vectorIndex) Dimension(ctx context.Context) (int, error) {
	var dim int
	err := v.store.db.QueryRowContext(ctx, "SELECT dimension FROM page_embeddings LIMIT 1").Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading dimension: %w", err)
	}
	return dim, nil
}

// replaceEmbeddingsTx deletes and re-inserts a page's embeddings inside tx.
// Every vector must match the dimension already stored for other pages.
func replaceEmbeddingsTx(ctx context.Context, tx *sql.Tx, pageID, wikiID string, embeddings []domain.PageEmbedding) error {
	dim := len(embeddings[0].Vector)
	for _, e := range embeddings {
		if len(e.Vector) != dim || dim == 0 {
			return fmt.Errorf("%w: page %s has mixed chunk dimensions", domain.ErrInvalidInput, pageID)
		}
	}

	var stored int
	err := tx.QueryRowContext(ctx,
		"SELECT dimension FROM page_embeddings WHERE page_id != ? LIMIT 1", pageID).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading dimension: %w", err)
	}
	if stored != 0 && stored != dim {
		return &domain.DimensionMismatchError{Stored: stored, Query: dim}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM page_embeddings WHERE page_id = ?", pageID); err != nil {
		return fmt.Errorf("deleting embeddings: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO page_embeddings (page_id, wiki_id, chunk_index, heading_path, content,
			vector, dimension, model_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range embeddings {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.ExecContext(ctx, pageID, wikiID, e.ChunkIndex, encodeStrings(e.HeadingPath),
			e.Content, float32SliceToBytes(e.Vector), dim, e.ModelName, createdAt); err != nil {
			return fmt.Errorf("inserting embedding %d: %w", e.ChunkIndex, err)
		}
	}
	return nil
}
