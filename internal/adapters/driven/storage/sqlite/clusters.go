package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
)

// ==================== Cluster Store ====================

// clusterStore implements driven.ClusterStore.
type clusterStore struct {
	store *Store
}

var _ driven.ClusterStore = (*clusterStore)(nil)

// CurrentGeneration returns the latest generation for a wiki, 0 if never clustered.
func (s *clusterStore) CurrentGeneration(ctx context.Context, wikiID string) (int64, error) {
	var gen int64
	err := s.store.db.QueryRowContext(ctx,
		"SELECT generation FROM cluster_generations WHERE wiki_id = ?", wikiID).Scan(&gen)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading generation: %w", err)
	}
	return gen, nil
}

// ReplaceClusters drops the previous generation and stores the new one atomically.
func (s *clusterStore) ReplaceClusters(ctx context.Context, wikiID string, generation int64, clusters []domain.Cluster) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM clusters WHERE wiki_id = ?", wikiID); err != nil {
		return fmt.Errorf("deleting clusters: %w", err)
	}

	for i := range clusters {
		c := &clusters[i]
		tagsJSON, taggedAt, err := encodeClusterTags(c)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO clusters (id, wiki_id, generation, position, representative_page_ids,
				membership_hash, cluster_tags, tagged_at, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, wikiID, generation, i, encodeStrings(c.RepresentativePageIDs),
			c.MembershipHash, tagsJSON, taggedAt, c.ComputedAt.UTC()); err != nil {
			return fmt.Errorf("inserting cluster %s: %w", c.ID, err)
		}
		for _, pageID := range c.MemberPageIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO cluster_members (cluster_id, page_id) VALUES (?, ?)", c.ID, pageID); err != nil {
				return fmt.Errorf("inserting cluster member: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cluster_generations (wiki_id, generation) VALUES (?, ?)
		ON CONFLICT(wiki_id) DO UPDATE SET generation = excluded.generation
	`, wikiID, generation); err != nil {
		return fmt.Errorf("saving generation: %w", err)
	}

	return tx.Commit()
}

// ListClusters returns the current generation in build order.
func (s *clusterStore) ListClusters(ctx context.Context, wikiID string) ([]domain.Cluster, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, wiki_id, generation, representative_page_ids, membership_hash,
			cluster_tags, tagged_at, computed_at
		FROM clusters WHERE wiki_id = ?
		ORDER BY position
	`, wikiID)
	if err != nil {
		return nil, fmt.Errorf("querying clusters: %w", err)
	}

	var clusters []domain.Cluster //nolint:prealloc // size unknown from query
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		clusters = append(clusters, *c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating clusters: %w", err)
	}
	rows.Close()

	for i := range clusters {
		if clusters[i].MemberPageIDs, err = s.members(ctx, clusters[i].ID); err != nil {
			return nil, err
		}
	}
	return clusters, nil
}

// GetCluster retrieves a cluster by ID.
func (s *clusterStore) GetCluster(ctx context.Context, clusterID string) (*domain.Cluster, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, wiki_id, generation, representative_page_ids, membership_hash,
			cluster_tags, tagged_at, computed_at
		FROM clusters WHERE id = ?
	`, clusterID)
	c, err := scanCluster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.MemberPageIDs, err = s.members(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

// SaveClusterTags caches tags only while the membership hash still matches.
func (s *clusterStore) SaveClusterTags(ctx context.Context, clusterID, membershipHash string, tags []domain.TagCandidate) error {
	if tags == nil {
		tags = []domain.TagCandidate{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshalling cluster tags: %w", err)
	}
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE clusters SET cluster_tags = ?, tagged_at = ?
		WHERE id = ? AND membership_hash = ?
	`, string(data), time.Now().UTC(), clusterID, membershipHash)
	if err != nil {
		return fmt.Errorf("saving cluster tags: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *clusterStore) members(ctx context.Context, clusterID string) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT page_id FROM cluster_members WHERE cluster_id = ? ORDER BY page_id", clusterID)
	if err != nil {
		return nil, fmt.Errorf("querying cluster members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning cluster member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanCluster(sc rowScanner) (*domain.Cluster, error) {
	var c domain.Cluster
	var reps string
	var tagsJSON sql.NullString
	var taggedAt sql.NullTime

	if err := sc.Scan(&c.ID, &c.WikiID, &c.Generation, &reps, &c.MembershipHash,
		&tagsJSON, &taggedAt, &c.ComputedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning cluster: %w", err)
	}

	var err error
	if c.RepresentativePageIDs, err = decodeStrings(reps); err != nil {
		return nil, err
	}
	if tagsJSON.Valid {
		c.Tags = []domain.TagCandidate{}
		if err := json.Unmarshal([]byte(tagsJSON.String), &c.Tags); err != nil {
			return nil, fmt.Errorf("unmarshaling cluster tags: %w", err)
		}
	}
	if taggedAt.Valid {
		c.TaggedAt = taggedAt.Time
	}
	return &c, nil
}

// encodeClusterTags returns NULLs for an untagged cluster.
func encodeClusterTags(c *domain.Cluster) (any, any, error) {
	if c.Tags == nil {
		return nil, nil, nil
	}
	data, err := json.Marshal(c.Tags)
	if err != nil {
		return nil, nil, fmt.Errorf("marshalling cluster tags: %w", err)
	}
	taggedAt := c.TaggedAt
	if taggedAt.IsZero() {
		taggedAt = time.Now()
	}
	return string(data), taggedAt.UTC(), nil
}
