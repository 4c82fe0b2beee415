package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Cluster is a group of pages from one wiki with nearby embeddings.
// Clusters are replaced wholesale by each clustering run.
type Cluster struct {
	// ID is unique across generations.
	ID string `json:"id"`

	// WikiID is the wiki the cluster was computed for.
	WikiID string `json:"wiki_id"`

	// Generation is the clustering run that produced the cluster.
	Generation int64 `json:"generation"`

	// MemberPageIDs is the sorted set of member pages.
	MemberPageIDs []string `json:"member_page_ids"`

	// RepresentativePageIDs are the members closest to the centroid, nearest first.
	RepresentativePageIDs []string `json:"representative_page_ids"`

	// MembershipHash fingerprints MemberPageIDs.
	MembershipHash string `json:"membership_hash"`

	// Tags is the cached tagging result, nil until the cluster is tagged.
	Tags []TagCandidate `json:"tags"`

	// TaggedAt is when Tags was cached.
	TaggedAt time.Time `json:"tagged_at,omitzero"`

	// ComputedAt is when the clustering run finished.
	ComputedAt time.Time `json:"computed_at"`
}

// IsTagged reports whether a tagging result is cached.
func (c Cluster) IsTagged() bool {
	return c.Tags != nil
}

// MembershipHash returns a stable fingerprint of a set of page IDs.
// Order of ids does not matter.
func MembershipHash(pageIDs []string) string {
	sorted := append([]string(nil), pageIDs...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}

// ClusterRun summarises one clustering run.
type ClusterRun struct {
	WikiID     string    `json:"wiki_id"`
	Generation int64     `json:"generation"`
	Pages      int       `json:"pages"`
	Clusters   []Cluster `json:"clusters"`

	// CarriedTags is the number of clusters whose tag cache survived unchanged membership.
	CarriedTags int `json:"carried_tags"`
}

// TagRun summarises tagging of a wiki's clusters.
type TagRun struct {
	WikiID   string `json:"wiki_id"`
	Clusters int    `json:"clusters"`
	Tagged   int    `json:"tagged"`
	Cached   int    `json:"cached"`
	Failed   int    `json:"failed"`
	Applied  int    `json:"applied"`
}

// ClusterTagResult is the outcome of tagging one cluster.
type ClusterTagResult struct {
	ClusterID string `json:"cluster_id"`

	// Candidates are the validated proposals above the confidence threshold.
	Candidates []TagCandidate `json:"candidates"`

	// Applied are the tags attached to the cluster's members.
	Applied []Tag `json:"applied"`

	// Cached is true when the result came from the cluster's tag cache.
	Cached bool `json:"cached"`
}
