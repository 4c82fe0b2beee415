package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
)

// Ensure TagStore implements the interface.
var _ driven.TagStore = (*TagStore)(nil)

// TagStore is an in-memory implementation of driven.TagStore.
// Page links are kept without checking that the pages exist.
type TagStore struct {
	mu    sync.RWMutex
	tags  map[string]domain.Tag
	links map[string]map[string]bool // pageID -> tagID set
}

// NewTagStore creates a new in-memory tag store.
func NewTagStore() *TagStore {
	return &TagStore{
		tags:  make(map[string]domain.Tag),
		links: make(map[string]map[string]bool),
	}
}

// FindTagByName looks up a tag ignoring case.
func (s *TagStore) FindTagByName(_ context.Context, wikiID, name string) (*domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tag, ok := s.findLocked(wikiID, name); ok {
		return &tag, nil
	}
	return nil, domain.ErrNotFound
}

func (s *TagStore) findLocked(wikiID, name string) (domain.Tag, bool) {
	for _, tag := range s.tags {
		if tag.WikiID == wikiID && strings.EqualFold(tag.Name, name) {
			return tag, true
		}
	}
	return domain.Tag{}, false
}

// GetOrCreateTag returns the existing tag with the same name or stores tag.
func (s *TagStore) GetOrCreateTag(_ context.Context, tag *domain.Tag) (*domain.Tag, bool, error) {
	if tag == nil || tag.WikiID == "" || tag.Name == "" {
		return nil, false, domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.findLocked(tag.WikiID, tag.Name); ok {
		return &existing, false, nil
	}
	stored := *tag
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.tags[stored.ID] = stored
	return &stored, true, nil
}

// GetTag retrieves a tag by ID.
func (s *TagStore) GetTag(_ context.Context, id string) (*domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tag, ok := s.tags[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &tag, nil
}

// ListTags returns all tags of a wiki ordered by name.
func (s *TagStore) ListTags(_ context.Context, wikiID string) ([]domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Tag
	for _, tag := range s.tags {
		if tag.WikiID == wikiID {
			result = append(result, tag)
		}
	}
	sortTags(result)
	return result, nil
}

// ListTagsForPage returns the tags attached to a page ordered by name.
func (s *TagStore) ListTagsForPage(_ context.Context, pageID string) ([]domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Tag
	for tagID := range s.links[pageID] {
		result = append(result, s.tags[tagID])
	}
	sortTags(result)
	return result, nil
}

// AttachTag links a tag to pages.
func (s *TagStore) AttachTag(_ context.Context, tagID string, pageIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tags[tagID]; !ok {
		return domain.ErrNotFound
	}
	for _, pageID := range pageIDs {
		if s.links[pageID] == nil {
			s.links[pageID] = make(map[string]bool)
		}
		s.links[pageID][tagID] = true
	}
	return nil
}

// DetachTag removes the link between a tag and a page.
func (s *TagStore) DetachTag(_ context.Context, tagID, pageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links[pageID], tagID)
	return nil
}

// SetVerified marks a tag as human-verified.
func (s *TagStore) SetVerified(_ context.Context, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag, ok := s.tags[tagID]
	if !ok {
		return domain.ErrNotFound
	}
	tag.Verified = true
	s.tags[tagID] = tag
	return nil
}

// PageIDsForTag returns the pages a tag is attached to, sorted.
func (s *TagStore) PageIDsForTag(tagID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for pageID, tags := range s.links {
		if tags[tagID] {
			ids = append(ids, pageID)
		}
	}
	sort.Strings(ids)
	return ids
}

func sortTags(tags []domain.Tag) {
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
}
