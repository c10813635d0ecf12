// Package knowledge provides the in-memory reference implementation of the
// knowledge store contract.
package knowledge

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/deskmesh/core"
)

// InMemoryStore is a volatile core.KnowledgeStore keeping entries in a
// process local map. It is safe for concurrent access; search results are
// copies, so callers cannot mutate internal state.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*core.KnowledgeEntry
	now     func() time.Time
}

// NewInMemoryStore constructs an empty in-memory knowledge store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]*core.KnowledgeEntry),
		now:     time.Now,
	}
}

// Search returns entries matching the query, ranked by use count, then
// rating, then recency. Matching is keyword based over title, content and
// tags.
func (s *InMemoryStore) Search(q core.KnowledgeQuery) ([]core.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []core.KnowledgeEntry
	for _, e := range s.entries {
		if q.VerifiedOnly && !e.Verified {
			continue
		}
		if q.Category != "" && e.Category != q.Category {
			continue
		}
		if !hasAllTags(e.Tags, q.Tags) {
			continue
		}
		if !matchesText(e, q.Text) {
			continue
		}
		matched = append(matched, *e)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].UseCount != matched[j].UseCount {
			return matched[i].UseCount > matched[j].UseCount
		}
		if matched[i].Rating != matched[j].Rating {
			return matched[i].Rating > matched[j].Rating
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// Create stores a new entry, assigning its ID and creation time when unset.
func (s *InMemoryStore) Create(entry core.KnowledgeEntry) (core.KnowledgeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = core.NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if _, exists := s.entries[entry.ID]; exists {
		return core.KnowledgeEntry{}, fmt.Errorf("entry %s already exists", entry.ID)
	}

	stored := entry
	s.entries[entry.ID] = &stored
	return entry, nil
}

// IncrementUseCount bumps the usage counter of an entry.
func (s *InMemoryStore) IncrementUseCount(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("entry %s not found", id)
	}
	e.UseCount++
	return nil
}

// Rate folds one rating into the running mean (old*count + new)/(count+1).
func (s *InMemoryStore) Rate(id string, rating int) (core.KnowledgeEntry, error) {
	if rating < 1 || rating > 5 {
		return core.KnowledgeEntry{}, core.NewValidationError("rating", "must be between 1 and 5")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return core.KnowledgeEntry{}, fmt.Errorf("entry %s not found", id)
	}
	e.Rating = (e.Rating*float64(e.RatingCount) + float64(rating)) / float64(e.RatingCount+1)
	e.RatingCount++
	return *e, nil
}

// Verify marks an entry as verified by the given moderator.
func (s *InMemoryStore) Verify(id, moderatorID string) (core.KnowledgeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return core.KnowledgeEntry{}, fmt.Errorf("entry %s not found", id)
	}
	e.Verified = true
	e.VerifiedBy = moderatorID
	return *e, nil
}

// matchesText reports whether any query token of three or more characters
// appears in the entry's title, content or tags.
func matchesText(e *core.KnowledgeEntry, text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}

	hay := strings.ToLower(e.Title + " " + e.Content + " " + strings.Join(e.Tags, " "))
	for _, token := range strings.Fields(strings.ToLower(text)) {
		if len(token) >= 3 && strings.Contains(hay, token) {
			return true
		}
	}
	return false
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
