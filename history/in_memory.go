// Package history provides conversation history stores: a volatile in-memory
// implementation for tests and demos, and a Redis-backed one for deployments
// that need history to survive restarts.
package history

import (
	"sync"

	"github.com/hupe1980/deskmesh/core"
)

// InMemoryStore is a volatile core.HistoryStore keeping a bounded number of
// turns per user in a process local map. It is safe for concurrent access and
// best suited for tests or ephemeral demo bots.
type InMemoryStore struct {
	mu       sync.RWMutex
	maxTurns int
	turns    map[string][]core.HistoryEntry
}

// NewInMemoryStore constructs an empty in-memory history store keeping at
// most maxTurns entries per user (0 means 50).
func NewInMemoryStore(maxTurns int) *InMemoryStore {
	if maxTurns <= 0 {
		maxTurns = 50
	}
	return &InMemoryStore{maxTurns: maxTurns, turns: make(map[string][]core.HistoryEntry)}
}

// GetHistory returns up to limit most recent turns for the user, oldest
// first. The returned slice is a copy.
func (s *InMemoryStore) GetHistory(userID string, limit int) ([]core.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.turns[userID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]core.HistoryEntry(nil), all...), nil
}

// AddEntry appends one turn, evicting the oldest once the per-user bound is
// reached.
func (s *InMemoryStore) AddEntry(userID, content string, isGenerated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role := "user"
	if isGenerated {
		role = "assistant"
	}

	entries := append(s.turns[userID], core.HistoryEntry{Role: role, Content: content})
	if len(entries) > s.maxTurns {
		entries = entries[len(entries)-s.maxTurns:]
	}
	s.turns[userID] = entries
	return nil
}

// ClearHistory removes all turns for the user.
func (s *InMemoryStore) ClearHistory(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, userID)
	return nil
}
