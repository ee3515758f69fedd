// internal/match/store.go
package match

import "sync"

// Store is the in-memory repository of active matches. One instance is
// owned by the Manager for the lifetime of the server; nothing references
// it globally. Match state never survives the process.
type Store struct {
	mu      sync.Mutex
	matches map[string]*Match
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		matches: make(map[string]*Match),
	}
}

// Put stores m under its id, reporting false when the id is already taken.
// The existing match is left untouched in that case.
func (s *Store) Put(m *Match) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.matches[m.ID]; exists {
		return false
	}
	s.matches[m.ID] = m
	return true
}

// Get retrieves a match if it exists.
func (s *Store) Get(id string) (*Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	return m, ok
}

// Delete removes the match from memory. Idempotent: retention timers and
// administrative cleanup may race, and either may find it already gone.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[id]; !ok {
		return false
	}
	delete(s.matches, id)
	return true
}

// List returns a snapshot of all active matches, for monitoring.
func (s *Store) List() []*Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Match, 0, len(s.matches))
	for _, m := range s.matches {
		out = append(out, m)
	}
	return out
}

// Len reports the number of active matches.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matches)
}
