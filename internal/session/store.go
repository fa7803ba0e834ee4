// Package session keeps the in-progress purchase selections of each user.
// Nothing here is persisted; a restart sends every user back to the start.
package session

import "sync"

type State struct {
	SelectedTier      string
	PaymentMethod     string
	AwaitingReference bool
}

type Store struct {
	mu       sync.RWMutex
	sessions map[int64]State
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[int64]State),
	}
}

// Get returns the zero State for unknown users.
func (s *Store) Get(userID int64) State {
	s.mu.RLock()
	state := s.sessions[userID]
	s.mu.RUnlock()
	return state
}

func (s *Store) Set(userID int64, state State) {
	s.mu.Lock()
	s.sessions[userID] = state
	s.mu.Unlock()
}

func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}
