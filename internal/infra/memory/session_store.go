package memory

import (
	"sync"

	"team-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRegistry.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]domain.LiveSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[int64]domain.LiveSession),
	}
}

// Set replaces the game's live session.
func (s *SessionStore) Set(session domain.LiveSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.GameID] = session
}

func (s *SessionStore) Get(gameID int64) (domain.LiveSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[gameID]
	return session, ok
}

func (s *SessionStore) Delete(gameID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, gameID)
}

// Len reports how many games have a live session.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
