package memory

import (
	"context"
	"sync"
	"time"

	"trivia-service/internal/app"
	"trivia-service/internal/play"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(matchID, userID int64, create func() *play.SinglePlayer) *app.Session {
	key := app.SessionKey(matchID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[key]; ok {
		return session
	}
	session := app.NewSession(create())
	s.sessions[key] = session
	return session
}

func (s *SessionStore) Delete(matchID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, app.SessionKey(matchID, userID))
}

func (s *SessionStore) EvictIdle(_ context.Context, before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for key, session := range s.sessions {
		if session.LastSeen().Before(before) {
			delete(s.sessions, key)
			evicted++
		}
	}
	return evicted
}
