package redis

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-service/internal/app"
	"trivia-service/internal/play"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Players stay in a local map; Redis only marks which (match, user) pairs are
// being played on some instance, with a TTL refreshed on every access.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(matchID, userID int64, create func() *play.SinglePlayer) *app.Session {
	key := app.SessionKey(matchID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[key]
	if !ok {
		session = app.NewSession(create())
		s.sessions[key] = session
	}
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(key), "1", s.ttl).Err()
	return session
}

func (s *SessionStore) Delete(matchID, userID int64) {
	key := app.SessionKey(matchID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	_ = s.client.Del(context.Background(), s.key(key)).Err()
}

// active reports whether some instance is playing the session's match for its user.
func (s *SessionStore) active(ctx context.Context, sessionKey string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(sessionKey)).Result()
	return n > 0, err
}

// EvictIdle drops local sessions last seen before the cutoff, and those whose
// liveness key is gone because another instance finished or dropped them.
func (s *SessionStore) EvictIdle(ctx context.Context, before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for key, session := range s.sessions {
		idle := session.LastSeen().Before(before)
		if !idle {
			active, err := s.active(ctx, key)
			if err != nil {
				log.Printf("session liveness check for %s failed: %v", key, err)
				continue
			}
			idle = !active
		}
		if idle {
			delete(s.sessions, key)
			_ = s.client.Del(ctx, s.key(key)).Err()
			evicted++
		}
	}
	return evicted
}

func (s *SessionStore) key(sessionKey string) string {
	return "play:session:" + sessionKey
}
