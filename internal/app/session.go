package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"trivia-service/internal/play"
)

// SessionRepository keeps the in-progress players between requests (in-memory, Redis-aware, etc).
type SessionRepository interface {
	GetOrCreate(matchID, userID int64, create func() *play.SinglePlayer) *Session
	Delete(matchID, userID int64)
	// EvictIdle drops the sessions last seen before the cutoff and returns how many were dropped.
	EvictIdle(ctx context.Context, before time.Time) int
}

// Session serializes the requests of one user playing one match.
type Session struct {
	mu     sync.Mutex
	player *play.SinglePlayer

	// unix nanoseconds, readable while a request holds mu
	lastSeen atomic.Int64
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(player *play.SinglePlayer) *Session {
	s := &Session{player: player}
	s.lastSeen.Store(time.Now().UnixNano())
	return s
}

// SessionKey identifies the session of a user in a match.
func SessionKey(matchID, userID int64) string {
	return fmt.Sprintf("%d:%d", matchID, userID)
}

// LastSeen is the time of the last request handled by the session.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// do runs fn with exclusive access to the player.
func (s *Session) do(fn func(p *play.SinglePlayer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen.Store(time.Now().UnixNano())
	return fn(s.player)
}
