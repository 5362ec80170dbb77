package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// MatchRepository caches match trees with TTL to avoid reloading them on every request.
type MatchRepository struct {
	loader app.MatchLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[int64]cachedMatch
}

type cachedMatch struct {
	match     *domain.Match
	expiresAt time.Time
}

func NewMatchRepository(loader app.MatchLoader, ttl time.Duration) *MatchRepository {
	return &MatchRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedMatch),
	}
}

func (r *MatchRepository) GetMatch(ctx context.Context, matchID int64) (*domain.Match, error) {
	if m, ok := r.cached(matchID, r.clock()); ok {
		return m, nil
	}

	result, err, _ := r.sf.Do(strconv.FormatInt(matchID, 10), func() (interface{}, error) {
		now := r.clock()
		if m, ok := r.cached(matchID, now); ok {
			return m, nil
		}

		match, err := r.loader.LoadMatch(ctx, matchID)
		if err != nil {
			return nil, err
		}

		expiresAt := now.Add(r.ttlWithJitter())
		r.mu.Lock()
		r.cache[matchID] = cachedMatch{
			match:     match,
			expiresAt: expiresAt,
		}
		r.mu.Unlock()
		return match, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Match), nil
}

// Invalidate drops a cached match, e.g. after its content changed.
func (r *MatchRepository) Invalidate(_ context.Context, matchID int64) {
	r.mu.Lock()
	delete(r.cache, matchID)
	r.mu.Unlock()
}

func (r *MatchRepository) cached(matchID int64, now time.Time) (*domain.Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[matchID]
	if !ok || !entry.expiresAt.After(now) {
		return nil, false
	}
	return entry.match, true
}

func (r *MatchRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
