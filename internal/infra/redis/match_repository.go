package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// MatchRepository caches whole match trees in Redis and falls back to a loader on cache miss.
// Each match is stored as a JSON document: SET match:{matchID} {json} EX ttl
type MatchRepository struct {
	client *redis.Client
	loader app.MatchLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewMatchRepository(client *redis.Client, loader app.MatchLoader, ttl time.Duration) *MatchRepository {
	return &MatchRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *MatchRepository) GetMatch(ctx context.Context, matchID int64) (*domain.Match, error) {
	if m, ok := r.cached(ctx, matchID); ok {
		return m, nil
	}

	result, err, _ := r.sf.Do(strconv.FormatInt(matchID, 10), func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if m, ok := r.cached(ctx, matchID); ok {
			return m, nil
		}

		match, err := r.loader.LoadMatch(ctx, matchID)
		if err != nil {
			return nil, err
		}

		payload, err := json.Marshal(match)
		if err != nil {
			return nil, err
		}
		if err := r.client.Set(ctx, r.key(matchID), payload, r.ttlWithJitter()).Err(); err != nil {
			log.Printf("cache match %d: %v", matchID, err)
		}
		return match, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Match), nil
}

// Invalidate drops the cached document so the next read reloads it.
func (r *MatchRepository) Invalidate(ctx context.Context, matchID int64) {
	if err := r.client.Del(ctx, r.key(matchID)).Err(); err != nil {
		log.Printf("invalidate match %d: %v", matchID, err)
	}
}

func (r *MatchRepository) cached(ctx context.Context, matchID int64) (*domain.Match, bool) {
	payload, err := r.client.Get(ctx, r.key(matchID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("read cached match %d: %v", matchID, err)
		}
		return nil, false
	}
	var match domain.Match
	if err := json.Unmarshal(payload, &match); err != nil {
		log.Printf("decode cached match %d: %v", matchID, err)
		return nil, false
	}
	return &match, true
}

func (r *MatchRepository) key(matchID int64) string {
	return "match:" + strconv.FormatInt(matchID, 10)
}

func (r *MatchRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
