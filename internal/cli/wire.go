package cli

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"trivia-service/internal/app"
	"trivia-service/internal/auth"
	"trivia-service/internal/config"
	"trivia-service/internal/infra/memory"
	"trivia-service/internal/infra/postgres"
	infraredis "trivia-service/internal/infra/redis"
)

// dependencies holds the adapters chosen from the config: Postgres and Redis when
// configured, in-memory otherwise.
type dependencies struct {
	store    app.Store
	sessions app.SessionRepository
	users    *app.UserService
	matches  *app.MatchService
	play     *app.PlayService
	tokens   *auth.Tokens
	closers  []func()
}

func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func wire(ctx context.Context, cfg config.Config) (*dependencies, error) {
	deps := &dependencies{}

	var (
		store  app.Store
		loader app.MatchLoader
	)
	if cfg.Postgres.URL != "" {
		db := postgres.Open(cfg.Postgres.URL)
		deps.closers = append(deps.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			deps.Close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.closers = append(deps.closers, pool.Close)
		store = postgres.NewStore(db)
		loader = postgres.NewMatchLoader(pool)
	} else {
		log.Printf("postgres url not configured, using in-memory store")
		mem := memory.NewStore()
		store, loader = mem, mem
	}
	deps.store = store

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		deps.closers = append(deps.closers, func() { _ = redisClient.Close() })
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	matchTTL := config.TTLDuration(cfg.Match.TTL, 10*time.Minute)

	var matches app.MatchCache
	var sessions app.SessionRepository
	if redisClient != nil {
		matches = infraredis.NewMatchRepository(redisClient, loader, matchTTL)
		sessions = infraredis.NewSessionStore(redisClient, redisTTL)
	} else {
		matches = memory.NewMatchRepository(loader, matchTTL)
		sessions = memory.NewSessionStore()
	}

	deps.sessions = sessions

	signedKey := cfg.Auth.SignedKey
	if signedKey == "" {
		log.Printf("auth.signed_key not configured, using an insecure development key")
		signedKey = "development-signed-key"
	}
	digester, err := auth.NewDigester(signedKey)
	if err != nil {
		deps.Close()
		return nil, err
	}
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		log.Printf("auth.jwt_secret not configured, using an insecure development secret")
		secret = "development-jwt-secret"
	}
	deps.tokens = auth.NewTokens(secret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))

	deps.users = app.NewUserService(store, digester, deps.tokens, cfg.Auth.Domain)
	deps.matches = app.NewMatchService(store, matches)
	deps.play = app.NewPlayService(store, matches, sessions)
	return deps, nil
}
