package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"trivia-service/internal/app"
	"trivia-service/internal/auth"
	"trivia-service/internal/domain"
	"trivia-service/internal/infra/postgres"
	infraredis "trivia-service/internal/infra/redis"
)

const matchYAML = `
name: Capitals
times: 1
games:
  - questions:
      - text: Capital of France?
        time: 30
        answers:
          - text: Paris
            correct: true
          - text: Lyon
      - text: Capital of Italy?
        answers:
          - text: Milan
          - text: Rome
            correct: true
  - questions:
      - text: Capital of Spain?
        answers:
          - text: Madrid
            correct: true
          - text: Seville
`

type env struct {
	db      *bun.DB
	store   *postgres.Store
	users   *app.UserService
	matches *app.MatchService
	play    *app.PlayService
	redis   *goredis.Client
}

func setup(t *testing.T, ctx context.Context) *env {
	t.Helper()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	db := postgres.Open(pgURL)
	t.Cleanup(func() { _ = db.Close() })
	if err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	digester, err := auth.NewDigester("integration-key")
	if err != nil {
		t.Fatalf("digester: %v", err)
	}
	store := postgres.NewStore(db)
	matchRepo := infraredis.NewMatchRepository(redisClient, postgres.NewMatchLoader(pool), 5*time.Minute)
	sessions := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	return &env{
		db:      db,
		store:   store,
		users:   app.NewUserService(store, digester, auth.NewTokens("integration-secret", time.Hour), "trivia.test"),
		matches: app.NewMatchService(store, matchRepo),
		play:    app.NewPlayService(store, matchRepo, sessions),
		redis:   redisClient,
	}
}

func TestPlayMatchEndToEnd(t *testing.T) {
	ctx := context.Background()
	e := setup(t, ctx)

	match, err := e.matches.ImportYAML(ctx, strings.NewReader(matchYAML))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if match.Slug != "capitals" {
		t.Fatalf("expected slug capitals, got %q", match.Slug)
	}
	user, err := e.users.Register(ctx, "alice@example.com", "secret", "Alice")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := e.play.Start(ctx, user.User.ID, match.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if n, err := e.redis.Exists(ctx, fmt.Sprintf("match:%d", match.ID)).Result(); err != nil || n != 1 {
		t.Fatalf("expected match cached in redis, got %d (%v)", n, err)
	}

	answered := 0
	for !res.MatchOver {
		if res.Question == nil {
			t.Fatalf("expected a question, got %+v", res)
		}
		var correct *domain.Answer
		for _, a := range res.Question.Answers {
			if a.IsCorrect {
				correct = a
			}
		}
		res, err = e.play.React(ctx, user.User.ID, match.ID, correct.ID)
		if err != nil {
			t.Fatalf("react: %v", err)
		}
		answered++
	}
	if answered != 3 {
		t.Fatalf("expected 3 questions, answered %d", answered)
	}
	if res.Ranking == nil || res.Ranking.Score < 3 {
		t.Fatalf("expected a ranking with score of at least 3, got %+v", res.Ranking)
	}

	rankings, err := e.matches.Rankings(ctx, match.ID)
	if err != nil {
		t.Fatalf("rankings: %v", err)
	}
	if len(rankings) != 1 || rankings[0].UserID != user.User.ID {
		t.Fatalf("expected one ranking for alice, got %+v", rankings)
	}

	if _, err := e.play.Start(ctx, user.User.ID, match.ID); !errors.Is(err, domain.ErrMatchNotPlayable) {
		t.Fatalf("expected match not playable after the only attempt, got %v", err)
	}

	if err := e.users.Delete(ctx, user.User.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	count, err := e.db.NewSelect().Model((*domain.Ranking)(nil)).Where("match_id = ?", match.ID).Count(ctx)
	if err != nil {
		t.Fatalf("count rankings: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rankings removed with the user, got %d", count)
	}
}

func TestDuplicateRowsAreIntegrityErrors(t *testing.T) {
	ctx := context.Background()
	e := setup(t, ctx)

	match, err := e.matches.ImportYAML(ctx, strings.NewReader(matchYAML))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := e.matches.ImportYAML(ctx, strings.NewReader(matchYAML)); !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("expected integrity error for a duplicate match name, got %v", err)
	}

	user, err := e.users.Unsigned(ctx)
	if err != nil {
		t.Fatalf("unsigned: %v", err)
	}
	game := match.Games[0]
	question := game.Questions[0]
	now := time.Now().UTC().Truncate(time.Microsecond)
	reaction := func() *domain.Reaction {
		return &domain.Reaction{
			MatchID:    match.ID,
			GameID:     game.ID,
			QuestionID: question.ID,
			UserID:     user.User.ID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	err = e.store.WithTx(ctx, func(ctx context.Context, tx app.Tx) error {
		return tx.CreateReaction(ctx, reaction())
	})
	if err != nil {
		t.Fatalf("first reaction: %v", err)
	}
	err = e.store.WithTx(ctx, func(ctx context.Context, tx app.Tx) error {
		return tx.CreateReaction(ctx, reaction())
	})
	if !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("expected integrity error for a duplicate reaction, got %v", err)
	}
}

func TestSweeperQueryMarksReactionsOfExpiredMatches(t *testing.T) {
	ctx := context.Background()
	e := setup(t, ctx)

	expires := time.Now().Add(time.Hour)
	match, err := e.matches.CreateMatch(ctx, app.MatchDefinition{
		Name:      "Short lived",
		ExpiresAt: &expires,
		Questions: []app.QuestionDefinition{
			{Text: "1 + 1?", Answers: []app.AnswerDefinition{{Text: "2", Correct: true}, {Text: "3"}}},
		},
	})
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	user, err := e.users.Unsigned(ctx)
	if err != nil {
		t.Fatalf("unsigned: %v", err)
	}
	if _, err := e.play.Start(ctx, user.User.ID, match.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	sweep := func(now time.Time) int {
		t.Helper()
		var marked int
		err := e.store.WithTx(ctx, func(ctx context.Context, tx app.Tx) error {
			var err error
			marked, err = tx.MarkExpiredReactionsDirty(ctx, now)
			return err
		})
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		return marked
	}
	if n := sweep(time.Now()); n != 0 {
		t.Fatalf("expected nothing marked before expiry, got %d", n)
	}
	if n := sweep(expires.Add(time.Minute)); n != 1 {
		t.Fatalf("expected the open reaction marked, got %d", n)
	}
	if n := sweep(expires.Add(2 * time.Minute)); n != 0 {
		t.Fatalf("expected second sweep to be a no-op, got %d", n)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
