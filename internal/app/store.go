package app

import (
	"context"
	"time"

	"trivia-service/internal/domain"
	"trivia-service/internal/play"
)

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	UpdateUser(ctx context.Context, u *domain.User) error
	// DeleteUser removes the user together with its reactions and rankings.
	DeleteUser(ctx context.Context, id int64) error
	UserByID(ctx context.Context, id int64) (*domain.User, error)
	UserByEmail(ctx context.Context, email string) (*domain.User, error)
	UserByDigests(ctx context.Context, emailDigest, tokenDigest string) (*domain.User, error)
}

// MatchStore persists match content and results.
type MatchStore interface {
	CreateMatch(ctx context.Context, m *domain.Match) error
	CreateGame(ctx context.Context, g *domain.Game) error
	// CreateQuestion inserts the question and its answers.
	CreateQuestion(ctx context.Context, q *domain.Question) error
	QuestionByID(ctx context.Context, id int64) (*domain.Question, error)
	MatchIDBySlug(ctx context.Context, slug string) (int64, error)
	NextGameIndex(ctx context.Context, matchID int64) (int, error)
	Rankings(ctx context.Context, matchID int64) ([]*domain.Ranking, error)
	// MarkExpiredReactionsDirty flags unanswered reactions of matches expired at now.
	MarkExpiredReactionsDirty(ctx context.Context, now time.Time) (int, error)
}

// Tx is the transaction-scoped view of the store handed to every use case.
type Tx interface {
	play.Store
	UserStore
	MatchStore
}

// Store opens transactions. fn's changes are committed when it returns nil and rolled back otherwise.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// MatchLoader fetches a whole match tree (games, questions, answers) from a backing store.
type MatchLoader interface {
	LoadMatch(ctx context.Context, matchID int64) (*domain.Match, error)
}

// MatchRepository serves match trees, usually from a cache in front of a MatchLoader.
type MatchRepository interface {
	GetMatch(ctx context.Context, matchID int64) (*domain.Match, error)
}
