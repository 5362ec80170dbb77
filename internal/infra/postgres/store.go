package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// Store implements app.Store on top of bun. Every WithTx call runs in its own
// database transaction.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, btx bun.Tx) error {
		return fn(ctx, &tx{db: btx})
	})
}

// mapError turns constraint violations into domain.ErrIntegrity and missing rows into notFound.
func mapError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if notFound != nil && errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
		return fmt.Errorf("%w: %s", domain.ErrIntegrity, pgErr.Field('M'))
	}
	return err
}

// affected reports notFound when a write touched no row.
func affected(res sql.Result, err error, notFound error) error {
	if err != nil {
		return mapError(err, nil)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

type tx struct {
	db bun.IDB
}

func (t *tx) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := t.db.NewInsert().Model(u).Returning("*").Exec(ctx)
	return mapError(err, nil)
}

func (t *tx) UpdateUser(ctx context.Context, u *domain.User) error {
	res, err := t.db.NewUpdate().Model(u).ExcludeColumn("created_at").WherePK().Exec(ctx)
	return affected(res, err, domain.ErrUserNotFound)
}

func (t *tx) DeleteUser(ctx context.Context, id int64) error {
	res, err := t.db.NewDelete().Model((*domain.User)(nil)).Where("id = ?", id).Exec(ctx)
	return affected(res, err, domain.ErrUserNotFound)
}

func (t *tx) UserByID(ctx context.Context, id int64) (*domain.User, error) {
	u := new(domain.User)
	err := t.db.NewSelect().Model(u).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, mapError(err, domain.ErrUserNotFound)
	}
	return u, nil
}

func (t *tx) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u := new(domain.User)
	err := t.db.NewSelect().Model(u).Where("email = ?", email).Scan(ctx)
	if err != nil {
		return nil, mapError(err, domain.ErrUserNotFound)
	}
	return u, nil
}

func (t *tx) UserByDigests(ctx context.Context, emailDigest, tokenDigest string) (*domain.User, error) {
	u := new(domain.User)
	err := t.db.NewSelect().Model(u).
		Where("email_digest = ?", emailDigest).
		Where("token_digest = ?", tokenDigest).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, domain.ErrUserNotFound)
	}
	return u, nil
}

func (t *tx) CreateMatch(ctx context.Context, m *domain.Match) error {
	_, err := t.db.NewInsert().Model(m).Returning("*").Exec(ctx)
	return mapError(err, nil)
}

func (t *tx) CreateGame(ctx context.Context, g *domain.Game) error {
	_, err := t.db.NewInsert().Model(g).Returning("id").Exec(ctx)
	return mapError(err, nil)
}

func (t *tx) CreateQuestion(ctx context.Context, q *domain.Question) error {
	if _, err := t.db.NewInsert().Model(q).Returning("*").Exec(ctx); err != nil {
		return mapError(err, nil)
	}
	if len(q.Answers) == 0 {
		return nil
	}
	for _, a := range q.Answers {
		a.QuestionID = q.ID
	}
	_, err := t.db.NewInsert().Model(&q.Answers).Returning("id").Exec(ctx)
	return mapError(err, nil)
}

func (t *tx) QuestionByID(ctx context.Context, id int64) (*domain.Question, error) {
	q := new(domain.Question)
	err := t.db.NewSelect().Model(q).
		Relation("Answers", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("id")
		}).
		Where("q.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, domain.ErrQuestionNotFound)
	}
	return q, nil
}

func (t *tx) MatchIDBySlug(ctx context.Context, slug string) (int64, error) {
	var id int64
	err := t.db.NewSelect().Model((*domain.Match)(nil)).Column("id").Where("slug = ?", slug).Scan(ctx, &id)
	if err != nil {
		return 0, mapError(err, domain.ErrMatchNotFound)
	}
	return id, nil
}

func (t *tx) NextGameIndex(ctx context.Context, matchID int64) (int, error) {
	var next int
	err := t.db.NewSelect().Model((*domain.Game)(nil)).
		ColumnExpr(`COALESCE(MAX("index"), 0) + 1`).
		Where("match_id = ?", matchID).
		Scan(ctx, &next)
	return next, mapError(err, nil)
}

func (t *tx) Rankings(ctx context.Context, matchID int64) ([]*domain.Ranking, error) {
	var rankings []*domain.Ranking
	err := t.db.NewSelect().Model(&rankings).
		Where("match_id = ?", matchID).
		Order("score DESC", "created_at ASC", "id ASC").
		Scan(ctx)
	return rankings, mapError(err, nil)
}

func (t *tx) MarkExpiredReactionsDirty(ctx context.Context, now time.Time) (int, error) {
	expired := t.db.NewSelect().Model((*domain.Match)(nil)).Column("id").Where("expires_at <= ?", now)
	res, err := t.db.NewUpdate().Model((*domain.Reaction)(nil)).
		Set("dirty = TRUE").
		Set("updated_at = ?", now).
		Where("dirty = FALSE").
		Where("answer_id IS NULL").
		Where("match_id IN (?)", expired).
		Exec(ctx)
	if err != nil {
		return 0, mapError(err, nil)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *tx) CreateReaction(ctx context.Context, r *domain.Reaction) error {
	_, err := t.db.NewInsert().Model(r).Returning("id").Exec(ctx)
	return mapError(err, nil)
}

func (t *tx) UpdateReaction(ctx context.Context, r *domain.Reaction) error {
	res, err := t.db.NewUpdate().Model(r).WherePK().Exec(ctx)
	return affected(res, err, fmt.Errorf("reaction %d not found", r.ID))
}

func (t *tx) ReactionsOf(ctx context.Context, userID, matchID int64) ([]*domain.Reaction, error) {
	var reactions []*domain.Reaction
	err := t.db.NewSelect().Model(&reactions).
		Where("user_id = ?", userID).
		Where("match_id = ?", matchID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	return reactions, mapError(err, nil)
}

func (t *tx) CountRankings(ctx context.Context, userID, matchID int64) (int, error) {
	n, err := t.db.NewSelect().Model((*domain.Ranking)(nil)).
		Where("user_id = ?", userID).
		Where("match_id = ?", matchID).
		Count(ctx)
	return n, mapError(err, nil)
}

func (t *tx) CreateRanking(ctx context.Context, r *domain.Ranking) error {
	_, err := t.db.NewInsert().Model(r).Returning("*").Exec(ctx)
	return mapError(err, nil)
}
