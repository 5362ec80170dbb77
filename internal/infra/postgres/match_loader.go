package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-service/internal/domain"
)

// MatchLoader reads whole match trees straight from Postgres with pgx.
type MatchLoader struct {
	pool *pgxpool.Pool
}

func NewMatchLoader(pool *pgxpool.Pool) *MatchLoader {
	return &MatchLoader{pool: pool}
}

func (l *MatchLoader) LoadMatch(ctx context.Context, matchID int64) (*domain.Match, error) {
	match := &domain.Match{}
	err := l.pool.QueryRow(ctx,
		`SELECT id, name, slug, is_restricted, ordered, times, from_time, expires_at, created_at
		   FROM matches WHERE id=$1`, matchID,
	).Scan(&match.ID, &match.Name, &match.Slug, &match.IsRestricted, &match.Ordered,
		&match.Times, &match.FromTime, &match.ExpiresAt, &match.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", domain.ErrMatchNotFound, matchID)
	}
	if err != nil {
		return nil, fmt.Errorf("load match: %w", err)
	}

	games := map[int64]*domain.Game{}
	rows, err := l.pool.Query(ctx,
		`SELECT id, match_id, "index", ordered FROM games WHERE match_id=$1 ORDER BY id`, matchID)
	if err != nil {
		return nil, fmt.Errorf("load games: %w", err)
	}
	for rows.Next() {
		g := &domain.Game{}
		if err := rows.Scan(&g.ID, &g.MatchID, &g.Index, &g.Ordered); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games[g.ID] = g
		match.Games = append(match.Games, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load games: %w", err)
	}

	questions := map[int64]*domain.Question{}
	rows, err = l.pool.Query(ctx,
		`SELECT q.id, q.game_id, q.text, q.position, q.time_limit, q.content_url, q.created_at
		   FROM questions q JOIN games g ON g.id = q.game_id
		  WHERE g.match_id=$1 ORDER BY q.id`, matchID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	for rows.Next() {
		q := &domain.Question{}
		if err := rows.Scan(&q.ID, &q.GameID, &q.Text, &q.Position, &q.Time, &q.ContentURL, &q.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions[q.ID] = q
		if g, ok := games[*q.GameID]; ok {
			g.Questions = append(g.Questions, q)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	rows, err = l.pool.Query(ctx,
		`SELECT a.id, a.question_id, a.text, a.position, a.is_correct
		   FROM answers a
		   JOIN questions q ON q.id = a.question_id
		   JOIN games g ON g.id = q.game_id
		  WHERE g.match_id=$1 ORDER BY a.id`, matchID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		a := &domain.Answer{}
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.Text, &a.Position, &a.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if q, ok := questions[a.QuestionID]; ok {
			q.Answers = append(q.Answers, a)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	return match, nil
}
