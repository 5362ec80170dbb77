package play

import (
	"context"

	"trivia-service/internal/domain"
)

// Store is the persistence a player needs. Implementations are expected to be
// scoped to the current transaction.
type Store interface {
	CreateReaction(ctx context.Context, r *domain.Reaction) error
	UpdateReaction(ctx context.Context, r *domain.Reaction) error
	// ReactionsOf returns the reactions of a user to a match ordered by creation.
	ReactionsOf(ctx context.Context, userID, matchID int64) ([]*domain.Reaction, error)
	CountRankings(ctx context.Context, userID, matchID int64) (int, error)
	CreateRanking(ctx context.Context, r *domain.Ranking) error
}

// PlayerStatus derives the play state of a user in a match from persisted reactions.
type PlayerStatus struct {
	store  Store
	userID int64
	match  *domain.Match
}

func NewPlayerStatus(store Store, userID int64, match *domain.Match) *PlayerStatus {
	return &PlayerStatus{store: store, userID: userID, match: match}
}

func (s *PlayerStatus) Match() *domain.Match {
	return s.match
}

func (s *PlayerStatus) AllReactions(ctx context.Context) ([]*domain.Reaction, error) {
	return s.store.ReactionsOf(ctx, s.userID, s.match.ID)
}

// QuestionsDisplayed returns the IDs of displayed questions in display order.
func (s *PlayerStatus) QuestionsDisplayed(ctx context.Context) ([]int64, error) {
	return s.questionsDisplayed(ctx, func(*domain.Reaction) bool { return true })
}

// QuestionsDisplayedByGame is QuestionsDisplayed restricted to one game.
func (s *PlayerStatus) QuestionsDisplayedByGame(ctx context.Context, gameID int64) ([]int64, error) {
	return s.questionsDisplayed(ctx, func(r *domain.Reaction) bool { return r.GameID == gameID })
}

// GamesPlayed returns the IDs of games with at least one reaction, in play order.
func (s *PlayerStatus) GamesPlayed(ctx context.Context) ([]int64, error) {
	reactions, err := s.AllReactions(ctx)
	if err != nil {
		return nil, err
	}
	return uniqueIDs(reactions, func(r *domain.Reaction) (int64, bool) { return r.GameID, true }), nil
}

// GamesCompleted returns the played games whose questions were all displayed.
func (s *PlayerStatus) GamesCompleted(ctx context.Context) ([]int64, error) {
	reactions, err := s.AllReactions(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]map[int64]struct{})
	for _, r := range reactions {
		if seen[r.GameID] == nil {
			seen[r.GameID] = make(map[int64]struct{})
		}
		seen[r.GameID][r.QuestionID] = struct{}{}
	}
	played := uniqueIDs(reactions, func(r *domain.Reaction) (int64, bool) { return r.GameID, true })
	completed := make([]int64, 0, len(played))
	for _, id := range played {
		game, ok := s.match.Game(id)
		if ok && len(seen[id]) >= len(game.Questions) {
			completed = append(completed, id)
		}
	}
	return completed, nil
}

// CurrentScore is the sum of all reaction scores.
func (s *PlayerStatus) CurrentScore(ctx context.Context) (float64, error) {
	reactions, err := s.AllReactions(ctx)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, r := range reactions {
		total += r.Score
	}
	return total, nil
}

func (s *PlayerStatus) questionsDisplayed(ctx context.Context, keep func(*domain.Reaction) bool) ([]int64, error) {
	reactions, err := s.AllReactions(ctx)
	if err != nil {
		return nil, err
	}
	return uniqueIDs(reactions, func(r *domain.Reaction) (int64, bool) { return r.QuestionID, keep(r) }), nil
}

func uniqueIDs(reactions []*domain.Reaction, pick func(*domain.Reaction) (int64, bool)) []int64 {
	ids := make([]int64, 0, len(reactions))
	seen := make(map[int64]struct{}, len(reactions))
	for _, r := range reactions {
		id, ok := pick(r)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
