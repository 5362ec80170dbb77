package app

import (
	"context"
	"errors"
	"fmt"

	"trivia-service/internal/domain"
	"trivia-service/internal/play"
)

// PlayResult is what a player sees after a play request.
type PlayResult struct {
	Question          *domain.Question `json:"question,omitempty"`
	MatchOver         bool             `json:"matchOver"`
	MatchCanBeResumed bool             `json:"matchCanBeResumed"`
	Score             float64          `json:"score"`
	Ranking           *domain.Ranking  `json:"ranking,omitempty"`
}

// PlayStatus summarizes the progress of a user in a match.
type PlayStatus struct {
	MatchID            int64   `json:"matchId"`
	QuestionsDisplayed int     `json:"questionsDisplayed"`
	QuestionsCount     int     `json:"questionsCount"`
	GamesPlayed        int     `json:"gamesPlayed"`
	Score              float64 `json:"score"`
	MatchCanBeResumed  bool    `json:"matchCanBeResumed"`
}

// PlayService runs single-player requests, one transaction per request.
type PlayService struct {
	store     Store
	matches   MatchRepository
	sessions  SessionRepository
	newPlayer func(userID int64, match *domain.Match) *play.SinglePlayer
}

func NewPlayService(store Store, matches MatchRepository, sessions SessionRepository) *PlayService {
	return &PlayService{
		store:     store,
		matches:   matches,
		sessions:  sessions,
		newPlayer: play.NewSinglePlayer,
	}
}

// WithPlayerFactory replaces how players are built; tests use it to inject a clock.
func (s *PlayService) WithPlayerFactory(f func(userID int64, match *domain.Match) *play.SinglePlayer) *PlayService {
	s.newPlayer = f
	return s
}

// Start begins or resumes the match for the user and returns the question to display.
func (s *PlayService) Start(ctx context.Context, userID, matchID int64) (PlayResult, error) {
	match, err := s.matches.GetMatch(ctx, matchID)
	if err != nil {
		return PlayResult{}, err
	}
	session := s.session(userID, match)

	var result PlayResult
	err = session.do(func(p *play.SinglePlayer) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			if _, err := tx.UserByID(ctx, userID); err != nil {
				return err
			}
			question, err := p.Start(ctx, tx)
			if errors.Is(err, domain.ErrMatchOver) {
				result.MatchOver = true
				result.Score, err = p.MatchScore(ctx, tx)
				return err
			}
			if err != nil {
				return err
			}
			result.Question = question
			if result.MatchCanBeResumed, err = p.MatchCanBeResumed(ctx, tx); err != nil {
				return err
			}
			result.Score, err = p.MatchScore(ctx, tx)
			return err
		})
	})
	if err != nil {
		s.sessions.Delete(matchID, userID)
		return PlayResult{}, err
	}
	return result, nil
}

// React records the answer and returns the next question. When the match is over
// the final score is saved to the rankings.
func (s *PlayService) React(ctx context.Context, userID, matchID, answerID int64) (PlayResult, error) {
	match, err := s.matches.GetMatch(ctx, matchID)
	if err != nil {
		return PlayResult{}, err
	}
	answer, ok := match.Answer(answerID)
	if !ok {
		return PlayResult{}, fmt.Errorf("%w: %d in match %d", domain.ErrAnswerNotFound, answerID, matchID)
	}
	session := s.session(userID, match)

	var result PlayResult
	err = session.do(func(p *play.SinglePlayer) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			question, err := p.React(ctx, tx, answer)
			if errors.Is(err, domain.ErrMatchOver) {
				score, err := p.MatchScore(ctx, tx)
				if err != nil {
					return err
				}
				ranking, err := play.PlayScore{MatchID: matchID, UserID: userID, Score: score}.SaveToRanking(ctx, tx)
				if err != nil {
					return err
				}
				result = PlayResult{MatchOver: true, Score: score, Ranking: ranking}
				return nil
			}
			if err != nil {
				return err
			}
			result.Question = question
			result.Score, err = p.MatchScore(ctx, tx)
			return err
		})
	})
	if err != nil || result.MatchOver {
		s.sessions.Delete(matchID, userID)
	}
	if err != nil {
		return PlayResult{}, err
	}
	return result, nil
}

// Status reports the persisted progress of the user in the match.
func (s *PlayService) Status(ctx context.Context, userID, matchID int64) (PlayStatus, error) {
	match, err := s.matches.GetMatch(ctx, matchID)
	if err != nil {
		return PlayStatus{}, err
	}
	status := PlayStatus{MatchID: matchID, QuestionsCount: match.QuestionsCount()}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		ps := play.NewPlayerStatus(tx, userID, match)
		displayed, err := ps.QuestionsDisplayed(ctx)
		if err != nil {
			return err
		}
		games, err := ps.GamesPlayed(ctx)
		if err != nil {
			return err
		}
		reactions, err := ps.AllReactions(ctx)
		if err != nil {
			return err
		}
		status.QuestionsDisplayed = len(displayed)
		status.GamesPlayed = len(games)
		status.MatchCanBeResumed = match.IsRestricted && len(reactions) < match.QuestionsCount()
		status.Score, err = ps.CurrentScore(ctx)
		return err
	})
	return status, err
}

func (s *PlayService) session(userID int64, match *domain.Match) *Session {
	return s.sessions.GetOrCreate(match.ID, userID, func() *play.SinglePlayer {
		return s.newPlayer(userID, match)
	})
}
