package play

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"trivia-service/internal/domain"
)

// SinglePlayer drives one user through the games and questions of a match.
// Every operation takes the store of the current transaction.
type SinglePlayer struct {
	userID int64
	match  *domain.Match
	now    func() time.Time

	games     *GameFactory
	questions *QuestionFactory
	current   *domain.Reaction
}

func NewSinglePlayer(userID int64, match *domain.Match) *SinglePlayer {
	return NewSinglePlayerWithClock(userID, match, time.Now)
}

// NewSinglePlayerWithClock allows deterministic timestamps in tests.
func NewSinglePlayerWithClock(userID int64, match *domain.Match, now func() time.Time) *SinglePlayer {
	return &SinglePlayer{userID: userID, match: match, now: now}
}

// Start serves the first question the user has not seen yet and records it as displayed.
func (p *SinglePlayer) Start(ctx context.Context, tx Store) (*domain.Question, error) {
	used, err := tx.CountRankings(ctx, p.userID, p.match.ID)
	if err != nil {
		return nil, err
	}
	if p.match.LeftAttempts(used) == 0 {
		return nil, fmt.Errorf("%w: user %d has no attempts left for match %s", domain.ErrMatchNotPlayable, p.userID, p.match.Name)
	}
	if !p.match.IsActive(p.now()) {
		return nil, domain.ErrMatchExpired
	}
	if p.match.QuestionsCount() == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmptyMatch, p.match.Name)
	}

	status := NewPlayerStatus(tx, p.userID, p.match)
	completed, err := status.GamesCompleted(ctx)
	if err != nil {
		return nil, err
	}
	p.games = NewGameFactory(p.match, completed...)
	p.questions = nil
	p.current = nil

	question, err := p.Forward(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := p.display(ctx, tx, question); err != nil {
		return nil, err
	}
	return question, nil
}

// React records answer on the open reaction and moves to the next question.
// It returns domain.ErrMatchOver once the last question was answered; the answer
// is already written then, so the caller must still commit the transaction.
func (p *SinglePlayer) React(ctx context.Context, tx Store, answer *domain.Answer) (*domain.Question, error) {
	if !p.match.IsActive(p.now()) {
		return nil, domain.ErrMatchExpired
	}
	if p.current == nil {
		if err := p.restore(ctx, tx, answer); err != nil {
			return nil, err
		}
	}
	if p.current.QuestionID != answer.QuestionID {
		return nil, fmt.Errorf("%w: answer %d, question %d", domain.ErrAnswerMismatch, answer.ID, p.current.QuestionID)
	}

	question, ok := p.match.Question(p.current.QuestionID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrQuestionNotFound, p.current.QuestionID)
	}
	recordAnswer(p.current, question, answer, p.now())
	if err := tx.UpdateReaction(ctx, p.current); err != nil {
		return nil, err
	}

	next, err := p.Forward(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := p.display(ctx, tx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Forward asks for the next question, moving on to the next game when the current one is over.
func (p *SinglePlayer) Forward(ctx context.Context, tx Store) (*domain.Question, error) {
	if p.games == nil {
		return nil, fmt.Errorf("%w: match %s was not started", domain.ErrMatch, p.match.Name)
	}
	if p.questions != nil {
		q, err := p.questions.Next()
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, domain.ErrGameOver) {
			return nil, err
		}
	}
	displayed, err := NewPlayerStatus(tx, p.userID, p.match).QuestionsDisplayed(ctx)
	if err != nil {
		return nil, err
	}
	for {
		game, err := p.games.Next()
		if err != nil {
			return nil, err
		}
		p.questions = NewQuestionFactory(game, displayed...)
		q, err := p.questions.Next()
		if errors.Is(err, domain.ErrGameOver) {
			continue
		}
		return q, err
	}
}

// MatchCanBeResumed reports whether a restricted match still has undisplayed questions for the user.
func (p *SinglePlayer) MatchCanBeResumed(ctx context.Context, tx Store) (bool, error) {
	reactions, err := NewPlayerStatus(tx, p.userID, p.match).AllReactions(ctx)
	if err != nil {
		return false, err
	}
	return p.match.IsRestricted && len(reactions) < p.match.QuestionsCount(), nil
}

// MatchScore is the score accumulated so far.
func (p *SinglePlayer) MatchScore(ctx context.Context, tx Store) (float64, error) {
	return NewPlayerStatus(tx, p.userID, p.match).CurrentScore(ctx)
}

func (p *SinglePlayer) MatchStarted() bool {
	return p.games != nil && p.games.MatchStarted()
}

func (p *SinglePlayer) CurrentGame() *domain.Game {
	if p.games == nil {
		return nil
	}
	return p.games.Current()
}

func (p *SinglePlayer) CurrentQuestion() *domain.Question {
	if p.questions == nil {
		return nil
	}
	return p.questions.Current()
}

// CurrentReaction is the open reaction of the question on display, if any.
func (p *SinglePlayer) CurrentReaction() *domain.Reaction {
	return p.current
}

func (p *SinglePlayer) display(ctx context.Context, tx Store, question *domain.Question) error {
	now := p.now()
	reaction := &domain.Reaction{
		MatchID:    p.match.ID,
		UserID:     p.userID,
		GameID:     p.questions.Game().ID,
		QuestionID: question.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.CreateReaction(ctx, reaction); err != nil {
		return err
	}
	p.current = reaction
	return nil
}

// restore rebuilds the in-memory state from persisted reactions, e.g. after a restart.
// The question on display is the one of the latest reaction when it is still open;
// answer must belong to it. A reaction is only created for a question never displayed.
func (p *SinglePlayer) restore(ctx context.Context, tx Store, answer *domain.Answer) error {
	status := NewPlayerStatus(tx, p.userID, p.match)
	reactions, err := status.AllReactions(ctx)
	if err != nil {
		return err
	}

	var open *domain.Reaction
	if n := len(reactions); n > 0 && reactions[n-1].Open() {
		open = reactions[n-1]
	}
	if open != nil && open.QuestionID != answer.QuestionID {
		return fmt.Errorf("%w: answer %d, question %d", domain.ErrAnswerMismatch, answer.ID, open.QuestionID)
	}
	if open == nil {
		for _, r := range reactions {
			if r.QuestionID == answer.QuestionID {
				return fmt.Errorf("%w: question %d was already played", domain.ErrAnswerMismatch, answer.QuestionID)
			}
		}
	}

	question, ok := p.match.Question(answer.QuestionID)
	if !ok || question.GameID == nil {
		return fmt.Errorf("%w: %d in match %s", domain.ErrQuestionNotFound, answer.QuestionID, p.match.Name)
	}
	game, ok := p.match.Game(*question.GameID)
	if !ok {
		return fmt.Errorf("%w: game %d in match %s", domain.ErrMatch, *question.GameID, p.match.Name)
	}

	if open == nil {
		now := p.now()
		open = &domain.Reaction{
			MatchID:    p.match.ID,
			UserID:     p.userID,
			GameID:     game.ID,
			QuestionID: question.ID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.CreateReaction(ctx, open); err != nil {
			return err
		}
	}

	played, err := status.GamesPlayed(ctx)
	if err != nil {
		return err
	}
	displayed, err := status.QuestionsDisplayed(ctx)
	if err != nil {
		return err
	}
	p.games = NewGameFactory(p.match, played...)
	p.games.resume(game)
	p.questions = NewQuestionFactory(game, displayed...)
	p.questions.current = question
	p.current = open
	return nil
}

// recordAnswer stores answer on the reaction unless the question's time limit elapsed,
// in which case the reaction is closed unanswered.
func recordAnswer(r *domain.Reaction, question *domain.Question, answer *domain.Answer, at time.Time) {
	elapsed := at.Sub(r.CreatedAt)
	limit := question.TimeLimit()
	if limit > 0 && elapsed > limit {
		r.Dirty = true
		r.UpdatedAt = at
		return
	}
	answerID := answer.ID
	r.AnswerID = &answerID
	r.AnswerTime = &at
	r.UpdatedAt = at
	r.Score = Score(answer, limit, elapsed)
}

// Score is one point for a correct answer plus, when the question is timed,
// a bonus proportional to the time left.
func Score(answer *domain.Answer, limit, elapsed time.Duration) float64 {
	if !answer.IsCorrect {
		return 0
	}
	if limit <= 0 {
		return 1
	}
	bonus := float64(limit-elapsed) / float64(limit)
	if bonus < 0 {
		bonus = 0
	}
	return 1 + math.Round(bonus*100)/100
}

// PlayScore holds the final score of a user for a match.
type PlayScore struct {
	MatchID int64
	UserID  int64
	Score   float64
}

// SaveToRanking persists the score as a new ranking.
func (s PlayScore) SaveToRanking(ctx context.Context, store Store) (*domain.Ranking, error) {
	ranking := &domain.Ranking{MatchID: s.MatchID, UserID: s.UserID, Score: s.Score}
	if err := store.CreateRanking(ctx, ranking); err != nil {
		return nil, err
	}
	return ranking, nil
}
