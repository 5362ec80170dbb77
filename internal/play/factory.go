package play

import (
	"fmt"

	"trivia-service/internal/domain"
)

// QuestionFactory walks the questions of a single game, remembering which were displayed.
type QuestionFactory struct {
	game      *domain.Game
	displayed []int64
	current   *domain.Question
}

// NewQuestionFactory seeds the factory with already displayed question IDs, in display order.
// IDs that do not belong to the game are ignored.
func NewQuestionFactory(game *domain.Game, displayed ...int64) *QuestionFactory {
	f := &QuestionFactory{game: game}
	for _, id := range displayed {
		for _, q := range game.Questions {
			if q.ID == id && !f.wasDisplayed(id) {
				f.displayed = append(f.displayed, id)
				break
			}
		}
	}
	return f
}

// Next returns the first question not displayed yet and marks it as displayed.
func (f *QuestionFactory) Next() (*domain.Question, error) {
	for _, q := range f.game.PlayableQuestions() {
		if f.wasDisplayed(q.ID) {
			continue
		}
		f.current = q
		f.displayed = append(f.displayed, q.ID)
		return q, nil
	}
	return nil, fmt.Errorf("%w: game %d has no questions left", domain.ErrGameOver, f.game.ID)
}

// Previous returns the question displayed right before the current one.
// The reaction to the current question is kept.
func (f *QuestionFactory) Previous() (*domain.Question, error) {
	if f.current == nil || len(f.displayed) < 2 {
		msg := "no questions were displayed"
		if len(f.displayed) > 0 {
			msg = "only one question was displayed"
		}
		return nil, fmt.Errorf("%w: %s for game %d", domain.ErrGame, msg, f.game.ID)
	}
	prevID := f.displayed[len(f.displayed)-2]
	for _, q := range f.game.Questions {
		if q.ID == prevID {
			f.current = q
			return q, nil
		}
	}
	return nil, fmt.Errorf("%w: question %d is not part of game %d", domain.ErrGame, prevID, f.game.ID)
}

// Current is the question last returned by Next or Previous.
func (f *QuestionFactory) Current() *domain.Question {
	return f.current
}

// Game is the game being walked.
func (f *QuestionFactory) Game() *domain.Game {
	return f.game
}

// Displayed returns the displayed question IDs in display order.
func (f *QuestionFactory) Displayed() []int64 {
	return append([]int64(nil), f.displayed...)
}

// IsLastQuestion reports whether every question of the game was displayed.
func (f *QuestionFactory) IsLastQuestion() bool {
	return len(f.displayed) == len(f.game.Questions)
}

func (f *QuestionFactory) wasDisplayed(id int64) bool {
	for _, d := range f.displayed {
		if d == id {
			return true
		}
	}
	return false
}

// GameFactory walks the games of a match, remembering which were played.
type GameFactory struct {
	match   *domain.Match
	played  []int64
	current *domain.Game
}

func NewGameFactory(match *domain.Match, played ...int64) *GameFactory {
	return &GameFactory{match: match, played: append([]int64(nil), played...)}
}

// Next returns the first game not played yet and marks it as played.
func (f *GameFactory) Next() (*domain.Game, error) {
	for _, g := range f.match.PlayableGames() {
		if f.wasPlayed(g.ID) {
			continue
		}
		f.played = append(f.played, g.ID)
		f.current = g
		return g, nil
	}
	return nil, fmt.Errorf("%w: match %s", domain.ErrMatchOver, f.match.Name)
}

// Previous returns the game played right before the current one.
func (f *GameFactory) Previous() (*domain.Game, error) {
	if f.current == nil || len(f.played) < 2 {
		msg := "no game was played"
		if len(f.played) > 0 {
			msg = "only one game was played"
		}
		return nil, fmt.Errorf("%w: %s for match %s", domain.ErrMatch, msg, f.match.Name)
	}
	prevID := f.played[len(f.played)-2]
	if g, ok := f.match.Game(prevID); ok {
		f.current = g
		return g, nil
	}
	return nil, fmt.Errorf("%w: game %d is not part of match %s", domain.ErrMatch, prevID, f.match.Name)
}

func (f *GameFactory) Current() *domain.Game {
	return f.current
}

// MatchStarted reports whether at least one game was played.
func (f *GameFactory) MatchStarted() bool {
	return len(f.played) > 0
}

func (f *GameFactory) IsLastGame() bool {
	return len(f.played) == len(f.match.Games)
}

// resume points the factory at a game that is already marked as played.
func (f *GameFactory) resume(game *domain.Game) {
	if !f.wasPlayed(game.ID) {
		f.played = append(f.played, game.ID)
	}
	f.current = game
}

func (f *GameFactory) wasPlayed(id int64) bool {
	for _, p := range f.played {
		if p == id {
			return true
		}
	}
	return false
}
