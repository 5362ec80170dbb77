package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrGameOver signals that the current game has no undisplayed questions left.
	ErrGameOver = errors.New("game over")
	// ErrMatchOver signals that the match has no unplayed games left.
	ErrMatchOver = errors.New("match over")
	// ErrGame marks misuse of a game, e.g. asking for a previous question without history.
	ErrGame = errors.New("game error")
	// ErrMatch marks misuse of a match.
	ErrMatch = errors.New("match error")
	// ErrMatchExpired is returned when acting on a match outside its active window.
	ErrMatchExpired = fmt.Errorf("%w: expired match", ErrMatch)
	// ErrMatchNotPlayable is returned when the user has no attempts left.
	ErrMatchNotPlayable = errors.New("match not playable")
	// ErrEmptyMatch is returned when starting a match with no questions.
	ErrEmptyMatch = errors.New("match has no questions")
	// ErrAnswerMismatch is returned when the answer does not belong to the question being played.
	ErrAnswerMismatch = errors.New("answer does not belong to the current question")
	// ErrNotUsableQuestion is returned when importing a question already bound to a game.
	ErrNotUsableQuestion = errors.New("question is already used by a game")
	// ErrIntegrity wraps uniqueness and foreign key violations raised by the store.
	ErrIntegrity = errors.New("integrity violation")
	// ErrInvalidInput marks requests with missing or malformed fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrUserNotFound     = errors.New("user not found")
	ErrMatchNotFound    = errors.New("match not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrAnswerNotFound   = errors.New("answer not found")
)
