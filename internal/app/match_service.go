package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"

	"trivia-service/internal/domain"
)

// MatchCache is a MatchRepository whose entries can be dropped after the content changes.
type MatchCache interface {
	MatchRepository
	Invalidate(ctx context.Context, matchID int64)
}

// MatchDefinition describes a match to create. Questions listed at the top level
// go into a single game appended after Games.
type MatchDefinition struct {
	Name       string               `yaml:"name" json:"name"`
	Restricted bool                 `yaml:"restricted" json:"restricted"`
	Ordered    *bool                `yaml:"ordered" json:"ordered"`
	Times      int                  `yaml:"times" json:"times"`
	FromTime   *time.Time           `yaml:"from" json:"fromTime"`
	ExpiresAt  *time.Time           `yaml:"expires" json:"expiresAt"`
	Games      []GameDefinition     `yaml:"games" json:"games"`
	Questions  []QuestionDefinition `yaml:"questions" json:"questions"`
}

type GameDefinition struct {
	Ordered   *bool                `yaml:"ordered" json:"ordered"`
	Questions []QuestionDefinition `yaml:"questions" json:"questions"`
}

type QuestionDefinition struct {
	Text       string             `yaml:"text" json:"text"`
	Position   int                `yaml:"position" json:"position"`
	Time       *int               `yaml:"time" json:"time"`
	ContentURL *string            `yaml:"content_url" json:"contentUrl"`
	Answers    []AnswerDefinition `yaml:"answers" json:"answers"`
}

type AnswerDefinition struct {
	Text    string `yaml:"text" json:"text"`
	Correct bool   `yaml:"correct" json:"correct"`
}

// MatchService manages match content and results.
type MatchService struct {
	store   Store
	matches MatchCache
}

func NewMatchService(store Store, matches MatchCache) *MatchService {
	return &MatchService{store: store, matches: matches}
}

// CreateMatch stores the match with all its games, questions and answers in one transaction.
func (s *MatchService) CreateMatch(ctx context.Context, def MatchDefinition) (*domain.Match, error) {
	if err := def.validate(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(def.Name)
	if name == "" {
		name = "match-" + uuid.NewString()
	}
	match := &domain.Match{
		Name:         name,
		Slug:         slug.Make(name),
		IsRestricted: def.Restricted,
		Ordered:      boolOr(def.Ordered, true),
		Times:        def.Times,
		FromTime:     def.FromTime,
		ExpiresAt:    def.ExpiresAt,
	}
	games := def.Games
	if len(def.Questions) > 0 {
		games = append(append([]GameDefinition(nil), games...), GameDefinition{Questions: def.Questions})
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.CreateMatch(ctx, match); err != nil {
			return err
		}
		for i, gd := range games {
			game := &domain.Game{MatchID: match.ID, Index: i + 1, Ordered: boolOr(gd.Ordered, true)}
			if err := tx.CreateGame(ctx, game); err != nil {
				return err
			}
			for j, qd := range gd.Questions {
				question := newQuestion(qd, j+1)
				question.GameID = &game.ID
				if err := tx.CreateQuestion(ctx, question); err != nil {
					return err
				}
				game.Questions = append(game.Questions, question)
			}
			match.Games = append(match.Games, game)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

// ImportYAML creates a match from a YAML document shaped like MatchDefinition.
func (s *MatchService) ImportYAML(ctx context.Context, r io.Reader) (*domain.Match, error) {
	var def MatchDefinition
	if err := yaml.NewDecoder(r).Decode(&def); err != nil {
		return nil, fmt.Errorf("decode match yaml: %w", err)
	}
	return s.CreateMatch(ctx, def)
}

// CreateTemplateQuestion stores a question that belongs to no game.
func (s *MatchService) CreateTemplateQuestion(ctx context.Context, def QuestionDefinition) (*domain.Question, error) {
	if strings.TrimSpace(def.Text) == "" {
		return nil, fmt.Errorf("%w: question text is required", domain.ErrInvalidInput)
	}
	question := newQuestion(def, def.Position)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateQuestion(ctx, question)
	})
	if err != nil {
		return nil, err
	}
	return question, nil
}

// ImportTemplateQuestions copies the template questions into a new game appended to the match.
func (s *MatchService) ImportTemplateQuestions(ctx context.Context, matchID int64, questionIDs ...int64) (*domain.Game, error) {
	var game *domain.Game
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		templates := make([]*domain.Question, 0, len(questionIDs))
		for _, id := range questionIDs {
			q, err := tx.QuestionByID(ctx, id)
			if err != nil {
				return err
			}
			if !q.IsTemplate() {
				return fmt.Errorf("%w: question %d", domain.ErrNotUsableQuestion, id)
			}
			templates = append(templates, q)
		}
		index, err := tx.NextGameIndex(ctx, matchID)
		if err != nil {
			return err
		}
		game = &domain.Game{MatchID: matchID, Index: index, Ordered: true}
		if err := tx.CreateGame(ctx, game); err != nil {
			return err
		}
		for i, t := range templates {
			q := cloneQuestion(t)
			q.GameID = &game.ID
			q.Position = i + 1
			if err := tx.CreateQuestion(ctx, q); err != nil {
				return err
			}
			game.Questions = append(game.Questions, q)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.matches.Invalidate(ctx, matchID)
	return game, nil
}

// CloneQuestion stores a template copy of the question with copies of its answers.
func (s *MatchService) CloneQuestion(ctx context.Context, questionID int64) (*domain.Question, error) {
	var clone *domain.Question
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		q, err := tx.QuestionByID(ctx, questionID)
		if err != nil {
			return err
		}
		clone = cloneQuestion(q)
		return tx.CreateQuestion(ctx, clone)
	})
	if err != nil {
		return nil, err
	}
	return clone, nil
}

func (s *MatchService) Get(ctx context.Context, matchID int64) (*domain.Match, error) {
	return s.matches.GetMatch(ctx, matchID)
}

func (s *MatchService) GetBySlug(ctx context.Context, matchSlug string) (*domain.Match, error) {
	var id int64
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		id, err = tx.MatchIDBySlug(ctx, matchSlug)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.matches.GetMatch(ctx, id)
}

// Rankings lists the results of a match, best score first.
func (s *MatchService) Rankings(ctx context.Context, matchID int64) ([]*domain.Ranking, error) {
	if _, err := s.matches.GetMatch(ctx, matchID); err != nil {
		return nil, err
	}
	var rankings []*domain.Ranking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		rankings, err = tx.Rankings(ctx, matchID)
		return err
	})
	return rankings, err
}

func (d MatchDefinition) validate() error {
	if d.Times < 0 {
		return fmt.Errorf("%w: times must not be negative", domain.ErrInvalidInput)
	}
	if d.FromTime != nil && d.ExpiresAt != nil && !d.FromTime.Before(*d.ExpiresAt) {
		return fmt.Errorf("%w: match window is empty", domain.ErrInvalidInput)
	}
	for _, g := range append(append([]GameDefinition(nil), d.Games...), GameDefinition{Questions: d.Questions}) {
		for _, q := range g.Questions {
			if strings.TrimSpace(q.Text) == "" {
				return fmt.Errorf("%w: question text is required", domain.ErrInvalidInput)
			}
		}
	}
	return nil
}

// newQuestion builds a question from its definition. When no answer is flagged
// correct, the first one is.
func newQuestion(def QuestionDefinition, position int) *domain.Question {
	if def.Position > 0 {
		position = def.Position
	}
	q := &domain.Question{Text: def.Text, Position: position, Time: def.Time, ContentURL: def.ContentURL}
	anyCorrect := false
	for _, a := range def.Answers {
		anyCorrect = anyCorrect || a.Correct
	}
	for i, a := range def.Answers {
		q.Answers = append(q.Answers, &domain.Answer{
			Text:      a.Text,
			Position:  i + 1,
			IsCorrect: a.Correct || (!anyCorrect && i == 0),
		})
	}
	return q
}

func cloneQuestion(q *domain.Question) *domain.Question {
	clone := &domain.Question{Text: q.Text, Position: q.Position, Time: q.Time, ContentURL: q.ContentURL}
	for _, a := range q.Answers {
		clone.Answers = append(clone.Answers, &domain.Answer{Text: a.Text, Position: a.Position, IsCorrect: a.IsCorrect})
	}
	return clone
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
