package http

import (
	"time"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// Views keep answer correctness out of everything a player can read.

type answerView struct {
	ID       int64  `json:"id"`
	Text     string `json:"text"`
	Position int    `json:"position"`
}

type questionView struct {
	ID         int64        `json:"id"`
	GameID     *int64       `json:"gameId,omitempty"`
	Text       string       `json:"text"`
	Position   int          `json:"position"`
	Time       *int         `json:"time,omitempty"`
	ContentURL *string      `json:"contentUrl,omitempty"`
	Answers    []answerView `json:"answers"`
}

type gameView struct {
	ID        int64          `json:"id"`
	Index     int            `json:"index"`
	Ordered   bool           `json:"ordered"`
	Questions []questionView `json:"questions"`
}

type matchView struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Slug         string     `json:"slug"`
	IsRestricted bool       `json:"isRestricted"`
	Ordered      bool       `json:"ordered"`
	Times        int        `json:"times"`
	FromTime     *time.Time `json:"fromTime,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	Games        []gameView `json:"games"`
}

type playView struct {
	Question          *questionView   `json:"question,omitempty"`
	MatchOver         bool            `json:"matchOver"`
	MatchCanBeResumed bool            `json:"matchCanBeResumed"`
	Score             float64         `json:"score"`
	Ranking           *domain.Ranking `json:"ranking,omitempty"`
}

func newQuestionView(q *domain.Question) questionView {
	v := questionView{
		ID:         q.ID,
		GameID:     q.GameID,
		Text:       q.Text,
		Position:   q.Position,
		Time:       q.Time,
		ContentURL: q.ContentURL,
		Answers:    make([]answerView, 0, len(q.Answers)),
	}
	for _, a := range q.Answers {
		v.Answers = append(v.Answers, answerView{ID: a.ID, Text: a.Text, Position: a.Position})
	}
	return v
}

func newGameView(g *domain.Game) gameView {
	v := gameView{ID: g.ID, Index: g.Index, Ordered: g.Ordered, Questions: make([]questionView, 0, len(g.Questions))}
	for _, q := range g.PlayableQuestions() {
		v.Questions = append(v.Questions, newQuestionView(q))
	}
	return v
}

func newMatchView(m *domain.Match) matchView {
	v := matchView{
		ID:           m.ID,
		Name:         m.Name,
		Slug:         m.Slug,
		IsRestricted: m.IsRestricted,
		Ordered:      m.Ordered,
		Times:        m.Times,
		FromTime:     m.FromTime,
		ExpiresAt:    m.ExpiresAt,
		Games:        make([]gameView, 0, len(m.Games)),
	}
	for _, g := range m.PlayableGames() {
		v.Games = append(v.Games, newGameView(g))
	}
	return v
}

func newPlayView(r app.PlayResult) playView {
	v := playView{
		MatchOver:         r.MatchOver,
		MatchCanBeResumed: r.MatchCanBeResumed,
		Score:             r.Score,
		Ranking:           r.Ranking,
	}
	if r.Question != nil {
		q := newQuestionView(r.Question)
		v.Question = &q
	}
	return v
}
