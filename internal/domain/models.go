package domain

import (
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// User is a player identity. Signed users are pseudonymized through digests.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u" json:"-"`

	ID           int64     `bun:"id,pk,autoincrement" json:"id"`
	Email        string    `bun:"email,notnull,unique" json:"email"`
	EmailDigest  *string   `bun:"email_digest" json:"-"`
	TokenDigest  *string   `bun:"token_digest" json:"-"`
	Name         *string   `bun:"name" json:"name,omitempty"`
	PasswordHash *string   `bun:"password_hash" json:"-"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// Signed reports whether the user was created through the signed (digest) flow.
func (u User) Signed() bool {
	return u.EmailDigest != nil
}

// Match is a named competition made of games.
type Match struct {
	bun.BaseModel `bun:"table:matches,alias:m" json:"-"`

	ID           int64      `bun:"id,pk,autoincrement" json:"id"`
	Name         string     `bun:"name,notnull,unique" json:"name"`
	Slug         string     `bun:"slug,notnull,unique" json:"slug"`
	IsRestricted bool       `bun:"is_restricted,notnull" json:"isRestricted"`
	Ordered      bool       `bun:"ordered,notnull" json:"ordered"`
	Times        int        `bun:"times,notnull" json:"times"` // 0 means unlimited attempts
	FromTime     *time.Time `bun:"from_time" json:"fromTime,omitempty"`
	ExpiresAt    *time.Time `bun:"expires_at" json:"expiresAt,omitempty"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`

	Games []*Game `bun:"rel:has-many,join:id=match_id" json:"games"`
}

// IsActive reports whether now falls inside the match window. Missing bounds are open.
func (m *Match) IsActive(now time.Time) bool {
	if m.FromTime != nil && now.Before(*m.FromTime) {
		return false
	}
	if m.ExpiresAt != nil && !now.Before(*m.ExpiresAt) {
		return false
	}
	return true
}

// PlayableGames returns games by index when the match is ordered, by ID otherwise.
func (m *Match) PlayableGames() []*Game {
	games := append([]*Game(nil), m.Games...)
	if m.Ordered {
		sort.SliceStable(games, func(i, j int) bool { return games[i].Index < games[j].Index })
	} else {
		sort.SliceStable(games, func(i, j int) bool { return games[i].ID < games[j].ID })
	}
	return games
}

// QuestionsCount is the number of questions across all games.
func (m *Match) QuestionsCount() int {
	n := 0
	for _, g := range m.Games {
		n += len(g.Questions)
	}
	return n
}

// LeftAttempts returns the remaining attempts given the number already used, or -1 when unlimited.
func (m *Match) LeftAttempts(used int) int {
	if m.Times <= 0 {
		return -1
	}
	if used >= m.Times {
		return 0
	}
	return m.Times - used
}

// Game looks up a game of the match.
func (m *Match) Game(id int64) (*Game, bool) {
	for _, g := range m.Games {
		if g.ID == id {
			return g, true
		}
	}
	return nil, false
}

// Question looks up a question anywhere in the match.
func (m *Match) Question(id int64) (*Question, bool) {
	for _, g := range m.Games {
		for _, q := range g.Questions {
			if q.ID == id {
				return q, true
			}
		}
	}
	return nil, false
}

// Answer looks up an answer anywhere in the match.
func (m *Match) Answer(id int64) (*Answer, bool) {
	for _, g := range m.Games {
		for _, q := range g.Questions {
			for _, a := range q.Answers {
				if a.ID == id {
					return a, true
				}
			}
		}
	}
	return nil, false
}

// Game is an ordered set of questions inside a match.
type Game struct {
	bun.BaseModel `bun:"table:games,alias:g" json:"-"`

	ID      int64 `bun:"id,pk,autoincrement" json:"id"`
	MatchID int64 `bun:"match_id,notnull" json:"matchId"`
	Index   int   `bun:"index,notnull" json:"index"`
	Ordered bool  `bun:"ordered,notnull" json:"ordered"`

	Questions []*Question `bun:"rel:has-many,join:id=game_id" json:"questions"`
}

// PlayableQuestions returns questions by position when the game is ordered, by ID otherwise.
func (g *Game) PlayableQuestions() []*Question {
	questions := append([]*Question(nil), g.Questions...)
	if g.Ordered {
		sort.SliceStable(questions, func(i, j int) bool { return questions[i].Position < questions[j].Position })
	} else {
		sort.SliceStable(questions, func(i, j int) bool { return questions[i].ID < questions[j].ID })
	}
	return questions
}

// Question is a trivia prompt. A question without a game is a template.
type Question struct {
	bun.BaseModel `bun:"table:questions,alias:q" json:"-"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	GameID     *int64    `bun:"game_id" json:"gameId,omitempty"`
	Text       string    `bun:"text,notnull" json:"text"`
	Position   int       `bun:"position,notnull" json:"position"`
	Time       *int      `bun:"time_limit" json:"time,omitempty"` // answer time limit in seconds
	ContentURL *string   `bun:"content_url" json:"contentUrl,omitempty"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`

	Answers []*Answer `bun:"rel:has-many,join:id=question_id" json:"answers"`
}

// IsTemplate reports whether the question is not bound to any game.
func (q *Question) IsTemplate() bool {
	return q.GameID == nil
}

// TimeLimit returns the answer time limit, zero when unlimited.
func (q *Question) TimeLimit() time.Duration {
	if q.Time == nil {
		return 0
	}
	return time.Duration(*q.Time) * time.Second
}

// Answer is one of the candidate responses to a question.
type Answer struct {
	bun.BaseModel `bun:"table:answers,alias:a" json:"-"`

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	QuestionID int64  `bun:"question_id,notnull" json:"questionId"`
	Text       string `bun:"text,notnull" json:"text"`
	Position   int    `bun:"position,notnull" json:"position"`
	IsCorrect  bool   `bun:"is_correct,notnull" json:"isCorrect"`
}

// Reaction is a user's response event to one question of a match.
type Reaction struct {
	bun.BaseModel `bun:"table:reactions,alias:r" json:"-"`

	ID         int64      `bun:"id,pk,autoincrement" json:"id"`
	MatchID    int64      `bun:"match_id,notnull" json:"matchId"`
	GameID     int64      `bun:"game_id,notnull" json:"gameId"`
	QuestionID int64      `bun:"question_id,notnull" json:"questionId"`
	AnswerID   *int64     `bun:"answer_id" json:"answerId,omitempty"`
	UserID     int64      `bun:"user_id,notnull" json:"userId"`
	Dirty      bool       `bun:"dirty,notnull" json:"dirty"`
	AnswerTime *time.Time `bun:"answer_time" json:"answerTime,omitempty"`
	Score      float64    `bun:"score,notnull" json:"score"`
	CreatedAt  time.Time  `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt  time.Time  `bun:"updated_at,notnull" json:"updatedAt"`
}

// Answered reports whether an answer was recorded.
func (r *Reaction) Answered() bool {
	return r.AnswerID != nil
}

// Open reports whether the reaction still waits for an answer. Late and expired
// reactions are closed by marking them dirty.
func (r *Reaction) Open() bool {
	return r.AnswerID == nil && !r.Dirty
}

// Ranking is the final score of a user for a match.
type Ranking struct {
	bun.BaseModel `bun:"table:rankings,alias:rk" json:"-"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID    int64     `bun:"user_id,notnull" json:"userId"`
	MatchID   int64     `bun:"match_id,notnull" json:"matchId"`
	Score     float64   `bun:"score,notnull" json:"score"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}
