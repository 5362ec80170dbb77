package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. It enforces the same
// uniqueness and foreign key rules as the Postgres schema.
type Store struct {
	mu sync.Mutex
	st *state
}

type state struct {
	seq       int64
	users     map[int64]domain.User
	matches   map[int64]domain.Match
	games     map[int64]domain.Game
	questions map[int64]domain.Question
	answers   map[int64]domain.Answer
	reactions map[int64]domain.Reaction
	rankings  map[int64]domain.Ranking
}

func NewStore() *Store {
	return &Store{st: &state{
		users:     make(map[int64]domain.User),
		matches:   make(map[int64]domain.Match),
		games:     make(map[int64]domain.Game),
		questions: make(map[int64]domain.Question),
		answers:   make(map[int64]domain.Answer),
		reactions: make(map[int64]domain.Reaction),
		rankings:  make(map[int64]domain.Ranking),
	}}
}

// WithTx runs fn under the store lock and restores the previous state if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, &tx{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// LoadMatch implements app.MatchLoader.
func (s *Store) LoadMatch(_ context.Context, matchID int64) (*domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.st.matches[matchID]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	match := m
	match.Games = nil
	for _, g := range s.st.games {
		if g.MatchID != matchID {
			continue
		}
		game := g
		game.Questions = nil
		for _, q := range s.st.questions {
			if q.GameID == nil || *q.GameID != game.ID {
				continue
			}
			game.Questions = append(game.Questions, s.st.questionWithAnswers(q))
		}
		sort.Slice(game.Questions, func(i, j int) bool { return game.Questions[i].ID < game.Questions[j].ID })
		match.Games = append(match.Games, &game)
	}
	sort.Slice(match.Games, func(i, j int) bool { return match.Games[i].ID < match.Games[j].ID })
	return &match, nil
}

func (st *state) clone() *state {
	c := &state{
		seq:       st.seq,
		users:     make(map[int64]domain.User, len(st.users)),
		matches:   make(map[int64]domain.Match, len(st.matches)),
		games:     make(map[int64]domain.Game, len(st.games)),
		questions: make(map[int64]domain.Question, len(st.questions)),
		answers:   make(map[int64]domain.Answer, len(st.answers)),
		reactions: make(map[int64]domain.Reaction, len(st.reactions)),
		rankings:  make(map[int64]domain.Ranking, len(st.rankings)),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.matches {
		c.matches[k] = v
	}
	for k, v := range st.games {
		c.games[k] = v
	}
	for k, v := range st.questions {
		c.questions[k] = v
	}
	for k, v := range st.answers {
		c.answers[k] = v
	}
	for k, v := range st.reactions {
		c.reactions[k] = v
	}
	for k, v := range st.rankings {
		c.rankings[k] = v
	}
	return c
}

func (st *state) nextID() int64 {
	st.seq++
	return st.seq
}

func (st *state) questionWithAnswers(q domain.Question) *domain.Question {
	question := q
	question.Answers = nil
	for _, a := range st.answers {
		if a.QuestionID == q.ID {
			answer := a
			question.Answers = append(question.Answers, &answer)
		}
	}
	sort.Slice(question.Answers, func(i, j int) bool { return question.Answers[i].ID < question.Answers[j].ID })
	return &question
}

func integrity(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrIntegrity, fmt.Sprintf(format, args...))
}

// tx operates on the locked state owned by WithTx.
type tx struct {
	st *state
}

func (t *tx) CreateUser(_ context.Context, u *domain.User) error {
	for _, existing := range t.st.users {
		if existing.Email == u.Email {
			return integrity("duplicate user email %q", u.Email)
		}
	}
	u.ID = t.st.nextID()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	t.st.users[u.ID] = *u
	return nil
}

func (t *tx) UpdateUser(_ context.Context, u *domain.User) error {
	if _, ok := t.st.users[u.ID]; !ok {
		return domain.ErrUserNotFound
	}
	for id, existing := range t.st.users {
		if id != u.ID && existing.Email == u.Email {
			return integrity("duplicate user email %q", u.Email)
		}
	}
	t.st.users[u.ID] = *u
	return nil
}

func (t *tx) DeleteUser(_ context.Context, id int64) error {
	if _, ok := t.st.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(t.st.users, id)
	for rid, r := range t.st.reactions {
		if r.UserID == id {
			delete(t.st.reactions, rid)
		}
	}
	for rid, r := range t.st.rankings {
		if r.UserID == id {
			delete(t.st.rankings, rid)
		}
	}
	return nil
}

func (t *tx) UserByID(_ context.Context, id int64) (*domain.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (t *tx) UserByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range t.st.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (t *tx) UserByDigests(_ context.Context, emailDigest, tokenDigest string) (*domain.User, error) {
	for _, u := range t.st.users {
		if u.EmailDigest != nil && u.TokenDigest != nil && *u.EmailDigest == emailDigest && *u.TokenDigest == tokenDigest {
			user := u
			return &user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (t *tx) CreateMatch(_ context.Context, m *domain.Match) error {
	for _, existing := range t.st.matches {
		if existing.Name == m.Name || existing.Slug == m.Slug {
			return integrity("duplicate match %q", m.Name)
		}
	}
	m.ID = t.st.nextID()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	row := *m
	row.Games = nil
	t.st.matches[m.ID] = row
	return nil
}

func (t *tx) CreateGame(_ context.Context, g *domain.Game) error {
	if _, ok := t.st.matches[g.MatchID]; !ok {
		return integrity("game references unknown match %d", g.MatchID)
	}
	for _, existing := range t.st.games {
		if existing.MatchID == g.MatchID && existing.Index == g.Index {
			return integrity("duplicate game index %d in match %d", g.Index, g.MatchID)
		}
	}
	g.ID = t.st.nextID()
	row := *g
	row.Questions = nil
	t.st.games[g.ID] = row
	return nil
}

func (t *tx) CreateQuestion(_ context.Context, q *domain.Question) error {
	if q.GameID != nil {
		if _, ok := t.st.games[*q.GameID]; !ok {
			return integrity("question references unknown game %d", *q.GameID)
		}
	}
	seen := make(map[string]struct{}, len(q.Answers))
	for _, a := range q.Answers {
		if _, dup := seen[a.Text]; dup {
			return integrity("duplicate answer text %q", a.Text)
		}
		seen[a.Text] = struct{}{}
	}

	q.ID = t.st.nextID()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	row := *q
	row.Answers = nil
	t.st.questions[q.ID] = row
	for _, a := range q.Answers {
		a.ID = t.st.nextID()
		a.QuestionID = q.ID
		t.st.answers[a.ID] = *a
	}
	return nil
}

func (t *tx) QuestionByID(_ context.Context, id int64) (*domain.Question, error) {
	q, ok := t.st.questions[id]
	if !ok {
		return nil, domain.ErrQuestionNotFound
	}
	return t.st.questionWithAnswers(q), nil
}

func (t *tx) MatchIDBySlug(_ context.Context, slug string) (int64, error) {
	for id, m := range t.st.matches {
		if m.Slug == slug {
			return id, nil
		}
	}
	return 0, domain.ErrMatchNotFound
}

func (t *tx) NextGameIndex(_ context.Context, matchID int64) (int, error) {
	next := 1
	for _, g := range t.st.games {
		if g.MatchID == matchID && g.Index >= next {
			next = g.Index + 1
		}
	}
	return next, nil
}

func (t *tx) Rankings(_ context.Context, matchID int64) ([]*domain.Ranking, error) {
	var rankings []*domain.Ranking
	for _, r := range t.st.rankings {
		if r.MatchID == matchID {
			ranking := r
			rankings = append(rankings, &ranking)
		}
	}
	sort.Slice(rankings, func(i, j int) bool {
		if rankings[i].Score != rankings[j].Score {
			return rankings[i].Score > rankings[j].Score
		}
		if !rankings[i].CreatedAt.Equal(rankings[j].CreatedAt) {
			return rankings[i].CreatedAt.Before(rankings[j].CreatedAt)
		}
		return rankings[i].ID < rankings[j].ID
	})
	return rankings, nil
}

func (t *tx) MarkExpiredReactionsDirty(_ context.Context, now time.Time) (int, error) {
	marked := 0
	for id, r := range t.st.reactions {
		if r.Dirty || r.AnswerID != nil {
			continue
		}
		m, ok := t.st.matches[r.MatchID]
		if !ok || m.ExpiresAt == nil || m.ExpiresAt.After(now) {
			continue
		}
		r.Dirty = true
		t.st.reactions[id] = r
		marked++
	}
	return marked, nil
}

func (t *tx) CreateReaction(_ context.Context, r *domain.Reaction) error {
	if err := t.checkReaction(r); err != nil {
		return err
	}
	r.ID = t.st.nextID()
	t.st.reactions[r.ID] = *r
	return nil
}

func (t *tx) UpdateReaction(_ context.Context, r *domain.Reaction) error {
	if _, ok := t.st.reactions[r.ID]; !ok {
		return fmt.Errorf("reaction %d not found", r.ID)
	}
	if err := t.checkReaction(r); err != nil {
		return err
	}
	t.st.reactions[r.ID] = *r
	return nil
}

// checkReaction mirrors the foreign keys and the unique index of the reactions table.
// Like Postgres, a NULL answer never collides.
func (t *tx) checkReaction(r *domain.Reaction) error {
	if _, ok := t.st.matches[r.MatchID]; !ok {
		return integrity("reaction references unknown match %d", r.MatchID)
	}
	if _, ok := t.st.users[r.UserID]; !ok {
		return integrity("reaction references unknown user %d", r.UserID)
	}
	if _, ok := t.st.questions[r.QuestionID]; !ok {
		return integrity("reaction references unknown question %d", r.QuestionID)
	}
	if r.AnswerID == nil {
		return nil
	}
	if _, ok := t.st.answers[*r.AnswerID]; !ok {
		return integrity("reaction references unknown answer %d", *r.AnswerID)
	}
	for id, existing := range t.st.reactions {
		if id == r.ID || existing.AnswerID == nil {
			continue
		}
		if existing.QuestionID == r.QuestionID && *existing.AnswerID == *r.AnswerID &&
			existing.UserID == r.UserID && existing.MatchID == r.MatchID &&
			existing.CreatedAt.Equal(r.CreatedAt) {
			return integrity("duplicate reaction of user %d to question %d", r.UserID, r.QuestionID)
		}
	}
	return nil
}

func (t *tx) ReactionsOf(_ context.Context, userID, matchID int64) ([]*domain.Reaction, error) {
	var reactions []*domain.Reaction
	for _, r := range t.st.reactions {
		if r.UserID == userID && r.MatchID == matchID {
			reaction := r
			reactions = append(reactions, &reaction)
		}
	}
	sort.Slice(reactions, func(i, j int) bool {
		if !reactions[i].CreatedAt.Equal(reactions[j].CreatedAt) {
			return reactions[i].CreatedAt.Before(reactions[j].CreatedAt)
		}
		return reactions[i].ID < reactions[j].ID
	})
	return reactions, nil
}

func (t *tx) CountRankings(_ context.Context, userID, matchID int64) (int, error) {
	n := 0
	for _, r := range t.st.rankings {
		if r.UserID == userID && r.MatchID == matchID {
			n++
		}
	}
	return n, nil
}

func (t *tx) CreateRanking(_ context.Context, r *domain.Ranking) error {
	if _, ok := t.st.users[r.UserID]; !ok {
		return integrity("ranking references unknown user %d", r.UserID)
	}
	if _, ok := t.st.matches[r.MatchID]; !ok {
		return integrity("ranking references unknown match %d", r.MatchID)
	}
	r.ID = t.st.nextID()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	t.st.rankings[r.ID] = *r
	return nil
}
