package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"trivia-service/internal/app"
	"trivia-service/internal/auth"
	"trivia-service/internal/domain"
	"trivia-service/internal/infra/memory"
)

type services struct {
	store   *memory.Store
	users   *app.UserService
	matches *app.MatchService
	play    *app.PlayService
	tokens  *auth.Tokens
}

func newTestServices(t *testing.T) services {
	t.Helper()
	store := memory.NewStore()
	cache := memory.NewMatchRepository(store, time.Minute)
	digester, err := auth.NewDigester("test-signed-key")
	if err != nil {
		t.Fatalf("digester: %v", err)
	}
	tokens := auth.NewTokens("test-secret", time.Hour)
	return services{
		store:   store,
		users:   app.NewUserService(store, digester, tokens, "test.project"),
		matches: app.NewMatchService(store, cache),
		play:    app.NewPlayService(store, cache, memory.NewSessionStore()),
		tokens:  tokens,
	}
}

const matchYAML = `
name: Capital Cities
times: 1
games:
  - questions:
      - text: Where is London?
        answers:
          - text: UK
            correct: true
          - text: France
      - text: Where is Vienna?
        time: 30
        answers:
          - text: Austria
            correct: true
          - text: Germany
  - questions:
      - text: Where is Rome?
        answers:
          - text: Italy
          - text: Spain
`

func TestImportYAMLCreatesWholeMatch(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t)

	match, err := s.matches.ImportYAML(ctx, strings.NewReader(matchYAML))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if match.Slug != "capital-cities" {
		t.Fatalf("unexpected slug %q", match.Slug)
	}
	loaded, err := s.matches.GetBySlug(ctx, "capital-cities")
	if err != nil {
		t.Fatalf("get by slug failed: %v", err)
	}
	if len(loaded.Games) != 2 || loaded.QuestionsCount() != 3 {
		t.Fatalf("unexpected match shape: %d games, %d questions", len(loaded.Games), loaded.QuestionsCount())
	}
	rome := loaded.PlayableGames()[1].Questions[0]
	if !rome.Answers[0].IsCorrect || rome.Answers[1].IsCorrect {
		t.Fatalf("expected first answer to default to correct, got %+v", rome.Answers)
	}
}

func TestCreateMatchRejectsDuplicateNamesAndAnswers(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t)

	if _, err := s.matches.CreateMatch(ctx, app.MatchDefinition{Name: "Quiz"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := s.matches.CreateMatch(ctx, app.MatchDefinition{Name: "Quiz"}); !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("expected integrity error for duplicate name, got %v", err)
	}

	_, err := s.matches.CreateMatch(ctx, app.MatchDefinition{
		Name: "Other",
		Questions: []app.QuestionDefinition{{
			Text:    "Pick one",
			Answers: []app.AnswerDefinition{{Text: "a"}, {Text: "a"}},
		}},
	})
	if !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("expected integrity error for duplicate answers, got %v", err)
	}
	if _, err := s.matches.GetBySlug(ctx, "other"); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("failed transaction must not leave a match behind, got %v", err)
	}

	if _, err := s.matches.CreateMatch(ctx, app.MatchDefinition{Questions: []app.QuestionDefinition{{}}}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for a question without text, got %v", err)
	}
}

func TestImportTemplateQuestions(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t)

	london, err := s.matches.CreateTemplateQuestion(ctx, app.QuestionDefinition{
		Text:    "Where is London?",
		Answers: []app.AnswerDefinition{{Text: "UK", Correct: true}, {Text: "France"}},
	})
	if err != nil {
		t.Fatalf("create template failed: %v", err)
	}
	vienna, err := s.matches.CreateTemplateQuestion(ctx, app.QuestionDefinition{Text: "Where is Vienna?"})
	if err != nil {
		t.Fatalf("create template failed: %v", err)
	}
	match, err := s.matches.CreateMatch(ctx, app.MatchDefinition{Name: "Templates"})
	if err != nil {
		t.Fatalf("create match failed: %v", err)
	}
	// warm the cache so the import has to invalidate it
	if _, err := s.matches.Get(ctx, match.ID); err != nil {
		t.Fatalf("get failed: %v", err)
	}

	game, err := s.matches.ImportTemplateQuestions(ctx, match.ID, london.ID, vienna.ID)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if game.Index != 1 || len(game.Questions) != 2 {
		t.Fatalf("unexpected game %+v", game)
	}
	if game.Questions[0].ID == london.ID || game.Questions[0].Answers[0].ID == london.Answers[0].ID {
		t.Fatalf("imported questions must be copies")
	}
	loaded, err := s.matches.Get(ctx, match.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded.QuestionsCount() != 2 {
		t.Fatalf("expected the cache to serve the new game, got %d questions", loaded.QuestionsCount())
	}

	used := game.Questions[0].ID
	if _, err := s.matches.ImportTemplateQuestions(ctx, match.ID, used); !errors.Is(err, domain.ErrNotUsableQuestion) {
		t.Fatalf("expected not usable question, got %v", err)
	}

	clone, err := s.matches.CloneQuestion(ctx, used)
	if err != nil {
		t.Fatalf("clone failed: %v", err)
	}
	if !clone.IsTemplate() || len(clone.Answers) != 2 {
		t.Fatalf("expected a template clone with answers, got %+v", clone)
	}
}

func TestUserFlows(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t)

	registered, err := s.users.Register(ctx, "Player@Test.Project", "secret", "Player")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := s.users.Register(ctx, "player@test.project", "other", ""); !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("expected duplicate email to fail, got %v", err)
	}
	if _, err := s.users.Login(ctx, "player@test.project", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	logged, err := s.users.Login(ctx, "player@test.project", "secret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	id, err := s.tokens.Verify(logged.Token)
	if err != nil || id != registered.User.ID {
		t.Fatalf("expected token for user %d, got %d (%v)", registered.User.ID, id, err)
	}

	if err := s.users.ChangePassword(ctx, id, "secret", "new-secret"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	if _, err := s.users.Login(ctx, "player@test.project", "new-secret"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
	renamed, err := s.users.Rename(ctx, id, "Renamed")
	if err != nil || *renamed.Name != "Renamed" {
		t.Fatalf("rename failed: %v", err)
	}

	first, err := s.users.Signed(ctx, "someone@example.com", "tkn")
	if err != nil {
		t.Fatalf("signed failed: %v", err)
	}
	again, err := s.users.Signed(ctx, "someone@example.com", "tkn")
	if err != nil {
		t.Fatalf("signed failed: %v", err)
	}
	if first.User.ID != again.User.ID || !first.User.Signed() {
		t.Fatalf("expected the same signed user, got %d and %d", first.User.ID, again.User.ID)
	}
	if strings.Contains(first.User.Email, "someone") || !strings.HasSuffix(first.User.Email, "@test.project") {
		t.Fatalf("signed user must not store the original email, got %q", first.User.Email)
	}

	anon, err := s.users.Unsigned(ctx)
	if err != nil {
		t.Fatalf("unsigned failed: %v", err)
	}
	if !strings.HasPrefix(anon.User.Email, "uns-") || anon.User.Signed() {
		t.Fatalf("unexpected unsigned user %+v", anon.User)
	}
}

func TestPlayServiceSavesRankingWhenMatchIsOver(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t)

	match, err := s.matches.ImportYAML(ctx, strings.NewReader(matchYAML))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	player, err := s.users.Unsigned(ctx)
	if err != nil {
		t.Fatalf("unsigned failed: %v", err)
	}
	userID := player.User.ID

	result, err := s.play.Start(ctx, userID, match.ID)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	questions := 0
	for !result.MatchOver {
		questions++
		correct := result.Question.Answers[0]
		result, err = s.play.React(ctx, userID, match.ID, correct.ID)
		if err != nil {
			t.Fatalf("react failed: %v", err)
		}
	}
	if questions != 3 {
		t.Fatalf("expected 3 questions, got %d", questions)
	}
	if result.Ranking == nil || result.Ranking.Score < 3 {
		t.Fatalf("expected a ranking with at least 3 points, got %+v", result.Ranking)
	}

	rankings, err := s.matches.Rankings(ctx, match.ID)
	if err != nil {
		t.Fatalf("rankings failed: %v", err)
	}
	if len(rankings) != 1 || rankings[0].UserID != userID {
		t.Fatalf("unexpected rankings %+v", rankings)
	}

	// times: 1, so a second attempt is refused
	if _, err := s.play.Start(ctx, userID, match.ID); !errors.Is(err, domain.ErrMatchNotPlayable) {
		t.Fatalf("expected not playable, got %v", err)
	}

	status, err := s.play.Status(ctx, userID, match.ID)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.QuestionsDisplayed != 3 || status.GamesPlayed != 2 || status.Score != result.Score {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestPlayServiceDoesNotScoreReplayedAnswers(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t)

	match, err := s.matches.ImportYAML(ctx, strings.NewReader(matchYAML))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	player, err := s.users.Unsigned(ctx)
	if err != nil {
		t.Fatalf("unsigned failed: %v", err)
	}
	userID := player.User.ID

	first, err := s.play.Start(ctx, userID, match.ID)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	london := first.Question.Answers[0]
	second, err := s.play.React(ctx, userID, match.ID, london.ID)
	if err != nil {
		t.Fatalf("react failed: %v", err)
	}
	if second.Question.Text != "Where is Vienna?" {
		t.Fatalf("expected Vienna next, got %q", second.Question.Text)
	}

	// The first rejection drops the session, the second one goes through a restored player.
	for i := 0; i < 2; i++ {
		if _, err := s.play.React(ctx, userID, match.ID, london.ID); !errors.Is(err, domain.ErrAnswerMismatch) {
			t.Fatalf("replay %d: expected answer mismatch, got %v", i+1, err)
		}
	}
	status, err := s.play.Status(ctx, userID, match.ID)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Score != 1 || status.QuestionsDisplayed != 2 {
		t.Fatalf("replays must not change progress, got %+v", status)
	}

	third, err := s.play.React(ctx, userID, match.ID, second.Question.Answers[0].ID)
	if err != nil {
		t.Fatalf("react to Vienna failed: %v", err)
	}
	if third.Question == nil || third.Question.Text != "Where is Rome?" {
		t.Fatalf("expected Rome after Vienna, got %+v", third.Question)
	}
}

func TestPlayServiceRejectsUnknownAnswer(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t)

	match, err := s.matches.ImportYAML(ctx, strings.NewReader(matchYAML))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	player, _ := s.users.Unsigned(ctx)
	if _, err := s.play.React(ctx, player.User.ID, match.ID, 999999); !errors.Is(err, domain.ErrAnswerNotFound) {
		t.Fatalf("expected answer not found, got %v", err)
	}
	if _, err := s.play.Start(ctx, 424242, match.ID); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
	if _, err := s.play.Start(ctx, player.User.ID, 424242); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("expected match not found, got %v", err)
	}
}

func TestDeletingUserDropsResults(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t)

	match, _ := s.matches.CreateMatch(ctx, app.MatchDefinition{
		Name:      "Single",
		Questions: []app.QuestionDefinition{{Text: "Q", Answers: []app.AnswerDefinition{{Text: "A"}}}},
	})
	player, _ := s.users.Unsigned(ctx)
	res, err := s.play.Start(ctx, player.User.ID, match.ID)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := s.play.React(ctx, player.User.ID, match.ID, res.Question.Answers[0].ID); err != nil {
		t.Fatalf("react failed: %v", err)
	}
	if err := s.users.Delete(ctx, player.User.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	rankings, err := s.matches.Rankings(ctx, match.ID)
	if err != nil {
		t.Fatalf("rankings failed: %v", err)
	}
	if len(rankings) != 0 {
		t.Fatalf("expected rankings to cascade, got %+v", rankings)
	}
}
