package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"trivia-service/internal/domain"
)

func TestMatchRepositoryCaches(t *testing.T) {
	loader := &countingLoader{matches: map[int64]*domain.Match{1: sampleMatch()}}
	repo := NewMatchRepository(loader, time.Minute)

	if _, err := repo.GetMatch(context.Background(), 1); err != nil {
		t.Fatalf("get match: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetMatch(context.Background(), 1); err != nil {
		t.Fatalf("get match 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}

	repo.Invalidate(context.Background(), 1)
	if _, err := repo.GetMatch(context.Background(), 1); err != nil {
		t.Fatalf("get match 3: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidation, loader calls %d", loader.calls)
	}
}

func TestMatchRepositoryExpires(t *testing.T) {
	loader := &countingLoader{matches: map[int64]*domain.Match{1: sampleMatch()}}
	repo := NewMatchRepository(loader, time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetMatch(context.Background(), 1)
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetMatch(context.Background(), 1)
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls)
	}
}

func TestMatchRepositoryDoesNotCacheErrors(t *testing.T) {
	loader := &countingLoader{matches: map[int64]*domain.Match{}}
	repo := NewMatchRepository(loader, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := repo.GetMatch(context.Background(), 9); !errors.Is(err, domain.ErrMatchNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}
	if loader.calls != 2 {
		t.Fatalf("expected every miss to hit the loader, got %d", loader.calls)
	}
}

type countingLoader struct {
	matches map[int64]*domain.Match
	calls   int
}

func (l *countingLoader) LoadMatch(_ context.Context, matchID int64) (*domain.Match, error) {
	l.calls++
	m, ok := l.matches[matchID]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	return m, nil
}

func sampleMatch() *domain.Match {
	gameID := int64(2)
	return &domain.Match{
		ID:   1,
		Name: "capitals",
		Games: []*domain.Game{{
			ID:      gameID,
			MatchID: 1,
			Index:   1,
			Questions: []*domain.Question{{
				ID:     3,
				GameID: &gameID,
				Text:   "What is the capital of Austria?",
				Answers: []*domain.Answer{
					{ID: 4, QuestionID: 3, Text: "Vienna", IsCorrect: true},
					{ID: 5, QuestionID: 3, Text: "Graz"},
				},
			}},
		}},
	}
}
