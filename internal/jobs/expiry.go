package jobs

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"trivia-service/internal/app"
)

// ExpirySweeper periodically flags the unanswered reactions of expired matches as dirty
// and drops play sessions idle for longer than idle.
type ExpirySweeper struct {
	store    app.Store
	sessions app.SessionRepository
	interval time.Duration
	idle     time.Duration
	now      func() time.Time
	sched    gocron.Scheduler
}

func NewExpirySweeper(store app.Store, sessions app.SessionRepository, interval, idle time.Duration) *ExpirySweeper {
	return &ExpirySweeper{store: store, sessions: sessions, interval: interval, idle: idle, now: time.Now}
}

// Start schedules the sweep every interval. Stop it with Shutdown.
func (s *ExpirySweeper) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			defer cancel()
			if _, err := s.Sweep(ctx); err != nil {
				log.Printf("[sweeper] %v", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return err
	}
	sched.Start()
	s.sched = sched
	log.Printf("[sweeper] running every %s", s.interval)
	return nil
}

// Sweep runs a single pass and returns how many reactions were flagged.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	if evicted := s.sessions.EvictIdle(ctx, now.Add(-s.idle)); evicted > 0 {
		log.Printf("[sweeper] evicted %d idle sessions", evicted)
	}

	var marked int
	err := s.store.WithTx(ctx, func(ctx context.Context, tx app.Tx) error {
		var err error
		marked, err = tx.MarkExpiredReactionsDirty(ctx, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	if marked > 0 {
		log.Printf("[sweeper] marked %d reactions of expired matches as dirty", marked)
	}
	return marked, nil
}

func (s *ExpirySweeper) Shutdown() error {
	if s.sched == nil {
		return nil
	}
	return s.sched.Shutdown()
}
