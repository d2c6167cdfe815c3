package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/rys/internal/metrics"
)

// Sender delivers text to a chat.
type Sender interface {
	Send(ctx context.Context, chatID, text string) (string, error)
}

// Scheduler polls the store and delivers due reminders.
type Scheduler struct {
	store  *Store
	sender Sender
	poll   time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	firedMu   sync.Mutex
	lastFired map[string]time.Time // recurring job id -> minute it last fired
}

type SchedulerOption func(*Scheduler)

// WithPollInterval sets the tick period. Values <= 0 keep the 60s default.
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.poll = d
		}
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

func NewScheduler(store *Store, sender Sender, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:     store,
		sender:    sender,
		poll:      time.Minute,
		now:       time.Now,
		logger:    slog.Default(),
		lastFired: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start runs one tick immediately and then one per poll interval until Stop
// is called or ctx is cancelled. Calling Start while running does nothing; a
// loop ended by ctx cancellation may be started again.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeLocked() {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(loopCtx, s.done)
	s.logger.Info("reminder scheduler started", "interval", s.poll)
}

// Stop halts the loop and waits for an in-flight tick to finish. Calling Stop
// when not running does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.activeLocked() {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.logger.Info("reminder scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

// activeLocked reports whether the loop goroutine is alive and clears the
// handle of a loop that exited on its own. s.mu must be held.
func (s *Scheduler) activeLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		s.cancel()
		s.cancel = nil
		s.done = nil
		s.logger.Info("reminder scheduler stopped", "reason", "context done")
		return false
	default:
		return true
	}
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx, s.now()); err != nil {
			s.logger.Error("reminder tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick delivers every job due at now and returns the jobs it attempted.
// Delivery failures are logged and never stop the remaining jobs. One-shot
// jobs are removed after their attempt whatever the outcome.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) ([]Job, error) {
	due, err := s.store.DueAsOf(ctx, now)
	if err != nil {
		return nil, err
	}

	minute := minuteOf(now, s.store.Location())
	var attempted []Job
	for _, j := range due {
		if j.Recurring() && !s.markFired(j.ID, minute) {
			continue
		}
		attempted = append(attempted, j)

		_, sendErr := s.sender.Send(ctx, j.ChatID, "⏰ Reminder: "+j.Message)
		metrics.RemindersFired.WithLabelValues(j.Kind(), metrics.Outcome(sendErr)).Inc()
		if sendErr != nil {
			s.logger.Warn("reminder delivery failed", "job_id", j.ID, "chat_id", j.ChatID, "error", sendErr)
		} else {
			s.logger.Info("reminder delivered", "job_id", j.ID, "chat_id", j.ChatID, "kind", j.Kind())
		}

		if !j.Recurring() {
			if _, err := s.store.RemoveByID(ctx, j.ID, ""); err != nil {
				s.logger.Error("failed to remove fired reminder", "job_id", j.ID, "error", err)
			}
		}
	}
	return attempted, nil
}

// markFired records that job id fired in minute. It returns false when the
// job already fired in that minute.
func (s *Scheduler) markFired(id string, minute time.Time) bool {
	s.firedMu.Lock()
	defer s.firedMu.Unlock()
	for k, m := range s.lastFired {
		if m.Before(minute) {
			delete(s.lastFired, k)
		}
	}
	if m, ok := s.lastFired[id]; ok && m.Equal(minute) {
		return false
	}
	s.lastFired[id] = minute
	return true
}
