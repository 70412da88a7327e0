// Package reminder nudges learners with an active course after a period of
// inactivity. Each user has at most one reminder task.
package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/coursecraft/internal/course"
)

// Source reports whether a user should still be reminded and where.
type Source interface {
	ReminderTarget(userID string) (course.Target, bool)
}

// Notifier delivers the reminder.
type Notifier interface {
	Remind(ctx context.Context, userID string, target course.Target) error
}

type task struct {
	cancel context.CancelFunc
}

// Scheduler runs one cancellable reminder loop per user.
type Scheduler struct {
	source   Source
	notifier Notifier
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	tasks  map[string]*task
}

// New creates a scheduler that waits interval between reminders.
func New(source Source, notifier Notifier, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		source:   source,
		notifier: notifier,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(map[string]*task),
	}
}

// Start begins reminding userID, superseding any task already running for
// that user.
func (s *Scheduler) Start(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	if prev, ok := s.tasks[userID]; ok {
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{cancel: cancel}
	s.tasks[userID] = t

	s.wg.Add(1)
	go s.run(ctx, userID, t)
	slog.Debug("reminder started", "user_id", userID, "interval", s.interval)
}

// Resume starts reminders for every user the source still considers due.
func (s *Scheduler) Resume(userIDs ...string) int {
	n := 0
	for _, id := range userIDs {
		if _, ok := s.source.ReminderTarget(id); ok {
			s.Start(id)
			n++
		}
	}
	if n > 0 {
		slog.Info("reminders resumed", "count", n)
	}
	return n
}

// Stop cancels the user's reminder, if any.
func (s *Scheduler) Stop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[userID]; ok {
		t.cancel()
		delete(s.tasks, userID)
	}
}

// StopAll cancels every reminder and waits for the loops to exit. The
// scheduler cannot be restarted afterwards.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	s.cancel()
	s.tasks = make(map[string]*task)
	s.mu.Unlock()

	s.wg.Wait()
}

// Active reports whether a reminder task is running for userID.
func (s *Scheduler) Active(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[userID]
	return ok
}

// Count returns the number of running reminder tasks.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) run(ctx context.Context, userID string, t *task) {
	defer s.wg.Done()
	defer s.finish(userID, t)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		target, ok := s.source.ReminderTarget(userID)
		if !ok {
			slog.Debug("reminder finished, course no longer due", "user_id", userID)
			return
		}
		if err := s.notifier.Remind(ctx, userID, target); err != nil {
			slog.Warn("failed to send reminder", "user_id", userID, "error", err)
		}
		timer.Reset(s.interval)
	}
}

// finish forgets t unless a newer task already replaced it.
func (s *Scheduler) finish(userID string, t *task) {
	t.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[userID] == t {
		delete(s.tasks, userID)
	}
}
