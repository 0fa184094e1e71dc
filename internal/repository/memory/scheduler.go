package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spyword/server/internal/repository"
)

const defaultPollInterval = 250 * time.Millisecond

type pendingTask struct {
	task repository.Task
	due  time.Time
}

// Scheduler is the in-process delay queue: a table of key -> (task, due).
// A dedicated loop wakes on a short fixed interval and dispatches whatever
// is due. Removal from the table is the ownership handoff: a task is
// deleted before it runs, so it can never run twice.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]pendingTask

	runner   repository.TaskRunner
	interval time.Duration
	now      func() time.Time
}

// NewScheduler creates a scheduler polling on interval (<=0 uses the
// default). The runner is attached separately to break the construction
// cycle with the services that both schedule and handle tasks.
func NewScheduler(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Scheduler{
		pending:  make(map[string]pendingTask),
		interval: interval,
		now:      time.Now,
	}
}

// SetRunner attaches the game-logic re-entry point.
func (s *Scheduler) SetRunner(r repository.TaskRunner) {
	s.runner = r
}

// Schedule records the task for execution after delay. Scheduling an
// already-pending key replaces its due time.
func (s *Scheduler) Schedule(_ context.Context, task repository.Task, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[task.Key()] = pendingTask{task: task, due: s.now().Add(delay)}
	return nil
}

// Cancel removes a pending task by key. Cancelling an absent key is a no-op.
func (s *Scheduler) Cancel(_ context.Context, task repository.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, task.Key())
	return nil
}

// PendingCount returns the number of queued tasks.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Start runs the dispatch loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("In-memory task scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("In-memory task scheduler stopped")
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// dispatchDue atomically removes every due task, then runs them outside the
// table lock.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []repository.Task
	for key, p := range s.pending {
		if !p.due.After(now) {
			due = append(due, p.task)
			delete(s.pending, key)
		}
	}
	s.mu.Unlock()

	for _, task := range due {
		if s.runner == nil {
			log.Error().Str("task", task.Key()).Msg("No task runner attached, dropping task")
			continue
		}
		if err := s.runner.RunTask(ctx, task); err != nil {
			// Dropped, not retried: timeout handlers re-derive from room
			// state, so a lost task self-heals on the next trigger.
			log.Error().Err(err).Str("task", task.Key()).Msg("Task dispatch failed")
		}
	}
}
