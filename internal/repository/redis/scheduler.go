package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/spyword/server/internal/repository"
)

const (
	schedulerPollInterval = time.Second
	schedulerBatchSize    = 100
)

// Scheduler stores pending tasks in a single ordered set scored by due
// time in Unix seconds. Any number of workers may poll it concurrently:
// only the worker whose ZRem actually removes an entry runs it, which is
// the sole mechanism preventing duplicate execution.
type Scheduler struct {
	client   *Client
	runner   repository.TaskRunner
	interval time.Duration
}

// NewScheduler creates a scheduler over the shared task set.
func NewScheduler(client *Client, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = schedulerPollInterval
	}
	return &Scheduler{client: client, interval: interval}
}

// SetRunner attaches the game-logic re-entry point.
func (s *Scheduler) SetRunner(r repository.TaskRunner) {
	s.runner = r
}

// Schedule adds or replaces the task's entry. ZAdd on an existing member
// updates its score, which is exactly the replace-on-reschedule semantics
// the task key demands.
func (s *Scheduler) Schedule(ctx context.Context, task repository.Task, delay time.Duration) error {
	due := float64(time.Now().Add(delay).Unix())
	return s.client.rdb.ZAdd(ctx, tasksKey, redis.Z{Score: due, Member: task.Key()}).Err()
}

// Cancel removes the task's entry if present.
func (s *Scheduler) Cancel(ctx context.Context, task repository.Task) error {
	return s.client.rdb.ZRem(ctx, tasksKey, task.Key()).Err()
}

// Start polls for due tasks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("Redis task scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Redis task scheduler stopped")
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

// pollOnce pulls a bounded batch of due entries and runs the ones this
// worker successfully claims.
func (s *Scheduler) pollOnce(ctx context.Context) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	keys, err := s.client.rdb.ZRangeByScore(ctx, tasksKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: schedulerBatchSize,
	}).Result()
	if err != nil {
		log.Error().Err(err).Msg("Scheduler poll failed")
		return
	}

	for _, key := range keys {
		removed, err := s.client.rdb.ZRem(ctx, tasksKey, key).Result()
		if err != nil {
			log.Error().Err(err).Str("task", key).Msg("Task claim failed")
			continue
		}
		if removed == 0 {
			// Another worker claimed it first.
			continue
		}
		task, err := repository.ParseTaskKey(key)
		if err != nil {
			log.Error().Err(err).Str("task", key).Msg("Dropping malformed task entry")
			continue
		}
		if s.runner == nil {
			log.Error().Str("task", key).Msg("No task runner attached, dropping task")
			continue
		}
		if err := s.runner.RunTask(ctx, task); err != nil {
			log.Error().Err(err).Str("task", key).Msg("Task dispatch failed")
		}
	}
}
