// Package sweeper runs the periodic maintenance jobs of the sync core:
// reclaiming queue items whose claim lease expired and purging expired
// offline cache entries.
package sweeper

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/dstrelkov/mobsync/internal/logging"
)

// StuckSweeper reclaims expired queue leases.
type StuckSweeper interface {
	SweepStuck(ctx context.Context) (int64, error)
}

// ExpirySweeper purges expired cache entries.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Sweeper schedules both sweep jobs on cron expressions.
type Sweeper struct {
	queue  StuckSweeper
	cache  ExpirySweeper
	logger logging.Logger

	queueSchedule string
	cacheSchedule string

	cron *cron.Cron
}

// New creates a Sweeper. Either sweeper may be nil to disable its job.
func New(queue StuckSweeper, cache ExpirySweeper, logger logging.Logger, queueSchedule, cacheSchedule string) *Sweeper {
	return &Sweeper{
		queue:         queue,
		cache:         cache,
		logger:        logger,
		queueSchedule: queueSchedule,
		cacheSchedule: cacheSchedule,
		cron:          cron.New(),
	}
}

// Start registers the jobs and starts the scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.queue != nil && s.queueSchedule != "" {
		if _, err := s.cron.AddFunc(s.queueSchedule, func() { s.sweepQueue(ctx) }); err != nil {
			return err
		}
	}
	if s.cache != nil && s.cacheSchedule != "" {
		if _, err := s.cron.AddFunc(s.cacheSchedule, func() { s.sweepCache(ctx) }); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.logger.Info(ctx, "sweeper started",
		"queue_schedule", s.queueSchedule, "cache_schedule", s.cacheSchedule)
	return nil
}

// Stop halts the scheduler; running jobs finish first.
func (s *Sweeper) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info(ctx, "sweeper stopped")
}

func (s *Sweeper) sweepQueue(ctx context.Context) {
	if _, err := s.queue.SweepStuck(ctx); err != nil {
		s.logger.Error(ctx, "queue sweep failed", "error", err)
	}
}

func (s *Sweeper) sweepCache(ctx context.Context) {
	if _, err := s.cache.SweepExpired(ctx); err != nil {
		s.logger.Error(ctx, "cache sweep failed", "error", err)
	}
}
