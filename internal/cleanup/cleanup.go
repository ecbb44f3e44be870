package cleanup

import (
	"context"
	"errors"
	"time"

	"github.com/heartline/matchqueue/internal/arena"
	"github.com/heartline/matchqueue/internal/limits"
	"github.com/heartline/matchqueue/internal/logger"
	"github.com/heartline/matchqueue/internal/metrics"
	"github.com/heartline/matchqueue/internal/store"
	"github.com/heartline/matchqueue/pkg/types"
	"go.uber.org/zap"
)

type Options struct {
	Interval      time.Duration
	QueueTTL      time.Duration
	RetentionDays int
}

// Report summarizes one cleanup pass.
type Report struct {
	Expired     int
	Drained     int
	UsagePurged int64
}

// Service periodically expires stale waiters, drains closed arena pools and
// purges old usage rows.
type Service struct {
	queue    store.QueueStore
	schedule *arena.Schedule
	limits   *limits.Service
	log      *zap.Logger
	opts     Options

	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(queue store.QueueStore, schedule *arena.Schedule, lim *limits.Service, log *zap.Logger, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.QueueTTL <= 0 {
		opts.QueueTTL = 30 * time.Minute
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 30
	}
	return &Service{queue: queue, schedule: schedule, limits: lim, log: log, opts: opts}
}

// Start runs a pass immediately and then on every interval until Stop.
func (s *Service) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.log.Info("starting cleanup service", zap.Duration("interval", s.opts.Interval))

	go func() {
		defer close(s.done)
		s.pass(ctx)

		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.pass(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.log.Info("stopping cleanup service")
	s.cancel()
	<-s.done
}

func (s *Service) pass(ctx context.Context) {
	if _, err := s.RunOnce(ctx, time.Now()); err != nil && ctx.Err() == nil {
		s.log.Error("cleanup pass failed", zap.Error(err))
	}
}

func (s *Service) RunOnce(ctx context.Context, now time.Time) (Report, error) {
	start := time.Now()
	var (
		rep  Report
		errs []error
	)

	cutoff := now.Add(-s.opts.QueueTTL)
	pools := []string{types.GlobalPool}
	var closed []string
	if s.schedule != nil {
		for _, a := range s.schedule.All() {
			if a.IsActive(now) {
				pools = append(pools, a.ID)
			} else {
				closed = append(closed, a.ID)
			}
		}
	}

	for _, pool := range pools {
		ids, err := s.queue.PruneStale(ctx, pool, cutoff)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(ids) > 0 {
			rep.Expired += len(ids)
			metrics.QueueExpired.WithLabelValues("stale").Add(float64(len(ids)))
			s.log.Info("expired stale waiters", logger.WithPool(pool), zap.Int("count", len(ids)))
		}
	}

	for _, pool := range closed {
		ids, err := s.queue.DrainPool(ctx, pool)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(ids) > 0 {
			rep.Drained += len(ids)
			metrics.QueueExpired.WithLabelValues("arena_closed").Add(float64(len(ids)))
			s.log.Info("drained closed arena pool", logger.WithPool(pool), zap.Int("count", len(ids)))
		}
	}

	if s.limits != nil {
		n, err := s.limits.PurgeBefore(ctx, now, s.opts.RetentionDays)
		if err != nil {
			errs = append(errs, err)
		}
		rep.UsagePurged = n
	}

	s.log.Debug("cleanup pass done",
		zap.Int("expired", rep.Expired),
		zap.Int("drained", rep.Drained),
		zap.Int64("usage_purged", rep.UsagePurged),
		zap.Duration("took", time.Since(start)),
	)
	return rep, errors.Join(errs...)
}
