// Package scheduler drives the polling loop that triggers one
// orchestration cycle per interval.
package scheduler

import (
	"context"
	"time"

	"optflow/internal/logger"
)

// IntervalScheduler fires task every Interval until the context ends. The
// task itself guards against overlap; the scheduler just ticks.
type IntervalScheduler struct {
	Interval       time.Duration
	RunImmediately bool

	nowFn func() time.Time
}

func New(interval time.Duration) *IntervalScheduler {
	return &IntervalScheduler{
		Interval:       interval,
		RunImmediately: true,
		nowFn:          time.Now,
	}
}

// Start blocks running the loop. Returns when ctx is cancelled.
func (s *IntervalScheduler) Start(ctx context.Context, task func(context.Context)) {
	if task == nil {
		logger.Warnf("scheduler: task is nil, exit")
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler: invalid interval=%s, exit", s.Interval)
		return
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("scheduler: started interval=%s run_immediately=%v at=%s",
		s.Interval, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		task(ctx)
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("scheduler: ctx done after %s, exit", s.nowFn().UTC().Sub(startAt).Truncate(time.Second))
			return
		case <-ticker.C:
			task(ctx)
		}
	}
}
