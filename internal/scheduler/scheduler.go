// Package scheduler runs the engine's periodic jobs.
package scheduler

import (
	"context"
	"fmt"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"time"
)

// Reclaimer closes stale reservation intents.
type Reclaimer interface {
	Reclaim(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	timeout time.Duration
}

// New registers the reclaim job on schedule (cron with seconds, or a descriptor
// such as "@every 30s"). Each run is bounded by timeout.
func New(schedule string, r Reclaimer, timeout time.Duration, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithSeconds()),
		log:     log.Named("scheduler"),
		timeout: timeout,
	}
	if _, err := s.cron.AddFunc(schedule, s.job("reclaim_intents", func(ctx context.Context) error {
		_, err := r.Reclaim(ctx)
		return err
	})); err != nil {
		return nil, fmt.Errorf("register reclaim job %q: %w", schedule, err)
	}
	return s, nil
}

// job wraps fn with a timeout, panic recovery and logging.
func (s *Scheduler) job(name string, fn func(context.Context) error) func() {
	return func() {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("job panicked", zap.String("job", name), zap.Any("panic", rec))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		start := time.Now()
		if err := fn(ctx); err != nil {
			s.log.Error("job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.log.Debug("job done", zap.String("job", name), zap.Duration("took", time.Since(start)))
	}
}

func (s *Scheduler) Start() {
	s.log.Info("starting cron scheduler", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("cron scheduler stopped")
}
