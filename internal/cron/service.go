package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/chama-backend/pkg/logger"
	"github.com/angelmondragon/chama-backend/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

var errLeaseLost = errors.New("cron lease lost")

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	Now      func() time.Time
}

// Service runs the registered jobs in order, one cycle per interval. A cycle
// only starts while this instance holds the lease, and the lease is renewed
// before each job after the first.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	case params.Registry == nil:
		return nil, errors.New("registry required")
	}
	s := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
		now:      params.Now,
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.runCycle(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs the named jobs (all when empty) under the lease and returns.
func (s *Service) RunOnce(ctx context.Context, names ...string) error {
	jobs, err := s.registry.Select(names...)
	if err != nil {
		return err
	}
	return s.runJobs(ctx, jobs)
}

func (s *Service) runCycle(ctx context.Context) error {
	return s.runJobs(ctx, s.registry.Jobs())
}

func (s *Service) runJobs(ctx context.Context, jobs []Job) error {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !held {
		s.logg.Info(ctx, "cron lease held elsewhere; skipping cycle")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()

	s.logg.Info(s.logg.WithField(ctx, "jobs", len(jobs)), "scheduled run starting")
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if err := s.renew(ctx, job); err != nil {
				if errors.Is(err, errLeaseLost) {
					return nil
				}
				return err
			}
		}
		s.runJob(ctx, job)
	}
	s.logg.Info(ctx, "scheduled run complete")
	return nil
}

// renew extends the lease before next runs.
func (s *Service) renew(ctx context.Context, next Job) error {
	held, err := s.lock.Extend(ctx)
	if err != nil {
		return fmt.Errorf("lock extend: %w", err)
	}
	if !held {
		s.metrics.IncLeaseLost()
		s.logg.Warn(s.logg.WithField(ctx, "next_job", next.Name()), "cron lease lost; abandoning remaining jobs")
		return errLeaseLost
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	s.logg.Info(jobCtx, "job start")

	started := s.now()
	err := job.Run(jobCtx)
	finished := s.now()
	elapsed := finished.Sub(started)

	s.metrics.ObserveDuration(name, elapsed)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.metrics.IncSuccess(name)
	s.metrics.SetLastSuccess(name, finished)
	s.logg.Info(jobCtx, "job completed")
}
