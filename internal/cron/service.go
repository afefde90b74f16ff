package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/angelmondragon/teamprint-backend/pkg/logger"
	"github.com/angelmondragon/teamprint-backend/pkg/metrics"
)

const defaultInterval = 10 * time.Minute

// Job is one scheduled task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// ServiceParams configure the cron service. Jobs run in the given order.
type ServiceParams struct {
	Logger   *logger.Logger
	Jobs     []Job
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs its jobs every interval on whichever instance holds the cron
// lock.
type Service struct {
	logg     *logger.Logger
	jobs     []Job
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("cron: logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("cron: lock required")
	}
	svc := &Service{
		logg:     params.Logger,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	for _, job := range params.Jobs {
		if job != nil {
			svc.jobs = append(svc.jobs, job)
		}
	}
	return svc, nil
}

// Jobs returns a copy of the scheduled jobs.
func (s *Service) Jobs() []Job {
	return append([]Job(nil), s.jobs...)
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron.cycle_failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "cron.cycle_skipped_lock_held")
		return nil
	}

	cycleCtx, cancel := context.WithCancelCause(ctx)
	renewed := s.keepLease(cycleCtx, cancel)
	defer func() {
		cancel(nil)
		<-renewed
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron.lock_release_failed", err)
		}
	}()

	for _, job := range s.jobs {
		if cause := context.Cause(cycleCtx); errors.Is(cause, errLockLost) {
			return cause
		}
		s.runJob(cycleCtx, job)
	}
	return nil
}

// keepLease renews a leaseLock at a third of its TTL until ctx ends and
// cancels the cycle with errLockLost if renewal stops succeeding. The
// returned channel closes once the renewer has exited.
func (s *Service) keepLease(ctx context.Context, cancel context.CancelCauseFunc) <-chan struct{} {
	done := make(chan struct{})
	lease, ok := s.lock.(leaseLock)
	if !ok || lease.TTL() <= 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(lease.TTL() / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			held, err := lease.Extend(ctx)
			if err != nil && ctx.Err() == nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cron.lock_extend_failed")
				continue
			}
			if !held && ctx.Err() == nil {
				s.logg.Warn(ctx, "cron.lock_lost")
				cancel(errLockLost)
				return
			}
		}
	}()
	return done
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	start := time.Now()
	err := safeRun(jobCtx, job)
	elapsed := time.Since(start)
	s.metrics.ObserveRun(job.Name(), elapsed, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "cron.job_failed", err)
		return
	}
	s.logg.Info(jobCtx, "cron.job_completed")
}

// safeRun turns a panicking job into a failed run so the rest of the cycle
// still executes.
func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v\n%s", job.Name(), r, debug.Stack())
		}
	}()
	return job.Run(ctx)
}
