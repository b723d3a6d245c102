package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fabricmgmt/eventing-backend/pkg/logger"
	"github.com/fabricmgmt/eventing-backend/pkg/metrics"
)

const defaultInterval = 24 * time.Hour

// LockFactory builds the distributed lock guarding a named job.
type LockFactory func(jobName string) (Lock, error)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locks    LockFactory
	Metrics  *metrics.JobMetrics
}

// Service executes registered jobs, each on its own timer. Every run
// takes the job's distributed lock first, so overlapping worker
// instances never run the same sweep twice.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locks    LockFactory
	metrics  *metrics.JobMetrics
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock factory required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		locks:    params.Locks,
		metrics:  params.Metrics,
	}, nil
}

// Run starts one loop per registered job and blocks until the context is
// canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	jobs := s.registry.Jobs()
	var wg sync.WaitGroup
	for _, job := range jobs {
		lock, err := s.locks(job.Name())
		if err != nil {
			return fmt.Errorf("lock for job %s: %w", job.Name(), err)
		}
		wg.Add(1)
		go func(job Job, lock Lock) {
			defer wg.Done()
			s.runLoop(ctx, job, lock)
		}(job, lock)
	}
	wg.Wait()

	s.logg.Info(ctx, "cron service context canceled")
	return ctx.Err()
}

func (s *Service) runLoop(ctx context.Context, job Job, lock Lock) {
	interval := job.Interval()
	if interval <= 0 {
		interval = defaultInterval
	}

	s.runOnce(ctx, job, lock)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job, lock)
		}
	}
}

func (s *Service) runOnce(ctx context.Context, job Job, lock Lock) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "cron.job")

	locked, err := lock.Acquire(jobCtx)
	if err != nil {
		s.logg.Error(jobCtx, "lock acquire failed", err)
		return
	}
	if !locked {
		s.logg.Info(jobCtx, "another instance holds the job lock; skipping this run")
		if s.metrics != nil {
			s.metrics.IncLockSkipped(job.Name())
		}
		return
	}
	defer func() {
		if relErr := lock.Release(jobCtx); relErr != nil {
			s.logg.Error(jobCtx, "failed to release job lock", relErr)
		}
	}()

	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err = job.Run(jobCtx)
	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveDuration(job.Name(), duration)
	}
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		if s.metrics != nil {
			s.metrics.IncFailure(job.Name())
		}
		return
	}
	s.logg.Info(jobCtx, "job completed")
	if s.metrics != nil {
		s.metrics.IncSuccess(job.Name())
	}
}
