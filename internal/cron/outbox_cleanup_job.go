package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/fabricmgmt/eventing-backend/pkg/logger"
	"github.com/fabricmgmt/eventing-backend/pkg/metrics"
	"github.com/fabricmgmt/eventing-backend/pkg/outbox"
)

const defaultRetentionDays = 7

type outboxCleanupRepo interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	PendingStats(ctx context.Context) (outbox.Stats, error)
}

type OutboxCleanupJobParams struct {
	Logger        *logger.Logger
	Repository    outboxCleanupRepo
	Metrics       *metrics.OutboxMetrics
	RetentionDays int
	Every         time.Duration
}

// NewOutboxCleanupJob builds the sweep that deletes delivered rows past
// the retention window. Undelivered and failed rows always survive; the
// job also refreshes the backlog gauges while it holds the lock.
func NewOutboxCleanupJob(params OutboxCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = defaultRetentionDays
	}
	every := params.Every
	if every <= 0 {
		every = 24 * time.Hour
	}
	return &outboxCleanupJob{
		logg:      params.Logger,
		repo:      params.Repository,
		metrics:   params.Metrics,
		retention: retention,
		every:     every,
		now:       time.Now,
	}, nil
}

type outboxCleanupJob struct {
	logg      *logger.Logger
	repo      outboxCleanupRepo
	metrics   *metrics.OutboxMetrics
	retention int
	every     time.Duration
	now       func() time.Time
}

func (j *outboxCleanupJob) Name() string { return "outbox-cleanup" }

func (j *outboxCleanupJob) Interval() time.Duration { return j.every }

func (j *outboxCleanupJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-time.Duration(j.retention) * 24 * time.Hour)

	var errs []error

	deleted, err := j.repo.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("outbox cleanup: %w", err))
	} else {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"cutoff":         cutoff,
			"retention_days": j.retention,
			"rows_deleted":   deleted,
		})
		j.logg.Info(logCtx, "outbox cleanup complete")
	}

	stats, err := j.repo.PendingStats(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("outbox stats: %w", err))
	} else if j.metrics != nil {
		j.metrics.SetPending(stats.Pending)
		j.metrics.SetFailed(stats.Failed)
		age := time.Duration(0)
		if stats.OldestPending != nil {
			age = now.Sub(*stats.OldestPending)
			if age < 0 {
				age = 0
			}
		}
		j.metrics.SetOldestPendingAge(age)
	}

	return multierr.Combine(errs...)
}
