package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/fabricmgmt/eventing-backend/pkg/logger"
)

type outboxReplayRepo interface {
	ResetFailed(ctx context.Context, ceiling int) (int64, error)
}

type OutboxReplayJobParams struct {
	Logger     *logger.Logger
	Repository outboxReplayRepo
	Ceiling    int
	Every      time.Duration
}

// NewOutboxReplayJob builds the sweep that returns FAILED rows to the
// publisher for one more attempt apiece. This is the only path out of the
// failed state. Ceiling bounds the accumulated retry count: rows at or
// above it stay parked; zero replays every FAILED row.
func NewOutboxReplayJob(params OutboxReplayJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.Ceiling < 0 {
		return nil, fmt.Errorf("ceiling must be non-negative")
	}
	every := params.Every
	if every <= 0 {
		every = 5 * time.Minute
	}
	return &outboxReplayJob{
		logg:    params.Logger,
		repo:    params.Repository,
		ceiling: params.Ceiling,
		every:   every,
	}, nil
}

type outboxReplayJob struct {
	logg    *logger.Logger
	repo    outboxReplayRepo
	ceiling int
	every   time.Duration
}

func (j *outboxReplayJob) Name() string { return "outbox-replay" }

func (j *outboxReplayJob) Interval() time.Duration { return j.every }

func (j *outboxReplayJob) Run(ctx context.Context) error {
	replayed, err := j.repo.ResetFailed(ctx, j.ceiling)
	if err != nil {
		return fmt.Errorf("outbox replay: %w", err)
	}
	if replayed == 0 {
		return nil
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"rows_replayed": replayed,
		"ceiling":       j.ceiling,
	})
	j.logg.Info(logCtx, "failed events requeued for delivery")
	return nil
}
