package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/fabricmgmt/eventing-backend/pkg/logger"
)

type fakeReplayRepo struct {
	lastCeiling int
	calls       int
	replayed    int64
	err         error
}

func (f *fakeReplayRepo) ResetFailed(ctx context.Context, ceiling int) (int64, error) {
	f.calls++
	f.lastCeiling = ceiling
	if f.err != nil {
		return 0, f.err
	}
	return f.replayed, nil
}

func newReplayJob(t *testing.T, repo *fakeReplayRepo, ceiling int) Job {
	t.Helper()
	job, err := NewOutboxReplayJob(OutboxReplayJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
		Ceiling:    ceiling,
	})
	if err != nil {
		t.Fatalf("NewOutboxReplayJob: %v", err)
	}
	return job
}

func TestOutboxReplayJobPassesCeiling(t *testing.T) {
	repo := &fakeReplayRepo{replayed: 3}
	job := newReplayJob(t, repo, 25)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("expected repo called once, got %d", repo.calls)
	}
	if repo.lastCeiling != 25 {
		t.Fatalf("expected ceiling 25, got %d", repo.lastCeiling)
	}
}

func TestOutboxReplayJobPropagatesError(t *testing.T) {
	repo := &fakeReplayRepo{err: errors.New("boom")}
	job := newReplayJob(t, repo, 0)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestOutboxReplayJobRejectsNegativeCeiling(t *testing.T) {
	_, err := NewOutboxReplayJob(OutboxReplayJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: &fakeReplayRepo{},
		Ceiling:    -1,
	})
	if err == nil {
		t.Fatal("expected error for negative ceiling")
	}
}
