package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fabricmgmt/eventing-backend/internal/cron"
	"github.com/fabricmgmt/eventing-backend/internal/ops"
	"github.com/fabricmgmt/eventing-backend/pkg/config"
	"github.com/fabricmgmt/eventing-backend/pkg/db"
	"github.com/fabricmgmt/eventing-backend/pkg/logger"
	"github.com/fabricmgmt/eventing-backend/pkg/metrics"
	"github.com/fabricmgmt/eventing-backend/pkg/migrate"
	"github.com/fabricmgmt/eventing-backend/pkg/outbox"
	"github.com/fabricmgmt/eventing-backend/pkg/redis"
)

const lockKeyFormat = "fab:cron-worker:lock:%s:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	repo := outbox.NewRepository(dbClient.DB())

	promRegistry := prometheus.NewRegistry()
	jobMetrics := metrics.NewJobMetrics(promRegistry)
	outboxMetrics := metrics.NewOutboxMetrics(promRegistry)

	cleanupJob, err := cron.NewOutboxCleanupJob(cron.OutboxCleanupJobParams{
		Logger:        logg,
		Repository:    repo,
		Metrics:       outboxMetrics,
		RetentionDays: cfg.Retention.Days,
		Every:         cfg.Retention.CleanupInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cleanup job", err)
		os.Exit(1)
	}

	replayJob, err := cron.NewOutboxReplayJob(cron.OutboxReplayJobParams{
		Logger:     logg,
		Repository: repo,
		Ceiling:    cfg.Retention.ReplayCeiling,
		Every:      cfg.Retention.ReplayInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create replay job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(cleanupJob, replayJob),
		Locks: func(jobName string) (cron.Lock, error) {
			lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env, jobName), 0)
			if err != nil {
				return nil, err
			}
			return lock, nil
		},
		Metrics: jobMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	opsServer := &http.Server{
		Addr: ":" + cfg.Ops.Port,
		Handler: ops.NewRouter(ops.RouterParams{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Outbox:   repo,
			Registry: promRegistry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "ops server error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "ops server shutdown error", err)
		}
	}()

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env, jobName string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env, jobName)
}
