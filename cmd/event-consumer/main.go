package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fabricmgmt/eventing-backend/internal/consumers/audit"
	"github.com/fabricmgmt/eventing-backend/internal/ops"
	"github.com/fabricmgmt/eventing-backend/pkg/config"
	"github.com/fabricmgmt/eventing-backend/pkg/db"
	"github.com/fabricmgmt/eventing-backend/pkg/dedup"
	"github.com/fabricmgmt/eventing-backend/pkg/logger"
	"github.com/fabricmgmt/eventing-backend/pkg/migrate"
	"github.com/fabricmgmt/eventing-backend/pkg/pubsub"
	"github.com/fabricmgmt/eventing-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "event-consumer"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "event-consumer"

	logg = logger.New(logger.Options{
		ServiceName: cfg.Consumer.Name,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to create pubsub client", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	guard, err := dedup.NewGuard(redisClient, cfg.Consumer.IdempotencyTTL)
	if err != nil {
		logg.Error(ctx, "failed to create duplicate guard", err)
		os.Exit(1)
	}

	ledger, err := dedup.NewLedger(dbClient, logg)
	if err != nil {
		logg.Error(ctx, "failed to create processed ledger", err)
		os.Exit(1)
	}

	consumer, err := audit.NewConsumer(audit.ConsumerParams{
		Name:         cfg.Consumer.Name,
		Subscription: pubsubClient.EventsSubscription(),
		Guard:        guard,
		Ledger:       ledger,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create audit consumer", err)
		os.Exit(1)
	}

	opsServer := &http.Server{
		Addr: ":" + cfg.Ops.Port,
		Handler: ops.NewRouter(ops.RouterParams{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			PubSub:   pubsubClient,
			Registry: prometheus.NewRegistry(),
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

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"consumer": cfg.Consumer.Name,
	})
	logg.Info(ctx, "starting event consumer")

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "event consumer stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "event consumer shutting down gracefully")
}
