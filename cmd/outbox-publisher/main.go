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

	"github.com/fabricmgmt/eventing-backend/internal/ops"
	"github.com/fabricmgmt/eventing-backend/pkg/config"
	"github.com/fabricmgmt/eventing-backend/pkg/db"
	"github.com/fabricmgmt/eventing-backend/pkg/logger"
	"github.com/fabricmgmt/eventing-backend/pkg/metrics"
	"github.com/fabricmgmt/eventing-backend/pkg/migrate"
	"github.com/fabricmgmt/eventing-backend/pkg/outbox"
	"github.com/fabricmgmt/eventing-backend/pkg/pubsub"
)

func main() {
	_ = godotenv.Load()

	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: cfg.Service.Kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to connect to database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "dev migrations failed", err)
		os.Exit(1)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to create pubsub client", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	repo := outbox.NewRepository(dbClient.DB())
	router := outbox.NewRouter(cfg.PubSub)

	registry := prometheus.NewRegistry()
	outboxMetrics := metrics.NewOutboxMetrics(registry)

	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		PubSub:     pubsubClient,
		Repository: repo,
		Router:     router,
		Metrics:    outboxMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to build publisher service", err)
		os.Exit(1)
	}

	opsServer := &http.Server{
		Addr: ":" + cfg.Ops.Port,
		Handler: ops.NewRouter(ops.RouterParams{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			PubSub:   pubsubClient,
			Outbox:   repo,
			Registry: registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logg.Info(logg.WithField(ctx, "port", cfg.Ops.Port), "ops server listening")
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

	logg.Info(ctx, "outbox publisher started")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher exited with error", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher stopped")
}
