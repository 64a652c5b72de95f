package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/packfinderz-escrow/pkg/config"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
	"github.com/angelmondragon/packfinderz-escrow/pkg/metrics"
	"github.com/angelmondragon/packfinderz-escrow/pkg/migrate"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox/registry"
	"github.com/angelmondragon/packfinderz-escrow/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	boot := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(boot, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	exitOn(boot, logg, "failed to load config", err)
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(boot, cfg.DB, logg)
	exitOn(boot, logg, "failed to bootstrap database", err)
	defer closeQuietly(logg, "database", dbClient.Close)

	exitOn(boot, logg, "failed to run dev migrations", migrate.MaybeRunDev(boot, cfg, logg, dbClient))

	pubsubClient, err := pubsub.NewClient(boot, cfg.GCP, cfg.PubSub, logg)
	exitOn(boot, logg, "failed to bootstrap pubsub", err)
	defer closeQuietly(logg, "pubsub", pubsubClient.Close)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	exitOn(boot, logg, "failed to build event registry", err)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:       metrics.NewOutboxMetrics(promRegistry),
	})
	exitOn(boot, logg, "failed to create outbox publisher", err)

	ctx, stop := signal.NotifyContext(boot, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "service_kind": cfg.Service.Kind})

	metrics.Serve(ctx, cfg.Service.MetricsAddr, promRegistry, logg)
	logg.Info(ctx, "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func exitOn(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err != nil {
		logg.Error(ctx, msg, err)
		os.Exit(1)
	}
}

func closeQuietly(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
