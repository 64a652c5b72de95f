package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/packfinderz-escrow/internal/bootstrap"
	"github.com/angelmondragon/packfinderz-escrow/internal/cron"
	"github.com/angelmondragon/packfinderz-escrow/pkg/config"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
	"github.com/angelmondragon/packfinderz-escrow/pkg/metrics"
	"github.com/angelmondragon/packfinderz-escrow/pkg/migrate"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox"
	"github.com/angelmondragon/packfinderz-escrow/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run one locked cycle and exit")
	jobs := flag.String("jobs", "", "comma separated job names for -once (default: all)")
	flag.Parse()

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

	redisClient, err := redis.New(boot, cfg.Redis, logg)
	exitOn(boot, logg, "failed to bootstrap redis", err)
	defer closeQuietly(logg, "redis", redisClient.Close)

	bqClient, err := bootstrap.NewBigQueryClient(boot, cfg, logg)
	exitOn(boot, logg, "failed to bootstrap bigquery", err)
	if bqClient != nil {
		defer closeQuietly(logg, "bigquery", bqClient.Close)
	}

	stripeClient, err := bootstrap.NewStripeClient(boot, cfg, logg)
	exitOn(boot, logg, "failed to bootstrap stripe", err)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	services, err := bootstrap.Build(bootstrap.Params{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		BigQuery: bqClient,
		Stripe:   stripeClient,
		Metrics:  metrics.NewPayoutMetrics(promRegistry),
	})
	exitOn(boot, logg, "failed to build services", err)

	registry, err := buildRegistry(cfg, logg, services, outbox.NewRepository(dbClient.DB()))
	exitOn(boot, logg, "failed to register cron jobs", err)

	lockKey := cfg.Cron.LockKey
	if lockKey == "" {
		lockKey = redisClient.LockKey(serviceName, cfg.App.Env)
	}
	lock, err := cron.NewRedisLock(redisClient, lockKey, cfg.Cron.LockTTL)
	exitOn(boot, logg, "failed to create cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(promRegistry),
		Interval: cfg.Cron.Interval,
	})
	exitOn(boot, logg, "failed to create cron service", err)

	ctx, stop := signal.NotifyContext(boot, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "service_kind": cfg.Service.Kind, "lock_key": lockKey})

	if *once {
		exitOn(ctx, logg, "one-off cron run failed", service.RunOnce(ctx, splitJobs(*jobs)...))
		logg.Info(ctx, "one-off cron run complete")
		return
	}

	metrics.Serve(ctx, cfg.Service.MetricsAddr, promRegistry, logg)
	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildRegistry wires the payout sweep, the monthly settlement close and
// outbox retention.
func buildRegistry(cfg *config.Config, logg *logger.Logger, services *bootstrap.Services, outboxRepo *outbox.Repository) (*cron.Registry, error) {
	loc, err := cfg.Settlement.Location()
	if err != nil {
		return nil, fmt.Errorf("settlement time zone: %w", err)
	}
	payoutsJob, err := cron.NewSellerPayoutsJob(cron.SellerPayoutsJobParams{Logger: logg, Payouts: services.Payouts})
	if err != nil {
		return nil, fmt.Errorf("seller payouts job: %w", err)
	}
	settlementJob, err := cron.NewSettlementCloseJob(cron.SettlementCloseJobParams{
		Logger:      logg,
		Settlements: services.Settlements,
		CloseDay:    cfg.Settlement.CloseDay,
		Location:    loc,
	})
	if err != nil {
		return nil, fmt.Errorf("settlement close job: %w", err)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	return cron.NewRegistry(payoutsJob, settlementJob, retentionJob)
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

func splitJobs(raw string) []string {
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
