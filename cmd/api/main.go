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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/packfinderz-escrow/api/controllers"
	"github.com/angelmondragon/packfinderz-escrow/api/routes"
	"github.com/angelmondragon/packfinderz-escrow/internal/bootstrap"
	stripewebhook "github.com/angelmondragon/packfinderz-escrow/internal/webhooks/stripe"
	"github.com/angelmondragon/packfinderz-escrow/pkg/config"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
	"github.com/angelmondragon/packfinderz-escrow/pkg/metrics"
	"github.com/angelmondragon/packfinderz-escrow/pkg/migrate"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox/idempotency"
	"github.com/angelmondragon/packfinderz-escrow/pkg/redis"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
	stripeConsumer    = "stripe-webhook"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})
	boot := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(boot, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	exitOn(boot, logg, "failed to load config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	readiness := map[string]controllers.Pinger{"db": dbClient, "redis": redisClient}

	bqClient, err := bootstrap.NewBigQueryClient(boot, cfg, logg)
	exitOn(boot, logg, "failed to bootstrap bigquery", err)
	if bqClient != nil {
		readiness["bigquery"] = bqClient
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

	stripeGuard, err := idempotency.NewGuard(redisClient, stripeConsumer, cfg.Eventing.WebhookIdempotencyTTL)
	exitOn(boot, logg, "failed to create stripe event guard", err)
	stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{Payments: services.Payments})
	exitOn(boot, logg, "failed to create stripe webhook service", err)

	routeServices := routes.Services{
		Orders:         services.Orders,
		Payments:       services.Payments,
		Payouts:        services.Payouts,
		Settlements:    services.Settlements,
		Cases:          services.Cases,
		Reports:        services.Reports,
		StripeWebhook:  stripeWebhookService,
		StripeGuard:    stripeGuard,
		DeadLetters:    outbox.NewDLQRepository(dbClient.DB()),
	}
	// a nil *stripe.Client must not become a non-nil interface
	if stripeClient != nil {
		routeServices.StripeVerifier = stripeClient
	}

	addr := ":" + firstNonEmpty(os.Getenv("PORT"), cfg.App.Port)
	ctx, stop := signal.NotifyContext(boot, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr, "instance": firstNonEmpty(os.Getenv("DYNO"), "local")})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, redisClient, readiness, promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}), routeServices),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
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
