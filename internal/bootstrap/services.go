// Package bootstrap builds the escrow service graph shared by the api and
// cron-worker binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-escrow/internal/cases"
	"github.com/angelmondragon/packfinderz-escrow/internal/notifications"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders"
	"github.com/angelmondragon/packfinderz-escrow/internal/payments"
	"github.com/angelmondragon/packfinderz-escrow/internal/payouts"
	"github.com/angelmondragon/packfinderz-escrow/internal/reports"
	"github.com/angelmondragon/packfinderz-escrow/internal/settlements"
	"github.com/angelmondragon/packfinderz-escrow/internal/shipping"
	pkgbigquery "github.com/angelmondragon/packfinderz-escrow/pkg/bigquery"
	"github.com/angelmondragon/packfinderz-escrow/pkg/config"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
	"github.com/angelmondragon/packfinderz-escrow/pkg/metrics"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox"
	pkgstripe "github.com/angelmondragon/packfinderz-escrow/pkg/stripe"
)

// Params are the already-connected clients the services are built on.
// BigQuery and Stripe are optional outside production.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	BigQuery *pkgbigquery.Client
	Stripe   *pkgstripe.Client
	Metrics  *metrics.PayoutMetrics
}

// Services is the wired escrow domain.
type Services struct {
	Outbox      *outbox.Service
	Orders      orders.Service
	Payments    payments.Service
	Payouts     payouts.Service
	Settlements settlements.Service
	Cases       cases.Service
	Reports     reports.Service
}

// Build wires every domain service against one database client.
func Build(p Params) (*Services, error) {
	if p.Config == nil {
		return nil, errors.New("config required")
	}
	if p.DB == nil {
		return nil, errors.New("db client required")
	}
	cfg := p.Config
	gdb := p.DB.DB()

	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), p.Logger)
	notifier, err := notifications.NewOutboxNotifier(outboxSvc)
	if err != nil {
		return nil, err
	}

	providers, err := shippingRegistry(cfg.Shipping)
	if err != nil {
		return nil, err
	}
	verifier, err := orders.NewHMACVerifier(cfg.Payments.OutcomeSecret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.EnvPaymentOutcomeSecret, err)
	}
	eligible, err := eligibleStatuses(cfg.Escrow.PayoutEligibleStatuses)
	if err != nil {
		return nil, err
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(gdb),
		Tx:       p.DB,
		Outbox:   outboxSvc,
		Notifier: notifier,
		Shipping: providers,
		Verifier: verifier,
		Logger:   p.Logger,
		Config: orders.Config{
			Currency:               cfg.Escrow.Currency,
			CommissionRate:         cfg.Escrow.CommissionRate,
			PayoutEligibleStatuses: eligible,
			OrderNumberPrefix:      cfg.Escrow.OrderNumberPrefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Orders: orderSvc,
		Tx:     p.DB,
		Logger: p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}

	gateway, err := transferGateway(cfg, p.Stripe)
	if err != nil {
		return nil, err
	}
	payoutSvc, err := payouts.NewService(payouts.ServiceParams{
		Repo:    payouts.NewRepository(gdb),
		Orders:  orderSvc,
		Tx:      p.DB,
		Outbox:  outboxSvc,
		Gateway: gateway,
		Metrics: p.Metrics,
		Logger:  p.Logger,
		Config: payouts.Config{
			Currency:      cfg.Escrow.PayoutTransferCurrency,
			MinimumPayout: cfg.Escrow.MinimumPayout,
			BatchSize:     cfg.Escrow.PayoutBatchSize,
			Parallelism:   cfg.Escrow.PayoutParallelism,
			StaleAfter:    time.Duration(cfg.Escrow.PayoutStaleAfterMinutes) * time.Minute,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("payouts service: %w", err)
	}

	loc, err := cfg.Settlement.Location()
	if err != nil {
		return nil, err
	}
	exporter, err := settlementExporter(cfg, p.BigQuery)
	if err != nil {
		return nil, err
	}
	settlementSvc, err := settlements.NewService(settlements.ServiceParams{
		Repo:     settlements.NewRepository(gdb),
		Tx:       p.DB,
		Outbox:   outboxSvc,
		Exporter: exporter,
		Logger:   p.Logger,
		Config: settlements.Config{
			CloseDay:      cfg.Settlement.CloseDay,
			Location:      loc,
			InvoiceSeries: cfg.Settlement.InvoiceSeries,
			TaxRate:       cfg.Settlement.TaxRate,
			Currency:      cfg.Escrow.Currency,
			IssuerName:    cfg.Settlement.IssuerName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("settlements service: %w", err)
	}

	caseSvc, err := cases.NewService(cases.ServiceParams{
		Repo:     cases.NewRepository(gdb),
		Orders:   orderSvc,
		Tx:       p.DB,
		Outbox:   outboxSvc,
		Notifier: notifier,
		Logger:   p.Logger,
		Config: cases.Config{
			ReturnWindow:     days(cfg.Cases.ReturnWindowDays),
			FirstResponseSLA: time.Duration(cfg.Cases.FirstResponseSLAHours) * time.Hour,
			ResolutionSLA:    time.Duration(cfg.Cases.ResolutionSLAHours) * time.Hour,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("cases service: %w", err)
	}

	reportSvc, err := reports.NewService(reports.ServiceParams{
		Repo:        reports.NewRepository(gdb),
		Settlements: settlementSvc,
		Config: reports.Config{
			RowCap:   cfg.Escrow.ExportRowCap,
			Location: loc,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("reports service: %w", err)
	}

	return &Services{
		Outbox:      outboxSvc,
		Orders:      orderSvc,
		Payments:    paymentSvc,
		Payouts:     payoutSvc,
		Settlements: settlementSvc,
		Cases:       caseSvc,
		Reports:     reportSvc,
	}, nil
}

// NewStripeClient connects to Stripe when keys are configured. Production
// requires them; elsewhere a missing key yields a nil client and the mock
// transfer gateway.
func NewStripeClient(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*pkgstripe.Client, error) {
	if strings.TrimSpace(cfg.Stripe.APIKey) == "" && !cfg.App.IsProd() {
		if logg != nil {
			logg.Warn(ctx, "stripe api key not configured, payouts use the mock gateway")
		}
		return nil, nil
	}
	return pkgstripe.NewClient(ctx, cfg.Stripe, logg)
}

// NewBigQueryClient connects the settlement warehouse when export is enabled.
func NewBigQueryClient(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*pkgbigquery.Client, error) {
	if !cfg.Settlement.ExportEnabled {
		return nil, nil
	}
	return pkgbigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
}

func shippingRegistry(cfg config.ShippingConfig) (*shipping.Registry, error) {
	if !cfg.MockMode {
		// only the mock carrier ships today; a real integration registers here
		return shipping.NewRegistry()
	}
	return shipping.NewRegistry(&shipping.MockProvider{})
}

func transferGateway(cfg *config.Config, client *pkgstripe.Client) (payouts.TransferGateway, error) {
	if cfg.Escrow.PayoutGatewayDisabled || client == nil {
		if cfg.App.IsProd() {
			return nil, errors.New("stripe transfers are required in production")
		}
		return &payouts.MockGateway{}, nil
	}
	return payouts.NewStripeGateway(client)
}

func settlementExporter(cfg *config.Config, client *pkgbigquery.Client) (settlements.Exporter, error) {
	if client == nil {
		return nil, nil
	}
	return settlements.NewWarehouseExporter(client, cfg.BigQuery.SettlementsTable, settlements.RetryPolicy{})
}

func eligibleStatuses(raw []string) ([]enums.OrderStatus, error) {
	out := make([]enums.OrderStatus, 0, len(raw))
	for _, value := range raw {
		status, err := enums.ParseOrderStatus(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", config.EnvPayoutEligibleStatus, err)
		}
		out = append(out, status)
	}
	return out, nil
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
