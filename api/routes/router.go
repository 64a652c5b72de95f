package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-escrow/api/controllers"
	casecontrollers "github.com/angelmondragon/packfinderz-escrow/api/controllers/cases"
	ordercontrollers "github.com/angelmondragon/packfinderz-escrow/api/controllers/orders"
	outboxcontrollers "github.com/angelmondragon/packfinderz-escrow/api/controllers/outbox"
	payoutcontrollers "github.com/angelmondragon/packfinderz-escrow/api/controllers/payouts"
	reportcontrollers "github.com/angelmondragon/packfinderz-escrow/api/controllers/reports"
	settlementcontrollers "github.com/angelmondragon/packfinderz-escrow/api/controllers/settlements"
	webhookcontrollers "github.com/angelmondragon/packfinderz-escrow/api/controllers/webhooks"
	"github.com/angelmondragon/packfinderz-escrow/api/middleware"
	"github.com/angelmondragon/packfinderz-escrow/internal/cases"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders"
	"github.com/angelmondragon/packfinderz-escrow/internal/payments"
	"github.com/angelmondragon/packfinderz-escrow/internal/payouts"
	"github.com/angelmondragon/packfinderz-escrow/internal/reports"
	"github.com/angelmondragon/packfinderz-escrow/internal/settlements"
	"github.com/angelmondragon/packfinderz-escrow/pkg/config"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
	pkgredis "github.com/angelmondragon/packfinderz-escrow/pkg/redis"
)

// Store backs idempotency replays and webhook throttling.
type Store interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type stripeGuard interface {
	MarkSeen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// Services carries everything the HTTP surface calls into. Nil services
// answer with an internal error rather than panicking.
type Services struct {
	Orders         orders.Service
	Payments       payments.Service
	Payouts        payouts.Service
	Settlements    settlements.Service
	Cases          cases.Service
	Reports        reports.Service
	StripeWebhook  webhookcontrollers.StripeWebhookService
	StripeVerifier webhookcontrollers.StripeVerifier
	StripeGuard    stripeGuard
	DeadLetters    outboxcontrollers.DeadLetterStore
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	store Store,
	readiness map[string]controllers.Pinger,
	metricsHandler http.Handler,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	webhookPolicy := middleware.NewRateLimitPolicy(
		"webhooks",
		cfg.RateLimit.WebhookWindow,
		cfg.RateLimit.WebhookIPLimit,
	)
	unsigned := !cfg.App.IsProd()
	paymentSigner := webhookcontrollers.BodySigner{
		Secret:        cfg.Payments.WebhookSecret,
		AllowUnsigned: unsigned && cfg.Payments.WebhookSecret == "",
	}
	shippingSigner := webhookcontrollers.BodySigner{
		Secret:        cfg.Shipping.WebhookSecret,
		AllowUnsigned: unsigned && cfg.Shipping.WebhookSecret == "",
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, store, logg))
		r.Post("/stripe", webhookcontrollers.StripeWebhook(svc.StripeWebhook, svc.StripeVerifier, svc.StripeGuard, logg))
		r.Post("/payments", webhookcontrollers.PaymentWebhook(svc.Payments, paymentSigner, logg))
		r.Post("/shipping/{providerId}", webhookcontrollers.ShippingWebhook(svc.Orders, shippingSigner, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(store, logg))

		r.Get("/ping", controllers.PrivatePing())

		// shared by every role; the services scope results to the caller
		r.Get("/orders/{orderId}", ordercontrollers.Detail(svc.Orders, logg))
		r.Route("/cases", func(r chi.Router) {
			r.Get("/", casecontrollers.List(svc.Cases, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer)).Post("/", casecontrollers.Create(svc.Cases, logg))
			r.Get("/{caseId}", casecontrollers.Get(svc.Cases, logg))
			r.Get("/{caseId}/messages", casecontrollers.Messages(svc.Cases, logg))
			r.Post("/{caseId}/messages", casecontrollers.PostMessage(svc.Cases, logg))
			r.Post("/{caseId}/escalate", casecontrollers.Escalate(svc.Cases, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleBuyer))
			r.Post("/checkout/confirm", ordercontrollers.CheckoutConfirm(svc.Orders, logg))
			r.Get("/orders", ordercontrollers.BuyerOrders(svc.Orders, logg))
		})

		r.Route("/seller", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleSeller))
			r.Get("/sub-orders", ordercontrollers.SubOrders(svc.Orders, logg))
			r.Post("/sub-orders/{subOrderId}/transition", ordercontrollers.Transition(svc.Orders, logg))

			r.Get("/cases/metrics", casecontrollers.SellerMetrics(svc.Cases, logg))
			r.Post("/cases/{caseId}/review", casecontrollers.Review(svc.Cases, logg))
			r.Post("/cases/{caseId}/resolve", casecontrollers.SellerResolve(svc.Cases, logg))

			r.Get("/payouts/runs", payoutcontrollers.Runs(svc.Payouts, logg))

			r.Get("/invoices", settlementcontrollers.SellerInvoices(svc.Settlements, logg))
			r.Get("/invoices/{invoiceId}", settlementcontrollers.GetInvoice(svc.Settlements, logg))
			r.Get("/invoices/{invoiceId}/pdf", settlementcontrollers.InvoicePDF(svc.Settlements, logg))

			r.Get("/reports/orders.csv", reportcontrollers.SellerOrdersCSV(svc.Reports, logg))
			r.Get("/reports/sales", reportcontrollers.Sales(svc.Reports, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
		r.Use(middleware.Idempotency(store, logg))

		r.Get("/orders/{orderId}", ordercontrollers.Detail(svc.Orders, logg))
		r.Get("/sub-orders", ordercontrollers.SubOrders(svc.Orders, logg))
		r.Post("/sub-orders/{subOrderId}/transition", ordercontrollers.Transition(svc.Orders, logg))

		r.Route("/cases", func(r chi.Router) {
			r.Get("/", casecontrollers.List(svc.Cases, logg))
			r.Get("/{caseId}", casecontrollers.Get(svc.Cases, logg))
			r.Post("/{caseId}/escalate", casecontrollers.Escalate(svc.Cases, logg))
			r.Post("/{caseId}/resolve", casecontrollers.AdminResolve(svc.Cases, logg))
		})

		r.Route("/sellers/{sellerId}", func(r chi.Router) {
			r.Get("/case-metrics", casecontrollers.SellerMetrics(svc.Cases, logg))
		})

		r.Route("/payouts", func(r chi.Router) {
			r.Post("/run", payoutcontrollers.RunAll(svc.Payouts, logg))
			r.Post("/sellers/{sellerId}/run", payoutcontrollers.RunSeller(svc.Payouts, logg))
			r.Put("/sellers/{sellerId}/account", payoutcontrollers.RegisterAccount(svc.Payouts, logg))
			r.Get("/sellers/{sellerId}/runs", payoutcontrollers.Runs(svc.Payouts, logg))
		})

		r.Get("/settlements", settlementcontrollers.Monthly(svc.Settlements, logg))
		r.Post("/settlements/invoices", settlementcontrollers.GenerateInvoices(svc.Settlements, logg))
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", settlementcontrollers.ListInvoices(svc.Settlements, logg))
			r.Get("/{invoiceId}", settlementcontrollers.GetInvoice(svc.Settlements, logg))
			r.Get("/{invoiceId}/pdf", settlementcontrollers.InvoicePDF(svc.Settlements, logg))
			r.Post("/{invoiceId}/mark-paid", settlementcontrollers.MarkPaid(svc.Settlements, logg))
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/orders.csv", reportcontrollers.AdminOrdersCSV(svc.Reports, logg))
			r.Get("/commission.csv", reportcontrollers.CommissionCSV(svc.Reports, logg))
			r.Get("/settlement.csv", reportcontrollers.SettlementCSV(svc.Reports, logg))
			r.Get("/sellers/{sellerId}/sales", reportcontrollers.Sales(svc.Reports, logg))
		})

		r.Route("/outbox/dead-letters", func(r chi.Router) {
			r.Get("/", outboxcontrollers.ListDeadLetters(svc.DeadLetters, logg))
			r.Post("/{dlqId}/requeue", outboxcontrollers.RequeueDeadLetter(svc.DeadLetters, logg))
		})
	})

	return r
}
