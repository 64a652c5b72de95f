package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = "PACKFINDERZ"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv     = "PACKFINDERZ_APP_ENV"
	EnvPort       = "PACKFINDERZ_APP_PORT"
	EnvDBDSN      = "PACKFINDERZ_DB_DSN"
	EnvDBHost     = "PACKFINDERZ_DB_HOST"
	EnvDBUser     = "PACKFINDERZ_DB_USER"
	EnvDBName     = "PACKFINDERZ_DB_NAME"
	EnvRedisURL   = "PACKFINDERZ_REDIS_URL"
	EnvJWTSecret  = "PACKFINDERZ_JWT_SECRET"
	EnvJWTIssuer  = "PACKFINDERZ_JWT_ISSUER"
	EnvJWTExpMins = "PACKFINDERZ_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID            = "PACKFINDERZ_GCP_PROJECT_ID"
	EnvPubSubDomainTopic       = "PACKFINDERZ_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubNotificationTopic = "PACKFINDERZ_PUBSUB_NOTIFICATION_TOPIC"

	EnvCommissionRate        = "PACKFINDERZ_ESCROW_COMMISSION_RATE"
	EnvMinimumPayout         = "PACKFINDERZ_ESCROW_MINIMUM_PAYOUT"
	EnvPayoutEligibleStatus  = "PACKFINDERZ_ESCROW_PAYOUT_ELIGIBLE_STATUSES"
	EnvPayoutStaleAfter      = "PACKFINDERZ_ESCROW_PAYOUT_STALE_AFTER_MINUTES"
	EnvSettlementCloseDay    = "PACKFINDERZ_SETTLEMENT_CLOSE_DAY"
	EnvSettlementTimeZone    = "PACKFINDERZ_SETTLEMENT_TIME_ZONE"
	EnvReturnWindowDays      = "PACKFINDERZ_CASES_RETURN_WINDOW_DAYS"
	EnvPaymentOutcomeSecret  = "PACKFINDERZ_PAYMENTS_OUTCOME_SECRET"
	EnvSettlementInvoiceTax  = "PACKFINDERZ_SETTLEMENT_TAX_RATE"
	EnvSettlementInvoiceSers = "PACKFINDERZ_SETTLEMENT_INVOICE_SERIES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
	Escrow       EscrowConfig
	Settlement   SettlementConfig
	Cases        CasesConfig
	Shipping     ShippingConfig
	Payments     PaymentsConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Escrow.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PACKFINDERZ_APP_ENV" required:"true"`
	Port         string `envconfig:"PACKFINDERZ_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PACKFINDERZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PACKFINDERZ_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"PACKFINDERZ_LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"PACKFINDERZ_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PACKFINDERZ_SERVICE_KIND" default:"api"`
	// MetricsAddr is where the background workers expose /metrics; the API
	// serves metrics on its own router. Empty disables the listener.
	MetricsAddr string `envconfig:"PACKFINDERZ_METRICS_ADDR" default:":9102"`
}

type DBConfig struct {
	DSN    string `envconfig:"PACKFINDERZ_DB_DSN"`
	Driver string `envconfig:"PACKFINDERZ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PACKFINDERZ_DB_HOST"`
	LegacyPort     int    `envconfig:"PACKFINDERZ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PACKFINDERZ_DB_USER"`
	LegacyPassword string `envconfig:"PACKFINDERZ_DB_PASSWORD"`
	LegacyName     string `envconfig:"PACKFINDERZ_DB_NAME"`
	LegacySSLMode  string `envconfig:"PACKFINDERZ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PACKFINDERZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PACKFINDERZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"PACKFINDERZ_DB_SLOW_QUERY" default:"500ms"`
	TxRetries          int           `envconfig:"PACKFINDERZ_DB_TX_RETRIES" default:"3"`
}

// IsSQLite reports whether the sqlite driver was requested.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), "sqlite")
}

// RedisConfig takes a redis:// or rediss:// URL. The pool and timeout
// settings apply where the URL does not set them.
type RedisConfig struct {
	URL          string        `envconfig:"PACKFINDERZ_REDIS_URL" required:"true"`
	DB           int           `envconfig:"PACKFINDERZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PACKFINDERZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PACKFINDERZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PACKFINDERZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PACKFINDERZ_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PACKFINDERZ_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PACKFINDERZ_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PACKFINDERZ_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"PACKFINDERZ_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PACKFINDERZ_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"PACKFINDERZ_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PACKFINDERZ_GOOGLE_APPLICATION_CREDENTIALS"`
}

// PubSubConfig names the topics the outbox publisher writes to. Consumers own
// their subscriptions.
type PubSubConfig struct {
	DomainTopic       string `envconfig:"PACKFINDERZ_PUBSUB_DOMAIN_TOPIC" required:"true"`
	NotificationTopic string `envconfig:"PACKFINDERZ_PUBSUB_NOTIFICATION_TOPIC" default:"pf-notification-events"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"PACKFINDERZ_BIGQUERY_DATASET" default:"packfinderz"`
	SettlementsTable string `envconfig:"PACKFINDERZ_BIGQUERY_SETTLEMENTS_TABLE" default:"seller_settlements"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PACKFINDERZ_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PACKFINDERZ_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PACKFINDERZ_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"PACKFINDERZ_OUTBOX_RETENTION_DAYS" default:"30"`
}

type StripeConfig struct {
	APIKey string `envconfig:"PACKFINDERZ_STRIPE_API_KEY"`
	Secret string `envconfig:"PACKFINDERZ_STRIPE_SECRET"`
	Env    string `envconfig:"PACKFINDERZ_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// EscrowConfig drives commission, payout eligibility and payout batching.
type EscrowConfig struct {
	Currency                string          `envconfig:"PACKFINDERZ_ESCROW_CURRENCY" default:"USD"`
	CommissionRate          decimal.Decimal `envconfig:"PACKFINDERZ_ESCROW_COMMISSION_RATE" default:"0.10"`
	PayoutEligibleStatuses  []string        `envconfig:"PACKFINDERZ_ESCROW_PAYOUT_ELIGIBLE_STATUSES" default:"shipped,delivered"`
	MinimumPayout           decimal.Decimal `envconfig:"PACKFINDERZ_ESCROW_MINIMUM_PAYOUT" default:"50"`
	PayoutBatchSize         int             `envconfig:"PACKFINDERZ_ESCROW_PAYOUT_BATCH_SIZE" default:"100"`
	PayoutParallelism       int             `envconfig:"PACKFINDERZ_ESCROW_PAYOUT_PARALLELISM" default:"4"`
	PayoutStaleAfterMinutes int             `envconfig:"PACKFINDERZ_ESCROW_PAYOUT_STALE_AFTER_MINUTES" default:"60"`
	ExportRowCap            int             `envconfig:"PACKFINDERZ_ESCROW_EXPORT_ROW_CAP" default:"5000"`
	OrderNumberPrefix       string          `envconfig:"PACKFINDERZ_ESCROW_ORDER_NUMBER_PREFIX" default:"PF"`
	PayoutTransferCurrency  string          `envconfig:"PACKFINDERZ_ESCROW_PAYOUT_CURRENCY" default:"usd"`
	PayoutGatewayDisabled   bool            `envconfig:"PACKFINDERZ_ESCROW_PAYOUT_GATEWAY_DISABLED" default:"false"`
}

func (e EscrowConfig) validate() error {
	if e.CommissionRate.IsNegative() || e.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be between 0 and 1", EnvCommissionRate)
	}
	if e.MinimumPayout.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvMinimumPayout)
	}
	if e.PayoutStaleAfterMinutes < 1 {
		return fmt.Errorf("%s must be at least 1", EnvPayoutStaleAfter)
	}
	if len(e.PayoutEligibleStatuses) == 0 {
		return fmt.Errorf("%s requires at least one status", EnvPayoutEligibleStatus)
	}
	return nil
}

// SettlementConfig controls the monthly close and invoice numbering.
type SettlementConfig struct {
	CloseDay      int             `envconfig:"PACKFINDERZ_SETTLEMENT_CLOSE_DAY" default:"1"`
	TimeZone      string          `envconfig:"PACKFINDERZ_SETTLEMENT_TIME_ZONE" default:"UTC"`
	InvoiceSeries string          `envconfig:"PACKFINDERZ_SETTLEMENT_INVOICE_SERIES" default:"PFC"`
	TaxRate       decimal.Decimal `envconfig:"PACKFINDERZ_SETTLEMENT_TAX_RATE" default:"0"`
	IssuerName    string          `envconfig:"PACKFINDERZ_SETTLEMENT_ISSUER_NAME" default:"PackFinderz Marketplace"`
	ExportEnabled bool            `envconfig:"PACKFINDERZ_SETTLEMENT_EXPORT_ENABLED" default:"false"`
}

// Location resolves the configured settlement time zone.
func (s SettlementConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(s.TimeZone)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func (s SettlementConfig) validate() error {
	if s.CloseDay < 1 || s.CloseDay > 28 {
		return fmt.Errorf("%s must be between 1 and 28", EnvSettlementCloseDay)
	}
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("%s: %w", EnvSettlementTimeZone, err)
	}
	if strings.TrimSpace(s.InvoiceSeries) == "" {
		return fmt.Errorf("%s is required", EnvSettlementInvoiceSers)
	}
	if s.TaxRate.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvSettlementInvoiceTax)
	}
	return nil
}

type CasesConfig struct {
	ReturnWindowDays      int `envconfig:"PACKFINDERZ_CASES_RETURN_WINDOW_DAYS" default:"14"`
	FirstResponseSLAHours int `envconfig:"PACKFINDERZ_CASES_FIRST_RESPONSE_SLA_HOURS" default:"48"`
	ResolutionSLAHours    int `envconfig:"PACKFINDERZ_CASES_RESOLUTION_SLA_HOURS" default:"168"`
}

type ShippingConfig struct {
	MockMode      bool   `envconfig:"PACKFINDERZ_SHIPPING_MOCK_MODE" default:"true"`
	ProviderID    string `envconfig:"PACKFINDERZ_SHIPPING_PROVIDER_ID" default:"mock"`
	WebhookSecret string `envconfig:"PACKFINDERZ_SHIPPING_WEBHOOK_SECRET"`
}

type PaymentsConfig struct {
	OutcomeSecret string `envconfig:"PACKFINDERZ_PAYMENTS_OUTCOME_SECRET"`
	WebhookSecret string `envconfig:"PACKFINDERZ_PAYMENTS_WEBHOOK_SECRET"`
}

// RateLimitConfig throttles the unauthenticated webhook surface per client IP.
type RateLimitConfig struct {
	WebhookWindow  time.Duration `envconfig:"PACKFINDERZ_RATE_LIMIT_WEBHOOK_WINDOW" default:"1m"`
	WebhookIPLimit int           `envconfig:"PACKFINDERZ_RATE_LIMIT_WEBHOOK_IP_LIMIT" default:"120"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"PACKFINDERZ_CRON_INTERVAL" default:"1h"`
	LockKey  string        `envconfig:"PACKFINDERZ_CRON_LOCK_KEY"`
	LockTTL  time.Duration `envconfig:"PACKFINDERZ_CRON_LOCK_TTL" default:"55m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
