package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/packfinderz-escrow/pkg/config"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
)

// Mode is the Stripe account mode the API key belongs to.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

var keyPrefixes = map[Mode][]string{
	ModeTest: {"sk_test_", "rk_test_"},
	ModeLive: {"sk_live_", "rk_live_"},
}

// ErrWebhookSecretMissing is returned by VerifyWebhook on a client built
// without an endpoint secret.
var ErrWebhookSecretMissing = errors.New("stripe webhook secret not configured")

// Client holds the Stripe API client and the webhook endpoint secret. Payout
// transfers go through the API; inbound deliveries through VerifyWebhook.
type Client struct {
	api           *stripe.Client
	mode          Mode
	webhookSecret string
}

// NewClient refuses a key whose prefix does not match the configured mode, so
// a live key can never be loaded into a test deployment or the reverse.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := Mode(cfg.Environment())
	prefixes, ok := keyPrefixes[mode]
	if !ok {
		return nil, fmt.Errorf("stripe mode must be %q or %q, got %q", ModeTest, ModeLive, cfg.Env)
	}

	key := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case key == "":
		return nil, errors.New("stripe api key is required")
	case secret == "":
		return nil, errors.New("stripe webhook secret is required")
	case !hasAnyPrefix(key, prefixes):
		return nil, fmt.Errorf("stripe %s mode needs a key starting with %s", mode, strings.Join(prefixes, " or "))
	}

	// the resource packages (transfer.New) read the package-level key
	stripe.Key = key

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_mode", string(mode)), "stripe client initialized")
	}
	return &Client{api: stripe.NewClient(key), mode: mode, webhookSecret: secret}, nil
}

func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

func (c *Client) Mode() Mode {
	if c == nil {
		return ""
	}
	return c.mode
}

// VerifyWebhook checks the Stripe-Signature header against the endpoint
// secret and decodes the event. Deliveries older than the library's default
// tolerance are rejected.
func (c *Client) VerifyWebhook(payload []byte, signature string) (stripe.Event, error) {
	if c == nil || c.webhookSecret == "" {
		return stripe.Event{}, ErrWebhookSecretMissing
	}
	return webhook.ConstructEvent(payload, signature, c.webhookSecret)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
