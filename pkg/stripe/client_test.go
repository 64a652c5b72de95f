package stripe

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/packfinderz-escrow/pkg/config"
)

func TestNewClientChecksKeyAgainstMode(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.StripeConfig
		ok   bool
	}{
		{"test key in test mode", config.StripeConfig{APIKey: "sk_test_abc", Secret: "whsec_1", Env: "test"}, true},
		{"restricted live key", config.StripeConfig{APIKey: "rk_live_abc", Secret: "whsec_1", Env: "LIVE"}, true},
		{"live key in test mode", config.StripeConfig{APIKey: "sk_live_abc", Secret: "whsec_1", Env: "test"}, false},
		{"unknown mode", config.StripeConfig{APIKey: "sk_test_abc", Secret: "whsec_1", Env: "staging"}, false},
		{"missing secret", config.StripeConfig{APIKey: "sk_test_abc", Env: "test"}, false},
		{"missing key", config.StripeConfig{Secret: "whsec_1"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tc.cfg, nil)
			if !tc.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client.API())
		})
	}
}

func TestVerifyWebhook(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_abc", Secret: "whsec_test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeTest, client.Mode())

	payload, err := json.Marshal(stripe.Event{ID: "evt_1", Object: "event", APIVersion: stripe.APIVersion, Type: stripe.EventTypePaymentIntentSucceeded})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: "whsec_test", Timestamp: time.Now()})

	event, err := client.VerifyWebhook(payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)

	_, err = client.VerifyWebhook(payload, "t=1,v1=deadbeef")
	assert.Error(t, err)

	var missing *Client
	_, err = missing.VerifyWebhook(payload, signed.Header)
	assert.ErrorIs(t, err, ErrWebhookSecretMissing)
}
