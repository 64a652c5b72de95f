package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/packfinderz-escrow/pkg/config"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox/idempotency"
	pkgstripe "github.com/angelmondragon/packfinderz-escrow/pkg/stripe"
)

const testWebhookSecret = "whsec_test"

type stripeFixture struct {
	service *fakeStripeWebhookService
	handler http.HandlerFunc
}

func newStripeFixture(t *testing.T) *stripeFixture {
	t.Helper()
	client, err := pkgstripe.NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_fixture", Secret: testWebhookSecret}, nil)
	require.NoError(t, err)
	guard, err := idempotency.NewGuard(newMemoryStore(), "stripe-webhook", time.Minute)
	require.NoError(t, err)

	svc := &fakeStripeWebhookService{}
	logg := logger.New(logger.Options{ServiceName: "webhooks-test", Level: zerolog.Disabled, Output: io.Discard})
	return &stripeFixture{service: svc, handler: StripeWebhook(svc, client, guard, logg)}
}

func (f *stripeFixture) deliver(payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(stripeSignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func signedPaymentIntentEvent(t *testing.T) ([]byte, string) {
	t.Helper()
	intent, err := json.Marshal(stripe.PaymentIntent{
		ID:       "pi_" + uuid.NewString(),
		Status:   stripe.PaymentIntentStatusSucceeded,
		Amount:   5500,
		Currency: stripe.CurrencyUSD,
	})
	require.NoError(t, err)
	payload, err := json.Marshal(stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       stripe.EventTypePaymentIntentSucceeded,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: intent},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testWebhookSecret, Timestamp: time.Now()})
	return payload, signed.Header
}

func TestStripeWebhookProcessesEventOnce(t *testing.T) {
	f := newStripeFixture(t)
	payload, signature := signedPaymentIntentEvent(t)

	first := f.deliver(payload, signature)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.JSONEq(t, `{"data":{"duplicate":false}}`, first.Body.String())

	replay := f.deliver(payload, signature)
	require.Equal(t, http.StatusOK, replay.Code, replay.Body.String())
	assert.JSONEq(t, `{"data":{"duplicate":true}}`, replay.Body.String())
	assert.Equal(t, 1, f.service.calls)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	f := newStripeFixture(t)
	payload, _ := signedPaymentIntentEvent(t)

	assert.Equal(t, http.StatusUnauthorized, f.deliver(payload, "t=1,v1=invalid").Code)
	assert.Equal(t, http.StatusUnauthorized, f.deliver(payload, "").Code)
	assert.Zero(t, f.service.calls)
}

func TestStripeWebhookReleasesMarkOnFailure(t *testing.T) {
	f := newStripeFixture(t)
	f.service.err = errors.New("db down")
	payload, signature := signedPaymentIntentEvent(t)

	assert.NotEqual(t, http.StatusOK, f.deliver(payload, signature).Code)

	f.service.err = nil
	retry := f.deliver(payload, signature)
	require.Equal(t, http.StatusOK, retry.Code, retry.Body.String())
	assert.Equal(t, 2, f.service.calls)
}

func TestStripeWebhookWithoutVerifier(t *testing.T) {
	rec := httptest.NewRecorder()
	StripeWebhook(&fakeStripeWebhookService{}, nil, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type fakeStripeWebhookService struct {
	calls int
	err   error
}

func (f *fakeStripeWebhookService) HandleEvent(ctx context.Context, event *stripe.Event) error {
	f.calls++
	return f.err
}

// memoryStore satisfies idempotency.Store.
type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "pf:idempotency:" + scope + ":" + id
}

func (s *memoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
