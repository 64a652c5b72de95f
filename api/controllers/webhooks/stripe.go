package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/packfinderz-escrow/api/responses"
	"github.com/angelmondragon/packfinderz-escrow/api/validators"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
)

const stripeSignatureHeader = "Stripe-Signature"

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// StripeVerifier checks a delivery's signature and decodes the event.
type StripeVerifier interface {
	VerifyWebhook(payload []byte, signature string) (stripe.Event, error)
}

type stripeWebhookGuard interface {
	MarkSeen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// StripeWebhook applies each verified Stripe event at most once. The event id
// is marked before handling and unmarked when handling fails, so Stripe's own
// retry runs it again.
func StripeWebhook(svc StripeWebhookService, verifier StripeVerifier, guard stripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		switch {
		case svc == nil:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		case verifier == nil:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		case guard == nil:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		signature := r.Header.Get(stripeSignatureHeader)
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "stripe signature missing"))
			return
		}
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validators.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		event, err := verifier.VerifyWebhook(payload, signature)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "stripe signature rejected"))
			return
		}
		ctx = logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})

		seen, err := guard.MarkSeen(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if seen {
			logg.Info(ctx, "stripe event already processed")
			responses.WriteSuccess(w, map[string]any{"duplicate": true})
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if delErr := guard.Forget(ctx, event.ID); delErr != nil {
				logg.Error(ctx, "failed to release stripe event mark", delErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		logg.Info(ctx, "stripe event processed")
		responses.WriteSuccess(w, map[string]any{"duplicate": false})
	}
}
