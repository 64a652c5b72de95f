package webhooks

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-escrow/api/responses"
	"github.com/angelmondragon/packfinderz-escrow/api/validators"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
)

type ShippingUpdateService interface {
	ApplyShippingUpdate(ctx context.Context, input orders.ShippingUpdateInput) (*orders.TransitionResult, error)
}

type shippingWebhookRequest struct {
	Reference      string  `json:"reference" validate:"required,max=255"`
	Status         string  `json:"status" validate:"required,max=64"`
	TrackingNumber *string `json:"tracking_number,omitempty" validate:"omitempty,max=128"`
	Carrier        *string `json:"carrier,omitempty" validate:"omitempty,max=64"`
}

// ShippingWebhook applies a carrier status callback for the provider named
// in the path.
func ShippingWebhook(svc ShippingUpdateService, signer BodySigner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		providerID := strings.TrimSpace(chi.URLParam(r, "providerId"))
		if providerID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "provider id is required"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}
		if err := signer.Verify(payload, r.Header.Get(SignatureHeader)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(payload))

		var req shippingWebhookRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.ApplyShippingUpdate(ctx, orders.ShippingUpdateInput{
			ProviderID:     providerID,
			Reference:      req.Reference,
			Status:         req.Status,
			TrackingNumber: req.TrackingNumber,
			Carrier:        req.Carrier,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
