package webhooks

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-escrow/api/responses"
	"github.com/angelmondragon/packfinderz-escrow/api/validators"
	"github.com/angelmondragon/packfinderz-escrow/internal/payments"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
)

type PaymentStatusService interface {
	UpdatePaymentStatus(ctx context.Context, input payments.UpdateInput) (*payments.Result, error)
}

type paymentWebhookRequest struct {
	PaymentReference string           `json:"payment_reference" validate:"required,max=255"`
	Status           string           `json:"status" validate:"required"`
	RefundedAmount   *decimal.Decimal `json:"refunded_amount,omitempty" validate:"omitempty,money"`
	Message          *string          `json:"message,omitempty" validate:"omitempty,max=1000"`
	SubOrderNumber   *string          `json:"sub_order_number,omitempty"`
}

// PaymentWebhook applies a signed payment status notification from the
// payment provider. Updates are idempotent so replays need no guard.
func PaymentWebhook(svc PaymentStatusService, signer BodySigner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
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

		var req paymentWebhookRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status, err := enums.ParsePaymentStatus(req.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status"))
			return
		}

		result, err := svc.UpdatePaymentStatus(ctx, payments.UpdateInput{
			PaymentReference: req.PaymentReference,
			Status:           status,
			RefundedAmount:   req.RefundedAmount,
			Message:          req.Message,
			SubOrderNumber:   req.SubOrderNumber,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
