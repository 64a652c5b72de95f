package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/packfinderz-escrow/internal/payments"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
)

type paymentSynchronizer interface {
	UpdatePaymentStatus(ctx context.Context, input payments.UpdateInput) (*payments.Result, error)
}

type ServiceParams struct {
	Payments paymentSynchronizer
}

// Service translates Stripe payment events into payment status updates
// keyed on the PaymentIntent id, which is the order payment reference.
type Service struct {
	payments paymentSynchronizer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment synchronizer required")
	}
	return &Service{payments: params.Payments}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	input, ok, err := translate(event)
	if err != nil || !ok {
		return err
	}
	_, err = s.payments.UpdatePaymentStatus(ctx, input)
	return err
}

// translate maps a Stripe event onto an update. Events that do not concern
// order payments report ok=false.
func translate(event *stripe.Event) (payments.UpdateInput, bool, error) {
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return payments.UpdateInput{}, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		if intent.ID == "" {
			return payments.UpdateInput{}, false, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
		}
		input := payments.UpdateInput{PaymentReference: intent.ID, Status: enums.PaymentStatusPaid}
		if event.Type == stripe.EventTypePaymentIntentPaymentFailed {
			input.Status = enums.PaymentStatusFailed
			if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
				msg := intent.LastPaymentError.Msg
				input.Message = &msg
			}
		}
		return input, true, nil
	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return payments.UpdateInput{}, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge")
		}
		if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
			return payments.UpdateInput{}, false, pkgerrors.New(pkgerrors.CodeValidation, "charge is not linked to a payment intent")
		}
		refunded := fromMinorUnits(charge.AmountRefunded, string(charge.Currency))
		status := enums.PaymentStatusPartialRefund
		if charge.Refunded {
			status = enums.PaymentStatusRefunded
		}
		return payments.UpdateInput{
			PaymentReference: charge.PaymentIntent.ID,
			Status:           status,
			RefundedAmount:   &refunded,
		}, true, nil
	default:
		return payments.UpdateInput{}, false, nil
	}
}

var zeroDecimalCurrencies = map[string]bool{
	"jpy": true, "krw": true, "vnd": true, "clp": true, "pyg": true, "ugx": true,
}

// fromMinorUnits converts Stripe integer amounts into currency units.
func fromMinorUnits(amount int64, currency string) decimal.Decimal {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}
