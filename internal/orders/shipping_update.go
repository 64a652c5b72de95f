package orders

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-escrow/internal/shipping"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
)

// ApplyShippingUpdate applies a carrier status callback to the sub-order it
// references. Informational, stale or out-of-order statuses are no-ops.
func (s *service) ApplyShippingUpdate(ctx context.Context, input ShippingUpdateInput) (*TransitionResult, error) {
	providerID := strings.TrimSpace(input.ProviderID)
	reference := strings.TrimSpace(input.Reference)
	if providerID == "" || reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider id and reference required")
	}
	if _, ok := s.shipping.Get(providerID); !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown shipping provider")
	}

	sub, err := s.repo.FindSubOrderByProviderRef(ctx, providerID, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no sub-order for provider reference")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup sub-order by provider reference")
	}

	target, ok := shipping.MapProviderStatus(input.Status)
	if !ok {
		s.warnShippingUpdate(ctx, input, "ignored unmapped carrier status")
		return &TransitionResult{From: sub.Status, To: sub.Status, NoOp: true}, nil
	}

	var result *TransitionResult
	_, err = s.MutateOrder(ctx, sub.OrderID, SystemActor, func(m *Mutation) error {
		locked, err := m.SubOrder(sub.ID)
		if err != nil {
			return err
		}
		if isStaleCarrierStatus(locked.Status, target) {
			result = &TransitionResult{From: locked.Status, To: locked.Status, NoOp: true}
			return nil
		}
		result, err = m.Transition(locked, TransitionRequest{
			Target:         target,
			TrackingNumber: input.TrackingNumber,
			Carrier:        input.Carrier,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.NoOp {
		s.warnShippingUpdate(ctx, input, "carrier status already applied")
	}
	return result, nil
}

func isStaleCarrierStatus(current, target enums.OrderStatus) bool {
	if current.IsTerminal() {
		return true
	}
	if target.Progress() >= 0 && current.Progress() >= target.Progress() {
		return true
	}
	return !CanTransition(current, target) && current != target
}

func (s *service) warnShippingUpdate(ctx context.Context, input ShippingUpdateInput, msg string) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"provider_id": input.ProviderID,
		"reference":   input.Reference,
		"status":      input.Status,
	})
	s.logg.Warn(ctx, msg)
}
