package escrow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
)

// Summary is the state of an allocation derived from its ledger.
type Summary struct {
	Held             decimal.Decimal
	ReleasedToBuyer  decimal.Decimal
	ReleasedToSeller decimal.Decimal
	Commission       decimal.Decimal
	SellerPayout     decimal.Decimal
	// Outstanding is the seller payout not yet transferred.
	Outstanding decimal.Decimal
	// Overpaid is what was transferred beyond the current payout, which happens
	// when a refund lands after the seller was paid.
	Overpaid   decimal.Decimal
	Eligible   bool
	EligibleAt *time.Time
}

// Remaining is the amount that can still be released to the buyer.
func (s Summary) Remaining() decimal.Decimal {
	return ClampZero(s.Held.Sub(s.ReleasedToBuyer))
}

// Fold derives the allocation state from its entries. It is the only place
// commission and payout are computed.
func Fold(rate decimal.Decimal, entries []models.EscrowLedgerEntry) (Summary, error) {
	s := Summary{
		Held:             decimal.Zero,
		ReleasedToBuyer:  decimal.Zero,
		ReleasedToSeller: decimal.Zero,
	}
	for _, entry := range entries {
		if entry.Amount.IsNegative() {
			return Summary{}, integrityError("negative ledger amount", entry)
		}
		switch entry.Type {
		case enums.LedgerEntryHold:
			s.Held = s.Held.Add(entry.Amount)
		case enums.LedgerEntryReleaseToBuyer:
			s.ReleasedToBuyer = s.ReleasedToBuyer.Add(entry.Amount)
		case enums.LedgerEntryReleaseToSeller:
			s.ReleasedToSeller = s.ReleasedToSeller.Add(entry.Amount)
		case enums.LedgerEntryPayoutEligible:
			if !s.Eligible {
				at := entry.CreatedAt
				s.Eligible = true
				s.EligibleAt = &at
			}
		default:
			return Summary{}, integrityError("unknown ledger entry type", entry)
		}
	}

	if s.ReleasedToBuyer.GreaterThan(s.Held) {
		return Summary{}, pkgerrors.New(pkgerrors.CodeIntegrity, "released to buyer exceeds held amount").
			WithDetails(map[string]any{"held": s.Held.String(), "releasedToBuyer": s.ReleasedToBuyer.String()})
	}

	net := s.Held.Sub(s.ReleasedToBuyer)
	s.Commission = decimal.Min(Commission(rate, net), net)
	s.SellerPayout = ClampZero(s.Held.Sub(s.Commission).Sub(s.ReleasedToBuyer))

	if !s.Commission.Add(s.SellerPayout).Add(s.ReleasedToBuyer).Equal(s.Held) {
		return Summary{}, pkgerrors.New(pkgerrors.CodeIntegrity, "allocation does not reconcile to held amount").
			WithDetails(map[string]any{
				"held":            s.Held.String(),
				"commission":      s.Commission.String(),
				"sellerPayout":    s.SellerPayout.String(),
				"releasedToBuyer": s.ReleasedToBuyer.String(),
			})
	}

	s.Outstanding = ClampZero(s.SellerPayout.Sub(s.ReleasedToSeller))
	s.Overpaid = ClampZero(s.ReleasedToSeller.Sub(s.SellerPayout))
	return s, nil
}

// FoldAsOf folds only the entries recorded strictly before cutoff.
func FoldAsOf(rate decimal.Decimal, entries []models.EscrowLedgerEntry, cutoff time.Time) (Summary, error) {
	scoped := make([]models.EscrowLedgerEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.CreatedAt.Before(cutoff) {
			scoped = append(scoped, entry)
		}
	}
	return Fold(rate, scoped)
}

// Refresh re-folds the allocation and copies the result onto its cached
// columns.
func Refresh(alloc *models.EscrowAllocation) (Summary, error) {
	s, err := Fold(alloc.CommissionRate, alloc.Entries)
	if err != nil {
		return Summary{}, err
	}
	alloc.HeldAmount = s.Held
	alloc.CommissionAmount = s.Commission
	alloc.SellerPayoutAmount = s.SellerPayout
	alloc.ReleasedToBuyer = s.ReleasedToBuyer
	alloc.ReleasedToSeller = s.ReleasedToSeller
	alloc.PayoutEligible = s.Eligible
	alloc.EligibleAt = s.EligibleAt
	return s, nil
}

// NewAllocation builds an allocation for a sub-order holding amount.
func NewAllocation(sub *models.SubOrder, currency string, rate decimal.Decimal, at time.Time) (*models.EscrowAllocation, error) {
	alloc := &models.EscrowAllocation{
		ID:             uuid.New(),
		SubOrderID:     sub.ID,
		OrderID:        sub.OrderID,
		SellerID:       sub.SellerID,
		Currency:       currency,
		CommissionRate: rate,
		PayoutStatus:   enums.PayoutStatusScheduled,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	if _, err := Append(alloc, enums.LedgerEntryHold, sub.GrandTotal, "hold for "+sub.SubOrderNumber, at); err != nil {
		return nil, err
	}
	return alloc, nil
}

// Append adds an entry to the allocation, re-folds it and returns the new
// entry so callers can persist it. The allocation is left untouched when the
// entry would break the ledger. A PayoutEligible entry on an already eligible
// allocation is a no-op and returns nil.
func Append(alloc *models.EscrowAllocation, typ enums.LedgerEntryType, amount decimal.Decimal, note string, at time.Time) (*models.EscrowLedgerEntry, error) {
	if !typ.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry type %q", typ))
	}
	amount = Round(amount)
	switch typ {
	case enums.LedgerEntryPayoutEligible:
		amount = decimal.Zero
	case enums.LedgerEntryHold:
		if len(alloc.Entries) > 0 {
			return nil, pkgerrors.New(pkgerrors.CodeIntegrity, "hold must be the first ledger entry")
		}
		if amount.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold amount must not be negative")
		}
	default:
		if !amount.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger release amount must be positive")
		}
	}

	before, err := Fold(alloc.CommissionRate, alloc.Entries)
	if err != nil {
		return nil, err
	}
	switch typ {
	case enums.LedgerEntryReleaseToBuyer:
		if amount.GreaterThan(before.Remaining()) {
			return nil, pkgerrors.New(pkgerrors.CodeIntegrity, "release to buyer exceeds remaining escrow").
				WithDetails(map[string]any{"amount": amount.String(), "remaining": before.Remaining().String()})
		}
	case enums.LedgerEntryReleaseToSeller:
		if amount.GreaterThan(before.Outstanding) {
			return nil, pkgerrors.New(pkgerrors.CodeIntegrity, "release to seller exceeds outstanding payout").
				WithDetails(map[string]any{"amount": amount.String(), "outstanding": before.Outstanding.String()})
		}
	case enums.LedgerEntryPayoutEligible:
		if before.Eligible {
			return nil, nil
		}
	}

	entry := models.EscrowLedgerEntry{
		ID:           uuid.New(),
		AllocationID: alloc.ID,
		Sequence:     len(alloc.Entries) + 1,
		Type:         typ,
		Amount:       amount,
		Note:         note,
		CreatedAt:    at.UTC(),
	}
	alloc.Entries = append(alloc.Entries, entry)
	if _, err := Refresh(alloc); err != nil {
		alloc.Entries = alloc.Entries[:len(alloc.Entries)-1]
		return nil, err
	}
	alloc.UpdatedAt = at.UTC()
	created := alloc.Entries[len(alloc.Entries)-1]
	return &created, nil
}

func integrityError(msg string, entry models.EscrowLedgerEntry) error {
	return pkgerrors.New(pkgerrors.CodeIntegrity, msg).WithDetails(map[string]any{
		"entryId":  entry.ID.String(),
		"sequence": entry.Sequence,
		"type":     string(entry.Type),
	})
}
