package escrow

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
)

var (
	rate10 = decimal.RequireFromString("0.10")
	t0     = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newAlloc(t *testing.T, held string) *models.EscrowAllocation {
	t.Helper()
	sub := &models.SubOrder{
		ID:             uuid.New(),
		OrderID:        uuid.New(),
		SellerID:       uuid.New(),
		SubOrderNumber: "20260302-ABCDEF12-1",
		GrandTotal:     dec(held),
	}
	alloc, err := NewAllocation(sub, "USD", rate10, t0)
	require.NoError(t, err)
	return alloc
}

func assertReconciles(t *testing.T, alloc *models.EscrowAllocation) {
	t.Helper()
	sum := alloc.CommissionAmount.Add(alloc.SellerPayoutAmount).Add(alloc.ReleasedToBuyer)
	assert.Truef(t, sum.Equal(alloc.HeldAmount), "commission %s + payout %s + released %s != held %s",
		alloc.CommissionAmount, alloc.SellerPayoutAmount, alloc.ReleasedToBuyer, alloc.HeldAmount)
}

func TestNewAllocationHoldsGrandTotal(t *testing.T) {
	alloc := newAlloc(t, "25")

	require.Len(t, alloc.Entries, 1)
	assert.Equal(t, enums.LedgerEntryHold, alloc.Entries[0].Type)
	assert.Equal(t, 1, alloc.Entries[0].Sequence)
	assert.True(t, alloc.HeldAmount.Equal(dec("25")))
	assert.True(t, alloc.CommissionAmount.Equal(dec("2.5")))
	assert.True(t, alloc.SellerPayoutAmount.Equal(dec("22.5")))
	assert.Equal(t, enums.PayoutStatusScheduled, alloc.PayoutStatus)
	assert.False(t, alloc.PayoutEligible)
	assertReconciles(t, alloc)
}

func TestRefundRecomputesNetOfRefund(t *testing.T) {
	alloc := newAlloc(t, "28")

	entry, err := Append(alloc, enums.LedgerEntryReleaseToBuyer, dec("12"), "refund item", t0.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.Sequence)

	assert.True(t, alloc.ReleasedToBuyer.Equal(dec("12")))
	assert.True(t, alloc.CommissionAmount.Equal(dec("1.6")))
	assert.True(t, alloc.SellerPayoutAmount.Equal(dec("14.4")))
	assert.True(t, alloc.HeldAmount.Equal(dec("28")), "held amount is the audit anchor")
	assertReconciles(t, alloc)
}

func TestRefundSequenceAlwaysReconciles(t *testing.T) {
	alloc := newAlloc(t, "99.99")
	for i, amount := range []string{"0.01", "13.37", "7.77", "33.33", "0.05", "45.46"} {
		_, err := Append(alloc, enums.LedgerEntryReleaseToBuyer, dec(amount), "partial refund", t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		assertReconciles(t, alloc)
		assert.False(t, alloc.CommissionAmount.IsNegative())
		assert.False(t, alloc.SellerPayoutAmount.IsNegative())
	}
	assert.True(t, alloc.ReleasedToBuyer.Equal(dec("99.99")))
	assert.True(t, alloc.CommissionAmount.IsZero())
	assert.True(t, alloc.SellerPayoutAmount.IsZero())
}

func TestReleaseBeyondRemainingIsRejected(t *testing.T) {
	alloc := newAlloc(t, "10")

	_, err := Append(alloc, enums.LedgerEntryReleaseToBuyer, dec("10.01"), "too much", t0)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIntegrity))
	assert.Len(t, alloc.Entries, 1)
	assert.True(t, alloc.ReleasedToBuyer.IsZero())
}

func TestPayoutEligibleIsMonotonic(t *testing.T) {
	alloc := newAlloc(t, "10")

	first, err := Append(alloc, enums.LedgerEntryPayoutEligible, decimal.Zero, "shipped", t0.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NotNil(t, alloc.EligibleAt)
	assert.True(t, alloc.EligibleAt.Equal(t0.Add(time.Hour)))

	second, err := Append(alloc, enums.LedgerEntryPayoutEligible, decimal.Zero, "delivered", t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Len(t, alloc.Entries, 2)

	_, err = Append(alloc, enums.LedgerEntryReleaseToBuyer, dec("10"), "cancel", t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.True(t, alloc.PayoutEligible, "eligibility never reverts")
	assert.True(t, alloc.SellerPayoutAmount.IsZero())
}

func TestReleaseToSellerAndLateRefund(t *testing.T) {
	alloc := newAlloc(t, "100")
	_, err := Append(alloc, enums.LedgerEntryPayoutEligible, decimal.Zero, "shipped", t0)
	require.NoError(t, err)

	_, err = Append(alloc, enums.LedgerEntryReleaseToSeller, dec("90.01"), "payout", t0)
	require.Error(t, err)

	_, err = Append(alloc, enums.LedgerEntryReleaseToSeller, dec("90"), "payout", t0)
	require.NoError(t, err)

	summary, err := Fold(alloc.CommissionRate, alloc.Entries)
	require.NoError(t, err)
	assert.True(t, summary.Outstanding.IsZero())

	_, err = Append(alloc, enums.LedgerEntryReleaseToBuyer, dec("20"), "late refund", t0.Add(time.Hour))
	require.NoError(t, err)
	summary, err = Fold(alloc.CommissionRate, alloc.Entries)
	require.NoError(t, err)
	assert.True(t, summary.SellerPayout.Equal(dec("72")))
	assert.True(t, summary.Overpaid.Equal(dec("18")))
	assert.True(t, summary.Outstanding.IsZero())
	assertReconciles(t, alloc)
}

func TestFoldDetectsDrift(t *testing.T) {
	entries := []models.EscrowLedgerEntry{
		{Type: enums.LedgerEntryHold, Amount: dec("5"), Sequence: 1},
		{Type: enums.LedgerEntryReleaseToBuyer, Amount: dec("6"), Sequence: 2},
	}
	_, err := Fold(rate10, entries)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIntegrity))

	_, err = Fold(rate10, []models.EscrowLedgerEntry{{Type: "bogus", Amount: dec("1")}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIntegrity))
}

func TestFoldAsOfIgnoresLaterEntries(t *testing.T) {
	alloc := newAlloc(t, "50")
	_, err := Append(alloc, enums.LedgerEntryReleaseToBuyer, dec("10"), "refund", t0.Add(48*time.Hour))
	require.NoError(t, err)

	before, err := FoldAsOf(alloc.CommissionRate, alloc.Entries, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, before.ReleasedToBuyer.IsZero())
	assert.True(t, before.SellerPayout.Equal(dec("45")))
}

func TestHoldMustComeFirst(t *testing.T) {
	alloc := newAlloc(t, "50")
	_, err := Append(alloc, enums.LedgerEntryHold, dec("1"), "again", t0)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIntegrity))
}
