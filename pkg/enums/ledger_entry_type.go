package enums

import "slices"

// LedgerEntryType classifies an escrow ledger entry.
type LedgerEntryType string

const (
	LedgerEntryHold            LedgerEntryType = "hold"
	LedgerEntryReleaseToBuyer  LedgerEntryType = "release_to_buyer"
	LedgerEntryPayoutEligible  LedgerEntryType = "payout_eligible"
	LedgerEntryReleaseToSeller LedgerEntryType = "release_to_seller"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryHold,
	LedgerEntryReleaseToBuyer,
	LedgerEntryPayoutEligible,
	LedgerEntryReleaseToSeller,
}

func (l LedgerEntryType) String() string {
	return string(l)
}

func (l LedgerEntryType) IsValid() bool {
	return slices.Contains(validLedgerEntryTypes, l)
}

func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	return parseEnum("ledger entry type", value, validLedgerEntryTypes)
}
