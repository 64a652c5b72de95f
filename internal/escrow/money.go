package escrow

import "github.com/shopspring/decimal"

// Precision is the number of decimal places kept for every stored amount.
const Precision int32 = 2

// Round applies the single rounding policy used for commission, payout,
// refund and tax math: half away from zero at Precision places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Precision)
}

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Commission is rate x base, rounded and never negative.
func Commission(rate, base decimal.Decimal) decimal.Decimal {
	return ClampZero(Round(rate.Mul(base)))
}

// ItemRefundable is the line total minus the line's pro-rated share of the
// sub-order discount.
func ItemRefundable(lineTotal, discountTotal, linesTotal decimal.Decimal) decimal.Decimal {
	if !lineTotal.IsPositive() {
		return decimal.Zero
	}
	share := decimal.Zero
	if discountTotal.IsPositive() && linesTotal.IsPositive() {
		share = discountTotal.Mul(lineTotal).Div(linesTotal)
	}
	return ClampZero(Round(lineTotal.Sub(decimal.Min(lineTotal, share))))
}

// Sum adds amounts without rounding.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
