package payment

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a major-unit amount (e.g. rupees) to minor units
// (paise), rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts minor units back to a major-unit decimal.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// SplitFee returns the platform fee (amount * rate, rounded to 2 places) and
// the creator's share (amount - fee). The two always add up to amount.
func SplitFee(amount, rate decimal.Decimal) (fee, earnings decimal.Decimal) {
	fee = amount.Mul(rate).Round(2)
	earnings = amount.Sub(fee)
	return fee, earnings
}
