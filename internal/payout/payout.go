// Package payout computes release and refund amounts for escrow
// settlements. All arithmetic is fixed-point with 9 fractional digits
// (the native TON precision) and truncates toward zero at each step, so
// the результат совпадает с тем, что реально спишется в нанотонах.
package payout

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NanoDigits — дробная точность TON (1 TON = 1e9 nanoTON).
const NanoDigits = 9

var hundred = decimal.NewFromInt(100)

// Principal returns the settled base amount: min(expected, received).
// Guards against partial and over-payment.
func Principal(expected, received decimal.Decimal) decimal.Decimal {
	if received.LessThan(expected) {
		return received
	}
	return expected
}

// ReleaseAmount = floor9(principal - floor9(principal * feePercent / 100) - networkFee).
// Truncation happens at each step, not once at the end. Never negative:
// a zero or negative result means the transfer is skipped but still
// recorded.
func ReleaseAmount(principal, feePercent, networkFee decimal.Decimal) decimal.Decimal {
	fee := principal.Mul(feePercent).Div(hundred).Truncate(NanoDigits)
	out := principal.Sub(fee).Sub(networkFee).Truncate(NanoDigits)
	if out.Sign() < 0 {
		return decimal.Zero
	}
	return out
}

// RefundAmount = floor9(principal - networkFee), clamped at zero.
func RefundAmount(principal, networkFee decimal.Decimal) decimal.Decimal {
	out := principal.Sub(networkFee).Truncate(NanoDigits)
	if out.Sign() < 0 {
		return decimal.Zero
	}
	return out
}

// ParseTON parses a decimal TON string ("10.5") used across the DB layer.
func ParseTON(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty TON amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid TON amount %q: %w", s, err)
	}
	return d, nil
}

// ToNano converts a TON amount to integer nanoTON, truncating anything
// past the 9th digit.
func ToNano(d decimal.Decimal) int64 {
	return d.Shift(NanoDigits).Truncate(0).IntPart()
}

// FromNano converts integer nanoTON back to a TON amount.
func FromNano(nano int64) decimal.Decimal {
	return decimal.NewFromInt(nano).Shift(-NanoDigits)
}
