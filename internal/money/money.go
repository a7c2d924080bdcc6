// Package money holds the integer-cent arithmetic shared by the
// settlement calculator and the stores. Amounts travel as int64 cents;
// rate math (tax, percentage discounts) goes through shopspring/decimal
// so repeated conversions never accumulate float drift.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PercentOf returns percent% of amountCents, rounded half away from zero.
func PercentOf(amountCents int64, percent float64) int64 {
	if amountCents == 0 || percent == 0 {
		return 0
	}
	return decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromFloat(percent)).
		Div(hundred).
		Round(0).
		IntPart()
}

// ApplyRate multiplies amountCents by a fractional rate (e.g. 0.15 for
// 15% tax), rounded half away from zero.
func ApplyRate(amountCents int64, rate decimal.Decimal) int64 {
	if amountCents == 0 || rate.IsZero() {
		return 0
	}
	return decimal.NewFromInt(amountCents).Mul(rate).Round(0).IntPart()
}

// ParseRate parses a fractional rate such as "0.15". Rates outside
// [0, 1) are rejected.
func ParseRate(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	rate, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid rate %q: %w", raw, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, fmt.Errorf("rate %q out of range [0,1)", raw)
	}
	return rate, nil
}

// PointsValue converts loyalty points to their cent value.
func PointsValue(points int64, pointValueCents int64) int64 {
	if points <= 0 || pointValueCents <= 0 {
		return 0
	}
	return points * pointValueCents
}

// EarnedPoints returns the loyalty points earned on a sale amount at
// pointsPerDollar points per 100 cents, truncated (never rounded up).
func EarnedPoints(amountCents int64, pointsPerDollar int64) int64 {
	if amountCents <= 0 || pointsPerDollar <= 0 {
		return 0
	}
	return amountCents * pointsPerDollar / 100
}

// Clamp pins v into [lo, hi].
func Clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
