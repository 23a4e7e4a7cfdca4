// Package fincalc holds the financial primitives shared by the origination,
// settlement and projection calculators: compound interest on a 30-day month
// convention, IGV application and calendar day counts.
package fincalc

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	one    = decimal.NewFromInt(1)
	thirty = decimal.NewFromInt(30)

	// DefaultIGVRate is the sales tax applied to interest and commissions (18%).
	DefaultIGVRate = decimal.NewFromFloat(0.18)
)

// ErrNegativeDays is returned when a compound-interest calculation is asked for
// a negative day count. Date ordering must be validated by the caller.
var ErrNegativeDays = errors.New("day count must not be negative")

// CompoundInterest computes principal * ((1 + monthlyRate/30)^days - 1).
// The 30-day month base is a contractual convention, not actual days in month.
// A zero day count yields zero interest.
func CompoundInterest(principal, monthlyRate decimal.Decimal, days int) (decimal.Decimal, error) {
	if days < 0 {
		return decimal.Zero, ErrNegativeDays
	}
	if days == 0 {
		return decimal.Zero, nil
	}
	dailyFactor := one.Add(monthlyRate.Div(thirty))
	compounded := dailyFactor.Pow(decimal.NewFromInt(int64(days)))
	return principal.Mul(compounded.Sub(one)), nil
}

// DailyRate is the per-day rate under the 30-day month convention.
func DailyRate(monthlyRate decimal.Decimal) decimal.Decimal {
	return monthlyRate.Div(thirty)
}

// ApplyIGV returns the tax amount on a base amount at the given rate. A zero
// rate falls back to the statutory 18%.
func ApplyIGV(amount, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		rate = DefaultIGVRate
	}
	return amount.Mul(rate)
}

// DayCount is the number of calendar days from start to end, exclusive of the
// end point, matching plain date subtraction. It is negative when end precedes
// start; callers decide whether that is an error (origination) or an early
// payment (settlement).
func DayCount(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours() / 24)
}
