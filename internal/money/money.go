// Package money holds the pure arithmetic for increments, minimum bids and
// the winner/loser settlement split. Every calculation runs on decimals and
// rounds half-up to the minor currency unit exactly once per output value,
// so no figure carries compounded rounding error.
package money

import (
	"github.com/shopspring/decimal"

	"night-auction/internal/models"
)

const (
	// DefaultIncrementPercent is the percentage of the current high bid a
	// new bid must add on top of it.
	DefaultIncrementPercent = 10.0

	// DefaultCompensationPercent is the share of the winning bid paid to
	// the losing participant.
	DefaultCompensationPercent = 25.0
)

// round2 rounds to 2 decimal places, half away from zero.
func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// MinimumIncrement returns the absolute amount a new bid must exceed the
// current high bid by: ceil(currentHigh * incrementPercent / 100). With no
// current high bid there is nothing to increment from and the result is 0.
func MinimumIncrement(currentHigh, incrementPercent float64) float64 {
	if currentHigh <= 0 {
		return 0
	}
	d := decimal.NewFromFloat(currentHigh).
		Mul(decimal.NewFromFloat(incrementPercent)).
		Div(decimal.NewFromInt(100)).
		Ceil()
	f, _ := d.Float64()
	return f
}

// MinimumNextBid returns the lowest amount the next bid may carry. A session
// with no high bid accepts any positive amount.
func MinimumNextBid(currentHigh, increment float64) float64 {
	if currentHigh <= 0 {
		return 0
	}
	return round2(decimal.NewFromFloat(currentHigh).Add(decimal.NewFromFloat(increment)))
}

// SuggestedBid returns a display hint of roughly 115% of the current high
// bid, rounded to the nearest 10.
func SuggestedBid(currentHigh float64) float64 {
	if currentHigh <= 0 {
		return 0
	}
	d := decimal.NewFromFloat(currentHigh).
		Mul(decimal.NewFromFloat(1.15)).
		Div(decimal.NewFromInt(10)).
		Round(0).
		Mul(decimal.NewFromInt(10))
	f, _ := d.Float64()
	return f
}

// BidIncrement describes the jump between two consecutive bids.
type BidIncrement struct {
	Amount  float64 `json:"amount"`
	Percent float64 `json:"percent"`
}

// IncrementBetween computes the absolute and relative jump from previousBid
// to newBid. Negative results are allowed; monotonicity is the caller's rule
// to enforce, not this function's.
func IncrementBetween(newBid, previousBid float64) BidIncrement {
	amount := round2(decimal.NewFromFloat(newBid).Sub(decimal.NewFromFloat(previousBid)))
	inc := BidIncrement{Amount: amount}
	if previousBid > 0 {
		inc.Percent = round2(decimal.NewFromFloat(amount).
			Div(decimal.NewFromFloat(previousBid)).
			Mul(decimal.NewFromInt(100)))
	}
	return inc
}

// LoserCompensation returns the losing participant's share of the winning
// bid. A non-positive winning bid yields 0 rather than propagating garbage.
func LoserCompensation(winningBid, compensationPercent float64) float64 {
	if winningBid <= 0 {
		return 0
	}
	return round2(decimal.NewFromFloat(winningBid).
		Mul(decimal.NewFromFloat(compensationPercent)).
		Div(decimal.NewFromInt(100)))
}

// PlatformRevenue is the remainder of the winning bid after compensation.
// Computing it as a remainder, never as an independently rounded percentage,
// keeps compensation + revenue exactly equal to the winning bid.
func PlatformRevenue(winningBid, compensation float64) float64 {
	if winningBid <= 0 {
		return 0
	}
	return round2(decimal.NewFromFloat(winningBid).Sub(decimal.NewFromFloat(compensation)))
}

// FinancialBreakdown computes the full settlement split for a winning bid.
func FinancialBreakdown(winningBid, compensationPercent float64) models.CompensationBreakdown {
	compensation := LoserCompensation(winningBid, compensationPercent)
	breakdown := models.CompensationBreakdown{
		LoserCompensation:   compensation,
		PlatformRevenue:     PlatformRevenue(winningBid, compensation),
		CompensationPercent: compensationPercent,
		RevenuePercent:      100 - compensationPercent,
	}
	if winningBid > 0 {
		breakdown.WinningBid = winningBid
	}
	return breakdown
}
