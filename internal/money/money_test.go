package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Test MinimumIncrement
func TestMinimumIncrement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		currentHigh float64
		percent     float64
		want        float64
	}{
		{name: "round_amount", currentHigh: 1000, percent: 10, want: 100},
		{name: "fractional_rounds_up", currentHigh: 1055, percent: 10, want: 106},
		{name: "small_amount", currentHigh: 5, percent: 10, want: 1},
		{name: "no_current_high", currentHigh: 0, percent: 10, want: 0},
		{name: "negative_current_high", currentHigh: -100, percent: 10, want: 0},
		{name: "other_percent", currentHigh: 1000, percent: 5, want: 50},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, MinimumIncrement(tc.currentHigh, tc.percent))
		})
	}
}

// Test MinimumNextBid
func TestMinimumNextBid(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1100.0, MinimumNextBid(1000, 100))
	require.Equal(t, 0.0, MinimumNextBid(0, 0), "any positive amount opens the bidding")
	require.Equal(t, 116.6, MinimumNextBid(105.6, 11))
}

// Test SuggestedBid
func TestSuggestedBid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		currentHigh float64
		want        float64
	}{
		{name: "round_base", currentHigh: 1000, want: 1150},
		{name: "rounds_to_nearest_ten", currentHigh: 87, want: 100},
		{name: "no_current_high", currentHigh: 0, want: 0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, SuggestedBid(tc.currentHigh))
		})
	}
}

// Test IncrementBetween
func TestIncrementBetween(t *testing.T) {
	t.Parallel()

	inc := IncrementBetween(1100, 1000)
	require.Equal(t, 100.0, inc.Amount)
	require.Equal(t, 10.0, inc.Percent)

	// negative jumps are reported, not rejected; monotonicity is the
	// validator's job
	inc = IncrementBetween(900, 1000)
	require.Equal(t, -100.0, inc.Amount)
	require.Equal(t, -10.0, inc.Percent)

	inc = IncrementBetween(100, 0)
	require.Equal(t, 100.0, inc.Amount)
	require.Equal(t, 0.0, inc.Percent, "no previous bid means no percent")
}

// Test LoserCompensation and PlatformRevenue
func TestSettlementSplit(t *testing.T) {
	t.Parallel()

	// Scenario: 2835 splits into 708.75 compensation and 2126.25 revenue
	comp := LoserCompensation(2835, DefaultCompensationPercent)
	require.Equal(t, 708.75, comp)
	require.Equal(t, 2126.25, PlatformRevenue(2835, comp))

	require.Equal(t, 0.0, LoserCompensation(0, DefaultCompensationPercent))
	require.Equal(t, 0.0, LoserCompensation(-500, DefaultCompensationPercent))
	require.Equal(t, 0.0, PlatformRevenue(-500, 0))
}

// Test FinancialBreakdown sum invariant
func TestFinancialBreakdown(t *testing.T) {
	t.Parallel()

	winningBids := []float64{0.01, 0.03, 1, 10.01, 99.99, 500, 2835, 1234.56, 99999.99}
	for _, w := range winningBids {
		b := FinancialBreakdown(w, DefaultCompensationPercent)
		require.Equal(t, w, b.WinningBid)
		require.InDelta(t, w, b.LoserCompensation+b.PlatformRevenue, 0.01,
			"compensation + revenue must equal the winning bid for %v", w)
		require.Equal(t, 100.0, b.CompensationPercent+b.RevenuePercent)
	}

	b := FinancialBreakdown(2835, DefaultCompensationPercent)
	require.Equal(t, 708.75, b.LoserCompensation)
	require.Equal(t, 2126.25, b.PlatformRevenue)

	// garbage in, zeros out
	b = FinancialBreakdown(-100, DefaultCompensationPercent)
	require.Zero(t, b.WinningBid)
	require.Zero(t, b.LoserCompensation)
	require.Zero(t, b.PlatformRevenue)
}

// Rounding is applied once per output value, half-up at 2 decimals
func TestRoundingPolicy(t *testing.T) {
	t.Parallel()

	// 0.03 * 25% = 0.0075, rounds up to 0.01; revenue is the remainder
	comp := LoserCompensation(0.03, DefaultCompensationPercent)
	require.Equal(t, 0.01, comp)
	require.Equal(t, 0.02, PlatformRevenue(0.03, comp))
}
