package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	model "night-auction/internal/models"
	"night-auction/internal/money"
)

// snapshotWithHigh builds an active two-party session where userA holds the
// high bid at the given amount.
func snapshotWithHigh(high float64, rounds int) model.SessionSnapshot {
	snap := model.SessionSnapshot{
		Session: model.BiddingSession{
			SessionID:        "session1",
			NightID:          "night1",
			Status:           model.StatusActive,
			MaxRoundsPerUser: 3,
			ExpiresAt:        time.Now().UTC().Add(time.Hour),
		},
		Participants: []model.Participant{
			{UserID: "userA", DisplayName: "A"},
			{UserID: "userB", DisplayName: "B"},
		},
	}
	if high > 0 {
		for i := 0; i < rounds; i++ {
			snap.Bids = append(snap.Bids, model.Bid{
				BidID:     "bidA" + string(rune('0'+i)),
				SessionID: "session1",
				UserID:    "userA",
				Amount:    high,
				Round:     i + 1,
				CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
			})
		}
		last := snap.Bids[len(snap.Bids)-1]
		snap.Session.CurrentHighBid = &model.BidRef{BidID: last.BidID, UserID: "userA", Amount: high}
		snap.Session.MinimumIncrement = money.MinimumIncrement(high, money.DefaultIncrementPercent)
	}
	return snap
}

// Test ValidateBid
func TestValidateBid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		snap          model.SessionSnapshot
		bidderID      string
		amount        float64
		wantValid     bool
		wantErrPart   string
		wantWarnCount int
	}{
		{
			name:      "exact_minimum_is_valid",
			snap:      snapshotWithHigh(1000, 1),
			bidderID:  "userB",
			amount:    1100,
			wantValid: true,
		},
		{
			name:        "cent_below_minimum_is_invalid",
			snap:        snapshotWithHigh(1000, 1),
			bidderID:    "userB",
			amount:      1099.99,
			wantValid:   false,
			wantErrPart: "minimum bid is 1100.00",
		},
		{
			name:        "must_exceed_current_high",
			snap:        snapshotWithHigh(1000, 1),
			bidderID:    "userB",
			amount:      1000,
			wantValid:   false,
			wantErrPart: "must exceed the current high bid",
		},
		{
			name:        "high_bidder_cannot_outbid_self",
			snap:        snapshotWithHigh(1000, 1),
			bidderID:    "userA",
			amount:      1100,
			wantValid:   false,
			wantErrPart: "already holds the high bid",
		},
		{
			name:        "fat_finger_circuit_breaker",
			snap:        snapshotWithHigh(1000, 1),
			bidderID:    "userB",
			amount:      2500,
			wantValid:   false,
			wantErrPart: "exceeds the maximum allowed of 2000.00",
			// the 150% warning still fires alongside the error
			wantWarnCount: 1,
		},
		{
			name:      "opening_bid_any_positive_amount",
			snap:      snapshotWithHigh(0, 0),
			bidderID:  "userB",
			amount:    50,
			wantValid: true,
		},
		{
			name:        "opening_bid_must_be_positive",
			snap:        snapshotWithHigh(0, 0),
			bidderID:    "userB",
			amount:      0,
			wantValid:   false,
			wantErrPart: "must be positive",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			res := ValidateBid(tc.snap, tc.bidderID, tc.amount, money.DefaultIncrementPercent)
			require.Equal(t, tc.wantValid, res.Valid)
			if tc.wantErrPart != "" {
				found := false
				for _, msg := range res.Errors {
					if strings.Contains(msg, tc.wantErrPart) {
						found = true
					}
				}
				require.True(t, found, "expected an error containing %q, got %v", tc.wantErrPart, res.Errors)
			}
			if tc.wantWarnCount > 0 {
				require.Len(t, res.Warnings, tc.wantWarnCount)
			}
		})
	}
}

// Every violated rule is reported, not just the first
func TestValidateBid_ReportsAllViolations(t *testing.T) {
	t.Parallel()

	snap := snapshotWithHigh(1000, 3) // userA exhausted all rounds
	snap.Session.Status = model.StatusCompleted

	res := ValidateBid(snap, "userA", 500, money.DefaultIncrementPercent)
	require.False(t, res.Valid)
	// below high, below minimum, already high bidder, not active, round cap
	require.Len(t, res.Errors, 5)
}

// Derived bounds are returned regardless of validity
func TestValidateBid_DerivedBounds(t *testing.T) {
	t.Parallel()

	snap := snapshotWithHigh(1000, 1)
	res := ValidateBid(snap, "userB", 1099, money.DefaultIncrementPercent)
	require.Equal(t, 1100.0, res.MinimumNextBid)
	require.Equal(t, 2000.0, res.MaximumAllowed)
	require.Equal(t, 1150.0, res.SuggestedBid)

	// with no prior bid the cap derives from the proposed amount
	res = ValidateBid(snapshotWithHigh(0, 0), "userB", 300, money.DefaultIncrementPercent)
	require.Equal(t, 0.0, res.MinimumNextBid)
	require.Equal(t, 600.0, res.MaximumAllowed)
	require.Equal(t, 0.0, res.SuggestedBid)
}

// Final-round warning fires without blocking the bid
func TestValidateBid_FinalRoundWarning(t *testing.T) {
	t.Parallel()

	snap := snapshotWithHigh(1000, 1)
	snap.Session.MaxRoundsPerUser = 1

	res := ValidateBid(snap, "userB", 1100, money.DefaultIncrementPercent)
	require.True(t, res.Valid)
	require.Contains(t, res.Warnings, "this would be the final permitted bid round")
}
