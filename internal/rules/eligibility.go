package rules

import (
	"fmt"
	"time"

	"night-auction/internal/models"
)

// Eligibility answers "may this user bid now". Unlike bid validation it
// short-circuits: the first disqualifying reason is enough for the UI.
type Eligibility struct {
	CanBid bool   `json:"can_bid"`
	Reason string `json:"reason,omitempty"`
}

// CheckEligibility runs the ordered eligibility checks for a user against a
// session snapshot.
func CheckEligibility(snap models.SessionSnapshot, userID string, now time.Time) Eligibility {
	if snap.Session.Status != models.StatusActive {
		return Eligibility{Reason: fmt.Sprintf("session is not active (status: %s)", snap.Session.Status)}
	}
	p, ok := snap.Participant(userID)
	if !ok {
		return Eligibility{Reason: "user is not a participant in this session"}
	}
	if p.Withdrawn {
		return Eligibility{Reason: "participant has withdrawn"}
	}
	if IsUserHighBidder(snap.Session, userID) {
		return Eligibility{Reason: "user already holds the high bid"}
	}
	if RemainingBids(snap.Bids, snap.Session.MaxRoundsPerUser, userID) <= 0 {
		return Eligibility{Reason: "no bid rounds remaining"}
	}
	if IsSessionExpired(snap.Session.ExpiresAt, now) {
		return Eligibility{Reason: "session has expired"}
	}
	return Eligibility{CanBid: true}
}

// IsSessionExpired reports whether the deadline has been reached.
func IsSessionExpired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}

// IsUserHighBidder reports whether the user holds the current high bid.
func IsUserHighBidder(session models.BiddingSession, userID string) bool {
	return session.CurrentHighBid != nil && session.CurrentHighBid.UserID == userID
}

// RemainingBids returns how many bid rounds the user has left under the cap.
func RemainingBids(bids []models.Bid, maxRounds int, userID string) int {
	used := 0
	for _, b := range bids {
		if b.UserID == userID {
			used++
		}
	}
	if remaining := maxRounds - used; remaining > 0 {
		return remaining
	}
	return 0
}
