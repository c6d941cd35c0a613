// Package rules contains the pure bid-validity and eligibility predicates.
// Nothing here mutates state or performs I/O; callers must re-check against
// the latest persisted snapshot before committing, since any snapshot they
// hold may already be stale.
package rules

import (
	"fmt"

	"night-auction/internal/models"
	"night-auction/internal/money"
)

// ValidationResult reports every violated rule for a proposed bid, plus the
// derived bounds a client needs to correct it.
type ValidationResult struct {
	Valid          bool     `json:"valid"`
	Errors         []string `json:"errors,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	MinimumNextBid float64  `json:"minimum_next_bid"`
	MaximumAllowed float64  `json:"maximum_allowed"`
	SuggestedBid   float64  `json:"suggested_bid"`
}

// ValidateBid evaluates every validity rule for a proposed bid against a
// session snapshot. All rules are checked, not short-circuited, so the
// result lists every violation at once.
func ValidateBid(snap models.SessionSnapshot, bidderID string, amount float64, incrementPercent float64) ValidationResult {
	var currentHigh float64
	var highBidderID string
	if ref := snap.Session.CurrentHighBid; ref != nil {
		currentHigh = ref.Amount
		highBidderID = ref.UserID
	}

	increment := money.MinimumIncrement(currentHigh, incrementPercent)
	minNext := money.MinimumNextBid(currentHigh, increment)

	// Circuit-breaker against fat-finger amounts. With no prior bid the cap
	// derives from the proposed amount itself, which lets any positive
	// opening amount through.
	maxAllowed := amount * 2
	if currentHigh > 0 {
		maxAllowed = currentHigh * 2
	}

	res := ValidationResult{
		MinimumNextBid: minNext,
		MaximumAllowed: maxAllowed,
		SuggestedBid:   money.SuggestedBid(currentHigh),
	}

	if amount <= 0 {
		res.Errors = append(res.Errors, "bid amount must be positive")
	}
	if currentHigh > 0 && amount <= currentHigh {
		res.Errors = append(res.Errors, fmt.Sprintf("bid must exceed the current high bid of %.2f", currentHigh))
	}
	if currentHigh > 0 && amount < minNext {
		res.Errors = append(res.Errors, fmt.Sprintf("minimum bid is %.2f", minNext))
	}
	if highBidderID != "" && highBidderID == bidderID {
		res.Errors = append(res.Errors, "bidder already holds the high bid")
	}
	if snap.Session.Status != models.StatusActive {
		res.Errors = append(res.Errors, fmt.Sprintf("session is not active (status: %s)", snap.Session.Status))
	}
	priorBids := snap.BidCountBy(bidderID)
	if priorBids >= snap.Session.MaxRoundsPerUser {
		res.Errors = append(res.Errors, fmt.Sprintf("bid round limit of %d reached", snap.Session.MaxRoundsPerUser))
	}
	if amount > maxAllowed {
		res.Errors = append(res.Errors, fmt.Sprintf("bid exceeds the maximum allowed of %.2f", maxAllowed))
	}

	if currentHigh > 0 && amount > currentHigh*1.5 {
		res.Warnings = append(res.Warnings, "bid exceeds 150% of the current high bid")
	}
	if priorBids+1 == snap.Session.MaxRoundsPerUser {
		res.Warnings = append(res.Warnings, "this would be the final permitted bid round")
	}

	res.Valid = len(res.Errors) == 0
	return res
}
