package bidding

import (
	"time"

	model "night-auction/internal/models"
	"night-auction/internal/money"
	"night-auction/internal/rules"
	"night-auction/utils"
)

// resolveAutoBids raises the opposing proxy ceiling against the current high
// bid until one side can no longer meet the next minimum increment. Each
// synthesized bid is the minimum needed to take the lead, never the full
// ceiling, and passes the same validation as a human bid. A ceiling short of
// the next minimum abstains entirely rather than placing a losing bid.
//
// Callers must hold the session lock; the generated bids commit in the same
// mutation as the human bid that triggered them.
func (s *BiddingService) resolveAutoBids(working *model.SessionSnapshot, now time.Time, touched map[string]bool) []model.Bid {
	var autoBids []model.Bid
	lastAt := now

	for {
		high := working.Session.CurrentHighBid
		if high == nil {
			return autoBids
		}
		opponent, ok := working.Opponent(high.UserID)
		if !ok || opponent.Withdrawn || opponent.MaxAutoBid == nil {
			return autoBids
		}
		if working.BidCountBy(opponent.UserID) >= working.Session.MaxRoundsPerUser {
			return autoBids
		}

		increment := money.MinimumIncrement(high.Amount, s.cfg.IncrementPercent)
		minNext := money.MinimumNextBid(high.Amount, increment)
		if *opponent.MaxAutoBid < minNext {
			return autoBids
		}

		// min(ceiling, minimumNextBid); the ceiling check above makes the
		// minimum the smaller of the two.
		amount := minNext
		if validation := rules.ValidateBid(*working, opponent.UserID, amount, s.cfg.IncrementPercent); !validation.Valid {
			utils.Warn("proxy bid rejected by validation", map[string]any{
				"session_id": working.Session.SessionID,
				"user_id":    opponent.UserID,
				"amount":     amount,
				"errors":     validation.Errors,
			})
			return autoBids
		}

		// Ledger timestamps are strictly increasing within a session.
		at := time.Now().UTC()
		if !at.After(lastAt) {
			at = lastAt.Add(time.Microsecond)
		}
		lastAt = at

		bid := model.Bid{
			BidID:     utils.GenerateID(),
			SessionID: working.Session.SessionID,
			UserID:    opponent.UserID,
			Amount:    amount,
			Round:     working.BidCountBy(opponent.UserID) + 1,
			IsAutoBid: true,
			CreatedAt: at,
		}
		s.applyBid(working, bid, touched)
		autoBids = append(autoBids, bid)
	}
}
