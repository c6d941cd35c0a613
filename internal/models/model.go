package models

import "time"

// SessionStatus is the lifecycle state of a bidding session.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusExpired   SessionStatus = "expired"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal sessions are immutable.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusCancelled
}

// Bid represents one bid in a session's append-only ledger.
type Bid struct {
	BidID     string    `json:"bid_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Amount    float64   `json:"amount"`
	Round     int       `json:"round"`
	IsAutoBid bool      `json:"is_auto_bid"`
	CreatedAt time.Time `json:"created_at"`
}

// BidRef is a denormalized pointer to the leading bid of a session.
type BidRef struct {
	BidID  string  `json:"bid_id"`
	UserID string  `json:"user_id"`
	Amount float64 `json:"amount"`
}

// Participant is one of the exactly two parties contesting a night.
// A withdrawn participant is marked, never deleted, so compensation
// records stay auditable. Version is the session version of the commit
// that last touched the row; consumers drop updates at or below the
// version they already hold.
type Participant struct {
	UserID       string   `json:"user_id"`
	DisplayName  string   `json:"display_name"`
	MaxAutoBid   *float64 `json:"max_auto_bid,omitempty"`
	CurrentBidID string   `json:"current_bid_id,omitempty"`
	Withdrawn    bool     `json:"withdrawn"`
	Version      int64    `json:"version"`
}

// BiddingSession is the session row. Version is a server-assigned monotonic
// counter bumped on every committed mutation; it backs the optimistic
// concurrency check in the store.
type BiddingSession struct {
	SessionID        string        `json:"session_id"`
	NightID          string        `json:"night_id"`
	Status           SessionStatus `json:"status"`
	CurrentHighBid   *BidRef       `json:"current_high_bid,omitempty"`
	MinimumIncrement float64       `json:"minimum_increment"`
	MaxRoundsPerUser int           `json:"max_rounds_per_user"`
	ExpiresAt        time.Time     `json:"expires_at"`
	CreatedAt        time.Time     `json:"created_at"`
	Version          int64         `json:"version"`
}

// SessionSnapshot is a point-in-time read of a session and its rows.
// Bids are sorted by CreatedAt ascending.
type SessionSnapshot struct {
	Session      BiddingSession `json:"session"`
	Participants []Participant  `json:"participants"`
	Bids         []Bid          `json:"bids"`
}

// Participant returns the participant with the given user id.
func (s SessionSnapshot) Participant(userID string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// Opponent returns the participant that is not the given user.
func (s SessionSnapshot) Opponent(userID string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.UserID != userID {
			return p, true
		}
	}
	return Participant{}, false
}

// BidCountBy returns how many bids the user has placed in this session.
func (s SessionSnapshot) BidCountBy(userID string) int {
	n := 0
	for _, b := range s.Bids {
		if b.UserID == userID {
			n++
		}
	}
	return n
}

// CompensationBreakdown is the settlement split computed when a session
// completes. PlatformRevenue is always the remainder of WinningBid minus
// LoserCompensation so the two sides sum exactly to the winning bid.
type CompensationBreakdown struct {
	WinningBid          float64 `json:"winning_bid"`
	LoserCompensation   float64 `json:"loser_compensation"`
	PlatformRevenue     float64 `json:"platform_revenue"`
	CompensationPercent float64 `json:"compensation_percent"`
	RevenuePercent      float64 `json:"revenue_percent"`
}

// SettlementEvent is handed to the external payment system on completion.
// It is idempotent by SessionID; re-emission on a finalize retry is harmless.
type SettlementEvent struct {
	SessionID         string  `json:"session_id"`
	WinnerUserID      string  `json:"winner_user_id"`
	LoserUserID       string  `json:"loser_user_id"`
	WinningBid        float64 `json:"winning_bid"`
	LoserCompensation float64 `json:"loser_compensation"`
	PlatformRevenue   float64 `json:"platform_revenue"`
}

// ChangeType tags a row-change event emitted by the store.
type ChangeType string

const (
	ChangeBidAppended        ChangeType = "bid_appended"
	ChangeSessionUpdated     ChangeType = "session_updated"
	ChangeParticipantUpdated ChangeType = "participant_updated"
)

// ChangeEvent is one row-change notification. Delivery is at-least-once and
// may arrive out of order; Seq is assigned contiguously per session, so a
// hole in the sequence tells a consumer it lost events and must resync.
// Exactly one of Bid/Session/Participant is set according to Type.
type ChangeEvent struct {
	Seq         int64           `json:"seq"`
	Type        ChangeType      `json:"type"`
	SessionID   string          `json:"session_id"`
	Bid         *Bid            `json:"bid,omitempty"`
	Session     *BiddingSession `json:"session,omitempty"`
	Participant *Participant    `json:"participant,omitempty"`
}
