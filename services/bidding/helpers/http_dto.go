package helpers

import "time"

// Request/Response DTOs
type ParticipantRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	DisplayName string `json:"display_name"`
}

type CreateSessionRequest struct {
	NightID          string               `json:"night_id" binding:"required"`
	Participants     []ParticipantRequest `json:"participants" binding:"required,len=2,dive"`
	ExpiresAt        *time.Time           `json:"expires_at,omitempty"`
	MaxRoundsPerUser int                  `json:"max_rounds_per_user,omitempty"`
}

type PlaceBidRequest struct {
	Amount     float64  `json:"amount" binding:"required,gt=0"`
	MaxAutoBid *float64 `json:"max_auto_bid,omitempty"`
}

type SetMaxAutoBidRequest struct {
	Ceiling float64 `json:"ceiling" binding:"required,gt=0"`
}

type BidResponse struct {
	BidID     string  `json:"bid_id"`
	SessionID string  `json:"session_id"`
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	Round     int     `json:"round"`
	IsAutoBid bool    `json:"is_auto_bid"`
	CreatedAt string  `json:"created_at"`
}

type BidResultResponse struct {
	Bid            BidResponse   `json:"bid"`
	AutoBids       []BidResponse `json:"auto_bids,omitempty"`
	SessionStatus  string        `json:"session_status"`
	CurrentHighBid float64       `json:"current_high_bid"`
	Warnings       []string      `json:"warnings,omitempty"`
}
