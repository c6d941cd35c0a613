package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"night-auction/internal/biddingerrors"
	bidding "night-auction/internal/biddingService"
	model "night-auction/internal/models"
	"night-auction/internal/repository"
	"night-auction/services/bidding/helpers"
	"night-auction/utils"

	"github.com/gin-gonic/gin"
)

type BiddingServiceInterface interface {
	CreateSession(ctx context.Context, nightID string, participants [2]model.Participant, expiresAt time.Time, maxRounds int) (model.SessionSnapshot, error)
	OpenSession(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (model.SessionSnapshot, error)
	PlaceBid(ctx context.Context, sessionID, userID string, amount float64, maxAutoBid *float64) (bidding.BidResult, error)
	SetMaxAutoBid(ctx context.Context, sessionID, userID string, ceiling float64) error
	Withdraw(ctx context.Context, sessionID, userID string) error
	ForceComplete(ctx context.Context, sessionID string) error
	Subscribe(ctx context.Context, sessionID string) (repository.Subscription, error)
}

type SessionHandler struct {
	service    BiddingServiceInterface
	defaultTTL time.Duration
}

func NewSessionHandler(service BiddingServiceInterface, defaultTTL time.Duration) *SessionHandler {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &SessionHandler{service: service, defaultTTL: defaultTTL}
}

// callerID returns the already-authenticated user id supplied by the
// identity layer upstream. The engine never authenticates.
func callerID(c *gin.Context) (string, bool) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		utils.JSONError(c, http.StatusUnauthorized, errors.New("missing X-User-ID header"), "missing user identity")
		return "", false
	}
	return userID, true
}

// CreateSessionHandler handles POST /sessions
func (h *SessionHandler) CreateSessionHandler(c *gin.Context) {
	var req helpers.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateSessionHandler", err)
		return
	}

	expiresAt := time.Now().UTC().Add(h.defaultTTL)
	if req.ExpiresAt != nil {
		expiresAt = *req.ExpiresAt
	}
	participants := [2]model.Participant{
		{UserID: req.Participants[0].UserID, DisplayName: req.Participants[0].DisplayName},
		{UserID: req.Participants[1].UserID, DisplayName: req.Participants[1].DisplayName},
	}

	snap, err := h.service.CreateSession(c.Request.Context(), req.NightID, participants, expiresAt, req.MaxRoundsPerUser)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("CreateSessionHandler: failed to create session", map[string]any{
			"night_id": req.NightID,
			"error":    err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, snap, "session created successfully")
	helpers.LogSuccess("CreateSessionHandler", "session created successfully", map[string]any{
		"session_id": snap.Session.SessionID,
		"night_id":   req.NightID,
	})
}

// OpenSessionHandler handles POST /sessions/:session_id/open
func (h *SessionHandler) OpenSessionHandler(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := h.service.OpenSession(c.Request.Context(), sessionID); err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("OpenSessionHandler: failed to open session", map[string]any{"session_id": sessionID, "error": err.Error()})
		return
	}
	utils.JSONResponse(c, http.StatusOK, nil, "session opened successfully")
	helpers.LogSuccess("OpenSessionHandler", "session opened successfully", map[string]any{"session_id": sessionID})
}

// GetSessionHandler handles GET /sessions/:session_id
func (h *SessionHandler) GetSessionHandler(c *gin.Context) {
	sessionID := c.Param("session_id")
	snap, err := h.service.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetSessionHandler: error retrieving session", map[string]any{"session_id": sessionID, "error": err.Error()})
		return
	}
	utils.JSONResponse(c, http.StatusOK, snap, "session retrieved successfully")
}

// PlaceBidHandler handles POST /sessions/:session_id/bids
func (h *SessionHandler) PlaceBidHandler(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	result, err := h.service.PlaceBid(c.Request.Context(), sessionID, userID, req.Amount, req.MaxAutoBid)
	if err != nil {
		var validationErr *biddingerrors.ValidationFailedError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":   http.StatusBadRequest,
				"message":  "bid failed validation",
				"errors":   validationErr.Errors,
				"warnings": validationErr.Warnings,
			})
			utils.Warn("PlaceBidHandler: bid failed validation", map[string]any{
				"session_id": sessionID,
				"user_id":    userID,
				"amount":     req.Amount,
				"errors":     validationErr.Errors,
			})
			return
		}
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("PlaceBidHandler: failed to place bid", map[string]any{
			"session_id": sessionID,
			"user_id":    userID,
			"amount":     req.Amount,
			"error":      err.Error(),
		})
		return
	}

	resp := helpers.BidResultResponse{
		Bid:           toBidResponse(result.Bid),
		SessionStatus: string(result.Session.Status),
		Warnings:      result.Validation.Warnings,
	}
	for _, auto := range result.AutoBids {
		resp.AutoBids = append(resp.AutoBids, toBidResponse(auto))
	}
	if result.Session.CurrentHighBid != nil {
		resp.CurrentHighBid = result.Session.CurrentHighBid.Amount
	}

	utils.JSONResponse(c, http.StatusCreated, resp, "bid recorded successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":     result.Bid.BidID,
		"session_id": sessionID,
		"user_id":    userID,
		"amount":     req.Amount,
		"auto_bids":  len(result.AutoBids),
	})
}

// SetMaxAutoBidHandler handles PUT /sessions/:session_id/auto-bid
func (h *SessionHandler) SetMaxAutoBidHandler(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")

	var req helpers.SetMaxAutoBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "SetMaxAutoBidHandler", err)
		return
	}

	if err := h.service.SetMaxAutoBid(c.Request.Context(), sessionID, userID, req.Ceiling); err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("SetMaxAutoBidHandler: failed to set ceiling", map[string]any{
			"session_id": sessionID,
			"user_id":    userID,
			"ceiling":    req.Ceiling,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, nil, "auto-bid ceiling set successfully")
	helpers.LogSuccess("SetMaxAutoBidHandler", "auto-bid ceiling set successfully", map[string]any{
		"session_id": sessionID,
		"user_id":    userID,
		"ceiling":    req.Ceiling,
	})
}

// WithdrawHandler handles POST /sessions/:session_id/withdraw
func (h *SessionHandler) WithdrawHandler(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")

	if err := h.service.Withdraw(c.Request.Context(), sessionID, userID); err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("WithdrawHandler: failed to withdraw", map[string]any{
			"session_id": sessionID,
			"user_id":    userID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, nil, "withdrawn successfully")
	helpers.LogSuccess("WithdrawHandler", "withdrawn successfully", map[string]any{
		"session_id": sessionID,
		"user_id":    userID,
	})
}

// FinalizeHandler handles POST /sessions/:session_id/finalize (operator action)
func (h *SessionHandler) FinalizeHandler(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := h.service.ForceComplete(c.Request.Context(), sessionID); err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("FinalizeHandler: failed to finalize session", map[string]any{"session_id": sessionID, "error": err.Error()})
		return
	}
	utils.JSONResponse(c, http.StatusOK, nil, "session finalized successfully")
	helpers.LogSuccess("FinalizeHandler", "session finalized successfully", map[string]any{"session_id": sessionID})
}

// HealthHandler handles GET /healthz
func (h *SessionHandler) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// EventsHandler handles GET /sessions/:session_id/events as a server-sent
// event stream. Each connection starts with a full resync of the session
// rows, then relays live change events; duplicates are the client's problem
// to drop (delivery is at-least-once by contract).
func (h *SessionHandler) EventsHandler(c *gin.Context) {
	sessionID := c.Param("session_id")
	ctx := c.Request.Context()

	sub, err := h.service.Subscribe(ctx, sessionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		return
	}
	defer func() { _ = sub.Close() }()

	snap, err := h.service.GetSession(ctx, sessionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	// Resync frames carry no id; live frames carry the per-session sequence.
	for _, ev := range resyncEvents(snap) {
		if err := helpers.WriteSSE(c.Writer, "", string(ev.Type), ev); err != nil {
			return
		}
	}
	flush()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := helpers.WriteSSE(c.Writer, strconv.FormatInt(ev.Seq, 10), string(ev.Type), ev); err != nil {
				return
			}
			flush()
		}
	}
}

// resyncEvents replays a snapshot as the event stream that would have
// produced it.
func resyncEvents(snap model.SessionSnapshot) []model.ChangeEvent {
	sessionID := snap.Session.SessionID
	session := snap.Session

	events := []model.ChangeEvent{{Type: model.ChangeSessionUpdated, SessionID: sessionID, Session: &session}}
	for i := range snap.Participants {
		p := snap.Participants[i]
		events = append(events, model.ChangeEvent{Type: model.ChangeParticipantUpdated, SessionID: sessionID, Participant: &p})
	}
	for i := range snap.Bids {
		b := snap.Bids[i]
		events = append(events, model.ChangeEvent{Type: model.ChangeBidAppended, SessionID: sessionID, Bid: &b})
	}
	return events
}

func toBidResponse(bid model.Bid) helpers.BidResponse {
	return helpers.BidResponse{
		BidID:     bid.BidID,
		SessionID: bid.SessionID,
		UserID:    bid.UserID,
		Amount:    bid.Amount,
		Round:     bid.Round,
		IsAutoBid: bid.IsAutoBid,
		CreatedAt: bid.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
