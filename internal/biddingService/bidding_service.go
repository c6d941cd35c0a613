package bidding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"night-auction/internal/biddingerrors"
	model "night-auction/internal/models"
	"night-auction/internal/money"
	"night-auction/internal/repository"
	"night-auction/internal/rules"
	"night-auction/utils"
)

// SettlementNotifier receives the settlement split when a session completes.
// The real implementation forwards to the payment system; delivery is
// at-least-once and idempotent by session id.
type SettlementNotifier interface {
	NotifySettlement(ctx context.Context, event model.SettlementEvent) error
}

// SettlementNotifierFunc adapts a function to the SettlementNotifier interface.
type SettlementNotifierFunc func(ctx context.Context, event model.SettlementEvent) error

func (f SettlementNotifierFunc) NotifySettlement(ctx context.Context, event model.SettlementEvent) error {
	return f(ctx, event)
}

// Config carries the tunable auction policy numbers.
type Config struct {
	IncrementPercent    float64
	CompensationPercent float64
	DefaultMaxRounds    int
}

func (c Config) withDefaults() Config {
	if c.IncrementPercent <= 0 {
		c.IncrementPercent = money.DefaultIncrementPercent
	}
	if c.CompensationPercent <= 0 {
		c.CompensationPercent = money.DefaultCompensationPercent
	}
	if c.DefaultMaxRounds <= 0 {
		c.DefaultMaxRounds = 3
	}
	return c
}

// BidResult is returned to the caller after a successful bid, including any
// proxy bids the acceptance triggered in the same commit.
type BidResult struct {
	Bid        model.Bid              `json:"bid"`
	AutoBids   []model.Bid            `json:"auto_bids,omitempty"`
	Session    model.BiddingSession   `json:"session"`
	Validation rules.ValidationResult `json:"validation"`
}

// BiddingService owns the session state machine. It is the sole writer of
// session status, the high-bid pointer and participant rows; every mutation
// runs inside a per-session critical section and commits through the store's
// optimistic concurrency check.
type BiddingService struct {
	repo      repository.SessionStore
	notifier  SettlementNotifier
	cfg       Config
	scheduler *ExpiryScheduler

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewBiddingService creates a new BiddingService instance.
func NewBiddingService(repo repository.SessionStore, notifier SettlementNotifier, cfg Config) *BiddingService {
	return &BiddingService{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		locks:    make(map[string]*sync.Mutex),
	}
}

// AttachScheduler wires the expiry scheduler so lifecycle transitions can arm
// and disarm session timers.
func (s *BiddingService) AttachScheduler(sched *ExpiryScheduler) {
	s.scheduler = sched
}

// sessionLock returns the mutex serializing all writes to one session.
// Sessions never share mutable state, so locks are independent.
func (s *BiddingService) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

// releaseLock drops the lock entry once a session is terminal so the map does
// not grow for the life of the process. A straggler still holding the old
// mutex only reaches read-then-reject paths, and the store's version check
// guards any write it might attempt.
func (s *BiddingService) releaseLock(sessionID string) {
	s.mu.Lock()
	delete(s.locks, sessionID)
	s.mu.Unlock()
}

// withConflictRetry runs fn and transparently retries once with a fresh read
// when the store reports a stale snapshot (an external writer slipped in).
func withConflictRetry(fn func() error) error {
	err := fn()
	if errors.Is(err, biddingerrors.ErrVersionConflict) {
		return fn()
	}
	return err
}

// CreateSession opens a pending session for a contested night between exactly
// two participants.
func (s *BiddingService) CreateSession(ctx context.Context, nightID string, participants [2]model.Participant, expiresAt time.Time, maxRounds int) (model.SessionSnapshot, error) {
	if nightID == "" {
		return model.SessionSnapshot{}, fmt.Errorf("service: %w - missing night id", biddingerrors.ErrInvalidBid)
	}
	if participants[0].UserID == "" || participants[1].UserID == "" || participants[0].UserID == participants[1].UserID {
		return model.SessionSnapshot{}, fmt.Errorf("service: %w - a session needs two distinct participants", biddingerrors.ErrInvariantViolation)
	}
	now := time.Now().UTC()
	if !expiresAt.After(now) {
		return model.SessionSnapshot{}, fmt.Errorf("service: %w - deadline must be in the future", biddingerrors.ErrInvalidBid)
	}
	if maxRounds <= 0 {
		maxRounds = s.cfg.DefaultMaxRounds
	}

	snap := model.SessionSnapshot{
		Session: model.BiddingSession{
			SessionID:        utils.GenerateID(),
			NightID:          nightID,
			Status:           model.StatusPending,
			MaxRoundsPerUser: maxRounds,
			ExpiresAt:        expiresAt.UTC(),
			CreatedAt:        now,
		},
		Participants: participants[:],
	}

	if err := s.repo.CreateSession(ctx, snap); err != nil {
		return model.SessionSnapshot{}, fmt.Errorf("service: failed to create session for night %s: %w", nightID, err)
	}
	snap.Session.Version = 1

	if s.scheduler != nil {
		s.scheduler.Arm(snap.Session.SessionID, snap.Session.ExpiresAt)
	}
	utils.Info("session created", map[string]any{
		"session_id": snap.Session.SessionID,
		"night_id":   nightID,
		"expires_at": snap.Session.ExpiresAt,
	})
	return snap, nil
}

// OpenSession explicitly moves a pending session to active. Opening an
// already-active session is a no-op.
func (s *BiddingService) OpenSession(ctx context.Context, sessionID string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return withConflictRetry(func() error {
		snap, err := s.repo.GetSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("service: failed to open session %s: %w", sessionID, err)
		}
		if snap.Session.Status.Terminal() {
			return fmt.Errorf("service: %w - cannot open %s session", biddingerrors.ErrSessionTerminal, snap.Session.Status)
		}
		if snap.Session.Status == model.StatusActive {
			return nil
		}

		session := snap.Session
		session.Status = model.StatusActive
		_, err = s.repo.Apply(ctx, sessionID, repository.Mutation{
			ExpectedVersion: snap.Session.Version,
			Session:         &session,
		})
		if err != nil {
			return fmt.Errorf("service: failed to open session %s: %w", sessionID, err)
		}
		utils.Info("session opened", map[string]any{"session_id": sessionID})
		return nil
	})
}

// GetSession returns the current persisted snapshot of a session.
func (s *BiddingService) GetSession(ctx context.Context, sessionID string) (model.SessionSnapshot, error) {
	snap, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return model.SessionSnapshot{}, fmt.Errorf("service: failed to get session %s: %w", sessionID, err)
	}
	return snap, nil
}

// Subscribe opens a change-event feed for a session.
func (s *BiddingService) Subscribe(ctx context.Context, sessionID string) (repository.Subscription, error) {
	sub, err := s.repo.Subscribe(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to subscribe to session %s: %w", sessionID, err)
	}
	return sub, nil
}

// PlaceBid validates and records a bid, resolves any opposing proxy ceiling
// and commits the whole exchange as one atomic unit. maxAutoBid, when given,
// declares the bidder's proxy ceiling in the same operation.
func (s *BiddingService) PlaceBid(ctx context.Context, sessionID, userID string, amount float64, maxAutoBid *float64) (BidResult, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	var result BidResult
	err := withConflictRetry(func() error {
		var attemptErr error
		result, attemptErr = s.placeBidLocked(ctx, sessionID, userID, amount, maxAutoBid)
		return attemptErr
	})
	return result, err
}

// placeBidLocked is the critical section body: re-fetch latest state,
// validate, append, update denormalized rows, resolve proxies, persist.
// Callers must hold the session lock.
func (s *BiddingService) placeBidLocked(ctx context.Context, sessionID, userID string, amount float64, maxAutoBid *float64) (BidResult, error) {
	snap, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return BidResult{}, fmt.Errorf("service: failed to place bid on session %s: %w", sessionID, err)
	}
	if snap.Session.Status.Terminal() {
		return BidResult{}, fmt.Errorf("service: %w - session is %s", biddingerrors.ErrSessionTerminal, snap.Session.Status)
	}

	working := snap
	touched := map[string]bool{}
	// First valid bid on a pending session activates it.
	if working.Session.Status == model.StatusPending {
		working.Session.Status = model.StatusActive
	}

	now := time.Now().UTC()
	if elig := rules.CheckEligibility(working, userID, now); !elig.CanBid {
		return BidResult{}, fmt.Errorf("service: %w - %s", biddingerrors.ErrNotEligible, elig.Reason)
	}

	if maxAutoBid != nil {
		if *maxAutoBid < amount {
			return BidResult{}, fmt.Errorf("service: %w - ceiling %.2f is below the bid amount", biddingerrors.ErrBelowCurrentMinimum, *maxAutoBid)
		}
		ceiling := *maxAutoBid
		s.setParticipantCeiling(&working, userID, &ceiling, touched)
	}

	validation := rules.ValidateBid(working, userID, amount, s.cfg.IncrementPercent)
	if !validation.Valid {
		return BidResult{}, &biddingerrors.ValidationFailedError{Errors: validation.Errors, Warnings: validation.Warnings}
	}

	bid := model.Bid{
		BidID:     utils.GenerateID(),
		SessionID: sessionID,
		UserID:    userID,
		Amount:    amount,
		Round:     working.BidCountBy(userID) + 1,
		CreatedAt: now,
	}
	s.applyBid(&working, bid, touched)

	autoBids := s.resolveAutoBids(&working, now, touched)

	session := working.Session
	newVersion, err := s.repo.Apply(ctx, sessionID, repository.Mutation{
		ExpectedVersion: snap.Session.Version,
		Session:         &session,
		Participants:    s.touchedRows(working, touched),
		Bids:            append([]model.Bid{bid}, autoBids...),
	})
	if err != nil {
		return BidResult{}, fmt.Errorf("service: failed to commit bid on session %s: %w", sessionID, err)
	}
	session.Version = newVersion

	utils.Info("bid accepted", map[string]any{
		"session_id": sessionID,
		"bid_id":     bid.BidID,
		"user_id":    userID,
		"amount":     amount,
		"auto_bids":  len(autoBids),
	})
	return BidResult{Bid: bid, AutoBids: autoBids, Session: session, Validation: validation}, nil
}

// applyBid folds a bid into the working snapshot: ledger append, high-bid
// pointer, derived minimum increment and the bidder's denormalized row.
func (s *BiddingService) applyBid(working *model.SessionSnapshot, bid model.Bid, touched map[string]bool) {
	working.Bids = append(working.Bids, bid)
	working.Session.CurrentHighBid = &model.BidRef{BidID: bid.BidID, UserID: bid.UserID, Amount: bid.Amount}
	working.Session.MinimumIncrement = money.MinimumIncrement(bid.Amount, s.cfg.IncrementPercent)
	for i := range working.Participants {
		if working.Participants[i].UserID == bid.UserID {
			working.Participants[i].CurrentBidID = bid.BidID
			touched[bid.UserID] = true
			return
		}
	}
}

func (s *BiddingService) setParticipantCeiling(working *model.SessionSnapshot, userID string, ceiling *float64, touched map[string]bool) {
	for i := range working.Participants {
		if working.Participants[i].UserID == userID {
			working.Participants[i].MaxAutoBid = ceiling
			touched[userID] = true
			return
		}
	}
}

func (s *BiddingService) touchedRows(working model.SessionSnapshot, touched map[string]bool) []model.Participant {
	var rows []model.Participant
	for _, p := range working.Participants {
		if touched[p.UserID] {
			rows = append(rows, p)
		}
	}
	return rows
}

// SetMaxAutoBid declares or raises a participant's proxy ceiling. The ceiling
// must at least cover the current minimum next bid, otherwise the proxy could
// never act on it.
func (s *BiddingService) SetMaxAutoBid(ctx context.Context, sessionID, userID string, ceiling float64) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return withConflictRetry(func() error {
		snap, err := s.repo.GetSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("service: failed to set ceiling on session %s: %w", sessionID, err)
		}
		if snap.Session.Status.Terminal() {
			return fmt.Errorf("service: %w - session is %s", biddingerrors.ErrSessionTerminal, snap.Session.Status)
		}
		p, ok := snap.Participant(userID)
		if !ok {
			return fmt.Errorf("service: %w - user is not a participant in this session", biddingerrors.ErrNotEligible)
		}
		if p.Withdrawn {
			return fmt.Errorf("service: %w - participant has withdrawn", biddingerrors.ErrNotEligible)
		}

		var currentHigh float64
		if snap.Session.CurrentHighBid != nil {
			currentHigh = snap.Session.CurrentHighBid.Amount
		}
		minNext := money.MinimumNextBid(currentHigh, money.MinimumIncrement(currentHigh, s.cfg.IncrementPercent))
		if ceiling <= 0 || (minNext > 0 && ceiling < minNext) {
			return fmt.Errorf("service: %w - minimum next bid is %.2f", biddingerrors.ErrBelowCurrentMinimum, minNext)
		}

		p.MaxAutoBid = &ceiling
		_, err = s.repo.Apply(ctx, sessionID, repository.Mutation{
			ExpectedVersion: snap.Session.Version,
			Participants:    []model.Participant{p},
		})
		if err != nil {
			return fmt.Errorf("service: failed to set ceiling on session %s: %w", sessionID, err)
		}
		utils.Info("auto-bid ceiling set", map[string]any{
			"session_id": sessionID,
			"user_id":    userID,
			"ceiling":    ceiling,
		})
		return nil
	})
}

// Withdraw cancels the session on behalf of a participant. Once both
// participants have placed a bid the session must run to completion, which
// protects the other bidder's expectation of compensation.
func (s *BiddingService) Withdraw(ctx context.Context, sessionID, userID string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return withConflictRetry(func() error {
		snap, err := s.repo.GetSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("service: failed to withdraw from session %s: %w", sessionID, err)
		}
		if snap.Session.Status.Terminal() {
			return fmt.Errorf("service: %w - session is %s", biddingerrors.ErrSessionTerminal, snap.Session.Status)
		}
		p, ok := snap.Participant(userID)
		if !ok {
			return fmt.Errorf("service: %w - user is not a participant in this session", biddingerrors.ErrNotEligible)
		}

		bothBid := true
		for _, participant := range snap.Participants {
			if snap.BidCountBy(participant.UserID) == 0 {
				bothBid = false
				break
			}
		}
		if bothBid {
			return fmt.Errorf("service: %w", biddingerrors.ErrTwoSidedBidding)
		}

		p.Withdrawn = true
		session := snap.Session
		session.Status = model.StatusCancelled
		_, err = s.repo.Apply(ctx, sessionID, repository.Mutation{
			ExpectedVersion: snap.Session.Version,
			Session:         &session,
			Participants:    []model.Participant{p},
		})
		if err != nil {
			return fmt.Errorf("service: failed to withdraw from session %s: %w", sessionID, err)
		}

		if s.scheduler != nil {
			s.scheduler.Disarm(sessionID)
		}
		s.releaseLock(sessionID)
		utils.Info("session cancelled by withdrawal", map[string]any{
			"session_id": sessionID,
			"user_id":    userID,
		})
		return nil
	})
}

// RearmOpenSessions re-arms expiry timers for every non-terminal session in
// the store. Called once at boot.
func (s *BiddingService) RearmOpenSessions(ctx context.Context) error {
	if s.scheduler == nil {
		return nil
	}
	sessions, err := s.repo.ListOpenSessions(ctx)
	if err != nil {
		return fmt.Errorf("service: failed to rearm open sessions: %w", err)
	}
	for _, session := range sessions {
		s.scheduler.Arm(session.SessionID, session.ExpiresAt)
	}
	return nil
}
