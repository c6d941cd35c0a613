package bidding

import (
	"context"
	"fmt"
	"time"

	"night-auction/internal/biddingerrors"
	model "night-auction/internal/models"
	"night-auction/internal/money"
	"night-auction/internal/repository"
	"night-auction/utils"
)

// FinalizeDue closes a session whose deadline has been reached: completed
// with a settlement when a high bid exists, expired otherwise. Calling it on
// an already-terminal session is a no-op so the expiry timer and an operator
// action can race harmlessly.
func (s *BiddingService) FinalizeDue(ctx context.Context, sessionID string, now time.Time) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return withConflictRetry(func() error {
		snap, err := s.repo.GetSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("service: failed to finalize session %s: %w", sessionID, err)
		}
		if snap.Session.Status.Terminal() {
			// the lookup above re-created the lock entry; drop it again
			s.releaseLock(sessionID)
			return nil
		}
		if now.Before(snap.Session.ExpiresAt) {
			return nil
		}
		return s.finalizeLocked(ctx, snap)
	})
}

// ForceComplete ends an active session early by operator action. It requires
// a high bid; a session nobody has bid on has nothing to settle.
func (s *BiddingService) ForceComplete(ctx context.Context, sessionID string) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return withConflictRetry(func() error {
		snap, err := s.repo.GetSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("service: failed to force-complete session %s: %w", sessionID, err)
		}
		if snap.Session.Status.Terminal() {
			return fmt.Errorf("service: %w - session is %s", biddingerrors.ErrSessionTerminal, snap.Session.Status)
		}
		if snap.Session.CurrentHighBid == nil {
			return fmt.Errorf("service: %w", biddingerrors.ErrNoHighBid)
		}
		return s.finalizeLocked(ctx, snap)
	})
}

// finalizeLocked applies the terminal transition for a non-terminal snapshot.
// Callers must hold the session lock.
func (s *BiddingService) finalizeLocked(ctx context.Context, snap model.SessionSnapshot) error {
	sessionID := snap.Session.SessionID
	session := snap.Session

	if session.CurrentHighBid == nil {
		session.Status = model.StatusExpired
		_, err := s.repo.Apply(ctx, sessionID, repository.Mutation{
			ExpectedVersion: snap.Session.Version,
			Session:         &session,
		})
		if err != nil {
			return fmt.Errorf("service: failed to expire session %s: %w", sessionID, err)
		}
		if s.scheduler != nil {
			s.scheduler.Disarm(sessionID)
		}
		s.releaseLock(sessionID)
		utils.Info("session expired without bids", map[string]any{"session_id": sessionID})
		return nil
	}

	// Settlement needs exactly two participants; anything else means the
	// session rows are corrupt and the session is left untouched for an
	// operator to inspect.
	if len(snap.Participants) != 2 {
		utils.Error("session has wrong participant count at finalize", map[string]any{
			"session_id":   sessionID,
			"participants": len(snap.Participants),
		})
		return fmt.Errorf("service: %w - found %d participants at finalize", biddingerrors.ErrInvariantViolation, len(snap.Participants))
	}

	winnerID := session.CurrentHighBid.UserID
	if _, isParticipant := snap.Participant(winnerID); !isParticipant {
		utils.Error("high bid does not belong to a participant", map[string]any{
			"session_id": sessionID,
			"bidder_id":  winnerID,
		})
		return fmt.Errorf("service: %w - high bidder %s is not a participant", biddingerrors.ErrInvariantViolation, winnerID)
	}
	loser, _ := snap.Opponent(winnerID)

	breakdown := money.FinancialBreakdown(session.CurrentHighBid.Amount, s.cfg.CompensationPercent)

	session.Status = model.StatusCompleted
	_, err := s.repo.Apply(ctx, sessionID, repository.Mutation{
		ExpectedVersion: snap.Session.Version,
		Session:         &session,
	})
	if err != nil {
		return fmt.Errorf("service: failed to complete session %s: %w", sessionID, err)
	}
	if s.scheduler != nil {
		s.scheduler.Disarm(sessionID)
	}
	s.releaseLock(sessionID)

	event := model.SettlementEvent{
		SessionID:         sessionID,
		WinnerUserID:      winnerID,
		LoserUserID:       loser.UserID,
		WinningBid:        breakdown.WinningBid,
		LoserCompensation: breakdown.LoserCompensation,
		PlatformRevenue:   breakdown.PlatformRevenue,
	}
	if s.notifier != nil {
		if err := s.notifier.NotifySettlement(ctx, event); err != nil {
			// The transition is committed; settlement delivery is
			// at-least-once and idempotent by session id, so a failed
			// emission is logged rather than unwound.
			utils.Error("settlement notification failed", map[string]any{
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
	}

	utils.Info("session completed", map[string]any{
		"session_id":         sessionID,
		"winner_user_id":     winnerID,
		"loser_user_id":      loser.UserID,
		"winning_bid":        breakdown.WinningBid,
		"loser_compensation": breakdown.LoserCompensation,
		"platform_revenue":   breakdown.PlatformRevenue,
	})
	return nil
}
