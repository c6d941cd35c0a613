package bidding

import (
	"context"
	"errors"
	"sync"
	"time"

	"night-auction/internal/biddingerrors"
	"night-auction/utils"
)

// finalizeRetryDelay spaces out retries after a finalize attempt fails on a
// transient store error.
const finalizeRetryDelay = 5 * time.Second

// ExpiryScheduler keeps one timer per open session, firing FinalizeDue at
// the deadline. The fire handler re-reads authoritative state through the
// service's critical section, so it can never race a concurrent bid, and
// finalization itself is idempotent so a late or duplicate fire is harmless.
type ExpiryScheduler struct {
	finalize   func(sessionID string) error
	retryDelay time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewExpiryScheduler creates a scheduler bound to the service and attaches
// itself so lifecycle transitions arm and disarm timers.
func NewExpiryScheduler(svc *BiddingService) *ExpiryScheduler {
	sched := &ExpiryScheduler{
		timers:     make(map[string]*time.Timer),
		retryDelay: finalizeRetryDelay,
	}
	sched.finalize = func(sessionID string) error {
		now := time.Now().UTC()
		err := svc.FinalizeDue(context.Background(), sessionID, now)
		if err != nil {
			utils.Error("scheduled finalize failed", map[string]any{
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
		return err
	}
	svc.AttachScheduler(sched)
	return sched
}

// Arm schedules (or reschedules) the expiry timer for a session. A deadline
// already in the past fires immediately.
func (s *ExpiryScheduler) Arm(sessionID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if old, ok := s.timers[sessionID]; ok {
		old.Stop()
	}
	delay := time.Until(expiresAt)
	if delay < 0 {
		delay = 0
	}
	s.timers[sessionID] = time.AfterFunc(delay, func() { s.fire(sessionID) })
}

// Disarm cancels the timer for a session that reached a terminal state by
// another path.
func (s *ExpiryScheduler) Disarm(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[sessionID]; ok {
		timer.Stop()
		delete(s.timers, sessionID)
	}
}

// Shutdown stops every timer; armed sessions are picked up again by
// RearmOpenSessions on the next boot.
func (s *ExpiryScheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *ExpiryScheduler) fire(sessionID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, sessionID)
	s.mu.Unlock()

	err := s.finalize(sessionID)
	if err == nil || errors.Is(err, biddingerrors.ErrSessionNotFound) {
		return
	}

	// A transient store failure must not leave the session timerless until
	// the next boot rearms it.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, ok := s.timers[sessionID]; ok {
		return
	}
	s.timers[sessionID] = time.AfterFunc(s.retryDelay, func() { s.fire(sessionID) })
}
