// Package syncview maintains a client-side canonical copy of one bidding
// session from the store's change feed. The feed is at-least-once and may be
// out of order, so the view deduplicates by identity, keeps the ledger
// timestamp-sorted and recomputes the high bid from local history instead of
// trusting the order events arrived in. The view is strictly a read cache:
// on any disconnect or detected sequence gap it resubscribes and performs a
// full resync.
package syncview

import (
	"context"
	"sort"
	"sync"
	"time"

	model "night-auction/internal/models"
	"night-auction/internal/repository"
)

// ConnectionState describes the health of the feed behind a view.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateError        ConnectionState = "error"
)

// Feed is the slice of the store a view needs: a snapshot read for resync
// and a change-event subscription. repository.SessionStore satisfies it.
type Feed interface {
	GetSession(ctx context.Context, sessionID string) (model.SessionSnapshot, error)
	Subscribe(ctx context.Context, sessionID string) (repository.Subscription, error)
}

// SessionView is the merged canonical state of one session.
type SessionView struct {
	sessionID string

	mu           sync.RWMutex
	state        ConnectionState
	session      model.BiddingSession
	participants map[string]model.Participant
	bids         []model.Bid
	seen         map[string]struct{}
	lastSeq      int64
}

// NewSessionView creates an empty view for a session.
func NewSessionView(sessionID string) *SessionView {
	return &SessionView{
		sessionID:    sessionID,
		state:        StateConnecting,
		participants: make(map[string]model.Participant),
		seen:         make(map[string]struct{}),
	}
}

// Run consumes the feed until ctx is cancelled. On any subscription failure,
// closed event channel or detected sequence gap it reconnects and fully
// resyncs; lost events can never survive a reconnect.
func (v *SessionView) Run(ctx context.Context, feed Feed) error {
	backoff := 500 * time.Millisecond
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		v.setState(StateConnecting)

		// Subscribe before the snapshot read: events racing the resync are
		// deduplicated on merge, events missed before it are not recoverable.
		sub, err := feed.Subscribe(ctx, v.sessionID)
		if err != nil {
			v.setState(StateError)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}
		snap, err := feed.GetSession(ctx, v.sessionID)
		if err != nil {
			_ = sub.Close()
			v.setState(StateError)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}
		v.Resync(snap)
		v.setState(StateConnected)
		backoff = 500 * time.Millisecond

		if !v.consume(ctx, sub) {
			return ctx.Err()
		}
		v.setState(StateDisconnected)
	}
}

// consume drains the subscription; returns false when ctx ended. A hole in
// the event sequence means the feed lost something, and the loop exits so Run
// reconnects and resyncs rather than serving a view with a silent gap.
func (v *SessionView) consume(ctx context.Context, sub repository.Subscription) bool {
	defer func() { _ = sub.Close() }()
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-sub.Events():
			if !ok {
				return true
			}
			if v.noteSeq(ev.Seq) {
				return true
			}
			v.ApplyEvent(ev)
		}
	}
}

// noteSeq tracks the last seen feed sequence and reports a gap. Seq zero
// marks a synthetic frame and is not tracked; the first sequenced event after
// a resync sets the baseline.
func (v *SessionView) noteSeq(seq int64) (gap bool) {
	if seq == 0 {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lastSeq != 0 && seq > v.lastSeq+1 {
		v.lastSeq = 0
		return true
	}
	if seq > v.lastSeq {
		v.lastSeq = seq
	}
	return false
}

// ApplyEvent merges one change event into the canonical view.
func (v *SessionView) ApplyEvent(ev model.ChangeEvent) {
	if ev.SessionID != v.sessionID {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	switch ev.Type {
	case model.ChangeBidAppended:
		if ev.Bid == nil {
			return
		}
		// At-least-once delivery: a bid already merged is dropped silently.
		if _, dup := v.seen[ev.Bid.BidID]; dup {
			return
		}
		v.seen[ev.Bid.BidID] = struct{}{}
		v.insertBidLocked(*ev.Bid)
		v.recomputeHighLocked()
	case model.ChangeSessionUpdated:
		if ev.Session == nil {
			return
		}
		// An out-of-order session row at or below the held version is
		// stale; applying it could roll a terminal status back to active.
		if ev.Session.Version <= v.session.Version {
			return
		}
		v.session = *ev.Session
		if len(v.bids) > 0 {
			v.recomputeHighLocked()
		}
	case model.ChangeParticipantUpdated:
		if ev.Participant == nil {
			return
		}
		if cur, ok := v.participants[ev.Participant.UserID]; ok && ev.Participant.Version <= cur.Version {
			return
		}
		v.participants[ev.Participant.UserID] = *ev.Participant
	}
}

// Resync replaces the whole view with an authoritative snapshot.
func (v *SessionView) Resync(snap model.SessionSnapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.lastSeq = 0
	v.session = snap.Session
	v.participants = make(map[string]model.Participant, len(snap.Participants))
	for _, p := range snap.Participants {
		v.participants[p.UserID] = p
	}
	v.bids = append([]model.Bid(nil), snap.Bids...)
	sort.SliceStable(v.bids, func(i, j int) bool { return v.bids[i].CreatedAt.Before(v.bids[j].CreatedAt) })
	v.seen = make(map[string]struct{}, len(v.bids))
	for _, b := range v.bids {
		v.seen[b.BidID] = struct{}{}
	}
	if len(v.bids) > 0 {
		v.recomputeHighLocked()
	}
}

// insertBidLocked keeps the ledger sorted by timestamp under out-of-order
// delivery.
func (v *SessionView) insertBidLocked(bid model.Bid) {
	i := len(v.bids)
	for i > 0 && bid.CreatedAt.Before(v.bids[i-1].CreatedAt) {
		i--
	}
	v.bids = append(v.bids, model.Bid{})
	copy(v.bids[i+1:], v.bids[i:])
	v.bids[i] = bid
}

// recomputeHighLocked derives the high bid as the maximum amount in local
// history, earliest timestamp winning ties.
func (v *SessionView) recomputeHighLocked() {
	if len(v.bids) == 0 {
		return
	}
	high := v.bids[0]
	for _, b := range v.bids[1:] {
		if b.Amount > high.Amount {
			high = b
		}
	}
	v.session.CurrentHighBid = &model.BidRef{BidID: high.BidID, UserID: high.UserID, Amount: high.Amount}
}

// State returns the current connection state.
func (v *SessionView) State() ConnectionState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

func (v *SessionView) setState(state ConnectionState) {
	v.mu.Lock()
	v.state = state
	v.mu.Unlock()
}

// Session returns a copy of the canonical session row.
func (v *SessionView) Session() model.BiddingSession {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.session
}

// Bids returns a copy of the canonical ledger.
func (v *SessionView) Bids() []model.Bid {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]model.Bid(nil), v.bids...)
}

// Participants returns a copy of the canonical participant rows.
func (v *SessionView) Participants() []model.Participant {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]model.Participant, 0, len(v.participants))
	for _, p := range v.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > 5*time.Second {
		next = 5 * time.Second
	}
	return next
}
