package syncview

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	model "night-auction/internal/models"
	"night-auction/internal/repository"
)

func bidEvent(seq int64, bid model.Bid) model.ChangeEvent {
	return model.ChangeEvent{Seq: seq, Type: model.ChangeBidAppended, SessionID: bid.SessionID, Bid: &bid}
}

func testBid(bidID, userID string, amount float64, at time.Time) model.Bid {
	return model.Bid{BidID: bidID, SessionID: "session1", UserID: userID, Amount: amount, CreatedAt: at}
}

// Duplicate deliveries of the same bid merge once
func TestApplyEvent_DeduplicatesBids(t *testing.T) {
	t.Parallel()

	view := NewSessionView("session1")
	now := time.Now().UTC()
	bid := testBid("bid1", "userA", 1000, now)

	view.ApplyEvent(bidEvent(1, bid))
	view.ApplyEvent(bidEvent(1, bid))
	view.ApplyEvent(bidEvent(2, bid))

	require.Len(t, view.Bids(), 1)
	require.Equal(t, 1000.0, view.Session().CurrentHighBid.Amount)
}

// Out-of-order delivery still converges on a sorted ledger and the true high
func TestApplyEvent_OutOfOrderBids(t *testing.T) {
	t.Parallel()

	view := NewSessionView("session1")
	now := time.Now().UTC()

	// delivered newest first
	view.ApplyEvent(bidEvent(3, testBid("bid3", "userA", 1210, now.Add(2*time.Second))))
	view.ApplyEvent(bidEvent(1, testBid("bid1", "userA", 1000, now)))
	view.ApplyEvent(bidEvent(2, testBid("bid2", "userB", 1100, now.Add(time.Second))))

	bids := view.Bids()
	require.Len(t, bids, 3)
	require.Equal(t, "bid1", bids[0].BidID)
	require.Equal(t, "bid2", bids[1].BidID)
	require.Equal(t, "bid3", bids[2].BidID)

	high := view.Session().CurrentHighBid
	require.NotNil(t, high)
	require.Equal(t, "bid3", high.BidID)
	require.Equal(t, 1210.0, high.Amount)
}

// Ties on amount resolve to the earliest bid
func TestApplyEvent_HighBidTieBreaksEarliest(t *testing.T) {
	t.Parallel()

	view := NewSessionView("session1")
	now := time.Now().UTC()

	view.ApplyEvent(bidEvent(2, testBid("late", "userB", 1000, now.Add(time.Second))))
	view.ApplyEvent(bidEvent(1, testBid("early", "userA", 1000, now)))

	high := view.Session().CurrentHighBid
	require.NotNil(t, high)
	require.Equal(t, "early", high.BidID)
}

// A stale session row cannot roll the high bid back below local history
func TestApplyEvent_StaleSessionUpdate(t *testing.T) {
	t.Parallel()

	view := NewSessionView("session1")
	now := time.Now().UTC()
	view.ApplyEvent(bidEvent(1, testBid("bid1", "userA", 1000, now)))
	view.ApplyEvent(bidEvent(2, testBid("bid2", "userB", 1100, now.Add(time.Second))))

	// a session_updated that was emitted before bid2 arrived
	stale := model.BiddingSession{
		SessionID:      "session1",
		Status:         model.StatusActive,
		CurrentHighBid: &model.BidRef{BidID: "bid1", UserID: "userA", Amount: 1000},
		Version:        2,
	}
	view.ApplyEvent(model.ChangeEvent{Seq: 3, Type: model.ChangeSessionUpdated, SessionID: "session1", Session: &stale})

	require.Equal(t, model.StatusActive, view.Session().Status)
	high := view.Session().CurrentHighBid
	require.Equal(t, "bid2", high.BidID, "local ledger overrides the stale pointer")
	require.Equal(t, 1100.0, high.Amount)
}

// A late pre-completion session row cannot roll a terminal status back
func TestApplyEvent_OldSessionVersionCannotRegressStatus(t *testing.T) {
	t.Parallel()

	view := NewSessionView("session1")
	view.ApplyEvent(model.ChangeEvent{
		Seq: 5, Type: model.ChangeSessionUpdated, SessionID: "session1",
		Session: &model.BiddingSession{SessionID: "session1", Status: model.StatusCompleted, Version: 3},
	})

	// delivered out of order, emitted while the session was still active
	view.ApplyEvent(model.ChangeEvent{
		Seq: 4, Type: model.ChangeSessionUpdated, SessionID: "session1",
		Session: &model.BiddingSession{SessionID: "session1", Status: model.StatusActive, Version: 2},
	})

	require.Equal(t, model.StatusCompleted, view.Session().Status)
	require.Equal(t, int64(3), view.Session().Version)
}

// A late participant row cannot undo a newer one for the same user
func TestApplyEvent_OldParticipantVersionIgnored(t *testing.T) {
	t.Parallel()

	view := NewSessionView("session1")
	view.ApplyEvent(model.ChangeEvent{
		Seq: 3, Type: model.ChangeParticipantUpdated, SessionID: "session1",
		Participant: &model.Participant{UserID: "userB", Withdrawn: true, Version: 4},
	})
	view.ApplyEvent(model.ChangeEvent{
		Seq: 2, Type: model.ChangeParticipantUpdated, SessionID: "session1",
		Participant: &model.Participant{UserID: "userB", Version: 3},
	})

	parts := view.Participants()
	require.Len(t, parts, 1)
	require.True(t, parts[0].Withdrawn, "the newer row wins regardless of arrival order")
}

// Events for other sessions are ignored
func TestApplyEvent_ForeignSession(t *testing.T) {
	t.Parallel()

	view := NewSessionView("session1")
	bid := model.Bid{BidID: "bid1", SessionID: "other", UserID: "userA", Amount: 1000, CreatedAt: time.Now().UTC()}
	view.ApplyEvent(model.ChangeEvent{Seq: 1, Type: model.ChangeBidAppended, SessionID: "other", Bid: &bid})

	require.Empty(t, view.Bids())
}

// Participant rows replace wholesale by user id
func TestApplyEvent_ParticipantUpdated(t *testing.T) {
	t.Parallel()

	view := NewSessionView("session1")
	ceiling := 1500.0
	view.ApplyEvent(model.ChangeEvent{
		Seq: 1, Type: model.ChangeParticipantUpdated, SessionID: "session1",
		Participant: &model.Participant{UserID: "userB", MaxAutoBid: &ceiling},
	})

	parts := view.Participants()
	require.Len(t, parts, 1)
	require.Equal(t, 1500.0, *parts[0].MaxAutoBid)
}

// Resync replaces everything, including bids the feed never delivered
func TestResync(t *testing.T) {
	t.Parallel()

	view := NewSessionView("session1")
	now := time.Now().UTC()
	view.ApplyEvent(bidEvent(1, testBid("orphan", "userA", 50, now.Add(-time.Hour))))

	snap := model.SessionSnapshot{
		Session: model.BiddingSession{SessionID: "session1", Status: model.StatusActive},
		Participants: []model.Participant{
			{UserID: "userA"}, {UserID: "userB"},
		},
		Bids: []model.Bid{
			testBid("bid2", "userB", 1100, now.Add(time.Second)),
			testBid("bid1", "userA", 1000, now),
		},
	}
	view.Resync(snap)

	bids := view.Bids()
	require.Len(t, bids, 2)
	require.Equal(t, "bid1", bids[0].BidID, "resync sorts by timestamp")
	require.Equal(t, "bid2", view.Session().CurrentHighBid.BidID)
	require.Len(t, view.Participants(), 2)

	// a replayed event for a resynced bid stays deduplicated
	view.ApplyEvent(bidEvent(5, testBid("bid1", "userA", 1000, now)))
	require.Len(t, view.Bids(), 2)
}

// Change events survive a JSON round trip with their payload intact
func TestChangeEventJSON(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	bid := testBid("bid1", "userA", 1234.56, now)
	raw, err := json.Marshal(bidEvent(7, bid))
	require.NoError(t, err)

	var decoded model.ChangeEvent
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, int64(7), decoded.Seq)
	require.Equal(t, model.ChangeBidAppended, decoded.Type)
	require.NotNil(t, decoded.Bid)
	require.Equal(t, 1234.56, decoded.Bid.Amount)
	require.True(t, decoded.Bid.CreatedAt.Equal(now))
	require.Nil(t, decoded.Session)
	require.Nil(t, decoded.Participant)
}

// fakeFeed drives Run with scripted subscriptions.
type fakeFeed struct {
	mu         sync.Mutex
	snap       model.SessionSnapshot
	subs       []*fakeSubscription
	subscribes int
}

type fakeSubscription struct {
	events chan model.ChangeEvent
	once   sync.Once
}

func (s *fakeSubscription) Events() <-chan model.ChangeEvent { return s.events }

func (s *fakeSubscription) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

func (f *fakeFeed) GetSession(context.Context, string) (model.SessionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, nil
}

func (f *fakeFeed) Subscribe(context.Context, string) (repository.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSubscription{events: make(chan model.ChangeEvent, 16)}
	f.subs = append(f.subs, sub)
	f.subscribes++
	return sub, nil
}

func (f *fakeFeed) setSnapshot(snap model.SessionSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
}

func (f *fakeFeed) latest() *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[len(f.subs)-1]
}

func (f *fakeFeed) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

// Run resyncs on connect, applies live events and resubscribes after a drop
func TestRun_ReconnectResync(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	feed := &fakeFeed{}
	feed.setSnapshot(model.SessionSnapshot{
		Session:      model.BiddingSession{SessionID: "session1", Status: model.StatusActive},
		Participants: []model.Participant{{UserID: "userA"}, {UserID: "userB"}},
		Bids:         []model.Bid{testBid("bid1", "userA", 1000, now)},
	})

	view := NewSessionView("session1")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = view.Run(ctx, feed)
	}()

	require.Eventually(t, func() bool {
		return view.State() == StateConnected && len(view.Bids()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// a live event lands in the view
	feed.latest().events <- bidEvent(2, testBid("bid2", "userB", 1100, now.Add(time.Second)))
	require.Eventually(t, func() bool {
		return len(view.Bids()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// drop the feed; a bid committed during the outage only exists in the
	// next snapshot, so it must come back through resync
	feed.setSnapshot(model.SessionSnapshot{
		Session:      model.BiddingSession{SessionID: "session1", Status: model.StatusActive},
		Participants: []model.Participant{{UserID: "userA"}, {UserID: "userB"}},
		Bids: []model.Bid{
			testBid("bid1", "userA", 1000, now),
			testBid("bid2", "userB", 1100, now.Add(time.Second)),
			testBid("bid3", "userA", 1210, now.Add(2*time.Second)),
		},
	})
	_ = feed.latest().Close()

	require.Eventually(t, func() bool {
		return feed.subscribeCount() >= 2 && len(view.Bids()) == 3
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "bid3", view.Session().CurrentHighBid.BidID)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}

// A hole in the event sequence forces a resubscribe and full resync even
// though the connection never dropped
func TestRun_ResyncOnSequenceGap(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	feed := &fakeFeed{}
	feed.setSnapshot(model.SessionSnapshot{
		Session:      model.BiddingSession{SessionID: "session1", Status: model.StatusActive},
		Participants: []model.Participant{{UserID: "userA"}, {UserID: "userB"}},
	})

	view := NewSessionView("session1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = view.Run(ctx, feed) }()

	require.Eventually(t, func() bool {
		return view.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	// seq 1 sets the baseline; seq 3 arrives with seq 2 lost in transit
	feed.latest().events <- bidEvent(1, testBid("bid1", "userA", 1000, now))
	require.Eventually(t, func() bool {
		return len(view.Bids()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	feed.setSnapshot(model.SessionSnapshot{
		Session:      model.BiddingSession{SessionID: "session1", Status: model.StatusActive},
		Participants: []model.Participant{{UserID: "userA"}, {UserID: "userB"}},
		Bids: []model.Bid{
			testBid("bid1", "userA", 1000, now),
			testBid("bid2", "userB", 1100, now.Add(time.Second)),
			testBid("bid3", "userA", 1210, now.Add(2*time.Second)),
		},
	})
	feed.latest().events <- bidEvent(3, testBid("bid3", "userA", 1210, now.Add(2*time.Second)))

	// the lost bid2 only exists in the snapshot, so seeing it proves resync
	require.Eventually(t, func() bool {
		return feed.subscribeCount() >= 2 && len(view.Bids()) == 3
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "bid3", view.Session().CurrentHighBid.BidID)
}
