package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"night-auction/internal/biddingerrors"
	model "night-auction/internal/models"
)

const (
	sessionKeyPrefix = "auction:session:"
	partsKeyPrefix   = "auction:participants:"
	bidsKeyPrefix    = "auction:bids:"
	changesKeyPrefix = "auction:changes:"
	seqKeyPrefix     = "auction:seq:"
	openSessionsKey  = "auction:open"
)

// RedisStore is the networked SessionStore. Session and participant rows are
// stored as JSON values, bids as an append-only list, and change events are
// published over pub/sub on a per-session channel. Optimistic concurrency
// uses WATCH on the session key: a concurrent write aborts the transaction
// and surfaces as ErrVersionConflict.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-connected redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// CreateSession stores a new session with its participants.
func (s *RedisStore) CreateSession(ctx context.Context, snap model.SessionSnapshot) error {
	id := snap.Session.SessionID
	session := snap.Session
	session.Version = 1

	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("create session %s: marshal: %w", id, err)
	}

	ok, err := s.client.SetNX(ctx, sessionKeyPrefix+id, sessionJSON, 0).Result()
	if err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("create session %s: session already exists", id)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range snap.Participants {
			p.Version = 1
			pJSON, mErr := json.Marshal(p)
			if mErr != nil {
				return mErr
			}
			pipe.HSet(ctx, partsKeyPrefix+id, p.UserID, pJSON)
		}
		for _, b := range snap.Bids {
			bJSON, mErr := json.Marshal(b)
			if mErr != nil {
				return mErr
			}
			pipe.RPush(ctx, bidsKeyPrefix+id, bJSON)
		}
		pipe.SAdd(ctx, openSessionsKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}
	return nil
}

// GetSession reads the full session snapshot.
func (s *RedisStore) GetSession(ctx context.Context, sessionID string) (model.SessionSnapshot, error) {
	sessionJSON, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return model.SessionSnapshot{}, fmt.Errorf("get session %s: %w", sessionID, biddingerrors.ErrSessionNotFound)
	}
	if err != nil {
		return model.SessionSnapshot{}, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	var snap model.SessionSnapshot
	if err := json.Unmarshal([]byte(sessionJSON), &snap.Session); err != nil {
		return model.SessionSnapshot{}, fmt.Errorf("get session %s: decode session: %w", sessionID, err)
	}

	partRows, err := s.client.HGetAll(ctx, partsKeyPrefix+sessionID).Result()
	if err != nil {
		return model.SessionSnapshot{}, fmt.Errorf("get session %s: participants: %w", sessionID, err)
	}
	for _, raw := range partRows {
		var p model.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return model.SessionSnapshot{}, fmt.Errorf("get session %s: decode participant: %w", sessionID, err)
		}
		snap.Participants = append(snap.Participants, p)
	}
	sort.Slice(snap.Participants, func(i, j int) bool { return snap.Participants[i].UserID < snap.Participants[j].UserID })

	bidRows, err := s.client.LRange(ctx, bidsKeyPrefix+sessionID, 0, -1).Result()
	if err != nil {
		return model.SessionSnapshot{}, fmt.Errorf("get session %s: bids: %w", sessionID, err)
	}
	for _, raw := range bidRows {
		var b model.Bid
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			return model.SessionSnapshot{}, fmt.Errorf("get session %s: decode bid: %w", sessionID, err)
		}
		snap.Bids = append(snap.Bids, b)
	}
	sort.SliceStable(snap.Bids, func(i, j int) bool { return snap.Bids[i].CreatedAt.Before(snap.Bids[j].CreatedAt) })

	return snap, nil
}

// Apply commits a mutation under WATCH-based optimistic concurrency and
// publishes the resulting change events.
func (s *RedisStore) Apply(ctx context.Context, sessionID string, m Mutation) (int64, error) {
	sessKey := sessionKeyPrefix + sessionID
	var newVersion int64

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		sessionJSON, err := tx.Get(ctx, sessKey).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("apply to session %s: %w", sessionID, biddingerrors.ErrSessionNotFound)
		}
		if err != nil {
			return err
		}

		var stored model.BiddingSession
		if err := json.Unmarshal([]byte(sessionJSON), &stored); err != nil {
			return fmt.Errorf("apply to session %s: decode session: %w", sessionID, err)
		}
		if stored.Version != m.ExpectedVersion {
			return fmt.Errorf("apply to session %s: have version %d, expected %d: %w",
				sessionID, stored.Version, m.ExpectedVersion, biddingerrors.ErrVersionConflict)
		}

		newVersion = stored.Version + 1
		updated := stored
		if m.Session != nil {
			updated = *m.Session
		}
		updated.Version = newVersion

		// The seq counter is only ever written here, and all writers
		// serialize on the WATCHed session key, so reading it without its
		// own WATCH is safe. Contiguous Seq lets subscribers detect a lost
		// event as a hole in the sequence.
		seqStart, err := tx.Get(ctx, seqKeyPrefix+sessionID).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("apply to session %s: read seq: %w", sessionID, err)
		}

		parts := make([]model.Participant, len(m.Participants))
		copy(parts, m.Participants)
		for i := range parts {
			parts[i].Version = newVersion
		}

		var events []model.ChangeEvent
		for i := range m.Bids {
			bid := m.Bids[i]
			events = append(events, model.ChangeEvent{Type: model.ChangeBidAppended, SessionID: sessionID, Bid: &bid})
		}
		for i := range parts {
			p := parts[i]
			events = append(events, model.ChangeEvent{Type: model.ChangeParticipantUpdated, SessionID: sessionID, Participant: &p})
		}
		if m.Session != nil {
			sess := updated
			events = append(events, model.ChangeEvent{Type: model.ChangeSessionUpdated, SessionID: sessionID, Session: &sess})
		}
		for i := range events {
			events[i].Seq = seqStart + int64(i) + 1
		}

		updatedJSON, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("apply to session %s: marshal session: %w", sessionID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessKey, updatedJSON, 0)
			for _, b := range m.Bids {
				bJSON, mErr := json.Marshal(b)
				if mErr != nil {
					return mErr
				}
				pipe.RPush(ctx, bidsKeyPrefix+sessionID, bJSON)
			}
			for _, p := range parts {
				pJSON, mErr := json.Marshal(p)
				if mErr != nil {
					return mErr
				}
				pipe.HSet(ctx, partsKeyPrefix+sessionID, p.UserID, pJSON)
			}
			pipe.Set(ctx, seqKeyPrefix+sessionID, seqStart+int64(len(events)), 0)
			if updated.Status.Terminal() {
				pipe.SRem(ctx, openSessionsKey, sessionID)
			}
			for _, ev := range events {
				evJSON, mErr := json.Marshal(ev)
				if mErr != nil {
					return mErr
				}
				pipe.Publish(ctx, changesKeyPrefix+sessionID, evJSON)
			}
			return nil
		})
		return err
	}, sessKey)

	if errors.Is(err, redis.TxFailedErr) {
		return 0, fmt.Errorf("apply to session %s: %w", sessionID, biddingerrors.ErrVersionConflict)
	}
	if err != nil {
		return 0, err
	}
	return newVersion, nil
}

// ListOpenSessions returns every session in the open set that is still
// non-terminal.
func (s *RedisStore) ListOpenSessions(ctx context.Context) ([]model.BiddingSession, error) {
	ids, err := s.client.SMembers(ctx, openSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}

	var open []model.BiddingSession
	for _, id := range ids {
		sessionJSON, err := s.client.Get(ctx, sessionKeyPrefix+id).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list open sessions: %w", err)
		}
		var session model.BiddingSession
		if err := json.Unmarshal([]byte(sessionJSON), &session); err != nil {
			return nil, fmt.Errorf("list open sessions: decode session %s: %w", id, err)
		}
		if !session.Status.Terminal() {
			open = append(open, session)
		}
	}
	return open, nil
}

// Subscribe opens a pub/sub subscription on the session's change channel.
func (s *RedisStore) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	ps := s.client.Subscribe(ctx, changesKeyPrefix+sessionID)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to session %s: %w", sessionID, err)
	}

	sub := &redisSubscription{
		ps:   ps,
		ch:   make(chan model.ChangeEvent, 64),
		done: make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	ch   chan model.ChangeEvent
	done chan struct{}
	once sync.Once
}

// pump forwards pub/sub messages until the channel closes or Close is called.
// The done select keeps a pump blocked on a full buffer from outliving its
// subscription when the consumer is gone.
func (sub *redisSubscription) pump() {
	defer close(sub.ch)
	for msg := range sub.ps.Channel() {
		var ev model.ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			continue
		}
		select {
		case sub.ch <- ev:
		case <-sub.done:
			return
		}
	}
}

func (sub *redisSubscription) Events() <-chan model.ChangeEvent { return sub.ch }

func (sub *redisSubscription) Close() error {
	var err error
	sub.once.Do(func() {
		close(sub.done)
		err = sub.ps.Close()
	})
	return err
}
