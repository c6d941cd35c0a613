package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"night-auction/internal/biddingerrors"
	model "night-auction/internal/models"
)

// Mutation is one atomic write against a session: appended bids, updated
// participant rows and optionally the updated session row. The store bumps
// the session version on every applied mutation and rejects the write with
// ErrVersionConflict when ExpectedVersion no longer matches.
type Mutation struct {
	ExpectedVersion int64
	Session         *model.BiddingSession
	Participants    []model.Participant
	Bids            []model.Bid
}

// Subscription is a live feed of row-change events for one session.
// Delivery is at-least-once; consumers must deduplicate by identity.
type Subscription interface {
	Events() <-chan model.ChangeEvent
	Close() error
}

// SessionStore is the persistent record store for sessions, bids and
// participants, with row-level change notifications.
type SessionStore interface {
	CreateSession(ctx context.Context, snap model.SessionSnapshot) error
	GetSession(ctx context.Context, sessionID string) (model.SessionSnapshot, error)
	Apply(ctx context.Context, sessionID string, m Mutation) (int64, error)
	ListOpenSessions(ctx context.Context) ([]model.BiddingSession, error)
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
}

type sessionRecord struct {
	session      model.BiddingSession
	participants []model.Participant
	bids         []model.Bid
	seq          int64
}

// MemoryStore is a concurrency-safe in-memory SessionStore. It backs tests
// and single-node deployments; RedisStore is the networked implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionRecord
	watchers map[string]map[*memorySubscription]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*sessionRecord),
		watchers: make(map[string]map[*memorySubscription]struct{}),
	}
}

// CreateSession stores a new session with its participants and any seed bids.
func (s *MemoryStore) CreateSession(_ context.Context, snap model.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := snap.Session.SessionID
	if _, exists := s.sessions[id]; exists {
		return fmt.Errorf("create session %s: session already exists", id)
	}

	rec := &sessionRecord{
		session:      snap.Session,
		participants: append([]model.Participant(nil), snap.Participants...),
		bids:         append([]model.Bid(nil), snap.Bids...),
	}
	rec.session.Version = 1
	for i := range rec.participants {
		rec.participants[i].Version = 1
	}
	s.sessions[id] = rec
	return nil
}

// GetSession returns a copy of the current session snapshot.
func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (model.SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return model.SessionSnapshot{}, fmt.Errorf("get session %s: %w", sessionID, biddingerrors.ErrSessionNotFound)
	}
	return snapshotOf(rec), nil
}

// Apply commits a mutation atomically, bumps the session version and fans the
// resulting change events out to subscribers.
func (s *MemoryStore) Apply(_ context.Context, sessionID string, m Mutation) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return 0, fmt.Errorf("apply to session %s: %w", sessionID, biddingerrors.ErrSessionNotFound)
	}
	if rec.session.Version != m.ExpectedVersion {
		return 0, fmt.Errorf("apply to session %s: have version %d, expected %d: %w",
			sessionID, rec.session.Version, m.ExpectedVersion, biddingerrors.ErrVersionConflict)
	}

	// Validate the whole mutation before touching any row so a rejected
	// write leaves nothing behind.
	rows := make(map[string]int, len(m.Participants))
	for _, p := range m.Participants {
		found := false
		for j := range rec.participants {
			if rec.participants[j].UserID == p.UserID {
				rows[p.UserID] = j
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("apply to session %s: unknown participant %s", sessionID, p.UserID)
		}
	}

	newVersion := rec.session.Version + 1
	var events []model.ChangeEvent

	rec.bids = append(rec.bids, m.Bids...)
	sort.SliceStable(rec.bids, func(i, j int) bool { return rec.bids[i].CreatedAt.Before(rec.bids[j].CreatedAt) })
	for i := range m.Bids {
		bid := m.Bids[i]
		events = append(events, model.ChangeEvent{Type: model.ChangeBidAppended, SessionID: sessionID, Bid: &bid})
	}

	for i := range m.Participants {
		p := m.Participants[i]
		p.Version = newVersion
		rec.participants[rows[p.UserID]] = p
		events = append(events, model.ChangeEvent{Type: model.ChangeParticipantUpdated, SessionID: sessionID, Participant: &p})
	}

	if m.Session != nil {
		rec.session = *m.Session
	}
	rec.session.Version = newVersion
	if m.Session != nil {
		sess := rec.session
		events = append(events, model.ChangeEvent{Type: model.ChangeSessionUpdated, SessionID: sessionID, Session: &sess})
	}

	for i := range events {
		rec.seq++
		events[i].Seq = rec.seq
	}
	s.broadcast(sessionID, events)

	return newVersion, nil
}

// ListOpenSessions returns every session that is not in a terminal state.
func (s *MemoryStore) ListOpenSessions(_ context.Context) ([]model.BiddingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var open []model.BiddingSession
	for _, rec := range s.sessions {
		if !rec.session.Status.Terminal() {
			open = append(open, rec.session)
		}
	}
	return open, nil
}

// Subscribe registers a change-event watcher for one session. Events are
// delivered on a buffered channel; a consumer too slow to keep up has its
// channel closed, which pushes it onto the reconnect-and-resync path instead
// of leaving it silently behind.
func (s *MemoryStore) Subscribe(_ context.Context, sessionID string) (Subscription, error) {
	sub := &memorySubscription{
		store:     s,
		sessionID: sessionID,
		ch:        make(chan model.ChangeEvent, 64),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchers[sessionID] == nil {
		s.watchers[sessionID] = make(map[*memorySubscription]struct{})
	}
	s.watchers[sessionID][sub] = struct{}{}
	return sub, nil
}

// broadcast delivers events to all watchers without blocking; a watcher whose
// buffer is full is dropped and its channel closed. Callers hold s.mu.
func (s *MemoryStore) broadcast(sessionID string, events []model.ChangeEvent) {
	for sub := range s.watchers[sessionID] {
		if !sub.trySend(events) {
			delete(s.watchers[sessionID], sub)
			sub.closeChan()
		}
	}
}

type memorySubscription struct {
	store     *MemoryStore
	sessionID string
	ch        chan model.ChangeEvent
	once      sync.Once
}

func (sub *memorySubscription) trySend(events []model.ChangeEvent) bool {
	for _, ev := range events {
		select {
		case sub.ch <- ev:
		default:
			return false
		}
	}
	return true
}

func (sub *memorySubscription) closeChan() {
	sub.once.Do(func() { close(sub.ch) })
}

func (sub *memorySubscription) Events() <-chan model.ChangeEvent { return sub.ch }

func (sub *memorySubscription) Close() error {
	sub.store.mu.Lock()
	if watchers, ok := sub.store.watchers[sub.sessionID]; ok {
		delete(watchers, sub)
	}
	sub.store.mu.Unlock()
	sub.closeChan()
	return nil
}

func snapshotOf(rec *sessionRecord) model.SessionSnapshot {
	return model.SessionSnapshot{
		Session:      rec.session,
		Participants: append([]model.Participant(nil), rec.participants...),
		Bids:         append([]model.Bid(nil), rec.bids...),
	}
}
