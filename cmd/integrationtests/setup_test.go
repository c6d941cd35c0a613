package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	bidding "night-auction/internal/biddingService"
	model "night-auction/internal/models"
	"night-auction/internal/repository"
	"night-auction/internal/server"

	"github.com/gin-gonic/gin"
)

// recordingNotifier captures settlement events emitted during a test run.
type recordingNotifier struct {
	mu     sync.Mutex
	events []model.SettlementEvent
}

func (r *recordingNotifier) NotifySettlement(_ context.Context, event model.SettlementEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) all() []model.SettlementEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SettlementEvent(nil), r.events...)
}

// testStack is everything an end-to-end test needs: the router plus direct
// access to the service and the captured settlements.
type testStack struct {
	router   *gin.Engine
	service  *bidding.BiddingService
	notifier *recordingNotifier
}

// SetupTestStack initializes the full HTTP stack over the in-memory store.
func SetupTestStack() *testStack {
	gin.SetMode(gin.TestMode)
	store := repository.NewMemoryStore()
	notifier := &recordingNotifier{}
	service := bidding.NewBiddingService(store, notifier, bidding.Config{})
	router := server.SetupRouter(service, time.Hour)
	return &testStack{router: router, service: service, notifier: notifier}
}

// ExecuteRequest executes an HTTP request as the given user and parses the
// JSON response body when there is one.
func (s *testStack) ExecuteRequest(t *testing.T, method, url, userID string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error
	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	s.router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

// CreateSession drives the create endpoint and returns the new session id.
func (s *testStack) CreateSession(t *testing.T, nightID string, expiresAt *time.Time) string {
	t.Helper()

	body := map[string]any{
		"night_id": nightID,
		"participants": []map[string]any{
			{"user_id": "user1", "display_name": "One"},
			{"user_id": "user2", "display_name": "Two"},
		},
	}
	if expiresAt != nil {
		body["expires_at"] = expiresAt.UTC().Format(time.RFC3339Nano)
	}

	resp, w := s.ExecuteRequest(t, "POST", "/sessions", "", body)
	if w.Code != 201 {
		t.Fatalf("create session returned %d: %s", w.Code, w.Body.String())
	}
	data := resp["data"].(map[string]any)
	session := data["session"].(map[string]any)
	return session["session_id"].(string)
}
