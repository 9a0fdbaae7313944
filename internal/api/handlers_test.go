package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"healthmate/internal/auth"
	"healthmate/internal/config"
	"healthmate/internal/models"
	"healthmate/internal/orchestrator"
	"healthmate/internal/service/conversation"
	"healthmate/internal/service/health"
	"healthmate/internal/storage"
	"healthmate/internal/worker"
)

// fakeEngine satisfies Orchestrator with a scripted response.
type fakeEngine struct {
	resp   *models.NormalizedResponse
	convID string
	err    error
	calls  int
}

func (f *fakeEngine) Run(ctx context.Context, feature string, userID int64, payload map[string]any, conversationID string) (*models.NormalizedResponse, string, error) {
	f.calls++
	if f.err != nil {
		return nil, "", f.err
	}
	return f.resp, f.convID, nil
}

type testServer struct {
	router        *gin.Engine
	db            *sql.DB
	engine        *fakeEngine
	conversations *conversation.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	healthService := health.NewService(db)
	conversations := conversation.NewService(db, nil, 5, 100)
	authService := auth.NewService(db, time.Hour)
	engine := &fakeEngine{
		resp: &models.NormalizedResponse{
			Fields: map[string]any{"advice": "eat more vegetables"},
		},
	}
	dispatcher := worker.NewDispatcher(1, 2, 16, time.Second)

	handler := NewHandler(healthService, conversations, authService, engine, dispatcher)
	router := gin.New()
	handler.RegisterRoutes(router)
	return &testServer{router: router, db: db, engine: engine, conversations: conversations}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body
}

// registerAndLogin creates a user through the API and returns its id and token.
func registerAndLogin(t *testing.T, ts *testServer, username string) (int64, string) {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/users/register", "", map[string]string{
		"username": username, "password": "hunter2!",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodPost, "/api/users/login", "", map[string]string{
		"username": username, "password": "hunter2!",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	id := int64(body["id"].(float64))
	token, _ := body["auth_token"].(string)
	if id <= 0 || token == "" {
		t.Fatalf("login body: %v", body)
	}
	return id, token
}

func TestRegisterLoginAndAuth(t *testing.T) {
	ts := newTestServer(t)
	userID, token := registerAndLogin(t, ts, "sam")

	// Wrong password.
	w := ts.do(t, http.MethodPost, "/api/users/login", "", map[string]string{
		"username": "sam", "password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: %d", w.Code)
	}

	// Authorized profile fetch.
	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/profile", userID), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile: %d %s", w.Code, w.Body.String())
	}

	// No token.
	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/profile", userID), "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: %d", w.Code)
	}

	// Someone else's path.
	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/profile", userID+1), token, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("path mismatch: %d", w.Code)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	ts := newTestServer(t)
	userID, token := registerAndLogin(t, ts, "sam")

	w := ts.do(t, http.MethodPost, fmt.Sprintf("/api/users/%d/logout", userID), token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/profile", userID), token, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token still valid: %d", w.Code)
	}
}

func TestMetricsRoundtrip(t *testing.T) {
	ts := newTestServer(t)
	userID, token := registerAndLogin(t, ts, "sam")

	weight, height := 70.5, 175.0
	w := ts.do(t, http.MethodPost, fmt.Sprintf("/api/users/%d/metrics", userID), token, models.MetricsInput{
		Weight: &weight,
		Height: &height,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add metrics: %d %s", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/metrics/latest", userID), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("latest: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if got := body["bmi"]; got != 23.0 {
		t.Fatalf("bmi = %v", got)
	}

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/metrics/history?days=30", userID), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: %d %s", w.Code, w.Body.String())
	}
	history, _ := decodeBody(t, w)["history"].(map[string]any)
	if _, ok := history["weight"]; !ok {
		t.Fatalf("history missing weight: %v", history)
	}

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/metrics/history?days=bogus", userID), token, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad days: %d", w.Code)
	}
}

func TestRestrictionsEndpoints(t *testing.T) {
	ts := newTestServer(t)
	userID, token := registerAndLogin(t, ts, "sam")
	base := fmt.Sprintf("/api/users/%d/restrictions", userID)

	w := ts.do(t, http.MethodPost, base, token, map[string]string{"restriction": "Lactose"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("add: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodGet, base, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	restrictions, _ := decodeBody(t, w)["restrictions"].([]any)
	if len(restrictions) != 1 || restrictions[0] != "lactose" {
		t.Fatalf("restrictions = %v", restrictions)
	}

	w = ts.do(t, http.MethodDelete, base, token, map[string]string{"restriction": "lactose"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("remove: %d", w.Code)
	}
	w = ts.do(t, http.MethodGet, base, token, nil)
	restrictions, _ = decodeBody(t, w)["restrictions"].([]any)
	if len(restrictions) != 0 {
		t.Fatalf("restrictions after remove = %v", restrictions)
	}
}

func TestFeatureEndpoint(t *testing.T) {
	ts := newTestServer(t)
	userID, token := registerAndLogin(t, ts, "sam")
	ts.engine.convID = "conv-42"

	w := ts.do(t, http.MethodPost, fmt.Sprintf("/api/users/%d/features/diet-advice", userID), token, map[string]any{
		"query_text": "what should I eat?",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("feature: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	result, _ := body["result"].(map[string]any)
	if result["advice"] != "eat more vegetables" {
		t.Fatalf("result = %v", result)
	}
	if body["is_fallback"] != false {
		t.Fatalf("is_fallback = %v", body["is_fallback"])
	}
	if body["conversation_id"] != "conv-42" {
		t.Fatalf("conversation_id = %v", body["conversation_id"])
	}
	if ts.engine.calls != 1 {
		t.Fatalf("engine ran %d times", ts.engine.calls)
	}
}

func TestFeatureEndpointErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	userID, token := registerAndLogin(t, ts, "sam")
	path := fmt.Sprintf("/api/users/%d/features/weekly-report", userID)

	ts.engine.err = orchestrator.ErrContextUnavailable
	if w := ts.do(t, http.MethodPost, path, token, nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("context unavailable: %d", w.Code)
	}
	ts.engine.err = orchestrator.ErrUnknownFeature
	if w := ts.do(t, http.MethodPost, path, token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown feature: %d", w.Code)
	}
	ts.engine.err = fmt.Errorf("boom")
	if w := ts.do(t, http.MethodPost, path, token, nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("generic error: %d", w.Code)
	}
}

func TestFeatureRejectsForeignConversation(t *testing.T) {
	ts := newTestServer(t)
	aliceID, aliceToken := registerAndLogin(t, ts, "alice")
	bobID, _ := registerAndLogin(t, ts, "bob")
	path := fmt.Sprintf("/api/users/%d/features/voice-query", aliceID)

	session, err := ts.conversations.GetOrCreateActiveSession(context.Background(), bobID, "general")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// A conversation id belonging to another user never reaches the engine.
	w := ts.do(t, http.MethodPost, path, aliceToken, map[string]any{
		"query_text":      "hello",
		"conversation_id": session.ConversationID,
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign conversation: %d %s", w.Code, w.Body.String())
	}
	if ts.engine.calls != 0 {
		t.Fatalf("engine ran %d times", ts.engine.calls)
	}

	// An unknown conversation id is a 404.
	w = ts.do(t, http.MethodPost, path, aliceToken, map[string]any{
		"query_text":      "hello",
		"conversation_id": "no-such",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown conversation: %d", w.Code)
	}
	if ts.engine.calls != 0 {
		t.Fatalf("engine ran %d times", ts.engine.calls)
	}

	// The owner may pin the run to their own active session.
	own, err := ts.conversations.GetOrCreateActiveSession(context.Background(), aliceID, "general")
	if err != nil {
		t.Fatalf("create own session: %v", err)
	}
	w = ts.do(t, http.MethodPost, path, aliceToken, map[string]any{
		"query_text":      "hello",
		"conversation_id": own.ConversationID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("own conversation: %d %s", w.Code, w.Body.String())
	}
	if ts.engine.calls != 1 {
		t.Fatalf("engine ran %d times", ts.engine.calls)
	}

	// A closed session cannot be reopened through a feature run.
	if err := ts.conversations.CloseSession(context.Background(), own.ConversationID); err != nil {
		t.Fatalf("close session: %v", err)
	}
	w = ts.do(t, http.MethodPost, path, aliceToken, map[string]any{
		"query_text":      "hello",
		"conversation_id": own.ConversationID,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("closed conversation: %d %s", w.Code, w.Body.String())
	}
	if ts.engine.calls != 1 {
		t.Fatalf("engine ran %d times", ts.engine.calls)
	}
}

func TestSessionOwnership(t *testing.T) {
	ts := newTestServer(t)
	aliceID, aliceToken := registerAndLogin(t, ts, "alice")
	bobID, bobToken := registerAndLogin(t, ts, "bob")

	session, err := ts.conversations.GetOrCreateActiveSession(context.Background(), aliceID, "general")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := ts.conversations.AppendMessage(context.Background(), session.ConversationID, models.SenderUser, "hi", false, nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Owner sees the messages.
	w := ts.do(t, http.MethodGet,
		fmt.Sprintf("/api/users/%d/conversation/sessions/%s/messages", aliceID, session.ConversationID), aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("owner messages: %d %s", w.Code, w.Body.String())
	}
	messages, _ := decodeBody(t, w)["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("messages = %v", messages)
	}

	// Another user is rejected on their own path.
	w = ts.do(t, http.MethodGet,
		fmt.Sprintf("/api/users/%d/conversation/sessions/%s/messages", bobID, session.ConversationID), bobToken, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign session: %d", w.Code)
	}

	// Unknown session.
	w = ts.do(t, http.MethodGet,
		fmt.Sprintf("/api/users/%d/conversation/sessions/no-such/messages", aliceID), aliceToken, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing session: %d", w.Code)
	}

	// Owner closes the session.
	w = ts.do(t, http.MethodPost,
		fmt.Sprintf("/api/users/%d/conversation/sessions/%s/close", aliceID, session.ConversationID), aliceToken, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("close: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/conversation/sessions", aliceID), aliceToken, nil)
	sessions, _ := decodeBody(t, w)["sessions"].([]any)
	if len(sessions) != 1 {
		t.Fatalf("sessions = %v", sessions)
	}
	closed, _ := sessions[0].(map[string]any)
	if closed["is_active"] != false {
		t.Fatalf("session still active: %v", closed)
	}
}
