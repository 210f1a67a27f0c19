package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avelev/scout/internal/config"
	"github.com/avelev/scout/internal/convlog"
	"github.com/avelev/scout/internal/domain"
	"github.com/avelev/scout/internal/identity"
	"github.com/avelev/scout/internal/session"
	"github.com/go-chi/chi/v5"
)

// stubLoop answers every question with a canned string and counts calls.
type stubLoop struct {
	answer string
	calls  int
}

func (l *stubLoop) Run(ctx context.Context, transcript []domain.Message) ([]domain.Message, error) {
	l.calls++
	return []domain.Message{domain.AssistantMessage(l.answer)}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Port:             "8080",
		DBPath:           "/tmp/scout.db",
		OpenAIAPIKey:     "test",
		ModelName:        "test-model",
		QuestionsAllowed: 4,
		MaxAgentRounds:   8,
		SessionTTL:       time.Hour,
		RateLimit: config.RateLimitConfig{
			RequestsPerWindow: 100,
			WindowDuration:    time.Minute,
		},
		ConversationLog: config.ConversationLogConfig{Enabled: false},
	}
}

func newTestServer(t *testing.T, loop session.AgentLoop, cfg *config.Config) *httptest.Server {
	t.Helper()

	sessions := session.NewManager(loop, cfg.QuestionsAllowed)
	handler := NewHandler(nil, sessions, convlog.New(cfg.ConversationLog, nil), cfg)

	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	handler.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

const testAnonID = "anon_0123456789abcdef0123456789abcdef"

func doChat(t *testing.T, srv *httptest.Server, message string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/chat", strings.NewReader(`{"message":`+jsonString(message)+`}`))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: identity.AnonCookieName, Value: testAnonID})

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func jsonString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func TestHandleChatReturnsAnswer(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{answer: "Apple trades at $150."}
	srv := newTestServer(t, loop, testConfig())

	resp := doChat(t, srv, "What is Apple's stock price?")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var got ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Answer != "Apple trades at $150." {
		t.Errorf("unexpected answer: %q", got.Answer)
	}
	if got.Remaining != 3 {
		t.Errorf("expected 3 remaining, got %d", got.Remaining)
	}
	if got.Disabled {
		t.Error("session must not be disabled after the first question")
	}
	if got.ExchangeID == "" {
		t.Error("expected an exchange ID")
	}
}

func TestHandleChatBudgetExhausted(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.QuestionsAllowed = 2
	loop := &stubLoop{answer: "ok"}
	srv := newTestServer(t, loop, cfg)

	for i := 0; i < 2; i++ {
		resp := doChat(t, srv, "question")
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("submission %d: expected 200, got %d", i+1, resp.StatusCode)
		}
	}

	callsBefore := loop.calls
	resp := doChat(t, srv, "one too many")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	if loop.calls != callsBefore {
		t.Error("rejected submission must not reach the agent loop")
	}

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got["disabled"] != true {
		t.Errorf("expected disabled=true, got %v", got["disabled"])
	}
	if got["remaining"] != float64(0) {
		t.Errorf("expected remaining=0, got %v", got["remaining"])
	}
}

func TestHandleChatEmptyMessage(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{answer: "ok"}
	srv := newTestServer(t, loop, testConfig())

	resp := doChat(t, srv, "   ")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	if loop.calls != 0 {
		t.Error("blank message must not reach the agent loop")
	}
}

func TestHandleChatRateLimited(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RateLimit.RequestsPerWindow = 1
	srv := newTestServer(t, &stubLoop{answer: "ok"}, cfg)

	resp := doChat(t, srv, "first")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for first request, got %d", resp.StatusCode)
	}

	resp = doChat(t, srv, "second")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp.StatusCode)
	}
}

func TestGetSessionState(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubLoop{answer: "the answer"}, testConfig())

	resp := doChat(t, srv, "a question")
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/session", nil)
	req.AddCookie(&http.Cookie{Name: identity.AnonCookieName, Value: testAnonID})
	stateResp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer stateResp.Body.Close()

	var got struct {
		Remaining  int              `json:"remaining"`
		Allowed    int              `json:"allowed"`
		Disabled   bool             `json:"disabled"`
		Transcript []transcriptTurn `json:"transcript"`
	}
	if err := json.NewDecoder(stateResp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Remaining != 3 || got.Allowed != 4 {
		t.Errorf("unexpected budget state: remaining=%d allowed=%d", got.Remaining, got.Allowed)
	}
	if len(got.Transcript) != 2 {
		t.Fatalf("expected 2 visible turns, got %d", len(got.Transcript))
	}
	if got.Transcript[0].Role != "user" || got.Transcript[1].Role != "assistant" {
		t.Errorf("unexpected turn roles: %+v", got.Transcript)
	}
}

func TestResetSessionRestoresBudget(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.QuestionsAllowed = 1
	srv := newTestServer(t, &stubLoop{answer: "ok"}, cfg)

	resp := doChat(t, srv, "question")
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/session", nil)
	req.AddCookie(&http.Cookie{Name: identity.AnonCookieName, Value: testAnonID})
	resetResp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("reset request failed: %v", err)
	}
	resetResp.Body.Close()
	if resetResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for reset, got %d", resetResp.StatusCode)
	}

	resp = doChat(t, srv, "fresh question")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected fresh budget after reset, got %d", resp.StatusCode)
	}
}

func TestSessionsIsolatedByHeader(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.QuestionsAllowed = 1
	srv := newTestServer(t, &stubLoop{answer: "ok"}, cfg)

	ask := func(sessionID string) int {
		t.Helper()
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/chat", strings.NewReader(`{"message":"q"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(identity.SessionHeaderName, sessionID)
		req.AddCookie(&http.Cookie{Name: identity.AnonCookieName, Value: testAnonID})
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := ask("tab-1"); code != http.StatusOK {
		t.Fatalf("tab-1: expected 200, got %d", code)
	}
	if code := ask("tab-1"); code != http.StatusConflict {
		t.Fatalf("tab-1: expected 409 after budget spent, got %d", code)
	}
	if code := ask("tab-2"); code != http.StatusOK {
		t.Errorf("tab-2 must have its own budget, got %d", code)
	}
}

func TestHealthWithoutDatabase(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubLoop{answer: "ok"}, testConfig())

	resp, err := srv.Client().Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
