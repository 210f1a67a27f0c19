package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/avelev/scout/internal/domain"
	"github.com/avelev/scout/internal/identity"
	"github.com/avelev/scout/internal/session"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// ChatRequest is the POST /api/chat request body.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the POST /api/chat response body.
type ChatResponse struct {
	ExchangeID string `json:"exchange_id"`
	Answer     string `json:"answer"`
	Remaining  int    `json:"remaining"`
	Disabled   bool   `json:"disabled"`
}

// RegisterRoutes registers the chat and session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.HandleChat)
		r.Get("/session", h.GetSession)
		r.Delete("/session", h.ResetSession)
		r.Get("/health", h.Health)
	})
}

// HandleChat handles POST /api/chat requests: one question in, one answer out.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// Rate-limit by userID only (not userID:sessionID) so clients cannot bypass
	// throttling by rotating session IDs.
	if !h.rateLimiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s := h.sessions.GetOrCreate(userID, sessionID)
	reqID := chiMiddleware.GetReqID(r.Context())
	exchangeID := uuid.NewString()

	slog.Info("chat request",
		"user_id", userID,
		"session_id", sessionID,
		"message_length", len(req.Message),
		"remaining", s.Remaining(),
	)
	h.log.Log(domain.ConversationEvent{
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		SessionID: sessionID,
		Channel:   "http",
		Direction: "in",
		EventType: "question",
		Content:   req.Message,
		Meta:      map[string]any{"request_id": reqID, "exchange_id": exchangeID},
	})

	answer, err := s.Submit(r.Context(), req.Message)
	switch {
	case errors.Is(err, session.ErrBudgetExhausted):
		JSON(w, http.StatusConflict, map[string]interface{}{
			"error":     "question limit reached",
			"remaining": 0,
			"disabled":  true,
		})
		return
	case errors.Is(err, session.ErrEmptyQuestion):
		Error(w, http.StatusBadRequest, "message is required")
		return
	case err != nil:
		slog.Error("chat submission failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.log.Log(domain.ConversationEvent{
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		SessionID: sessionID,
		Channel:   "http",
		Direction: "out",
		EventType: "answer",
		Content:   answer,
		Meta:      map[string]any{"request_id": reqID, "exchange_id": exchangeID, "remaining": s.Remaining()},
	})

	JSON(w, http.StatusOK, ChatResponse{
		ExchangeID: exchangeID,
		Answer:     answer,
		Remaining:  s.Remaining(),
		Disabled:   s.Exhausted(),
	})
}

// transcriptTurn is one user-visible conversation turn.
type transcriptTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GetSession returns the budget state and visible transcript for the caller's
// session. Tool traffic is internal and not exposed.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	s := h.sessions.GetOrCreate(userID, sessionID)
	s.Touch()

	turns := make([]transcriptTurn, 0)
	for _, m := range s.Transcript() {
		if m.Role == domain.RoleTool || m.HasToolCalls() {
			continue
		}
		turns = append(turns, transcriptTurn{Role: string(m.Role), Content: m.Content})
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"remaining":  s.Remaining(),
		"allowed":    s.Allowed(),
		"disabled":   s.Exhausted(),
		"transcript": turns,
	})
}

// ResetSession discards the caller's session so the next question starts a
// fresh conversation with a full budget.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	h.sessions.Reset(userID, sessionID)
	JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
