package chatws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/avelev/scout/internal/convlog"
	"github.com/avelev/scout/internal/domain"
	"github.com/avelev/scout/internal/identity"
	"github.com/avelev/scout/internal/session"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Handler serves the WebSocket chat endpoint.
type Handler struct {
	sessions      *session.Manager
	registry      *Registry
	log           convlog.Logger
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new WebSocket chat handler.
func NewHandler(sessions *session.Manager, registry *Registry, log convlog.Logger, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		sessions:      sessions,
		registry:      registry,
		log:           log,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// clientMessage represents an inbound WebSocket frame.
type clientMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// serverMessage represents an outbound WebSocket frame.
type serverMessage struct {
	Type       string `json:"type"`
	ExchangeID string `json:"exchange_id,omitempty"`
	Answer     string `json:"answer,omitempty"`
	Error      string `json:"error,omitempty"`
	Remaining  int    `json:"remaining"`
	Disabled   bool   `json:"disabled"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket chat connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.registry.Register(userID, sessionID, ws)
	defer h.registry.Unregister(userID, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.readLoop(ctx, ws, userID, sessionID)
	slog.Info("chat connection ended", "user_id", userID, "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, userID, sessionID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			if writeErr := h.writeJSON(ws, serverMessage{Type: "error", Error: "invalid message"}); writeErr != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case "ask":
			if !h.handleAsk(ctx, ws, userID, sessionID, msg.Message) {
				return
			}
		case "ping":
			if err := h.writeJSON(ws, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("failed to send pong", "error", err)
			}
		}
	}
}

// handleAsk submits one question and writes the answer frame. Returns false
// when the connection is no longer writable.
func (h *Handler) handleAsk(ctx context.Context, ws *websocket.Conn, userID, sessionID, question string) bool {
	s := h.sessions.GetOrCreate(userID, sessionID)
	exchangeID := uuid.NewString()

	if err := h.writeJSON(ws, serverMessage{
		Type:       "thinking",
		ExchangeID: exchangeID,
		Remaining:  s.Remaining(),
		Disabled:   s.Exhausted(),
	}); err != nil {
		return false
	}

	h.log.Log(domain.ConversationEvent{
		UserID:    userID,
		SessionID: sessionID,
		Channel:   "websocket",
		Direction: "in",
		EventType: "question",
		Content:   question,
		Meta:      map[string]any{"exchange_id": exchangeID},
	})

	answer, err := s.Submit(ctx, question)
	if err != nil {
		frame := serverMessage{
			Type:       "error",
			ExchangeID: exchangeID,
			Remaining:  s.Remaining(),
			Disabled:   s.Exhausted(),
		}
		switch {
		case errors.Is(err, session.ErrBudgetExhausted):
			frame.Error = "question limit reached"
		case errors.Is(err, session.ErrEmptyQuestion):
			frame.Error = "message is required"
		default:
			slog.Error("chat submission failed", "user_id", userID, "error", err)
			frame.Error = "internal error"
		}
		return h.writeJSON(ws, frame) == nil
	}

	h.log.Log(domain.ConversationEvent{
		UserID:    userID,
		SessionID: sessionID,
		Channel:   "websocket",
		Direction: "out",
		EventType: "answer",
		Content:   answer,
		Meta:      map[string]any{"exchange_id": exchangeID, "remaining": s.Remaining()},
	})

	return h.writeJSON(ws, serverMessage{
		Type:       "answer",
		ExchangeID: exchangeID,
		Answer:     answer,
		Remaining:  s.Remaining(),
		Disabled:   s.Exhausted(),
	}) == nil
}

func (h *Handler) writeJSON(ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(context.Background(), websocket.MessageText, data)
}
