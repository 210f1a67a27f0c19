// Package chatws provides the WebSocket chat transport.
package chatws

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Registry tracks active WebSocket connections per user and session.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewRegistry creates a new connection registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Register adds a new WebSocket connection for a user/session.
func (r *Registry) Register(userID, sessionID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[userID]; !exists {
		r.active[userID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := r.active[userID][sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "connection replaced")
	}

	r.active[userID][sessionID] = conn
	slog.Info("chat connection registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes a WebSocket connection for a user/session.
func (r *Registry) Unregister(userID, sessionID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessions, ok := r.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(r.active, userID)
			}
			slog.Info("chat connection unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// Close terminates the connection for a user/session, if any. Used when the
// session manager evicts an idle session.
func (r *Registry) Close(userID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.active[userID]
	if !ok {
		return
	}
	conn, exists := sessions[sessionID]
	if !exists {
		return
	}

	_ = conn.Close(websocket.StatusNormalClosure, "session expired")
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(r.active, userID)
	}
	slog.Info("chat connection closed", "user_id", userID, "session_id", sessionID)
}
