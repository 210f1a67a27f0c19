package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Manager owns the live session set, keyed by user and session ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	loop     AgentLoop
	allowed  int
}

// NewManager creates a manager whose sessions share the given loop and
// question budget.
func NewManager(loop AgentLoop, allowed int) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		loop:     loop,
		allowed:  allowed,
	}
}

// Key builds the composite map key for a user's session.
func Key(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// SplitKey recovers the user and session IDs from a composite key.
func SplitKey(key string) (userID, sessionID string) {
	userID, sessionID, _ = strings.Cut(key, ":")
	return userID, sessionID
}

// GetOrCreate returns the session for the given user and session ID, creating
// a fresh one with a full budget when none exists.
func (m *Manager) GetOrCreate(userID, sessionID string) *Session {
	key := Key(userID, sessionID)

	m.mu.RLock()
	s, ok := m.sessions[key]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s
	}
	s = New(key, m.loop, m.allowed)
	m.sessions[key] = s
	slog.Info("session created", "user_id", userID, "session_id", sessionID)
	return s
}

// Get returns the session if it exists.
func (m *Manager) Get(userID, sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[Key(userID, sessionID)]
	return s, ok
}

// Reset discards the session so the next access starts with a full budget.
func (m *Manager) Reset(userID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, Key(userID, sessionID))
	slog.Info("session reset", "user_id", userID, "session_id", sessionID)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartTTLWorker evicts sessions idle for longer than ttl, checking every
// interval. onEvict, if set, is called with the composite key of each evicted
// session after removal. The worker stops when ctx is cancelled.
func (m *Manager) StartTTLWorker(ctx context.Context, ttl, interval time.Duration, onEvict func(key string)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.evictExpired(ttl, onEvict)
			}
		}
	}()
}

func (m *Manager) evictExpired(ttl time.Duration, onEvict func(key string)) {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	var expired []string
	for key, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			expired = append(expired, key)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for _, key := range expired {
		slog.Info("session expired", "key", key)
		if onEvict != nil {
			onEvict(key)
		}
	}
}
