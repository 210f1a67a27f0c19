package domain

import (
	"time"
)

// ConversationEvent is one row of the write-only conversation audit log.
// The log is observability output: session state is never reconstructed
// from it.
type ConversationEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"ts"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Channel   string         `json:"channel"`
	Direction string         `json:"direction"`
	EventType string         `json:"event_type"`
	Content   string         `json:"content"`
	Meta      map[string]any `json:"meta,omitempty"`
}
