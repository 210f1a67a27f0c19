// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/avelev/scout/internal/domain"
)

// Repository defines the interface for the conversation audit log. Events are
// append-only: live sessions never read their state back from here.
type Repository interface {
	// InsertEvent appends a conversation event.
	InsertEvent(ctx context.Context, event *domain.ConversationEvent) error

	// ListEvents retrieves events for a user's session, oldest first,
	// up to limit rows (0 means no limit).
	ListEvents(ctx context.Context, userID, sessionID string, limit int) ([]*domain.ConversationEvent, error)

	// CountEvents returns the number of events recorded for a user.
	CountEvents(ctx context.Context, userID string) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
