package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/avelev/scout/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS conversation_events (
		event_id TEXT PRIMARY KEY,
		ts INTEGER NOT NULL,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		direction TEXT NOT NULL,
		event_type TEXT NOT NULL,
		content TEXT NOT NULL,
		meta_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_conversation_events_session ON conversation_events(user_id, session_id, ts);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertEvent appends a conversation event. A missing event ID or timestamp
// is filled in here.
func (s *SQLiteStore) InsertEvent(ctx context.Context, event *domain.ConversationEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var metaJSON interface{}
	if len(event.Meta) > 0 {
		data, err := json.Marshal(event.Meta)
		if err != nil {
			return fmt.Errorf("marshal event meta: %w", err)
		}
		metaJSON = string(data)
	}

	query := `
	INSERT INTO conversation_events (
		event_id, ts, user_id, session_id, channel, direction, event_type, content, meta_json
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.Timestamp.UnixNano(), event.UserID, event.SessionID,
		event.Channel, event.Direction, event.EventType, event.Content, metaJSON,
	)
	if err != nil {
		return fmt.Errorf("insert conversation event: %w", err)
	}
	return nil
}

// ListEvents retrieves events for a user's session, oldest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, userID, sessionID string, limit int) ([]*domain.ConversationEvent, error) {
	query := `
		SELECT event_id, ts, user_id, session_id, channel, direction, event_type, content, meta_json
		FROM conversation_events
		WHERE user_id = ? AND session_id = ?
		ORDER BY ts ASC`
	args := []interface{}{userID, sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversation events: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close conversation event rows", "error", closeErr)
		}
	}()

	var events []*domain.ConversationEvent
	for rows.Next() {
		var event domain.ConversationEvent
		var ts int64
		var metaJSON sql.NullString

		if err := rows.Scan(
			&event.ID, &ts, &event.UserID, &event.SessionID,
			&event.Channel, &event.Direction, &event.EventType, &event.Content, &metaJSON,
		); err != nil {
			return nil, fmt.Errorf("scan conversation event row: %w", err)
		}

		event.Timestamp = time.Unix(0, ts)
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &event.Meta); err != nil {
				slog.Warn("failed to parse event meta", "event_id", event.ID, "error", err)
			}
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation events: %w", err)
	}

	return events, nil
}

// CountEvents returns the number of events recorded for a user.
func (s *SQLiteStore) CountEvents(ctx context.Context, userID string) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM conversation_events WHERE user_id = ?`
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count conversation events: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
