// Package convlog records conversation events asynchronously for auditing.
// Logging never blocks request handling: events pass through a bounded queue
// and are dropped with a warning when the queue is full.
package convlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/avelev/scout/internal/config"
	"github.com/avelev/scout/internal/domain"
	"github.com/avelev/scout/internal/store"
)

const insertTimeout = 5 * time.Second

// Logger accepts conversation events for background persistence.
type Logger interface {
	// Log enqueues an event. It never blocks; events are dropped when the
	// queue is full.
	Log(event domain.ConversationEvent)

	// Close stops the worker after draining queued events.
	Close() error
}

// New builds a logger from config. When logging is disabled or no repository
// is available it returns a no-op logger.
func New(cfg config.ConversationLogConfig, repo store.Repository) Logger {
	if !cfg.Enabled || repo == nil {
		return noopLogger{}
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}

	l := &asyncLogger{
		repo:  repo,
		queue: make(chan domain.ConversationEvent, queueSize),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

type asyncLogger struct {
	repo      store.Repository
	queue     chan domain.ConversationEvent
	done      chan struct{}
	closeOnce sync.Once
}

func (l *asyncLogger) Log(event domain.ConversationEvent) {
	select {
	case l.queue <- event:
	default:
		slog.Warn("conversation log queue full, dropping event",
			"user_id", event.UserID, "event_type", event.EventType)
	}
}

func (l *asyncLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		if err := l.repo.InsertEvent(ctx, &event); err != nil {
			slog.Error("failed to persist conversation event",
				"user_id", event.UserID, "event_type", event.EventType, "error", err)
		}
		cancel()
	}
}

func (l *asyncLogger) Close() error {
	l.closeOnce.Do(func() {
		close(l.queue)
	})
	<-l.done
	return nil
}

type noopLogger struct{}

func (noopLogger) Log(domain.ConversationEvent) {}
func (noopLogger) Close() error                 { return nil }
