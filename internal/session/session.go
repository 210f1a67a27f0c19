// Package session tracks per-conversation question budgets and transcripts.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/avelev/scout/internal/agent"
	"github.com/avelev/scout/internal/domain"
)

// DefaultQuestionsAllowed is the question budget for a fresh session.
const DefaultQuestionsAllowed = 4

var (
	// ErrBudgetExhausted is returned by Submit once the question budget is
	// spent. No collaborator is contacted after this point.
	ErrBudgetExhausted = errors.New("question budget exhausted")

	// ErrEmptyQuestion is returned when a submission is blank.
	ErrEmptyQuestion = errors.New("question is empty")
)

// AgentLoop runs one agent decision loop over a transcript and returns the
// messages it appended.
type AgentLoop interface {
	Run(ctx context.Context, transcript []domain.Message) ([]domain.Message, error)
}

// Session is one user conversation: a transcript plus a question budget.
// All methods are safe for concurrent use.
type Session struct {
	mu         sync.Mutex
	id         string
	loop       AgentLoop
	transcript []domain.Message
	asked      int
	allowed    int
	lastActive time.Time
}

// New creates a session with a fresh budget. A non-positive allowed count
// falls back to the default.
func New(id string, loop AgentLoop, allowed int) *Session {
	if allowed <= 0 {
		allowed = DefaultQuestionsAllowed
	}
	return &Session{
		id:         id,
		loop:       loop,
		allowed:    allowed,
		lastActive: time.Now(),
	}
}

// Submit spends one question from the budget and runs the agent loop over the
// accumulated transcript. The budget is charged before the loop runs, so a
// failed attempt still costs a question. Loop failures come back as an
// apologetic answer rather than an error so the conversation can continue.
func (s *Session) Submit(ctx context.Context, question string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()

	if s.asked >= s.allowed {
		return "", ErrBudgetExhausted
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	s.asked++
	s.transcript = append(s.transcript, domain.UserMessage(question))

	suffix, err := s.loop.Run(ctx, s.transcript)
	if err != nil {
		slog.Error("agent loop failed", "session_id", s.id, "error", err)
		answer := "Sorry, something went wrong while answering your question. Please try again."
		if errors.Is(err, agent.ErrLoopExceeded) {
			answer = "Sorry, I could not settle on an answer in time. Try rephrasing your question."
		}
		s.transcript = append(s.transcript, domain.AssistantMessage(answer))
		return answer, nil
	}

	s.transcript = append(s.transcript, suffix...)

	for i := len(s.transcript) - 1; i >= 0; i-- {
		m := s.transcript[i]
		if m.Role == domain.RoleAssistant && !m.HasToolCalls() {
			return m.Content, nil
		}
	}
	return "", errors.New("agent loop produced no answer")
}

// Asked returns how many questions have been spent.
func (s *Session) Asked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asked
}

// Allowed returns the session's total question budget.
func (s *Session) Allowed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allowed
}

// Remaining returns how many questions are left, never negative.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.asked >= s.allowed {
		return 0
	}
	return s.allowed - s.asked
}

// Exhausted reports whether the budget is spent.
func (s *Session) Exhausted() bool {
	return s.Remaining() == 0
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Touch refreshes the activity timestamp, keeping the session alive across
// reads that do not spend a question.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

// LastActive returns the time of the most recent activity.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
