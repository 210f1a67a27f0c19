package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/avelev/scout/internal/agent"
	"github.com/avelev/scout/internal/domain"
)

// stubLoop counts invocations and echoes a canned answer.
type stubLoop struct {
	answer string
	err    error
	calls  int
}

func (l *stubLoop) Run(ctx context.Context, transcript []domain.Message) ([]domain.Message, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return []domain.Message{domain.AssistantMessage(l.answer)}, nil
}

func TestSubmitSpendsBudget(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{answer: "hello"}
	s := New("u:s", loop, 4)

	if got := s.Remaining(); got != 4 {
		t.Fatalf("fresh session: expected 4 remaining, got %d", got)
	}

	for i := 1; i <= 4; i++ {
		answer, err := s.Submit(context.Background(), fmt.Sprintf("question %d", i))
		if err != nil {
			t.Fatalf("submission %d failed: %v", i, err)
		}
		if answer != "hello" {
			t.Errorf("submission %d: expected answer %q, got %q", i, "hello", answer)
		}
		if got := s.Remaining(); got != 4-i {
			t.Errorf("after submission %d: expected %d remaining, got %d", i, 4-i, got)
		}
	}

	if !s.Exhausted() {
		t.Error("expected session to be exhausted after 4 submissions")
	}
}

func TestSubmitRejectsBeyondBudget(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{answer: "ok"}
	s := New("u:s", loop, 2)

	for i := 0; i < 2; i++ {
		if _, err := s.Submit(context.Background(), "question"); err != nil {
			t.Fatalf("submission %d failed: %v", i, err)
		}
	}

	callsBefore := loop.calls
	_, err := s.Submit(context.Background(), "one too many")
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got: %v", err)
	}
	if loop.calls != callsBefore {
		t.Error("rejected submission must not invoke the agent loop")
	}
	if got := s.Asked(); got != 2 {
		t.Errorf("rejected submission must not change the counter: got %d", got)
	}
	if got := s.Remaining(); got != 0 {
		t.Errorf("remaining must never go negative: got %d", got)
	}
}

func TestSubmitRejectsEmptyQuestion(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{answer: "ok"}
	s := New("u:s", loop, 4)

	for _, q := range []string{"", "   ", "\n\t"} {
		if _, err := s.Submit(context.Background(), q); !errors.Is(err, ErrEmptyQuestion) {
			t.Errorf("question %q: expected ErrEmptyQuestion, got: %v", q, err)
		}
	}
	if loop.calls != 0 {
		t.Error("blank submissions must not invoke the agent loop")
	}
	if got := s.Asked(); got != 0 {
		t.Errorf("blank submissions must not spend the budget: got %d asked", got)
	}
}

func TestSubmitChargesBudgetOnLoopFailure(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{err: errors.New("model unreachable")}
	s := New("u:s", loop, 4)

	answer, err := s.Submit(context.Background(), "question")
	if err != nil {
		t.Fatalf("loop failure must surface as an answer, not an error: %v", err)
	}
	if answer == "" {
		t.Error("expected an apologetic answer string")
	}
	if got := s.Remaining(); got != 3 {
		t.Errorf("failed attempt still costs a question: expected 3 remaining, got %d", got)
	}
}

func TestSubmitLoopExceededAnswer(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{err: fmt.Errorf("%w after 8 rounds", agent.ErrLoopExceeded)}
	s := New("u:s", loop, 4)

	answer, err := s.Submit(context.Background(), "question")
	if err != nil {
		t.Fatalf("loop cap must surface as an answer, not an error: %v", err)
	}
	if answer == "" {
		t.Error("expected an answer explaining the loop gave up")
	}

	transcript := s.Transcript()
	last := transcript[len(transcript)-1]
	if last.Role != domain.RoleAssistant || last.Content != answer {
		t.Error("apologetic answer must be recorded in the transcript")
	}
}

func TestTranscriptAccumulatesAcrossSubmits(t *testing.T) {
	t.Parallel()

	loop := &stubLoop{answer: "answer"}
	s := New("u:s", loop, 4)

	s.Submit(context.Background(), "first")
	s.Submit(context.Background(), "second")

	transcript := s.Transcript()
	wantRoles := []domain.Role{
		domain.RoleUser, domain.RoleAssistant,
		domain.RoleUser, domain.RoleAssistant,
	}
	if len(transcript) != len(wantRoles) {
		t.Fatalf("expected %d transcript messages, got %d", len(wantRoles), len(transcript))
	}
	for i, role := range wantRoles {
		if transcript[i].Role != role {
			t.Errorf("message %d: expected role %q, got %q", i, role, transcript[i].Role)
		}
	}
	if transcript[0].Content != "first" || transcript[2].Content != "second" {
		t.Error("user questions out of order in transcript")
	}

	// The returned transcript is a copy.
	transcript[0].Content = "mutated"
	if s.Transcript()[0].Content != "first" {
		t.Error("Transcript must return a copy")
	}
}

func TestDefaultBudget(t *testing.T) {
	t.Parallel()

	s := New("u:s", &stubLoop{answer: "ok"}, 0)
	if got := s.Allowed(); got != DefaultQuestionsAllowed {
		t.Errorf("expected default budget %d, got %d", DefaultQuestionsAllowed, got)
	}
}
