// Package agent implements the research agent's decide/execute loop.
package agent

import (
	"context"
	"errors"

	"github.com/avelev/scout/internal/domain"
)

// ErrLoopExceeded is returned when the model keeps requesting tools past the
// configured round cap.
var ErrLoopExceeded = errors.New("agent: tool round limit exceeded")

// ModelClient is the language-model collaborator. It receives the full
// ordered transcript and returns a single assistant message: either final
// text, or a request to invoke named tools with arguments.
type ModelClient interface {
	Complete(ctx context.Context, transcript []domain.Message) (domain.Message, error)
}

// Tool is an external capability the model may invoke. The description is
// surfaced to the model so it can decide when the tool applies.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON schema for the tool's arguments object.
	Schema() map[string]any
	Call(ctx context.Context, args map[string]any) (string, error)
}
