package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/avelev/scout/internal/domain"
	"github.com/mark3labs/flyt"
)

const (
	keyMessages = "messages"
	keyRounds   = "rounds"

	actionCallTool flyt.Action = "call_tool"
	actionDecide   flyt.Action = "decide"
	actionDone     flyt.Action = "done"
)

// DefaultMaxRounds caps the decide/execute cycle when no explicit limit is
// configured.
const DefaultMaxRounds = 8

// Loop alternates model inference and tool execution over a transcript until
// the model produces a tool-call-free response. It is safe for concurrent use:
// every Run builds a fresh flow over its own shared store.
type Loop struct {
	model     ModelClient
	tools     map[string]Tool
	maxRounds int
}

// NewLoop creates a Loop over the given model and tool set. maxRounds <= 0
// selects DefaultMaxRounds.
func NewLoop(model ModelClient, tools []Tool, maxRounds int) *Loop {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}
	return &Loop{
		model:     model,
		tools:     byName,
		maxRounds: maxRounds,
	}
}

// Run drives the loop over a transcript ending in a user message and returns
// the appended suffix, ending in a final assistant answer. The input slice is
// not modified.
func (l *Loop) Run(ctx context.Context, transcript []domain.Message) ([]domain.Message, error) {
	if len(transcript) == 0 {
		return nil, errors.New("agent: transcript is empty")
	}

	shared := flyt.NewSharedStore()
	msgs := make([]domain.Message, len(transcript))
	copy(msgs, transcript)
	shared.Set(keyMessages, msgs)
	shared.Set(keyRounds, 0)

	decide := l.newModelNode()
	tools := l.newToolNode()
	flow := flyt.NewFlow(decide)
	flow.Connect(decide, actionCallTool, tools)
	flow.Connect(tools, actionDecide, decide)

	if err := flow.Run(ctx, shared); err != nil {
		return nil, err
	}

	out := messagesFrom(shared)
	return out[len(transcript):], nil
}

// newModelNode builds the decision node: one model inference over the full
// transcript, routed on whether the response requests tools.
func (l *Loop) newModelNode() flyt.Node {
	return flyt.NewNode(
		flyt.WithPrepFunc(func(ctx context.Context, shared *flyt.SharedStore) (any, error) {
			return messagesFrom(shared), nil
		}),
		flyt.WithExecFunc(func(ctx context.Context, prepResult any) (any, error) {
			msgs := prepResult.([]domain.Message)
			resp, err := l.model.Complete(ctx, msgs)
			if err != nil {
				return nil, fmt.Errorf("model call: %w", err)
			}
			return resp, nil
		}),
		flyt.WithPostFunc(func(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
			resp := execResult.(domain.Message)
			appendMessages(shared, resp)

			if !resp.HasToolCalls() {
				return actionDone, nil
			}

			rounds := roundsFrom(shared) + 1
			if rounds > l.maxRounds {
				return "", fmt.Errorf("%w after %d rounds", ErrLoopExceeded, l.maxRounds)
			}
			shared.Set(keyRounds, rounds)
			return actionCallTool, nil
		}),
	)
}

// newToolNode builds the execution node: runs every requested call and wraps
// each output (or failure) in a tool-role message. Tool failures never abort
// the loop; the error text is fed back to the model as the tool result.
func (l *Loop) newToolNode() flyt.Node {
	return flyt.NewNode(
		flyt.WithPrepFunc(func(ctx context.Context, shared *flyt.SharedStore) (any, error) {
			msgs := messagesFrom(shared)
			last := msgs[len(msgs)-1]
			return last.ToolCalls, nil
		}),
		flyt.WithExecFunc(func(ctx context.Context, prepResult any) (any, error) {
			calls := prepResult.([]domain.ToolCall)
			results := make([]domain.Message, 0, len(calls))
			for _, call := range calls {
				results = append(results, l.executeCall(ctx, call))
			}
			return results, nil
		}),
		flyt.WithPostFunc(func(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
			appendMessages(shared, execResult.([]domain.Message)...)
			return actionDecide, nil
		}),
	)
}

func (l *Loop) executeCall(ctx context.Context, call domain.ToolCall) domain.Message {
	tool, ok := l.tools[call.Name]
	if !ok {
		slog.Warn("model requested unknown tool", "tool", call.Name)
		return domain.ToolResultMessage(call.ID, fmt.Sprintf("error: unknown tool %q", call.Name))
	}

	output, err := tool.Call(ctx, call.Arguments)
	if err != nil {
		slog.Warn("tool call failed", "tool", call.Name, "error", err)
		return domain.ToolResultMessage(call.ID, "error: "+err.Error())
	}
	return domain.ToolResultMessage(call.ID, output)
}

func messagesFrom(shared *flyt.SharedStore) []domain.Message {
	v, _ := shared.Get(keyMessages)
	msgs, _ := v.([]domain.Message)
	return msgs
}

func appendMessages(shared *flyt.SharedStore, msgs ...domain.Message) {
	shared.Set(keyMessages, append(messagesFrom(shared), msgs...))
}

func roundsFrom(shared *flyt.SharedStore) int {
	v, _ := shared.Get(keyRounds)
	rounds, _ := v.(int)
	return rounds
}
