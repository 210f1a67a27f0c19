// Package domain contains core domain types for the Scout application.
package domain

// Role identifies who produced a transcript message.
type Role string

const (
	// RoleUser marks a message typed by the person asking questions.
	RoleUser Role = "user"
	// RoleAssistant marks a model response, final or tool-requesting.
	RoleAssistant Role = "assistant"
	// RoleTool marks the output of an executed tool call.
	RoleTool Role = "tool"
)

// ToolCall is a model-issued request to invoke a named tool with arguments.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is a single transcript entry. Messages are immutable once created;
// the transcript is an append-only ordered sequence, never mutated or
// reordered.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// HasToolCalls reports whether the message requests any tool invocations.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// UserMessage builds a user transcript entry.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds a plain-text assistant transcript entry.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage builds a tool-role entry correlated to the originating
// request by its tool call ID. Error outputs use the same shape so the model
// can decide how to respond.
func ToolResultMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}
