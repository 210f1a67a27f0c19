package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/avelev/scout/internal/domain"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIModel implements ModelClient using the OpenAI chat completions API
// with the declared tool set bound to every request.
type OpenAIModel struct {
	client      openai.Client
	model       string
	temperature float64
	toolParams  []openai.ChatCompletionToolParam
}

// NewOpenAIModel creates a model client for the given model name. The tool
// definitions are converted once and attached to every completion request.
func NewOpenAIModel(apiKey, model string, temperature float64, tools []Tool) *OpenAIModel {
	toolParams := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		toolParams = append(toolParams, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name(),
				Description: openai.String(t.Description()),
				Parameters:  openai.FunctionParameters(t.Schema()),
			},
		})
	}

	return &OpenAIModel{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		temperature: temperature,
		toolParams:  toolParams,
	}
}

// Complete sends the transcript to the chat completions API and converts the
// response back into a transcript message.
func (m *OpenAIModel) Complete(ctx context.Context, transcript []domain.Message) (domain.Message, error) {
	messages, err := toOpenAIMessages(transcript)
	if err != nil {
		return domain.Message{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(m.model),
		Messages:    messages,
		Temperature: openai.Float(m.temperature),
	}
	if len(m.toolParams) > 0 {
		params.Tools = m.toolParams
	}

	response, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return domain.Message{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return domain.Message{}, fmt.Errorf("chat completion: no choices returned")
	}

	choice := response.Choices[0]
	msg := domain.Message{
		Role:    domain.RoleAssistant,
		Content: choice.Message.Content,
	}

	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			// Malformed arguments are not fatal here: the tool will
			// reject them and the error flows back as a tool result.
			slog.Warn("failed to parse tool arguments", "tool", tc.Function.Name, "error", err)
			args = nil
		}
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return msg, nil
}

func toOpenAIMessages(transcript []domain.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(transcript))

	for _, msg := range transcript {
		switch msg.Role {
		case domain.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case domain.RoleAssistant:
			if !msg.HasToolCalls() {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				argsJSON, err := json.Marshal(tc.Arguments)
				if err != nil {
					return nil, fmt.Errorf("marshal tool arguments: %w", err)
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			assistantMsg := openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   msg.Content,
				ToolCalls: toolCalls,
			}
			messages = append(messages, assistantMsg.ToParam())
		case domain.RoleTool:
			messages = append(messages, openai.ToolMessage(msg.ToolCallID, msg.Content))
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}

	return messages, nil
}
