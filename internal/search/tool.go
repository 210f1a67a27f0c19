package search

import (
	"context"
	"fmt"
	"strings"
)

// ToolName is the capability name declared to the model.
const ToolName = "web_search"

// toolDescription tells the model when to reach for the search tool.
const toolDescription = "It's used to find information about current events, " +
	"stock prices, market caps, and to perform simple mathematical calculations " +
	"(addition, subtraction, multiplication, and division)."

// Tool adapts the Tavily client to the agent's tool contract.
type Tool struct {
	client *TavilyClient
}

// NewTool wraps a Tavily client as an agent tool.
func NewTool(client *TavilyClient) *Tool {
	return &Tool{client: client}
}

// Name implements the agent tool contract.
func (t *Tool) Name() string { return ToolName }

// Description implements the agent tool contract.
func (t *Tool) Description() string { return toolDescription }

// Schema declares the single free-text query argument.
func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query or calculation to look up.",
			},
		},
		"required": []string{"query"},
	}
}

// Call executes one search. A missing or empty query is an argument error the
// model gets fed back as a tool result.
func (t *Tool) Call(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%s: missing query argument", ToolName)
	}
	return t.client.SearchAnswer(ctx, query)
}
