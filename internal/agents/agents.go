package agents

import (
	"context"
	"fmt"

	"github.com/agentmart/agentmart/internal/llm"
	"github.com/agentmart/agentmart/internal/marketplace"
)

// DefaultModel is the completion model used when none is configured.
const DefaultModel = "gpt-4-turbo-preview"

// complete runs one system+user completion and maps the provider's usage
// into attributable token counts. Prompt and completion tokens both count
// against the invocation that triggered the call.
func complete(ctx context.Context, client llm.ChatClient, model, system, user string) (marketplace.InvokeResult, error) {
	resp, err := client.CreateCompletion(ctx, llm.ChatRequest{
		Model: model,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return marketplace.InvokeResult{}, err
	}
	tokens := resp.Usage.TotalTokens
	if tokens == 0 {
		tokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	}
	return marketplace.InvokeResult{Output: resp.Text(), TokensUsed: tokens}, nil
}

func requireField(input marketplace.Payload, field string) (string, error) {
	value := input[field]
	if value == "" {
		return "", fmt.Errorf("missing required field %q", field)
	}
	return value, nil
}
