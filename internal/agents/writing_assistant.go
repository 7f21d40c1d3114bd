package agents

import (
	"context"
	"fmt"

	"github.com/agentmart/agentmart/internal/llm"
	"github.com/agentmart/agentmart/internal/marketplace"
)

// WritingAssistant reviews and improves prose.
type WritingAssistant struct {
	client llm.ChatClient
	model  string
}

// NewWritingAssistant creates the writing assistant agent.
func NewWritingAssistant(client llm.ChatClient, model string) *WritingAssistant {
	if model == "" {
		model = DefaultModel
	}
	return &WritingAssistant{client: client, model: model}
}

// Invoke improves the text in input["text"]. Optional fields: "style"
// (formal, casual, academic) and "context".
func (a *WritingAssistant) Invoke(ctx context.Context, input marketplace.Payload) (marketplace.InvokeResult, error) {
	text, err := requireField(input, "text")
	if err != nil {
		return marketplace.InvokeResult{}, err
	}

	const system = "You are an expert writing assistant. Provide detailed feedback and improvements focusing on: 1) Clarity & Coherence, 2) Grammar & Style, 3) Tone & Voice, and 4) Specific Suggestions for Enhancement."
	prompt := "Please review and improve this text"
	if style := input["style"]; style != "" {
		prompt += fmt.Sprintf(" in a %s style", style)
	}
	if extra := input["context"]; extra != "" {
		prompt += fmt.Sprintf(" with this additional context: %s", extra)
	}
	prompt += fmt.Sprintf(":\n\n%s", text)

	return complete(ctx, a.client, a.model, system, prompt)
}
