package agents

import (
	"context"
	"fmt"

	"github.com/agentmart/agentmart/internal/llm"
	"github.com/agentmart/agentmart/internal/marketplace"
)

// CodeReviewer reviews source code and suggests improvements.
type CodeReviewer struct {
	client llm.ChatClient
	model  string
}

// NewCodeReviewer creates the code review agent.
func NewCodeReviewer(client llm.ChatClient, model string) *CodeReviewer {
	if model == "" {
		model = DefaultModel
	}
	return &CodeReviewer{client: client, model: model}
}

// Invoke reviews the code in input["code"]. Optional fields: "language"
// (defaults to python) and "context".
func (a *CodeReviewer) Invoke(ctx context.Context, input marketplace.Payload) (marketplace.InvokeResult, error) {
	code, err := requireField(input, "code")
	if err != nil {
		return marketplace.InvokeResult{}, err
	}
	language := input["language"]
	if language == "" {
		language = "python"
	}

	system := fmt.Sprintf("You are an expert code reviewer for the %s programming language. Provide detailed, constructive feedback focusing on: 1) Correctness, 2) Efficiency, 3) Style, and 4) Specific suggestions for improvement.", language)
	prompt := fmt.Sprintf("Please review this %s code", language)
	if extra := input["context"]; extra != "" {
		prompt += fmt.Sprintf(" with the following context: %s", extra)
	}
	prompt += fmt.Sprintf(":\n\n%s", code)

	return complete(ctx, a.client, a.model, system, prompt)
}
