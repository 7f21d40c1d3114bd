package agents

import (
	"context"
	"fmt"

	"github.com/agentmart/agentmart/internal/llm"
	"github.com/agentmart/agentmart/internal/marketplace"
)

// InterviewPrep prepares interview questions and answers for a role.
type InterviewPrep struct {
	client llm.ChatClient
	model  string
}

// NewInterviewPrep creates the interview preparation agent.
func NewInterviewPrep(client llm.ChatClient, model string) *InterviewPrep {
	if model == "" {
		model = DefaultModel
	}
	return &InterviewPrep{client: client, model: model}
}

// Invoke prepares material for input["topic"]. Optional fields:
// "experience_level" (entry, mid, senior; defaults to entry) and "context".
func (a *InterviewPrep) Invoke(ctx context.Context, input marketplace.Payload) (marketplace.InvokeResult, error) {
	topic, err := requireField(input, "topic")
	if err != nil {
		return marketplace.InvokeResult{}, err
	}
	level := input["experience_level"]
	if level == "" {
		level = "entry"
	}

	const system = "You are an expert technical interviewer. Provide detailed interview preparation focusing on: 1) Common Questions & Best Answers, 2) Technical Concepts to Review, 3) Coding Problems to Practice, and 4) Tips for Success."
	prompt := fmt.Sprintf("Please prepare interview questions and answers for a %s level %s position", level, topic)
	if extra := input["context"]; extra != "" {
		prompt += fmt.Sprintf(" with this additional context: %s", extra)
	}

	return complete(ctx, a.client, a.model, system, prompt)
}
