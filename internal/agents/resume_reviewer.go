package agents

import (
	"context"
	"fmt"

	"github.com/agentmart/agentmart/internal/llm"
	"github.com/agentmart/agentmart/internal/marketplace"
)

// ResumeReviewer reviews resumes and suggests improvements.
type ResumeReviewer struct {
	client llm.ChatClient
	model  string
}

// NewResumeReviewer creates the resume review agent.
func NewResumeReviewer(client llm.ChatClient, model string) *ResumeReviewer {
	if model == "" {
		model = DefaultModel
	}
	return &ResumeReviewer{client: client, model: model}
}

// Invoke reviews the resume in input["resume"]. The optional "context" field
// names the target position or industry.
func (a *ResumeReviewer) Invoke(ctx context.Context, input marketplace.Payload) (marketplace.InvokeResult, error) {
	resume, err := requireField(input, "resume")
	if err != nil {
		return marketplace.InvokeResult{}, err
	}

	const system = "You are an expert resume reviewer. Provide detailed, constructive feedback focusing on: 1) Content & Impact, 2) Structure & Organization, 3) Language & Clarity, and 4) Specific suggestions for improvement."
	prompt := "Please review this resume"
	if extra := input["context"]; extra != "" {
		prompt += fmt.Sprintf(" for a %s position", extra)
	}
	prompt += fmt.Sprintf(":\n\n%s", resume)

	return complete(ctx, a.client, a.model, system, prompt)
}
