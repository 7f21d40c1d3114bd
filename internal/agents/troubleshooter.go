package agents

import (
	"context"
	"fmt"

	"github.com/agentmart/agentmart/internal/llm"
	"github.com/agentmart/agentmart/internal/marketplace"
)

// Troubleshooter diagnoses technical issues and proposes fixes.
type Troubleshooter struct {
	client llm.ChatClient
	model  string
}

// NewTroubleshooter creates the technical troubleshooting agent.
func NewTroubleshooter(client llm.ChatClient, model string) *Troubleshooter {
	if model == "" {
		model = DefaultModel
	}
	return &Troubleshooter{client: client, model: model}
}

// Invoke troubleshoots input["issue"]. Optional fields: "system_info" and
// "context".
func (a *Troubleshooter) Invoke(ctx context.Context, input marketplace.Payload) (marketplace.InvokeResult, error) {
	issue, err := requireField(input, "issue")
	if err != nil {
		return marketplace.InvokeResult{}, err
	}

	const system = "You are an expert technical troubleshooter. Provide detailed troubleshooting guidance focusing on: 1) Issue Analysis, 2) Potential Causes, 3) Step-by-Step Solutions, and 4) Prevention Tips."
	prompt := fmt.Sprintf("Please help troubleshoot this technical issue: %s", issue)
	if info := input["system_info"]; info != "" {
		prompt += fmt.Sprintf("\nSystem Info: %s", info)
	}
	if extra := input["context"]; extra != "" {
		prompt += fmt.Sprintf("\nAdditional Context: %s", extra)
	}

	return complete(ctx, a.client, a.model, system, prompt)
}
