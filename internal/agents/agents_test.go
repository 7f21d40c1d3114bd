package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/agentmart/agentmart/internal/marketplace"
)

func TestCodeReviewerBuildsPrompt(t *testing.T) {
	client := &fakeClient{resp: cannedResponse("solid code", 120, 80, 200)}
	reviewer := NewCodeReviewer(client, "")

	result, err := reviewer.Invoke(context.Background(), marketplace.Payload{
		"code":     "func main() {}",
		"language": "go",
		"context":  "CLI entrypoint",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.Output != "solid code" {
		t.Fatalf("output = %q", result.Output)
	}
	if result.TokensUsed != 200 {
		t.Fatalf("tokens = %d, want 200", result.TokensUsed)
	}

	if client.last.Model != DefaultModel {
		t.Fatalf("model = %q, want default", client.last.Model)
	}
	if len(client.last.Messages) != 2 {
		t.Fatalf("messages = %d, want system+user", len(client.last.Messages))
	}
	system := client.last.Messages[0].Content
	if !strings.Contains(system, "expert code reviewer for the go programming language") {
		t.Fatalf("system prompt = %q", system)
	}
	user := client.last.Messages[1].Content
	if !strings.Contains(user, "CLI entrypoint") || !strings.Contains(user, "func main() {}") {
		t.Fatalf("user prompt = %q", user)
	}
}

func TestCodeReviewerDefaultsLanguage(t *testing.T) {
	client := &fakeClient{resp: cannedResponse("ok", 1, 1, 2)}
	reviewer := NewCodeReviewer(client, "gpt-4o")

	if _, err := reviewer.Invoke(context.Background(), marketplace.Payload{"code": "x = 1"}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if client.last.Model != "gpt-4o" {
		t.Fatalf("model = %q", client.last.Model)
	}
	if !strings.Contains(client.last.Messages[0].Content, "python") {
		t.Fatalf("language should default to python: %q", client.last.Messages[0].Content)
	}
}

func TestCodeReviewerRequiresCode(t *testing.T) {
	reviewer := NewCodeReviewer(&fakeClient{}, "")
	if _, err := reviewer.Invoke(context.Background(), marketplace.Payload{"language": "go"}); err == nil {
		t.Fatalf("expected missing field error")
	}
}

func TestTokenFallbackWhenTotalMissing(t *testing.T) {
	client := &fakeClient{resp: cannedResponse("ok", 30, 12, 0)}
	assistant := NewWritingAssistant(client, "")

	result, err := assistant.Invoke(context.Background(), marketplace.Payload{"text": "teh quick fox"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.TokensUsed != 42 {
		t.Fatalf("tokens = %d, want prompt+completion fallback 42", result.TokensUsed)
	}
}

func TestTroubleshooterRequiresIssue(t *testing.T) {
	shooter := NewTroubleshooter(&fakeClient{}, "")
	if _, err := shooter.Invoke(context.Background(), marketplace.Payload{"system_info": "ubuntu"}); err == nil {
		t.Fatalf("expected missing field error")
	}
}

func TestInterviewPrepUsesExperienceLevel(t *testing.T) {
	client := &fakeClient{resp: cannedResponse("questions", 10, 10, 20)}
	prep := NewInterviewPrep(client, "")

	if _, err := prep.Invoke(context.Background(), marketplace.Payload{
		"topic":            "distributed systems",
		"experience_level": "senior",
	}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	joined := client.last.Messages[0].Content + client.last.Messages[1].Content
	if !strings.Contains(joined, "senior") || !strings.Contains(joined, "distributed systems") {
		t.Fatalf("prompts missing inputs: %q", joined)
	}
}
