package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agentmart/agentmart/internal/llm"
)

func testRequest() llm.ChatRequest {
	return llm.ChatRequest{
		Model: "gpt-4-turbo-preview",
		Messages: []llm.ChatMessage{
			{Role: "system", Content: "You are helpful."},
			{Role: "user", Content: "hello"},
		},
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestCreateCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("OpenAI-Organization"); got != "org-123" {
			t.Errorf("organization = %q", got)
		}
		var req llm.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-4-turbo-preview" || len(req.Messages) != 2 {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(llm.ChatResponse{
			Choices: []llm.ChatChoice{{Message: llm.ChatMessage{Role: "assistant", Content: "hi there"}}},
			Usage:   llm.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
		})
	}))
	defer srv.Close()

	client, err := New(Config{APIKey: "test-key", BaseURL: srv.URL, Organization: "org-123"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := client.CreateCompletion(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("CreateCompletion: %v", err)
	}
	if resp.Text() != "hi there" {
		t.Fatalf("text = %q", resp.Text())
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("total tokens = %d", resp.Usage.TotalTokens)
	}
}

func TestCreateCompletionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	client, err := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = client.CreateCompletion(context.Background(), testRequest())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "rate limited") || !strings.Contains(err.Error(), "rate_limit_exceeded") {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateCompletionValidation(t *testing.T) {
	client, err := New(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.CreateCompletion(context.Background(), llm.ChatRequest{Model: "m"}); err == nil {
		t.Fatalf("expected error without messages")
	}
	req := testRequest()
	req.Model = ""
	if _, err := client.CreateCompletion(context.Background(), req); err == nil {
		t.Fatalf("expected error without model")
	}
}
