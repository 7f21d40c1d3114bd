package llm

import "context"

// ChatClient performs one chat completion against an upstream provider.
type ChatClient interface {
	CreateCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error)
}
