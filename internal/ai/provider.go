package ai

import "context"

// CompletionRequest is a single-turn prompt to a completion provider.
type CompletionRequest struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
}

// Provider is a text-completion backend.
type Provider interface {
	// Name returns the provider name for logging and metrics.
	Name() string

	// Complete returns the completion text for the request.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
