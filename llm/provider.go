// Package llm runs prompts against text-generation backends.
//
// Remote Provider interface - the abstract interface for hosted chat APIs.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error handling

package llm

import (
	"context"
)

// Provider defines the abstract interface for remote LLM providers.
// A provider answers one role-tagged message list with one response;
// there is no streaming and no loop guard on this path.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat sends a chat completion request.
	Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error)
}
