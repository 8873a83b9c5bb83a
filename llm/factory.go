// Backend Factory - builder API for creating remote LLM providers.
//
// Quick Start:
//
//	// Defaults, explicit key
//	openai, err := llm.NewProviderBuilder(llm.BackendOpenAI).APIKey("sk-...")  // Uses gpt-4o
//
//	// Full configuration
//	custom, err := llm.NewProviderBuilder(llm.BackendAnthropic).
//	    Model(llm.ModelAnthropicClaudeSonnet4).
//	    MaxTokens(8192).
//	    Temperature(0.2).
//	    APIKey(key)

package llm

import (
	"fmt"
	"strings"
)

// BackendType represents supported backends.
type BackendType int

const (
	// BackendLocal runs llama.cpp as a child process.
	BackendLocal BackendType = iota
	// BackendOpenAI is the OpenAI provider (GPT models).
	BackendOpenAI
	// BackendAnthropic is the Anthropic provider (Claude models).
	BackendAnthropic
	// BackendDeepSeek is the DeepSeek provider.
	BackendDeepSeek
	// BackendGemini is the Google Gemini provider.
	BackendGemini
)

// String returns the canonical backend name.
func (b BackendType) String() string {
	switch b {
	case BackendLocal:
		return "localllama"
	case BackendOpenAI:
		return "openai"
	case BackendAnthropic:
		return "anthropic"
	case BackendDeepSeek:
		return "deepseek"
	case BackendGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// EnvVar returns the environment variable name for this backend's API key.
func (b BackendType) EnvVar() string {
	switch b {
	case BackendOpenAI:
		return "OPENAI_API_KEY"
	case BackendAnthropic:
		return "ANTHROPIC_API_KEY"
	case BackendDeepSeek:
		return "DEEPSEEK_API_KEY"
	case BackendGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// DefaultModel returns the default model for this backend.
func (b BackendType) DefaultModel() string {
	switch b {
	case BackendOpenAI:
		return ModelOpenAIGPT4o
	case BackendAnthropic:
		return ModelAnthropicClaudeSonnet4
	case BackendDeepSeek:
		return ModelDeepSeekChat
	case BackendGemini:
		return ModelGeminiFlash25
	default:
		return ""
	}
}

// IsRemote reports whether the backend is a hosted API.
func (b BackendType) IsRemote() bool {
	return b != BackendLocal
}

// ParseBackendType parses a backend from string (case-insensitive).
func ParseBackendType(s string) (BackendType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "localllama", "locallama", "llama", "local":
		return BackendLocal, nil
	case "openai", "gpt":
		return BackendOpenAI, nil
	case "anthropic", "claude":
		return BackendAnthropic, nil
	case "deepseek":
		return BackendDeepSeek, nil
	case "gemini", "google":
		return BackendGemini, nil
	default:
		return 0, &UnknownBackendError{Name: s}
	}
}

// ProviderBuilder is a builder for configuring remote providers.
type ProviderBuilder struct {
	backendType BackendType
	model       string
	baseURL     string
	maxTokens   uint32
	temperature *float32
	topP        *float32
}

// NewProviderBuilder creates a new builder for the given backend.
func NewProviderBuilder(backendType BackendType) *ProviderBuilder {
	return &ProviderBuilder{
		backendType: backendType,
	}
}

// Model sets the model to use.
func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

// BaseURL overrides the API endpoint. Only OpenAI honours it.
func (b *ProviderBuilder) BaseURL(url string) *ProviderBuilder {
	b.baseURL = url
	return b
}

// MaxTokens sets maximum tokens for responses.
func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	b.maxTokens = tokens
	return b
}

// Temperature sets temperature (0.0 = deterministic, 1.0 = creative).
func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = &temp
	return b
}

// TopP sets nucleus sampling probability mass.
func (b *ProviderBuilder) TopP(p float32) *ProviderBuilder {
	b.topP = &p
	return b
}

// APIKey builds the provider with an explicit API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	if !b.backendType.IsRemote() {
		return nil, fmt.Errorf("%s is not a remote backend", b.backendType)
	}
	if key == "" {
		return nil, &MissingCredentialError{Backend: b.backendType.String(), EnvVar: b.backendType.EnvVar()}
	}
	return b.build(key)
}

func (b *ProviderBuilder) build(apiKey string) (Provider, error) {
	model := b.model
	if model == "" {
		model = b.backendType.DefaultModel()
	}

	maxTokens := b.maxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	temperature := float32(0.2)
	if b.temperature != nil {
		temperature = *b.temperature
	}

	topP := float32(0.2)
	if b.topP != nil {
		topP = *b.topP
	}

	switch b.backendType {
	case BackendOpenAI:
		return NewOpenAIProvider(apiKey, b.baseURL, model, maxTokens, temperature, topP), nil
	case BackendAnthropic:
		// Anthropic only gets top_p when it was set explicitly.
		return NewAnthropicProvider(apiKey, model, maxTokens, temperature, b.topP), nil
	case BackendDeepSeek:
		return NewDeepSeekProvider(apiKey, model, maxTokens, temperature, topP), nil
	case BackendGemini:
		return NewGeminiProvider(apiKey, model, maxTokens, temperature, topP), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %v", b.backendType)
	}
}
