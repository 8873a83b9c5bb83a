package llm

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/richinex/llmtools/config"
	"github.com/richinex/llmtools/internal/logger"
)

// Backend runs one system/user prompt pair to completion.
type Backend interface {
	// Name returns the canonical backend name.
	Name() string

	// Invoke generates a response. A nil result with a nil error means a
	// remote backend failed and the failure was already reported.
	Invoke(ctx context.Context, system, user string) (*Result, error)
}

// Result is the outcome of one invocation.
type Result struct {
	Text string
	// Truncated is set when generation was cut short by loop detection.
	// Text then ends with LoopSentinel.
	Truncated bool
}

// RemoteBackend adapts a hosted Provider to the Backend interface.
type RemoteBackend struct {
	provider Provider
	log      *logger.Logger
}

// NewRemoteBackend wraps provider.
func NewRemoteBackend(provider Provider, log *logger.Logger) *RemoteBackend {
	if log == nil {
		log = logger.NewNop()
	}
	return &RemoteBackend{provider: provider, log: log}
}

// Name returns the provider name.
func (b *RemoteBackend) Name() string {
	return b.provider.Name()
}

// Provider returns the underlying provider.
func (b *RemoteBackend) Provider() Provider {
	return b.provider
}

// Invoke sends the prompt pair as a single request. Request failures are
// logged and reported as a nil result; only context cancellation is
// returned as an error.
func (b *RemoteBackend) Invoke(ctx context.Context, system, user string) (*Result, error) {
	resp, err := b.provider.Chat(ctx, []ChatMessage{SystemMessage(system), UserMessage(user)})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.log.Error("error querying LLM backend", "backend", b.provider.Name(), "model", b.provider.Model(), "error", err)
		return nil, nil
	}
	if resp.Usage != nil {
		b.log.Debug("LLM usage", "backend", b.provider.Name(), "prompt", resp.Usage.PromptTokens, "completion", resp.Usage.CompletionTokens)
	}
	return &Result{Text: strings.TrimSpace(resp.Content)}, nil
}

// New creates the backend selected by s.LLM.Backend. diagnostics receives
// the local process output streams; nil means os.Stderr.
func New(s config.Settings, log *logger.Logger, diagnostics io.Writer) (Backend, error) {
	if log == nil {
		log = logger.NewNop()
	}
	backendType, err := ParseBackendType(s.LLM.Backend)
	if err != nil {
		return nil, err
	}

	if backendType == BackendLocal {
		if diagnostics == nil {
			diagnostics = os.Stderr
		}
		return NewLocalBackend(s.Local, s.LLM.Temperature, s.LLM.TopP, log, diagnostics), nil
	}

	builder := NewProviderBuilder(backendType).
		Model(s.LLM.Model).
		BaseURL(s.LLM.BaseURL).
		MaxTokens(s.LLM.MaxTokens).
		Temperature(float32(s.LLM.Temperature))
	if s.LLM.TopPSet {
		builder = builder.TopP(float32(s.LLM.TopP))
	}
	provider, err := builder.APIKey(s.LLM.APIKey)
	if err != nil {
		return nil, err
	}
	return NewRemoteBackend(provider, log), nil
}

var _ Backend = (*RemoteBackend)(nil)
