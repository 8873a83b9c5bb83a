// Tests for backend selection and the remote request path.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/llmtools/config"
	"github.com/richinex/llmtools/internal/logger"
)

func TestParseBackendType(t *testing.T) {
	tests := []struct {
		in   string
		want BackendType
	}{
		{"localllama", BackendLocal},
		{"llama", BackendLocal},
		{"openai", BackendOpenAI},
		{"GPT", BackendOpenAI},
		{"claude", BackendAnthropic},
		{"deepseek", BackendDeepSeek},
		{"google", BackendGemini},
	}
	for _, tt := range tests {
		got, err := ParseBackendType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseBackendType("copilot")
	var unknown *UnknownBackendError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "copilot", unknown.Name)
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(config.Settings{LLM: config.LLMConfig{Backend: "copilot"}}, nil, nil)
	var unknown *UnknownBackendError
	assert.True(t, errors.As(err, &unknown), "got %v", err)
}

func TestNewMissingCredential(t *testing.T) {
	_, err := New(config.Settings{LLM: config.LLMConfig{Backend: "openai"}}, nil, nil)
	var missing *MissingCredentialError
	require.True(t, errors.As(err, &missing), "got %v", err)
	assert.Equal(t, "OPENAI_API_KEY", missing.EnvVar)
}

func TestNewLocal(t *testing.T) {
	b, err := New(config.Settings{LLM: config.LLMConfig{Backend: "local"}}, nil, nil)
	require.NoError(t, err)
	_, ok := b.(*LocalBackend)
	assert.True(t, ok)
	assert.Equal(t, "localllama", b.Name())
}

func TestNewRemote(t *testing.T) {
	b, err := New(config.Settings{LLM: config.LLMConfig{Backend: "anthropic", APIKey: "sk-ant-test"}}, nil, nil)
	require.NoError(t, err)
	remote, ok := b.(*RemoteBackend)
	require.True(t, ok)
	assert.Equal(t, "anthropic", remote.Name())
	assert.Equal(t, ModelAnthropicClaudeSonnet4, remote.Provider().Model())

	p, ok := remote.Provider().(*AnthropicProvider)
	require.True(t, ok)
	assert.Nil(t, p.topP, "top_p must stay unset unless LLM_TOP_P is given")

	b, err = New(config.Settings{LLM: config.LLMConfig{Backend: "anthropic", APIKey: "sk-ant-test", TopP: 0.9, TopPSet: true}}, nil, nil)
	require.NoError(t, err)
	p = b.(*RemoteBackend).Provider().(*AnthropicProvider)
	require.NotNil(t, p.topP)
	assert.InDelta(t, 0.9, *p.topP, 1e-6)
}

// anthropicServer answers every Messages call and records the last body.
func anthropicServer(t *testing.T, body *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude",
			"content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropicRequestSampling(t *testing.T) {
	topP := float32(0.9)
	tests := []struct {
		name    string
		topP    *float32
		wantTop bool
	}{
		{name: "temperature only", topP: nil},
		{name: "explicit top_p", topP: &topP, wantTop: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			srv := anthropicServer(t, &body)

			p := NewAnthropicProvider("k", ModelAnthropicClaudeSonnet4, 100, 0.2, tt.topP)
			p.client = anthropic.NewClient(
				option.WithAPIKey("k"),
				option.WithBaseURL(srv.URL),
				option.WithMaxRetries(0),
			)
			resp, err := p.Chat(context.Background(), []ChatMessage{SystemMessage("sys"), UserMessage("usr")})

			require.NoError(t, err)
			assert.Equal(t, "hi", resp.Content)
			assert.InDelta(t, 0.2, body["temperature"], 1e-6)
			if tt.wantTop {
				assert.InDelta(t, 0.9, body["top_p"], 1e-6)
			} else {
				assert.NotContains(t, body, "top_p")
			}
		})
	}
}

type stubProvider struct {
	resp LLMResponse
	err  error
	got  []ChatMessage
}

func (s *stubProvider) Name() string  { return "stub" }
func (s *stubProvider) Model() string { return "stub-1" }
func (s *stubProvider) Chat(_ context.Context, messages []ChatMessage) (LLMResponse, error) {
	s.got = messages
	return s.resp, s.err
}

func TestRemoteBackendTrimsResponse(t *testing.T) {
	stub := &stubProvider{resp: LLMResponse{Content: "\n  corrected text \n"}}

	res, err := NewRemoteBackend(stub, logger.NewNop()).Invoke(context.Background(), "sys", "usr")

	require.NoError(t, err)
	assert.Equal(t, &Result{Text: "corrected text"}, res)
	assert.Equal(t, []ChatMessage{SystemMessage("sys"), UserMessage("usr")}, stub.got)
}

func TestRemoteBackendFailureIsNilResult(t *testing.T) {
	stub := &stubProvider{err: errors.New("503 service unavailable")}

	res, err := NewRemoteBackend(stub, logger.NewNop()).Invoke(context.Background(), "sys", "usr")

	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestRemoteBackendCancelled(t *testing.T) {
	stub := &stubProvider{err: context.Canceled}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRemoteBackend(stub, logger.NewNop()).Invoke(ctx, "sys", "usr")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenAIProviderRequest(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o",
			"choices":[{"index":0,"message":{"role":"assistant","content":"  hi  "},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL+"/v1", ModelOpenAIGPT4o, 100, 0.2, 0.2)
	resp, err := p.Chat(context.Background(), []ChatMessage{SystemMessage("sys"), UserMessage("usr")})

	require.NoError(t, err)
	assert.Equal(t, "  hi  ", resp.Content)
	assert.Equal(t, uint32(4), resp.Usage.TotalTokens)
	assert.Equal(t, "gpt-4o", body["model"])
	assert.InDelta(t, 0.2, body["top_p"], 1e-6)
	assert.InDelta(t, 0.2, body["temperature"], 1e-6)
	assert.Len(t, body["messages"], 2)
}

// TestOpenAIErrorNoAPIKeyLeak verifies OpenAI errors don't contain API keys
func TestOpenAIErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "sk-test-invalid-key-12345xyz"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	provider := NewOpenAIProvider(testKey, srv.URL+"/v1", ModelOpenAIGPT4o, 100, 0.2, 0.2)
	_, err := provider.Chat(context.Background(), []ChatMessage{UserMessage("test")})
	require.Error(t, err)

	errStr := err.Error()
	if strings.Contains(errStr, testKey) {
		t.Errorf("OpenAI error message leaked API key: %v", errStr)
	}
	if strings.Contains(errStr, "Authorization:") {
		t.Errorf("OpenAI error exposed Authorization header: %v", errStr)
	}
}
