// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Backend-specific configuration lookup (model, API key)

package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultBackend is used when neither the caller nor LLMTOOLS_BACKEND selects one.
const DefaultBackend = "localllama"

// Settings holds all application configuration.
type Settings struct {
	LLM       LLMConfig
	Local     LocalConfig
	Templates TemplateConfig
	// HistoryPath is the SQLite run history database. Empty disables history.
	HistoryPath string
}

// LLMConfig holds backend selection and sampling configuration.
type LLMConfig struct {
	Backend     string
	Model       string
	APIKey      string
	APIKeyEnv   string
	BaseURL     string
	MaxTokens   uint32
	Temperature float64
	TopP        float64
	// TopPSet reports whether LLM_TOP_P was given. Anthropic only sends
	// top_p when it is.
	TopPSet bool
}

// LocalConfig holds the llama.cpp child-process configuration.
type LocalConfig struct {
	Command       string
	ModelPath     string
	Seed          int
	GPULayers     int
	ContextWindow int
	PollInterval  time.Duration
	// LegacyFraming selects the malformed user header some older prompt
	// files were tuned against.
	LegacyFraming bool
}

// TemplateConfig holds prompt template lookup configuration.
type TemplateConfig struct {
	Dir  string
	Lang string
}

// backendInfo holds configuration for a specific remote backend.
type backendInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Remote backends and their configuration. The local backend needs no key.
var backends = map[string]backendInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
}

// Backend aliases map to canonical names.
var backendAliases = map[string]string{
	"locallama": "localllama",
	"llama":     "localllama",
	"local":     "localllama",
	"claude":    "anthropic",
	"google":    "gemini",
	"gpt":       "openai",
}

// New creates settings for the specified backend, loading values from environment variables.
// An empty backend falls back to LLMTOOLS_BACKEND, then DefaultBackend. Unknown backend
// names are kept as given; they are rejected when the backend is constructed.
// Returns an error if environment variables contain invalid values.
func New(backend string) (Settings, error) {
	if backend == "" {
		backend = os.Getenv("LLMTOOLS_BACKEND")
	}
	if backend == "" {
		backend = DefaultBackend
	}
	backend = NormalizeBackend(backend)

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}

	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.2)
	if err != nil {
		return Settings{}, err
	}

	topP, err := getEnvFloat64("LLM_TOP_P", 0.2)
	if err != nil {
		return Settings{}, err
	}

	seed, err := getEnvInt("LLAMA_SEED", 42)
	if err != nil {
		return Settings{}, err
	}

	gpuLayers, err := getEnvInt("LLAMA_GPU_LAYERS", 35)
	if err != nil {
		return Settings{}, err
	}

	contextWindow, err := getEnvInt("LLAMA_CONTEXT", 65535)
	if err != nil {
		return Settings{}, err
	}

	pollMS, err := getEnvInt("LLAMA_POLL_MS", 200)
	if err != nil {
		return Settings{}, err
	}
	if pollMS <= 0 {
		return Settings{}, fmt.Errorf("invalid value for LLAMA_POLL_MS: %d: must be positive", pollMS)
	}

	legacy, err := getEnvBool("LLAMA_LEGACY_FRAMING", false)
	if err != nil {
		return Settings{}, err
	}

	llmCfg := LLMConfig{
		Backend:     backend,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
		TopPSet:     os.Getenv("LLM_TOP_P") != "",
	}
	if info, ok := backends[backend]; ok {
		llmCfg.Model = getEnvString(info.modelEnv, info.defaultModel)
		llmCfg.APIKey = os.Getenv(info.apiKeyEnv)
		llmCfg.APIKeyEnv = info.apiKeyEnv
	}
	if backend == "openai" {
		llmCfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}

	return Settings{
		LLM: llmCfg,
		Local: LocalConfig{
			Command:       getEnvString("LLAMA_CLI", "./llama.cpp/llama-cli"),
			ModelPath:     getEnvString("LLAMA_MODEL", "llama.cpp/models/lama-8B.gguf"),
			Seed:          seed,
			GPULayers:     gpuLayers,
			ContextWindow: contextWindow,
			PollInterval:  time.Duration(pollMS) * time.Millisecond,
			LegacyFraming: legacy,
		},
		Templates: TemplateConfig{
			Dir:  getEnvString("LLMTOOLS_PROMPTS", "prompts"),
			Lang: getEnvString("LLMTOOLS_LANG", "en"),
		},
		HistoryPath: os.Getenv("LLMTOOLS_HISTORY"),
	}, nil
}

// MustNew creates settings for the specified backend.
// Panics if environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(backend string) Settings {
	settings, err := New(backend)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// NormalizeBackend converts backend aliases to canonical names.
func NormalizeBackend(backend string) string {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if canonical, ok := backendAliases[backend]; ok {
		return canonical
	}
	return backend
}

// APIKeyEnvFor returns the environment variable holding the API key for a
// remote backend, or "" for the local backend and unknown names.
func APIKeyEnvFor(backend string) string {
	return backends[NormalizeBackend(backend)].apiKeyEnv
}

// SupportedBackends returns the sorted list of canonical backend names.
func SupportedBackends() []string {
	result := make([]string, 0, len(backends)+1)
	result = append(result, DefaultBackend)
	for name := range backends {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Environment variable helpers with proper error handling

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return b, nil
}
