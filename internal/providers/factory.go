package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMissingAPIKey is returned when a backend needs a key and none was given.
var ErrMissingAPIKey = errors.New("API key not set")

// CompleterFactory builds a Completer for one backend and credential.
type CompleterFactory func(provider, apiKey, model, baseURL string) (Completer, error)

type backend struct {
	defaultModel string
	baseURL      string // Empty means the SDK default
	keyOptional  bool   // Local servers accept any key
	anthropic    bool
}

// Everything except Anthropic speaks the OpenAI chat API.
var backends = map[string]backend{
	"openai":    {defaultModel: "gpt-4o-mini"},
	"anthropic": {defaultModel: "claude-3-5-haiku-latest", anthropic: true},
	"kimi":      {defaultModel: "kimi-k2-250711", baseURL: "https://ark.ap-southeast.bytepluses.com/api/v3"},
	"gemini":    {defaultModel: "gemini-1.5-flash", baseURL: "https://generativelanguage.googleapis.com/v1beta/openai"},
	"deepseek":  {defaultModel: "deepseek-chat", baseURL: "https://api.deepseek.com/v1"},
	"groq":      {defaultModel: "llama-3.1-70b-versatile", baseURL: "https://api.groq.com/openai/v1"},
	"lmstudio":  {defaultModel: "local-model", baseURL: "http://localhost:1234/v1", keyOptional: true},
	"ollama":    {defaultModel: "llama3.1", baseURL: "http://localhost:11434/v1", keyOptional: true},
	"mock":      {defaultModel: "mock", keyOptional: true},
}

// SupportedProviders lists the backend names NewCompleter accepts.
func SupportedProviders() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewCompleter creates the Completer for provider. Empty provider means
// openai; empty model and baseURL fall back to the backend defaults.
func NewCompleter(provider, apiKey, model, baseURL string) (Completer, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = "openai"
	}
	b, ok := backends[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s (supported: %s)", provider, strings.Join(SupportedProviders(), ", "))
	}
	if model == "" {
		model = b.defaultModel
	}
	if baseURL == "" {
		baseURL = b.baseURL
	}

	switch {
	case provider == "mock":
		return NewMockCompleter(), nil
	case apiKey == "" && !b.keyOptional:
		return nil, fmt.Errorf("%s: %w", provider, ErrMissingAPIKey)
	case apiKey == "":
		apiKey = provider
	}

	if b.anthropic {
		client, err := NewAnthropicClient(apiKey, model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Anthropic client: %w", err)
		}
		return client, nil
	}
	client, err := NewOpenAIClient(apiKey, model, baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", provider, err)
	}
	return client, nil
}
