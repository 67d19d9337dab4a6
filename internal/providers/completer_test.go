package providers

import (
	"errors"
	"testing"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/stretchr/testify/assert"
)

func TestExtractErrorMetadata(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantRetry  string
	}{
		{"nil", nil, 0, ""},
		{"sdk status code", errors.New("error, status code: 404, message: model not found"), 404, ""},
		{"bare code", errors.New("429 Too Many Requests"), 429, ""},
		{"retry after", errors.New("status 429: slow down, Retry-After: 20"), 429, "20"},
		{"no status", errors.New("dial tcp: connection refused"), 0, ""},
		{"digits inside a number", errors.New("max_tokens 4040 exceeds the context window"), 0, ""},
		{"digits inside an id", errors.New("request req_15003 failed"), 0, ""},
		{"rate limit wins over other bare codes", errors.New("upstream 502 after 429 Too Many Requests"), 429, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, retry := extractErrorMetadata(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantRetry, retry)
		})
	}
}

func TestWrapCompletionError(t *testing.T) {
	err := wrapCompletionError(errors.New("error, status code: 429, message: quota"))
	assert.True(t, engine.IsRateLimited(err))
	assert.Equal(t, engine.MsgRateLimited, engine.UserMessageOf(err))
}

func TestNewCompleter(t *testing.T) {
	c, err := NewCompleter("", "sk-test", "", "")
	assert.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)
	assert.Equal(t, "gpt-4o-mini", c.DefaultModel())

	c, err = NewCompleter("Anthropic", "sk-ant", "claude-x", "")
	assert.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, c)
	assert.Equal(t, "claude-x", c.DefaultModel())

	c, err = NewCompleter("ollama", "", "", "")
	assert.NoError(t, err)
	assert.Equal(t, "http://localhost:11434/v1", c.(*OpenAIClient).baseURL)

	c, err = NewCompleter("mock", "", "", "")
	assert.NoError(t, err)
	assert.IsType(t, &MockCompleter{}, c)

	_, err = NewCompleter("openai", "", "", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewCompleter("skynet", "k", "", "")
	assert.ErrorContains(t, err, "unknown provider")
}
