package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/ChamsBouzaiene/autogoal/internal/prompts"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultTemperature = 0.9
	defaultLanguage    = "English"
	completerCacheSize = 64
)

// DirectOptions configure a Direct provider.
type DirectOptions struct {
	Registry *prompts.Registry // Nil means prompts.Default()
	Factory  CompleterFactory  // Nil means NewCompleter
	Retry    engine.RetryPolicy
	// MockMode skips the connection test run before bootstrap.
	MockMode bool
	// Provider, APIKey and Model apply when the settings leave them empty;
	// the intermediary service runs with its own key this way.
	Provider string
	APIKey   string
	Model    string
	Logger   *log.Logger
}

// Direct talks to the model backend from this process.
type Direct struct {
	registry *prompts.Registry
	factory  CompleterFactory
	retry    engine.RetryPolicy
	mockMode bool
	provider string
	apiKey   string
	model    string
	logger   *log.Logger

	clients *lru.Cache[string, Completer]
}

// NewDirect creates a Direct provider.
func NewDirect(opts DirectOptions) (*Direct, error) {
	if opts.Registry == nil {
		opts.Registry = prompts.Default()
	}
	if opts.Factory == nil {
		opts.Factory = NewCompleter
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	clients, err := lru.New[string, Completer](completerCacheSize)
	if err != nil {
		return nil, fmt.Errorf("completer cache: %w", err)
	}
	return &Direct{
		registry: opts.Registry,
		factory:  opts.Factory,
		retry:    opts.Retry,
		mockMode: opts.MockMode,
		provider: opts.Provider,
		apiKey:   opts.APIKey,
		model:    opts.Model,
		logger:   opts.Logger,
		clients:  clients,
	}, nil
}

type target struct {
	completer   Completer
	model       string
	temperature float32
	language    string
}

// resolve picks the completer for settings; completers are cached per
// backend and credential.
func (d *Direct) resolve(settings engine.ModelSettings) (target, error) {
	provider := firstNonEmpty(settings.Provider, d.provider)
	apiKey := firstNonEmpty(settings.CustomAPIKey, d.apiKey)
	model := firstNonEmpty(settings.CustomModelName, d.model)

	sum := sha256.Sum256([]byte(apiKey))
	key := strings.Join([]string{provider, hex.EncodeToString(sum[:8]), model, settings.CustomBaseURL}, "|")

	c, ok := d.clients.Get(key)
	if !ok {
		var err error
		c, err = d.factory(provider, apiKey, model, settings.CustomBaseURL)
		if err != nil {
			return target{}, err
		}
		d.clients.Add(key, c)
	}

	t := target{
		completer:   c,
		model:       firstNonEmpty(model, c.DefaultModel()),
		temperature: settings.CustomTemperature,
		language:    firstNonEmpty(settings.Language, defaultLanguage),
	}
	if t.temperature <= 0 {
		t.temperature = defaultTemperature
	}
	return t, nil
}

// ProposeInitialTasks implements engine.TaskProvider.
func (d *Direct) ProposeInitialTasks(ctx context.Context, settings engine.ModelSettings, goal string) ([]string, error) {
	t, err := d.resolve(settings)
	if err != nil {
		return nil, engine.WrapProviderError(err, "start", http.StatusUnauthorized, "")
	}
	if !d.mockMode {
		if err := d.testConnection(ctx, t); err != nil {
			return nil, err
		}
	}

	text, err := d.complete(ctx, t, prompts.StartGoal, map[string]string{
		"goal":     goal,
		"language": t.language,
	})
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	return parseTaskArray(text)
}

// ProposeAdditionalTasks implements engine.TaskProvider.
func (d *Direct) ProposeAdditionalTasks(ctx context.Context, settings engine.ModelSettings, goal string, pending []string, lastTask, lastResult string, completed []string) ([]string, error) {
	t, err := d.resolve(settings)
	if err != nil {
		return nil, engine.WrapProviderError(err, "create", http.StatusUnauthorized, "")
	}
	text, err := d.complete(ctx, t, prompts.CreateTasks, map[string]string{
		"goal":      goal,
		"tasks":     prompts.QuoteList(pending),
		"last_task": lastTask,
		"result":    lastResult,
		"completed": prompts.QuoteList(completed),
		"language":  t.language,
	})
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	return parseTaskArray(text)
}

// ExecuteTask implements engine.TaskProvider.
func (d *Direct) ExecuteTask(ctx context.Context, settings engine.ModelSettings, goal, task string) (string, error) {
	t, err := d.resolve(settings)
	if err != nil {
		return "", engine.WrapProviderError(err, "execute", http.StatusUnauthorized, "")
	}
	text, err := d.complete(ctx, t, prompts.ExecuteTask, map[string]string{
		"goal":     goal,
		"task":     task,
		"language": t.language,
	})
	if err != nil {
		return "", fmt.Errorf("execute: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// testConnection sends a tiny request without retries so a bad key fails
// fast with the backend's status.
func (d *Direct) testConnection(ctx context.Context, t target) error {
	_, err := t.completer.Complete(ctx, CompletionRequest{
		Purpose:     "connection_test",
		Model:       t.model,
		Prompt:      "Say this is a test",
		MaxTokens:   7,
		Temperature: 0,
	})
	if err != nil {
		return fmt.Errorf("connection test: %w", err)
	}
	return nil
}

func (d *Direct) complete(ctx context.Context, t target, promptID string, vars map[string]string) (string, error) {
	prompt, err := prompts.Render(d.registry, promptID, vars)
	if err != nil {
		return "", err
	}
	req := CompletionRequest{
		Purpose:     promptID,
		Model:       t.model,
		Prompt:      prompt,
		Temperature: t.temperature,
	}

	return engine.RetryWithPolicy(ctx, d.retry, func(ctx context.Context) (string, error) {
		return t.completer.Complete(ctx, req)
	}, engine.ClassifyProviderError, func(attempt int, delay time.Duration, err error) {
		d.logger.Printf("🔁 %s retry %d in %v: %v", promptID, attempt, delay.Round(time.Millisecond), err)
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
