package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"golang.org/x/time/rate"
)

// MediatedOptions configure a Mediated provider.
type MediatedOptions struct {
	BaseURL    string
	HTTPClient *http.Client // Nil means a client with a 2 minute timeout
	AuthToken  string       // Sent as a bearer token when set
	// RequestsPerSecond paces calls on the client side; zero disables pacing.
	RequestsPerSecond float64
	Burst             int
}

// Mediated reaches the model through the intermediary service.
type Mediated struct {
	baseURL   string
	client    *http.Client
	authToken string
	limiter   *rate.Limiter
}

// NewMediated creates a Mediated provider.
func NewMediated(opts MediatedOptions) (*Mediated, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("mediated provider requires a base URL")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &Mediated{
		baseURL:   base,
		client:    client,
		authToken: opts.AuthToken,
		limiter:   limiter,
	}, nil
}

// ProposeInitialTasks implements engine.TaskProvider.
func (m *Mediated) ProposeInitialTasks(ctx context.Context, settings engine.ModelSettings, goal string) ([]string, error) {
	var out TasksResponse
	err := m.post(ctx, "start", PathStart, AgentRequest{
		ModelSettings: settings,
		Goal:          goal,
	}, &out)
	return out.NewTasks, err
}

// ProposeAdditionalTasks implements engine.TaskProvider.
func (m *Mediated) ProposeAdditionalTasks(ctx context.Context, settings engine.ModelSettings, goal string, pending []string, lastTask, lastResult string, completed []string) ([]string, error) {
	var out TasksResponse
	err := m.post(ctx, "create", PathCreate, AgentRequest{
		ModelSettings:  settings,
		Goal:           goal,
		Tasks:          pending,
		LastTask:       lastTask,
		Result:         lastResult,
		CompletedTasks: completed,
	}, &out)
	return out.NewTasks, err
}

// ExecuteTask implements engine.TaskProvider.
func (m *Mediated) ExecuteTask(ctx context.Context, settings engine.ModelSettings, goal, task string) (string, error) {
	var out ExecuteResponse
	err := m.post(ctx, "execute", PathExecute, AgentRequest{
		ModelSettings: settings,
		Goal:          goal,
		Task:          task,
	}, &out)
	return out.Response, err
}

func (m *Mediated) post(ctx context.Context, op, path string, body AgentRequest, out any) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: wait for rate limiter: %w", op, err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+m.authToken)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return engine.WrapProviderError(err, op, 0, "")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(data))
		var er ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			msg = er.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return engine.WrapProviderError(errors.New(msg), op, resp.StatusCode, resp.Header.Get("Retry-After"))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
