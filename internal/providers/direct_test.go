package providers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/ChamsBouzaiene/autogoal/internal/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedCompleter struct {
	mu       sync.Mutex
	requests []CompletionRequest
	replies  map[string][]reply // by Purpose, consumed in order; last one repeats
}

type reply struct {
	text string
	err  error
}

func (s *scriptedCompleter) DefaultModel() string { return "scripted-model" }

func (s *scriptedCompleter) Complete(_ context.Context, req CompletionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	queue := s.replies[req.Purpose]
	if len(queue) == 0 {
		return "", nil
	}
	r := queue[0]
	if len(queue) > 1 {
		s.replies[req.Purpose] = queue[1:]
	}
	return r.text, r.err
}

func (s *scriptedCompleter) purposes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.requests {
		out = append(out, r.Purpose)
	}
	return out
}

func newTestDirect(t *testing.T, c Completer, mutate func(*DirectOptions)) (*Direct, *int) {
	t.Helper()
	built := 0
	opts := DirectOptions{
		Factory: func(provider, apiKey, model, baseURL string) (Completer, error) {
			built++
			return c, nil
		},
		MockMode: true,
		Retry:    engine.RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, Multiplier: 1},
	}
	if mutate != nil {
		mutate(&opts)
	}
	d, err := NewDirect(opts)
	require.NoError(t, err)
	return d, &built
}

func TestDirect_ProposeInitialTasks(t *testing.T) {
	c := &scriptedCompleter{replies: map[string][]reply{
		prompts.StartGoal: {{text: `Here you go: ["Book flight", "Reserve hotel"]`}},
	}}
	d, _ := newTestDirect(t, c, nil)

	tasks, err := d.ProposeInitialTasks(context.Background(), engine.ModelSettings{
		CustomAPIKey:      "sk",
		CustomTemperature: 0.2,
		Language:          "French",
	}, "Plan a trip")
	require.NoError(t, err)
	assert.Equal(t, []string{"Book flight", "Reserve hotel"}, tasks)

	require.Len(t, c.requests, 1)
	req := c.requests[0]
	assert.Equal(t, "scripted-model", req.Model)
	assert.InDelta(t, 0.2, req.Temperature, 1e-6)
	assert.Contains(t, req.Prompt, `"Plan a trip"`)
	assert.Contains(t, req.Prompt, "French")
}

func TestDirect_ConnectionTestRunsUnlessMockMode(t *testing.T) {
	c := &scriptedCompleter{replies: map[string][]reply{
		"connection_test": {{err: engine.WrapProviderError(errors.New("bad key"), "complete", http.StatusNotFound, "")}},
	}}
	d, _ := newTestDirect(t, c, func(o *DirectOptions) { o.MockMode = false })

	_, err := d.ProposeInitialTasks(context.Background(), engine.ModelSettings{CustomAPIKey: "sk"}, "g")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, engine.HTTPStatusOf(err))
	assert.Equal(t, []string{"connection_test"}, c.purposes())

	name, _ := engine.ClassifyFailure(engine.DefaultBootstrapFailureRules(), err, engine.MsgBootstrapRetry)
	assert.Equal(t, "model_access", name)
}

func TestDirect_RetriesTransientFailures(t *testing.T) {
	c := &scriptedCompleter{replies: map[string][]reply{
		prompts.ExecuteTask: {
			{err: engine.WrapProviderError(errors.New("overloaded"), "complete", http.StatusServiceUnavailable, "")},
			{text: "  done  "},
		},
	}}
	d, _ := newTestDirect(t, c, nil)

	out, err := d.ExecuteTask(context.Background(), engine.ModelSettings{}, "g", "t")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Len(t, c.requests, 2)
}

func TestDirect_ProposeAdditionalTasksPrompt(t *testing.T) {
	c := &scriptedCompleter{replies: map[string][]reply{
		prompts.CreateTasks: {{text: `["Pack bags"]`}},
	}}
	d, _ := newTestDirect(t, c, nil)

	tasks, err := d.ProposeAdditionalTasks(context.Background(), engine.ModelSettings{}, "Plan a trip",
		[]string{"Reserve hotel"}, "Find flights", "Found 3 flights", []string{"Find flights"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Pack bags"}, tasks)

	p := c.requests[0].Prompt
	assert.Contains(t, p, `incomplete tasks: ["Reserve hotel"]`)
	assert.Contains(t, p, `already completed: ["Find flights"]`)
	assert.Contains(t, p, "Found 3 flights")
}

func TestDirect_UnparseableOutputIsNotAProviderError(t *testing.T) {
	c := &scriptedCompleter{replies: map[string][]reply{
		prompts.StartGoal: {{text: "I'd rather not."}},
	}}
	d, _ := newTestDirect(t, c, nil)

	_, err := d.ProposeInitialTasks(context.Background(), engine.ModelSettings{}, "g")
	assert.ErrorIs(t, err, ErrNoTaskArray)
	_, msg := engine.ClassifyFailure(engine.DefaultBootstrapFailureRules(), err, engine.MsgBootstrapRetry)
	assert.Equal(t, engine.MsgBootstrapRetry, msg)
}

func TestDirect_CachesCompletersPerCredential(t *testing.T) {
	c := &scriptedCompleter{replies: map[string][]reply{}}
	d, built := newTestDirect(t, c, nil)
	ctx := context.Background()

	_, _ = d.ExecuteTask(ctx, engine.ModelSettings{CustomAPIKey: "a"}, "g", "t")
	_, _ = d.ExecuteTask(ctx, engine.ModelSettings{CustomAPIKey: "a"}, "g", "t")
	_, _ = d.ExecuteTask(ctx, engine.ModelSettings{CustomAPIKey: "b"}, "g", "t")
	assert.Equal(t, 2, *built)
}

func TestDirect_MissingKeyIsProviderError(t *testing.T) {
	d, err := NewDirect(DirectOptions{MockMode: true})
	require.NoError(t, err)

	_, err = d.ProposeInitialTasks(context.Background(), engine.ModelSettings{}, "g")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	_, msg := engine.ClassifyFailure(engine.DefaultBootstrapFailureRules(), err, engine.MsgBootstrapRetry)
	assert.Equal(t, engine.MsgBootstrapProvider, msg)
}

func TestDirect_MockBackendDrivesFullRun(t *testing.T) {
	d, err := NewDirect(DirectOptions{Provider: "mock"})
	require.NoError(t, err)

	var events []engine.Event
	a, err := engine.NewAgent(engine.Options{
		Goal:     "Plan a trip",
		Provider: &Router{Direct: d},
		Sink:     func(ev engine.Event) { events = append(events, ev) },
	})
	require.NoError(t, err)

	phase, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseHaltedSuccess, phase)
	assert.Len(t, a.Snapshot().Completed, 3)
	assert.Equal(t, engine.MsgAllTasksCompleted, events[len(events)-1].Value)
}
