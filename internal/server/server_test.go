package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/ChamsBouzaiene/autogoal/internal/engine/protocol"
	"github.com/ChamsBouzaiene/autogoal/internal/history"
	"github.com/ChamsBouzaiene/autogoal/internal/providers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu       sync.Mutex
	settings []engine.ModelSettings
	err      error
}

func (p *fakeProvider) seen(s engine.ModelSettings) {
	p.mu.Lock()
	p.settings = append(p.settings, s)
	p.mu.Unlock()
}

func (p *fakeProvider) ProposeInitialTasks(_ context.Context, s engine.ModelSettings, goal string) ([]string, error) {
	p.seen(s)
	if p.err != nil {
		return nil, p.err
	}
	return []string{"Research " + goal, "Summarize findings"}, nil
}

func (p *fakeProvider) ProposeAdditionalTasks(_ context.Context, s engine.ModelSettings, _ string, pending []string, _, _ string, _ []string) ([]string, error) {
	p.seen(s)
	if p.err != nil {
		return nil, p.err
	}
	return nil, nil
}

func (p *fakeProvider) ExecuteTask(_ context.Context, s engine.ModelSettings, _, task string) (string, error) {
	p.seen(s)
	if p.err != nil {
		return "", p.err
	}
	return "did " + task, nil
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Provider == nil {
		cfg.Provider = &fakeProvider{}
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.NewRegistry()
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func postJSON(t *testing.T, h http.Handler, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresProvider(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
}

func TestAgentEndpoints(t *testing.T) {
	s := newTestServer(t, Config{})
	h := s.Handler()

	rec := postJSON(t, h, providers.PathStart, providers.AgentRequest{Goal: "Plan a trip"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks providers.TasksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	assert.Equal(t, []string{"Research Plan a trip", "Summarize findings"}, tasks.NewTasks)

	rec = postJSON(t, h, providers.PathCreate, providers.AgentRequest{Goal: "Plan a trip", LastTask: "x", Result: "y"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"newTasks":[]}`, rec.Body.String())

	rec = postJSON(t, h, providers.PathExecute, providers.AgentRequest{Goal: "Plan a trip", Task: "Book"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var exec providers.ExecuteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exec))
	assert.Equal(t, "did Book", exec.Response)
}

func TestAgentEndpoints_BadRequests(t *testing.T) {
	h := newTestServer(t, Config{}).Handler()

	rec := postJSON(t, h, providers.PathStart, providers.AgentRequest{Goal: "   "}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h, providers.PathExecute, providers.AgentRequest{Goal: "g"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, providers.PathStart, strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAgentEndpoints_ProviderErrorKeepsStatus(t *testing.T) {
	p := &fakeProvider{err: engine.WrapProviderError(errors.New("quota"), "start", http.StatusTooManyRequests, "7")}
	h := newTestServer(t, Config{Provider: p}).Handler()

	rec := postJSON(t, h, providers.PathStart, providers.AgentRequest{Goal: "g"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("Retry-After"))

	p.err = errors.New("no status")
	rec = postJSON(t, h, providers.PathStart, providers.AgentRequest{Goal: "g"}, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAuthToken(t *testing.T) {
	h := newTestServer(t, Config{AuthToken: "secret"}).Handler()

	rec := postJSON(t, h, providers.PathStart, providers.AgentRequest{Goal: "g"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, h, providers.PathStart, providers.AgentRequest{Goal: "g"},
		http.Header{"Authorization": {"Bearer secret"}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, Config{RequestsPerSecond: 0.001, Burst: 1}).Handler()

	rec := postJSON(t, h, providers.PathStart, providers.AgentRequest{Goal: "g"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h, providers.PathStart, providers.AgentRequest{Goal: "g"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	var body providers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, engine.MsgRateLimited, body.Error)
}

func TestDefaultsMergedUnderRequest(t *testing.T) {
	p := &fakeProvider{}
	h := newTestServer(t, Config{
		Provider: p,
		Defaults: engine.StaticSettings{CustomModelName: "server-model", Language: "English"},
	}).Handler()

	rec := postJSON(t, h, providers.PathStart, providers.AgentRequest{
		Goal:          "g",
		ModelSettings: engine.ModelSettings{Language: "French"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, p.settings, 1)
	assert.Equal(t, "server-model", p.settings[0].CustomModelName)
	assert.Equal(t, "French", p.settings[0].Language)
}

func decodeStream(t *testing.T, body string) []protocol.Event {
	t.Helper()
	var events []protocol.Event
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		ev, err := protocol.DecodeEvent(sc.Bytes())
		require.NoError(t, err)
		events = append(events, ev)
	}
	require.NoError(t, sc.Err())
	return events
}

func TestRunStreamsNDJSON(t *testing.T) {
	ctx := context.Background()
	store, err := history.OpenStore(ctx, filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	defer store.Close()

	s := newTestServer(t, Config{Store: store})
	rec := postJSON(t, s.Handler(), "/api/runs", RunRequest{Goal: "Plan a trip"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	runID := rec.Header().Get("X-Run-Id")
	require.NotEmpty(t, runID)

	events := decodeStream(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 3)

	started, ok := events[0].(*protocol.RunStartedEvent)
	require.True(t, ok)
	assert.Equal(t, "Plan a trip", started.Goal)

	halt, ok := events[len(events)-1].(*protocol.HaltEvent)
	require.True(t, ok)
	assert.Equal(t, engine.PhaseHaltedSuccess, halt.Phase)
	assert.Equal(t, []string{"Research Plan a trip", "Summarize findings"}, halt.Completed)

	progress := 0
	for _, ev := range events[1 : len(events)-1] {
		p, ok := ev.(*protocol.ProgressEvent)
		require.True(t, ok)
		assert.Equal(t, runID, p.RunID)
		progress++
	}

	run, err := store.Run(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseHaltedSuccess, run.Phase)
	stored, err := store.Events(ctx, runID)
	require.NoError(t, err)
	assert.Len(t, stored, progress)
}

func TestRun_EmptyGoal(t *testing.T) {
	rec := postJSON(t, newTestServer(t, Config{}).Handler(), "/api/runs", RunRequest{Goal: ""}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// The mediated client and the server agree on the wire format.
func TestMediatedAgainstServer(t *testing.T) {
	s := newTestServer(t, Config{AuthToken: "tok"})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	m, err := providers.NewMediated(providers.MediatedOptions{BaseURL: ts.URL, AuthToken: "tok"})
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		values []string
	)
	agent, err := engine.NewAgent(engine.Options{
		Goal:     "Plan a trip",
		Provider: &providers.Router{Mediated: m},
		Sink: func(ev engine.Event) {
			mu.Lock()
			values = append(values, ev.Value)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	phase, err := agent.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseHaltedSuccess, phase)
	assert.Contains(t, values, "did Research Plan a trip")
	assert.Contains(t, values, engine.MsgAllTasksCompleted)
}

func TestMediatedAgainstServer_RateLimitedBootstrap(t *testing.T) {
	p := &fakeProvider{err: engine.WrapProviderError(errors.New("slow down"), "start", http.StatusTooManyRequests, "")}
	ts := httptest.NewServer(newTestServer(t, Config{Provider: p}).Handler())
	defer ts.Close()

	m, err := providers.NewMediated(providers.MediatedOptions{BaseURL: ts.URL})
	require.NoError(t, err)

	_, err = m.ProposeInitialTasks(context.Background(), engine.ModelSettings{}, "g")
	require.Error(t, err)
	assert.True(t, engine.IsRateLimited(err))
}
