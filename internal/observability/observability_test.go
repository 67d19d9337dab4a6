package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type stubProvider struct {
	initial    []string
	initialErr error
	additional []string
}

func (p stubProvider) ProposeInitialTasks(context.Context, engine.ModelSettings, string) ([]string, error) {
	return p.initial, p.initialErr
}

func (p stubProvider) ProposeAdditionalTasks(context.Context, engine.ModelSettings, string, []string, string, string, []string) ([]string, error) {
	return p.additional, nil
}

func (stubProvider) ExecuteTask(_ context.Context, _ engine.ModelSettings, _, task string) (string, error) {
	return "ok: " + task, nil
}

func runAgent(t *testing.T, p engine.TaskProvider, hooks ...engine.Hook) engine.Phase {
	t.Helper()
	a, err := engine.NewAgent(engine.Options{Goal: "Plan a trip", Provider: p, Hooks: hooks})
	require.NoError(t, err)
	phase, _ := a.Run(context.Background())
	return phase
}

func TestMetricsHook_CountsRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := NewMetricsHook(reg)
	require.NoError(t, err)

	// "Find flights" is proposed again after each task and dropped every time.
	phase := runAgent(t, stubProvider{
		initial:    []string{"Find flights", "Pack bags"},
		additional: []string{"Find flights"},
	}, h)
	require.Equal(t, engine.PhaseHaltedSuccess, phase)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.runsStarted))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.iterations))
	assert.Equal(t, 4.0, testutil.ToFloat64(h.tasksProposed))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.tasksDeduped))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.halts.WithLabelValues(string(engine.PhaseHaltedSuccess))))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.activeRuns))
	assert.Equal(t, 2, testutil.CollectAndCount(h.taskDuration))
}

func TestMetricsHook_ProviderError(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := NewMetricsHook(reg)
	require.NoError(t, err)

	bad := engine.WrapProviderError(errors.New("slow down"), "start", http.StatusTooManyRequests, "")
	phase := runAgent(t, stubProvider{initialErr: bad}, h)
	require.Equal(t, engine.PhaseHaltedError, phase)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.providerErrors.WithLabelValues("start", string(engine.RetryClassRetryable))))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.halts.WithLabelValues(string(engine.PhaseHaltedError))))
}

func TestMetricsHook_StopBeforeRunKeepsGaugeAtZero(t *testing.T) {
	h, err := NewMetricsHook(prometheus.NewRegistry())
	require.NoError(t, err)

	a, err := engine.NewAgent(engine.Options{Goal: "g", Provider: stubProvider{}, Hooks: []engine.Hook{h}})
	require.NoError(t, err)
	a.Stop()

	assert.Equal(t, 0.0, testutil.ToFloat64(h.activeRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.halts.WithLabelValues(string(engine.PhaseHaltedManual))))
}

func TestNewMetricsHook_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetricsHook(reg)
	require.NoError(t, err)
	second, err := NewMetricsHook(reg)
	require.NoError(t, err)

	first.runsStarted.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.runsStarted))
}

func TestTracingHook_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	h := NewTracingHook(tp)
	phase := runAgent(t, stubProvider{initial: []string{"Find flights", "Pack bags"}}, h)
	require.Equal(t, engine.PhaseHaltedSuccess, phase)

	counts := map[string]int{}
	var run sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		counts[s.Name()]++
		if s.Name() == spanRun {
			run = s
		}
	}
	assert.Equal(t, 1, counts[spanRun])
	assert.Equal(t, 2, counts[spanIteration])
	require.NotNil(t, run)
	assert.Equal(t, codes.Ok, run.Status().Code)

	for _, s := range recorder.Ended() {
		if s.Name() == spanIteration {
			assert.Equal(t, run.SpanContext().SpanID(), s.Parent().SpanID())
		}
	}
	assert.Empty(t, h.runs)
}

func TestTracingHook_ErrorStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	h := NewTracingHook(tp)
	phase := runAgent(t, stubProvider{initialErr: errors.New("boom")}, h)
	require.Equal(t, engine.PhaseHaltedError, phase)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	var names []string
	for _, ev := range spans[0].Events() {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, "exception")
}

type endlessProvider struct{ n atomic.Int64 }

func (p *endlessProvider) ProposeInitialTasks(context.Context, engine.ModelSettings, string) ([]string, error) {
	return []string{"t0"}, nil
}

func (p *endlessProvider) ProposeAdditionalTasks(context.Context, engine.ModelSettings, string, []string, string, string, []string) ([]string, error) {
	return []string{fmt.Sprintf("t%d", p.n.Add(1))}, nil
}

func (*endlessProvider) ExecuteTask(context.Context, engine.ModelSettings, string, string) (string, error) {
	return "ok", nil
}

func TestHooks_StopMidRunEndsEverySpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	tracing := NewTracingHook(tp)
	metrics, err := NewMetricsHook(prometheus.NewRegistry())
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		a, err := engine.NewAgent(engine.Options{
			Goal:     "g",
			Provider: &endlessProvider{},
			Settings: engine.StaticSettings{CustomAPIKey: "k", CustomMaxLoops: 1 << 30},
			Hooks:    []engine.Hook{tracing, metrics},
		})
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = a.Run(context.Background())
		}()
		time.Sleep(time.Duration(i%5) * 100 * time.Microsecond)
		a.Stop()
		<-done
	}

	assert.Len(t, recorder.Ended(), len(recorder.Started()))
	assert.Empty(t, tracing.runs)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.activeRuns))
}
