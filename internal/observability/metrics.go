// Package observability exports run activity as Prometheus metrics and
// OpenTelemetry traces by hooking into the engine.
package observability

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsHook is an engine.Hook that records run activity.
type MetricsHook struct {
	engine.NopHook

	runsStarted    prometheus.Counter
	iterations     prometheus.Counter
	tasksProposed  prometheus.Counter
	tasksDeduped   prometheus.Counter
	providerErrors *prometheus.CounterVec
	halts          *prometheus.CounterVec
	activeRuns     prometheus.Gauge
	taskDuration   prometheus.Histogram

	active sync.Map // run id -> struct{}
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *MetricsHook
	sharedMetricsErr   error
)

// DefaultMetrics returns the hook registered with the global Prometheus
// registry. Collectors are created once so several controllers can share it.
func DefaultMetrics() (*MetricsHook, error) {
	defaultMetricsOnce.Do(func() {
		sharedMetrics, sharedMetricsErr = NewMetricsHook(prometheus.DefaultRegisterer)
	})
	return sharedMetrics, sharedMetricsErr
}

// NewMetricsHook registers the collectors with reg. A collector that is
// already registered under the same name is reused.
func NewMetricsHook(reg prometheus.Registerer) (*MetricsHook, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	h := &MetricsHook{}
	var err error

	if h.runsStarted, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "autogoal",
		Subsystem: "engine",
		Name:      "runs_started_total",
		Help:      "Runs that entered the loop.",
	})); err != nil {
		return nil, err
	}
	if h.iterations, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "autogoal",
		Subsystem: "engine",
		Name:      "iterations_total",
		Help:      "Tasks dequeued for execution.",
	})); err != nil {
		return nil, err
	}
	if h.tasksProposed, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "autogoal",
		Subsystem: "engine",
		Name:      "tasks_proposed_total",
		Help:      "Tasks returned by the provider, before deduplication.",
	})); err != nil {
		return nil, err
	}
	if h.tasksDeduped, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "autogoal",
		Subsystem: "engine",
		Name:      "tasks_deduplicated_total",
		Help:      "Proposed tasks dropped because they were already pending or completed.",
	})); err != nil {
		return nil, err
	}
	if h.providerErrors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autogoal",
		Subsystem: "engine",
		Name:      "provider_errors_total",
		Help:      "Provider failures by operation and retry class.",
	}, []string{"op", "class"})); err != nil {
		return nil, err
	}
	if h.halts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autogoal",
		Subsystem: "engine",
		Name:      "halts_total",
		Help:      "Runs that reached a terminal phase.",
	}, []string{"phase"})); err != nil {
		return nil, err
	}
	if h.activeRuns, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "autogoal",
		Subsystem: "engine",
		Name:      "active_runs",
		Help:      "Runs currently in the loop.",
	})); err != nil {
		return nil, err
	}
	if h.taskDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "autogoal",
		Subsystem: "engine",
		Name:      "task_duration_seconds",
		Help:      "Time spent executing one task.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})); err != nil {
		return nil, err
	}
	return h, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (h *MetricsHook) OnRunStart(_ context.Context, st *engine.State) {
	h.runsStarted.Inc()
	if _, loaded := h.active.LoadOrStore(st.ID, struct{}{}); !loaded {
		h.activeRuns.Inc()
	}
}

func (h *MetricsHook) OnIterationStart(context.Context, *engine.State, string, int) {
	h.iterations.Inc()
}

func (h *MetricsHook) OnTaskExecuted(_ context.Context, _ *engine.State, _, _ string, elapsed time.Duration) {
	h.taskDuration.Observe(elapsed.Seconds())
}

func (h *MetricsHook) OnTasksProposed(_ context.Context, _ *engine.State, proposed, added []string) {
	h.tasksProposed.Add(float64(len(proposed)))
	h.tasksDeduped.Add(float64(len(proposed) - len(added)))
}

func (h *MetricsHook) OnProviderError(_ context.Context, _ *engine.State, op string, err error) {
	h.providerErrors.WithLabelValues(op, string(engine.ClassifyProviderError(err))).Inc()
}

func (h *MetricsHook) OnHalt(_ context.Context, st *engine.State, phase engine.Phase) {
	h.halts.WithLabelValues(string(phase)).Inc()
	// A run stopped before Run was called never counted as active.
	if _, ok := h.active.LoadAndDelete(st.ID); ok {
		h.activeRuns.Dec()
	}
}

var _ engine.Hook = (*MetricsHook)(nil)
