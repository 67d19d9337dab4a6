package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	traceScope = "autogoal.engine"

	spanRun       = "autogoal.run"
	spanIteration = "autogoal.iteration"

	attrRunID  = "autogoal.run_id"
	attrGoal   = "autogoal.goal"
	attrLoop   = "autogoal.loop"
	attrTask   = "autogoal.task"
	attrBudget = "autogoal.budget"
	attrPhase  = "autogoal.phase"
	attrOp     = "autogoal.op"
)

// TracingHook is an engine.Hook that opens one span per run and a child span
// per iteration.
type TracingHook struct {
	engine.NopHook
	tracer trace.Tracer

	mu   sync.Mutex
	runs map[string]*runSpans
}

type runSpans struct {
	ctx       context.Context
	run       trace.Span
	iteration trace.Span
}

// NewTracingHook creates a hook on tp. A nil tp means the global provider.
func NewTracingHook(tp trace.TracerProvider) *TracingHook {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingHook{
		tracer: tp.Tracer(traceScope),
		runs:   make(map[string]*runSpans),
	}
}

func (h *TracingHook) OnRunStart(ctx context.Context, st *engine.State) {
	ctx, span := h.tracer.Start(ctx, spanRun, trace.WithAttributes(
		attribute.String(attrRunID, st.ID),
		attribute.String(attrGoal, st.Goal),
	))
	h.mu.Lock()
	h.runs[st.ID] = &runSpans{ctx: ctx, run: span}
	h.mu.Unlock()
}

func (h *TracingHook) OnPhase(_ context.Context, st *engine.State, from, to engine.Phase) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rs := h.runs[st.ID]; rs != nil {
		rs.run.AddEvent("phase", trace.WithAttributes(
			attribute.String("from", string(from)),
			attribute.String("to", string(to)),
		))
	}
}

func (h *TracingHook) OnIterationStart(_ context.Context, st *engine.State, task string, budget int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs := h.runs[st.ID]
	if rs == nil {
		return
	}
	if rs.iteration != nil {
		rs.iteration.End()
	}
	_, rs.iteration = h.tracer.Start(rs.ctx, spanIteration, trace.WithAttributes(
		attribute.String(attrRunID, st.ID),
		attribute.Int(attrLoop, st.Loop),
		attribute.String(attrTask, task),
		attribute.Int(attrBudget, budget),
	))
}

func (h *TracingHook) OnTaskExecuted(_ context.Context, st *engine.State, _, result string, elapsed time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rs := h.runs[st.ID]; rs != nil && rs.iteration != nil {
		rs.iteration.AddEvent("task.executed", trace.WithAttributes(
			attribute.Int64("elapsed_ms", elapsed.Milliseconds()),
			attribute.Int("result_len", len(result)),
		))
	}
}

func (h *TracingHook) OnTasksProposed(_ context.Context, st *engine.State, proposed, added []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rs := h.runs[st.ID]; rs != nil {
		h.current(rs).AddEvent("tasks.proposed", trace.WithAttributes(
			attribute.Int("proposed", len(proposed)),
			attribute.Int("added", len(added)),
		))
	}
}

func (h *TracingHook) OnProviderError(_ context.Context, st *engine.State, op string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rs := h.runs[st.ID]; rs != nil {
		span := h.current(rs)
		span.RecordError(err, trace.WithAttributes(attribute.String(attrOp, op)))
		span.SetStatus(codes.Error, err.Error())
	}
}

func (h *TracingHook) OnHalt(_ context.Context, st *engine.State, phase engine.Phase) {
	h.mu.Lock()
	rs := h.runs[st.ID]
	delete(h.runs, st.ID)
	var iteration trace.Span
	if rs != nil {
		iteration, rs.iteration = rs.iteration, nil
	}
	h.mu.Unlock()
	if rs == nil {
		return
	}
	if iteration != nil {
		iteration.End()
	}
	rs.run.SetAttributes(attribute.String(attrPhase, string(phase)))
	if phase == engine.PhaseHaltedError {
		rs.run.SetStatus(codes.Error, string(phase))
	} else {
		rs.run.SetStatus(codes.Ok, "")
	}
	rs.run.End()
}

func (h *TracingHook) current(rs *runSpans) trace.Span {
	if rs.iteration != nil {
		return rs.iteration
	}
	return rs.run
}

var _ engine.Hook = (*TracingHook)(nil)

// NewOTLPTracerProvider exports spans over OTLP/HTTP to endpoint
// (host:port) and installs the provider globally. Callers must Shutdown it.
func NewOTLPTracerProvider(ctx context.Context, endpoint, serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}
	if serviceName == "" {
		serviceName = "autogoal"
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}
