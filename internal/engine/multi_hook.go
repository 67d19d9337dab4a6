package engine

import (
	"context"
	"time"
)

type Hooks []Hook

func (hs Hooks) OnRunStart(ctx context.Context, st *State) {
	for _, h := range hs {
		h.OnRunStart(ctx, st)
	}
}
func (hs Hooks) OnPhase(ctx context.Context, st *State, from, to Phase) {
	for _, h := range hs {
		h.OnPhase(ctx, st, from, to)
	}
}
func (hs Hooks) OnIterationStart(ctx context.Context, st *State, task string, budget int) {
	for _, h := range hs {
		h.OnIterationStart(ctx, st, task, budget)
	}
}
func (hs Hooks) OnTaskExecuted(ctx context.Context, st *State, task, result string, elapsed time.Duration) {
	for _, h := range hs {
		h.OnTaskExecuted(ctx, st, task, result, elapsed)
	}
}
func (hs Hooks) OnTasksProposed(ctx context.Context, st *State, proposed, added []string) {
	for _, h := range hs {
		h.OnTasksProposed(ctx, st, proposed, added)
	}
}
func (hs Hooks) OnProviderError(ctx context.Context, st *State, op string, err error) {
	for _, h := range hs {
		h.OnProviderError(ctx, st, op, err)
	}
}
func (hs Hooks) OnHalt(ctx context.Context, st *State, phase Phase) {
	for _, h := range hs {
		h.OnHalt(ctx, st, phase)
	}
}
