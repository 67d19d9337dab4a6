// engine/hooks.go
package engine

import (
	"context"
	"time"
)

// Hook observes a run. Hooks run on the loop goroutine, except OnHalt and the
// final OnPhase which run on whichever goroutine called Stop. st is a copy
// taken when the hook fires; changing it has no effect on the run.
type Hook interface {
	OnRunStart(ctx context.Context, st *State)
	OnPhase(ctx context.Context, st *State, from, to Phase)
	OnIterationStart(ctx context.Context, st *State, task string, budget int)
	OnTaskExecuted(ctx context.Context, st *State, task, result string, elapsed time.Duration)
	OnTasksProposed(ctx context.Context, st *State, proposed, added []string)
	OnProviderError(ctx context.Context, st *State, op string, err error)
	OnHalt(ctx context.Context, st *State, phase Phase)
}

// NopHook lets you implement any hook you need.
type NopHook struct{}

func (NopHook) OnRunStart(context.Context, *State)                                     {}
func (NopHook) OnPhase(context.Context, *State, Phase, Phase)                          {}
func (NopHook) OnIterationStart(context.Context, *State, string, int)                  {}
func (NopHook) OnTaskExecuted(context.Context, *State, string, string, time.Duration) {}
func (NopHook) OnTasksProposed(context.Context, *State, []string, []string)           {}
func (NopHook) OnProviderError(context.Context, *State, string, error)                 {}
func (NopHook) OnHalt(context.Context, *State, Phase)                                  {}
