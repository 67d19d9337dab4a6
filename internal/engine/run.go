package engine

import (
	"context"
	"time"
)

// Run drives the run to a terminal phase and returns it. The returned error
// is the provider failure behind PhaseHaltedError, or ErrAlreadyStarted.
//
// The loop is an explicit state machine:
//
//	Bootstrapping -> Executing <-> Expanding -> Halted{Success,Budget,Error,Manual}
//
// Cancelling ctx is treated like Stop at the next cooperative check.
func (a *Agent) Run(ctx context.Context) (Phase, error) {
	if !a.started.CompareAndSwap(false, true) {
		return a.Phase(), ErrAlreadyStarted
	}
	// OnRunStart runs under emitMu so a concurrent Stop cannot deliver
	// OnHalt before it.
	a.emitMu.Lock()
	if !a.st.running.Load() {
		a.emitMu.Unlock()
		return a.Phase(), nil
	}
	a.hooks.OnRunStart(ctx, a.view())
	a.emitMu.Unlock()

	a.emit(Event{Kind: KindGoal, Value: a.st.Goal})
	a.emit(Event{Kind: KindThinking, Value: a.st.Goal})

	phase, err := a.bootstrap(ctx)
	for !phase.Halted() && err == nil {
		phase, err = a.step(ctx)
	}
	return phase, err
}

func (a *Agent) bootstrap(ctx context.Context) (Phase, error) {
	a.setPhase(ctx, PhaseBootstrapping)

	settings := a.settings.ModelSettings()
	tasks, err := a.provider.ProposeInitialTasks(ctx, settings, a.st.Goal)
	if !a.st.Running() {
		return a.Phase(), nil
	}
	if ctx.Err() != nil {
		return a.cancelled(ctx)
	}
	if err != nil {
		a.hooks.OnProviderError(ctx, a.view(), "start", err)
		_, msg := ClassifyFailure(a.config.BootstrapFailures, err, MsgBootstrapRetry)
		a.halt(ctx, PhaseHaltedError, Event{Kind: KindSystem, Value: msg})
		return a.Phase(), err
	}

	added := filterNewTasks(tasks, nil, nil)
	a.mutate(func(st *State) {
		if st.Running() {
			st.Tasks = append(st.Tasks, added...)
		}
	})
	if !a.st.Running() {
		return a.Phase(), nil
	}
	a.hooks.OnTasksProposed(ctx, a.view(), tasks, added)
	if !a.announceTasks(ctx, added) {
		return a.cancelled(ctx)
	}

	a.setPhase(ctx, PhaseExecuting)
	return a.Phase(), nil
}

// step runs one iteration and returns the phase the run is in afterwards.
func (a *Agent) step(ctx context.Context) (Phase, error) {
	if !a.st.Running() {
		return a.Phase(), nil
	}
	if ctx.Err() != nil {
		return a.cancelled(ctx)
	}

	if len(a.st.Tasks) == 0 {
		a.halt(ctx, PhaseHaltedSuccess, Event{Kind: KindSystem, Value: MsgAllTasksCompleted})
		return a.Phase(), nil
	}

	settings := a.settings.ModelSettings()
	budget := LoopBudget(a.config.Loops, settings, a.session)
	a.mutate(func(st *State) { st.Loop++ })
	if a.st.Loop > budget {
		msg := MsgBudgetDemo
		if settings.HasCustomKey() {
			msg = MsgBudgetCustomKey
		}
		a.halt(ctx, PhaseHaltedBudget, Event{Kind: KindSystem, Value: msg})
		return a.Phase(), nil
	}

	a.setPhase(ctx, PhaseExecuting)
	if !a.pause(ctx, a.config.Pacing.BeforeExecute) {
		return a.cancelled(ctx)
	}

	var (
		task string
		ok   bool
	)
	a.mutate(func(st *State) {
		if st.Running() {
			task, ok = st.dequeue()
		}
	})
	if !ok {
		return a.Phase(), nil
	}
	a.hooks.OnIterationStart(ctx, a.view(), task, budget)
	a.emit(Event{Kind: KindThinking, Value: task})

	started := time.Now()
	result, err := a.provider.ExecuteTask(ctx, settings, a.st.Goal, task)
	if !a.st.Running() {
		return a.Phase(), nil
	}
	if ctx.Err() != nil {
		return a.cancelled(ctx)
	}
	if err != nil {
		a.hooks.OnProviderError(ctx, a.view(), "execute", err)
		msg := UserMessageOf(err)
		if msg == "" {
			msg = MsgExecutionFailed
		}
		a.halt(ctx, PhaseHaltedError, Event{Kind: KindSystem, Value: msg})
		return a.Phase(), err
	}
	a.hooks.OnTaskExecuted(ctx, a.view(), task, result, time.Since(started))
	a.emit(Event{Kind: KindAction, Info: executionInfo(task), Value: result})

	a.setPhase(ctx, PhaseExpanding)
	if !a.pause(ctx, a.config.Pacing.BeforeExpand) {
		return a.cancelled(ctx)
	}
	a.expand(ctx, settings, task, result)
	if ctx.Err() != nil && a.st.Running() {
		return a.cancelled(ctx)
	}
	return a.Phase(), nil
}

// expand asks for follow-on tasks and merges the new ones. A failure here is
// recoverable: the run continues with whatever is still pending.
func (a *Agent) expand(ctx context.Context, settings ModelSettings, task, result string) {
	snap := a.Snapshot()
	candidates, err := a.provider.ProposeAdditionalTasks(ctx, settings, snap.Goal, snap.Tasks, task, result, snap.Completed)
	if !a.st.Running() || ctx.Err() != nil {
		return
	}
	if err != nil {
		a.hooks.OnProviderError(ctx, a.view(), "create", err)
		if IsRateLimited(err) {
			a.emit(Event{Kind: KindSystem, Value: MsgRateLimited})
		}
		a.emit(Event{Kind: KindSystem, Value: MsgAdditionalTasks})
		a.emit(Event{Kind: KindAction, Info: MsgTaskMarked})
		return
	}

	var added []string
	halted := false
	a.mutate(func(st *State) {
		if !st.Running() {
			halted = true
			return
		}
		added = filterNewTasks(candidates, st.Tasks, st.Completed)
		st.Tasks = append(st.Tasks, added...)
	})
	if halted {
		return
	}
	a.hooks.OnTasksProposed(ctx, a.view(), candidates, added)
	a.announceTasks(ctx, added)
}

// announceTasks emits one task event per task, paced. It reports false if
// ctx was cancelled while waiting.
func (a *Agent) announceTasks(ctx context.Context, tasks []string) bool {
	for _, t := range tasks {
		if !a.pause(ctx, a.config.Pacing.TaskEvent) {
			return false
		}
		a.emit(Event{Kind: KindTask, Value: t})
	}
	return true
}

// pause waits d unless ctx ends first.
func (a *Agent) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// cancelled converts a cancelled context into a manual halt.
func (a *Agent) cancelled(ctx context.Context) (Phase, error) {
	a.halt(context.WithoutCancel(ctx), PhaseHaltedManual, Event{Kind: KindSystem, Value: MsgManualShutdown})
	return a.Phase(), nil
}
