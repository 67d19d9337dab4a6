package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	ErrEmptyGoal      = errors.New("goal must not be empty")
	ErrNoProvider     = errors.New("task provider is required")
	ErrAlreadyStarted = errors.New("agent run already started")
)

// Options configure a single run.
type Options struct {
	ID       string // Optional; a uuid is generated when empty
	Goal     string
	Provider TaskProvider
	Settings SettingsSource // Nil means empty static settings
	Session  *Session
	Config   Config // Zero Loops means DefaultLoopDefaults; zero Pacing means no delays
	Sink     Sink   // Receives progress events; must not call Stop synchronously
	Shutdown func() // Invoked once, at the terminal transition
	Hooks    []Hook
}

// Agent is the run controller. It owns the goal, the pending queue, the
// completed history and the running flag of exactly one run.
type Agent struct {
	provider TaskProvider
	settings SettingsSource
	session  *Session
	config   Config
	hooks    Hooks
	sink     Sink
	shutdown func()

	// emitMu serializes sink delivery with the running-flag transition so no
	// event is observed after the flag turns false.
	emitMu sync.Mutex
	// stateMu guards st fields read by Snapshot from other goroutines.
	stateMu sync.RWMutex
	st      *State
	started atomic.Bool
}

// NewAgent validates opts and returns a controller ready to Run.
func NewAgent(opts Options) (*Agent, error) {
	goal := strings.TrimSpace(opts.Goal)
	if goal == "" {
		return nil, ErrEmptyGoal
	}
	if opts.Provider == nil {
		return nil, ErrNoProvider
	}

	settings := opts.Settings
	if settings == nil {
		settings = StaticSettings{}
	}
	sink := opts.Sink
	if sink == nil {
		sink = func(Event) {}
	}
	cfg := opts.Config
	if cfg.Loops == (LoopDefaults{}) {
		cfg.Loops = DefaultLoopDefaults()
	}
	if cfg.BootstrapFailures == nil {
		cfg.BootstrapFailures = DefaultBootstrapFailureRules()
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	st := &State{
		ID:    id,
		Goal:  goal,
		Phase: PhaseIdle,
	}
	st.running.Store(true)

	return &Agent{
		provider: opts.Provider,
		settings: settings,
		session:  opts.Session,
		config:   cfg,
		hooks:    Hooks(opts.Hooks),
		sink:     sink,
		shutdown: opts.Shutdown,
		st:       st,
	}, nil
}

// ID returns the run's correlation id.
func (a *Agent) ID() string { return a.st.ID }

// Goal returns the run's goal.
func (a *Agent) Goal() string { return a.st.Goal }

// Running reports whether the run can still make progress.
func (a *Agent) Running() bool { return a.st.Running() }

// Phase returns the current state-machine phase.
func (a *Agent) Phase() Phase {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.st.Phase
}

// Snapshot returns a copy of the run state.
func (a *Agent) Snapshot() Snapshot {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.st.snapshot()
}

// Stop halts the run from any goroutine. Only the first call has an effect:
// it emits the manual-shutdown event, clears the running flag and invokes
// shutdown. An in-flight provider call is not interrupted; the loop notices
// the flag at its next cooperative check.
func (a *Agent) Stop() {
	a.halt(context.Background(), PhaseHaltedManual, Event{Kind: KindSystem, Value: MsgManualShutdown})
}

// emit is the single gate to the sink: events are dropped once the run is
// no longer running, and stamped with the iteration counter at emission time.
func (a *Agent) emit(ev Event) {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	if !a.st.running.Load() {
		return
	}
	a.deliverLocked(ev)
}

func (a *Agent) deliverLocked(ev Event) {
	a.stateMu.RLock()
	ev.Loop = a.st.Loop
	a.stateMu.RUnlock()
	a.sink(ev)
}

// halt performs a terminal transition: last event, flag, phase, shutdown.
// It reports false when the run had already halted.
func (a *Agent) halt(ctx context.Context, phase Phase, last Event) bool {
	a.emitMu.Lock()
	if !a.st.running.Load() {
		a.emitMu.Unlock()
		return false
	}
	a.deliverLocked(last)

	a.stateMu.Lock()
	from := a.st.Phase
	a.st.Phase = phase
	a.stateMu.Unlock()
	a.st.running.Store(false)
	a.emitMu.Unlock()

	view := a.view()
	a.hooks.OnPhase(ctx, view, from, phase)
	a.hooks.OnHalt(ctx, view, phase)
	if a.shutdown != nil {
		a.shutdown()
	}
	return true
}

func (a *Agent) setPhase(ctx context.Context, to Phase) {
	a.stateMu.Lock()
	from := a.st.Phase
	if from == to || from.Halted() {
		a.stateMu.Unlock()
		return
	}
	a.st.Phase = to
	a.stateMu.Unlock()
	a.hooks.OnPhase(ctx, a.view(), from, to)
}

// view copies the run state for hooks. A hook may run on the goroutine that
// called Stop while the loop is still writing st.
func (a *Agent) view() *State {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	v := &State{
		ID:        a.st.ID,
		Goal:      a.st.Goal,
		Tasks:     append([]string(nil), a.st.Tasks...),
		Completed: append([]string(nil), a.st.Completed...),
		Loop:      a.st.Loop,
		Phase:     a.st.Phase,
	}
	v.running.Store(a.st.Running())
	return v
}

func (a *Agent) mutate(fn func(st *State)) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	fn(a.st)
}
