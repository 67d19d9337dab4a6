package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/ChamsBouzaiene/autogoal/internal/engine/protocol"
	"github.com/ChamsBouzaiene/autogoal/internal/history"
	"github.com/spf13/cobra"
)

func stdioCmd(g *globalFlags) *cobra.Command {
	var noHistory bool
	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Serve runs over the NDJSON stdio protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Logs go to stderr so they never corrupt the protocol.
			log.SetOutput(os.Stderr)
			g.verbose = g.verbose || os.Getenv("AUTOGOAL_DEBUG") != ""

			env, err := prepareRuntimeEnv(g, nil)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			env.watch(ctx)
			if !noHistory {
				if err := env.openHistory(ctx); err != nil {
					env.logger.Printf("⚠️  History disabled: %v", err)
				}
			}

			cfg := env.cfg()
			router, err := buildRouter(cfg, env.logger)
			if err != nil {
				return err
			}
			runner := newStdioRunner(cmd.InOrStdin(), cmd.OutOrStdout(), stdioDeps{
				provider: router,
				settings: env.watcher,
				engine:   cfg.EngineConfig(),
				hooks:    buildHooks(env.logger, g.verbose),
				store:    env.store,
				index:    env.index,
				logger:   env.logger,
			})
			return runner.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record runs")
	return cmd
}

type stdioDeps struct {
	provider engine.TaskProvider
	settings engine.SettingsSource
	engine   engine.Config
	hooks    []engine.Hook
	store    *history.Store // Optional
	index    *history.Index // Optional
	logger   *log.Logger
}

// stdioRunner reads one command per line and writes protocol events. Several
// runs may be active at once; events of different runs interleave.
type stdioRunner struct {
	scanner *bufio.Scanner
	out     *protocol.Writer
	deps    stdioDeps

	mu   sync.Mutex
	runs map[string]*engine.Agent
	wg   sync.WaitGroup
}

func newStdioRunner(in io.Reader, out io.Writer, deps stdioDeps) *stdioRunner {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if deps.logger == nil {
		deps.logger = log.New(io.Discard, "", 0)
	}
	return &stdioRunner{
		scanner: scanner,
		out:     protocol.NewWriter(out),
		deps:    deps,
		runs:    make(map[string]*engine.Agent),
	}
}

// Run serves until stdin closes, then waits for active runs to halt. If ctx
// ends first, every active run is stopped.
func (r *stdioRunner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		r.stopAll()
	}()

	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		if err := r.handleLine(ctx, line); err != nil {
			r.deps.logger.Printf("stdio command error: %v", err)
		}
	}
	scanErr := r.scanner.Err()
	if scanErr != nil && !errors.Is(scanErr, io.EOF) {
		r.emit(protocol.NewErrorEvent("", fmt.Sprintf("stdin error: %v", scanErr)))
	}

	r.wg.Wait()
	return scanErr
}

func (r *stdioRunner) emit(ev protocol.Event) {
	if err := r.out.Write(ev); err != nil {
		r.deps.logger.Printf("stdio: write %s: %v", ev.GetType(), err)
	}
}

func (r *stdioRunner) handleLine(ctx context.Context, line string) error {
	cmd, err := protocol.DecodeCommand([]byte(line))
	if err != nil {
		r.emit(protocol.NewErrorEvent("", err.Error()))
		return err
	}

	switch c := cmd.(type) {
	case protocol.StartRunCommand:
		return r.start(ctx, c)
	case protocol.StopRunCommand:
		r.mu.Lock()
		agent := r.runs[c.RunID]
		r.mu.Unlock()
		if agent == nil {
			err := fmt.Errorf("unknown run: %s", c.RunID)
			r.emit(protocol.NewErrorEvent(c.RunID, err.Error()))
			return err
		}
		agent.Stop()
		return nil
	default:
		err := fmt.Errorf("unsupported command: %s", cmd.GetType())
		r.emit(protocol.NewErrorEvent("", err.Error()))
		return err
	}
}

func (r *stdioRunner) start(ctx context.Context, c protocol.StartRunCommand) error {
	runID := c.RunID
	if runID == "" {
		runID = protocol.NewRunID()
	}
	if strings.TrimSpace(c.Goal) == "" {
		r.emit(protocol.NewErrorEvent(runID, engine.ErrEmptyGoal.Error()))
		return engine.ErrEmptyGoal
	}
	// The id is reserved with a nil agent so a second start with the same id
	// fails even before the first agent exists.
	r.mu.Lock()
	_, dup := r.runs[runID]
	if !dup {
		r.runs[runID] = nil
	}
	r.mu.Unlock()
	if dup {
		err := fmt.Errorf("run already active: %s", runID)
		r.emit(protocol.NewErrorEvent(runID, err.Error()))
		return err
	}

	settings := r.deps.settings
	if c.Settings != (engine.ModelSettings{}) {
		settings = engine.StaticSettings(c.Settings)
	}
	var session *engine.Session
	if c.Privileged {
		session = &engine.Session{UserID: "local", SubscriptionID: "local"}
	}

	sink := r.out.Sink(runID, func(err error) { r.deps.logger.Printf("stdio: %v", err) })
	var rec *history.Recorder
	if r.deps.store != nil {
		var err error
		if rec, err = history.NewRecorder(ctx, r.deps.store, r.deps.index, runID, c.Goal, r.deps.logger); err != nil {
			r.deps.logger.Printf("⚠️  history disabled for %s: %v", runID, err)
			rec = nil
		} else {
			sink = rec.Sink(sink)
		}
	}

	agent, err := engine.NewAgent(engine.Options{
		ID:       runID,
		Goal:     c.Goal,
		Provider: r.deps.provider,
		Settings: settings,
		Session:  session,
		Config:   r.deps.engine,
		Sink:     sink,
		Hooks:    r.deps.hooks,
	})
	if err != nil {
		r.release(runID)
		r.emit(protocol.NewErrorEvent(runID, err.Error()))
		return err
	}

	r.mu.Lock()
	r.runs[runID] = agent
	r.mu.Unlock()

	r.emit(protocol.NewRunStartedEvent(runID, agent.Goal()))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, runErr := agent.Run(ctx)
		snap := agent.Snapshot()
		if rec != nil {
			if err := rec.Finish(context.WithoutCancel(ctx), snap, runErr); err != nil {
				r.deps.logger.Printf("⚠️  history: %v", err)
			}
		}
		r.emit(protocol.NewHaltEvent(snap, runErr))
		r.release(runID)
	}()
	return nil
}

func (r *stdioRunner) release(runID string) {
	r.mu.Lock()
	delete(r.runs, runID)
	r.mu.Unlock()
}

func (r *stdioRunner) stopAll() {
	r.mu.Lock()
	agents := make([]*engine.Agent, 0, len(r.runs))
	for _, a := range r.runs {
		if a != nil {
			agents = append(agents, a)
		}
	}
	r.mu.Unlock()
	for _, a := range agents {
		a.Stop()
	}
}
