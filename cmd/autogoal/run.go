package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ChamsBouzaiene/autogoal/internal/config"
	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/ChamsBouzaiene/autogoal/internal/engine/protocol"
	"github.com/ChamsBouzaiene/autogoal/internal/history"
	"github.com/spf13/cobra"
)

type runFlags struct {
	maxLoops   int
	privileged bool
	jsonOut    bool
	mock       bool
	noHistory  bool
	language   string
}

func runCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Run a goal until its tasks are done, the loop budget is spent, or Ctrl-C",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoal(cmd, g, f, strings.Join(args, " "))
		},
	}
	cmd.Flags().IntVar(&f.maxLoops, "max-loops", 0, "Loop budget when using your own API key")
	cmd.Flags().BoolVar(&f.privileged, "privileged", false, "Use the paid-tier loop budget")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Write NDJSON protocol events instead of text")
	cmd.Flags().BoolVar(&f.mock, "mock", false, "Use the offline mock model")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "Do not record the run")
	cmd.Flags().StringVar(&f.language, "language", "", "Language of generated tasks and results")
	return cmd
}

func (f *runFlags) apply(cmd *cobra.Command) func(*config.Config) {
	return func(c *config.Config) {
		if cmd.Flags().Changed("max-loops") {
			c.MaxLoops = f.maxLoops
		}
		if cmd.Flags().Changed("privileged") {
			c.Privileged = f.privileged
		}
		if f.language != "" {
			c.Language = f.language
		}
		if f.mock {
			c.Provider = "mock"
			c.MockMode = true
			c.ServerURL = ""
		}
	}
}

func runGoal(cmd *cobra.Command, g *globalFlags, f *runFlags, goal string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	env, err := prepareRuntimeEnv(g, f.apply(cmd))
	if err != nil {
		return err
	}
	defer env.Close()
	env.watch(ctx)

	cfg := env.cfg()
	router, err := buildRouter(cfg, env.logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	runID := protocol.NewRunID()
	var (
		sink   engine.Sink
		writer *protocol.Writer
		human  *renderer
	)
	if f.jsonOut {
		writer = protocol.NewWriter(out)
		sink = writer.Sink(runID, func(err error) { env.logger.Printf("⚠️  write event: %v", err) })
	} else {
		human = newRenderer(out)
		sink = human.Event
	}

	var rec *history.Recorder
	if !f.noHistory {
		if err := env.openHistory(ctx); err != nil {
			env.logger.Printf("⚠️  History disabled: %v", err)
		} else if rec, err = history.NewRecorder(ctx, env.store, env.index, runID, goal, env.logger); err != nil {
			env.logger.Printf("⚠️  History disabled: %v", err)
			rec = nil
		} else {
			sink = rec.Sink(sink)
		}
	}

	agent, err := engine.NewAgent(engine.Options{
		ID:       runID,
		Goal:     goal,
		Provider: router,
		Settings: env.watcher,
		Session:  cfg.Session(),
		Config:   cfg.EngineConfig(),
		Sink:     sink,
		Hooks:    buildHooks(env.logger, g.verbose),
	})
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			agent.Stop()
		case <-ctx.Done():
		}
	}()

	if writer != nil {
		_ = writer.Write(protocol.NewRunStartedEvent(runID, goal))
	}
	phase, runErr := agent.Run(ctx)
	snap := agent.Snapshot()

	if rec != nil {
		if err := rec.Finish(context.WithoutCancel(ctx), snap, runErr); err != nil {
			env.logger.Printf("⚠️  history: %v", err)
		}
	}
	if writer != nil {
		_ = writer.Write(protocol.NewHaltEvent(snap, runErr))
	} else {
		human.Summary(snap)
	}

	if phase == engine.PhaseHaltedError {
		return fmt.Errorf("run %s failed: %w", runID, runErr)
	}
	return nil
}
