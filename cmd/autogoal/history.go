package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ChamsBouzaiene/autogoal/internal/engine/protocol"
	"github.com/spf13/cobra"
)

func historyCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, replay and search recorded runs",
	}
	cmd.AddCommand(historyListCmd(g))
	cmd.AddCommand(historyShowCmd(g))
	cmd.AddCommand(historySearchCmd(g))
	return cmd
}

func openHistoryEnv(cmd *cobra.Command, g *globalFlags) (*runtimeEnv, error) {
	env, err := prepareRuntimeEnv(g, nil)
	if err != nil {
		return nil, err
	}
	if err := env.openHistory(cmd.Context()); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func historyListCmd(g *globalFlags) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openHistoryEnv(cmd, g)
			if err != nil {
				return err
			}
			defer env.Close()

			runs, err := env.store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tPHASE\tLOOPS\tGOAL")
			for _, r := range runs {
				phase := string(r.Phase)
				if phase == "" {
					phase = "running"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					shortID(r.ID), r.StartedAt.Format(time.DateTime), phase, r.Loops, truncate(r.Goal, 60))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	return cmd
}

func historyShowCmd(g *globalFlags) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Replay the events of a run (an id prefix is enough)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openHistoryEnv(cmd, g)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			run, err := env.store.FindRun(ctx, args[0])
			if err != nil {
				return err
			}
			events, err := env.store.Events(ctx, run.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				w := protocol.NewWriter(out)
				for _, rec := range events {
					if err := w.Write(protocol.NewProgressEvent(run.ID, rec.Event)); err != nil {
						return err
					}
				}
				return nil
			}
			fmt.Fprintf(out, "Run %s started %s\n\n", run.ID, run.StartedAt.Format(time.DateTime))
			r := newRenderer(out)
			for _, rec := range events {
				r.Event(rec.Event)
			}
			if run.Phase != "" {
				fmt.Fprintf(out, "\n%s after %d loop(s)\n", phaseLabel(run.Phase), run.Loops)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print NDJSON progress events")
	return cmd
}

func historySearchCmd(g *globalFlags) *cobra.Command {
	var (
		runID string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search task and result text across runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openHistoryEnv(cmd, g)
			if err != nil {
				return err
			}
			defer env.Close()

			query := args[0]
			for _, a := range args[1:] {
				query += " " + a
			}
			hits, err := env.index.Search(query, runID, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintln(out, "No matches.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSEQ\tKIND\tSCORE\tTEXT")
			for _, h := range hits {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%.2f\t%s\n", shortID(h.RunID), h.Seq, h.Kind, h.Score, truncate(h.Value, 70))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Restrict to one run id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of hits")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
