package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/fatih/color"
)

// renderer prints the run narrative for humans.
type renderer struct {
	out io.Writer

	goal     *color.Color
	thinking *color.Color
	task     *color.Color
	action   *color.Color
	info     *color.Color
	system   *color.Color
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{
		out:      out,
		goal:     color.New(color.FgMagenta, color.Bold),
		thinking: color.New(color.FgHiBlack),
		task:     color.New(color.FgCyan),
		action:   color.New(color.FgGreen),
		info:     color.New(color.FgGreen, color.Bold),
		system:   color.New(color.FgYellow),
	}
}

func (r *renderer) Event(ev engine.Event) {
	switch ev.Kind {
	case engine.KindGoal:
		r.goal.Fprintf(r.out, "🎯 Embarking on a new goal: %s\n", ev.Value)
	case engine.KindThinking:
		r.thinking.Fprintln(r.out, "🤔 Thinking...")
	case engine.KindTask:
		r.task.Fprintf(r.out, "📝 Added task: %s\n", ev.Value)
	case engine.KindAction:
		if ev.Info != "" {
			r.info.Fprintf(r.out, "✅ %s\n", ev.Info)
		}
		if v := strings.TrimSpace(ev.Value); v != "" {
			r.action.Fprintln(r.out, indent(v))
		}
	case engine.KindSystem:
		r.system.Fprintf(r.out, "⚙️  %s\n", ev.Value)
	default:
		fmt.Fprintf(r.out, "%s: %s\n", ev.Kind, ev.Value)
	}
}

func (r *renderer) Summary(snap engine.Snapshot) {
	fmt.Fprintf(r.out, "\n%s after %d loop(s): %d completed, %d pending\n",
		phaseLabel(snap.Phase), snap.Loop, len(snap.Completed), len(snap.Tasks))
}

func phaseLabel(p engine.Phase) string {
	switch p {
	case engine.PhaseHaltedSuccess:
		return color.GreenString("Finished")
	case engine.PhaseHaltedBudget:
		return color.YellowString("Stopped at loop budget")
	case engine.PhaseHaltedManual:
		return color.YellowString("Stopped")
	case engine.PhaseHaltedError:
		return color.RedString("Failed")
	default:
		return string(p)
	}
}

func indent(s string) string {
	return "   " + strings.ReplaceAll(s, "\n", "\n   ")
}
