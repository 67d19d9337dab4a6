// Package engine drives a goal through an expanding queue of tasks.
package engine

// Phase is the state of a run.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseBootstrapping Phase = "bootstrapping"
	PhaseExecuting     Phase = "executing"
	PhaseExpanding     Phase = "expanding"
	PhaseHaltedSuccess Phase = "halted_success"
	PhaseHaltedBudget  Phase = "halted_budget"
	PhaseHaltedError   Phase = "halted_error"
	PhaseHaltedManual  Phase = "halted_manual"
)

// Halted reports whether p is terminal.
func (p Phase) Halted() bool {
	switch p {
	case PhaseHaltedSuccess, PhaseHaltedBudget, PhaseHaltedError, PhaseHaltedManual:
		return true
	}
	return false
}
