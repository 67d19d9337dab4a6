package engine

import "time"

// LoopDefaults are the per-tier iteration budgets.
type LoopDefaults struct {
	Free      int // Anonymous or unpaid session, no custom key
	Paid      int // Privileged session, no custom key
	CustomKey int // Custom key without an explicit override
}

// DefaultLoopDefaults returns the stock tier budgets.
func DefaultLoopDefaults() LoopDefaults {
	return LoopDefaults{
		Free:      4,
		Paid:      16,
		CustomKey: 50,
	}
}

// Pacing holds the presentation delays of the loop. They carry no correctness
// weight; zero disables them.
type Pacing struct {
	TaskEvent     time.Duration // Before each queued-task event
	BeforeExecute time.Duration // Before dequeuing a task
	BeforeExpand  time.Duration // Before requesting additional tasks
}

// DefaultPacing returns the delays used by interactive surfaces.
func DefaultPacing() Pacing {
	return Pacing{
		TaskEvent:     800 * time.Millisecond,
		BeforeExecute: 1000 * time.Millisecond,
		BeforeExpand:  1000 * time.Millisecond,
	}
}

// Config is the explicit configuration of a controller.
type Config struct {
	Loops  LoopDefaults
	Pacing Pacing
	// BootstrapFailures classifies initial-task errors into user messages.
	// Nil means DefaultBootstrapFailureRules.
	BootstrapFailures []FailureRule
}

// DefaultConfig returns a configuration with stock budgets and pacing.
func DefaultConfig() Config {
	return Config{
		Loops:             DefaultLoopDefaults(),
		Pacing:            DefaultPacing(),
		BootstrapFailures: DefaultBootstrapFailureRules(),
	}
}
