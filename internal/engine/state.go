package engine

import "sync/atomic"

// State is the mutable part of a run. Only the controller writes to it.
type State struct {
	ID        string   // Correlation only
	Goal      string   // Immutable for the lifetime of the run
	Tasks     []string // Pending, FIFO
	Completed []string // Append-only; a task lands here when it is dequeued
	Loop      int      // Iteration counter
	Phase     Phase

	running atomic.Bool
}

// Running reports the cooperative cancellation flag.
func (s *State) Running() bool { return s.running.Load() }

// dequeue pops the head of the pending queue and reserves it in Completed
// before it is executed, so a failing task is never proposed again.
func (s *State) dequeue() (string, bool) {
	if len(s.Tasks) == 0 {
		return "", false
	}
	task := s.Tasks[0]
	s.Completed = append(s.Completed, task)
	s.Tasks = s.Tasks[1:]
	return task, true
}

// Snapshot is a copy of State safe to hand to other goroutines.
type Snapshot struct {
	ID        string
	Goal      string
	Tasks     []string
	Completed []string
	Loop      int
	Phase     Phase
	Running   bool
}

func (s *State) snapshot() Snapshot {
	return Snapshot{
		ID:        s.ID,
		Goal:      s.Goal,
		Tasks:     append([]string(nil), s.Tasks...),
		Completed: append([]string(nil), s.Completed...),
		Loop:      s.Loop,
		Phase:     s.Phase,
		Running:   s.Running(),
	}
}
