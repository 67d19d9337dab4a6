// engine/hook_logger.go
package engine

import (
	"context"
	"log"
	"time"
)

type LoggerHook struct{ L *log.Logger }

func (h LoggerHook) OnRunStart(_ context.Context, st *State) {
	h.L.Printf("🎯 run=%s goal=%q", st.ID, st.Goal)
}
func (h LoggerHook) OnPhase(_ context.Context, st *State, from, to Phase) {
	h.L.Printf("run=%s phase %s -> %s", st.ID, from, to)
}
func (h LoggerHook) OnIterationStart(_ context.Context, st *State, task string, budget int) {
	h.L.Printf("loop=%d/%d pending=%d completed=%d task=%q", st.Loop, budget, len(st.Tasks), len(st.Completed), task)
}
func (h LoggerHook) OnTaskExecuted(_ context.Context, st *State, task, result string, elapsed time.Duration) {
	resultPreview := result
	if len(resultPreview) > 100 {
		resultPreview = resultPreview[:100] + "..."
	}
	h.L.Printf("loop=%d executed %q in %v: %s", st.Loop, task, elapsed.Round(time.Millisecond), resultPreview)
}
func (h LoggerHook) OnTasksProposed(_ context.Context, st *State, proposed, added []string) {
	h.L.Printf("loop=%d proposed=%d added=%d (dropped %d duplicates)", st.Loop, len(proposed), len(added), len(proposed)-len(added))
}
func (h LoggerHook) OnProviderError(_ context.Context, st *State, op string, err error) {
	h.L.Printf("⚠️  loop=%d %s failed: %v", st.Loop, op, err)
}
func (h LoggerHook) OnHalt(_ context.Context, st *State, phase Phase) {
	h.L.Printf("🛑 run=%s halted: %s loops=%d completed=%d pending=%d", st.ID, phase, st.Loop, len(st.Completed), len(st.Tasks))
}
