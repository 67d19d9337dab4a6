package engine

// LoopBudget returns the maximum number of iterations a run may execute.
// It is recomputed every iteration because settings can change mid-run.
func LoopBudget(defaults LoopDefaults, settings ModelSettings, session *Session) int {
	if settings.HasCustomKey() {
		if settings.CustomMaxLoops > 0 {
			return settings.CustomMaxLoops
		}
		return defaults.CustomKey
	}
	if session.Privileged() {
		return defaults.Paid
	}
	return defaults.Free
}
