package engine

// filterNewTasks drops candidates already pending, already completed, or
// repeated earlier in the same batch. Order of the survivors is preserved.
func filterNewTasks(candidates, pending, completed []string) []string {
	seen := make(map[string]struct{}, len(pending)+len(completed)+len(candidates))
	for _, t := range pending {
		seen[t] = struct{}{}
	}
	for _, t := range completed {
		seen[t] = struct{}{}
	}

	fresh := make([]string, 0, len(candidates))
	for _, t := range candidates {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		fresh = append(fresh, t)
	}
	return fresh
}
