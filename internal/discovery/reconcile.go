package discovery

// Delta is the result of diffing a fresh scan against the currently applied
// declaration set. The supervisor converges live sessions to match.
type Delta struct {
	Added   []Server
	Changed []Server
	Removed []Server
}

// Empty reports whether applying the delta would be a no-op.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// Diff computes the reconciliation delta between the currently applied
// declarations and a fresh scan. Declarations are matched by name; a matched
// declaration counts as changed only when its execution plan differs.
func Diff(current, fresh []Server) Delta {
	currentByName := make(map[string]Server, len(current))
	for _, decl := range current {
		currentByName[decl.Name] = decl
	}

	var delta Delta
	seen := make(map[string]struct{}, len(fresh))

	for _, decl := range fresh {
		seen[decl.Name] = struct{}{}
		existing, ok := currentByName[decl.Name]
		if !ok {
			delta.Added = append(delta.Added, decl)
			continue
		}
		if !existing.Equivalent(decl) {
			delta.Changed = append(delta.Changed, decl)
		}
	}

	for _, decl := range current {
		if _, ok := seen[decl.Name]; !ok {
			delta.Removed = append(delta.Removed, decl)
		}
	}

	return delta
}
