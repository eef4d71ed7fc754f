// Package depgraph orders a requested set of applications so dependencies
// come before their dependents.
//
// This is the lenient batch resolver: it never fails. When the remaining set
// makes no progress (a cycle, or apps depending on each other inside the
// request), it returns the partial result it has placed so far. Call sites
// that need hard cycle detection use the catalog's strict resolver instead;
// the two contracts are intentionally separate.
package depgraph

// Resolve returns the requested applications in installation order.
//
// An application is placed once all of its dependencies are either already
// placed or not part of the requested set (dependencies outside the request
// are assumed present). Duplicates in the request collapse to a single
// occurrence at the earliest position required. The dependency map is never
// mutated.
func Resolve(requested []string, deps map[string][]string) []string {
	remaining := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))
	for _, name := range requested {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		remaining = append(remaining, name)
	}

	placed := make(map[string]bool, len(remaining))
	order := make([]string, 0, len(remaining))

	for len(remaining) > 0 {
		progress := false
		next := remaining[:0]

		for _, name := range remaining {
			if ready(name, deps, placed, seen) {
				order = append(order, name)
				placed[name] = true
				progress = true
			} else {
				next = append(next, name)
			}
		}

		remaining = next
		if !progress {
			// No app became placeable this pass: silent partial result.
			return order
		}
	}

	return order
}

// ready reports whether every in-request dependency of name has been placed.
func ready(name string, deps map[string][]string, placed map[string]bool, inRequest map[string]bool) bool {
	for _, d := range deps[name] {
		if inRequest[d] && !placed[d] {
			return false
		}
	}
	return true
}
