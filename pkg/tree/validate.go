package tree

// Validate checks the structural invariants of a view and returns nil if
// they hold:
//
//  1. Every edge names persons that exist in the view.
//  2. The parent_child relation, taken alone, is acyclic.
//
// Returns [ErrDanglingEdge] or [ErrCycle]. Cycle detection runs in O(N+E)
// using depth-first search with white/gray/black coloring.
func Validate(v View) error {
	persons := v.Persons()
	present := make(map[string]bool, len(persons))
	for _, p := range persons {
		present[p.ID] = true
	}
	children := make(map[string][]string)
	for _, e := range v.Edges() {
		if !present[e.Source] || !present[e.Target] {
			return ErrDanglingEdge
		}
		if e.Kind == KindParentChild {
			children[e.Source] = append(children[e.Source], e.Target)
		}
	}
	if hasCycle(persons, children) {
		return ErrCycle
	}
	return nil
}

// HasPath reports whether target is reachable from source by following
// parent_child edges downward. A person always reaches themselves.
func HasPath(v View, source, target string) bool {
	children := make(map[string][]string)
	for _, e := range v.Edges() {
		if e.Kind == KindParentChild {
			children[e.Source] = append(children[e.Source], e.Target)
		}
	}
	seen := map[string]bool{source: true}
	stack := []string{source}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target {
			return true
		}
		for _, c := range children[id] {
			if !seen[c] {
				seen[c] = true
				stack = append(stack, c)
			}
		}
	}
	return false
}

func hasCycle(persons []Person, children map[string][]string) bool {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(persons))
	var found bool

	var dfs func(id string)
	dfs = func(id string) {
		color[id] = gray
		for _, child := range children[id] {
			switch color[child] {
			case white:
				dfs(child)
			case gray:
				found = true
			}
			if found {
				return
			}
		}
		color[id] = black
	}

	for _, p := range persons {
		if color[p.ID] == white {
			dfs(p.ID)
			if found {
				return true
			}
		}
	}
	return false
}
