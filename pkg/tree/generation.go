package tree

// Generations assigns every person a generation number: 0 for persons
// without parents, and otherwise one more than their deepest parent.
// Partners are pulled down to the deeper of their two generations so that a
// couple shares one tier.
//
// The assignment is a longest-path relaxation. It terminates on any input;
// if parent_child edges contain a cycle (see [Validate]) the numbers for
// persons on the cycle are bounded but otherwise meaningless.
func Generations(v View) map[string]int {
	persons := v.Persons()
	gen := make(map[string]int, len(persons))
	for _, p := range persons {
		gen[p.ID] = 0
	}

	var parentChild, partnerships []Edge
	for _, e := range v.Edges() {
		if _, ok := gen[e.Source]; !ok {
			continue
		}
		if _, ok := gen[e.Target]; !ok {
			continue
		}
		switch e.Kind {
		case KindParentChild:
			parentChild = append(parentChild, e)
		case KindPartnership:
			partnerships = append(partnerships, e)
		}
	}

	for range len(persons) + 1 {
		changed := false
		for _, e := range parentChild {
			if g := gen[e.Source] + 1; g > gen[e.Target] {
				gen[e.Target] = g
				changed = true
			}
		}
		for _, e := range partnerships {
			a, b := gen[e.Source], gen[e.Target]
			switch {
			case a < b:
				gen[e.Source] = b
				changed = true
			case b < a:
				gen[e.Target] = a
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return gen
}
