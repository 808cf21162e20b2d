package layout

import (
	"cmp"
	"math"
	"slices"

	"github.com/matzehuels/kinship/pkg/tree"
)

// Place chooses positions for persons that have none. Already placed persons
// never move.
//
// Each person goes into the tier of their generation ([tree.Generations]),
// at y = generation × TierSpacing. Within a tier, unplaced persons are taken
// in order of the mean x of their placed parents (persons without placed
// parents last, then by ID), each at least SiblingSpacing to the right of
// the previous occupant of the tier. Unplaced partners are seated directly
// next to each other.
//
// The returned map contains only the newly placed persons.
func Place(v tree.View, cfg Config) map[string]tree.Point {
	if cfg.TierSpacing <= 0 {
		cfg.TierSpacing = DefaultTierSpacing
	}
	if cfg.SiblingSpacing <= 0 {
		cfg.SiblingSpacing = DefaultSiblingSpacing
	}

	gen := tree.Generations(v)
	pos := make(map[string]tree.Point)
	tiers := make(map[int][]string)
	maxGen := 0
	for _, p := range v.Persons() {
		if p.Position != nil && p.Position.Finite() {
			pos[p.ID] = *p.Position
		}
		g := gen[p.ID]
		tiers[g] = append(tiers[g], p.ID)
		maxGen = max(maxGen, g)
	}

	parents := make(map[string][]string)
	partners := make(map[string][]string)
	for _, e := range v.Edges() {
		switch e.Kind {
		case tree.KindParentChild:
			parents[e.Target] = append(parents[e.Target], e.Source)
		case tree.KindPartnership:
			partners[e.Source] = append(partners[e.Source], e.Target)
			partners[e.Target] = append(partners[e.Target], e.Source)
		}
	}
	for id := range partners {
		slices.Sort(partners[id])
	}

	placed := make(map[string]tree.Point)
	// Tiers are processed top-down so children see their parents' new x.
	for g := 0; g <= maxGen; g++ {
		y := float64(g) * cfg.TierSpacing
		next := math.Inf(-1)
		var todo []string
		for _, id := range tiers[g] {
			if p, ok := pos[id]; ok {
				next = math.Max(next, p.X+cfg.SiblingSpacing)
				continue
			}
			todo = append(todo, id)
		}
		if math.IsInf(next, -1) {
			next = 0
		}

		want := make(map[string]float64, len(todo))
		for _, id := range todo {
			want[id] = parentCenter(parents[id], pos)
		}
		slices.SortStableFunc(todo, func(a, b string) int {
			if c := cmp.Compare(want[a], want[b]); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})

		seat := func(id string) {
			x := next
			if w := want[id]; !math.IsInf(w, 1) && w > x {
				x = w
			}
			at := tree.Point{X: x, Y: y}
			pos[id] = at
			placed[id] = at
			next = x + cfg.SiblingSpacing
		}
		for _, id := range todo {
			if _, ok := pos[id]; ok {
				continue
			}
			seat(id)
			for _, mate := range partners[id] {
				if _, ok := pos[mate]; !ok && gen[mate] == g {
					seat(mate)
				}
			}
		}
	}
	return placed
}

// parentCenter returns the mean x of the placed parents, or +Inf if none is
// placed.
func parentCenter(ids []string, pos map[string]tree.Point) float64 {
	var sum float64
	var n int
	for _, id := range ids {
		if p, ok := pos[id]; ok {
			sum += p.X
			n++
		}
	}
	if n == 0 {
		return math.Inf(1)
	}
	return sum / float64(n)
}
