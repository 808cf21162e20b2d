package tree

import (
	"cmp"
	"slices"
)

// View is the read-only surface the model functions operate on. The store
// exposes its live data through a View; tests and file-based tools use
// [Snapshot] directly.
type View interface {
	// Person returns the person with the given ID.
	Person(id string) (Person, bool)
	// Persons returns all persons sorted by ID.
	Persons() []Person
	// Edges returns all edges sorted by ID.
	Edges() []Edge
}

// Snapshot is an immutable point-in-time copy of a tree.
// The zero value is an empty tree.
type Snapshot struct {
	persons map[string]Person
	order   []string
	edges   []Edge
}

// NewSnapshot builds a snapshot from persons and edges. Later entries with a
// duplicate ID replace earlier ones, so the result never holds two entries
// with the same ID. Inputs are copied.
func NewSnapshot(persons []Person, edges []Edge) *Snapshot {
	s := &Snapshot{persons: make(map[string]Person, len(persons))}
	for _, p := range persons {
		s.persons[p.ID] = p.Clone()
	}
	s.order = make([]string, 0, len(s.persons))
	for id := range s.persons {
		s.order = append(s.order, id)
	}
	slices.Sort(s.order)

	byID := make(map[string]Edge, len(edges))
	for _, e := range edges {
		byID[e.ID] = e
	}
	s.edges = make([]Edge, 0, len(byID))
	for _, e := range byID {
		s.edges = append(s.edges, e)
	}
	slices.SortFunc(s.edges, func(a, b Edge) int { return cmp.Compare(a.ID, b.ID) })
	return s
}

// Person returns the person with the given ID.
func (s *Snapshot) Person(id string) (Person, bool) {
	if s == nil {
		return Person{}, false
	}
	p, ok := s.persons[id]
	if !ok {
		return Person{}, false
	}
	return p.Clone(), true
}

// Persons returns all persons sorted by ID.
func (s *Snapshot) Persons() []Person {
	if s == nil {
		return nil
	}
	out := make([]Person, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.persons[id].Clone())
	}
	return out
}

// Edges returns all edges sorted by ID.
func (s *Snapshot) Edges() []Edge {
	if s == nil {
		return nil
	}
	return slices.Clone(s.edges)
}

// PersonCount returns the number of persons.
func (s *Snapshot) PersonCount() int {
	if s == nil {
		return 0
	}
	return len(s.persons)
}

// EdgeCount returns the number of edges.
func (s *Snapshot) EdgeCount() int {
	if s == nil {
		return 0
	}
	return len(s.edges)
}

var _ View = (*Snapshot)(nil)

// Parents returns the IDs of the parents of child, sorted.
func Parents(v View, child string) []string {
	var out []string
	for _, e := range v.Edges() {
		if e.Kind == KindParentChild && e.Target == child {
			out = append(out, e.Source)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Children returns the IDs of the children of parent, sorted.
func Children(v View, parent string) []string {
	var out []string
	for _, e := range v.Edges() {
		if e.Kind == KindParentChild && e.Source == parent {
			out = append(out, e.Target)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Partners returns the IDs of everyone joined to id by a partnership edge,
// sorted.
func Partners(v View, id string) []string {
	var out []string
	for _, e := range v.Edges() {
		if e.Kind != KindPartnership {
			continue
		}
		switch id {
		case e.Source:
			out = append(out, e.Target)
		case e.Target:
			out = append(out, e.Source)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
