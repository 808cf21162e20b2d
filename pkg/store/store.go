package store

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/matzehuels/kinship/pkg/observability"
	"github.com/matzehuels/kinship/pkg/tree"
)

// ErrClosed is returned by mutations on a store that has been closed.
var ErrClosed = errors.New("store closed")

// Store is the single mutable container of persons and edges for one tree.
//
// All methods are safe for concurrent use; mutations are serialized by an
// internal lock. Every mutation is idempotent by ID: inserting an existing ID
// replaces the entry, updating or deleting an absent ID is a no-op. The
// revision counter increases only on mutations that changed something.
//
// Edges may arrive before the persons they connect. Such edges are parked
// and become live as soon as both endpoints exist. Edges naming a person
// deleted earlier in the session are dropped.
type Store struct {
	mu         sync.RWMutex
	persons    map[string]tree.Person
	edges      map[string]tree.Edge
	pending    map[string]tree.Edge
	tombstones map[string]struct{}
	revision   uint64
	watchers   map[chan struct{}]struct{}
	closed     bool
}

var _ tree.View = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		persons:    make(map[string]tree.Person),
		edges:      make(map[string]tree.Edge),
		pending:    make(map[string]tree.Edge),
		tombstones: make(map[string]struct{}),
		watchers:   make(map[chan struct{}]struct{}),
	}
}

// =============================================================================
// Bulk replacement
// =============================================================================

// SetNodes replaces all persons. Edges are re-partitioned into live and
// pending against the new person set. Tombstones are cleared, since the new
// set is authoritative.
func (s *Store) SetNodes(persons []tree.Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.persons = make(map[string]tree.Person, len(persons))
	for _, p := range persons {
		if p.ID == "" {
			continue
		}
		s.persons[p.ID] = p.Clone()
	}
	clear(s.tombstones)

	all := make([]tree.Edge, 0, len(s.edges)+len(s.pending))
	for _, e := range s.edges {
		all = append(all, e)
	}
	for _, e := range s.pending {
		all = append(all, e)
	}
	s.partition(all)
	s.changed("set_nodes", true)
}

// SetEdges replaces all edges, live and pending. Edges that fail
// [tree.Edge.Check] are skipped.
func (s *Store) SetEdges(edges []tree.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.partition(edges)
	s.changed("set_edges", true)
}

func (s *Store) partition(edges []tree.Edge) {
	s.edges = make(map[string]tree.Edge, len(edges))
	s.pending = make(map[string]tree.Edge)
	for _, e := range edges {
		if e.Check() != nil || s.tombstoned(e) {
			continue
		}
		if s.live(e) {
			s.edges[e.ID] = e
		} else {
			s.pending[e.ID] = e
		}
	}
}

// =============================================================================
// Persons
// =============================================================================

// AddNode inserts or replaces a person and reports whether anything
// changed. Inserting a person clears its tombstone and promotes parked edges
// that were waiting for it.
func (s *Store) AddNode(p tree.Person) (bool, error) {
	if p.ID == "" {
		return false, tree.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	delete(s.tombstones, p.ID)
	old, existed := s.persons[p.ID]
	effective := !existed || !samePerson(old, p)
	s.persons[p.ID] = p.Clone()
	if s.promote() {
		effective = true
	}
	s.changed("add_node", effective)
	return effective, nil
}

// CreateNode adds a person for an optimistic local create, assigning a new
// ID if p has none. The echo from the change feed later replaces it.
func (s *Store) CreateNode(p tree.Person) (tree.Person, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, err := s.AddNode(p); err != nil {
		return tree.Person{}, err
	}
	return p.Clone(), nil
}

// ReplaceNode replaces a person received from the backend if it is held.
// It is a no-op, reporting false, when the person is absent.
func (s *Store) ReplaceNode(p tree.Person) (bool, error) {
	if p.ID == "" {
		return false, tree.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	old, ok := s.persons[p.ID]
	if !ok {
		s.changed("replace_node", false)
		return false, nil
	}
	effective := !samePerson(old, p)
	s.persons[p.ID] = p.Clone()
	s.changed("replace_node", effective)
	return effective, nil
}

// UpdateNode applies a partial update to an existing person. It is a no-op,
// reporting false, when the person is absent.
func (s *Store) UpdateNode(id string, patch tree.Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	old, ok := s.persons[id]
	if !ok {
		s.changed("update_node", false)
		return false
	}
	next := patch.Apply(old)
	effective := !samePerson(old, next)
	s.persons[id] = next
	s.changed("update_node", effective)
	return effective
}

// DeleteNode removes a person and every edge touching them, live or parked,
// and remembers the ID so that late edges to it are dropped. The cascade
// runs even when the person itself is not present.
func (s *Store) DeleteNode(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || id == "" {
		return false
	}
	_, effective := s.persons[id]
	delete(s.persons, id)
	for eid, e := range s.edges {
		if e.Touches(id) {
			delete(s.edges, eid)
			effective = true
		}
	}
	for eid, e := range s.pending {
		if e.Touches(id) {
			delete(s.pending, eid)
			effective = true
		}
	}
	s.tombstones[id] = struct{}{}
	s.changed("delete_node", effective)
	return effective
}

// =============================================================================
// Edges
// =============================================================================

// AddEdge inserts or replaces an edge made locally. It rejects malformed
// edges, edges whose endpoints are not both present ([tree.ErrDanglingEdge])
// and parent_child edges that would make a person their own ancestor
// ([tree.ErrCycle]). Re-adding an existing edge is a no-op. Only edges from
// the backend are ever parked.
func (s *Store) AddEdge(e tree.Edge) error {
	if err := e.Check(); err != nil {
		observability.Store().OnRejected("add_edge", err)
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.live(e) {
		observability.Store().OnRejected("add_edge", tree.ErrDanglingEdge)
		return fmt.Errorf("%w: %s → %s", tree.ErrDanglingEdge, e.Source, e.Target)
	}
	if e.Kind == tree.KindParentChild && s.wouldCycle(e) {
		observability.Store().OnRejected("add_edge", tree.ErrCycle)
		return fmt.Errorf("%w: %s → %s", tree.ErrCycle, e.Source, e.Target)
	}
	s.upsertEdge(e, "add_edge")
	return nil
}

// Connect creates a new local edge with a fresh ID.
func (s *Store) Connect(kind tree.Kind, source, target string) (tree.Edge, error) {
	e := tree.Edge{ID: uuid.NewString(), Kind: kind, Source: source, Target: target}
	if err := s.AddEdge(e); err != nil {
		return tree.Edge{}, err
	}
	return e, nil
}

// UpsertEdge inserts or replaces an edge received from the backend. It skips
// the cycle check, since the backend is authoritative, and reports whether
// anything changed. Malformed edges are dropped.
func (s *Store) UpsertEdge(e tree.Edge) bool {
	if e.Check() != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.upsertEdge(e, "upsert_edge")
}

// ReplaceEdge replaces an edge received from the backend if an edge with
// that ID is held, live or parked. It is a no-op, reporting false, when the
// edge is absent.
func (s *Store) ReplaceEdge(e tree.Edge) bool {
	if e.Check() != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	_, inLive := s.edges[e.ID]
	_, inPending := s.pending[e.ID]
	if !inLive && !inPending {
		s.changed("replace_edge", false)
		return false
	}
	return s.upsertEdge(e, "replace_edge")
}

func (s *Store) upsertEdge(e tree.Edge, op string) bool {
	if s.tombstoned(e) {
		s.changed(op, false)
		return false
	}
	old, inLive := s.edges[e.ID]
	oldPending, inPending := s.pending[e.ID]
	if (inLive && old == e) || (inPending && oldPending == e) {
		s.changed(op, false)
		return false
	}
	delete(s.edges, e.ID)
	delete(s.pending, e.ID)
	if s.live(e) {
		s.edges[e.ID] = e
	} else {
		s.pending[e.ID] = e
	}
	s.changed(op, true)
	return true
}

// DeleteEdge removes an edge, live or parked. It is a no-op when absent.
func (s *Store) DeleteEdge(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	_, inLive := s.edges[id]
	_, inPending := s.pending[id]
	delete(s.edges, id)
	delete(s.pending, id)
	effective := inLive || inPending
	s.changed("delete_edge", effective)
	return effective
}

// =============================================================================
// Reads
// =============================================================================

// Person returns the person with the given ID.
func (s *Store) Person(id string) (tree.Person, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.persons[id]
	if !ok {
		return tree.Person{}, false
	}
	return p.Clone(), true
}

// Persons returns all persons sorted by ID.
func (s *Store) Persons() []tree.Person {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tree.Person, 0, len(s.persons))
	for _, p := range s.persons {
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b tree.Person) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Edges returns all live edges sorted by ID. Parked edges are not included.
func (s *Store) Edges() []tree.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedEdges(s.edges)
}

// Pending returns the parked edges sorted by ID.
func (s *Store) Pending() []tree.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedEdges(s.pending)
}

// Snapshot returns an immutable copy of the live persons and edges.
func (s *Store) Snapshot() *tree.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	persons := make([]tree.Person, 0, len(s.persons))
	for _, p := range s.persons {
		persons = append(persons, p)
	}
	edges := make([]tree.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		edges = append(edges, e)
	}
	return tree.NewSnapshot(persons, edges)
}

// Revision returns a counter that increases on every effective mutation.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// =============================================================================
// Change notification
// =============================================================================

// Watch returns a channel that receives a value after effective mutations.
// Notifications are coalesced: a slow reader sees one value for a burst of
// changes. The channel is closed by cancel or by [Store.Close].
func (s *Store) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.watchers[ch] = struct{}{}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.watchers[ch]; ok {
				delete(s.watchers, ch)
				close(ch)
			}
		})
	}
}

// Close tears the store down: watchers are closed and further mutations
// are refused. Close is idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.watchers {
		close(ch)
	}
	clear(s.watchers)
}

// changed records a mutation. Callers hold the write lock.
func (s *Store) changed(op string, effective bool) {
	observability.Store().OnMutation(op, effective)
	if !effective {
		return
	}
	s.revision++
	for ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Store) live(e tree.Edge) bool {
	_, a := s.persons[e.Source]
	_, b := s.persons[e.Target]
	return a && b
}

func (s *Store) tombstoned(e tree.Edge) bool {
	_, a := s.tombstones[e.Source]
	_, b := s.tombstones[e.Target]
	return a || b
}

// promote moves parked edges whose endpoints now exist into the live set.
func (s *Store) promote() bool {
	moved := false
	for id, e := range s.pending {
		if s.live(e) {
			s.edges[id] = e
			delete(s.pending, id)
			moved = true
		}
	}
	return moved
}

// wouldCycle reports whether adding the parent_child edge e would create a
// cycle, i.e. whether e.Source already descends from e.Target. An existing
// edge with the same ID is ignored, since e replaces it.
func (s *Store) wouldCycle(e tree.Edge) bool {
	children := make(map[string][]string)
	for id, x := range s.edges {
		if id == e.ID || x.Kind != tree.KindParentChild {
			continue
		}
		children[x.Source] = append(children[x.Source], x.Target)
	}
	seen := map[string]bool{e.Target: true}
	stack := []string{e.Target}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == e.Source {
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

func sortedEdges(m map[string]tree.Edge) []tree.Edge {
	out := make([]tree.Edge, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b tree.Edge) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func samePerson(a, b tree.Person) bool {
	pa, pb := a.Position, b.Position
	a.Position, b.Position = nil, nil
	if a != b {
		return false
	}
	switch {
	case pa == nil && pb == nil:
		return true
	case pa == nil || pb == nil:
		return false
	default:
		return *pa == *pb
	}
}
