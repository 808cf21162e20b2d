package store

import (
	"errors"
	"testing"
	"time"

	"github.com/matzehuels/kinship/pkg/tree"
)

func pc(id, parent, child string) tree.Edge {
	return tree.Edge{ID: id, Kind: tree.KindParentChild, Source: parent, Target: child}
}

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.SetNodes([]tree.Person{{ID: "A"}, {ID: "B"}, {ID: "C"}})
	s.SetEdges([]tree.Edge{
		{ID: "p", Kind: tree.KindPartnership, Source: "A", Target: "B"},
		pc("e1", "A", "C"),
		pc("e2", "B", "C"),
	})
	return s
}

func TestStore_DuplicateInsert(t *testing.T) {
	s := seeded(t)
	rev := s.Revision()

	changed, err := s.AddNode(tree.Person{ID: "A"})
	if err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if changed {
		t.Error("duplicate insert reported a change")
	}
	if got := len(s.Persons()); got != 3 {
		t.Errorf("len(Persons) = %d, want 3", got)
	}
	if s.Revision() != rev {
		t.Errorf("Revision = %d, want %d", s.Revision(), rev)
	}

	// Same id, new data: authoritative replace.
	changed, _ = s.AddNode(tree.Person{ID: "A", FirstName: "Ada"})
	if !changed {
		t.Error("replacing insert reported no change")
	}
	if p, _ := s.Person("A"); p.FirstName != "Ada" {
		t.Errorf("FirstName = %q, want Ada", p.FirstName)
	}
	if got := len(s.Persons()); got != 3 {
		t.Errorf("len(Persons) = %d, want 3", got)
	}
}

func TestStore_AddNodeEmptyID(t *testing.T) {
	if _, err := New().AddNode(tree.Person{}); !errors.Is(err, tree.ErrInvalidID) {
		t.Errorf("AddNode(empty) = %v, want ErrInvalidID", err)
	}
}

func TestStore_DeleteCascade(t *testing.T) {
	s := seeded(t)
	if !s.DeleteNode("A") {
		t.Fatal("DeleteNode(A) reported no change")
	}
	for _, e := range s.Edges() {
		if e.Touches("A") {
			t.Errorf("edge %s still touches A", e.ID)
		}
	}
	if got := len(s.Edges()); got != 1 {
		t.Errorf("len(Edges) = %d, want 1", got)
	}
	if err := tree.Validate(s); err != nil {
		t.Errorf("Validate after cascade = %v", err)
	}
}

func TestStore_AbsentIsNoop(t *testing.T) {
	s := seeded(t)
	rev := s.Revision()
	name := "x"
	if s.UpdateNode("nobody", tree.Patch{FirstName: &name}) {
		t.Error("UpdateNode(absent) reported a change")
	}
	if s.DeleteNode("nobody") {
		t.Error("DeleteNode(absent) reported a change")
	}
	if s.DeleteEdge("nothing") {
		t.Error("DeleteEdge(absent) reported a change")
	}
	if s.Revision() != rev {
		t.Errorf("Revision = %d, want %d", s.Revision(), rev)
	}
}

func TestStore_UpdateNode(t *testing.T) {
	s := seeded(t)
	pos := tree.Point{X: 3, Y: 4}
	if !s.UpdateNode("C", tree.Patch{Position: &pos}) {
		t.Fatal("UpdateNode reported no change")
	}
	if s.UpdateNode("C", tree.Patch{Position: &pos}) {
		t.Error("repeating the same update reported a change")
	}
	p, _ := s.Person("C")
	if p.Position == nil || *p.Position != pos {
		t.Errorf("Position = %v, want %v", p.Position, pos)
	}
}

func TestStore_AddEdgeRejectsCycle(t *testing.T) {
	s := seeded(t)
	err := s.AddEdge(pc("bad", "C", "A"))
	if !errors.Is(err, tree.ErrCycle) {
		t.Fatalf("AddEdge(C→A) = %v, want ErrCycle", err)
	}
	if err := s.AddEdge(tree.Edge{ID: "loop", Kind: tree.KindPartnership, Source: "A", Target: "A"}); !errors.Is(err, tree.ErrSelfLoop) {
		t.Errorf("AddEdge(self) = %v, want ErrSelfLoop", err)
	}
	if err := tree.Validate(s); err != nil {
		t.Errorf("Validate = %v", err)
	}
}

func TestStore_AddEdgeIdempotent(t *testing.T) {
	s := seeded(t)
	rev := s.Revision()
	if err := s.AddEdge(pc("e1", "A", "C")); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if got := len(s.Edges()); got != 3 {
		t.Errorf("len(Edges) = %d, want 3", got)
	}
	if s.Revision() != rev {
		t.Error("re-adding an identical edge changed the revision")
	}
}

func TestStore_AddEdgeRequiresEndpoints(t *testing.T) {
	s := New()
	for _, e := range []tree.Edge{pc("ab", "a", "b"), pc("ba", "b", "a")} {
		if err := s.AddEdge(e); !errors.Is(err, tree.ErrDanglingEdge) {
			t.Errorf("AddEdge(%s) = %v, want ErrDanglingEdge", e.ID, err)
		}
	}
	if len(s.Pending()) != 0 || s.Revision() != 0 {
		t.Fatalf("rejected edges left state behind: pending=%d revision=%d", len(s.Pending()), s.Revision())
	}

	s.AddNode(tree.Person{ID: "a"})
	s.AddNode(tree.Person{ID: "b"})
	if len(s.Edges()) != 0 {
		t.Errorf("Edges = %v, want none", s.Edges())
	}
	if err := tree.Validate(s); err != nil {
		t.Errorf("Validate = %v", err)
	}

	// With both endpoints present the cycle check applies as usual.
	if err := s.AddEdge(pc("ab", "a", "b")); err != nil {
		t.Fatalf("AddEdge(a→b): %v", err)
	}
	if err := s.AddEdge(pc("ba", "b", "a")); !errors.Is(err, tree.ErrCycle) {
		t.Errorf("AddEdge(b→a) = %v, want ErrCycle", err)
	}
}

func TestStore_ReplaceAbsent(t *testing.T) {
	s := seeded(t)
	rev := s.Revision()

	changed, err := s.ReplaceNode(tree.Person{ID: "Z", FirstName: "Zed"})
	if err != nil || changed {
		t.Errorf("ReplaceNode(absent) = %v, %v, want false, nil", changed, err)
	}
	if _, ok := s.Person("Z"); ok {
		t.Error("ReplaceNode inserted an absent person")
	}
	if s.ReplaceEdge(pc("e9", "A", "C")) {
		t.Error("ReplaceEdge(absent) reported a change")
	}
	if len(s.Edges()) != 3 || len(s.Pending()) != 0 {
		t.Errorf("live=%d pending=%d, want 3/0", len(s.Edges()), len(s.Pending()))
	}
	if s.Revision() != rev {
		t.Errorf("Revision = %d, want %d", s.Revision(), rev)
	}

	if changed, _ := s.ReplaceNode(tree.Person{ID: "A", FirstName: "Ada"}); !changed {
		t.Error("ReplaceNode(held) reported no change")
	}
	if !s.ReplaceEdge(tree.Edge{ID: "e1", Kind: tree.KindParentChild, Source: "B", Target: "C"}) {
		t.Error("ReplaceEdge(held) reported no change")
	}
	if _, err := s.ReplaceNode(tree.Person{}); !errors.Is(err, tree.ErrInvalidID) {
		t.Errorf("ReplaceNode(empty) = %v, want ErrInvalidID", err)
	}
}

func TestStore_PendingEdgePromoted(t *testing.T) {
	s := New()
	if !s.UpsertEdge(pc("e1", "A", "C")) {
		t.Fatal("UpsertEdge reported no change")
	}
	if len(s.Edges()) != 0 || len(s.Pending()) != 1 {
		t.Fatalf("live=%d pending=%d, want 0/1", len(s.Edges()), len(s.Pending()))
	}
	s.AddNode(tree.Person{ID: "A"})
	if len(s.Edges()) != 0 {
		t.Error("edge promoted with one endpoint missing")
	}
	s.AddNode(tree.Person{ID: "C"})
	if len(s.Edges()) != 1 || len(s.Pending()) != 0 {
		t.Errorf("live=%d pending=%d, want 1/0", len(s.Edges()), len(s.Pending()))
	}
}

func TestStore_TombstoneDropsLateEdge(t *testing.T) {
	s := seeded(t)
	s.DeleteNode("C")
	if s.UpsertEdge(pc("late", "A", "C")) {
		t.Error("edge to deleted person was accepted")
	}
	if len(s.Pending()) != 0 {
		t.Errorf("Pending = %v, want none", s.Pending())
	}

	// Re-inserting C clears the tombstone.
	s.AddNode(tree.Person{ID: "C"})
	if !s.UpsertEdge(pc("late", "A", "C")) {
		t.Error("edge to re-inserted person was rejected")
	}
}

func TestStore_DeleteCascadesPending(t *testing.T) {
	s := New()
	s.UpsertEdge(pc("e1", "A", "C"))
	if !s.DeleteNode("A") {
		t.Error("DeleteNode should report the dropped parked edge")
	}
	if len(s.Pending()) != 0 {
		t.Errorf("Pending = %v, want none", s.Pending())
	}
}

func TestStore_SetNodesRepartitions(t *testing.T) {
	s := seeded(t)
	s.SetNodes([]tree.Person{{ID: "A"}, {ID: "C"}})
	if len(s.Edges()) != 1 || len(s.Pending()) != 2 {
		t.Errorf("live=%d pending=%d, want 1/2", len(s.Edges()), len(s.Pending()))
	}
}

func TestStore_CreateAndConnect(t *testing.T) {
	s := New()
	a, err := s.CreateNode(tree.Person{FirstName: "Ann"})
	if err != nil || a.ID == "" {
		t.Fatalf("CreateNode = %+v, %v", a, err)
	}
	b, _ := s.CreateNode(tree.Person{FirstName: "Bo"})
	e, err := s.Connect(tree.KindParentChild, a.ID, b.ID)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if e.ID == "" || len(s.Edges()) != 1 {
		t.Errorf("edge = %+v, live = %d", e, len(s.Edges()))
	}
	if _, err := s.Connect(tree.KindParentChild, b.ID, a.ID); !errors.Is(err, tree.ErrCycle) {
		t.Errorf("reverse Connect = %v, want ErrCycle", err)
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := seeded(t)
	snap := s.Snapshot()
	s.DeleteNode("A")
	if snap.PersonCount() != 3 || snap.EdgeCount() != 3 {
		t.Errorf("snapshot changed: %d persons, %d edges", snap.PersonCount(), snap.EdgeCount())
	}
}

func TestStore_Watch(t *testing.T) {
	s := New()
	ch, cancel := s.Watch()
	defer cancel()

	s.AddNode(tree.Person{ID: "A"})
	s.AddNode(tree.Person{ID: "B"})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
	// Coalesced: at most one value is buffered.
	select {
	case <-ch:
		t.Error("expected notifications to coalesce")
	default:
	}

	s.AddNode(tree.Person{ID: "A"})
	select {
	case <-ch:
		t.Error("no-op mutation notified")
	default:
	}
}

func TestStore_Close(t *testing.T) {
	s := New()
	ch, cancel := s.Watch()
	s.Close()
	s.Close()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("watch channel not closed")
	}
	if _, err := s.AddNode(tree.Person{ID: "A"}); !errors.Is(err, ErrClosed) {
		t.Errorf("AddNode after Close = %v, want ErrClosed", err)
	}
}
