// Package tree is the graph model of a genealogical tree: persons as nodes,
// parent/child and partnership relationships as edges, and the family units
// derived from them.
//
// # Overview
//
// A family tree is drawn with one junction point ("hub") per family rather
// than one line per parent/child pair. A family is identified by its set of
// parents, so the two parent_child edges A→C and B→C belong to the same
// family as the partnership edge A–B:
//
//	v := tree.NewSnapshot(persons, edges)
//	for _, f := range tree.Families(v) {
//	    fmt.Println(f.Key, f.Kind, len(f.Children))
//	}
//
// # Derived state
//
// Family units are never stored. [Families], [ChildrenOf] and [FamilyOf]
// are pure functions of a [View] and are recomputed on every layout pass,
// so they cannot go stale when persons or edges change.
//
// # Ordering
//
// Siblings are ordered by ascending child ID. Families are ordered by key.
// Both orders are independent of insertion order, which keeps anchor
// election and rendering deterministic across clients.
//
// # Invariants
//
// [Validate] checks that edges reference existing persons and that the
// parent_child relation is acyclic. The mutable store in package store
// enforces both on every local mutation.
package tree
