// Package store holds the live, mutable copy of a tree.
//
// A [Store] is owned by one viewing session. Local edits and change-feed
// reconciliation both write through its methods; the pure model and layout
// functions read from it through [tree.View] or from an immutable
// [Store.Snapshot].
//
// # Idempotence
//
// The change feed may deliver an event more than once and may echo a local
// optimistic edit after it has already been applied. Every mutation is
// therefore keyed by ID and safe to repeat:
//
//	s.AddNode(p)  // inserts
//	s.AddNode(p)  // no-op, revision unchanged
//	s.DeleteNode("missing") // no-op
//
// # Ordering
//
// Nodes and edges travel on separate tables with no order between them. An
// edge that arrives before its endpoints is parked and promoted when they
// appear; an edge that arrives after one of its endpoints was deleted is
// dropped. Deleting a person always removes every edge touching them.
package store
