// Package layout computes the family-hub diagram of a tree.
//
// Every family with children gets one hub below its parents. Parents are
// joined to the hub, and the hub is joined to its children through a shared
// horizontal bus:
//
//	 A ─────── B
//	 └───┬─────┘      parent_to_hub (elbows)
//	     │            trunk, drawn by the anchor only
//	 ┌───┼─────┐      bus at branchY, minX..maxX
//	 C   D     E      hub_to_child drops
//
// [Compute] is a pure function of a [tree.View], optional position
// overrides and a [Config]. It recomputes hubs, geometry and anchors from
// scratch on every call, so nothing has to be invalidated when the tree
// changes.
//
// [Place] assigns generation tiers to persons who have not been placed yet,
// for trees imported without coordinates.
package layout
