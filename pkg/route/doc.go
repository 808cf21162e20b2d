// Package route turns family connectors into drawable orthogonal paths.
//
// Each connector has a [Role] and, for hub-to-child connectors, the shared
// [Geometry] of its family. [Route] maps that to a [Path]:
//
//	partnership             horizontal line at the partners' shared y
//	parent_to_hub, single   vertical from the parent down to the hub
//	parent_to_hub, partner  elbow: across at parent y, down to the hub
//	hub_to_child, anchor    trunk to branchY, bus minX..maxX, drop to child
//	hub_to_child, other     drop from branchY to the child
//	hub_to_child, invalid   orthogonal fallback between the endpoints
//
// Paths are polylines in diagram units; [Path.D] renders SVG path data.
package route
