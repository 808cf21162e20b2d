// Package svg draws computed family tree diagrams as SVG.
//
// The input is a [graph.Layout]: persons become cards centered on their
// position, family hubs become dots and connectors are drawn with the path
// data the router produced. Nothing is re-laid out, so what collaborators
// see in their clients and what this package draws agree exactly.
//
//	l := graph.FromDiagram(id, name, diagram)
//	out := svg.Render(l, svg.WithStyle(svg.Mono{}))
//
// Fallback connectors carry the "fallback" class so styles can mark them.
package svg
