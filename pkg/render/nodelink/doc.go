// Package nodelink renders family trees as Graphviz node-link diagrams.
//
// # Overview
//
// Unlike the diagram sink, which draws the positions collaborators chose,
// this package lets Graphviz place everything. It is the quickest way to
// look at a tree that has no positions yet.
//
// # Usage
//
// Convert a tree to DOT format, then render to SVG:
//
//	dot := nodelink.ToDOT(snap, nodelink.Options{Detailed: true})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// For PDF or PNG output:
//
//	pdf, err := nodelink.RenderPDF(ctx, dot)
//	png, err := nodelink.RenderPNG(ctx, dot, 2.0)  // 2x scale
//
// # DOT Format
//
// Families follow the same model as the diagram: a family with children is
// a point-shaped hub node named by [tree.FamilyKey.HubID]. Parents connect
// to the hub, the hub connects to each child.
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering. PDF and PNG conversion requires librsvg (rsvg-convert).
package nodelink
