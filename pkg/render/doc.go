// Package render turns family tree diagrams into visual outputs.
//
// # Overview
//
// This package contains the output side of the pipeline. It provides:
//
//   - Generic format conversion (SVG to PDF/PNG)
//   - A direct SVG drawing of computed diagrams (in [svg] subpackage)
//   - Graphviz node-link diagrams (in [nodelink] subpackage)
//
// # Format Conversion
//
// The [ToPDF] and [ToPNG] functions convert any SVG to other formats using
// the external rsvg-convert tool (from librsvg). Both renderers use them.
//
//	out := svg.Render(l)
//	pdf, err := render.ToPDF(ctx, out)
//	png, err := render.ToPNG(ctx, out, 2.0)  // 2x scale
//
// # Diagram SVG
//
// The [svg] subpackage draws a [graph.Layout] exactly as computed: persons
// as cards, family hubs as dots and every connector with the path data the
// router produced.
//
// # Node-Link Diagrams
//
// The [nodelink] subpackage lets Graphviz lay the tree out on its own,
// which is useful for trees nobody has positioned yet.
//
//	dot := nodelink.ToDOT(snap, nodelink.Options{})
//	out, err := nodelink.RenderSVG(ctx, dot)
//
// [svg]: github.com/matzehuels/kinship/pkg/render/svg
// [nodelink]: github.com/matzehuels/kinship/pkg/render/nodelink
// [graph.Layout]: github.com/matzehuels/kinship/pkg/graph#Layout
package render
