package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/kinship/pkg/render"
	"github.com/matzehuels/kinship/pkg/tree"
)

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed adds life dates to person labels.
	// When false, only the display name is shown.
	Detailed bool
}

// ToDOT converts a tree to Graphviz DOT format for node-link visualization.
// The resulting DOT string can be rendered using [RenderSVG], [RenderPDF], or [RenderPNG].
//
// Every family with children gets a point-shaped hub node; parents join the
// hub without arrowheads and the hub points at each child. Partners without
// children are joined by a plain line on the same rank. Claimed persons are
// drawn with a bold outline.
func ToDOT(v tree.View, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=18, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [arrowsize=0.6];\n")
	buf.WriteString("  ranksep=0.6;\n")
	buf.WriteString("  nodesep=0.4;\n")
	buf.WriteString("\n")

	for _, p := range v.Persons() {
		fmt.Fprintf(&buf, "  %q [%s];\n", p.ID, strings.Join(fmtAttrs(p, opts.Detailed), ", "))
	}

	buf.WriteString("\n")
	for _, f := range tree.Families(v) {
		if len(f.Children) == 0 {
			if len(f.Parents) == 2 {
				fmt.Fprintf(&buf, "  { rank=same; %q -> %q [dir=none]; }\n", f.Parents[0], f.Parents[1])
			}
			continue
		}
		hub := f.Key.HubID()
		fmt.Fprintf(&buf, "  %q [shape=point, width=0.08, label=\"\"];\n", hub)
		for _, parent := range f.Parents {
			fmt.Fprintf(&buf, "  %q -> %q [dir=none];\n", parent, hub)
		}
		for _, c := range f.Children {
			fmt.Fprintf(&buf, "  %q -> %q;\n", hub, c.Child)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(p tree.Person, detailed bool) string {
	if !detailed || (p.BirthDate == "" && p.DeathDate == "") {
		return p.DisplayName()
	}
	return p.DisplayName() + "\n" + p.BirthDate + " – " + p.DeathDate
}

func fmtAttrs(p tree.Person, detailed bool) []string {
	attrs := []string{fmt.Sprintf("label=%q", fmtLabel(p, detailed))}
	if p.Claimed() {
		attrs = append(attrs, "penwidth=2.5")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
// Returns the SVG bytes ready for display or further conversion with [render.ToPDF] or [render.ToPNG].
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's pt-sized root element with a unitless
// one so the SVG scales like the diagram sink's output.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}

// RenderPDF renders a DOT graph as PDF via SVG conversion.
//
// Requires librsvg: brew install librsvg (macOS), apt install librsvg2-bin (Linux).
func RenderPDF(ctx context.Context, dot string) ([]byte, error) {
	svg, err := RenderSVG(ctx, dot)
	if err != nil {
		return nil, err
	}
	return render.ToPDF(ctx, svg)
}

// RenderPNG renders a DOT graph as PNG via SVG conversion.
// A scale of 2.0 produces a 2x resolution image suitable for high-DPI displays.
func RenderPNG(ctx context.Context, dot string, scale float64) ([]byte, error) {
	svg, err := RenderSVG(ctx, dot)
	if err != nil {
		return nil, err
	}
	return render.ToPNG(ctx, svg, scale)
}
