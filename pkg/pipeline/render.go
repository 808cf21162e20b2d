package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/matzehuels/kinship/pkg/graph"
	"github.com/matzehuels/kinship/pkg/observability"
	"github.com/matzehuels/kinship/pkg/render"
	"github.com/matzehuels/kinship/pkg/render/nodelink"
	"github.com/matzehuels/kinship/pkg/render/svg"
	"github.com/matzehuels/kinship/pkg/tree"
)

// Render generates output artifacts in the requested formats.
//
// JSON is always the layout itself and DOT always the Graphviz source of
// the tree. SVG, PNG and PDF come from the configured renderer; PNG and PDF
// need rsvg-convert.
func Render(ctx context.Context, l graph.Layout, snap *tree.Snapshot, opts Options) (artifacts map[string][]byte, err error) {
	observability.Pipeline().OnRenderStart(ctx, opts.Formats)
	start := time.Now()
	defer func() {
		observability.Pipeline().OnRenderComplete(ctx, opts.Formats, time.Since(start), err)
	}()

	if snap == nil {
		snap = &tree.Snapshot{}
	}
	var image []byte
	drawn := func() ([]byte, error) {
		if image != nil {
			return image, nil
		}
		var err error
		if opts.IsNodelink() {
			image, err = nodelink.RenderSVG(ctx, nodelink.ToDOT(snap, nodelink.Options{Detailed: opts.Detailed}))
		} else {
			image = svg.Render(l, svgOptions(l, opts)...)
		}
		return image, err
	}

	artifacts = make(map[string][]byte, len(opts.Formats))
	for _, format := range opts.Formats {
		var data []byte
		var err error

		switch format {
		case graph.FormatJSON:
			data, err = graph.MarshalLayout(l)
		case graph.FormatDOT:
			data = []byte(nodelink.ToDOT(snap, nodelink.Options{Detailed: opts.Detailed}))
		case graph.FormatSVG:
			data, err = drawn()
		case graph.FormatPNG:
			if data, err = drawn(); err == nil {
				data, err = render.ToPNG(ctx, data, opts.Scale)
			}
		case graph.FormatPDF:
			if data, err = drawn(); err == nil {
				data, err = render.ToPDF(ctx, data)
			}
		default:
			return nil, fmt.Errorf("unsupported format: %s", format)
		}

		if err != nil {
			return nil, fmt.Errorf("render %s: %w", format, err)
		}
		artifacts[format] = data
	}
	return artifacts, nil
}

func svgOptions(l graph.Layout, opts Options) []svg.Option {
	var out []svg.Option
	if l.Name != "" {
		out = append(out, svg.WithTitle(l.Name))
	}
	if opts.Style == StyleMono {
		out = append(out, svg.WithStyle(svg.Mono{}))
	}
	return out
}
