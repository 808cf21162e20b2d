package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	kerrors "github.com/matzehuels/kinship/pkg/errors"
	"github.com/matzehuels/kinship/pkg/graph"
	"github.com/matzehuels/kinship/pkg/pipeline"
)

// renderFlags holds the command-line flags for the render command. Empty
// values fall back to the [render] section of the config.
type renderFlags struct {
	output    string
	graphID   string
	formats   string
	renderer  string
	style     string
	scale     float64
	detailed  bool
	autoPlace bool
	noCache   bool
	refresh   bool
}

// renderCommand creates the render command.
func (c *CLI) renderCommand() *cobra.Command {
	var f renderFlags

	cmd := &cobra.Command{
		Use:   "render [tree.json | tree.layout.json]",
		Short: "Draw a family tree as SVG, PNG, PDF or DOT",
		Long: `Draw a family tree.

The input is a snapshot file, a layout file written by 'layout', or, with
--graph, a tree loaded from the backend. The diagram renderer draws the
computed layout; the nodelink renderer lets Graphviz place the tree instead.

PNG and PDF output needs rsvg-convert on the PATH.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return c.runRender(cmd.Context(), path, f)
		},
	}

	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file (single format) or base path (several)")
	cmd.Flags().StringVarP(&f.graphID, "graph", "g", "", "load the tree from the backend")
	cmd.Flags().StringVarP(&f.formats, "format", "f", "", "output format(s): svg, png, pdf, dot, json (comma-separated)")
	cmd.Flags().StringVarP(&f.renderer, "renderer", "r", "", "renderer: diagram or nodelink")
	cmd.Flags().StringVar(&f.style, "style", "", "diagram style: simple or mono")
	cmd.Flags().Float64Var(&f.scale, "scale", 0, "PNG scale factor")
	cmd.Flags().BoolVar(&f.detailed, "detailed", false, "show life dates (nodelink)")
	cmd.Flags().BoolVar(&f.autoPlace, "auto-place", false, "place persons without a position automatically")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "recompute even if cached")
	c.layoutConfigFlags(cmd)

	return cmd
}

// options merges the flags over the configured defaults.
func (f renderFlags) options(base pipeline.Options) (pipeline.Options, error) {
	if formats := parseFormats(f.formats); formats != nil {
		base.Formats = formats
	}
	if f.renderer != "" {
		base.Renderer = f.renderer
	}
	if f.style != "" {
		base.Style = f.style
	}
	if f.scale > 0 {
		base.Scale = f.scale
	}
	base.Detailed = f.detailed
	base.AutoPlace = f.autoPlace
	base.Refresh = f.refresh
	if err := base.ValidateAndSetDefaults(); err != nil {
		return base, kerrors.Wrap(kerrors.ErrCodeInvalidInput, err, "%v", err)
	}
	return base, nil
}

func (c *CLI) runRender(ctx context.Context, path string, f renderFlags) error {
	opts, err := f.options(c.pipelineOptions())
	if err != nil {
		return err
	}
	in, err := c.loadInput(ctx, path, f.graphID)
	if err != nil {
		return err
	}

	var artifacts map[string][]byte
	if in.Layout != nil {
		artifacts, err = renderLayout(ctx, *in.Layout, opts)
		if err != nil {
			return err
		}
		printSuccess("Rendered %s", path)
	} else {
		runner, err := c.newRunner(f.noCache)
		if err != nil {
			return fmt.Errorf("initialize runner: %w", err)
		}
		defer runner.Close()

		spinner := newSpinner(ctx, "Rendering...")
		spinner.Start()
		result, err := runner.Execute(ctx, in.Input, opts)
		if err != nil {
			spinner.StopWithError("Render failed")
			return err
		}
		spinner.Stop()
		artifacts = result.Artifacts

		printSuccess("Rendered %s", displayName(in))
		printStats(result.Stats.PersonCount, result.Stats.EdgeCount, result.Stats.Unplaced,
			result.CacheInfo.LayoutHit && result.CacheInfo.RenderHit)
		if result.Stats.Fallbacks > 0 {
			printWarning("%s drawn with the fallback route", plural(result.Stats.Fallbacks, "connector"))
		}
	}

	paths, err := writeArtifacts(artifacts, opts.Formats, outputBase(f.output, in.Base))
	if err != nil {
		return err
	}
	for _, p := range paths {
		printFile(p)
	}
	return nil
}

// renderLayout draws a precomputed layout. Only outputs that need nothing
// but the layout are possible.
func renderLayout(ctx context.Context, l graph.Layout, opts pipeline.Options) (map[string][]byte, error) {
	if opts.IsNodelink() {
		return nil, kerrors.New(kerrors.ErrCodeUnsupported, "the nodelink renderer needs a tree, not a layout")
	}
	for _, format := range opts.Formats {
		if format == graph.FormatDOT {
			return nil, kerrors.New(kerrors.ErrCodeUnsupported, "DOT output needs a tree, not a layout")
		}
	}
	return pipeline.Render(ctx, l, nil, opts)
}

func displayName(in *treeInput) string {
	switch {
	case in.Name != "":
		return in.Name
	case in.GraphID != "":
		return in.GraphID
	default:
		return filepath.Base(in.Base)
	}
}

// outputBase derives the output path without extension. An --output with
// a known format extension is taken as a base path.
func outputBase(output, inputBase string) string {
	if output == "" {
		return inputBase
	}
	ext := filepath.Ext(output)
	if pipeline.ValidFormats[strings.TrimPrefix(ext, ".")] {
		return strings.TrimSuffix(output, ext)
	}
	return output
}

// writeArtifacts writes base.<format> for every format, in the requested
// order, and returns the paths written.
func writeArtifacts(artifacts map[string][]byte, formats []string, base string) ([]string, error) {
	if len(formats) == 0 {
		for f := range artifacts {
			formats = append(formats, f)
		}
		sort.Strings(formats)
	}
	var paths []string
	for _, format := range formats {
		data, ok := artifacts[format]
		if !ok {
			continue
		}
		path := base + "." + format
		if format == graph.FormatJSON {
			path = base + ".layout.json"
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return paths, fmt.Errorf("create %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
