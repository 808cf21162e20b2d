package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	kerrors "github.com/matzehuels/kinship/pkg/errors"
	"github.com/matzehuels/kinship/pkg/graph"
)

type layoutFlags struct {
	output    string
	graphID   string
	noCache   bool
	refresh   bool
	autoPlace bool
}

// layoutCommand creates the layout command for computing diagrams.
func (c *CLI) layoutCommand() *cobra.Command {
	var f layoutFlags

	cmd := &cobra.Command{
		Use:   "layout [tree.json]",
		Short: "Compute the diagram of a family tree",
		Long: `Compute the diagram of a family tree.

The tree is read from a snapshot file or, with --graph, from the backend.
The result is a layout.json file holding every person card, family hub and
routed connector, which 'render' turns into SVG, PNG or PDF.

Persons without a stored position are reported as unplaced unless
--auto-place assigns them one. Results are cached locally.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return c.runLayout(cmd.Context(), path, f)
		},
	}

	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file (default: <input>.layout.json)")
	cmd.Flags().StringVarP(&f.graphID, "graph", "g", "", "load the tree from the backend")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "recompute even if cached")
	cmd.Flags().BoolVar(&f.autoPlace, "auto-place", false, "place persons without a position automatically")
	c.layoutConfigFlags(cmd)

	return cmd
}

// layoutConfigFlags binds the branch policy flags to the loaded config.
// Flags are applied after the config file, so they win.
func (c *CLI) layoutConfigFlags(cmd *cobra.Command) {
	var (
		mode     string
		fraction float64
		offset   float64
	)
	cmd.Flags().StringVar(&mode, "branch-mode", "", "bus placement: fraction or offset")
	cmd.Flags().Float64Var(&fraction, "branch-fraction", 0, "bus height as a fraction of hub-to-child distance")
	cmd.Flags().Float64Var(&offset, "branch-offset", 0, "bus distance below the hub")

	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		l := &c.Config.Layout
		if cmd.Flags().Changed("branch-mode") {
			if err := l.BranchMode.UnmarshalText([]byte(mode)); err != nil {
				return kerrors.Wrap(kerrors.ErrCodeInvalidInput, err, "%v", err)
			}
		}
		if cmd.Flags().Changed("branch-fraction") {
			l.BranchFraction = fraction
		}
		if cmd.Flags().Changed("branch-offset") {
			l.BranchOffset = offset
		}
		return c.Config.Validate()
	}
}

// runLayout loads the tree, computes the layout and writes it.
func (c *CLI) runLayout(ctx context.Context, path string, f layoutFlags) error {
	in, err := c.loadInput(ctx, path, f.graphID)
	if err != nil {
		return err
	}
	if in.Layout != nil {
		return kerrors.New(kerrors.ErrCodeInvalidInput, "%s already is a layout", path)
	}

	runner, err := c.newRunner(f.noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	opts := c.pipelineOptions()
	opts.AutoPlace = f.autoPlace
	opts.Refresh = f.refresh

	l, cacheHit, err := runner.LayoutWithCacheInfo(ctx, in.Input, opts)
	if err != nil {
		return fmt.Errorf("compute layout: %w", err)
	}

	outputPath := f.output
	if outputPath == "" {
		outputPath = in.Base + ".layout.json"
	}
	if err := graph.WriteLayoutFile(l, outputPath); err != nil {
		return fmt.Errorf("write output %s: %w", outputPath, err)
	}

	printSuccess("Layout complete")
	printFile(outputPath)
	printStats(in.Snapshot.PersonCount(), in.Snapshot.EdgeCount(), len(l.Unplaced), cacheHit)
	if n := l.Fallbacks(); n > 0 {
		printWarning("%s drawn with the fallback route", plural(n, "connector"))
	}
	printNewline()
	printNextStep("Render", appName+" render "+outputPath)
	return nil
}
