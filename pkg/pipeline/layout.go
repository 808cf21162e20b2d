package pipeline

import (
	"context"
	"time"

	"github.com/matzehuels/kinship/pkg/graph"
	"github.com/matzehuels/kinship/pkg/layout"
	"github.com/matzehuels/kinship/pkg/observability"
	"github.com/matzehuels/kinship/pkg/tree"
)

// ComputeLayout derives the diagram of snap. With AutoPlace, persons
// without a position are placed on generation tiers first; otherwise they
// end up in Layout.Unplaced.
func ComputeLayout(ctx context.Context, in Input, opts Options) graph.Layout {
	snap := in.Snapshot
	if snap == nil {
		snap = &tree.Snapshot{}
	}
	observability.Pipeline().OnLayoutStart(ctx, snap.PersonCount())
	start := time.Now()

	var positions map[string]tree.Point
	if opts.AutoPlace {
		positions = layout.Place(snap, opts.Layout)
	}
	l := graph.FromDiagram(in.GraphID, in.Name, layout.Compute(snap, positions, opts.Layout))

	observability.Pipeline().OnLayoutComplete(ctx, time.Since(start), nil)
	return l
}
