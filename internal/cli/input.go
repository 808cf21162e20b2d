package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kerrors "github.com/matzehuels/kinship/pkg/errors"
	"github.com/matzehuels/kinship/pkg/graph"
	"github.com/matzehuels/kinship/pkg/pipeline"
)

// treeInput is what layout and render work on: either a tree, read from a
// snapshot file or the backend, or a precomputed layout.
type treeInput struct {
	pipeline.Input

	// Layout is set when the input file already holds a layout.
	Layout *graph.Layout
	// Base is the default output path without extension.
	Base string
}

// loadInput reads the tree named by exactly one of path and graphID.
func (c *CLI) loadInput(ctx context.Context, path, graphID string) (*treeInput, error) {
	switch {
	case path != "" && graphID != "":
		return nil, kerrors.New(kerrors.ErrCodeInvalidInput, "pass either a file or --graph, not both")
	case graphID != "":
		return c.loadRemote(ctx, graphID)
	case path != "":
		return loadFile(path)
	default:
		return nil, kerrors.New(kerrors.ErrCodeInvalidInput, "pass a snapshot file or --graph")
	}
}

func (c *CLI) loadRemote(ctx context.Context, graphID string) (*treeInput, error) {
	if err := kerrors.ValidateID("graph", graphID); err != nil {
		return nil, err
	}
	pg, err := c.openPostgres(ctx)
	if err != nil {
		return nil, err
	}
	defer pg.Close()

	spinner := newSpinner(ctx, "Loading tree "+graphID+"...")
	spinner.Start()
	g, err := pg.LoadGraph(ctx, graphID)
	spinner.Stop()
	if err != nil {
		return nil, err
	}
	return &treeInput{
		Input: pipeline.Input{GraphID: g.ID, Name: g.Name, Snapshot: g.Snapshot()},
		Base:  graphID,
	}, nil
}

// loadFile reads a snapshot or layout file. Layout files are recognized by
// their bounds.
func loadFile(path string) (*treeInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kerrors.Wrap(kerrors.ErrCodeFileNotFound, err, "%s does not exist", path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	in := &treeInput{Base: strings.TrimSuffix(path, filepath.Ext(path))}

	if isLayout(data) {
		l, err := graph.UnmarshalLayout(data)
		if err != nil {
			return nil, fmt.Errorf("load layout %s: %w", path, err)
		}
		in.GraphID, in.Name, in.Layout = l.GraphID, l.Name, &l
		in.Base = strings.TrimSuffix(in.Base, ".layout")
		return in, nil
	}

	g, snap, err := graph.ReadGraph(bytes.NewReader(data))
	if err != nil {
		return nil, kerrors.Wrap(kerrors.ErrCodeInvalidInput, err, "load tree %s: %v", path, err)
	}
	in.Input = pipeline.Input{GraphID: g.ID, Name: g.Name, Snapshot: snap}
	return in, nil
}

func isLayout(data []byte) bool {
	var probe struct {
		Bounds json.RawMessage `json:"bounds"`
	}
	return json.Unmarshal(data, &probe) == nil && len(probe.Bounds) > 0
}
