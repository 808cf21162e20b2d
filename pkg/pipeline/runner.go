package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/kinship/pkg/cache"
	"github.com/matzehuels/kinship/pkg/graph"
	"github.com/matzehuels/kinship/pkg/observability"
	"github.com/matzehuels/kinship/pkg/tree"
)

// Runner encapsulates pipeline execution with caching.
//
// The Runner is stateless except for the cache and logger. Multiple
// goroutines can safely use the same Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Cache: c, Keyer: keyer, Logger: logger}
}

// Execute runs the complete layout → render pipeline with caching.
func (r *Runner) Execute(ctx context.Context, in Input, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if in.Snapshot == nil {
		in.Snapshot = &tree.Snapshot{}
	}

	result := &Result{SnapshotHash: SnapshotHash(in.Snapshot)}
	result.Stats.PersonCount = in.Snapshot.PersonCount()
	result.Stats.EdgeCount = in.Snapshot.EdgeCount()

	layoutStart := time.Now()
	l, layoutHit, err := r.LayoutWithCacheInfo(ctx, in, opts)
	if err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	result.Layout = l
	result.Stats.LayoutTime = time.Since(layoutStart)
	result.Stats.Unplaced = len(l.Unplaced)
	result.Stats.Fallbacks = l.Fallbacks()
	result.CacheInfo.LayoutHit = layoutHit

	r.Logger.Info("computed layout",
		"persons", result.Stats.PersonCount,
		"hubs", len(l.Hubs),
		"connectors", len(l.Connectors),
		"unplaced", result.Stats.Unplaced,
		"cached", layoutHit,
		"duration", result.Stats.LayoutTime)
	if result.Stats.Fallbacks > 0 {
		r.Logger.Warn("connectors drawn with fallback route", "count", result.Stats.Fallbacks)
	}

	renderStart := time.Now()
	artifacts, renderHit, err := r.RenderWithCacheInfo(ctx, l, in.Snapshot, opts)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	result.Artifacts = artifacts
	result.Stats.RenderTime = time.Since(renderStart)
	result.CacheInfo.RenderHit = renderHit

	r.Logger.Info("rendered outputs",
		"formats", opts.Formats,
		"cached", renderHit,
		"duration", result.Stats.RenderTime)

	return result, nil
}

// LayoutWithCacheInfo computes a layout with caching and reports whether it
// came from the cache.
func (r *Runner) LayoutWithCacheInfo(ctx context.Context, in Input, opts Options) (graph.Layout, bool, error) {
	opts.SetDefaults()
	if in.Snapshot == nil {
		in.Snapshot = &tree.Snapshot{}
	}
	key := r.Keyer.LayoutKey(SnapshotHash(in.Snapshot)+":"+in.GraphID+":"+in.Name, opts.LayoutKeyOpts())

	if !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err != nil {
			r.Logger.Debug("layout cache read failed", "error", err)
		} else if hit {
			if cached, err := graph.UnmarshalLayout(data); err == nil {
				observability.Cache().OnCacheHit(ctx, cache.KeyTypeLayout)
				return cached, true, nil
			}
		}
		observability.Cache().OnCacheMiss(ctx, cache.KeyTypeLayout)
	}

	l := ComputeLayout(ctx, in, opts)

	if data, err := graph.MarshalLayout(l); err == nil {
		if err := r.Cache.Set(ctx, key, data, cache.DefaultLayoutTTL); err != nil {
			r.Logger.Debug("layout cache write failed", "error", err)
		} else {
			observability.Cache().OnCacheSet(ctx, cache.KeyTypeLayout, len(data))
		}
	}
	return l, false, nil
}

// RenderWithCacheInfo renders artifacts with caching and reports whether all
// of them came from the cache.
func (r *Runner) RenderWithCacheInfo(ctx context.Context, l graph.Layout, snap *tree.Snapshot, opts Options) (map[string][]byte, bool, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, false, err
	}
	if snap == nil {
		snap = &tree.Snapshot{}
	}

	layoutData, err := graph.MarshalLayout(l)
	if err != nil {
		return nil, false, fmt.Errorf("serialize layout for cache key: %w", err)
	}
	// The DOT and nodelink outputs depend on the tree, not only the layout.
	base := cache.Hash([]byte(SnapshotHash(snap) + cache.Hash(layoutData)))

	if !opts.Refresh {
		artifacts := make(map[string][]byte, len(opts.Formats))
		for _, format := range opts.Formats {
			data, hit, err := r.Cache.Get(ctx, r.Keyer.ArtifactKey(base, opts.ArtifactKeyOpts(format)))
			if err != nil || !hit {
				break
			}
			artifacts[format] = data
		}
		if len(artifacts) == len(opts.Formats) {
			observability.Cache().OnCacheHit(ctx, cache.KeyTypeArtifact)
			return artifacts, true, nil
		}
		observability.Cache().OnCacheMiss(ctx, cache.KeyTypeArtifact)
	}

	rendered, err := Render(ctx, l, snap, opts)
	if err != nil {
		return nil, false, err
	}

	for format, data := range rendered {
		key := r.Keyer.ArtifactKey(base, opts.ArtifactKeyOpts(format))
		if err := r.Cache.Set(ctx, key, data, cache.DefaultArtifactTTL); err != nil {
			r.Logger.Debug("artifact cache write failed", "format", format, "error", err)
			continue
		}
		observability.Cache().OnCacheSet(ctx, cache.KeyTypeArtifact, len(data))
	}
	return rendered, false, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// SnapshotHash is the content hash of a tree: equal trees hash equally no
// matter how they were built.
func SnapshotHash(snap *tree.Snapshot) string {
	data, err := graph.MarshalGraph(graph.FromView("", "", snap))
	if err != nil {
		return ""
	}
	return cache.Hash(data)
}
