// Package pipeline turns a family tree into diagrams.
//
// This package implements the snapshot → layout → render pipeline shared by
// the CLI commands and the serve command. Both stages are cached: layouts
// by snapshot content and layout options, artifacts by layout content and
// render options.
//
// # Architecture
//
// The pipeline consists of two stages:
//
//  1. Layout: place persons (optionally filling missing positions), derive
//     hubs and route every connector ([layout.Compute])
//  2. Render: produce SVG, PNG, PDF, DOT or JSON from the layout
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Input{GraphID: id, Snapshot: snap}, pipeline.Options{
//	    Formats: []string{"svg", "png"},
//	})
//	svg := result.Artifacts["svg"]
package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/kinship/pkg/cache"
	"github.com/matzehuels/kinship/pkg/graph"
	"github.com/matzehuels/kinship/pkg/layout"
	"github.com/matzehuels/kinship/pkg/tree"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and Server
// =============================================================================

// Renderers.
const (
	// RendererDiagram draws the computed layout as is.
	RendererDiagram = "diagram"
	// RendererNodelink lets Graphviz place the tree.
	RendererNodelink = "nodelink"
)

// Styles of the diagram renderer.
const (
	StyleSimple = "simple"
	StyleMono   = "mono"
)

const (
	DefaultRenderer = RendererDiagram
	DefaultStyle    = StyleSimple
	DefaultScale    = 2.0
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	graph.FormatSVG:  true,
	graph.FormatPNG:  true,
	graph.FormatPDF:  true,
	graph.FormatDOT:  true,
	graph.FormatJSON: true,
}

// ValidStyles is the set of supported visual styles.
var ValidStyles = map[string]bool{
	StyleSimple: true,
	StyleMono:   true,
}

// ValidRenderers is the set of supported renderers.
var ValidRenderers = map[string]bool{
	RendererDiagram:  true,
	RendererNodelink: true,
}

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for the pipeline.
// This struct supports JSON serialization for HTTP requests.
type Options struct {
	// Layout options
	Layout    layout.Config `json:"layout"`
	AutoPlace bool          `json:"auto_place,omitempty"`

	// Render options
	Renderer string   `json:"renderer,omitempty"`
	Formats  []string `json:"formats,omitempty"`
	Style    string   `json:"style,omitempty"`
	Scale    float64  `json:"scale,omitempty"`
	Detailed bool     `json:"detailed,omitempty"`
	Refresh  bool     `json:"refresh,omitempty"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`
}

// Input is the tree the pipeline runs on.
type Input struct {
	GraphID  string
	Name     string
	Snapshot *tree.Snapshot
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// SnapshotHash is the content hash of the input tree.
	SnapshotHash string

	// Layout is the computed diagram in wire form.
	Layout graph.Layout

	// Artifacts contains rendered outputs keyed by format.
	Artifacts map[string][]byte

	Stats     Stats
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	PersonCount int
	EdgeCount   int
	Unplaced    int
	Fallbacks   int
	LayoutTime  time.Duration
	RenderTime  time.Duration
}

// CacheInfo tracks cache hits for each pipeline stage.
type CacheInfo struct {
	LayoutHit bool // Whether the layout came from cache
	RenderHit bool // Whether all artifacts came from cache
}

// =============================================================================
// Validation Functions
// =============================================================================

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return fmt.Errorf("invalid format: %q (must be one of: svg, png, pdf, dot, json)", format)
	}
	return nil
}

// ValidateFormats checks that all formats are valid.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if err := ValidateFormat(f); err != nil {
			return err
		}
	}
	return nil
}

// ValidateStyle checks that a style is valid.
func ValidateStyle(style string) error {
	if !ValidStyles[style] {
		return fmt.Errorf("invalid style: %q (must be one of: simple, mono)", style)
	}
	return nil
}

// ValidateRenderer checks that a renderer is valid.
func ValidateRenderer(renderer string) error {
	if !ValidRenderers[renderer] {
		return fmt.Errorf("invalid renderer: %q (must be one of: diagram, nodelink)", renderer)
	}
	return nil
}

// =============================================================================
// Options Methods
// =============================================================================

// SetDefaults fills unset fields. A zero layout config means the default
// config. It is idempotent.
func (o *Options) SetDefaults() {
	if o.Layout == (layout.Config{}) {
		o.Layout = layout.DefaultConfig()
	}
	if o.Renderer == "" {
		o.Renderer = DefaultRenderer
	}
	if len(o.Formats) == 0 {
		o.Formats = []string{graph.FormatSVG}
	}
	if o.Style == "" {
		o.Style = DefaultStyle
	}
	if o.Scale <= 0 {
		o.Scale = DefaultScale
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// ValidateAndSetDefaults applies defaults and checks every field.
func (o *Options) ValidateAndSetDefaults() error {
	o.SetDefaults()
	if err := ValidateRenderer(o.Renderer); err != nil {
		return err
	}
	if err := ValidateFormats(o.Formats); err != nil {
		return err
	}
	return ValidateStyle(o.Style)
}

// IsNodelink returns true if Graphviz draws the tree.
func (o *Options) IsNodelink() bool {
	return o.Renderer == RendererNodelink
}

// LayoutKeyOpts returns cache key options for layout computation.
func (o *Options) LayoutKeyOpts() cache.LayoutKeyOpts {
	return cache.LayoutKeyOpts{
		ConfigHash: cache.HashJSON(o.Layout),
		AutoPlace:  o.AutoPlace,
	}
}

// ArtifactKeyOpts returns cache key options for artifact rendering.
func (o *Options) ArtifactKeyOpts(format string) cache.ArtifactKeyOpts {
	return cache.ArtifactKeyOpts{
		Format:   format,
		Renderer: o.Renderer,
		Style:    o.Style,
		Scale:    o.Scale,
		Detailed: o.Detailed,
	}
}
