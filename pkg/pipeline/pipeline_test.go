package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/kinship/pkg/cache"
	"github.com/matzehuels/kinship/pkg/graph"
	"github.com/matzehuels/kinship/pkg/layout"
	"github.com/matzehuels/kinship/pkg/tree"
)

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"svg", false},
		{"png", false},
		{"pdf", false},
		{"dot", false},
		{"json", false},
		{"invalid", true},
		{"SVG", true},
		{"", true},
	}

	for _, tt := range tests {
		err := ValidateFormat(tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
	}
}

func TestValidateStyleAndRenderer(t *testing.T) {
	if err := ValidateStyle("mono"); err != nil {
		t.Errorf("ValidateStyle(mono) = %v", err)
	}
	if err := ValidateStyle("handdrawn"); err == nil {
		t.Error("ValidateStyle(handdrawn) should fail")
	}
	if err := ValidateRenderer("nodelink"); err != nil {
		t.Errorf("ValidateRenderer(nodelink) = %v", err)
	}
	if err := ValidateRenderer("fan"); err == nil {
		t.Error("ValidateRenderer(fan) should fail")
	}
}

func TestOptionsDefaults(t *testing.T) {
	var opts Options
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("ValidateAndSetDefaults: %v", err)
	}
	if opts.Layout != layout.DefaultConfig() {
		t.Errorf("Layout = %+v, want defaults", opts.Layout)
	}
	if opts.Renderer != DefaultRenderer || opts.Style != DefaultStyle || opts.Scale != DefaultScale {
		t.Errorf("defaults = %s %s %v", opts.Renderer, opts.Style, opts.Scale)
	}
	if len(opts.Formats) != 1 || opts.Formats[0] != "svg" {
		t.Errorf("Formats = %v, want [svg]", opts.Formats)
	}

	again := opts
	if err := again.ValidateAndSetDefaults(); err != nil || again.Layout != opts.Layout || again.Renderer != opts.Renderer {
		t.Error("ValidateAndSetDefaults is not idempotent")
	}

	custom := Options{Layout: layout.Config{HubOffset: 30, BranchFraction: 0.3, TierSpacing: 100, SiblingSpacing: 100}}
	custom.SetDefaults()
	if custom.Layout.HubOffset != 30 {
		t.Error("SetDefaults replaced an explicit layout config")
	}

	bad := Options{Formats: []string{"svg", "gif"}}
	if err := bad.ValidateAndSetDefaults(); err == nil {
		t.Error("unsupported format should fail")
	}
}

func TestKeyOpts(t *testing.T) {
	a := Options{}
	a.SetDefaults()
	b := a
	b.Layout.BranchFraction = 0.25
	if a.LayoutKeyOpts() == b.LayoutKeyOpts() {
		t.Error("layout config does not change the layout key")
	}
	if a.ArtifactKeyOpts("svg") == a.ArtifactKeyOpts("png") {
		t.Error("format does not change the artifact key")
	}
}

func family() *tree.Snapshot {
	at := func(x, y float64) *tree.Point { return &tree.Point{X: x, Y: y} }
	return tree.NewSnapshot(
		[]tree.Person{
			{ID: "ann", FirstName: "Ann", Position: at(20, 0)},
			{ID: "bob", FirstName: "Bob", Position: at(220, 0)},
			{ID: "cat", FirstName: "Cat", Position: at(120, 160)},
			{ID: "dan", FirstName: "Dan"},
		},
		[]tree.Edge{
			{ID: "e1", Kind: tree.KindPartnership, Source: "ann", Target: "bob"},
			{ID: "e2", Kind: tree.KindParentChild, Source: "ann", Target: "cat"},
			{ID: "e3", Kind: tree.KindParentChild, Source: "bob", Target: "cat"},
			{ID: "e4", Kind: tree.KindParentChild, Source: "cat", Target: "dan"},
		},
	)
}

func TestComputeLayout(t *testing.T) {
	opts := Options{}
	opts.SetDefaults()

	l := ComputeLayout(context.Background(), Input{GraphID: "g1", Snapshot: family()}, opts)
	if len(l.Unplaced) != 1 || l.Unplaced[0] != "dan" {
		t.Errorf("Unplaced = %v, want [dan]", l.Unplaced)
	}

	opts.AutoPlace = true
	l = ComputeLayout(context.Background(), Input{GraphID: "g1", Snapshot: family()}, opts)
	if len(l.Unplaced) != 0 || len(l.Nodes) != 4 {
		t.Errorf("auto-placed layout has %d nodes, %v unplaced", len(l.Nodes), l.Unplaced)
	}
	if l.GraphID != "g1" {
		t.Errorf("GraphID = %q, want g1", l.GraphID)
	}
}

func TestRender(t *testing.T) {
	opts := Options{Formats: []string{"svg", "json", "dot"}}
	opts.SetDefaults()
	in := Input{GraphID: "g1", Name: "Smiths", Snapshot: family()}
	l := ComputeLayout(context.Background(), in, opts)

	out, err := Render(context.Background(), l, in.Snapshot, opts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(string(out["svg"]), "<title>Smiths</title>") {
		t.Error("svg missing title")
	}
	if !strings.HasPrefix(string(out["dot"]), "digraph G {") {
		t.Errorf("dot = %.40s", out["dot"])
	}
	var back graph.Layout
	if err := json.Unmarshal(out["json"], &back); err != nil || back.GraphID != "g1" {
		t.Errorf("json = %v, %v", back.GraphID, err)
	}

	opts.Formats = []string{"gif"}
	if _, err := Render(context.Background(), l, in.Snapshot, opts); err == nil {
		t.Error("unsupported format should fail")
	}
}

// countingCache is an in-memory cache that counts hits.
type countingCache struct {
	mu   sync.Mutex
	data map[string][]byte
	hits int
}

func (c *countingCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[key]
	if ok {
		c.hits++
	}
	return d, ok, nil
}

func (c *countingCache) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = data
	return nil
}

func (c *countingCache) Delete(_ context.Context, key string) error { return nil }
func (c *countingCache) Close() error                               { return nil }

func TestRunner_Execute(t *testing.T) {
	ctx := context.Background()
	c := &countingCache{}
	r := NewRunner(c, nil, log.New(io.Discard))
	in := Input{GraphID: "g1", Snapshot: family()}
	opts := Options{Formats: []string{"svg", "json"}, AutoPlace: true}

	first, err := r.Execute(ctx, in, opts)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if first.CacheInfo.LayoutHit || first.CacheInfo.RenderHit {
		t.Error("first run hit the cache")
	}
	if first.Stats.PersonCount != 4 || first.Stats.EdgeCount != 4 || first.Stats.Unplaced != 0 {
		t.Errorf("stats = %+v", first.Stats)
	}
	if len(first.Artifacts) != 2 || first.SnapshotHash == "" {
		t.Errorf("artifacts = %d, hash = %q", len(first.Artifacts), first.SnapshotHash)
	}

	second, err := r.Execute(ctx, in, opts)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if !second.CacheInfo.LayoutHit || !second.CacheInfo.RenderHit {
		t.Errorf("second run cache info = %+v, want both hits", second.CacheInfo)
	}
	if string(second.Artifacts["svg"]) != string(first.Artifacts["svg"]) {
		t.Error("cached svg differs from rendered svg")
	}

	opts.Refresh = true
	third, _ := r.Execute(ctx, in, opts)
	if third.CacheInfo.LayoutHit || third.CacheInfo.RenderHit {
		t.Error("refresh run hit the cache")
	}

	changed := Input{GraphID: "g1", Snapshot: tree.NewSnapshot(append(family().Persons(), tree.Person{ID: "eve"}), family().Edges())}
	fourth, _ := r.Execute(ctx, changed, Options{Formats: []string{"svg", "json"}, AutoPlace: true})
	if fourth.CacheInfo.LayoutHit {
		t.Error("changed tree hit the layout cache")
	}
}

func TestRunner_InvalidOptions(t *testing.T) {
	r := NewRunner(nil, nil, log.New(io.Discard))
	if _, err := r.Execute(context.Background(), Input{}, Options{Style: "neon"}); err == nil {
		t.Error("invalid style should fail")
	}
}

func TestRunner_FileCache(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	r := NewRunner(fc, nil, log.New(io.Discard))
	defer r.Close()

	in := Input{Snapshot: family()}
	if _, err := r.Execute(context.Background(), in, Options{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	res, err := r.Execute(context.Background(), in, Options{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.CacheInfo.LayoutHit || !res.CacheInfo.RenderHit {
		t.Errorf("file cache info = %+v, want both hits", res.CacheInfo)
	}
}

func TestSnapshotHash(t *testing.T) {
	if SnapshotHash(family()) != SnapshotHash(family()) {
		t.Error("SnapshotHash should be deterministic")
	}
	moved := family().Persons()
	moved[0].Position = &tree.Point{X: 21, Y: 0}
	if SnapshotHash(tree.NewSnapshot(moved, family().Edges())) == SnapshotHash(family()) {
		t.Error("moving a person should change the hash")
	}
}
