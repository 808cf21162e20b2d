package svg

import (
	"bytes"
	"strings"
	"testing"

	"github.com/matzehuels/kinship/pkg/graph"
	"github.com/matzehuels/kinship/pkg/layout"
	"github.com/matzehuels/kinship/pkg/tree"
)

func smithLayout(t *testing.T) graph.Layout {
	t.Helper()
	at := func(x, y float64) *tree.Point { return &tree.Point{X: x, Y: y} }
	snap := tree.NewSnapshot(
		[]tree.Person{
			{ID: "ann", FirstName: "Ann", BirthDate: "1950", Position: at(20, 0)},
			{ID: "bob", FirstName: "Bob <Jr>", ClaimedBy: "u1", Position: at(220, 0)},
			{ID: "cat", FirstName: "Cat", Position: at(120, 160)},
		},
		[]tree.Edge{
			{ID: "e1", Kind: tree.KindPartnership, Source: "ann", Target: "bob"},
			{ID: "e2", Kind: tree.KindParentChild, Source: "ann", Target: "cat"},
			{ID: "e3", Kind: tree.KindParentChild, Source: "bob", Target: "cat"},
		},
	)
	cfg := layout.DefaultConfig()
	return graph.FromDiagram("g1", "Smiths", layout.Compute(snap, nil, cfg))
}

func TestRender(t *testing.T) {
	out := string(Render(smithLayout(t), WithTitle("Smiths & co")))

	wants := []string{
		`<svg xmlns="http://www.w3.org/2000/svg"`,
		`<title>Smiths &amp; co</title>`,
		`class="connector partnership"`,
		`class="connector hub_to_child"`,
		`class="hub partner"`,
		`<g id="person-bob" class="card claimed">`,
		`Bob &lt;Jr&gt;`,
		`* 1950`,
		"</svg>\n",
	}
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("SVG missing %q", want)
		}
	}
	if strings.Contains(out, ` fallback"`) {
		t.Error("unexpected fallback connector")
	}
	if strings.Index(out, "<path") > strings.Index(out, "<rect") {
		t.Error("connectors must be drawn below cards")
	}
}

func TestRender_Deterministic(t *testing.T) {
	l := smithLayout(t)
	if a, b := Render(l), Render(l); !bytes.Equal(a, b) {
		t.Error("two renders of the same layout differ")
	}
}

func TestRender_Options(t *testing.T) {
	l := smithLayout(t)

	out := string(Render(l, WithoutHubs(), WithStyle(Mono{})))
	if strings.Contains(out, "<circle") {
		t.Error("WithoutHubs still drew hubs")
	}
	if !strings.Contains(out, "font-family: serif") {
		t.Error("Mono style defs missing")
	}

	out = string(Render(l, WithCardSize(200, 50), WithMargin(0)))
	// Bounds span x 20..220, so the view box starts half a card left of 20.
	if !strings.Contains(out, `viewBox="-80.0 `) {
		t.Errorf("view box ignores card size: %.120s", out)
	}
}

func TestRender_Empty(t *testing.T) {
	out := string(Render(graph.Layout{}))
	if !strings.Contains(out, `viewBox="0.0 0.0 48.0 48.0"`) {
		t.Errorf("empty render = %.120s", out)
	}
}

func TestRender_FallbackClass(t *testing.T) {
	l := graph.Layout{Connectors: []graph.Connector{{ID: "c1", Fallback: true, D: "M0,0 V10"}, {ID: "c2"}}}
	out := string(Render(l))
	if !strings.Contains(out, `class="connector role(0) fallback"`) {
		t.Errorf("fallback connector not marked:\n%s", out)
	}
	if strings.Contains(out, `id="c2"`) {
		t.Error("connector without path data was drawn")
	}
}

func TestTruncateLabel(t *testing.T) {
	tests := []struct {
		label string
		width float64
		want  string
	}{
		{"Ann", 110, "Ann"},
		{"Bartholomew Maximilian Smithington", 110, "Bartholomew Maximilia…"},
		{"Zoë", 5, "Zoë"},
	}
	for _, tt := range tests {
		if got := TruncateLabel(tt.label, tt.width, 8); got != tt.want {
			t.Errorf("TruncateLabel(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}
