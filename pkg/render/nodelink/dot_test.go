package nodelink

import (
	"context"
	"strings"
	"testing"

	"github.com/matzehuels/kinship/pkg/tree"
)

func smiths() *tree.Snapshot {
	return tree.NewSnapshot(
		[]tree.Person{
			{ID: "ann", FirstName: "Ann", BirthDate: "1950"},
			{ID: "bob", FirstName: "Bob", ClaimedBy: "u1"},
			{ID: "cat", FirstName: "Cat"},
			{ID: "dan", FirstName: "Dan"},
		},
		[]tree.Edge{
			{ID: "e1", Kind: tree.KindPartnership, Source: "ann", Target: "bob"},
			{ID: "e2", Kind: tree.KindParentChild, Source: "ann", Target: "cat"},
			{ID: "e3", Kind: tree.KindParentChild, Source: "bob", Target: "cat"},
			{ID: "e4", Kind: tree.KindPartnership, Source: "cat", Target: "dan"},
		},
	)
}

func TestToDOT(t *testing.T) {
	dot := ToDOT(smiths(), Options{})

	wants := []string{
		"digraph G {",
		`"ann" [label="Ann"]`,
		`"bob" [label="Bob", penwidth=2.5]`,
		`"hub:ann+bob" [shape=point`,
		`"ann" -> "hub:ann+bob" [dir=none]`,
		`"bob" -> "hub:ann+bob" [dir=none]`,
		`"hub:ann+bob" -> "cat";`,
		`{ rank=same; "cat" -> "dan" [dir=none]; }`,
	}
	for _, want := range wants {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q\n%s", want, dot)
		}
	}
	if strings.Contains(dot, "hub:cat+dan") {
		t.Error("childless partnership got a hub")
	}
}

func TestToDOT_Detailed(t *testing.T) {
	dot := ToDOT(smiths(), Options{Detailed: true})
	if !strings.Contains(dot, `label="Ann\n1950 – "`) {
		t.Errorf("detailed label missing dates:\n%s", dot)
	}
	if !strings.Contains(dot, `"cat" [label="Cat"]`) {
		t.Errorf("person without dates should keep a plain label:\n%s", dot)
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="62pt" height="116pt" viewBox="0.00 0.00 62.00 116.00" xmlns="http://www.w3.org/2000/svg"><g/></svg>`)
	got := string(normalizeViewBox(in))
	want := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 62.00 116.00" width="62" height="116"><g/></svg>`
	if got != want {
		t.Errorf("normalizeViewBox = %s, want %s", got, want)
	}
	if got := string(normalizeViewBox([]byte("<svg/>"))); got != "<svg/>" {
		t.Errorf("no viewBox = %s, want unchanged", got)
	}
}

func TestRenderSVG(t *testing.T) {
	svg, err := RenderSVG(context.Background(), ToDOT(smiths(), Options{}))
	if err != nil {
		t.Fatalf("RenderSVG: %v", err)
	}
	if !strings.Contains(string(svg), "<svg") || !strings.Contains(string(svg), "Ann") {
		t.Errorf("unexpected SVG output: %.200s", svg)
	}
}
