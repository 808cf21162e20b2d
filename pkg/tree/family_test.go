package tree

import (
	"slices"
	"testing"
)

func person(id string) Person { return Person{ID: id} }

func pc(id, parent, child string) Edge {
	return Edge{ID: id, Kind: KindParentChild, Source: parent, Target: child}
}

func partner(id, a, b string) Edge {
	return Edge{ID: id, Kind: KindPartnership, Source: a, Target: b}
}

// twoParentFamily is A and B with children C, D and E.
func twoParentFamily() *Snapshot {
	return NewSnapshot(
		[]Person{person("A"), person("B"), person("C"), person("D"), person("E")},
		[]Edge{
			partner("p1", "A", "B"),
			pc("e1", "A", "C"), pc("e2", "B", "C"),
			pc("e3", "A", "D"), pc("e4", "B", "D"),
			pc("e5", "A", "E"), pc("e6", "B", "E"),
		},
	)
}

func TestKeyOf(t *testing.T) {
	tests := []struct {
		name    string
		parents []string
		want    FamilyKey
	}{
		{"single", []string{"A"}, "A"},
		{"sorted", []string{"B", "A"}, "A+B"},
		{"dedup", []string{"A", "A", "B"}, "A+B"},
		{"skip empty", []string{"", "A"}, "A"},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeyOf(tt.parents...); got != tt.want {
				t.Errorf("KeyOf(%v) = %q, want %q", tt.parents, got, tt.want)
			}
		})
	}
}

func TestFamilyKey_Kind(t *testing.T) {
	if got := KeyOf("A").Kind(); got != FamilySingle {
		t.Errorf("Kind() = %v, want single", got)
	}
	if got := KeyOf("A", "B").Kind(); got != FamilyPartner {
		t.Errorf("Kind() = %v, want partner", got)
	}
	if got := KeyOf("A", "B").HubID(); got != "hub:A+B" {
		t.Errorf("HubID() = %q, want hub:A+B", got)
	}
}

func TestFamilies_TwoParents(t *testing.T) {
	fams := Families(twoParentFamily())
	if len(fams) != 1 {
		t.Fatalf("len(Families) = %d, want 1", len(fams))
	}
	f := fams[0]
	if f.Key != "A+B" {
		t.Errorf("Key = %q, want A+B", f.Key)
	}
	if f.Kind != FamilyPartner {
		t.Errorf("Kind = %v, want partner", f.Kind)
	}
	if !slices.Equal(f.Parents, []string{"A", "B"}) {
		t.Errorf("Parents = %v, want [A B]", f.Parents)
	}
	if len(f.Children) != 3 {
		t.Fatalf("len(Children) = %d, want 3", len(f.Children))
	}
	if !slices.Equal(f.Children[0].EdgeIDs, []string{"e1", "e2"}) {
		t.Errorf("Children[0].EdgeIDs = %v, want [e1 e2]", f.Children[0].EdgeIDs)
	}
	if !slices.Equal(f.PartnerEdges, []string{"p1"}) {
		t.Errorf("PartnerEdges = %v, want [p1]", f.PartnerEdges)
	}
}

func TestFamilies_SingleParent(t *testing.T) {
	v := NewSnapshot([]Person{person("A"), person("C")}, []Edge{pc("e1", "A", "C")})
	fams := Families(v)
	if len(fams) != 1 {
		t.Fatalf("len(Families) = %d, want 1", len(fams))
	}
	if fams[0].Key != "A" || fams[0].Kind != FamilySingle {
		t.Errorf("family = %q/%v, want A/single", fams[0].Key, fams[0].Kind)
	}
}

func TestFamilies_PartnershipWithoutChildren(t *testing.T) {
	v := NewSnapshot([]Person{person("A"), person("B")}, []Edge{partner("p1", "B", "A")})
	fams := Families(v)
	if len(fams) != 1 {
		t.Fatalf("len(Families) = %d, want 1", len(fams))
	}
	if fams[0].Key != "A+B" {
		t.Errorf("Key = %q, want A+B", fams[0].Key)
	}
	if len(fams[0].Children) != 0 {
		t.Errorf("Children = %v, want none", fams[0].Children)
	}
}

func TestFamilies_HalfSiblingsSplit(t *testing.T) {
	// C has parents A and B; D has only A. They belong to different hubs.
	v := NewSnapshot(
		[]Person{person("A"), person("B"), person("C"), person("D")},
		[]Edge{pc("e1", "A", "C"), pc("e2", "B", "C"), pc("e3", "A", "D")},
	)
	fams := Families(v)
	if len(fams) != 2 {
		t.Fatalf("len(Families) = %d, want 2", len(fams))
	}
	if fams[0].Key != "A" || fams[1].Key != "A+B" {
		t.Errorf("keys = %q, %q, want A, A+B", fams[0].Key, fams[1].Key)
	}
}

func TestFamilies_IgnoresDanglingEdges(t *testing.T) {
	v := NewSnapshot([]Person{person("A")}, []Edge{pc("e1", "A", "ghost")})
	if fams := Families(v); len(fams) != 0 {
		t.Errorf("Families = %v, want none", fams)
	}
}

func TestChildrenOf_OrderIndependentOfInsertion(t *testing.T) {
	edges := []Edge{pc("z", "A", "E"), pc("y", "A", "C"), pc("x", "A", "D")}
	persons := []Person{person("E"), person("D"), person("C"), person("A")}

	want := []string{"C", "D", "E"}
	for i := range 3 {
		rotated := append(slices.Clone(edges[i:]), edges[:i]...)
		links := ChildrenOf(NewSnapshot(persons, rotated), "A")
		got := make([]string, len(links))
		for j, l := range links {
			got[j] = l.Child
		}
		if !slices.Equal(got, want) {
			t.Errorf("rotation %d: ChildrenOf = %v, want %v", i, got, want)
		}
	}
}

func TestChildrenOf_Unknown(t *testing.T) {
	if got := ChildrenOf(twoParentFamily(), "nobody"); got != nil {
		t.Errorf("ChildrenOf(unknown) = %v, want nil", got)
	}
}

func TestFamilyOf(t *testing.T) {
	v := twoParentFamily()
	for _, id := range []string{"e1", "e2", "e6", "p1"} {
		key, ok := FamilyOf(v, id)
		if !ok || key != "A+B" {
			t.Errorf("FamilyOf(%s) = %q, %v, want A+B, true", id, key, ok)
		}
	}
	if _, ok := FamilyOf(v, "missing"); ok {
		t.Error("FamilyOf(missing) should not be found")
	}
}

// Every parent_child edge resolves to a family whose parents include the
// edge's source.
func TestFamilyOf_ContainsParent(t *testing.T) {
	v := twoParentFamily()
	fams := make(map[FamilyKey]FamilyUnit)
	for _, f := range Families(v) {
		fams[f.Key] = f
	}
	for _, e := range v.Edges() {
		if e.Kind != KindParentChild {
			continue
		}
		key, ok := FamilyOf(v, e.ID)
		if !ok {
			t.Fatalf("FamilyOf(%s) not found", e.ID)
		}
		if !slices.Contains(fams[key].Parents, e.Source) {
			t.Errorf("family %q does not contain parent %s", key, e.Source)
		}
	}
}
