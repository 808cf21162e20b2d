package tree

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// FamilyKind tells whether a family hub joins one parent or several partners.
type FamilyKind int

const (
	// FamilySingle is a hub with exactly one parent.
	FamilySingle FamilyKind = iota + 1
	// FamilyPartner is a hub shared by two (or more) parents.
	FamilyPartner
)

// String returns the wire name of the family kind.
func (k FamilyKind) String() string {
	switch k {
	case FamilySingle:
		return "single"
	case FamilyPartner:
		return "partner"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k FamilyKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *FamilyKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "single":
		*k = FamilySingle
	case "partner":
		*k = FamilyPartner
	default:
		return fmt.Errorf("unknown family kind %q", b)
	}
	return nil
}

// keySep joins parent IDs inside a FamilyKey. Person IDs are UUIDs and never
// contain it.
const keySep = "+"

// FamilyKey identifies a family by its set of parents. Two keys are equal
// exactly when the parent sets are equal, regardless of edge direction or
// insertion order.
type FamilyKey string

// KeyOf builds the key for a parent set. Duplicates and empty IDs are ignored.
func KeyOf(parents ...string) FamilyKey {
	ids := make([]string, 0, len(parents))
	for _, p := range parents {
		if p != "" {
			ids = append(ids, p)
		}
	}
	slices.Sort(ids)
	return FamilyKey(strings.Join(slices.Compact(ids), keySep))
}

// Parents returns the sorted parent IDs encoded in the key.
func (k FamilyKey) Parents() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), keySep)
}

// Kind derives the family kind from the number of parents in the key.
func (k FamilyKey) Kind() FamilyKind {
	if len(k.Parents()) > 1 {
		return FamilyPartner
	}
	return FamilySingle
}

// HubID returns the synthetic node ID used for the family's hub in rendered
// output.
func (k FamilyKey) HubID() string { return "hub:" + string(k) }

// ChildLink is one child of a family together with the parent_child edges
// that connect it to the family's parents.
type ChildLink struct {
	Child   string   `json:"child"`
	EdgeIDs []string `json:"edge_ids"`
}

// FamilyUnit is the derived junction of a parent set and its children.
// It is never stored; [Families] recomputes it from the current view.
type FamilyUnit struct {
	Key          FamilyKey   `json:"key"`
	Kind         FamilyKind  `json:"kind"`
	Parents      []string    `json:"parents"`
	Children     []ChildLink `json:"children,omitempty"`
	PartnerEdges []string    `json:"partner_edges,omitempty"`
}

// familyIndex groups edges by family in a single pass over the view.
type familyIndex struct {
	families map[FamilyKey]*FamilyUnit
	edgeKey  map[string]FamilyKey
}

func buildIndex(v View) familyIndex {
	present := make(map[string]bool)
	for _, p := range v.Persons() {
		present[p.ID] = true
	}

	parentsOf := make(map[string][]string)
	edgesInto := make(map[string][]string)
	var partnerships []Edge
	for _, e := range v.Edges() {
		if !present[e.Source] || !present[e.Target] || e.Source == e.Target {
			continue
		}
		switch e.Kind {
		case KindParentChild:
			parentsOf[e.Target] = append(parentsOf[e.Target], e.Source)
			edgesInto[e.Target] = append(edgesInto[e.Target], e.ID)
		case KindPartnership:
			partnerships = append(partnerships, e)
		}
	}

	idx := familyIndex{
		families: make(map[FamilyKey]*FamilyUnit),
		edgeKey:  make(map[string]FamilyKey),
	}
	unit := func(key FamilyKey) *FamilyUnit {
		f, ok := idx.families[key]
		if !ok {
			f = &FamilyUnit{Key: key, Kind: key.Kind(), Parents: key.Parents()}
			idx.families[key] = f
		}
		return f
	}

	for child, parents := range parentsOf {
		key := KeyOf(parents...)
		edgeIDs := slices.Clone(edgesInto[child])
		slices.Sort(edgeIDs)
		f := unit(key)
		f.Children = append(f.Children, ChildLink{Child: child, EdgeIDs: edgeIDs})
		for _, id := range edgeIDs {
			idx.edgeKey[id] = key
		}
	}
	for _, e := range partnerships {
		a, b := e.Partners()
		key := KeyOf(a, b)
		f := unit(key)
		f.PartnerEdges = append(f.PartnerEdges, e.ID)
		idx.edgeKey[e.ID] = key
	}

	for _, f := range idx.families {
		sortChildren(f.Children)
		slices.Sort(f.PartnerEdges)
	}
	return idx
}

// sortChildren orders siblings by ascending child ID. This is the only
// ordering used for anchor election and left-to-right placement, so it must
// not depend on map iteration or arrival order.
func sortChildren(links []ChildLink) {
	slices.SortFunc(links, func(a, b ChildLink) int { return cmp.Compare(a.Child, b.Child) })
}

// Families groups the view's relationships into family units, one per
// distinct parent set that has at least one child or partnership edge.
// The result is sorted by key. Edges that name persons missing from the
// view are ignored.
func Families(v View) []FamilyUnit {
	idx := buildIndex(v)
	out := make([]FamilyUnit, 0, len(idx.families))
	for _, f := range idx.families {
		out = append(out, *f)
	}
	slices.SortFunc(out, func(a, b FamilyUnit) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

// ChildrenOf returns the children of the family identified by key, ordered
// by ascending child ID. It returns nil for unknown keys and for families
// that only consist of a partnership.
func ChildrenOf(v View, key FamilyKey) []ChildLink {
	f, ok := buildIndex(v).families[key]
	if !ok {
		return nil
	}
	return f.Children
}

// FamilyOf returns the key of the family an edge belongs to. For a
// parent_child edge that is the key of the child's full parent set, so both
// edges of a two-parent child resolve to the same family.
func FamilyOf(v View, edgeID string) (FamilyKey, bool) {
	key, ok := buildIndex(v).edgeKey[edgeID]
	return key, ok
}
