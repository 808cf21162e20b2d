package layout

import (
	"math"

	"github.com/matzehuels/kinship/pkg/route"
	"github.com/matzehuels/kinship/pkg/tree"
)

// =============================================================================
// Diagram
// =============================================================================

// Diagram is the drawable form of a tree: placed persons, family hubs and
// routed connectors. It is recomputed from a view and never stored.
type Diagram struct {
	Nodes      []Node      `json:"nodes"`
	Hubs       []Hub       `json:"hubs,omitempty"`
	Connectors []Connector `json:"connectors,omitempty"`

	// Unplaced lists persons that have no usable position and are
	// therefore not drawn.
	Unplaced []string `json:"unplaced,omitempty"`

	Bounds Bounds `json:"bounds"`
}

// Node is a placed person.
type Node struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Position  tree.Point `json:"position"`
	BirthDate string     `json:"birth_date,omitempty"`
	DeathDate string     `json:"death_date,omitempty"`
	Claimed   bool       `json:"claimed,omitempty"`
}

// Hub is the junction point of a family with at least one child.
type Hub struct {
	ID       string          `json:"id"`
	Key      tree.FamilyKey  `json:"key"`
	Kind     tree.FamilyKind `json:"kind"`
	Position tree.Point      `json:"position"`
	Parents  []string        `json:"parents"`
	Children []string        `json:"children"`
}

// Connector is one drawn line of the diagram with its routing metadata.
//
// Source and Target are node or hub IDs. EdgeIDs lists the stored edges the
// connector represents: the partnership edge, the parent's edges into the
// family's children, or the child's edges from its parents.
type Connector struct {
	ID         string          `json:"id"`
	Role       route.Role      `json:"role"`
	FamilyKind tree.FamilyKind `json:"family_kind"`
	FamilyKey  tree.FamilyKey  `json:"family_key"`
	Source     string          `json:"source"`
	Target     string          `json:"target"`
	EdgeIDs    []string        `json:"edge_ids,omitempty"`
	Geometry   *route.Geometry `json:"geometry,omitempty"`
	Path       route.Path      `json:"path"`
}

// Bounds is the bounding box of everything placed in a diagram.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Width returns the horizontal extent.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Height returns the vertical extent.
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// Anchors returns the hub_to_child connectors that draw the bus, keyed by
// family.
func (d *Diagram) Anchors() map[tree.FamilyKey][]Connector {
	out := make(map[tree.FamilyKey][]Connector)
	for _, c := range d.Connectors {
		if c.Role == route.RoleHubToChild && c.Geometry != nil && c.Geometry.IsAnchor {
			out[c.FamilyKey] = append(out[c.FamilyKey], c)
		}
	}
	return out
}

// =============================================================================
// Compute
// =============================================================================

// Compute derives the diagram for v. Positions in the optional positions map
// take precedence over the persons' own positions; persons without either
// are listed in Diagram.Unplaced.
//
// For every family whose parents are all placed, Compute puts the hub below
// the parents, computes the shared bus geometry over the family's children
// and elects the first placed child in [tree.ChildrenOf] order as anchor.
// If any child is unplaced or not below the hub, the family's geometry
// carries a NaN branchY and its placed children are routed with the
// fallback.
//
// Compute is pure: the same view, positions and config always give the same
// diagram.
func Compute(v tree.View, positions map[string]tree.Point, cfg Config) *Diagram {
	d := &Diagram{}
	pos := make(map[string]tree.Point)
	for _, p := range v.Persons() {
		at, ok := positions[p.ID]
		if !ok && p.Position != nil {
			at, ok = *p.Position, true
		}
		if !ok || !at.Finite() {
			d.Unplaced = append(d.Unplaced, p.ID)
			continue
		}
		pos[p.ID] = at
		d.Nodes = append(d.Nodes, Node{
			ID:        p.ID,
			Label:     p.DisplayName(),
			Position:  at,
			BirthDate: p.BirthDate,
			DeathDate: p.DeathDate,
			Claimed:   p.Claimed(),
		})
	}

	source := make(map[string]string)
	for _, e := range v.Edges() {
		if e.Kind != tree.KindPartnership {
			source[e.ID] = e.Source
			continue
		}
		a, b := e.Partners()
		pa, okA := pos[a]
		pb, okB := pos[b]
		if !okA || !okB || a == b {
			continue
		}
		d.Connectors = append(d.Connectors, Connector{
			ID:         e.ID,
			Role:       route.RolePartnership,
			FamilyKind: tree.FamilyPartner,
			FamilyKey:  tree.KeyOf(a, b),
			Source:     a,
			Target:     b,
			EdgeIDs:    []string{e.ID},
			Path:       route.Route(route.Connector{Role: route.RolePartnership, Source: pa, Target: pb}),
		})
	}

	for _, f := range tree.Families(v) {
		if len(f.Children) == 0 {
			continue
		}
		hubAt, ok := HubPoint(f, pos, cfg)
		if !ok {
			continue
		}
		d.addFamily(f, hubAt, pos, source, cfg)
	}

	d.Bounds = d.bounds()
	return d
}

// HubPoint places the hub of f: below a single parent, or centered under
// partners at the lowest partner's height. It reports false when a parent is
// unplaced.
func HubPoint(f tree.FamilyUnit, pos map[string]tree.Point, cfg Config) (tree.Point, bool) {
	if len(f.Parents) == 0 {
		return tree.Point{}, false
	}
	var sumX float64
	maxY := math.Inf(-1)
	for _, id := range f.Parents {
		p, ok := pos[id]
		if !ok || !p.Finite() {
			return tree.Point{}, false
		}
		sumX += p.X
		maxY = math.Max(maxY, p.Y)
	}
	return tree.Point{X: sumX / float64(len(f.Parents)), Y: maxY + cfg.HubOffset}, true
}

// FamilyGeometry computes the bus shared by all children of a family, with
// IsAnchor unset. minX and maxX span the children only; a single child
// collapses the bus to a point.
func FamilyGeometry(hub tree.Point, children []tree.ChildLink, pos map[string]tree.Point, cfg Config) route.Geometry {
	g := route.Geometry{BranchY: math.NaN(), MinX: math.NaN(), MaxX: math.NaN()}
	if len(children) == 0 {
		return g
	}
	minX, maxX, minY := math.Inf(1), math.Inf(-1), math.Inf(1)
	complete := true
	for _, c := range children {
		p, ok := pos[c.Child]
		if !ok || !p.Finite() {
			complete = false
			continue
		}
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
	}
	if minX > maxX {
		return g
	}
	g.MinX, g.MaxX = minX, maxX
	if complete {
		g.BranchY = cfg.BranchY(hub.Y, minY)
	}
	return g
}

// addFamily appends the hub and connectors of one family. source maps
// parent_child edge IDs to their parent.
func (d *Diagram) addFamily(f tree.FamilyUnit, hubAt tree.Point, pos map[string]tree.Point, source map[string]string, cfg Config) {
	hubID := f.Key.HubID()
	hub := Hub{ID: hubID, Key: f.Key, Kind: f.Kind, Position: hubAt, Parents: f.Parents}
	for _, c := range f.Children {
		hub.Children = append(hub.Children, c.Child)
	}
	d.Hubs = append(d.Hubs, hub)

	for _, parent := range f.Parents {
		var edges []string
		for _, c := range f.Children {
			for _, id := range c.EdgeIDs {
				if source[id] == parent {
					edges = append(edges, id)
				}
			}
		}
		d.Connectors = append(d.Connectors, Connector{
			ID:         hubID + "/parent/" + parent,
			Role:       route.RoleParentToHub,
			FamilyKind: f.Kind,
			FamilyKey:  f.Key,
			Source:     parent,
			Target:     hubID,
			EdgeIDs:    edges,
			Path: route.Route(route.Connector{
				Role:       route.RoleParentToHub,
				FamilyKind: f.Kind,
				Source:     pos[parent],
				Target:     hubAt,
			}),
		})
	}

	shared := FamilyGeometry(hubAt, f.Children, pos, cfg)
	anchored := false
	for _, c := range f.Children {
		at, ok := pos[c.Child]
		if !ok {
			continue
		}
		g := shared
		g.IsAnchor = !anchored
		anchored = true
		d.Connectors = append(d.Connectors, Connector{
			ID:         hubID + "/child/" + c.Child,
			Role:       route.RoleHubToChild,
			FamilyKind: f.Kind,
			FamilyKey:  f.Key,
			Source:     hubID,
			Target:     c.Child,
			EdgeIDs:    c.EdgeIDs,
			Geometry:   &g,
			Path: route.Route(route.Connector{
				Role:       route.RoleHubToChild,
				FamilyKind: f.Kind,
				Source:     hubAt,
				Target:     at,
				Geometry:   &g,
			}),
		})
	}
}

func (d *Diagram) bounds() Bounds {
	b := Bounds{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	grow := func(p tree.Point) {
		b.MinX = math.Min(b.MinX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	for _, n := range d.Nodes {
		grow(n.Position)
	}
	for _, h := range d.Hubs {
		grow(h.Position)
	}
	if b.MinX > b.MaxX {
		return Bounds{}
	}
	return b
}
