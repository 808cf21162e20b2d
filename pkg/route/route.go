package route

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/matzehuels/kinship/pkg/tree"
)

// Role is the part a connector plays in a family diagram.
type Role int

const (
	// RolePartnership is the line between two partners.
	RolePartnership Role = iota + 1
	// RoleParentToHub joins a parent to their family hub.
	RoleParentToHub
	// RoleHubToChild joins a family hub to one child.
	RoleHubToChild
)

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RolePartnership:
		return "partnership"
	case RoleParentToHub:
		return "parent_to_hub"
	case RoleHubToChild:
		return "hub_to_child"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	for _, role := range []Role{RolePartnership, RoleParentToHub, RoleHubToChild} {
		if role.String() == string(b) {
			*r = role
			return nil
		}
	}
	return fmt.Errorf("unknown connector role %q", b)
}

// Geometry is the shared bus of a family: every child connector of a family
// carries the same BranchY, MinX and MaxX. Exactly one child, the anchor,
// also draws the trunk from the hub and the bus itself.
type Geometry struct {
	BranchY  float64 `json:"branch_y"`
	MinX     float64 `json:"min_x"`
	MaxX     float64 `json:"max_x"`
	IsAnchor bool    `json:"is_anchor"`
}

// geometryJSON mirrors Geometry with nullable numbers, since JSON has no NaN.
type geometryJSON struct {
	BranchY  *float64 `json:"branch_y"`
	MinX     *float64 `json:"min_x"`
	MaxX     *float64 `json:"max_x"`
	IsAnchor bool     `json:"is_anchor"`
}

// MarshalJSON encodes non-finite values as null.
func (g Geometry) MarshalJSON() ([]byte, error) {
	opt := func(v float64) *float64 {
		if !finite(v) {
			return nil
		}
		return &v
	}
	return json.Marshal(geometryJSON{
		BranchY:  opt(g.BranchY),
		MinX:     opt(g.MinX),
		MaxX:     opt(g.MaxX),
		IsAnchor: g.IsAnchor,
	})
}

// UnmarshalJSON decodes null values as NaN.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	var raw geometryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	val := func(p *float64) float64 {
		if p == nil {
			return math.NaN()
		}
		return *p
	}
	*g = Geometry{BranchY: val(raw.BranchY), MinX: val(raw.MinX), MaxX: val(raw.MaxX), IsAnchor: raw.IsAnchor}
	return nil
}

// Connector is everything the router needs to draw one edge.
//
// For RoleParentToHub Source is the parent and Target the hub. For
// RoleHubToChild Source is the hub and Target the child. For RolePartnership
// Source and Target are the two partners.
type Connector struct {
	Role       Role
	FamilyKind tree.FamilyKind
	Source     tree.Point
	Target     tree.Point
	Geometry   *Geometry
}

// Route turns a connector into a drawable path according to its role, family
// kind and geometry. Hub-to-child connectors whose geometry is missing or
// invalid get an orthogonal fallback with Path.Fallback set.
func Route(c Connector) Path {
	switch c.Role {
	case RolePartnership:
		return partnership(c.Source, c.Target)
	case RoleParentToHub:
		switch c.FamilyKind {
		case tree.FamilySingle:
			return Path{Segments: []Segment{{c.Source, tree.Point{X: c.Source.X, Y: c.Target.Y}}}}
		case tree.FamilyPartner:
			return Path{Segments: []Segment{{
				c.Source,
				{X: c.Target.X, Y: c.Source.Y},
				c.Target,
			}}}
		default:
			return Fallback(c.Source, c.Target)
		}
	case RoleHubToChild:
		if !ValidGeometry(c.Geometry, c.Source, c.Target) {
			return Fallback(c.Source, c.Target)
		}
		g := c.Geometry
		drop := Segment{{X: c.Target.X, Y: g.BranchY}, c.Target}
		if !g.IsAnchor {
			return Path{Segments: []Segment{drop}}
		}
		// The bus always reaches the trunk, even when the hub sits outside
		// the children's extent.
		left, right := math.Min(g.MinX, c.Source.X), math.Max(g.MaxX, c.Source.X)
		return Path{Segments: []Segment{
			{c.Source, {X: c.Source.X, Y: g.BranchY}},
			{{X: left, Y: g.BranchY}, {X: right, Y: g.BranchY}},
			drop,
		}}
	default:
		return Fallback(c.Source, c.Target)
	}
}

// ValidGeometry reports whether g can be drawn between hub and child: all
// values finite, a non-empty bus containing the child's x, and BranchY
// strictly between the hub and the child.
func ValidGeometry(g *Geometry, hub, child tree.Point) bool {
	if g == nil || !hub.Finite() || !child.Finite() {
		return false
	}
	if !finite(g.BranchY) || !finite(g.MinX) || !finite(g.MaxX) {
		return false
	}
	if g.MinX > g.MaxX || child.X < g.MinX || child.X > g.MaxX {
		return false
	}
	return hub.Y < g.BranchY && g.BranchY < child.Y
}

// Fallback is the generic orthogonal route: down from the source to the
// vertical midpoint, across to the target's x, then down to the target.
func Fallback(from, to tree.Point) Path {
	if !from.Finite() || !to.Finite() {
		return Path{Fallback: true}
	}
	midY := (from.Y + to.Y) / 2
	return Path{
		Segments: []Segment{{
			from,
			{X: from.X, Y: midY},
			{X: to.X, Y: midY},
			to,
		}},
		Fallback: true,
	}
}

func partnership(a, b tree.Point) Path {
	if !a.Finite() || !b.Finite() {
		return Path{Fallback: true}
	}
	y := (a.Y + b.Y) / 2
	left, right := math.Min(a.X, b.X), math.Max(a.X, b.X)
	return Path{Segments: []Segment{{{X: left, Y: y}, {X: right, Y: y}}}}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
