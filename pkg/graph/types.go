package graph

import (
	"encoding/json"
	"fmt"

	"github.com/matzehuels/kinship/pkg/tree"
)

// =============================================================================
// Constants - Single Source of Truth
// =============================================================================

// Output formats.
const (
	FormatJSON = "json"
	FormatSVG  = "svg"
	FormatDOT  = "dot"
	FormatPNG  = "png"
	FormatPDF  = "pdf"
)

// Formats lists every output format.
var Formats = []string{FormatJSON, FormatSVG, FormatDOT, FormatPNG, FormatPDF}

// =============================================================================
// Graph - Tree Serialization
// =============================================================================

// Graph is the canonical serialization format for a family tree.
//
// The format is human-readable and designed for round-trip fidelity:
// export → import → export produces identical results.
type Graph struct {
	ID    string `json:"id,omitempty" bson:"id,omitempty"`
	Name  string `json:"name,omitempty" bson:"name,omitempty"`
	Nodes []Node `json:"nodes" bson:"nodes"`
	Edges []Edge `json:"edges" bson:"edges"`
}

// Node is a person on the wire. X and Y are both set or both absent.
type Node struct {
	ID        string   `json:"id" bson:"id"`
	FirstName string   `json:"first_name,omitempty" bson:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty" bson:"last_name,omitempty"`
	BirthDate string   `json:"birth_date,omitempty" bson:"birth_date,omitempty"`
	DeathDate string   `json:"death_date,omitempty" bson:"death_date,omitempty"`
	ClaimedBy string   `json:"claimed_by,omitempty" bson:"claimed_by,omitempty"`
	X         *float64 `json:"x,omitempty" bson:"x,omitempty"`
	Y         *float64 `json:"y,omitempty" bson:"y,omitempty"`
}

// Edge is a relationship on the wire. Kind is "parent_child" or
// "partnership"; for parent_child the target is the child.
type Edge struct {
	ID     string `json:"id" bson:"id"`
	Kind   string `json:"kind" bson:"kind"`
	Source string `json:"source" bson:"source"`
	Target string `json:"target" bson:"target"`
}

// =============================================================================
// View ↔ Graph Conversion
// =============================================================================

// FromView converts a tree view to its serialization format. Nodes and
// edges keep the view's ID order, so output is deterministic.
func FromView(id, name string, v tree.View) Graph {
	persons := v.Persons()
	edges := v.Edges()

	out := Graph{
		ID:    id,
		Name:  name,
		Nodes: make([]Node, len(persons)),
		Edges: make([]Edge, len(edges)),
	}
	for i, p := range persons {
		out.Nodes[i] = NodeOf(p)
	}
	for i, e := range edges {
		out.Edges[i] = Edge{ID: e.ID, Kind: e.Kind.String(), Source: e.Source, Target: e.Target}
	}
	return out
}

// Persons converts the nodes back to persons.
func (g Graph) Persons() []tree.Person {
	out := make([]tree.Person, len(g.Nodes))
	for i, n := range g.Nodes {
		out[i] = n.Person()
	}
	return out
}

// TreeEdges converts the edges back to tree edges, rejecting unknown kinds
// and malformed edges.
func (g Graph) TreeEdges() ([]tree.Edge, error) {
	out := make([]tree.Edge, len(g.Edges))
	for i, e := range g.Edges {
		kind, err := tree.ParseKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("edge %s: %w", e.ID, err)
		}
		te := tree.Edge{ID: e.ID, Kind: kind, Source: e.Source, Target: e.Target}
		if err := te.Check(); err != nil {
			return nil, fmt.Errorf("edge %s: %w", e.ID, err)
		}
		out[i] = te
	}
	return out, nil
}

// Snapshot converts g to a validated tree snapshot. It fails on unknown
// edge kinds, dangling edges and parent_child cycles.
func (g Graph) Snapshot() (*tree.Snapshot, error) {
	for _, n := range g.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node: %w", tree.ErrInvalidID)
		}
	}
	edges, err := g.TreeEdges()
	if err != nil {
		return nil, err
	}
	snap := tree.NewSnapshot(g.Persons(), edges)
	if err := tree.Validate(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// UnmarshalGraph deserializes JSON bytes to a Graph.
func UnmarshalGraph(data []byte) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return Graph{}, err
	}
	return g, nil
}

// =============================================================================
// Person ↔ Node
// =============================================================================

// NodeOf converts a person to its wire form. Non-finite positions are
// dropped.
func NodeOf(p tree.Person) Node {
	n := Node{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		BirthDate: p.BirthDate,
		DeathDate: p.DeathDate,
		ClaimedBy: p.ClaimedBy,
	}
	if p.Position != nil && p.Position.Finite() {
		x, y := p.Position.X, p.Position.Y
		n.X, n.Y = &x, &y
	}
	return n
}

// Person converts n back to a person.
func (n Node) Person() tree.Person {
	p := tree.Person{
		ID:        n.ID,
		FirstName: n.FirstName,
		LastName:  n.LastName,
		BirthDate: n.BirthDate,
		DeathDate: n.DeathDate,
		ClaimedBy: n.ClaimedBy,
	}
	if n.X != nil && n.Y != nil {
		p.Position = &tree.Point{X: *n.X, Y: *n.Y}
	}
	return p
}
