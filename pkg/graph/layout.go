package graph

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/matzehuels/kinship/pkg/layout"
	"github.com/matzehuels/kinship/pkg/route"
	"github.com/matzehuels/kinship/pkg/tree"
)

// =============================================================================
// Layout - Diagram Serialization
// =============================================================================

// Layout is the serialization format for a computed diagram.
//
// Nodes and hubs carry positions; connectors carry their routed path as
// SVG path data in D together with the routing metadata that produced it.
type Layout struct {
	GraphID string  `json:"graph_id,omitempty" bson:"graph_id,omitempty"`
	Name    string  `json:"name,omitempty" bson:"name,omitempty"`
	Width   float64 `json:"width" bson:"width"`
	Height  float64 `json:"height" bson:"height"`

	Bounds     layout.Bounds `json:"bounds" bson:"bounds"`
	Nodes      []layout.Node `json:"nodes" bson:"nodes"`
	Hubs       []layout.Hub  `json:"hubs,omitempty" bson:"hubs,omitempty"`
	Connectors []Connector   `json:"connectors,omitempty" bson:"connectors,omitempty"`
	Unplaced   []string      `json:"unplaced,omitempty" bson:"unplaced,omitempty"`
}

// Connector is a routed connector on the wire.
type Connector struct {
	ID         string          `json:"id" bson:"id"`
	Role       route.Role      `json:"role" bson:"role"`
	FamilyKind tree.FamilyKind `json:"family_kind" bson:"family_kind"`
	FamilyKey  tree.FamilyKey  `json:"family_key" bson:"family_key"`
	Source     string          `json:"source" bson:"source"`
	Target     string          `json:"target" bson:"target"`
	EdgeIDs    []string        `json:"edge_ids,omitempty" bson:"edge_ids,omitempty"`
	Anchor     bool            `json:"anchor,omitempty" bson:"anchor,omitempty"`
	Fallback   bool            `json:"fallback,omitempty" bson:"fallback,omitempty"`
	D          string          `json:"d" bson:"d"`
}

// FromDiagram flattens a diagram for serialization.
func FromDiagram(id, name string, d *layout.Diagram) Layout {
	l := Layout{
		GraphID:  id,
		Name:     name,
		Width:    d.Bounds.Width(),
		Height:   d.Bounds.Height(),
		Bounds:   d.Bounds,
		Nodes:    d.Nodes,
		Hubs:     d.Hubs,
		Unplaced: d.Unplaced,
	}
	if l.Nodes == nil {
		l.Nodes = []layout.Node{}
	}
	for _, c := range d.Connectors {
		l.Connectors = append(l.Connectors, Connector{
			ID:         c.ID,
			Role:       c.Role,
			FamilyKind: c.FamilyKind,
			FamilyKey:  c.FamilyKey,
			Source:     c.Source,
			Target:     c.Target,
			EdgeIDs:    c.EdgeIDs,
			Anchor:     c.Geometry != nil && c.Geometry.IsAnchor,
			Fallback:   c.Path.Fallback,
			D:          c.Path.D(),
		})
	}
	return l
}

// Fallbacks counts connectors drawn with the fallback route.
func (l Layout) Fallbacks() int {
	n := 0
	for _, c := range l.Connectors {
		if c.Fallback {
			n++
		}
	}
	return n
}

// =============================================================================
// Layout Serialization API
// =============================================================================

// MarshalLayout serializes a Layout to pretty-printed JSON bytes.
func MarshalLayout(l Layout) ([]byte, error) {
	return json.MarshalIndent(l, "", "  ")
}

// UnmarshalLayout deserializes JSON bytes into a Layout. Unknown connector
// roles and family kinds are rejected.
func UnmarshalLayout(data []byte) (Layout, error) {
	var l Layout
	if err := json.Unmarshal(data, &l); err != nil {
		return Layout{}, fmt.Errorf("unmarshal layout: %w", err)
	}
	return l, nil
}

// WriteLayoutFile writes a Layout to a JSON file.
func WriteLayoutFile(l Layout, path string) error {
	data, err := MarshalLayout(l)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadLayoutFile reads a Layout from a JSON file.
func ReadLayoutFile(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read %s: %w", path, err)
	}
	return UnmarshalLayout(data)
}
