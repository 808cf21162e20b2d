// Package graph provides serialization types for family trees and their
// diagrams.
//
// This package defines the canonical wire format for kinship's data, used
// for JSON snapshot files, HTTP responses, the artifact cache and Mongo
// documents.
//
// # Architecture
//
// The package sits at the serialization boundary between internal
// representations and external formats:
//
//   - [Graph], [Layout]: serialization types (this package)
//   - pkg/tree.Snapshot: internal graph representation
//   - pkg/layout.Diagram: internal diagram (positions, hubs, routed paths)
//
// Use [FromView]/[Graph.Snapshot] and [FromDiagram] to convert between
// them.
//
// # Graph Serialization
//
// Graphs use a node-link format mirroring the backend tables:
//
//	{
//	  "id": "g1",
//	  "name": "Smith family",
//	  "nodes": [{"id": "ann", "first_name": "Ann", "x": 20, "y": 0}],
//	  "edges": [{"id": "e1", "kind": "parent_child", "source": "ann", "target": "cat"}]
//	}
//
// Common operations:
//
//	snap, _ := graph.ReadGraphFile("tree.json")   // File → Snapshot
//	graph.WriteGraphFile(g, "tree.json")          // Graph → File
//	data, _ := graph.MarshalGraph(g)              // Graph → []byte
//
// # Layout Serialization
//
// A [Layout] is a computed diagram flattened for drawing: every connector
// carries its SVG path data, so clients can render without reimplementing
// the router.
//
//	l := graph.FromDiagram(g, diagram)
//	data, _ := graph.MarshalLayout(l)
//
// # Formats
//
// This package is the single source of truth for output format names:
//
//	graph.FormatJSON // "json"
//	graph.FormatSVG  // "svg"
//	graph.FormatDOT  // "dot"
//	graph.FormatPNG  // "png"
//	graph.FormatPDF  // "pdf"
package graph
