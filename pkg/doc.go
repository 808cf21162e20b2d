// Package pkg holds the libraries behind kinship, a live mirror and diagram
// engine for collaboratively edited family trees.
//
// # Overview
//
// A shared tree lives in a hosted Postgres backend. Kinship loads it once,
// keeps a local copy current from a change feed, and turns the copy into a
// diagram in which partners meet at a family hub and children hang from a
// common bus.
//
// # Architecture
//
// Data flows through the packages like this:
//
//	backend (initial load)      feed (row changes)
//	         ↓                         ↓
//	              session → store (+ reconcile)
//	                          ↓
//	                   tree.Snapshot
//	                          ↓
//	               layout (hubs, buses) → route
//	                          ↓
//	          pipeline → render/svg, render/nodelink
//	                          ↓
//	               SVG/PNG/PDF/DOT/JSON output
//
// # Main Packages
//
// ## Domain
//
//   - [tree]: persons, relationships, snapshots, generations and validation
//   - [layout]: family hubs, child buses and connector geometry
//   - [route]: orthogonal connector paths that avoid person cards
//
// ## Live Mirror
//
//   - [store]: thread-safe local copy of one tree with optimistic edits
//   - [reconcile]: applies feed events and backend echoes to the store
//   - [feed]: change feed client with realtime, Redis and Mongo transports
//   - [backend]: Postgres loader, invites and edge function calls
//   - [session]: ties a store, a loader and a feed together for one tree
//
// ## Output
//
//   - [pipeline]: layout → render orchestration with caching
//   - [render]: SVG drawing, Graphviz node-link diagrams, PNG/PDF conversion
//   - [graph]: JSON wire format for trees and layouts
//   - [cache]: file, Redis and null caches for layouts and artifacts
//
// ## Infrastructure
//
//   - [config]: TOML, .env and environment configuration
//   - [errors]: coded errors and input validation
//   - [observability]: hooks for metrics, with a Prometheus implementation
//   - [buildinfo]: version information
//
// # Quick Start
//
// Mirror a tree and draw it:
//
//	import (
//	    "github.com/matzehuels/kinship/pkg/backend"
//	    "github.com/matzehuels/kinship/pkg/layout"
//	    "github.com/matzehuels/kinship/pkg/session"
//	)
//
//	pg, _ := backend.OpenPostgres(ctx, dsn)
//	sess, _ := session.Open(ctx, "g1", session.WithLoader(pg))
//	defer sess.Close()
//
//	d := sess.Diagram(layout.DefaultConfig())
//
// The kinship CLI (cmd/kinship) wraps these packages in the layout, render,
// watch and serve commands.
package pkg
