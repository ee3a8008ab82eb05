// Package pkg provides the core libraries for evocity, an animated view of
// how a software city evolves from one revision to the next.
//
// # Overview
//
// A series is an ordered list of graph snapshots, one per revision. evocity
// lays every snapshot out ahead of time and then animates each step between
// two revisions in three phases: removed elements fade out, surviving
// elements move to their new places, added elements appear. The pkg
// directory is organized into these areas:
//
//  1. [graph] - Snapshots and series (JSON, YAML and MongoDB documents)
//  2. [diff] - Classification of two revisions into added, removed, changed
//     and equal elements
//  3. [layout] - Node and edge layouts (grid, nested, graphviz, arcs)
//  4. [scene] - Scene objects and the tween engine animating them
//  5. [evolution] - Layout cache, phase orchestrator and revision navigator
//  6. [pipeline] - Orchestration (load → layout → assemble)
//
// # Architecture
//
// The typical data flow through evocity:
//
//	Snapshot directory or MongoDB collection
//	         ↓
//	    [source] package (load the series)
//	         ↓
//	    [evolution.LayoutCache] (precompute one layout per revision)
//	         ↓
//	    [evolution.Navigator] (navigation commands, auto-play)
//	         ↓
//	    [evolution.Orchestrator] (fade out → move → appear)
//	         ↓
//	    [scene.Tweener] driving a [scene.ObjectManager]
//
// # Quick Start
//
//	import (
//	    "context"
//	    "github.com/matzehuels/evocity/pkg/pipeline"
//	)
//
//	runner := pipeline.NewRunner(nil, nil, nil)
//	result, _ := runner.Execute(context.Background(), pipeline.Options{
//	    Source: "./history",
//	    Layout: "nested",
//	})
//
//	nav := result.Renderer.Navigator()
//	nav.ShowNext()
//	for nav.IsTransitioning() {
//	    result.Renderer.Tick(16 * time.Millisecond)
//	}
//
// # Main Packages
//
// ## Domain
//
// [graph] - Snapshots hold nodes (with an optional parent, making the inner
// nodes of a nesting tree) and edges, each carrying free-form attributes.
//
// [diff] - [diff.Compute] partitions the elements of two revisions. Which
// surviving elements count as changed is decided by a [diff.ElementDiff],
// usually a [diff.NumericAttributeDiff] over the tracked attributes.
//
// [layout] - Node layouts place every node of a snapshot as a box; edge
// layouts route edges between placed nodes. Leaf sizes come from numeric
// attributes through a [layout.Scaler] fitted over the whole series so that
// sizes stay comparable between revisions.
//
// [scene] - A registry of scene elements keyed by kind and id, and the tween
// engine that moves, morphs and fades them.
//
// [evolution] - The animation engine. See the package documentation for the
// phase model and the navigation rules.
//
// ## Infrastructure
//
// [pipeline] - Complete pipeline (load → layout → assemble) shared by the CLI
// and the HTTP server.
//
// [source] - Series sources: snapshot directories and MongoDB collections.
//
// [cache] - Layout stores (file, Redis, none) and the keys layouts are
// stored under.
//
// [observability] - Hooks for transition and precompute events, with a
// Prometheus implementation in observability/prom.
//
// [errors] - Error codes shared by every package and mapped to HTTP status
// codes by the server.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...                    # All tests
//	go test ./pkg/evolution/...          # Specific package
//	go test -run Example ./pkg/...       # Examples only
//
// [graph]: https://pkg.go.dev/github.com/matzehuels/evocity/pkg/graph
// [diff]: https://pkg.go.dev/github.com/matzehuels/evocity/pkg/diff
// [layout]: https://pkg.go.dev/github.com/matzehuels/evocity/pkg/layout
// [scene]: https://pkg.go.dev/github.com/matzehuels/evocity/pkg/scene
// [evolution]: https://pkg.go.dev/github.com/matzehuels/evocity/pkg/evolution
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/evocity/pkg/pipeline
// [source]: https://pkg.go.dev/github.com/matzehuels/evocity/pkg/source
// [cache]: https://pkg.go.dev/github.com/matzehuels/evocity/pkg/cache
// [observability]: https://pkg.go.dev/github.com/matzehuels/evocity/pkg/observability
// [errors]: https://pkg.go.dev/github.com/matzehuels/evocity/pkg/errors
package pkg
