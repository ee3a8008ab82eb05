// Package graph provides the revision data model for evocity.
//
// A revision is one immutable [Snapshot] of an evolving, attributed graph:
// nodes carry a type tag, an optional containment parent and an open attribute
// map; edges additionally connect a source and a target node. An ordered,
// immutable sequence of snapshots is a [Series].
//
// # Identity
//
// Node and edge ids are unique within a snapshot and stable across revisions:
// the same id in two snapshots denotes the same logical element at two points
// in time. The diff engine (pkg/diff) relies on this.
//
// # Serialization
//
// Snapshots use a node-link document, either JSON or YAML:
//
//	{
//	  "name": "v1.2.0",
//	  "nodes": [
//	    {"id": "src", "type": "Directory"},
//	    {"id": "src/main.go", "type": "File", "parent": "src",
//	     "attributes": {"Metric.LOC": 120}}
//	  ],
//	  "edges": [{"id": "e1", "type": "Call", "source": "src/main.go", "target": "src/util.go"}]
//	}
//
// Common operations:
//
//	snap, _ := graph.ReadSnapshotFile("rev-001.json")  // File → Snapshot
//	graph.WriteSnapshotFile(snap, "out.yaml")          // Snapshot → File (format from extension)
//	data, _ := graph.MarshalSnapshot(snap)             // Snapshot → JSON bytes
//
// # Concurrency
//
// Snapshots and series are immutable after construction and safe for
// concurrent reads. Attribute maps returned by accessors are shared and
// must not be modified.
package graph
