package diff

import (
	"slices"

	"github.com/matzehuels/evocity/pkg/graph"
)

// Partition splits the ids of one element kind into four disjoint sets. Each
// set is sorted; the order carries no meaning beyond determinism.
type Partition struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Changed []string `json:"changed"`
	Equal   []string `json:"equal"`
}

// Len returns the total number of ids in the partition.
func (p Partition) Len() int {
	return len(p.Added) + len(p.Removed) + len(p.Changed) + len(p.Equal)
}

// Surviving returns Changed ∪ Equal, the ids present in both revisions.
func (p Partition) Surviving() []string {
	out := make([]string, 0, len(p.Changed)+len(p.Equal))
	out = append(out, p.Changed...)
	out = append(out, p.Equal...)
	slices.Sort(out)
	return out
}

// Class returns the class an id was sorted into, or ClassNone.
func (p Partition) Class(id string) Class {
	switch {
	case contains(p.Added, id):
		return ClassAdded
	case contains(p.Removed, id):
		return ClassRemoved
	case contains(p.Changed, id):
		return ClassChanged
	case contains(p.Equal, id):
		return ClassEqual
	default:
		return ClassNone
	}
}

func contains(sorted []string, id string) bool {
	_, ok := slices.BinarySearch(sorted, id)
	return ok
}

// Class names one of the four partition sets.
type Class string

const (
	ClassNone    Class = ""
	ClassAdded   Class = "added"
	ClassRemoved Class = "removed"
	ClassChanged Class = "changed"
	ClassEqual   Class = "equal"
)

// Classification is the result of comparing two revisions.
type Classification struct {
	Nodes Partition `json:"nodes"`
	Edges Partition `json:"edges"`
}

// Empty reports whether nothing is classified at all.
func (c Classification) Empty() bool {
	return c.Nodes.Len() == 0 && c.Edges.Len() == 0
}

// Compute classifies the nodes and edges of prev and next.
//
// A nil prev means next is displayed from scratch: everything is Added. A nil
// d compares no attributes, so surviving elements are Equal. Compute runs in
// time linear in the number of elements and never fails.
func Compute(prev, next *graph.Snapshot, d ElementDiff) Classification {
	if d == nil {
		d = Never
	}
	if next == nil {
		next = &graph.Snapshot{}
	}
	if prev == nil {
		return Classification{
			Nodes: Partition{Added: nodeIDs(next)},
			Edges: Partition{Added: edgeIDs(next)},
		}
	}

	var c Classification

	for _, n := range next.Nodes() {
		old, ok := prev.Node(n.ID)
		switch {
		case !ok:
			c.Nodes.Added = append(c.Nodes.Added, n.ID)
		case d.AreDifferent(old, n):
			c.Nodes.Changed = append(c.Nodes.Changed, n.ID)
		default:
			c.Nodes.Equal = append(c.Nodes.Equal, n.ID)
		}
	}
	for _, n := range prev.Nodes() {
		if !next.HasNode(n.ID) {
			c.Nodes.Removed = append(c.Nodes.Removed, n.ID)
		}
	}

	for _, e := range next.Edges() {
		old, ok := prev.Edge(e.ID)
		switch {
		case !ok:
			c.Edges.Added = append(c.Edges.Added, e.ID)
		case d.AreDifferent(old, e):
			c.Edges.Changed = append(c.Edges.Changed, e.ID)
		default:
			c.Edges.Equal = append(c.Edges.Equal, e.ID)
		}
	}
	for _, e := range prev.Edges() {
		if !next.HasEdge(e.ID) {
			c.Edges.Removed = append(c.Edges.Removed, e.ID)
		}
	}

	c.Nodes.sort()
	c.Edges.sort()
	return c
}

func (p *Partition) sort() {
	slices.Sort(p.Added)
	slices.Sort(p.Removed)
	slices.Sort(p.Changed)
	slices.Sort(p.Equal)
}

func nodeIDs(s *graph.Snapshot) []string {
	ids := make([]string, 0, s.NodeCount())
	for _, n := range s.Nodes() {
		ids = append(ids, n.ID)
	}
	slices.Sort(ids)
	return ids
}

func edgeIDs(s *graph.Snapshot) []string {
	ids := make([]string, 0, s.EdgeCount())
	for _, e := range s.Edges() {
		ids = append(ids, e.ID)
	}
	slices.Sort(ids)
	return ids
}
