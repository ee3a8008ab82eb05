package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"

	everrors "github.com/matzehuels/evocity/pkg/errors"
)

var (
	// ErrDuplicateNodeID is returned by [NewSnapshot] when two nodes share an id.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrDuplicateEdgeID is returned by [NewSnapshot] when two edges share an id.
	ErrDuplicateEdgeID = errors.New("duplicate edge ID")

	// ErrUnknownEndpoint is returned by [NewSnapshot] when an edge references
	// a node that is not part of the snapshot.
	ErrUnknownEndpoint = errors.New("unknown edge endpoint")

	// ErrUnknownParent is returned by [NewSnapshot] when a node's parent is not
	// part of the snapshot.
	ErrUnknownParent = errors.New("unknown parent node")

	// ErrContainmentCycle is returned by [NewSnapshot] when the parent relation
	// is not a forest.
	ErrContainmentCycle = errors.New("containment cycle")

	// ErrEmptySeries is returned by [NewSeries] when no snapshot is given.
	ErrEmptySeries = errors.New("series must contain at least one snapshot")
)

// =============================================================================
// Elements
// =============================================================================

// Attributes is an open key-value map of node or edge attributes. Values are
// numbers (any Go numeric type or json.Number) or strings.
type Attributes map[string]any

// Element is implemented by [Node] and [Edge]; it is the unit the diff engine
// compares.
type Element interface {
	ElementID() string
	Attr(name string) (any, bool)
}

// Node is a vertex of one revision.
type Node struct {
	ID         string     `json:"id" yaml:"id" bson:"id"`
	Type       string     `json:"type,omitempty" yaml:"type,omitempty" bson:"type,omitempty"`
	Parent     string     `json:"parent,omitempty" yaml:"parent,omitempty" bson:"parent,omitempty"`
	Attributes Attributes `json:"attributes,omitempty" yaml:"attributes,omitempty" bson:"attributes,omitempty"`
}

// ElementID returns the node id.
func (n Node) ElementID() string { return n.ID }

// Attr returns the raw value of attribute name.
func (n Node) Attr(name string) (any, bool) {
	v, ok := n.Attributes[name]
	return v, ok
}

// Float returns attribute name as a float64 if it is numeric.
func (n Node) Float(name string) (float64, bool) {
	v, ok := n.Attributes[name]
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// Edge is a directed connection between two nodes of one revision.
type Edge struct {
	ID         string     `json:"id" yaml:"id" bson:"id"`
	Type       string     `json:"type,omitempty" yaml:"type,omitempty" bson:"type,omitempty"`
	Source     string     `json:"source" yaml:"source" bson:"source"`
	Target     string     `json:"target" yaml:"target" bson:"target"`
	Attributes Attributes `json:"attributes,omitempty" yaml:"attributes,omitempty" bson:"attributes,omitempty"`
}

// ElementID returns the edge id.
func (e Edge) ElementID() string { return e.ID }

// Attr returns the raw value of attribute name.
func (e Edge) Attr(name string) (any, bool) {
	v, ok := e.Attributes[name]
	return v, ok
}

// ToFloat converts a numeric attribute value to float64. Strings are not
// parsed; only json.Number is, since that is how numbers decode with UseNumber.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := strconv.ParseFloat(string(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is one immutable revision of the graph.
//
// The zero value is an empty, valid snapshot. Use [NewSnapshot] to build one
// from nodes and edges.
type Snapshot struct {
	name     string
	nodes    []Node
	edges    []Edge
	nodeIdx  map[string]int
	edgeIdx  map[string]int
	children map[string][]string
}

// NewSnapshot validates nodes and edges and returns an immutable snapshot.
// The slices are copied; attribute maps are not.
func NewSnapshot(name string, nodes []Node, edges []Edge) (*Snapshot, error) {
	s := &Snapshot{
		name:     name,
		nodes:    slices.Clone(nodes),
		edges:    slices.Clone(edges),
		nodeIdx:  make(map[string]int, len(nodes)),
		edgeIdx:  make(map[string]int, len(edges)),
		children: make(map[string][]string),
	}

	for i, n := range s.nodes {
		if err := everrors.ValidateElementID(n.ID); err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		if _, dup := s.nodeIdx[n.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNodeID, n.ID)
		}
		s.nodeIdx[n.ID] = i
	}

	for _, n := range s.nodes {
		if n.Parent == "" {
			continue
		}
		if _, ok := s.nodeIdx[n.Parent]; !ok {
			return nil, fmt.Errorf("%w: %s (parent of %s)", ErrUnknownParent, n.Parent, n.ID)
		}
		s.children[n.Parent] = append(s.children[n.Parent], n.ID)
	}
	if err := s.checkForest(); err != nil {
		return nil, err
	}

	for i, e := range s.edges {
		if err := everrors.ValidateElementID(e.ID); err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
		if _, dup := s.edgeIdx[e.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEdgeID, e.ID)
		}
		if _, ok := s.nodeIdx[e.Source]; !ok {
			return nil, fmt.Errorf("%w: %s (source of %s)", ErrUnknownEndpoint, e.Source, e.ID)
		}
		if _, ok := s.nodeIdx[e.Target]; !ok {
			return nil, fmt.Errorf("%w: %s (target of %s)", ErrUnknownEndpoint, e.Target, e.ID)
		}
		s.edgeIdx[e.ID] = i
	}

	return s, nil
}

// checkForest walks the parent chain of every node; a chain longer than the
// node count means a cycle.
func (s *Snapshot) checkForest() error {
	depth := make(map[string]int, len(s.nodes))
	for _, n := range s.nodes {
		steps := 0
		for cur := n; cur.Parent != ""; cur = s.nodes[s.nodeIdx[cur.Parent]] {
			if _, known := depth[cur.ID]; known {
				break
			}
			steps++
			if steps > len(s.nodes) {
				return fmt.Errorf("%w: through %s", ErrContainmentCycle, n.ID)
			}
		}
		depth[n.ID] = steps
	}
	return nil
}

// MustSnapshot is like [NewSnapshot] but panics on invalid input.
// It is intended for tests and examples.
func MustSnapshot(name string, nodes []Node, edges []Edge) *Snapshot {
	s, err := NewSnapshot(name, nodes, edges)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the revision label (for instance a tag or commit id).
func (s *Snapshot) Name() string { return s.name }

// NodeCount returns the number of nodes.
func (s *Snapshot) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of edges.
func (s *Snapshot) EdgeCount() int { return len(s.edges) }

// Nodes returns the nodes in document order. The returned slice is a copy.
func (s *Snapshot) Nodes() []Node { return slices.Clone(s.nodes) }

// Edges returns the edges in document order. The returned slice is a copy.
func (s *Snapshot) Edges() []Edge { return slices.Clone(s.edges) }

// Node looks up a node by id.
func (s *Snapshot) Node(id string) (Node, bool) {
	i, ok := s.nodeIdx[id]
	if !ok {
		return Node{}, false
	}
	return s.nodes[i], true
}

// Edge looks up an edge by id.
func (s *Snapshot) Edge(id string) (Edge, bool) {
	i, ok := s.edgeIdx[id]
	if !ok {
		return Edge{}, false
	}
	return s.edges[i], true
}

// HasNode reports whether the snapshot contains a node with the given id.
func (s *Snapshot) HasNode(id string) bool {
	_, ok := s.nodeIdx[id]
	return ok
}

// HasEdge reports whether the snapshot contains an edge with the given id.
func (s *Snapshot) HasEdge(id string) bool {
	_, ok := s.edgeIdx[id]
	return ok
}

// Children returns the ids of the nodes directly contained in id.
func (s *Snapshot) Children(id string) []string {
	return slices.Clone(s.children[id])
}

// IsLeaf reports whether node id contains no other node.
func (s *Snapshot) IsLeaf(id string) bool {
	return len(s.children[id]) == 0
}

// Leaves returns all leaf nodes in document order.
func (s *Snapshot) Leaves() []Node {
	var out []Node
	for _, n := range s.nodes {
		if s.IsLeaf(n.ID) {
			out = append(out, n)
		}
	}
	return out
}

// Level returns the containment depth of node id (0 for roots, -1 if unknown).
func (s *Snapshot) Level(id string) int {
	n, ok := s.Node(id)
	if !ok {
		return -1
	}
	level := 0
	for n.Parent != "" {
		n = s.nodes[s.nodeIdx[n.Parent]]
		level++
	}
	return level
}

// NumericNodeAttributes returns the names of all attributes that carry a
// numeric value on at least one node.
func (s *Snapshot) NumericNodeAttributes() map[string]struct{} {
	out := make(map[string]struct{})
	for _, n := range s.nodes {
		for k, v := range n.Attributes {
			if _, ok := ToFloat(v); ok {
				out[k] = struct{}{}
			}
		}
	}
	return out
}

// =============================================================================
// Series
// =============================================================================

// Series is an ordered, immutable sequence of revisions.
type Series struct {
	snapshots []*Snapshot
}

// NewSeries returns a series over the given snapshots in order.
func NewSeries(snapshots ...*Snapshot) (*Series, error) {
	if len(snapshots) == 0 {
		return nil, ErrEmptySeries
	}
	for i, s := range snapshots {
		if s == nil {
			return nil, fmt.Errorf("snapshot %d is nil", i)
		}
	}
	return &Series{snapshots: slices.Clone(snapshots)}, nil
}

// Len returns the number of revisions.
func (s *Series) Len() int { return len(s.snapshots) }

// At returns revision i or false if i is out of range.
func (s *Series) At(i int) (*Snapshot, bool) {
	if i < 0 || i >= len(s.snapshots) {
		return nil, false
	}
	return s.snapshots[i], true
}

// Snapshots returns the revisions in order. The returned slice is a copy.
func (s *Series) Snapshots() []*Snapshot { return slices.Clone(s.snapshots) }

// NumericNodeAttributes returns the sorted union of numeric node attribute
// names over all revisions.
func (s *Series) NumericNodeAttributes() []string {
	all := make(map[string]struct{})
	for _, snap := range s.snapshots {
		maps.Copy(all, snap.NumericNodeAttributes())
	}
	return slices.Sorted(maps.Keys(all))
}
