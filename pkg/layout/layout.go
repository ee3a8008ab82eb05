// Package layout assigns geometry to the elements of one revision.
//
// A [NodeLayout] places nodes as boxes (center and scale) and an [EdgeLayout]
// routes edges as splines between laid-out nodes. Both are pure functions of
// their input, which is what lets the evolution engine compute every
// revision's layout up front and cache it.
//
// # Coordinates
//
// The ground is the XZ plane and Y points up. A node's Center is the middle of
// its box, so its footprint sits at Center.Y - Scale.Y/2 and its roof at
// Center.Y + Scale.Y/2.
//
// # Reference layouts
//
//   - [Grid]: flat; leaves only, in a square grid ordered by id.
//   - [Nested]: hierarchical; children are packed on top of their parent.
//   - [Graphviz]: flat; positions from a Graphviz engine (dot, neato, fdp...).
//   - [Arcs]: edges as three-point arcs from roof to roof.
//
// Leaf sizes usually come from a [Scaler] fitted over the whole series, so
// that a building of the same metric value has the same size in every revision.
package layout

import (
	"context"
	"fmt"
	"math"

	"github.com/matzehuels/evocity/pkg/graph"
)

// Vector3 is a point or extent in world space.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vec returns the vector (x, y, z).
func Vec(x, y, z float64) Vector3 { return Vector3{X: x, Y: y, Z: z} }

// Add returns v + o.
func (v Vector3) Add(o Vector3) Vector3 { return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - o.
func (v Vector3) Sub(o Vector3) Vector3 { return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Mul returns v scaled by f.
func (v Vector3) Mul(f float64) Vector3 { return Vector3{v.X * f, v.Y * f, v.Z * f} }

// Lerp interpolates between v (t=0) and o (t=1). Both ends are exact.
func (v Vector3) Lerp(o Vector3, t float64) Vector3 {
	return v.Mul(1 - t).Add(o.Mul(t))
}

// Len returns the euclidean length of v.
func (v Vector3) Len() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

func (v Vector3) String() string { return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z) }

// Node is the layout of one node: an axis-aligned box.
type Node struct {
	ID     string  `json:"id"`
	Center Vector3 `json:"center"`
	Scale  Vector3 `json:"scale"`
}

// Ground returns the center of the box's footprint.
func (n Node) Ground() Vector3 { return Vector3{n.Center.X, n.Center.Y - n.Scale.Y/2, n.Center.Z} }

// Roof returns the center of the box's top face.
func (n Node) Roof() Vector3 { return Vector3{n.Center.X, n.Center.Y + n.Scale.Y/2, n.Center.Z} }

// Edge is the layout of one edge: the control points of a spline.
type Edge struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Target string    `json:"target"`
	Points []Vector3 `json:"points"`
}

// NodeLayout places the nodes of one revision.
//
// Flat layouts (Hierarchical() == false) receive only leaf nodes; hierarchical
// layouts receive every node. sizes holds the desired scale of each leaf.
// Nodes missing from the result have no layout in that revision.
type NodeLayout interface {
	Name() string
	Hierarchical() bool
	Apply(ctx context.Context, nodes []graph.Node, sizes map[string]Vector3) (map[string]Node, error)
}

// EdgeAware is implemented by node layouts that take edges into account.
// Callers prefer ApplyWithEdges over Apply when it is available.
type EdgeAware interface {
	ApplyWithEdges(ctx context.Context, nodes []graph.Node, edges []graph.Edge, sizes map[string]Vector3) (map[string]Node, error)
}

// EdgeLayout routes the edges of one revision between laid-out nodes.
// Edges whose endpoints have no layout are left out of the result.
type EdgeLayout interface {
	Apply(ctx context.Context, edges []graph.Edge, nodes map[string]Node) (map[string]Edge, error)
}

// Bounds returns the smallest box enclosing all nodes as a layout node with
// the given id. ok is false when nodes is empty.
func Bounds(id string, nodes map[string]Node) (Node, bool) {
	if len(nodes) == 0 {
		return Node{}, false
	}
	lo := Vec(math.Inf(1), math.Inf(1), math.Inf(1))
	hi := Vec(math.Inf(-1), math.Inf(-1), math.Inf(-1))
	for _, n := range nodes {
		half := n.Scale.Mul(0.5)
		a, b := n.Center.Sub(half), n.Center.Add(half)
		lo = Vec(math.Min(lo.X, a.X), math.Min(lo.Y, a.Y), math.Min(lo.Z, a.Z))
		hi = Vec(math.Max(hi.X, b.X), math.Max(hi.Y, b.Y), math.Max(hi.Z, b.Z))
	}
	return Node{ID: id, Center: lo.Lerp(hi, 0.5), Scale: hi.Sub(lo)}, true
}

// New returns the reference node layout with the given name.
func New(name string, spacing float64) (NodeLayout, error) {
	switch name {
	case GridName:
		return &Grid{Spacing: spacing}, nil
	case NestedName:
		return &Nested{Spacing: spacing}, nil
	case GraphvizName:
		return &Graphviz{Spacing: spacing}, nil
	default:
		return nil, fmt.Errorf("unknown layout %q (want %s, %s or %s)", name, GridName, NestedName, GraphvizName)
	}
}

// Names lists the reference node layouts accepted by [New].
func Names() []string { return []string{GridName, NestedName, GraphvizName} }

func sizeOf(sizes map[string]Vector3, id string) Vector3 {
	if s, ok := sizes[id]; ok {
		return s
	}
	return Vec(1, 1, 1)
}
