package layout

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/matzehuels/evocity/pkg/graph"
)

// Layout names accepted by [New].
const (
	GridName     = "grid"
	NestedName   = "nested"
	GraphvizName = "graphviz"
)

// DefaultSpacing is the gap between neighbouring boxes in world units.
const DefaultSpacing = 1.0

// Grid places leaves in a square grid, row by row in id order. Every cell is
// as large as the largest footprint, so positions only shift when that
// maximum or the leaf count changes.
type Grid struct {
	Spacing float64
}

func (g *Grid) Name() string { return GridName }

func (g *Grid) Hierarchical() bool { return false }

func (g *Grid) Apply(ctx context.Context, nodes []graph.Node, sizes map[string]Vector3) (map[string]Node, error) {
	out := make(map[string]Node, len(nodes))
	if len(nodes) == 0 {
		return out, nil
	}

	sorted := slices.SortedFunc(slices.Values(nodes), func(a, b graph.Node) int { return cmp.Compare(a.ID, b.ID) })
	cell := 0.0
	for _, n := range sorted {
		s := sizeOf(sizes, n.ID)
		cell = math.Max(cell, math.Max(s.X, s.Z))
	}
	cell += spacing(g.Spacing)
	cols := int(math.Ceil(math.Sqrt(float64(len(sorted)))))

	for i, n := range sorted {
		if i%256 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s := sizeOf(sizes, n.ID)
		row, col := i/cols, i%cols
		out[n.ID] = Node{
			ID:     n.ID,
			Center: Vec(float64(col)*cell, s.Y/2, float64(row)*cell),
			Scale:  s,
		}
	}
	return out, nil
}

func spacing(s float64) float64 {
	if s <= 0 {
		return DefaultSpacing
	}
	return s
}
