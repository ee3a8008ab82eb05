package layout

import (
	"context"
	"math"

	"github.com/matzehuels/evocity/pkg/graph"
)

// Arcs routes every edge as a three-point arc from the source's roof over a
// raised midpoint to the target's roof. The rise is Lift times the distance
// between the roofs, but at least MinRise.
type Arcs struct {
	Lift    float64
	MinRise float64
}

// NewArcs returns an edge layout with the default arc shape.
func NewArcs() *Arcs { return &Arcs{Lift: 0.3, MinRise: 1} }

func (a *Arcs) Apply(ctx context.Context, edges []graph.Edge, nodes map[string]Node) (map[string]Edge, error) {
	out := make(map[string]Edge, len(edges))
	for i, e := range edges {
		if i%256 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		src, okS := nodes[e.Source]
		tgt, okT := nodes[e.Target]
		if !okS || !okT {
			continue
		}
		from, to := src.Roof(), tgt.Roof()
		mid := from.Lerp(to, 0.5)
		mid.Y = math.Max(from.Y, to.Y) + math.Max(a.MinRise, a.Lift*to.Sub(from).Len())
		out[e.ID] = Edge{ID: e.ID, Source: e.Source, Target: e.Target, Points: []Vector3{from, mid, to}}
	}
	return out, nil
}
